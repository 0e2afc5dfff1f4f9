package main

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"arbbot/internal/config"
	"arbbot/internal/coordinator"
	"arbbot/internal/infra/health"
	"arbbot/internal/infra/http/middleware"
	"arbbot/internal/infra/log"
	"arbbot/internal/infra/metrics"
	"arbbot/internal/infra/netutil"
	"arbbot/internal/infra/version"

	"github.com/prometheus/client_golang/prometheus"
)

// adminServer exposes the operational surface: probes, metrics, the status
// snapshot and the breaker reset. Everything but the probes sits behind the
// CIDR gate.
func adminServer(cfg config.Config, reg *prometheus.Registry, coord *coordinator.Coordinator, logger log.Logger) *http.Server {
	allowed := netutil.ParseCIDRs(cfg.Server.AdminAllowCIDRs)
	gate := func(h http.Handler) http.Handler { return middleware.AdminGate(allowed, h) }

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.Healthz)
	mux.HandleFunc("/readyz", health.Readyz)
	mux.Handle("/version", gate(http.HandlerFunc(version.Handler)))
	mux.Handle("/metrics", gate(metrics.Handler(reg)))
	mux.Handle("/status", gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(coord.Snapshot())
	})))
	mux.Handle("/admin/breaker/reset", gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		coord.ResetBreaker()
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("reset requested"))
	})))
	if cfg.Server.Pprof {
		mux.Handle("/debug/pprof/", gate(http.HandlerFunc(pprof.Index)))
		mux.Handle("/debug/pprof/profile", gate(http.HandlerFunc(pprof.Profile)))
		mux.Handle("/debug/pprof/symbol", gate(http.HandlerFunc(pprof.Symbol)))
		mux.Handle("/debug/pprof/trace", gate(http.HandlerFunc(pprof.Trace)))
	}

	handler := middleware.RequestID(middleware.Logger(logger)(mux))
	return &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}
}
