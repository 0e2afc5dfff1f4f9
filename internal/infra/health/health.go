package health

import (
	"net/http"
	"sync/atomic"
)

var ready atomic.Bool

// SetReady flips readiness. The engine reports ready once every chain client
// dialed and the first scan cycle can start.
func SetReady(v bool) { ready.Store(v) }

// Ready returns current readiness.
func Ready() bool { return ready.Load() }

// Healthz is the liveness probe.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz reflects application readiness.
func Readyz(w http.ResponseWriter, r *http.Request) {
	if Ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	http.Error(w, "not ready", http.StatusServiceUnavailable)
}
