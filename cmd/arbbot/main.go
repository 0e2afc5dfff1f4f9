package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arbbot/internal/arb"
	"arbbot/internal/chain"
	"arbbot/internal/config"
	"arbbot/internal/coordinator"
	"arbbot/internal/executor"
	"arbbot/internal/flashloan"
	"arbbot/internal/gas"
	"arbbot/internal/infra/health"
	"arbbot/internal/infra/log"
	"arbbot/internal/infra/metrics"
	"arbbot/internal/infra/runner"
	"arbbot/internal/market"
	"arbbot/internal/relay"
	"arbbot/internal/scanner"
	"arbbot/internal/validate"

	"github.com/ethereum/go-ethereum/common"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	reg := metrics.Init(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := market.LoadCatalog(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("catalog load failed")
	}
	stats := market.NewStatsCache()
	tracker := gas.NewTracker(0)
	rpcTimeout := time.Duration(cfg.Scan.RPCTimeoutSeconds) * time.Second

	// Control clients serve the executor and flash-loan quoting; each scanner
	// dials its own set so workers never share a connection.
	control := map[uint64]*chain.Client{}
	for _, ch := range cfg.Chains {
		client, err := chain.Dial(ctx, ch, rpcTimeout)
		if err != nil {
			logger.Fatal().Err(err).Str("chain", ch.Name).Msg("chain dial failed")
		}
		control[ch.ChainID] = client
		defer client.Close()
	}

	selector := flashloan.NewSelector(logger)
	for _, fl := range cfg.FlashLoans {
		caller, ok := control[fl.ChainID]
		if !ok {
			logger.Fatal().Str("provider", fl.Name).Uint64("chain", fl.ChainID).Msg("flash loan provider references unknown chain")
		}
		addr := common.HexToAddress(fl.Address)
		switch fl.Kind {
		case "vault":
			selector.Register(flashloan.NewVaultProvider(fl.Name, fl.ChainID, addr, caller))
		case "lending_pool":
			selector.Register(flashloan.NewLendingPoolProvider(fl.Name, fl.ChainID, addr, fl.FeeBps, caller))
		default:
			logger.Fatal().Str("provider", fl.Name).Str("kind", fl.Kind).Msg("unknown flash loan kind")
		}
	}

	// Paper mode never reaches the relay, so no submitter is wired.
	var submitter relay.Submitter
	if cfg.Execution.Live {
		submitter, err = relay.Dial(ctx, cfg.Execution.RelayURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("relay dial failed")
		}
	} else {
		logger.Warn().Msg("paper trading mode, bundles will not reach the relay")
	}

	exec, err := executor.New(cfg, control, selector, submitter, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("executor init failed")
	}

	// The risk assessor doubles as the coordinator's result recorder so
	// settled PnL counts against the session loss budget.
	risk := validate.NewRiskAssessor(cfg.Risk.CapitalEther, cfg.Risk.MaxSessionLossFrac, cfg.Risk.MaxTradeFrac)
	pipeline := validate.NewPipeline(
		risk,
		validate.NewOracleValidator(stats, logger),
		validate.NewAdaptiveProfitEstimator(baseMinProfitWei(cfg), stats, tracker),
		validate.NewSlippageEstimator(cfg.Slippage.BaseBps, cfg.Slippage.MinBps, cfg.Slippage.MaxBps, cfg.Slippage.VolatilityMultiplier, stats, tracker),
		logger,
	)

	breaker := coordinator.NewCircuitBreaker(
		cfg.Breaker.LossThresholdEther,
		time.Duration(cfg.Breaker.AutoResetMinutes)*time.Minute,
	)
	opps := make(chan arb.Opportunity, 256)
	coord := coordinator.New(
		opps, pipeline, exec, breaker, risk,
		time.Duration(cfg.Execution.CooldownSeconds)*time.Second,
		cfg.Scan.Workers, logger,
	)

	var ranker scanner.LiquidityRanker
	if cfg.Services.RankerURL != "" {
		ranker = scanner.NewHTTPRanker(cfg.Services.RankerURL)
	}
	var bridge scanner.BridgeRouter
	if cfg.Services.BridgeURL != "" {
		bridge = scanner.NewHTTPBridge(cfg.Services.BridgeURL)
	}

	group := runner.New()
	group.Go(ctx, "coordinator", coord.Run)
	for i := 0; i < cfg.Scan.Workers; i++ {
		clients := map[uint64]*chain.Client{}
		for _, ch := range cfg.Chains {
			client, err := chain.Dial(ctx, ch, rpcTimeout)
			if err != nil {
				logger.Fatal().Err(err).Int("worker", i).Str("chain", ch.Name).Msg("worker chain dial failed")
			}
			clients[ch.ChainID] = client
			defer client.Close()
		}
		w := scanner.New(i, cfg, clients, catalog, stats, tracker, ranker, bridge, opps, logger)
		group.Go(ctx, "scanner", w.Run)
	}

	srv := adminServer(cfg, reg, coord, logger)
	group.Go(ctx, "admin", func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	})

	health.SetReady(true)
	logger.Info().
		Int("workers", cfg.Scan.Workers).
		Int("chains", len(cfg.Chains)).
		Bool("live", cfg.Execution.Live).
		Msg("engine started")

	res := <-group.Done()
	if res.Err != nil {
		logger.Error().Err(res.Err).Str("task", res.Name).Msg("task exited")
	}
	health.SetReady(false)
	stop()
	group.Wait()
	logger.Info().Msg("engine stopped")
	if res.Err != nil {
		os.Exit(1)
	}
}

// baseMinProfitWei converts the configured minimum profit bps of the probe
// amount into the wei floor the adaptive threshold scales from.
func baseMinProfitWei(cfg config.Config) *big.Int {
	probe, ok := new(big.Int).SetString(cfg.Scan.ProbeAmountWei, 10)
	if !ok {
		probe = big.NewInt(1e18)
	}
	out, _ := new(big.Float).Mul(new(big.Float).SetInt(probe), big.NewFloat(cfg.Scan.MinProfitBps/10000)).Int(nil)
	return out
}
