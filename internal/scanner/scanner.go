package scanner

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"arbbot/internal/arb"
	"arbbot/internal/chain"
	"arbbot/internal/config"
	"arbbot/internal/gas"
	"arbbot/internal/graph"
	"arbbot/internal/infra/metrics"
	"arbbot/internal/market"

	"github.com/rs/zerolog"
)

// Scanner is one worker of the pool. It owns its own chain clients (no
// connection sharing across workers), rebuilds its own graph snapshots, and
// emits candidates to the coordinator over a channel.
type Scanner struct {
	id       int
	cfg      config.Config
	clients  map[uint64]*chain.Client
	builders map[uint64]*graph.Builder
	catalog  *market.Catalog
	stats    *market.StatsCache
	tracker  *gas.Tracker
	finder   *graph.PathFinder
	ranker   LiquidityRanker
	bridge   BridgeRouter
	out      chan<- arb.Opportunity
	logger   zerolog.Logger
	probe    *big.Int
}

func New(id int, cfg config.Config, clients map[uint64]*chain.Client, catalog *market.Catalog, stats *market.StatsCache, tracker *gas.Tracker, ranker LiquidityRanker, bridge BridgeRouter, out chan<- arb.Opportunity, logger zerolog.Logger) *Scanner {
	probe, ok := new(big.Int).SetString(cfg.Scan.ProbeAmountWei, 10)
	if !ok || probe.Sign() <= 0 {
		probe = big.NewInt(1e18)
	}
	s := &Scanner{
		id:       id,
		cfg:      cfg,
		clients:  clients,
		builders: map[uint64]*graph.Builder{},
		catalog:  catalog,
		stats:    stats,
		tracker:  tracker,
		finder:   graph.NewPathFinder(cfg.Scan.MaxHops, cfg.Scan.MaxPathsPerPair, cfg.Scan.ComplexityPenalty, logger),
		ranker:   ranker,
		bridge:   bridge,
		out:      out,
		logger:   logger.With().Int("worker", id).Logger(),
		probe:    probe,
	}
	for chainID, c := range clients {
		s.builders[chainID] = graph.NewBuilder(catalog, market.NewQuoter(c), probe, s.logger)
	}
	return s
}

// Run loops scan cycles on the configured interval until the context ends. A
// cycle that overruns its interval finishes; the ticker simply fires again.
func (s *Scanner) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.Scan.IntervalSeconds) * time.Second
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.scanCycle(ctx)
		}
	}
}

func (s *Scanner) scanCycle(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.ScanCyclesTotal.WithLabelValues(strconv.Itoa(s.id)).Inc()
		metrics.ScanCycleLatencyMs.Observe(float64(time.Since(start).Milliseconds()))
	}()

	s.refreshUniverse(ctx)

	graphs := map[uint64]*graph.Graph{}
	for chainID, client := range s.clients {
		g, err := s.scanChain(ctx, chainID, client)
		if err != nil {
			s.logger.Warn().Err(err).Uint64("chain", chainID).Msg("chain scan failed, continuing")
			continue
		}
		graphs[chainID] = g
	}

	s.scanCrossChain(ctx, graphs)
}

// refreshUniverse pulls the current top tokens per chain from the liquidity
// ranking collaborator. Failures keep the previous universe.
func (s *Scanner) refreshUniverse(ctx context.Context) {
	if s.ranker == nil {
		return
	}
	for chainID := range s.clients {
		ranked, err := s.ranker.TopTokens(ctx, chainID, 25)
		if err != nil {
			s.logger.Debug().Err(err).Uint64("chain", chainID).Msg("liquidity ranking unavailable")
			continue
		}
		if len(ranked) == 0 {
			continue
		}
		tokens := make([]market.Token, 0, len(ranked))
		for _, r := range ranked {
			tokens = append(tokens, r.Token)
			s.stats.Put(chainID, r.Token.Address, r.Stats)
		}
		s.catalog.SetTokens(chainID, tokens)
	}
}

// scanChain rebuilds the chain's graph snapshot and emits every path the
// finder keeps.
func (s *Scanner) scanChain(ctx context.Context, chainID uint64, client *chain.Client) (*graph.Graph, error) {
	fd, err := client.FeeData(ctx)
	if err != nil {
		return nil, err
	}
	if fd.GasPrice != nil {
		gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(fd.GasPrice), big.NewFloat(1e9)).Float64()
		s.tracker.Observe(chainID, gwei)
	}
	model := s.gasModel(ctx, chainID, fd)

	g, err := s.builders[chainID].Build(ctx, chainID, model)
	if err != nil {
		return nil, err
	}
	tokens := s.catalog.Tokens(chainID)
	if len(tokens) == 0 {
		return g, nil
	}
	source := tokens[0] // anchor token, first in the configured universe
	paths := s.finder.FindOpportunities(g, source, s.cfg.Scan.MinProfitBps)
	for _, p := range paths {
		opp := s.toOpportunity(p, chainID)
		metrics.OpportunitiesFound.WithLabelValues(fmt.Sprintf("%d", chainID), string(opp.Strategy)).Inc()
		select {
		case s.out <- opp:
		case <-ctx.Done():
			return g, ctx.Err()
		}
	}
	return g, nil
}

// gasModel builds the cycle's cost model. Rollups add the settlement chain's
// gas price for calldata posting when a settlement chain is configured.
func (s *Scanner) gasModel(ctx context.Context, chainID uint64, fd chain.FeeData) gas.Model {
	var l1Price *big.Int
	for _, ch := range s.cfg.Chains {
		if ch.ChainID != chainID || !ch.Rollup {
			continue
		}
		for _, settle := range s.cfg.Chains {
			if settle.Rollup {
				continue
			}
			if client, ok := s.clients[settle.ChainID]; ok {
				if sfd, err := client.FeeData(ctx); err == nil {
					l1Price = sfd.GasPrice
				}
			}
			break
		}
	}
	return gas.NewModel(fd.GasPrice, l1Price)
}

func (s *Scanner) toOpportunity(p graph.Path, chainID uint64) arb.Opportunity {
	amountIn := new(big.Int).Set(s.probe)
	margin := p.ProfitMargin()
	gross, _ := new(big.Float).Mul(new(big.Float).SetInt(amountIn), big.NewFloat(margin)).Int(nil)
	profit := new(big.Int).Sub(gross, p.GasCost())
	confidence := math.Max(0.3, 1-0.15*float64(p.Hops()-2))
	opp := arb.NewOpportunity(p, amountIn, profit, chainID, confidence, arb.StrategyFor(p))
	opp.Worker = s.id
	return opp
}

// scanCrossChain compares same-symbol anchored prices across chain pairs and
// emits a candidate when the spread survives the bridge cost estimate.
func (s *Scanner) scanCrossChain(ctx context.Context, graphs map[uint64]*graph.Graph) {
	if s.bridge == nil || len(graphs) < 2 {
		return
	}
	type quoteRef struct {
		chainID uint64
		edge    graph.Edge
		rate    float64
	}
	bySymbol := map[string][]quoteRef{}
	for chainID, g := range graphs {
		for _, e := range g.Edges() {
			// anchor edges only: price of the token in the chain's anchor
			tokens := s.catalog.Tokens(chainID)
			if len(tokens) == 0 || e.To.Address != tokens[0].Address {
				continue
			}
			bySymbol[e.From.Symbol] = append(bySymbol[e.From.Symbol], quoteRef{chainID: chainID, edge: e, rate: e.Rate})
		}
	}
	for symbol, quotes := range bySymbol {
		for i := 0; i < len(quotes); i++ {
			for j := i + 1; j < len(quotes); j++ {
				a, b := quotes[i], quotes[j]
				if a.chainID == b.chainID || a.rate <= 0 || b.rate <= 0 {
					continue
				}
				low, high := a, b
				if low.rate > high.rate {
					low, high = high, low
				}
				spreadBps := (high.rate - low.rate) / low.rate * 10000
				bq, err := s.bridge.QuoteBridge(ctx, low.chainID, high.chainID, symbol, s.probe)
				if err != nil {
					s.logger.Debug().Err(err).Str("symbol", symbol).Msg("bridge quote unavailable")
					continue
				}
				netBps := spreadBps - bq.FeeBps
				if netBps < s.cfg.Scan.MinCrossSpreadBps {
					continue
				}
				metrics.CrossChainSpreads.WithLabelValues(symbol).Inc()
				p := graph.Path{Edges: []graph.Edge{high.edge}}
				amountIn := new(big.Int).Set(s.probe)
				profit, _ := new(big.Float).Mul(new(big.Float).SetInt(amountIn), big.NewFloat(netBps/10000)).Int(nil)
				opp := arb.NewOpportunity(p, amountIn, profit, high.chainID, 0.4, arb.StrategyCrossChain)
				opp.Worker = s.id
				metrics.OpportunitiesFound.WithLabelValues(fmt.Sprintf("%d", high.chainID), string(arb.StrategyCrossChain)).Inc()
				select {
				case s.out <- opp:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
