package graph

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"arbbot/internal/infra/metrics"
	"arbbot/internal/market"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Edge is one tradeable (tokenPair, router) direction. Edges are built fresh
// per scan cycle and never mutated afterwards; a new snapshot replaces the old
// one wholesale.
type Edge struct {
	From   market.Token
	To     market.Token
	Router market.Router
	Rate   float64 // raw output/input ratio, fee-exclusive
	FeeBps float64
	GasCost *big.Int
	Weight float64 // -ln(rate * (1 - fee)), the Bellman-Ford edge weight
}

// NewEdge derives the log weight from the effective rate.
func NewEdge(from, to market.Token, router market.Router, rate, feeBps float64, gasCost *big.Int) Edge {
	effective := rate * (1 - feeBps/10000)
	return Edge{
		From:    from,
		To:      to,
		Router:  router,
		Rate:    rate,
		FeeBps:  feeBps,
		GasCost: gasCost,
		Weight:  -math.Log(effective),
	}
}

// Graph is an immutable snapshot of tradeable edges on one chain.
type Graph struct {
	chainID uint64
	tokens  []market.Token
	index   map[common.Address]int
	edges   []Edge
	out     map[common.Address][]int
}

func newGraph(chainID uint64, tokens []market.Token) *Graph {
	g := &Graph{
		chainID: chainID,
		tokens:  tokens,
		index:   make(map[common.Address]int, len(tokens)),
		out:     make(map[common.Address][]int),
	}
	for i, t := range tokens {
		g.index[t.Address] = i
	}
	return g
}

func (g *Graph) addEdge(e Edge) {
	g.edges = append(g.edges, e)
	g.out[e.From.Address] = append(g.out[e.From.Address], len(g.edges)-1)
}

func (g *Graph) ChainID() uint64        { return g.chainID }
func (g *Graph) Tokens() []market.Token { return g.tokens }
func (g *Graph) Edges() []Edge          { return g.edges }

// outgoing returns indexes of edges leaving token addr.
func (g *Graph) outgoing(addr common.Address) []int { return g.out[addr] }

// EdgeCoster converts a router gas limit into a wei cost under the fee
// conditions of the current cycle.
type EdgeCoster interface {
	EdgeCost(gasLimit uint64) *big.Int
}

// Builder constructs graph snapshots by quoting every (pair, router)
// combination of a chain's catalog.
type Builder struct {
	catalog *market.Catalog
	quoter  *market.Quoter
	probe   *big.Int
	logger  zerolog.Logger
}

func NewBuilder(catalog *market.Catalog, quoter *market.Quoter, probeAmount *big.Int, logger zerolog.Logger) *Builder {
	return &Builder{catalog: catalog, quoter: quoter, probe: probeAmount, logger: logger}
}

// Build quotes all token pairs across all routers of the chain. Individual
// quote failures skip the edge and continue; building never aborts on a bad
// pair. A chain with no routers yields an empty graph.
func (b *Builder) Build(ctx context.Context, chainID uint64, coster EdgeCoster) (*Graph, error) {
	tokens := b.catalog.Tokens(chainID)
	routers := b.catalog.Routers(chainID)
	g := newGraph(chainID, tokens)
	if len(routers) == 0 || len(tokens) < 2 {
		return g, nil
	}
	chainLabel := fmt.Sprintf("%d", chainID)
	for _, from := range tokens {
		probeIn := scaleToDecimals(b.probe, from.Decimals)
		for _, to := range tokens {
			if from.Address == to.Address {
				continue
			}
			for _, r := range routers {
				select {
				case <-ctx.Done():
					return g, ctx.Err()
				default:
				}
				q, err := b.quoter.Quote(ctx, r, from.Address, to.Address, probeIn)
				if err != nil {
					metrics.GraphBuildErrors.WithLabelValues(chainLabel).Inc()
					b.logger.Debug().Err(err).Str("router", r.Name).Str("pair", from.Symbol+"/"+to.Symbol).Msg("quote failed, skipping edge")
					continue
				}
				rate := ratioWithDecimals(q.AmountOut, probeIn, to.Decimals, from.Decimals)
				if rate <= 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
					continue
				}
				g.addEdge(NewEdge(from, to, r, rate, r.FeeBps, coster.EdgeCost(q.GasEstimate)))
			}
		}
	}
	metrics.GraphEdgesBuilt.WithLabelValues(chainLabel).Set(float64(len(g.edges)))
	return g, nil
}

// scaleToDecimals rescales a 1e18-based probe amount into the token's own
// decimal basis so quotes stay in a realistic size range.
func scaleToDecimals(probe *big.Int, decimals uint8) *big.Int {
	if decimals == 18 {
		return new(big.Int).Set(probe)
	}
	out := new(big.Int).Set(probe)
	if decimals < 18 {
		div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
		return out.Quo(out, div)
	}
	mul := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-18)), nil)
	return out.Mul(out, mul)
}

func ratioWithDecimals(out, in *big.Int, outDecimals, inDecimals uint8) float64 {
	if in.Sign() == 0 {
		return 0
	}
	fOut, _ := new(big.Float).SetInt(out).Float64()
	fIn, _ := new(big.Float).SetInt(in).Float64()
	rate := fOut / fIn
	return rate * math.Pow(10, float64(inDecimals)-float64(outDecimals))
}

// PairKey canonicalizes an unordered token pair for grouping.
func PairKey(a, b market.Token) string {
	x, y := strings.ToLower(a.Address.Hex()), strings.ToLower(b.Address.Hex())
	if x > y {
		x, y = y, x
	}
	return x + ":" + y
}
