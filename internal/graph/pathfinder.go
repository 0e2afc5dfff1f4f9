package graph

import (
	"math"
	"sort"

	"arbbot/internal/infra/metrics"
	"arbbot/internal/market"

	"github.com/rs/zerolog"
)

// PathFinder searches a graph snapshot for profitable cycles: direct
// two-router round trips, Bellman-Ford negative cycles, and bounded
// multi-hop routes over the line graph.
type PathFinder struct {
	maxHops           int
	maxPaths          int
	complexityPenalty float64
	logger            zerolog.Logger
}

func NewPathFinder(maxHops, maxPaths int, complexityPenalty float64, logger zerolog.Logger) *PathFinder {
	if maxPaths <= 0 {
		maxPaths = 20
	}
	return &PathFinder{maxHops: maxHops, maxPaths: maxPaths, complexityPenalty: complexityPenalty, logger: logger}
}

// FindOpportunities returns profitable paths above minProfitBps, at most one
// per token pair, ranked by margin minus a complexity penalty per hop.
func (pf *PathFinder) FindOpportunities(g *Graph, source market.Token, minProfitBps float64) []Path {
	if len(g.Edges()) == 0 {
		return nil
	}
	var candidates []Path
	candidates = append(candidates, pf.directPaths(g)...)
	candidates = append(candidates, pf.negativeCycles(g, source)...)
	candidates = append(candidates, pf.multiHop(g, source)...)
	return pf.selectBest(candidates, minProfitBps)
}

// directPaths finds A->B->A round trips across two routers with differing fee
// structures.
func (pf *PathFinder) directPaths(g *Graph) []Path {
	byPair := map[[2]int][]int{}
	for i, e := range g.edges {
		u, okU := g.index[e.From.Address]
		v, okV := g.index[e.To.Address]
		if !okU || !okV {
			continue
		}
		byPair[[2]int{u, v}] = append(byPair[[2]int{u, v}], i)
	}
	var out []Path
	for key, fwd := range byPair {
		back := byPair[[2]int{key[1], key[0]}]
		for _, fi := range fwd {
			for _, bi := range back {
				f, b := g.edges[fi], g.edges[bi]
				if f.Router.Address == b.Router.Address {
					continue
				}
				if f.Router.FeeBps == b.Router.FeeBps && f.Router.Kind == b.Router.Kind {
					continue
				}
				p := Path{Edges: []Edge{f, b}}
				if p.ProfitMargin() > 0 {
					out = append(out, p)
				}
			}
		}
	}
	return out
}

// negativeCycles runs Bellman-Ford from the source token for |V|-1 rounds and
// extracts every distinct cycle still relaxing on round |V|. The predecessor
// back-walk is bounded by |V| steps and a cycle is accepted only when the walk
// returns to its origin.
func (pf *PathFinder) negativeCycles(g *Graph, source market.Token) []Path {
	n := len(g.tokens)
	src, ok := g.index[source.Address]
	if !ok || n == 0 {
		return nil
	}
	dist := make([]float64, n)
	predEdge := make([]int, n)
	for i := range dist {
		dist[i] = math.Inf(1)
		predEdge[i] = -1
	}
	dist[src] = 0

	relaxAll := func() []int {
		var relaxed []int
		for i, e := range g.edges {
			u := g.index[e.From.Address]
			v := g.index[e.To.Address]
			if dist[u]+e.Weight < dist[v] {
				dist[v] = dist[u] + e.Weight
				predEdge[v] = i
				relaxed = append(relaxed, i)
			}
		}
		return relaxed
	}

	for i := 0; i < n-1; i++ {
		if len(relaxAll()) == 0 {
			return nil // converged, no negative cycle reachable
		}
	}
	stillRelaxing := relaxAll()
	if len(stillRelaxing) == 0 {
		return nil
	}

	seen := map[string]bool{}
	var out []Path
	for _, ei := range stillRelaxing {
		p, ok := pf.extractCycle(g, predEdge, g.index[g.edges[ei].To.Address])
		if !ok {
			continue
		}
		if p.SumWeight() >= 0 {
			continue
		}
		key := p.cycleKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// extractCycle walks predecessors from vertex start. The first |V| steps move
// the cursor onto the cycle itself; the second bounded walk collects its
// edges. A walk that fails to close within |V| steps is discarded.
func (pf *PathFinder) extractCycle(g *Graph, predEdge []int, start int) (Path, bool) {
	n := len(g.tokens)
	x := start
	for i := 0; i < n; i++ {
		ei := predEdge[x]
		if ei < 0 {
			return Path{}, false
		}
		x = g.index[g.edges[ei].From.Address]
	}
	origin := x
	var reversed []Edge
	for i := 0; i <= n; i++ {
		ei := predEdge[x]
		if ei < 0 {
			return Path{}, false
		}
		e := g.edges[ei]
		reversed = append(reversed, e)
		x = g.index[e.From.Address]
		if x == origin {
			edges := make([]Edge, len(reversed))
			for j, rev := range reversed {
				edges[len(reversed)-1-j] = rev
			}
			p := Path{Edges: edges}
			if !p.Contiguous() || !p.IsCycle() {
				return Path{}, false
			}
			return p, true
		}
	}
	return Path{}, false
}

type partialPath struct {
	edges   []int
	product float64
	visited map[int]bool
}

// multiHop explores the line graph (edges as nodes, adjacency when one edge's
// destination is another's source) with a bounded-depth BFS from the source
// token back to itself. The frontier is capped at maxPaths by partial rate
// product to bound runtime on dense graphs.
func (pf *PathFinder) multiHop(g *Graph, source market.Token) []Path {
	src, ok := g.index[source.Address]
	if !ok {
		return nil
	}
	var frontier []partialPath
	for _, ei := range g.outgoing(source.Address) {
		e := g.edges[ei]
		visited := map[int]bool{src: true}
		if vi, ok := g.index[e.To.Address]; ok {
			visited[vi] = true
		}
		frontier = append(frontier, partialPath{edges: []int{ei}, product: e.Rate, visited: visited})
	}
	var out []Path
	for depth := 1; depth < pf.maxHops && len(frontier) > 0; depth++ {
		var next []partialPath
		for _, p := range frontier {
			last := g.edges[p.edges[len(p.edges)-1]]
			for _, ni := range g.outgoing(last.To.Address) {
				e := g.edges[ni]
				vi, ok := g.index[e.To.Address]
				if !ok {
					continue
				}
				if vi == src {
					if len(p.edges) >= 2 { // 3+ hops total; 2-hop round trips belong to directPaths
						edges := make([]Edge, 0, len(p.edges)+1)
						for _, pe := range p.edges {
							edges = append(edges, g.edges[pe])
						}
						edges = append(edges, e)
						out = append(out, Path{Edges: edges})
					}
					continue
				}
				if p.visited[vi] {
					continue
				}
				visited := make(map[int]bool, len(p.visited)+1)
				for k := range p.visited {
					visited[k] = true
				}
				visited[vi] = true
				next = append(next, partialPath{
					edges:   append(append([]int{}, p.edges...), ni),
					product: p.product * e.Rate,
					visited: visited,
				})
			}
		}
		if len(next) > pf.maxPaths {
			sort.Slice(next, func(i, j int) bool { return next[i].product > next[j].product })
			next = next[:pf.maxPaths]
		}
		frontier = next
	}
	return out
}

// selectBest filters by the margin floor and keeps the simplest best-scoring
// path per token pair.
func (pf *PathFinder) selectBest(candidates []Path, minProfitBps float64) []Path {
	minMargin := minProfitBps / 10000
	best := map[string]Path{}
	score := func(p Path) float64 {
		return p.ProfitMargin() - pf.complexityPenalty*float64(p.Hops())
	}
	for _, p := range candidates {
		if len(p.Edges) == 0 || !p.Contiguous() {
			continue
		}
		margin := p.ProfitMargin()
		metrics.PathProfitBps.Observe(margin * 10000)
		if margin < minMargin {
			continue
		}
		key := PairKey(p.Edges[0].From, p.Edges[0].To)
		cur, ok := best[key]
		if !ok || score(p) > score(cur) || (score(p) == score(cur) && p.Hops() < cur.Hops()) {
			best[key] = p
		}
	}
	out := make([]Path, 0, len(best))
	for _, p := range best {
		metrics.PathLengthHops.Observe(float64(p.Hops()))
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return score(out[i]) > score(out[j]) })
	return out
}
