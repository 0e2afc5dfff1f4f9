package graph

import (
	"math/big"
	"strings"

	"arbbot/internal/market"
)

// Path is an ordered, contiguous sequence of edges. Immutable once built.
type Path struct {
	Edges []Edge
}

// Contiguous reports whether every edge's destination matches the next
// edge's source.
func (p Path) Contiguous() bool {
	for i := 1; i < len(p.Edges); i++ {
		if p.Edges[i-1].To.Address != p.Edges[i].From.Address {
			return false
		}
	}
	return true
}

// IsCycle reports whether the path returns to its starting token.
func (p Path) IsCycle() bool {
	return len(p.Edges) > 0 && p.Edges[0].From.Address == p.Edges[len(p.Edges)-1].To.Address
}

// IsTriangular is true for a 3-edge cycle.
func (p Path) IsTriangular() bool { return p.IsCycle() && len(p.Edges) == 3 }

func (p Path) Hops() int { return len(p.Edges) }

// SumWeight is the Bellman-Ford cycle test: negative means profitable after
// fees.
func (p Path) SumWeight() float64 {
	var s float64
	for _, e := range p.Edges {
		s += e.Weight
	}
	return s
}

// ProfitMargin is the fee-adjusted margin reported for filtering: the raw
// rate product minus one, minus the cumulative fee fraction. Fees are
// subtracted from the product rather than folded into the log sum so the
// cycle-detection test stays exact.
func (p Path) ProfitMargin() float64 {
	product := 1.0
	fees := 0.0
	for _, e := range p.Edges {
		product *= e.Rate
		fees += e.FeeBps / 10000
	}
	return product - 1 - fees
}

// GasCost sums the per-edge wei costs.
func (p Path) GasCost() *big.Int {
	total := new(big.Int)
	for _, e := range p.Edges {
		if e.GasCost != nil {
			total.Add(total, e.GasCost)
		}
	}
	return total
}

// Source is the starting token of the path.
func (p Path) Source() market.Token { return p.Edges[0].From }

// String renders the token route for logs.
func (p Path) String() string {
	if len(p.Edges) == 0 {
		return "<empty>"
	}
	var b strings.Builder
	b.WriteString(p.Edges[0].From.Symbol)
	for _, e := range p.Edges {
		b.WriteString("->")
		b.WriteString(e.To.Symbol)
		b.WriteString("(")
		b.WriteString(e.Router.Name)
		b.WriteString(")")
	}
	return b.String()
}

// cycleKey canonicalizes a cycle for deduplication: the token sequence rotated
// to start at the smallest address, joined with the router names.
func (p Path) cycleKey() string {
	n := len(p.Edges)
	if n == 0 {
		return ""
	}
	addrs := make([]string, n)
	for i, e := range p.Edges {
		addrs[i] = strings.ToLower(e.From.Address.Hex()) + "@" + e.Router.Name
	}
	best := 0
	for i := 1; i < n; i++ {
		if addrs[i] < addrs[best] {
			best = i
		}
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(addrs[(best+i)%n])
		b.WriteString("|")
	}
	return b.String()
}
