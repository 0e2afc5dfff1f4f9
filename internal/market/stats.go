package market

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenStats is the live decoration of a token: refreshed periodically from
// the liquidity ranking collaborator, cached here keyed by token and chain.
type TokenStats struct {
	Volatility24h  float64 // fraction, 0.05 means 5%
	LiquidityDepth float64 // token units available near the top of book
	Volume24h      float64 // token units traded
	UpdatedAt      time.Time
}

// StatsCache is a concurrency-safe token stats cache.
type StatsCache struct {
	mu sync.RWMutex
	m  map[string]TokenStats
}

func NewStatsCache() *StatsCache {
	return &StatsCache{m: map[string]TokenStats{}}
}

func statsKey(chainID uint64, addr common.Address) string {
	return fmt.Sprintf("%d:%s", chainID, addr.Hex())
}

func (c *StatsCache) Put(chainID uint64, addr common.Address, s TokenStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[statsKey(chainID, addr)] = s
}

func (c *StatsCache) Get(chainID uint64, addr common.Address) (TokenStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.m[statsKey(chainID, addr)]
	return s, ok
}
