package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
	Server struct {
		Addr                string   `yaml:"addr"`
		Pprof               bool     `yaml:"pprof"`
		ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
		IdleTimeoutSeconds  int      `yaml:"idle_timeout_seconds"`
		AdminAllowCIDRs     []string `yaml:"admin_allow_cidrs"`
	} `yaml:"server"`
	Chains []Chain `yaml:"chains"`
	Scan   struct {
		Workers           int     `yaml:"workers"`
		IntervalSeconds   int     `yaml:"interval_seconds"`
		MaxHops           int     `yaml:"max_hops"`
		MinProfitBps      float64 `yaml:"min_profit_bps"`
		MinCrossSpreadBps float64 `yaml:"min_cross_spread_bps"`
		MaxPathsPerPair   int     `yaml:"max_paths_per_pair"`
		ComplexityPenalty float64 `yaml:"complexity_penalty"`
		RPCTimeoutSeconds int     `yaml:"rpc_timeout_seconds"`
		ProbeAmountWei    string  `yaml:"probe_amount_wei"`
	} `yaml:"scan"`
	Execution struct {
		Live              bool   `yaml:"live"`
		CooldownSeconds   int    `yaml:"cooldown_seconds"`
		RelayURL          string `yaml:"relay_url"`
		TargetBlockOffset uint64 `yaml:"target_block_offset"`
		Contract          string `yaml:"contract"`
		SignerKey         string `yaml:"-"` // env only, never from file
	} `yaml:"execution"`
	Risk struct {
		CapitalEther       float64 `yaml:"capital_ether"`
		MaxSessionLossFrac float64 `yaml:"max_session_loss_frac"`
		MaxTradeFrac       float64 `yaml:"max_trade_frac"`
	} `yaml:"risk"`
	Breaker struct {
		LossThresholdEther float64 `yaml:"loss_threshold_ether"`
		AutoResetMinutes   int     `yaml:"auto_reset_minutes"`
	} `yaml:"breaker"`
	Slippage struct {
		BaseBps              float64 `yaml:"base_bps"`
		MinBps               float64 `yaml:"min_bps"`
		MaxBps               float64 `yaml:"max_bps"`
		VolatilityMultiplier float64 `yaml:"volatility_multiplier"`
	} `yaml:"slippage"`
	Services struct {
		RankerURL string `yaml:"ranker_url"`
		BridgeURL string `yaml:"bridge_url"`
	} `yaml:"services"`
	Routers    []RouterEntry    `yaml:"routers"`
	Tokens     []TokenEntry     `yaml:"tokens"`
	FlashLoans []FlashLoanEntry `yaml:"flash_loans"`
}

type Chain struct {
	Name            string `yaml:"name"`
	ChainID         uint64 `yaml:"chain_id"`
	RPCURL          string `yaml:"rpc_url"`
	Rollup          bool   `yaml:"rollup"`
	RateLimitPerSec int    `yaml:"rate_limit_per_sec"`
}

type RouterEntry struct {
	Name           string   `yaml:"name"`
	Address        string   `yaml:"address"`
	ChainID        uint64   `yaml:"chain_id"`
	Kind           string   `yaml:"kind"`
	GasLimit       uint64   `yaml:"gas_limit"`
	FeeBps         float64  `yaml:"fee_bps"`
	LiquidityScore float64  `yaml:"liquidity_score"`
	PoolTokens     []string `yaml:"pool_tokens"`
	PoolID         string   `yaml:"pool_id"`
}

type TokenEntry struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	ChainID  uint64 `yaml:"chain_id"`
	Decimals uint8  `yaml:"decimals"`
}

type FlashLoanEntry struct {
	Name    string  `yaml:"name"`
	Kind    string  `yaml:"kind"` // vault | lending_pool
	Address string  `yaml:"address"`
	ChainID uint64  `yaml:"chain_id"`
	FeeBps  float64 `yaml:"fee_bps"`
}

func defaultConfig() Config {
	var c Config
	c.Logging.Level = "info"
	c.Logging.Pretty = false
	c.Server.Addr = ":9090"
	c.Server.Pprof = false
	c.Server.ReadTimeoutSeconds = 5
	c.Server.WriteTimeoutSeconds = 10
	c.Server.IdleTimeoutSeconds = 60
	c.Server.AdminAllowCIDRs = []string{"127.0.0.0/8", "::1/128"}
	c.Scan.Workers = 3
	c.Scan.IntervalSeconds = 5
	c.Scan.MaxHops = 4
	c.Scan.MinProfitBps = 10
	c.Scan.MinCrossSpreadBps = 30
	c.Scan.MaxPathsPerPair = 20
	c.Scan.ComplexityPenalty = 0.0005
	c.Scan.RPCTimeoutSeconds = 10
	c.Scan.ProbeAmountWei = "1000000000000000000" // 1 ether
	c.Execution.Live = false
	c.Execution.CooldownSeconds = 12
	c.Execution.TargetBlockOffset = 1
	c.Risk.CapitalEther = 10
	c.Risk.MaxSessionLossFrac = 0.05
	c.Risk.MaxTradeFrac = 0.25
	c.Breaker.LossThresholdEther = 0.5
	c.Breaker.AutoResetMinutes = 0 // manual reset only
	c.Slippage.BaseBps = 10
	c.Slippage.MinBps = 5
	c.Slippage.MaxBps = 300
	c.Slippage.VolatilityMultiplier = 2.0
	return c
}

// Load layers a YAML file (ARBBOT_CONFIG) and env overrides over defaults.
func Load() Config {
	c := defaultConfig()
	if path := os.Getenv("ARBBOT_CONFIG"); path != "" {
		if b, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(b, &c)
		}
	}
	if v := os.Getenv("ARBBOT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ARBBOT_HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ARBBOT_PPROF"); v == "1" || v == "true" {
		c.Server.Pprof = true
	}
	if v := os.Getenv("ARBBOT_ADMIN_ALLOW_CIDRS"); v != "" {
		c.Server.AdminAllowCIDRs = splitCSV(v)
	}
	if v := os.Getenv("ARBBOT_WORKERS"); v != "" {
		var n int
		_, _ = fmt.Sscan(v, &n)
		if n > 0 {
			c.Scan.Workers = n
		}
	}
	if v := os.Getenv("ARBBOT_SCAN_INTERVAL_SECONDS"); v != "" {
		var n int
		_, _ = fmt.Sscan(v, &n)
		if n > 0 {
			c.Scan.IntervalSeconds = n
		}
	}
	if v := os.Getenv("ARBBOT_MIN_PROFIT_BPS"); v != "" {
		var f float64
		_, _ = fmt.Sscan(v, &f)
		if f > 0 {
			c.Scan.MinProfitBps = f
		}
	}
	if v := os.Getenv("ARBBOT_COOLDOWN_SECONDS"); v != "" {
		var n int
		_, _ = fmt.Sscan(v, &n)
		if n >= 0 {
			c.Execution.CooldownSeconds = n
		}
	}
	if v := os.Getenv("ARBBOT_EXECUTION_LIVE"); v == "1" || v == "true" {
		c.Execution.Live = true
	}
	if v := os.Getenv("ARBBOT_RELAY_URL"); v != "" {
		c.Execution.RelayURL = v
	}
	if v := os.Getenv("ARBBOT_RANKER_URL"); v != "" {
		c.Services.RankerURL = v
	}
	if v := os.Getenv("ARBBOT_BRIDGE_URL"); v != "" {
		c.Services.BridgeURL = v
	}
	if v := os.Getenv("ARBBOT_SIGNER_KEY"); v != "" {
		c.Execution.SignerKey = strings.TrimPrefix(v, "0x")
	}
	return c
}

// Validate fails fast on a malformed configuration, before any worker starts.
func (c Config) Validate() error {
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("scan.workers must be positive, got %d", c.Scan.Workers)
	}
	if c.Scan.IntervalSeconds <= 0 {
		return fmt.Errorf("scan.interval_seconds must be positive, got %d", c.Scan.IntervalSeconds)
	}
	if c.Scan.MaxHops < 2 {
		return fmt.Errorf("scan.max_hops must be at least 2, got %d", c.Scan.MaxHops)
	}
	if c.Execution.CooldownSeconds < 0 {
		return fmt.Errorf("execution.cooldown_seconds must not be negative")
	}
	if c.Slippage.MinBps <= 0 || c.Slippage.MaxBps < c.Slippage.MinBps {
		return fmt.Errorf("slippage bounds invalid: min=%v max=%v", c.Slippage.MinBps, c.Slippage.MaxBps)
	}
	if c.Breaker.LossThresholdEther <= 0 {
		return fmt.Errorf("breaker.loss_threshold_ether must be positive")
	}
	if c.Execution.Live {
		if c.Execution.RelayURL == "" {
			return fmt.Errorf("execution.relay_url required in live mode")
		}
		if c.Execution.Contract == "" {
			return fmt.Errorf("execution.contract required in live mode")
		}
		if c.Execution.SignerKey == "" {
			return fmt.Errorf("ARBBOT_SIGNER_KEY required in live mode")
		}
	}
	if len(c.Chains) == 0 {
		return fmt.Errorf("no chains configured")
	}
	seen := map[uint64]bool{}
	for _, ch := range c.Chains {
		if ch.ChainID == 0 {
			return fmt.Errorf("chain %q has no chain_id", ch.Name)
		}
		if seen[ch.ChainID] {
			return fmt.Errorf("chain id %d configured twice", ch.ChainID)
		}
		seen[ch.ChainID] = true
		if !strings.HasPrefix(ch.RPCURL, "http://") && !strings.HasPrefix(ch.RPCURL, "https://") && !strings.HasPrefix(ch.RPCURL, "ws://") && !strings.HasPrefix(ch.RPCURL, "wss://") {
			return fmt.Errorf("chain %q rpc_url %q is not a valid endpoint", ch.Name, ch.RPCURL)
		}
	}
	for _, r := range c.Routers {
		if !seen[r.ChainID] {
			return fmt.Errorf("router %q references unknown chain id %d", r.Name, r.ChainID)
		}
	}
	for _, t := range c.Tokens {
		if !seen[t.ChainID] {
			return fmt.Errorf("token %q references unknown chain id %d", t.Symbol, t.ChainID)
		}
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
