package coordinator

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"time"

	"arbbot/internal/arb"
	"arbbot/internal/infra/metrics"

	"github.com/ethereum/go-ethereum/params"
	"github.com/rs/zerolog"
)

// Dispatcher executes one validated opportunity. The production implementation
// is the executor; tests substitute fakes.
type Dispatcher interface {
	Execute(ctx context.Context, opp arb.Opportunity, p arb.ExecutionParams) (arb.ExecutionResult, error)
}

// Validator gates an opportunity before dispatch. Satisfied by the validation
// pipeline.
type Validator interface {
	Validate(ctx context.Context, opp arb.Opportunity) (arb.ValidationResult, error)
}

// ResultRecorder receives settled PnL so the session loss budget tracks
// realized results, not just the breaker. Satisfied by the risk assessor.
type ResultRecorder interface {
	RecordResult(profitEther float64)
}

// WorkerState aggregates one scanner's counters. Owned by the coordinator
// loop, merged read-only into status snapshots.
type WorkerState struct {
	OpportunitiesFound   int64   `json:"opportunities_found"`
	ExecutionsAttempted  int64   `json:"executions_attempted"`
	ExecutionsSuccessful int64   `json:"executions_successful"`
	TotalProfitEther     float64 `json:"total_profit_ether"`
	TotalGasUsed         uint64  `json:"total_gas_used"`
}

// Status is the operator-facing aggregate snapshot.
type Status struct {
	Found            int64                `json:"opportunities_found"`
	Executed         int64                `json:"opportunities_executed"`
	RejectedByReason map[string]int64     `json:"rejected_by_reason"`
	Stale            int64                `json:"stale"`
	BreakerTripped   bool                 `json:"breaker_tripped"`
	BreakerLossEther float64              `json:"breaker_loss_ether"`
	NetProfitEther   float64              `json:"net_profit_ether"`
	Workers          map[int]*WorkerState `json:"workers"`
}

// Coordinator aggregates candidates from all scanners, enforces the global
// cooldown and the circuit breaker, and dispatches the best candidates to the
// executor. All cross-worker mutable state lives inside its single loop;
// scanners and executions talk to it only through channels.
type Coordinator struct {
	in          <-chan arb.Opportunity
	pipeline    Validator
	dispatcher  Dispatcher
	breaker     *CircuitBreaker
	recorder    ResultRecorder
	cooldown    time.Duration
	workerCount int
	logger      zerolog.Logger

	resetCh   chan struct{}
	resultCh  chan executionReport
	inFlight  map[string]bool
	pending   []arb.Opportunity
	lastExec  time.Time
	netProfit float64

	mu     sync.RWMutex
	status Status
}

type executionReport struct {
	opp arb.Opportunity
	res arb.ExecutionResult
	err error
}

func New(in <-chan arb.Opportunity, pipeline Validator, dispatcher Dispatcher, breaker *CircuitBreaker, recorder ResultRecorder, cooldown time.Duration, workerCount int, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		in:          in,
		pipeline:    pipeline,
		dispatcher:  dispatcher,
		breaker:     breaker,
		recorder:    recorder,
		cooldown:    cooldown,
		workerCount: workerCount,
		logger:      logger,
		resetCh:     make(chan struct{}, 1),
		resultCh:    make(chan executionReport, 64),
		inFlight:    map[string]bool{},
		status:      Status{RejectedByReason: map[string]int64{}, Workers: map[int]*WorkerState{}},
	}
}

// ResetBreaker requests a manual breaker reset; processed by the loop.
func (c *Coordinator) ResetBreaker() {
	select {
	case c.resetCh <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the aggregate status.
func (c *Coordinator) Snapshot() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.status
	out.RejectedByReason = map[string]int64{}
	for k, v := range c.status.RejectedByReason {
		out.RejectedByReason[k] = v
	}
	out.Workers = map[int]*WorkerState{}
	for k, v := range c.status.Workers {
		ws := *v
		out.Workers[k] = &ws
	}
	return out
}

// Run is the aggregation loop. Candidates buffer until the dispatch tick,
// then the batch is ranked by expected profit and dispatched under cooldown.
func (c *Coordinator) Run(ctx context.Context) error {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case opp := <-c.in:
			c.admit(opp)
		case rep := <-c.resultCh:
			c.settle(rep)
		case <-c.resetCh:
			c.breaker.Reset()
			c.logger.Warn().Msg("circuit breaker manually reset")
		case <-tick.C:
			c.dispatchBatch(ctx)
		}
	}
}

func (c *Coordinator) admit(opp arb.Opportunity) {
	c.mu.Lock()
	c.status.Found++
	ws := c.workerState(opp.Worker)
	ws.OpportunitiesFound++
	c.mu.Unlock()

	if c.breaker.Tripped(time.Now()) {
		c.reject("breaker_tripped")
		return
	}
	c.pending = append(c.pending, opp)
}

// workerState must be called with c.mu held.
func (c *Coordinator) workerState(worker int) *WorkerState {
	ws, ok := c.status.Workers[worker]
	if !ok {
		ws = &WorkerState{}
		c.status.Workers[worker] = ws
	}
	return ws
}

func (c *Coordinator) reject(reason string) {
	metrics.OpportunitiesRejected.WithLabelValues(reason).Inc()
	c.mu.Lock()
	c.status.RejectedByReason[reason]++
	c.mu.Unlock()
}

// dispatchBatch ranks the buffered candidates and dispatches up to one slot
// per worker, spacing dispatches by the global cooldown. Candidates blocked
// only by the cooldown stay pending for the next batch rather than being
// dropped.
func (c *Coordinator) dispatchBatch(ctx context.Context) {
	now := time.Now()
	if len(c.pending) == 0 {
		c.syncBreakerStatus()
		return
	}
	if c.breaker.Tripped(now) {
		for range c.pending {
			c.reject("breaker_tripped")
		}
		c.pending = nil
		c.syncBreakerStatus()
		return
	}

	sort.SliceStable(c.pending, func(i, j int) bool {
		cmp := c.pending[i].ExpectedProfit.Cmp(c.pending[j].ExpectedProfit)
		if cmp != 0 {
			return cmp > 0
		}
		return c.pending[i].ID < c.pending[j].ID // deterministic tie-break
	})

	// Executions still in flight from earlier batches hold their slot until
	// they settle, so concurrency never exceeds the worker count.
	free := c.workerCount - len(c.inFlight)

	var carry []arb.Opportunity
	dispatched := 0
	for idx, opp := range c.pending {
		if dispatched >= free {
			// Out of slots this batch; keep the rest for the next tick.
			carry = append(carry, c.pending[idx:]...)
			break
		}
		if opp.Strategy == arb.StrategyCrossChain {
			// Bridge settlement is external; cross-chain spreads are
			// surfaced but not bundled on a single relay.
			c.reject("cross_chain_deferred")
			continue
		}
		if c.inFlight[opp.ID] {
			continue
		}
		if time.Since(opp.DiscoveredAt) > 2*c.cooldown+30*time.Second {
			c.reject("expired_in_queue")
			continue
		}
		if now.Sub(c.lastExec) < c.cooldown {
			metrics.CooldownDeferrals.Inc()
			carry = append(carry, opp)
			continue
		}

		res, err := c.pipeline.Validate(ctx, opp)
		if err != nil {
			if !errors.Is(err, arb.ErrValidationRejected) {
				c.logger.Error().Err(err).Str("opportunity", opp.ID).Msg("validation error")
			} else {
				c.logger.Info().Err(err).Str("opportunity", opp.ID).Msg("opportunity rejected")
			}
			var rej *arb.RejectionError
			if errors.As(err, &rej) {
				c.reject(rej.Stage)
			} else {
				c.reject("validation")
			}
			continue
		}

		// Optimistic cooldown update at dispatch time: a slower-ranked
		// candidate in this batch defers instead of racing the window.
		c.lastExec = now
		c.inFlight[opp.ID] = true
		dispatched++
		c.mu.Lock()
		c.workerState(opp.Worker).ExecutionsAttempted++
		c.mu.Unlock()
		go c.execute(ctx, opp, res.Params)
	}
	c.pending = carry
	c.syncBreakerStatus()
}

func (c *Coordinator) execute(ctx context.Context, opp arb.Opportunity, p arb.ExecutionParams) {
	res, err := c.dispatcher.Execute(ctx, opp, p)
	select {
	case c.resultCh <- executionReport{opp: opp, res: res, err: err}:
	case <-ctx.Done():
	}
}

func (c *Coordinator) settle(rep executionReport) {
	delete(c.inFlight, rep.opp.ID)
	now := time.Now()
	switch {
	case rep.err != nil && errors.Is(rep.err, arb.ErrStaleOpportunity):
		metrics.OpportunitiesStale.Inc()
		c.mu.Lock()
		c.status.Stale++
		c.mu.Unlock()
	case rep.err != nil && errors.Is(rep.err, arb.ErrExecutionReverted):
		gasLoss := weiToEther(rep.res.Profit)
		c.breaker.RecordLoss(-gasLoss, now)
		c.applyResult(rep.opp.Worker, rep.res, false)
		c.reject("execution_reverted")
	case rep.err != nil:
		c.logger.Warn().Err(rep.err).Str("opportunity", rep.opp.ID).Msg("execution failed")
		c.reject("execution_error")
	default:
		metrics.OpportunitiesExecuted.Inc()
		profit := weiToEther(rep.res.Profit)
		if profit < 0 {
			c.breaker.RecordLoss(-profit, now)
		}
		c.applyResult(rep.opp.Worker, rep.res, true)
		c.mu.Lock()
		c.status.Executed++
		c.mu.Unlock()
	}
	c.syncBreakerStatus()
}

func (c *Coordinator) applyResult(worker int, res arb.ExecutionResult, success bool) {
	profit := weiToEther(res.Profit)
	c.netProfit += profit
	if c.recorder != nil {
		c.recorder.RecordResult(profit)
	}
	metrics.NetProfitEther.Set(c.netProfit)
	c.mu.Lock()
	ws := c.workerState(worker)
	if success {
		ws.ExecutionsSuccessful++
	}
	ws.TotalProfitEther += profit
	ws.TotalGasUsed += res.GasUsed
	c.status.NetProfitEther = c.netProfit
	c.mu.Unlock()
}

func (c *Coordinator) syncBreakerStatus() {
	c.mu.Lock()
	c.status.BreakerTripped = c.breaker.Tripped(time.Now())
	c.status.BreakerLossEther = c.breaker.CumulativeLoss()
	c.mu.Unlock()
}

func weiToEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether)).Float64()
	return f
}
