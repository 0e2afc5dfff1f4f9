package coordinator

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"arbbot/internal/arb"
	"arbbot/internal/validate"

	"github.com/rs/zerolog"
)

type approveAll struct{}

func (approveAll) Validate(ctx context.Context, opp arb.Opportunity) (arb.ValidationResult, error) {
	return arb.ValidationResult{
		Approved: true,
		Params:   arb.ExecutionParams{SlippageBps: 10, MinProfitWei: big.NewInt(0)},
	}, nil
}

type recordingDispatcher struct {
	mu       sync.Mutex
	executed []string
	result   arb.ExecutionResult
	err      error
}

func (d *recordingDispatcher) Execute(ctx context.Context, opp arb.Opportunity, p arb.ExecutionParams) (arb.ExecutionResult, error) {
	d.mu.Lock()
	d.executed = append(d.executed, opp.ID)
	d.mu.Unlock()
	return d.result, d.err
}

func (d *recordingDispatcher) ids() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string{}, d.executed...)
}

func testOpp(id string, profitWei int64) arb.Opportunity {
	return arb.Opportunity{
		ID:             id,
		AmountIn:       big.NewInt(1e9),
		ExpectedProfit: big.NewInt(profitWei),
		ChainID:        1,
		DiscoveredAt:   time.Now(),
		Confidence:     0.9,
		Strategy:       arb.StrategyDirect,
	}
}

func newTestCoordinator(d Dispatcher, breaker *CircuitBreaker, cooldown time.Duration, workers int) *Coordinator {
	in := make(chan arb.Opportunity, 16)
	return New(in, approveAll{}, d, breaker, nil, cooldown, workers, zerolog.Nop())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatchRanksByExpectedProfit(t *testing.T) {
	d := &recordingDispatcher{result: arb.ExecutionResult{Success: true, Profit: big.NewInt(1)}}
	c := newTestCoordinator(d, NewCircuitBreaker(1, 0), 0, 1)

	c.admit(testOpp("low", 100))
	c.admit(testOpp("high", 300))
	c.admit(testOpp("mid", 200))

	c.dispatchBatch(context.Background())
	waitFor(t, func() bool { return len(d.ids()) == 1 })
	if got := d.ids()[0]; got != "high" {
		t.Fatalf("dispatched %q, want the most profitable candidate", got)
	}
}

func TestCooldownDefersInsteadOfDropping(t *testing.T) {
	d := &recordingDispatcher{result: arb.ExecutionResult{Success: true, Profit: big.NewInt(1)}}
	c := newTestCoordinator(d, NewCircuitBreaker(1, 0), time.Hour, 4)

	c.admit(testOpp("first", 300))
	c.admit(testOpp("second", 200))

	c.dispatchBatch(context.Background())
	waitFor(t, func() bool { return len(d.ids()) == 1 })
	if len(c.pending) != 1 {
		t.Fatalf("pending = %d, want the cooled-down candidate carried over", len(c.pending))
	}
	if c.pending[0].ID != "second" {
		t.Fatalf("carried %q, want second", c.pending[0].ID)
	}

	// Still inside the window on the next tick: nothing new dispatches.
	c.dispatchBatch(context.Background())
	if len(d.ids()) != 1 {
		t.Fatalf("executed %d, want still 1 during cooldown", len(d.ids()))
	}
}

func TestBreakerBlocksUntilReset(t *testing.T) {
	d := &recordingDispatcher{result: arb.ExecutionResult{Success: true, Profit: big.NewInt(1)}}
	breaker := NewCircuitBreaker(0.5, 0)
	c := newTestCoordinator(d, breaker, 0, 4)

	breaker.RecordLoss(0.6, time.Now())
	if !breaker.Tripped(time.Now()) {
		t.Fatal("breaker should be tripped")
	}

	c.admit(testOpp("blocked", 1e15))
	if len(c.pending) != 0 {
		t.Fatal("tripped breaker must drop candidates at admission")
	}
	if c.Snapshot().RejectedByReason["breaker_tripped"] != 1 {
		t.Fatal("rejection not recorded")
	}

	breaker.Reset()
	c.admit(testOpp("allowed", 1e15))
	c.dispatchBatch(context.Background())
	waitFor(t, func() bool { return len(d.ids()) == 1 })
	if d.ids()[0] != "allowed" {
		t.Fatalf("dispatched %q after reset, want allowed", d.ids()[0])
	}
}

func TestCrossChainCandidatesAreDeferred(t *testing.T) {
	d := &recordingDispatcher{}
	c := newTestCoordinator(d, NewCircuitBreaker(1, 0), 0, 4)

	opp := testOpp("xchain", 500)
	opp.Strategy = arb.StrategyCrossChain
	c.admit(opp)
	c.dispatchBatch(context.Background())

	if len(d.ids()) != 0 {
		t.Fatal("cross-chain candidate must not dispatch")
	}
	if c.Snapshot().RejectedByReason["cross_chain_deferred"] != 1 {
		t.Fatal("deferral not recorded")
	}
}

func TestSettleRecordsLossOnBreaker(t *testing.T) {
	d := &recordingDispatcher{}
	breaker := NewCircuitBreaker(0.5, 0)
	c := newTestCoordinator(d, breaker, 0, 4)

	// A successful settle with a realized loss of 0.6 ETH trips the breaker.
	loss, _ := new(big.Float).Mul(big.NewFloat(-0.6), big.NewFloat(1e18)).Int(nil)
	c.settle(executionReport{
		opp: testOpp("lossy", 100),
		res: arb.ExecutionResult{Success: true, Profit: loss, GasUsed: 200_000},
	})

	if !breaker.Tripped(time.Now()) {
		t.Fatal("realized loss past threshold must trip the breaker")
	}
	st := c.Snapshot()
	if !st.BreakerTripped {
		t.Fatal("status must reflect the tripped breaker")
	}
	if st.NetProfitEther > -0.59 {
		t.Fatalf("net profit %f, want about -0.6", st.NetProfitEther)
	}
}

func TestSettleFeedsSessionLossBudget(t *testing.T) {
	d := &recordingDispatcher{}
	risk := validate.NewRiskAssessor(10, 0.05, 0.25) // 0.5 ETH loss budget
	in := make(chan arb.Opportunity, 16)
	c := New(in, approveAll{}, d, NewCircuitBreaker(5, 0), risk, 0, 4, zerolog.Nop())

	loss, _ := new(big.Float).Mul(big.NewFloat(-0.45), big.NewFloat(1e18)).Int(nil)
	c.settle(executionReport{
		opp: testOpp("burned", 100),
		res: arb.ExecutionResult{Success: false, Profit: loss, GasUsed: 400_000},
		err: arb.ErrExecutionReverted,
	})

	if got := risk.SessionLoss(); got < 0.44 || got > 0.46 {
		t.Fatalf("session loss %.4f, want the settled 0.45 ETH burn", got)
	}

	// The next trade's worst-case gas burn would push the session past the
	// budget, so the risk stage refuses it.
	gas, _ := new(big.Float).Mul(big.NewFloat(0.1), big.NewFloat(1e18)).Int(nil)
	res := risk.AssessTradeRisk(validate.RiskInput{
		AmountIn:       big.NewInt(1e18),
		ExpectedProfit: big.NewInt(1e16),
		GasCost:        gas,
		Strategy:       arb.StrategyDirect,
		ChainID:        1,
		Confidence:     0.9,
	})
	if res.Approved {
		t.Fatal("risk stage must reject once realized losses exhaust the budget")
	}
}

// blockingDispatcher parks every execution until released, simulating slow
// relay round trips.
type blockingDispatcher struct {
	recordingDispatcher
	release chan struct{}
}

func (d *blockingDispatcher) Execute(ctx context.Context, opp arb.Opportunity, p arb.ExecutionParams) (arb.ExecutionResult, error) {
	res, err := d.recordingDispatcher.Execute(ctx, opp, p)
	<-d.release
	return res, err
}

func TestInFlightExecutionsHoldWorkerSlots(t *testing.T) {
	d := &blockingDispatcher{
		recordingDispatcher: recordingDispatcher{result: arb.ExecutionResult{Success: true, Profit: big.NewInt(1)}},
		release:             make(chan struct{}),
	}
	c := newTestCoordinator(d, NewCircuitBreaker(1, 0), 0, 1)

	c.admit(testOpp("first", 300))
	c.admit(testOpp("second", 200))

	c.dispatchBatch(context.Background())
	waitFor(t, func() bool { return len(d.ids()) == 1 })

	// The single slot is still occupied on the next tick even with no
	// cooldown in force.
	c.dispatchBatch(context.Background())
	if len(d.ids()) != 1 {
		t.Fatalf("executed %d concurrently with one worker, want 1", len(d.ids()))
	}
	if len(c.pending) != 1 || c.pending[0].ID != "second" {
		t.Fatal("the blocked candidate must stay pending")
	}

	close(d.release)
	c.settle(<-c.resultCh)
	c.dispatchBatch(context.Background())
	waitFor(t, func() bool { return len(d.ids()) == 2 })
	if got := d.ids()[1]; got != "second" {
		t.Fatalf("dispatched %q after the slot freed, want second", got)
	}
}

func TestRunLoopEndToEnd(t *testing.T) {
	d := &recordingDispatcher{result: arb.ExecutionResult{Success: true, Profit: big.NewInt(1e15), GasUsed: 180_000}}
	in := make(chan arb.Opportunity, 16)
	c := New(in, approveAll{}, d, NewCircuitBreaker(1, 0), nil, 0, 2, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()

	in <- testOpp("live", 1e15)
	waitFor(t, func() bool { return c.Snapshot().Executed == 1 })

	cancel()
	<-done
}
