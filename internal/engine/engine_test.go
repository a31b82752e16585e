package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"engine-core/internal/events"
	"engine-core/internal/order"
	"engine-core/internal/risk"
	"engine-core/internal/signal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProducer struct {
	mu    sync.Mutex
	sig   signal.Signal
	err   error
	panic bool
	calls int
}

func (p *stubProducer) Predict(ctx context.Context, f signal.Features) (signal.Signal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.panic {
		panic("model blew up")
	}
	return p.sig, p.err
}

func (p *stubProducer) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *stubProducer) set(sig signal.Signal, err error) {
	p.mu.Lock()
	p.sig = sig
	p.err = err
	p.mu.Unlock()
}

type stubExecutor struct {
	mu       sync.Mutex
	requests []order.Request
	result   order.Result
	err      error
}

func (e *stubExecutor) Submit(ctx context.Context, req order.Request) (order.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	if e.err != nil {
		return order.Result{}, e.err
	}
	res := e.result
	if res.OrderID == "" {
		res = order.Result{OK: true, OrderID: "test-order"}
	}
	return res, nil
}

func (e *stubExecutor) submitted() []order.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]order.Request, len(e.requests))
	copy(out, e.requests)
	return out
}

func testDeps(producer signal.Producer, executor order.Executor) Deps {
	return Deps{
		Producer: producer,
		Executor: executor,
		Risk:     risk.NewManager(risk.DefaultPolicy(), 10000, zap.NewNop()),
	}
}

func newTestEngine(t *testing.T, deps Deps) *Engine {
	t.Helper()
	e := New("BTCUSDT", Config{CycleInterval: 5 * time.Millisecond, VolWindow: 8}, zap.NewNop(), deps)
	t.Cleanup(func() { _ = e.Stop(time.Second) })
	return e
}

func waitForStatus(t *testing.T, e *Engine, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.Health().Status == want
	}, 2*time.Second, 2*time.Millisecond, "engine never reached %s", want)
}

func TestStartRejectsDoubleStart(t *testing.T) {
	e := newTestEngine(t, testDeps(&stubProducer{}, &stubExecutor{}))

	require.NoError(t, e.Start(context.Background()))
	err := e.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestEngineRunsAndStampsHeartbeat(t *testing.T) {
	e := newTestEngine(t, testDeps(&stubProducer{}, &stubExecutor{}))
	e.Push(events.Tick{Symbol: "BTCUSDT", Price: 100, Ts: time.Now()})

	require.NoError(t, e.Start(context.Background()))
	waitForStatus(t, e, StatusRunning)

	require.Eventually(t, func() bool {
		h := e.Health()
		return h.LastHeartbeat != nil && time.Since(*h.LastHeartbeat) < time.Second
	}, 2*time.Second, 2*time.Millisecond)
}

func TestStopEndsCleanAndAllowsRestart(t *testing.T) {
	e := newTestEngine(t, testDeps(&stubProducer{}, &stubExecutor{}))
	e.Push(events.Tick{Symbol: "BTCUSDT", Price: 100, Ts: time.Now()})

	require.NoError(t, e.Start(context.Background()))
	waitForStatus(t, e, StatusRunning)

	require.NoError(t, e.Stop(time.Second))
	assert.Equal(t, StatusStopped, e.Health().Status)

	// A stopped engine can be started again on the same value.
	require.NoError(t, e.Start(context.Background()))
	waitForStatus(t, e, StatusRunning)
}

func TestStopOnNeverStartedEngineIsNoop(t *testing.T) {
	e := New("BTCUSDT", Config{}, zap.NewNop(), testDeps(&stubProducer{}, &stubExecutor{}))
	assert.NoError(t, e.Stop(time.Second))
	assert.Equal(t, StatusStopped, e.Health().Status)
}

func TestMissingProducerCrashesOnStartup(t *testing.T) {
	deps := testDeps(nil, &stubExecutor{})
	e := newTestEngine(t, deps)

	require.NoError(t, e.Start(context.Background()))
	waitForStatus(t, e, StatusCrashed)
	h := e.Health()
	assert.Contains(t, h.LastError, "producer")
}

func TestPanicInCycleCrashesEngine(t *testing.T) {
	producer := &stubProducer{panic: true}
	e := newTestEngine(t, testDeps(producer, &stubExecutor{}))
	e.Push(events.Tick{Symbol: "BTCUSDT", Price: 100, Ts: time.Now()})

	require.NoError(t, e.Start(context.Background()))
	waitForStatus(t, e, StatusCrashed)
	assert.Contains(t, e.Health().LastError, "panic")
}

func TestCycleFaultsAreAbsorbed(t *testing.T) {
	producer := &stubProducer{err: errors.New("worker unavailable")}
	e := newTestEngine(t, testDeps(producer, &stubExecutor{}))
	e.Push(events.Tick{Symbol: "BTCUSDT", Price: 100, Ts: time.Now()})

	require.NoError(t, e.Start(context.Background()))
	waitForStatus(t, e, StatusRunning)

	// The fault is recorded but the engine keeps cycling.
	require.Eventually(t, func() bool {
		return e.Health().ErrorCount >= 1
	}, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, StatusRunning, e.Health().Status)

	// Once the producer heals, later cycles still run.
	before := producer.callCount()
	producer.set(signal.Signal{Side: signal.SideFlat}, nil)
	require.Eventually(t, func() bool {
		return producer.callCount() > before
	}, 5*time.Second, 5*time.Millisecond)
}

func TestFlatSignalSubmitsNoOrders(t *testing.T) {
	producer := &stubProducer{sig: signal.Signal{Side: signal.SideFlat, ProbUp: 0.5}}
	executor := &stubExecutor{}
	e := newTestEngine(t, testDeps(producer, executor))
	e.Push(events.Tick{Symbol: "BTCUSDT", Price: 100, Ts: time.Now()})

	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool {
		return producer.callCount() >= 3
	}, 2*time.Second, 2*time.Millisecond)

	assert.Empty(t, executor.submitted())
	assert.Equal(t, 0, e.Health().TradeCount)
}

func TestLongSignalOpensPosition(t *testing.T) {
	producer := &stubProducer{sig: signal.Signal{Side: signal.SideLong, ProbUp: 0.7, Confidence: 0.9}}
	executor := &stubExecutor{}
	deps := testDeps(producer, executor)
	e := newTestEngine(t, deps)
	e.Push(events.Tick{Symbol: "BTCUSDT", Price: 100, Ts: time.Now()})

	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool {
		return len(executor.submitted()) >= 1
	}, 2*time.Second, 2*time.Millisecond)

	reqs := executor.submitted()
	assert.Equal(t, "BUY", reqs[0].Side)
	assert.Equal(t, "BTCUSDT", reqs[0].Symbol)
	assert.Greater(t, reqs[0].Notional, 0.0)

	// The risk ledger now carries the open position; no re-entry happens
	// while it is held.
	require.Eventually(t, func() bool {
		return deps.Risk.OpenPositions() == 1
	}, 2*time.Second, 2*time.Millisecond)
}

func TestOpposingSignalFlattensBeforeReversing(t *testing.T) {
	producer := &stubProducer{sig: signal.Signal{Side: signal.SideLong, ProbUp: 0.7, Confidence: 0.9}}
	executor := &stubExecutor{}
	deps := testDeps(producer, executor)
	e := newTestEngine(t, deps)
	e.Push(events.Tick{Symbol: "BTCUSDT", Price: 100, Ts: time.Now()})

	require.NoError(t, e.Start(context.Background()))
	require.Eventually(t, func() bool {
		return deps.Risk.OpenPositions() == 1
	}, 2*time.Second, 2*time.Millisecond)

	producer.set(signal.Signal{Side: signal.SideShort, ProbUp: 0.3, Confidence: 0.9}, nil)

	// The long gets flattened with a SELL before any short entry.
	require.Eventually(t, func() bool {
		for _, r := range executor.submitted()[1:] {
			if r.Side == "SELL" {
				return true
			}
		}
		return false
	}, 2*time.Second, 2*time.Millisecond)
}

func TestPausedEngineSkipsTrading(t *testing.T) {
	producer := &stubProducer{sig: signal.Signal{Side: signal.SideLong, ProbUp: 0.9, Confidence: 1.0}}
	executor := &stubExecutor{}
	e := newTestEngine(t, testDeps(producer, executor))

	require.NoError(t, e.Start(context.Background()))
	waitForStatus(t, e, StatusRunning)
	e.Pause()
	assert.Equal(t, StatusPaused, e.Health().Status)

	// Market data arrives only after the pause, so every cycle that sees a
	// tick is a paused one.
	e.Push(events.Tick{Symbol: "BTCUSDT", Price: 100, Ts: time.Now()})
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, executor.submitted())

	// Heartbeat stays fresh while paused, so the monitor leaves it alone.
	h := e.Health()
	require.NotNil(t, h.LastHeartbeat)
	assert.Less(t, time.Since(*h.LastHeartbeat), time.Second)

	e.Resume()
	require.Eventually(t, func() bool {
		return len(executor.submitted()) > 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestNoMarketDataIsNotAFault(t *testing.T) {
	producer := &stubProducer{sig: signal.Signal{Side: signal.SideLong, ProbUp: 0.7, Confidence: 0.9}}
	e := newTestEngine(t, testDeps(producer, &stubExecutor{}))

	// No tick pushed: the engine idles without counting faults.
	require.NoError(t, e.Start(context.Background()))
	waitForStatus(t, e, StatusRunning)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, e.Health().ErrorCount)
	assert.Equal(t, 0, producer.callCount())

	// Once the feed warms up, cycles proceed as usual.
	e.Push(events.Tick{Symbol: "BTCUSDT", Price: 100, Ts: time.Now()})
	require.Eventually(t, func() bool {
		return producer.callCount() >= 1
	}, 2*time.Second, 2*time.Millisecond)
	assert.Equal(t, 0, e.Health().ErrorCount)
}

func TestStopDuringStartupWinsOverRunning(t *testing.T) {
	e := New("BTCUSDT", Config{CycleInterval: 5 * time.Millisecond}, zap.NewNop(), testDeps(&stubProducer{}, &stubExecutor{}))

	e.mu.Lock()
	e.status = StatusStopping
	e.mu.Unlock()

	assert.False(t, e.promoteToRunning())
	assert.Equal(t, StatusStopping, e.Health().Status)
}

func TestRapidStartStopSettlesStopped(t *testing.T) {
	e := New("BTCUSDT", Config{CycleInterval: 5 * time.Millisecond}, zap.NewNop(), testDeps(&stubProducer{}, &stubExecutor{}))

	for i := 0; i < 20; i++ {
		require.NoError(t, e.Start(context.Background()))
		require.NoError(t, e.Stop(time.Second))
		assert.Equal(t, StatusStopped, e.Health().Status)
	}
}

func TestBackoffCapsAtCeiling(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoffFor(1))
	assert.Equal(t, 8*time.Second, backoffFor(3))
	assert.Equal(t, 60*time.Second, backoffFor(6))
	assert.Equal(t, 60*time.Second, backoffFor(50))
}
