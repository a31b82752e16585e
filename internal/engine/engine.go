package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"engine-core/internal/events"
	"engine-core/internal/order"
	"engine-core/internal/risk"
	"engine-core/internal/signal"

	"go.uber.org/zap"
)

const maxBackoff = 60 * time.Second

// Config holds the per-symbol settings an engine is constructed with.
type Config struct {
	CycleInterval time.Duration
	VolWindow     int
}

// HealthStore receives engine health snapshots. Implementations must be
// best-effort: a failed persist is the store's problem, never the engine's.
type HealthStore interface {
	Register(ctx context.Context, h Health)
	Update(ctx context.Context, h Health)
	Unregister(ctx context.Context, symbol string)
}

// Observer receives cycle timings for process-level metrics.
type Observer interface {
	ObserveCycle(d time.Duration)
	ObserveFault()
}

// Deps are the collaborators an engine trades through.
type Deps struct {
	Producer signal.Producer
	Executor order.Executor
	Risk     *risk.Manager
	Registry HealthStore
	Observer Observer
}

// Engine runs the trade cycle for a single symbol: pull the latest tick, ask
// the model for a signal, gate it through risk, execute, persist, sleep.
// Iterations are strictly sequential; a slow cycle delays the next one.
type Engine struct {
	symbol string
	cfg    Config
	log    *zap.Logger
	deps   Deps

	mu            sync.RWMutex
	status        Status
	startedAt     time.Time
	lastHeartbeat *time.Time
	errorCount    int
	lastError     string
	tradeCount    int
	latest        *events.Tick

	// run-goroutine-only state
	vol        *volWindow
	entryPrice float64

	stopOnce sync.Once
	stopCh   chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// New constructs an engine. The (symbol, cfg, log) triple is immutable for
// the engine's lifetime.
func New(symbol string, cfg Config, log *zap.Logger, deps Deps) *Engine {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 5 * time.Second
	}
	return &Engine{
		symbol: symbol,
		cfg:    cfg,
		log:    log.With(zap.String("symbol", symbol)),
		deps:   deps,
		status: StatusStopped,
		vol:    newVolWindow(cfg.VolWindow),
	}
}

// Symbol returns the engine's immutable identity.
func (e *Engine) Symbol() string { return e.symbol }

// Start launches the cycle as an independent goroutine and returns without
// waiting for the first iteration.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.status != StatusStopped {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrAlreadyRunning, e.symbol, e.status)
	}
	e.status = StatusStarting
	e.startedAt = time.Now()
	e.errorCount = 0
	e.lastError = ""
	e.stopOnce = sync.Once{}
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	go e.run(runCtx)
	return nil
}

// Stop signals the cycle to exit at its next checkpoint, waits up to timeout
// for a clean join, then cancels the run context. The engine always ends
// STOPPED and cleanup runs on every exit path.
func (e *Engine) Stop(timeout time.Duration) error {
	e.mu.Lock()
	if e.status == StatusStopped {
		e.mu.Unlock()
		return nil
	}
	e.status = StatusStopping
	done := e.done
	cancel := e.cancel
	e.mu.Unlock()

	e.stopOnce.Do(func() { close(e.stopCh) })

	forced := false
	select {
	case <-done:
	case <-time.After(timeout):
		forced = true
		cancel()
		<-done
	}

	e.mu.Lock()
	e.status = StatusStopped
	e.mu.Unlock()

	if forced {
		e.log.Warn("engine stop forced after timeout", zap.Duration("timeout", timeout))
	}
	return nil
}

// Pause suspends trading while keeping the heartbeat alive. Reserved for
// operator use; the supervision loop never pauses engines.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusRunning {
		e.status = StatusPaused
	}
}

// Resume reverses Pause.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusPaused {
		e.status = StatusRunning
	}
}

// Push hands the engine the newest market snapshot. Never blocks; the cycle
// reads whatever is latest when it wakes.
func (e *Engine) Push(t events.Tick) {
	e.mu.Lock()
	e.latest = &t
	e.mu.Unlock()
}

// Health assembles the current snapshot from in-memory fields.
func (e *Engine) Health() Health {
	e.mu.RLock()
	h := Health{
		Symbol:     e.symbol,
		Status:     e.status,
		ErrorCount: e.errorCount,
		LastError:  e.lastError,
		TradeCount: e.tradeCount,
	}
	switch e.status {
	case StatusStarting, StatusRunning, StatusPaused, StatusStopping:
		h.UptimeSeconds = time.Since(e.startedAt).Seconds()
	}
	if e.lastHeartbeat != nil {
		t := *e.lastHeartbeat
		h.LastHeartbeat = &t
	}
	e.mu.RUnlock()

	if e.deps.Risk != nil {
		st := e.deps.Risk.SymbolSnapshot(e.symbol)
		h.Position = st.OpenPosition
		h.DailyPnL = st.RealizedToday
		h.TotalPnL = st.RealizedTotal
	}
	return h
}

// run is the cycle wrapper. Per-iteration faults are absorbed with backoff;
// only a fault escaping this wrapper (panic, failed startup) crashes the
// engine, leaving resurrection to the health monitor.
func (e *Engine) run(ctx context.Context) {
	crashed := false
	defer func() {
		if r := recover(); r != nil {
			crashed = true
			e.recordFault(fmt.Errorf("cycle panic: %v", r))
			e.log.Error("engine crashed", zap.Any("panic", r))
		}
		e.finish(crashed)
		close(e.done)
	}()

	if err := e.startup(); err != nil {
		crashed = true
		e.recordFault(err)
		e.log.Error("engine startup failed", zap.Error(err))
		return
	}

	if !e.promoteToRunning() {
		return
	}
	if e.deps.Registry != nil {
		e.deps.Registry.Register(ctx, e.Health())
	}
	e.log.Info("engine running", zap.Duration("cycle_interval", e.cfg.CycleInterval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		default:
		}

		began := time.Now()
		e.stampHeartbeat()

		if err := e.iterate(ctx); err != nil {
			n := e.recordFault(err)
			if e.deps.Observer != nil {
				e.deps.Observer.ObserveFault()
			}
			backoff := backoffFor(n)
			e.log.Warn("cycle fault",
				zap.Error(err),
				zap.Int("error_count", n),
				zap.Duration("backoff", backoff))
			if !e.sleep(ctx, backoff) {
				return
			}
			continue
		}

		if e.deps.Observer != nil {
			e.deps.Observer.ObserveCycle(time.Since(began))
		}
		if !e.sleep(ctx, e.cfg.CycleInterval) {
			return
		}
	}
}

// startup validates collaborators before the first iteration; failures here
// are fatal by design.
func (e *Engine) startup() error {
	if e.deps.Producer == nil {
		return errors.New("signal producer not configured")
	}
	if e.deps.Executor == nil {
		return errors.New("order executor not configured")
	}
	if e.deps.Risk == nil {
		return errors.New("risk manager not configured")
	}
	return nil
}

func (e *Engine) iterate(ctx context.Context) error {
	tick, ok := e.latestTick()
	if !ok {
		// A cold or slow feed is not an engine fault; wait for data.
		e.log.Debug("no market data yet")
		return nil
	}
	e.vol.push(tick.Price)

	if e.currentStatus() == StatusPaused {
		e.persist(ctx)
		return nil
	}

	sig, err := e.deps.Producer.Predict(ctx, signal.Features{
		Symbol:    e.symbol,
		Price:     tick.Price,
		Window:    e.vol.snapshot(),
		VolAnnual: e.vol.annualized(e.cfg.CycleInterval),
	})
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}

	st := e.deps.Risk.SymbolSnapshot(e.symbol)

	// Flatten first when the model disagrees with the held direction.
	if st.OpenPosition != 0 && (sig.Side == signal.SideFlat || opposes(sig.Side, st.OpenPosition)) {
		if err := e.closePosition(ctx, tick, st); err != nil {
			return err
		}
		st = e.deps.Risk.SymbolSnapshot(e.symbol)
	}

	if sig.Side != signal.SideFlat && st.OpenPosition == 0 {
		if dec := e.deps.Risk.Admit(e.symbol); !dec.Allowed {
			e.log.Debug("trade blocked", zap.String("reason", dec.Reason))
		} else if err := e.executeOrder(ctx, tick, sig); err != nil {
			return err
		}
	}

	e.persist(ctx)
	return nil
}

func (e *Engine) executeOrder(ctx context.Context, tick events.Tick, sig signal.Signal) error {
	volAnn := e.vol.annualized(e.cfg.CycleInterval)
	size := e.deps.Risk.CalcPositionSize(e.symbol, sig.ProbUp, sig.Confidence, volAnn)
	notional := size * e.deps.Risk.Book().EquityNow
	if notional <= 0 {
		return nil
	}

	side := "BUY"
	if sig.Side == signal.SideShort {
		side = "SELL"
	}

	res, err := e.deps.Executor.Submit(ctx, order.Request{
		Symbol:   e.symbol,
		Side:     side,
		Notional: notional,
	})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if !res.OK {
		e.log.Warn("order rejected", zap.String("reason", res.Reason))
		return nil
	}

	e.deps.Risk.OnOrderFilled(e.symbol, side, notional)
	e.entryPrice = tick.Price
	e.incTrades()
	e.log.Info("position opened",
		zap.String("side", side),
		zap.Float64("notional", notional),
		zap.Float64("size_fraction", size),
		zap.Float64("prob_up", sig.ProbUp),
		zap.Float64("confidence", sig.Confidence))
	return nil
}

func (e *Engine) closePosition(ctx context.Context, tick events.Tick, st risk.SymbolState) error {
	side := "SELL"
	if st.OpenPosition < 0 {
		side = "BUY"
	}
	notional := math.Abs(st.OpenPosition)

	res, err := e.deps.Executor.Submit(ctx, order.Request{
		Symbol:   e.symbol,
		Side:     side,
		Notional: notional,
	})
	if err != nil {
		return fmt.Errorf("close submit: %w", err)
	}
	if !res.OK {
		e.log.Warn("close rejected", zap.String("reason", res.Reason))
		return nil
	}

	var realized float64
	if e.entryPrice > 0 {
		move := (tick.Price - e.entryPrice) / e.entryPrice
		if st.OpenPosition < 0 {
			move = -move
		}
		realized = move * notional
	}
	e.deps.Risk.OnPositionClosed(e.symbol, realized)
	e.entryPrice = 0
	e.incTrades()
	e.log.Info("position closed",
		zap.Float64("notional", notional),
		zap.Float64("realized_pnl", realized))
	return nil
}

func (e *Engine) persist(ctx context.Context) {
	if e.deps.Registry != nil {
		e.deps.Registry.Update(ctx, e.Health())
	}
}

// finish is the cleanup step shared by every exit path.
func (e *Engine) finish(crashed bool) {
	e.mu.Lock()
	if crashed {
		e.status = StatusCrashed
	} else {
		e.status = StatusStopped
	}
	e.mu.Unlock()

	if e.deps.Registry != nil {
		// Best-effort final snapshot; the run context may already be gone.
		ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancelFn()
		e.deps.Registry.Update(ctx, e.Health())
	}
	e.log.Info("engine exited", zap.Bool("crashed", crashed))
}

func (e *Engine) latestTick() (events.Tick, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.latest == nil {
		return events.Tick{}, false
	}
	return *e.latest, true
}

func (e *Engine) stampHeartbeat() {
	now := time.Now()
	e.mu.Lock()
	e.lastHeartbeat = &now
	e.mu.Unlock()
}

func (e *Engine) recordFault(err error) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorCount++
	e.lastError = err.Error()
	return e.errorCount
}

func (e *Engine) incTrades() {
	e.mu.Lock()
	e.tradeCount++
	e.mu.Unlock()
}

// promoteToRunning moves STARTING to RUNNING unless a stop arrived during
// the startup window; STOPPING is never overwritten.
func (e *Engine) promoteToRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusStarting {
		return false
	}
	select {
	case <-e.stopCh:
		return false
	default:
	}
	e.status = StatusRunning
	return true
}

func (e *Engine) currentStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// sleep waits for d or an exit signal; it reports false when the engine
// should stop.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-e.stopCh:
		return false
	case <-t.C:
		return true
	}
}

func backoffFor(errorCount int) time.Duration {
	secs := math.Min(math.Pow(2, float64(errorCount)), maxBackoff.Seconds())
	return time.Duration(secs * float64(time.Second))
}

func opposes(side signal.Side, position float64) bool {
	return (side == signal.SideLong && position < 0) ||
		(side == signal.SideShort && position > 0)
}
