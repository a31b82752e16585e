package recovery

import (
	"fmt"
	"sync"
	"time"
)

const window = time.Hour

// Policy is the single gate for all restarts, manual and automatic. It keeps
// a rolling one-hour restart history per symbol; admission consumes a slot,
// refusal does not.
type Policy struct {
	mu          sync.Mutex
	maxPerHour  int
	backoffBase time.Duration
	history     map[string][]time.Time
	now         func() time.Time
}

// New builds a policy with the given restart-rate ceiling and backoff base.
func New(maxPerHour int, backoffBase time.Duration) *Policy {
	if maxPerHour <= 0 {
		maxPerHour = 5
	}
	if backoffBase <= 0 {
		backoffBase = time.Minute
	}
	return &Policy{
		maxPerHour:  maxPerHour,
		backoffBase: backoffBase,
		history:     make(map[string][]time.Time),
		now:         time.Now,
	}
}

// ShouldRecover decides whether symbol may restart now. The history is pruned
// to the live window before every decision. A refusal reports why; it is a
// normal "not yet" outcome, not an error.
func (p *Policy) ShouldRecover(symbol string) (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	recent := prune(p.history[symbol], now)
	p.history[symbol] = recent

	if len(recent) >= p.maxPerHour {
		return false, fmt.Sprintf("restart rate ceiling reached: %d in the last hour", len(recent))
	}

	if attempts := len(recent); attempts > 0 {
		required := p.backoffBase * (1 << (attempts - 1))
		elapsed := now.Sub(recent[attempts-1])
		if elapsed < required {
			return false, fmt.Sprintf("backoff not elapsed: %s of %s", elapsed.Round(time.Second), required)
		}
	}

	p.history[symbol] = append(recent, now)
	return true, ""
}

// Attempts returns the live-window restart count for a symbol.
func (p *Policy) Attempts(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	recent := prune(p.history[symbol], p.now())
	p.history[symbol] = recent
	return len(recent)
}

// Reset clears a symbol's history (manual operator intervention).
func (p *Policy) Reset(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.history, symbol)
}

func prune(ts []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-window)
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
