package engine

import (
	"math"
	"time"
)

// volWindow computes annualized realized volatility from a rolling window of
// log returns sampled once per cycle.
type volWindow struct {
	prices []float64
	max    int
}

func newVolWindow(size int) *volWindow {
	if size <= 0 {
		size = 64
	}
	return &volWindow{max: size}
}

func (w *volWindow) push(price float64) {
	if price <= 0 {
		return
	}
	if len(w.prices) >= w.max {
		w.prices = w.prices[1:]
	}
	w.prices = append(w.prices, price)
}

// annualized scales the sample volatility of log returns by the number of
// cycle periods in a year. Returns 0 until at least three samples exist; the
// risk manager treats 0 as "no vol information" via its epsilon floor.
func (w *volWindow) annualized(cycle time.Duration) float64 {
	n := len(w.prices)
	if n < 3 || cycle <= 0 {
		return 0
	}

	returns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if w.prices[i-1] > 0 {
			returns = append(returns, math.Log(w.prices[i]/w.prices[i-1]))
		}
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	periodsPerYear := float64(365*24*time.Hour) / float64(cycle)
	return math.Sqrt(variance) * math.Sqrt(periodsPerYear)
}

func (w *volWindow) snapshot() []float64 {
	out := make([]float64, len(w.prices))
	copy(out, w.prices)
	return out
}
