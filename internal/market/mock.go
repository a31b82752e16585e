package market

import (
	"context"
	"math/rand"
	"time"

	"engine-core/internal/events"

	"go.uber.org/zap"
)

// MockFeed generates synthetic ticks for local development.
type MockFeed struct {
	Bus        *events.Bus
	Log        *zap.Logger
	Symbols    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration
}

func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil {
		m.Log.Warn("mock feed: bus not set")
		return
	}
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"BTCUSDT"}
	}

	prices := make(map[string]float64, len(m.Symbols))
	start := m.StartPrice
	if start == 0 {
		start = 100.0
	}
	for _, sym := range m.Symbols {
		prices[sym] = start
	}
	if m.Step == 0 {
		m.Step = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				for _, sym := range m.Symbols {
					// simple random walk, floored so prices stay positive
					p := prices[sym] + (rand.Float64()*2-1)*m.Step
					if p < m.Step {
						p = m.Step
					}
					prices[sym] = p
					m.Bus.Ticks.Publish(events.Tick{
						Symbol: sym,
						Price:  p,
						Ts:     time.Now().UTC(),
					})
				}
			}
		}
	}()
}
