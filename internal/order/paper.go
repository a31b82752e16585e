package order

import (
	"context"
	"fmt"

	"engine-core/internal/events"
	"engine-core/pkg/db"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PaperExecutor simulates fills locally: every submission is accepted,
// journaled to the trades table, and announced on the bus. A token-bucket
// limiter paces submissions the way a real venue's API limits would.
type PaperExecutor struct {
	DB      *db.Database
	Bus     *events.Bus
	Log     *zap.Logger
	limiter *rate.Limiter
}

// NewPaperExecutor builds a paper venue allowing ratePerSec submissions.
func NewPaperExecutor(database *db.Database, bus *events.Bus, log *zap.Logger, ratePerSec float64) *PaperExecutor {
	if ratePerSec <= 0 {
		ratePerSec = 10
	}
	return &PaperExecutor{
		DB:      database,
		Bus:     bus,
		Log:     log,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), int(ratePerSec)+1),
	}
}

// Submit accepts the order after rate-limit admission. A context expiring
// while waiting for a token surfaces as a submission error, which callers
// treat as a transient executor fault.
func (p *PaperExecutor) Submit(ctx context.Context, req Request) (Result, error) {
	if req.Notional <= 0 {
		return Result{OK: false, Reason: "non-positive notional"}, nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("paper executor admission: %w", err)
	}

	id := uuid.NewString()
	if p.DB != nil {
		if err := p.DB.InsertTrade(ctx, id, req.Symbol, req.Side, req.Notional, 0); err != nil {
			// Journal failure does not void the fill; the paper venue has
			// already "executed".
			p.Log.Warn("paper executor: journal write failed",
				zap.String("order_id", id), zap.Error(err))
		}
	}
	if p.Bus != nil {
		p.Bus.Fills.Publish(events.Fill{
			OrderID:  id,
			Symbol:   req.Symbol,
			Side:     req.Side,
			Notional: req.Notional,
		})
	}

	p.Log.Info("paper fill",
		zap.String("order_id", id),
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.Float64("notional", req.Notional))

	return Result{OK: true, OrderID: id}, nil
}
