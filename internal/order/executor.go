package order

import "context"

// Request is a risk-approved order handed to the execution collaborator.
// Notional is the bounded position value computed by the risk manager.
type Request struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"` // BUY or SELL
	Notional float64 `json:"notional"`
	ClientID string  `json:"client_id"`
}

// Result reports the outcome of a submission. A rejected order carries the
// venue's reason; idempotency of repeated submissions is the venue's problem.
type Result struct {
	OK      bool   `json:"ok"`
	OrderID string `json:"order_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Executor is the order-submission collaborator. Submit must honor the
// context deadline.
type Executor interface {
	Submit(ctx context.Context, req Request) (Result, error)
}
