package events

import "time"

// Tick is the market snapshot feeders publish: a stable symbol for dispatch
// plus the latest traded price.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume,omitempty"`
	Ts     time.Time `json:"ts"`
}

// Fill is published for every executed order.
type Fill struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Notional float64 `json:"notional"`
}

// EngineEvent is published on lifecycle transitions for observers (API
// websocket, log sinks). It is informational; supervision never consumes it.
type EngineEvent struct {
	Symbol string `json:"symbol"`
	Kind   string `json:"kind"` // started, stopped, crashed, recovered
	Detail string `json:"detail,omitempty"`
}

// RiskAlert is published when an account-level guard engages.
type RiskAlert struct {
	Kind   string  `json:"kind"` // global_stop
	Detail string  `json:"detail,omitempty"`
	Value  float64 `json:"value,omitempty"`
}
