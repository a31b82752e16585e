package signal

import "context"

// Side is the direction a signal recommends.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
	SideFlat  Side = "flat"
)

// Features is the engine's current view handed to the model: latest price and
// a recent price window for whatever feature extraction the worker applies.
type Features struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Window    []float64 `json:"window,omitempty"`
	VolAnnual float64   `json:"vol_annual,omitempty"`
}

// Signal is a model prediction: probability that price goes up, the
// recommended side, and the model's confidence in its own output.
type Signal struct {
	ProbUp     float64 `json:"prob_up"`
	Side       Side    `json:"side"`
	Confidence float64 `json:"confidence"`
}

// Producer is the model-inference collaborator. Predict must honor the
// context deadline; callers treat any failure as "no signal this cycle".
type Producer interface {
	Predict(ctx context.Context, f Features) (Signal, error)
}
