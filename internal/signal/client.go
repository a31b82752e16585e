package signal

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
)

const predictMethod = "/signal.SignalService/Predict"

// jsonCodec lets us call the Python inference worker without generated stubs;
// both sides agree on JSON payloads over the gRPC framing.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// WorkerClient sends feature snapshots to the inference worker over gRPC.
type WorkerClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewWorkerClient connects to the worker at addr. The per-call timeout is
// enforced on every Predict so a stalled worker cannot freeze an engine cycle.
func NewWorkerClient(addr string, timeout time.Duration) (*WorkerClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &WorkerClient{conn: conn, timeout: timeout}, nil
}

func (w *WorkerClient) Close() error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

// Predict forwards features to the worker and returns its signal.
func (w *WorkerClient) Predict(ctx context.Context, f Features) (Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var out Signal
	err := w.conn.Invoke(ctx, predictMethod, &f, &out, grpc.CallContentSubtype("json"))
	if err != nil {
		return Signal{}, err
	}
	return out, nil
}
