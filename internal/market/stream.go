package market

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"engine-core/internal/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StreamFeed subscribes to an external websocket feed that delivers JSON tick
// records and republishes them on the bus. The feed contract is only that
// each record carries a symbol field; anything else is passed through.
type StreamFeed struct {
	URL    string
	Bus    *events.Bus
	Log    *zap.Logger
	dialer *websocket.Dialer
}

// NewStreamFeed builds a websocket feed client for the given endpoint.
func NewStreamFeed(url string, bus *events.Bus, log *zap.Logger) *StreamFeed {
	return &StreamFeed{
		URL:    url,
		Bus:    bus,
		Log:    log,
		dialer: websocket.DefaultDialer,
	}
}

// Start runs the read loop with reconnect until the context is cancelled.
func (f *StreamFeed) Start(ctx context.Context) {
	go func() {
		backoff := time.Second
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := f.readLoop(ctx); err != nil {
				f.Log.Warn("stream feed disconnected", zap.Error(err), zap.Duration("retry_in", backoff))
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

func (f *StreamFeed) readLoop(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return err
		}

		var tick events.Tick
		if err := json.Unmarshal(msg, &tick); err != nil {
			f.Log.Warn("stream feed: bad tick payload", zap.Error(err))
			continue
		}
		if tick.Symbol == "" {
			continue
		}
		if tick.Ts.IsZero() {
			tick.Ts = time.Now().UTC()
		}
		f.Bus.Ticks.Publish(tick)
	}
}
