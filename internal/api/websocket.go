package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// websocket streams engine lifecycle events and periodic fleet summaries
// to a connected operator client.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	engineCh, unsubEngine := s.Bus.Engine.Subscribe(32)
	defer unsubEngine()
	riskCh, unsubRisk := s.Bus.Risk.Subscribe(8)
	defer unsubRisk()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	// Drain reads so client close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case ev := <-engineCh:
			if err := conn.WriteJSON(wsFrame{Type: "engine", Data: ev}); err != nil {
				return
			}
		case ev := <-riskCh:
			if err := conn.WriteJSON(wsFrame{Type: "risk", Data: ev}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteJSON(wsFrame{Type: "summary", Data: s.Mgr.Summary()}); err != nil {
				return
			}
		}
	}
}
