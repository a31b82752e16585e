package api

import (
	"errors"
	"net/http"
	"time"

	"engine-core/internal/engine"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) getSummary(c *gin.Context) {
	if s.Mgr == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": engine.ErrManagerNotInitialized.Error()})
		return
	}
	c.JSON(http.StatusOK, s.Mgr.Summary())
}

func (s *Server) getEngineStatus(c *gin.Context) {
	symbol := c.Param("symbol")
	h := s.Mgr.EngineHealth(symbol)
	if h == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "engine not found", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) getRiskSummary(c *gin.Context) {
	c.JSON(http.StatusOK, s.Risk.Summary())
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.Snapshot())
}

func (s *Server) startEngine(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.Mgr.StartEngine(symbol); err != nil {
		s.writeEngineError(c, symbol, err)
		return
	}
	s.Log.Info("engine started via api", zap.String("symbol", symbol))
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "status": "starting"})
}

func (s *Server) stopEngine(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.Mgr.StopEngine(symbol, 10*time.Second); err != nil {
		s.writeEngineError(c, symbol, err)
		return
	}
	s.Log.Info("engine stopped via api", zap.String("symbol", symbol))
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "status": "stopped"})
}

func (s *Server) restartEngine(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.Mgr.RestartEngine(symbol); err != nil {
		s.writeEngineError(c, symbol, err)
		return
	}
	s.Log.Info("engine restarted via api", zap.String("symbol", symbol))
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "status": "restarted"})
}

func (s *Server) resetDay(c *gin.Context) {
	s.Risk.OnDayReset()
	s.Log.Info("risk day reset via api")
	c.JSON(http.StatusOK, s.Risk.Summary())
}

func (s *Server) writeEngineError(c *gin.Context, symbol string, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "symbol": symbol})
	case errors.Is(err, engine.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "symbol": symbol})
	case errors.Is(err, engine.ErrRestartDenied):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "symbol": symbol})
	case errors.Is(err, engine.ErrManagerNotInitialized):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "symbol": symbol})
	}
}
