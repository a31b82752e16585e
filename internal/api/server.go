package api

import (
	"time"

	"engine-core/internal/engine"
	"engine-core/internal/events"
	"engine-core/internal/monitor"
	"engine-core/internal/risk"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server exposes the fleet-management endpoints around the engine manager.
type Server struct {
	Router    *gin.Engine
	Mgr       *engine.Manager
	Risk      *risk.Manager
	Metrics   *monitor.CycleMetrics
	Bus       *events.Bus
	Log       *zap.Logger
	JWTSecret string
}

// NewServer wires routes and the middleware stack.
func NewServer(mgr *engine.Manager, riskMgr *risk.Manager, metrics *monitor.CycleMetrics, bus *events.Bus, log *zap.Logger, jwtSecret string) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Middleware order matters: recovery first, CORS last before routes.
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log))
	r.Use(RateLimitMiddleware(log))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Mgr:       mgr,
		Risk:      riskMgr,
		Metrics:   metrics,
		Bus:       bus,
		Log:       log,
		JWTSecret: jwtSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/engines", s.getSummary)
		api.GET("/engines/:symbol", s.getEngineStatus)
		api.GET("/risk", s.getRiskSummary)
		api.GET("/metrics", s.getMetrics)

		// Mutating operations require auth.
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/engines/:symbol/start", s.startEngine)
			protected.POST("/engines/:symbol/stop", s.stopEngine)
			protected.POST("/engines/:symbol/restart", s.restartEngine)
			protected.POST("/risk/reset-day", s.resetDay)
		}
	}
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
