// Package api exposes the strategy engine over HTTP for dashboards
// and operational tooling.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cta-core/internal/cta"
	"cta-core/internal/events"
	"cta-core/internal/monitor"
	"cta-core/pkg/exchanges/common"
)

// Server wires HTTP endpoints around the strategy engine.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Engine    *cta.Engine
	Monitor   *monitor.Monitor
	JWTSecret string
	Meta      SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Symbols     []string
	UseMockFeed bool
	Version     string
}

// NewServer builds the router with the full middleware stack.
func NewServer(bus *events.Bus, engine *cta.Engine, mon *monitor.Monitor, meta SystemMeta, jwtSecret string, rateLimit float64, rateBurst int) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware(rateLimit, rateBurst))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		Engine:    engine,
		Monitor:   mon,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocketStream(NewHub(s.Bus)))

	api := s.Router.Group("/api")
	{
		api.POST("/auth/token", s.issueToken)
		api.GET("/system/status", s.getSystemStatus)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/classes", s.getClasses)
			protected.GET("/strategies", s.getStrategies)
			protected.GET("/strategies/:name", s.getStrategy)
			protected.POST("/strategies", s.addStrategy)
			protected.DELETE("/strategies/:name", s.removeStrategy)
			protected.PUT("/strategies/:name/setting", s.editStrategy)

			protected.POST("/strategies/:name/init", s.initStrategy)
			protected.POST("/strategies/:name/start", s.startStrategy)
			protected.POST("/strategies/:name/stop", s.stopStrategy)
			protected.POST("/strategies/init-all", s.initAll)
			protected.POST("/strategies/start-all", s.startAll)
			protected.POST("/strategies/stop-all", s.stopAll)

			protected.GET("/stop-orders", s.getStopOrders)
			protected.GET("/holdings/:symbol/:exchange", s.getHolding)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start runs the HTTP server; it blocks until the listener fails.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}

func (s *Server) getSystemStatus(c *gin.Context) {
	status := gin.H{
		"symbols":       s.Meta.Symbols,
		"use_mock_feed": s.Meta.UseMockFeed,
		"version":       s.Meta.Version,
		"strategies":    len(s.Engine.Strategies()),
	}
	if s.Monitor != nil {
		status["stats"] = s.Monitor.Snapshot()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) getClasses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"classes": s.Engine.ClassNames()})
}

func (s *Server) getStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.Engine.Strategies()})
}

func (s *Server) getStrategy(c *gin.Context) {
	state, err := s.Engine.StrategyState(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

type addStrategyRequest struct {
	ClassName string         `json:"class_name" binding:"required"`
	Name      string         `json:"name" binding:"required"`
	VtSymbol  string         `json:"vt_symbol" binding:"required"`
	Setting   map[string]any `json:"setting"`
}

func (s *Server) addStrategy(c *gin.Context) {
	var req addStrategyRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := s.Engine.AddStrategy(req.ClassName, req.Name, req.VtSymbol, req.Setting); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

func (s *Server) removeStrategy(c *gin.Context) {
	if err := s.Engine.RemoveStrategy(c.Param("name")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": c.Param("name")})
}

func (s *Server) editStrategy(c *gin.Context) {
	var setting map[string]any
	if err := c.BindJSON(&setting); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if err := s.Engine.EditStrategy(c.Param("name"), setting); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": c.Param("name")})
}

func (s *Server) initStrategy(c *gin.Context) {
	if err := s.Engine.InitStrategy(c.Param("name")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"initializing": c.Param("name")})
}

func (s *Server) startStrategy(c *gin.Context) {
	if err := s.Engine.StartStrategy(c.Param("name")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": c.Param("name")})
}

func (s *Server) stopStrategy(c *gin.Context) {
	if err := s.Engine.StopStrategy(c.Param("name")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": c.Param("name")})
}

func (s *Server) initAll(c *gin.Context) {
	s.Engine.InitAllStrategies()
	c.JSON(http.StatusAccepted, gin.H{"status": "initializing"})
}

func (s *Server) startAll(c *gin.Context) {
	s.Engine.StartAllStrategies()
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (s *Server) stopAll(c *gin.Context) {
	s.Engine.StopAllStrategies()
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) getStopOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stop_orders": s.Engine.StopOrders()})
}

func (s *Server) getHolding(c *gin.Context) {
	vtSymbol := common.JoinSymbol(c.Param("symbol"), c.Param("exchange"))
	direction := common.DirectionLong
	if c.Query("direction") == "short" {
		direction = common.DirectionShort
	}
	holding := s.Engine.Holding(vtSymbol, direction)
	c.JSON(http.StatusOK, gin.H{
		"vt_symbol": vtSymbol,
		"direction": direction,
		"volume":    holding.Volume,
		"yd_volume": holding.YdVolume,
		"frozen":    holding.Frozen,
	})
}
