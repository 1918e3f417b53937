// Package api exposes the operator HTTP surface: exposure reports, tracked
// strategies, and the parameter rows behind them.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gridbot/logger"
	"gridbot/risk"
	"gridbot/store"
	"gridbot/strategy"
)

// Server HTTP API server
type Server struct {
	router  *gin.Engine
	ledger  *risk.Ledger
	tracker *strategy.Tracker
	store   *store.Store
	port    int
}

// NewServer creates the API server.
func NewServer(ledger *risk.Ledger, tracker *strategy.Tracker, st *store.Store, port int) *Server {
	// Set to Release mode (reduce log output)
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	s := &Server{
		router:  router,
		ledger:  ledger,
		tracker: tracker,
		store:   st,
		port:    port,
	}
	s.setupRoutes()
	return s
}

// corsMiddleware CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.Any("/health", s.handleHealth)
		api.GET("/risks", s.handleGetRisks)
		api.GET("/strategies", s.handleGetStrategies)

		api.GET("/parameters", s.handleGetParameters)
		api.PUT("/parameters", s.handlePutParameter)
		api.DELETE("/parameters/:id", s.handleDeleteParameter)
		api.POST("/parameters/:id/confirm", s.handleConfirmParameter)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleGetRisks returns the exposure report of the latest admission check.
func (s *Server) handleGetRisks(c *gin.Context) {
	c.JSON(http.StatusOK, s.ledger.GetRisks())
}

// handleGetStrategies returns the tracked strategy list with actions.
func (s *Server) handleGetStrategies(c *gin.Context) {
	list := s.tracker.List()
	if list == nil {
		list = []*strategy.Snapshot{}
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetParameters(c *gin.Context) {
	rows, err := s.store.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []strategy.Params{}
	}
	c.JSON(http.StatusOK, rows)
}

// handlePutParameter inserts or replaces one parameter row. The row is
// validated before it touches the store so the operator learns about a bad
// row immediately instead of at the next refresh.
func (s *Server) handlePutParameter(c *gin.Context) {
	var p strategy.Params
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if _, err := strategy.Parse(p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.Upsert(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("✅ Parameter row for strategy %s saved", p.StrategyID)
	c.JSON(http.StatusOK, gin.H{"status": "saved", "strategy_id": p.StrategyID})
}

func (s *Server) handleDeleteParameter(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("Parameter row for strategy %s deleted", id)
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "strategy_id": id})
}

// handleConfirmParameter stamps a strategy row with a fresh confirmation,
// authorizing a grid launch outside its price range for the configured
// window.
func (s *Server) handleConfirmParameter(c *gin.Context) {
	id := c.Param("id")
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.store.Confirm(c.Request.Context(), id, now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("✅ Strategy %s confirmed at %s", id, now)
	c.JSON(http.StatusOK, gin.H{"status": "confirmed", "strategy_id": id, "confirmed": now})
}

// Start runs the HTTP server. Blocks until the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	logger.Infof("🌐 API server starting at http://localhost%s", addr)
	logger.Infof("📊 API endpoints:")
	logger.Infof("  • GET  /api/health                  - Health check")
	logger.Infof("  • GET  /api/risks                   - Exposure report of the latest risk check")
	logger.Infof("  • GET  /api/strategies              - Tracked strategies with lifecycle actions")
	logger.Infof("  • GET  /api/parameters              - Raw parameter rows")
	logger.Infof("  • PUT  /api/parameters              - Insert or replace a parameter row")
	logger.Infof("  • DELETE /api/parameters/:id        - Delete a parameter row")
	logger.Infof("  • POST /api/parameters/:id/confirm  - Stamp a fresh launch confirmation")
	return s.router.Run(addr)
}
