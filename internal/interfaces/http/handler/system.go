package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blingsync/backend/internal/infrastructure/event"
	"github.com/blingsync/backend/internal/infrastructure/persistence"
)

// SystemHandler serves health and observability endpoints
type SystemHandler struct {
	BaseHandler
	db          *persistence.Database
	distributor *event.Distributor
}

// NewSystemHandler creates a system handler
func NewSystemHandler(db *persistence.Database, distributor *event.Distributor) *SystemHandler {
	return &SystemHandler{db: db, distributor: distributor}
}

// RegisterHealthRoute registers the unauthenticated health endpoint
func (h *SystemHandler) RegisterHealthRoute(engine *gin.Engine) {
	engine.GET("/health", h.Health)
}

// RegisterRoutes registers the authenticated observability routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events/stats", h.EventStats)
}

// Health handles GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// EventStats handles GET /events/stats
func (h *SystemHandler) EventStats(c *gin.Context) {
	h.Success(c, h.distributor.GetStats())
}
