package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apppricing "github.com/blingsync/backend/internal/application/pricing"
)

// PriceSyncHandler exposes manual price sync triggers on the management API
type PriceSyncHandler struct {
	BaseHandler
	service *apppricing.SyncService
}

// NewPriceSyncHandler creates a price sync handler
func NewPriceSyncHandler(service *apppricing.SyncService) *PriceSyncHandler {
	return &PriceSyncHandler{service: service}
}

// RegisterRoutes registers the price sync routes
func (h *PriceSyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/price-sync")
	group.POST("/run", h.RunAll)
	group.POST("/tenants/:tenantID", h.RunTenant)
	group.POST("/tenants/:tenantID/products/:productID", h.RunProduct)
}

// RunAll handles POST /price-sync/run
func (h *PriceSyncHandler) RunAll(c *gin.Context) {
	results := h.service.SyncAllTenantPrices(c.Request.Context())
	h.Success(c, results)
}

// RunTenant handles POST /price-sync/tenants/:tenantID
func (h *PriceSyncHandler) RunTenant(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("tenantID"))
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}

	stats, err := h.service.SyncTenantPrices(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// RunProduct handles POST /price-sync/tenants/:tenantID/products/:productID
func (h *PriceSyncHandler) RunProduct(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("tenantID"))
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}

	outcome, err := h.service.SyncProduct(c.Request.Context(), tenantID, c.Param("productID"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"outcome": string(outcome)})
}
