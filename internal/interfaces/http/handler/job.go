package handler

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/blingsync/backend/internal/domain/job"
	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/infrastructure/jobs"
	"github.com/blingsync/backend/internal/interfaces/http/middleware"
)

// JobHandler exposes the orchestrator over the management API
type JobHandler struct {
	BaseHandler
	orchestrator *jobs.Orchestrator
}

// NewJobHandler creates a job handler
func NewJobHandler(orchestrator *jobs.Orchestrator) *JobHandler {
	return &JobHandler{orchestrator: orchestrator}
}

// RegisterRoutes registers the job management routes
func (h *JobHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/jobs")
	group.POST("", h.Submit)
	group.GET("/stats", h.Stats)
	group.GET("/:id", h.Get)
}

type submitJobRequest struct {
	Type     string          `json:"type" binding:"required"`
	Payload  json.RawMessage `json:"payload"`
	Priority string          `json:"priority"`
}

type jobResponse struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	Priority   string          `json:"priority"`
	Progress   int             `json:"progress"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
}

func toJobResponse(j *job.Job) jobResponse {
	return jobResponse{
		ID:         j.ID,
		Type:       string(j.Type),
		Status:     string(j.Status),
		Priority:   string(j.Priority),
		Progress:   j.Progress,
		RetryCount: j.RetryCount,
		LastError:  j.LastError,
		Result:     j.Result,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
	}
}

// Submit handles POST /jobs
func (h *JobHandler) Submit(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	tenantID, err := uuid.Parse(middleware.GetJWTTenantID(c))
	if err != nil {
		h.Unauthorized(c, "missing tenant in token")
		return
	}

	priority := shared.Priority(req.Priority)
	if req.Priority == "" {
		priority = shared.PriorityNormal
	}
	if !priority.Valid() {
		h.BadRequest(c, "unknown priority "+req.Priority)
		return
	}

	j, err := h.orchestrator.Enqueue(c.Request.Context(), job.Type(req.Type), tenantID, req.Payload, priority)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, toJobResponse(j))
}

// Get handles GET /jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid job ID")
		return
	}

	j, err := h.orchestrator.GetJob(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toJobResponse(j))
}

// Stats handles GET /jobs/stats
func (h *JobHandler) Stats(c *gin.Context) {
	stats, err := h.orchestrator.GetStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
