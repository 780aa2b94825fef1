package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blingsync/backend/internal/domain/shared"
	"github.com/blingsync/backend/internal/interfaces/http/dto"
)

// BaseHandler provides the response helpers shared by all handlers
type BaseHandler struct{}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response for work queued in the background
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Created sends a 201 response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// BadRequest sends a 400 response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.ErrCodeBadRequest, message))
}

// Unauthorized sends a 401 response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, dto.NewErrorResponse(dto.ErrCodeUnauthorized, message))
}

// NotFound sends a 404 response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, message))
}

// InternalError sends a 500 response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(dto.ErrCodeInternal, message))
}

// HandleError maps domain errors to HTTP status codes
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		h.NotFound(c, err.Error())
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidState):
		h.BadRequest(c, err.Error())
	case errors.Is(err, shared.ErrUnauthorized):
		h.Unauthorized(c, err.Error())
	case errors.Is(err, shared.ErrAlreadyExists):
		c.JSON(http.StatusConflict, dto.NewErrorResponse(dto.ErrCodeConflict, err.Error()))
	case errors.Is(err, shared.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(dto.ErrCodeRateLimited, err.Error()))
	default:
		h.InternalError(c, "an unexpected error occurred")
	}
}
