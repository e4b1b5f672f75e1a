package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NickKasten/posture/internal/apperr"
	"github.com/NickKasten/posture/internal/domain"
	"github.com/NickKasten/posture/internal/http/middleware"
	"github.com/NickKasten/posture/internal/service/publisher"
)

// PublishHandler exposes publishing and connection management endpoints.
type PublishHandler struct {
	Service   *publisher.Service
	Responder *apperr.Responder
}

// NewPublishHandler creates the handler.
func NewPublishHandler(svc *publisher.Service, responder *apperr.Responder) *PublishHandler {
	return &PublishHandler{Service: svc, Responder: responder}
}

// Publish posts the submitted content to the requested platform on behalf of
// the authenticated user. Platform-side failures come back inside the result
// body with the mapped status code rather than as an error envelope.
func (h *PublishHandler) Publish(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		h.Responder.JSON(c, apperr.New(apperr.Authentication, "authentication required"))
		return
	}

	var req domain.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Responder.JSON(c, apperr.Wrap(apperr.Validation, "invalid publish request", err))
		return
	}

	result, err := h.Service.Publish(c.Request.Context(), userID, req)
	if err != nil {
		h.Responder.JSON(c, err)
		return
	}

	status := http.StatusOK
	if !result.Success && result.Error != nil {
		status = result.Error.Status
	}
	c.JSON(status, result)
}

// Connections lists the platforms the user has linked.
func (h *PublishHandler) Connections(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		h.Responder.JSON(c, apperr.New(apperr.Authentication, "authentication required"))
		return
	}

	connections, err := h.Service.Connections(c.Request.Context(), userID)
	if err != nil {
		h.Responder.JSON(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": connections})
}

// Disconnect removes the stored credential for a platform.
func (h *PublishHandler) Disconnect(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		h.Responder.JSON(c, apperr.New(apperr.Authentication, "authentication required"))
		return
	}

	if err := h.Service.Disconnect(c.Request.Context(), userID, c.Param("platform")); err != nil {
		h.Responder.JSON(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Healthz reports process liveness.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
