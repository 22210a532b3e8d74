package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tenantcast.dev/tenantcast/internal/domain"
	"tenantcast.dev/tenantcast/internal/notification"
	apperrors "tenantcast.dev/tenantcast/internal/pkg/errors"
)

// RegisterPushTokenRequest registers a device with the push gateway.
type RegisterPushTokenRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceType string `json:"device_type" binding:"required"`
	DeviceInfo string `json:"device_info"`
}

// PushTokenResponse describes a registered device. The token value is
// echoed only to its owner.
type PushTokenResponse struct {
	ID         string            `json:"id"`
	DeviceType domain.DeviceType `json:"device_type"`
	DeviceInfo string            `json:"device_info,omitempty"`
	IsActive   bool              `json:"is_active"`
}

// RegisterPushToken handles POST /push-tokens.
func (s *Server) RegisterPushToken(c *gin.Context) {
	id, ok := s.caller(c)
	if !ok {
		return
	}

	var req RegisterPushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.Wrap(err, apperrors.CodeValidationFailed, "invalid request body", http.StatusBadRequest))
		return
	}
	device, err := domain.ParseDeviceType(req.DeviceType)
	if err != nil {
		invalidField(c, "device_type", err)
		return
	}

	t, err := s.push.RegisterToken(c.Request.Context(), id.TenantID, id.UserID, req.Token, device, req.DeviceInfo)
	if errors.Is(err, notification.ErrEmptyToken) {
		fail(c, apperrors.Wrap(err, apperrors.CodePushTokenInvalid, "push token is empty", http.StatusBadRequest))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, PushTokenResponse{
		ID:         t.ID,
		DeviceType: t.DeviceType,
		DeviceInfo: t.DeviceInfo,
		IsActive:   t.IsActive,
	})
}

// UnregisterPushToken handles DELETE /push-tokens/:token. Tokens owned by
// another user are reported as not found.
func (s *Server) UnregisterPushToken(c *gin.Context) {
	id, ok := s.caller(c)
	if !ok {
		return
	}
	changed, err := s.push.UnregisterToken(c.Request.Context(), id.UserID, c.Param("token"))
	if err != nil {
		fail(c, err)
		return
	}
	if !changed {
		fail(c, apperrors.NotFound(apperrors.CodePushTokenNotFound, "push token not found"))
		return
	}
	c.Status(http.StatusNoContent)
}
