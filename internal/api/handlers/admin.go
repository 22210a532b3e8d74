package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/domain"
	"tenantcast.dev/tenantcast/internal/notification"
	apperrors "tenantcast.dev/tenantcast/internal/pkg/errors"
	"tenantcast.dev/tenantcast/internal/pkg/logger"
)

// SendNotificationRequest is an orchestrated send to one user.
// An empty tenant_id targets the caller's tenant.
type SendNotificationRequest struct {
	TenantID  string            `json:"tenant_id"`
	UserID    string            `json:"user_id" binding:"required"`
	Title     string            `json:"title" binding:"required"`
	Message   string            `json:"message"`
	Type      string            `json:"type"`
	Channels  []string          `json:"channels"`
	ActionURL string            `json:"action_url"`
	ImageURL  string            `json:"image_url"`
	Data      map[string]string `json:"data"`
}

// BroadcastRequest is a notification to every member of a tenant.
type BroadcastRequest struct {
	Title     string            `json:"title" binding:"required"`
	Message   string            `json:"message"`
	Type      string            `json:"type"`
	Channels  []string          `json:"channels"`
	ActionURL string            `json:"action_url"`
	Data      map[string]string `json:"data"`
}

func parseTypeAndChannels(c *gin.Context, typ string, channels []string) (domain.NotificationType, domain.Channels, bool) {
	nt, err := domain.ParseNotificationType(typ)
	if err != nil {
		invalidField(c, "type", err)
		return "", domain.ChannelsNone, false
	}
	cs := domain.ChannelsNone
	if len(channels) > 0 {
		cs, err = domain.ParseChannels(channels)
		if err != nil {
			invalidField(c, "channels", err)
			return "", domain.ChannelsNone, false
		}
	}
	return nt, cs, true
}

// SendNotification handles POST /admin/notifications.
func (s *Server) SendNotification(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}

	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.Wrap(err, apperrors.CodeValidationFailed, "invalid request body", http.StatusBadRequest))
		return
	}
	typ, channels, ok := parseTypeAndChannels(c, req.Type, req.Channels)
	if !ok {
		return
	}
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = caller.TenantID
	}

	result, err := s.dispatcher.SendToUser(c.Request.Context(), notification.Request{
		TenantID:  tenantID,
		UserID:    req.UserID,
		Title:     req.Title,
		Message:   req.Message,
		Type:      typ,
		Channels:  channels,
		ActionURL: req.ActionURL,
		ImageURL:  req.ImageURL,
		Data:      req.Data,
	})
	if err != nil {
		fail(c, err)
		return
	}
	logger.Info("Notification sent by operator",
		zap.String("actor", caller.UserID),
		zap.String("tenant_id", tenantID),
		zap.String("user_id", req.UserID),
		zap.Bool("suppressed", result.Suppressed),
	)
	// A failed audit write does not undo a delivered notification.
	_ = s.audit.LogNotificationSent(c.Request.Context(), caller.UserID, tenantID, req.UserID, auditDetails(req.Title, result))
	c.JSON(http.StatusOK, result)
}

// BroadcastToTenant handles POST /admin/tenants/:tenant_id/notifications.
func (s *Server) BroadcastToTenant(c *gin.Context) {
	caller, ok := s.caller(c)
	if !ok {
		return
	}

	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.Wrap(err, apperrors.CodeValidationFailed, "invalid request body", http.StatusBadRequest))
		return
	}
	typ, channels, ok := parseTypeAndChannels(c, req.Type, req.Channels)
	if !ok {
		return
	}
	tenantID := c.Param("tenant_id")

	result, err := s.dispatcher.SendToTenant(c.Request.Context(), notification.TenantRequest{
		TenantID:  tenantID,
		Title:     req.Title,
		Message:   req.Message,
		Type:      typ,
		Channels:  channels,
		ActionURL: req.ActionURL,
		Data:      req.Data,
	})
	if err != nil {
		fail(c, err)
		return
	}
	logger.Info("Tenant broadcast sent by operator",
		zap.String("actor", caller.UserID),
		zap.String("tenant_id", tenantID),
	)
	_ = s.audit.LogTenantBroadcast(c.Request.Context(), caller.UserID, tenantID, auditDetails(req.Title, result))
	c.JSON(http.StatusOK, result)
}

func auditDetails(title string, result notification.Result) map[string]any {
	outcomes := make(map[string]any, len(result.Channels))
	for _, cr := range result.Channels {
		outcomes[cr.Channel] = string(cr.Outcome)
	}
	return map[string]any{
		"title":      title,
		"suppressed": result.Suppressed,
		"channels":   outcomes,
	}
}
