package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tenantcast.dev/tenantcast/internal/domain"
	"tenantcast.dev/tenantcast/internal/notification"
	apperrors "tenantcast.dev/tenantcast/internal/pkg/errors"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// NotificationList is the list response body.
type NotificationList struct {
	Items []*domain.UserNotification `json:"items"`
}

// UnreadCount is the unread-count response body.
type UnreadCount struct {
	Count int64 `json:"count"`
}

// MarkedCount reports how many notifications changed state.
type MarkedCount struct {
	Marked int64 `json:"marked"`
}

// ListNotifications handles GET /notifications?limit=&unread_only=.
func (s *Server) ListNotifications(c *gin.Context) {
	id, ok := s.caller(c)
	if !ok {
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			invalidField(c, "limit", err)
			return
		}
		limit = n
	}
	unreadOnly := false
	if raw := c.Query("unread_only"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			invalidField(c, "unread_only", err)
			return
		}
		unreadOnly = b
	}

	items, err := s.inApp.List(c.Request.Context(), id.UserID, limit, unreadOnly)
	if err != nil {
		fail(c, err)
		return
	}
	if items == nil {
		items = []*domain.UserNotification{}
	}
	c.JSON(http.StatusOK, NotificationList{Items: items})
}

// GetUnreadCount handles GET /notifications/unread-count.
func (s *Server) GetUnreadCount(c *gin.Context) {
	id, ok := s.caller(c)
	if !ok {
		return
	}
	count, err := s.inApp.UnreadCount(c.Request.Context(), id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, UnreadCount{Count: count})
}

// GetNotificationStats handles GET /notifications/stats.
func (s *Server) GetNotificationStats(c *gin.Context) {
	id, ok := s.caller(c)
	if !ok {
		return
	}
	stats, err := s.dispatcher.UserStats(c.Request.Context(), id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// MarkNotificationRead handles POST /notifications/:id/read.
func (s *Server) MarkNotificationRead(c *gin.Context) {
	id, ok := s.caller(c)
	if !ok {
		return
	}
	notificationID := c.Param("id")
	err := s.inApp.MarkAsRead(c.Request.Context(), id.UserID, notificationID)
	if errors.Is(err, domain.ErrNotFound) {
		fail(c, apperrors.ErrNotificationNotFoundf(notificationID))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllNotificationsRead handles POST /notifications/read-all.
func (s *Server) MarkAllNotificationsRead(c *gin.Context) {
	id, ok := s.caller(c)
	if !ok {
		return
	}
	n, err := s.inApp.MarkAllAsRead(c.Request.Context(), id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, MarkedCount{Marked: n})
}

// QuietHoursBody is a daily window in "HH:MM" local to the server's quiet
// hours time zone.
type QuietHoursBody struct {
	Start string `json:"start" binding:"required"`
	End   string `json:"end" binding:"required"`
}

// PreferencesBody is the preferences representation.
type PreferencesBody struct {
	EmailEnabled bool            `json:"email_enabled"`
	InAppEnabled bool            `json:"in_app_enabled"`
	PushEnabled  bool            `json:"push_enabled"`
	SMSEnabled   bool            `json:"sms_enabled"`
	QuietHours   *QuietHoursBody `json:"quiet_hours"`
}

func preferencesToAPI(p *domain.NotificationPreferences) PreferencesBody {
	out := PreferencesBody{
		EmailEnabled: p.EmailEnabled,
		InAppEnabled: p.InAppEnabled,
		PushEnabled:  p.PushEnabled,
		SMSEnabled:   p.SMSEnabled,
	}
	if p.QuietHours != nil {
		out.QuietHours = &QuietHoursBody{
			Start: p.QuietHours.Start.String(),
			End:   p.QuietHours.End.String(),
		}
	}
	return out
}

// UpdatePreferencesRequest is a partial update. Omitted switches are left
// unchanged. quiet_hours replaces the window; clear_quiet_hours removes it.
type UpdatePreferencesRequest struct {
	EmailEnabled    *bool           `json:"email_enabled"`
	InAppEnabled    *bool           `json:"in_app_enabled"`
	PushEnabled     *bool           `json:"push_enabled"`
	SMSEnabled      *bool           `json:"sms_enabled"`
	QuietHours      *QuietHoursBody `json:"quiet_hours"`
	ClearQuietHours bool            `json:"clear_quiet_hours"`
}

// GetPreferences handles GET /notifications/preferences. First use creates
// the all-enabled defaults.
func (s *Server) GetPreferences(c *gin.Context) {
	id, ok := s.caller(c)
	if !ok {
		return
	}
	prefs, err := s.dispatcher.Preferences(c.Request.Context(), id.TenantID, id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, preferencesToAPI(prefs))
}

// UpdatePreferences handles PUT /notifications/preferences.
func (s *Server) UpdatePreferences(c *gin.Context) {
	id, ok := s.caller(c)
	if !ok {
		return
	}

	var req UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.Wrap(err, apperrors.CodeValidationFailed, "invalid request body", http.StatusBadRequest))
		return
	}

	update := notification.PreferencesUpdate{
		EmailEnabled: req.EmailEnabled,
		InAppEnabled: req.InAppEnabled,
		PushEnabled:  req.PushEnabled,
		SMSEnabled:   req.SMSEnabled,
	}
	switch {
	case req.ClearQuietHours && req.QuietHours != nil:
		invalidField(c, "clear_quiet_hours", errors.New("quiet_hours and clear_quiet_hours are exclusive"))
		return
	case req.ClearQuietHours:
		update.SetQuietHours = true
	case req.QuietHours != nil:
		start, err := domain.ParseClockTime(req.QuietHours.Start)
		if err != nil {
			invalidField(c, "quiet_hours.start", err)
			return
		}
		end, err := domain.ParseClockTime(req.QuietHours.End)
		if err != nil {
			invalidField(c, "quiet_hours.end", err)
			return
		}
		update.SetQuietHours = true
		update.QuietHours = &domain.QuietHours{Start: start, End: end}
	}

	prefs, err := s.dispatcher.UpdatePreferences(c.Request.Context(), id.TenantID, id.UserID, update)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, preferencesToAPI(prefs))
}
