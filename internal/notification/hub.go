package notification

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/domain"
	apperrors "tenantcast.dev/tenantcast/internal/pkg/errors"
	"tenantcast.dev/tenantcast/internal/pkg/ids"
	"tenantcast.dev/tenantcast/internal/pkg/logger"
	"tenantcast.dev/tenantcast/internal/realtime"
)

// Notification hub method names.
const (
	MethodSendNotificationToUser   = "SendNotificationToUser"
	MethodSendNotificationToTenant = "SendNotificationToTenant"
	MethodMarkNotificationAsRead   = "MarkNotificationAsRead"
)

// HubMethods are the client-invocable notification hub methods.
type HubMethods struct {
	inApp *InAppSender
	now   func() time.Time
}

// RegisterHub installs the notification methods on h.
func RegisterHub(h *realtime.Hub, inApp *InAppSender) *HubMethods {
	m := &HubMethods{inApp: inApp, now: time.Now}
	h.Handle(MethodSendNotificationToUser, m.sendToUser)
	h.Handle(MethodSendNotificationToTenant, m.sendToTenant)
	h.Handle(MethodMarkNotificationAsRead, m.markAsRead)

	h.OnConnected(func(_ context.Context, s *realtime.Session) {
		logger.Info("User connected to notifications hub",
			zap.String("tenant_id", s.Identity.TenantID),
			zap.String("user_id", s.Identity.UserID),
		)
	})
	return m
}

// livePayload builds an unpersisted notification from the invocation
// arguments (title, message, type, actionUrl) starting at index first.
func (m *HubMethods) livePayload(call *realtime.Call, first int) (Payload, error) {
	title, err := call.String(first, "title")
	if err != nil {
		return Payload{}, err
	}
	message := call.OptionalString(first + 1)
	typ, err := domain.ParseNotificationType(call.OptionalString(first + 2))
	if err != nil {
		return Payload{}, apperrors.ErrInvalidRequestFieldf("type")
	}
	return Payload{
		ID:        ids.New(ids.PrefixNotification),
		Title:     title,
		Message:   message,
		Type:      typ,
		ActionURL: call.OptionalString(first + 3),
		Timestamp: m.now().UTC(),
	}, nil
}

// sendToUser(userId, title, message, type, actionUrl) pushes a live
// notification to a user of the caller's tenant. Nothing is persisted.
func (m *HubMethods) sendToUser(ctx context.Context, call *realtime.Call) (any, error) {
	userID, err := call.String(0, "userId")
	if err != nil {
		return nil, err
	}
	payload, err := m.livePayload(call, 1)
	if err != nil {
		return nil, err
	}
	caller := call.Caller()
	if err := call.Hub.SendToUserInTenant(ctx, caller.TenantID, userID, EventReceiveNotification, payload); err != nil {
		return nil, err
	}
	logger.Info("Sent notification to user",
		zap.String("tenant_id", caller.TenantID),
		zap.String("user_id", userID),
		zap.String("sender_id", caller.UserID),
	)
	return payload, nil
}

// sendToTenant(title, message, type, actionUrl) pushes a live notification
// to every connection of the caller's tenant.
func (m *HubMethods) sendToTenant(ctx context.Context, call *realtime.Call) (any, error) {
	payload, err := m.livePayload(call, 0)
	if err != nil {
		return nil, err
	}
	caller := call.Caller()
	if err := call.Hub.SendToTenant(ctx, caller.TenantID, EventReceiveNotification, payload); err != nil {
		return nil, err
	}
	logger.Info("Sent broadcast notification to tenant",
		zap.String("tenant_id", caller.TenantID),
		zap.String("sender_id", caller.UserID),
	)
	return payload, nil
}

// markAsRead(notificationId) marks one of the caller's stored notifications read.
func (m *HubMethods) markAsRead(ctx context.Context, call *realtime.Call) (any, error) {
	id, err := call.String(0, "notificationId")
	if err != nil {
		return nil, err
	}
	caller := call.Caller()
	if err := m.inApp.MarkAsRead(ctx, caller.UserID, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.ErrNotificationNotFoundf(id)
		}
		return nil, err
	}
	logger.Debug("Notification marked as read",
		zap.String("user_id", caller.UserID),
		zap.String("notification_id", id),
	)
	return nil, nil
}
