package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/domain"
	"tenantcast.dev/tenantcast/internal/pkg/logger"
)

// OnlineChecker reports whether a user has a live chat connection in a tenant.
type OnlineChecker func(tenantID, userID string) bool

// Triggers turns chat events into notifications for users who are not
// connected to see them live.
type Triggers struct {
	dispatcher *Dispatcher
	online     OnlineChecker
}

// NewTriggers creates the chat → notification triggers.
func NewTriggers(dispatcher *Dispatcher, online OnlineChecker) *Triggers {
	return &Triggers{dispatcher: dispatcher, online: online}
}

// OnDirectMessage notifies an offline recipient of a direct message through
// in-app and push. Online recipients already received it live.
func (t *Triggers) OnDirectMessage(ctx context.Context, tenantID, senderName, recipientID, preview string) {
	if t.online != nil && t.online(tenantID, recipientID) {
		return
	}

	res, err := t.dispatcher.SendToUser(ctx, Request{
		TenantID: tenantID,
		UserID:   recipientID,
		Title:    fmt.Sprintf("New message from %s", senderName),
		Message:  preview,
		Type:     domain.TypeInfo,
		Channels: domain.NewChannels(domain.ChannelInApp, domain.ChannelPush),
		Data:     map[string]string{"kind": "direct_message"},
	})
	if err != nil {
		logger.Error("Missed-message notification failed",
			zap.String("tenant_id", tenantID),
			zap.String("user_id", recipientID),
			zap.Error(err),
		)
		return
	}
	logger.Debug("Missed-message notification dispatched",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", recipientID),
		zap.Bool("suppressed", res.Suppressed),
	)
}
