// Package chat implements the chat hub: tenant-wide chat, direct messages,
// cross-tenant conversations, typing indicators and presence.
//
// Everything except conversations is confined to the caller's tenant.
// Conversation access goes through a conversation.Guard; a denied join or
// send is returned to the caller as an error and changes nothing.
package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/conversation"
	apperrors "tenantcast.dev/tenantcast/internal/pkg/errors"
	"tenantcast.dev/tenantcast/internal/pkg/ids"
	"tenantcast.dev/tenantcast/internal/pkg/logger"
	"tenantcast.dev/tenantcast/internal/pkg/worker"
	"tenantcast.dev/tenantcast/internal/realtime"
)

// Chat hub method names.
const (
	MethodSendMessageToTenant       = "SendMessageToTenant"
	MethodSendDirectMessage         = "SendDirectMessage"
	MethodJoinConversation          = "JoinConversation"
	MethodSendMessageToConversation = "SendMessageToConversation"
	MethodLeaveConversation         = "LeaveConversation"
	MethodNotifyTyping              = "NotifyTyping"
	MethodNotifyStoppedTyping       = "NotifyStoppedTyping"
	MethodGetUserConversations      = "GetUserConversations"
)

// Client events.
const (
	EventReceiveMessage             = "ReceiveMessage"
	EventReceiveDirectMessage       = "ReceiveDirectMessage"
	EventReceiveConversationMessage = "ReceiveConversationMessage"
	EventUserJoinedConversation     = "UserJoinedConversation"
	EventUserLeftConversation       = "UserLeftConversation"
	EventUserTyping                 = "UserTyping"
	EventUserStoppedTyping          = "UserStoppedTyping"
	EventOnlineUsers                = "OnlineUsers"
	EventUserConnected              = "UserConnected"
	EventUserDisconnected           = "UserDisconnected"
)

const previewRunes = 50

// Message is a chat message as delivered to clients.
type Message struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	UserName        string    `json:"userName"`
	TenantID        string    `json:"tenantId"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
	IsDirectMessage bool      `json:"isDirectMessage"`
	RecipientUserID string    `json:"recipientUserId,omitempty"`
	ConversationID  string    `json:"conversationId,omitempty"`
	IsCrossTenant   bool      `json:"isCrossTenant"`
}

// DirectMessageNotifier is told about every direct message so offline
// recipients can be notified through other channels.
type DirectMessageNotifier interface {
	OnDirectMessage(ctx context.Context, tenantID, senderName, recipientID, preview string)
}

// Service holds the chat hub state.
type Service struct {
	guard    *conversation.Guard
	members  conversation.MembershipStore
	presence *Presence
	notifier DirectMessageNotifier
	detach   func(worker.Task) error
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier forwards direct messages to n. submit runs the notification
// outside the invocation; nil runs it inline.
func WithNotifier(n DirectMessageNotifier, submit func(worker.Task) error) Option {
	return func(s *Service) {
		s.notifier = n
		if submit != nil {
			s.detach = submit
		}
	}
}

// Register installs the chat methods and presence hooks on h.
func Register(h *realtime.Hub, guard *conversation.Guard, members conversation.MembershipStore, opts ...Option) *Service {
	s := &Service{
		guard:    guard,
		members:  members,
		presence: NewPresence(),
		detach: func(task worker.Task) error {
			task(context.Background())
			return nil
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	h.Handle(MethodSendMessageToTenant, s.sendMessageToTenant)
	h.Handle(MethodSendDirectMessage, s.sendDirectMessage)
	h.Handle(MethodJoinConversation, s.joinConversation)
	h.Handle(MethodSendMessageToConversation, s.sendMessageToConversation)
	h.Handle(MethodLeaveConversation, s.leaveConversation)
	h.Handle(MethodNotifyTyping, s.notifyTyping)
	h.Handle(MethodNotifyStoppedTyping, s.notifyStoppedTyping)
	h.Handle(MethodGetUserConversations, s.getUserConversations)

	h.OnConnected(func(ctx context.Context, sess *realtime.Session) { s.connected(ctx, h, sess) })
	h.OnDisconnected(func(ctx context.Context, sess *realtime.Session) { s.disconnected(ctx, h, sess) })
	return s
}

// IsOnline reports whether the user has a live chat connection on this node.
func (s *Service) IsOnline(tenantID, userID string) bool {
	return s.presence.IsOnline(tenantID, userID)
}

func (s *Service) connected(ctx context.Context, h *realtime.Hub, sess *realtime.Session) {
	id := sess.Identity
	first := s.presence.Connect(id.TenantID, id.UserID, id.Name())
	logger.Info("User connected to chat hub",
		zap.String("tenant_id", id.TenantID),
		zap.String("user_id", id.UserID),
		zap.Bool("first_connection", first),
	)

	_ = h.SendToConnection(ctx, sess.ID(), EventOnlineUsers, s.presence.Online(id.TenantID))
	if first {
		_ = h.SendToTenant(ctx, id.TenantID, EventUserConnected, id.UserID, id.Name())
	}
}

func (s *Service) disconnected(ctx context.Context, h *realtime.Hub, sess *realtime.Session) {
	id := sess.Identity
	if !s.presence.Disconnect(id.TenantID, id.UserID) {
		return
	}
	logger.Info("User left chat hub",
		zap.String("tenant_id", id.TenantID),
		zap.String("user_id", id.UserID),
	)
	_ = h.SendToTenant(ctx, id.TenantID, EventUserDisconnected, id.UserID, id.Name())
}

func (s *Service) newMessage(call *realtime.Call, text string) Message {
	caller := call.Caller()
	return Message{
		ID:        ids.New(ids.PrefixMessage),
		UserID:    caller.UserID,
		UserName:  caller.Name(),
		TenantID:  caller.TenantID,
		Message:   text,
		Timestamp: s.now().UTC(),
	}
}

// sendMessageToTenant(message)
func (s *Service) sendMessageToTenant(ctx context.Context, call *realtime.Call) (any, error) {
	text, err := call.String(0, "message")
	if err != nil {
		return nil, err
	}
	msg := s.newMessage(call, text)
	logger.Info("Tenant chat message",
		zap.String("tenant_id", msg.TenantID),
		zap.String("user_id", msg.UserID),
		zap.String("preview", Preview(text)),
	)
	return msg, call.Hub.SendToTenant(ctx, msg.TenantID, EventReceiveMessage, msg)
}

// sendDirectMessage(recipientUserId, message) delivers to the recipient's
// connections in the caller's tenant and echoes to the caller.
func (s *Service) sendDirectMessage(ctx context.Context, call *realtime.Call) (any, error) {
	recipient, err := call.String(0, "recipientUserId")
	if err != nil {
		return nil, err
	}
	text, err := call.String(1, "message")
	if err != nil {
		return nil, err
	}
	msg := s.newMessage(call, text)
	msg.IsDirectMessage = true
	msg.RecipientUserID = recipient

	logger.Info("Direct message",
		zap.String("tenant_id", msg.TenantID),
		zap.String("user_id", msg.UserID),
		zap.String("recipient_id", recipient),
	)

	if err := call.Hub.SendToUserInTenant(ctx, msg.TenantID, recipient, EventReceiveDirectMessage, msg); err != nil {
		return nil, err
	}
	if err := call.SendToCaller(ctx, EventReceiveDirectMessage, msg); err != nil {
		return nil, err
	}

	if s.notifier != nil && recipient != msg.UserID {
		tenantID, sender, preview := msg.TenantID, msg.UserName, Preview(text)
		err := s.detach(func(ctx context.Context) {
			s.notifier.OnDirectMessage(ctx, tenantID, sender, recipient, preview)
		})
		if err != nil {
			logger.Warn("Missed-message notification not scheduled",
				zap.String("tenant_id", tenantID),
				zap.String("user_id", recipient),
				zap.Error(err),
			)
		}
	}
	return msg, nil
}

// joinConversation(conversationId)
func (s *Service) joinConversation(ctx context.Context, call *realtime.Call) (any, error) {
	convID, err := call.String(0, "conversationId")
	if err != nil {
		return nil, err
	}
	caller := call.Caller()

	if d := s.guard.CanJoin(ctx, convID, caller.UserID, caller.TenantID); !d.Allowed {
		return nil, apperrors.ErrJoinDeniedf(convID, d.Reason)
	}
	if err := s.members.Join(ctx, convID, caller.TenantID); err != nil {
		return nil, err
	}
	group := realtime.ConversationGroup(convID)
	if err := call.Hub.AddToGroup(call.ConnectionID(), group); err != nil {
		return nil, err
	}

	logger.Info("User joined conversation",
		zap.String("tenant_id", caller.TenantID),
		zap.String("user_id", caller.UserID),
		zap.String("conversation_id", convID),
	)
	_ = call.Hub.SendToGroupExcept(ctx, group, call.ConnectionID(), EventUserJoinedConversation,
		convID, caller.UserID, caller.Name(), caller.TenantID)
	return nil, nil
}

// sendMessageToConversation(conversationId, message)
func (s *Service) sendMessageToConversation(ctx context.Context, call *realtime.Call) (any, error) {
	convID, err := call.String(0, "conversationId")
	if err != nil {
		return nil, err
	}
	text, err := call.String(1, "message")
	if err != nil {
		return nil, err
	}
	caller := call.Caller()

	if d := s.guard.CanSend(ctx, convID, caller.UserID, caller.TenantID); !d.Allowed {
		return nil, apperrors.ErrSendDeniedf(convID, d.Reason)
	}

	msg := s.newMessage(call, text)
	msg.ConversationID = convID
	msg.IsCrossTenant = true
	logger.Info("Conversation message",
		zap.String("tenant_id", caller.TenantID),
		zap.String("user_id", caller.UserID),
		zap.String("conversation_id", convID),
		zap.String("preview", Preview(text)),
	)
	return msg, call.Hub.SendToGroup(ctx, realtime.ConversationGroup(convID), EventReceiveConversationMessage, msg)
}

// leaveConversation(conversationId) removes only this connection from the
// conversation group. Tenant participation is kept.
func (s *Service) leaveConversation(ctx context.Context, call *realtime.Call) (any, error) {
	convID, err := call.String(0, "conversationId")
	if err != nil {
		return nil, err
	}
	caller := call.Caller()
	group := realtime.ConversationGroup(convID)
	call.Hub.RemoveFromGroup(call.ConnectionID(), group)

	logger.Info("User left conversation",
		zap.String("tenant_id", caller.TenantID),
		zap.String("user_id", caller.UserID),
		zap.String("conversation_id", convID),
	)
	_ = call.Hub.SendToGroup(ctx, group, EventUserLeftConversation,
		convID, caller.UserID, caller.Name(), caller.TenantID)
	return nil, nil
}

func (s *Service) notifyTyping(ctx context.Context, call *realtime.Call) (any, error) {
	caller := call.Caller()
	return nil, call.Hub.SendToGroupExcept(ctx, realtime.TenantGroup(caller.TenantID), call.ConnectionID(),
		EventUserTyping, caller.UserID, caller.Name())
}

func (s *Service) notifyStoppedTyping(ctx context.Context, call *realtime.Call) (any, error) {
	caller := call.Caller()
	return nil, call.Hub.SendToGroupExcept(ctx, realtime.TenantGroup(caller.TenantID), call.ConnectionID(),
		EventUserStoppedTyping, caller.UserID)
}

func (s *Service) getUserConversations(ctx context.Context, call *realtime.Call) (any, error) {
	caller := call.Caller()
	return s.guard.UserConversations(ctx, caller.UserID, caller.TenantID)
}

// Preview shortens text for logs and notifications.
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= previewRunes {
		return text
	}
	return string(r[:previewRunes]) + "..."
}
