package modules

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/api/handlers"
	"tenantcast.dev/tenantcast/internal/chat"
	"tenantcast.dev/tenantcast/internal/conversation"
	"tenantcast.dev/tenantcast/internal/pkg/logger"
	"tenantcast.dev/tenantcast/internal/realtime"
)

// ChatHubName is the hub served at /hubs/chat.
const ChatHubName = "chat"

// ChatModule wires the chat hub, its conversation guard and the direct
// message notification triggers.
type ChatModule struct {
	hub     *realtime.Hub
	service *chat.Service
}

// NewChatModule creates the chat module. Direct messages to offline users
// are handed to notifications' dispatcher on the background pool.
func NewChatModule(infra *Infrastructure, notifications *NotificationModule) (*ChatModule, error) {
	cfg := infra.Config.Conversation
	authorizer, err := conversation.NewAuthorizer(cfg.Authorizer)
	if err != nil {
		return nil, fmt.Errorf("conversation authorizer: %w", err)
	}
	guard := conversation.NewGuard(authorizer, cfg.RequireAuthorization)
	logger.Info("Chat conversation guard configured",
		zap.String("authorizer", cfg.Authorizer),
		zap.Bool("require_authorization", cfg.RequireAuthorization),
		zap.String("membership_store", cfg.Store),
	)

	hub := infra.NewHub(ChatHubName)
	m := &ChatModule{hub: hub}

	var opts []chat.Option
	if notifications != nil {
		// The checker is only consulted after Register returns.
		triggers := notifications.Triggers(func(tenantID, userID string) bool {
			return m.service != nil && m.service.IsOnline(tenantID, userID)
		})
		opts = append(opts, chat.WithNotifier(triggers, infra.SubmitBackground))
	}
	m.service = chat.Register(hub, guard, infra.Members, opts...)
	return m, nil
}

func (m *ChatModule) Name() string { return "chat" }

// Hub returns the chat hub.
func (m *ChatModule) Hub() *realtime.Hub { return m.hub }

// Service returns the chat service.
func (m *ChatModule) Service() *chat.Service { return m.service }

func (m *ChatModule) ContributeServerDeps(*handlers.ServerDeps) {}

func (m *ChatModule) RegisterWorkers(*river.Workers) {}

func (m *ChatModule) PeriodicJobs() []*river.PeriodicJob { return nil }

func (m *ChatModule) Shutdown(context.Context) error {
	m.hub.Close()
	return nil
}
