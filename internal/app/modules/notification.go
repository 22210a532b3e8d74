package modules

import (
	"context"

	"github.com/riverqueue/river"

	"tenantcast.dev/tenantcast/internal/api/handlers"
	"tenantcast.dev/tenantcast/internal/governance/audit"
	"tenantcast.dev/tenantcast/internal/jobs"
	"tenantcast.dev/tenantcast/internal/notification"
	"tenantcast.dev/tenantcast/internal/realtime"
)

// NotificationHubName is the hub served at /hubs/notifications.
const NotificationHubName = "notifications"

// NotificationModule wires the notification hub, the channel senders and
// the dispatcher.
type NotificationModule struct {
	infra      *Infrastructure
	hub        *realtime.Hub
	inApp      *notification.InAppSender
	push       *notification.PushSender
	dispatcher *notification.Dispatcher
}

// NewNotificationModule creates the notification module.
func NewNotificationModule(infra *Infrastructure) *NotificationModule {
	hub := infra.NewHub(NotificationHubName)
	stores := infra.Stores

	inApp := notification.NewInAppSender(stores.Notifications, hub)
	notification.RegisterHub(hub, inApp)
	pushSender := notification.NewPushSender(stores.Tokens, infra.Gateway)

	dispatcher := notification.NewDispatcher(stores,
		notification.WithSender(inApp),
		notification.WithSender(pushSender),
		notification.WithQuietHoursLocation(infra.Location),
	)

	return &NotificationModule{
		infra:      infra,
		hub:        hub,
		inApp:      inApp,
		push:       pushSender,
		dispatcher: dispatcher,
	}
}

func (m *NotificationModule) Name() string { return "notification" }

// Hub returns the notifications hub.
func (m *NotificationModule) Hub() *realtime.Hub { return m.hub }

// Dispatcher returns the multi-channel dispatcher.
func (m *NotificationModule) Dispatcher() *notification.Dispatcher { return m.dispatcher }

// Triggers creates the chat-event triggers on this module's dispatcher.
func (m *NotificationModule) Triggers(online notification.OnlineChecker) *notification.Triggers {
	return notification.NewTriggers(m.dispatcher, online)
}

func (m *NotificationModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Dispatcher = m.dispatcher
	deps.InApp = m.inApp
	deps.Push = m.push
	deps.Audit = audit.NewLogger(m.infra.Audit)
}

func (m *NotificationModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, m.staleTokenWorker())
}

func (m *NotificationModule) PeriodicJobs() []*river.PeriodicJob {
	return []*river.PeriodicJob{jobs.PeriodicStaleTokenSweep()}
}

func (m *NotificationModule) staleTokenWorker() *jobs.StaleTokenSweepWorker {
	return jobs.NewStaleTokenSweepWorker(m.infra.StaleTokens, m.infra.Config.Notification.StaleTokenAfter)
}

// SweepStaleTokens runs one stale token pass outside River.
func (m *NotificationModule) SweepStaleTokens(ctx context.Context) error {
	return m.staleTokenWorker().Sweep(ctx)
}

func (m *NotificationModule) Shutdown(context.Context) error {
	m.hub.Close()
	return nil
}
