package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tenantcast.dev/tenantcast/internal/domain"
	"tenantcast.dev/tenantcast/internal/pkg/logger"
)

// Outcome is the per-channel result of a dispatch.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
	// OutcomeDisabled: requested but switched off in the user's preferences.
	OutcomeDisabled Outcome = "disabled"
	// OutcomeSkipped: requested and enabled but no sender is wired for it.
	OutcomeSkipped Outcome = "skipped"
)

// ChannelResult is the outcome of one channel.
type ChannelResult struct {
	Channel string  `json:"channel"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

// Result summarizes a dispatch. Callers that only need fire-and-forget
// semantics can ignore it.
type Result struct {
	Suppressed bool            `json:"suppressed"`
	Channels   []ChannelResult `json:"channels"`
}

// Outcome returns the outcome recorded for c, or "" when c was not requested.
func (r Result) Outcome(c domain.Channel) Outcome {
	for _, cr := range r.Channels {
		if cr.Channel == c.String() {
			return cr.Outcome
		}
	}
	return ""
}

// Stores groups the persistence collaborators of the dispatcher.
type Stores struct {
	Notifications NotificationStore
	Preferences   PreferencesStore
	Tokens        PushTokenStore
}

// Dispatcher is the multi-channel notification orchestrator.
type Dispatcher struct {
	stores       Stores
	senders      map[domain.Channel]ChannelSender
	broadcasters map[domain.Channel]TenantBroadcaster
	location     *time.Location
	now          func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithQuietHoursLocation sets the zone quiet hours are evaluated in.
func WithQuietHoursLocation(loc *time.Location) DispatcherOption {
	return func(d *Dispatcher) {
		if loc != nil {
			d.location = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// WithSender wires a channel sender. Channels without a sender (email and
// SMS unless provided) are reported as skipped.
func WithSender(s ChannelSender) DispatcherOption {
	return func(d *Dispatcher) {
		d.senders[s.Channel()] = s
		if b, ok := s.(TenantBroadcaster); ok {
			d.broadcasters[s.Channel()] = b
		}
	}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(stores Stores, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		stores:       stores,
		senders:      make(map[domain.Channel]ChannelSender),
		broadcasters: make(map[domain.Channel]TenantBroadcaster),
		location:     time.Local,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendToUser delivers req through every requested channel the user has
// enabled, unless the current time is inside the user's quiet hours.
// Channel failures never fail the call; they are logged and recorded.
func (d *Dispatcher) SendToUser(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if req.Channels == domain.ChannelsNone {
		req.Channels = domain.ChannelsAll
	}

	prefs, err := d.Preferences(ctx, req.TenantID, req.UserID)
	if err != nil {
		return Result{}, err
	}

	if prefs.InQuietHours(d.now().In(d.location)) {
		logger.Info("Notification suppressed by quiet hours",
			zap.String("tenant_id", req.TenantID),
			zap.String("user_id", req.UserID),
		)
		return Result{Suppressed: true}, nil
	}

	enabled := prefs.Enabled()
	return d.fanOut(ctx, req.Channels, func(c domain.Channel) (Outcome, func(context.Context) error) {
		if !enabled.Has(c) {
			return OutcomeDisabled, nil
		}
		sender, ok := d.senders[c]
		if !ok {
			logger.Debug("No sender wired for channel", zap.String("channel", c.String()))
			return OutcomeSkipped, nil
		}
		return "", func(ctx context.Context) error { return sender.Deliver(ctx, req) }
	}, zap.String("tenant_id", req.TenantID), zap.String("user_id", req.UserID)), nil
}

// SendToTenant broadcasts to every live connection and every active device
// of a tenant. Individual preferences are not consulted.
func (d *Dispatcher) SendToTenant(ctx context.Context, req TenantRequest) (Result, error) {
	if req.TenantID == "" || req.Title == "" {
		return Result{}, errors.New("tenant_id and title are required")
	}
	if req.Channels == domain.ChannelsNone {
		req.Channels = domain.NewChannels(domain.ChannelInApp, domain.ChannelPush)
	}

	return d.fanOut(ctx, req.Channels, func(c domain.Channel) (Outcome, func(context.Context) error) {
		b, ok := d.broadcasters[c]
		if !ok {
			return OutcomeSkipped, nil
		}
		return "", func(ctx context.Context) error { return b.Broadcast(ctx, req) }
	}, zap.String("tenant_id", req.TenantID)), nil
}

// plan decides a channel up front: either a final outcome or a delivery to run.
type plan func(c domain.Channel) (Outcome, func(context.Context) error)

// fanOut runs the planned deliveries concurrently and waits for all of them.
// Every branch returns nil so no failure cancels its siblings.
func (d *Dispatcher) fanOut(ctx context.Context, channels domain.Channels, decide plan, scope ...zap.Field) Result {
	list := channels.List()
	results := make([]ChannelResult, len(list))

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for i, c := range list {
		results[i] = ChannelResult{Channel: c.String()}
		outcome, run := decide(c)
		if run == nil {
			results[i].Outcome = outcome
			continue
		}
		g.Go(func() error {
			err := deliverIsolated(ctx, run)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[i].Outcome = OutcomeFailed
				results[i].Error = err.Error()
				fields := make([]zap.Field, 0, len(scope)+2)
				fields = append(fields, scope...)
				logger.Error("Notification channel failed",
					append(fields, zap.String("channel", c.String()), zap.Error(err))...)
				return nil
			}
			results[i].Outcome = OutcomeDelivered
			return nil
		})
	}
	_ = g.Wait()

	return Result{Channels: results}
}

func deliverIsolated(ctx context.Context, run func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("channel panicked: %v", p)
		}
	}()
	return run(ctx)
}

// Preferences returns the user's preferences, creating the all-enabled
// defaults on first use. Concurrent first calls converge on one row.
func (d *Dispatcher) Preferences(ctx context.Context, tenantID, userID string) (*domain.NotificationPreferences, error) {
	prefs, err := d.stores.Preferences.GetByUserID(ctx, userID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load preferences for user %s: %w", userID, err)
	}

	prefs, err = d.stores.Preferences.Create(ctx, domain.DefaultPreferences(tenantID, userID, d.now()))
	if err != nil {
		return nil, fmt.Errorf("create default preferences for user %s: %w", userID, err)
	}
	logger.Info("Default notification preferences created",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
	)
	return prefs, nil
}

// PreferencesUpdate is a partial update; nil fields are left unchanged.
type PreferencesUpdate struct {
	EmailEnabled *bool
	InAppEnabled *bool
	PushEnabled  *bool
	SMSEnabled   *bool
	// QuietHours replaces the window when SetQuietHours is true; nil clears it.
	SetQuietHours bool
	QuietHours    *domain.QuietHours
}

// UpdatePreferences applies u to the user's preferences.
func (d *Dispatcher) UpdatePreferences(ctx context.Context, tenantID, userID string, u PreferencesUpdate) (*domain.NotificationPreferences, error) {
	prefs, err := d.Preferences(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	apply := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&prefs.EmailEnabled, u.EmailEnabled)
	apply(&prefs.InAppEnabled, u.InAppEnabled)
	apply(&prefs.PushEnabled, u.PushEnabled)
	apply(&prefs.SMSEnabled, u.SMSEnabled)
	prefs.UpdatedAt = d.now().UTC()
	if u.SetQuietHours {
		if err := prefs.SetQuietHours(u.QuietHours, d.now()); err != nil {
			return nil, err
		}
	}

	if err := d.stores.Preferences.Update(ctx, prefs); err != nil {
		return nil, fmt.Errorf("update preferences for user %s: %w", userID, err)
	}
	return prefs, nil
}

// UserStats returns the user's notification counts and active device count.
func (d *Dispatcher) UserStats(ctx context.Context, userID string) (domain.Stats, error) {
	var (
		g                     errgroup.Group
		total, unread, tokens int64
	)
	g.Go(func() (err error) {
		total, err = d.stores.Notifications.CountByUser(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		unread, err = d.stores.Notifications.CountUnread(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		tokens, err = d.stores.Tokens.CountActiveByUser(ctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Stats{}, fmt.Errorf("user stats for %s: %w", userID, err)
	}
	return domain.NewStats(total, unread, tokens), nil
}
