package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/domain"
	"tenantcast.dev/tenantcast/internal/pkg/logger"
	"tenantcast.dev/tenantcast/internal/push"
)

// ErrEmptyToken is returned when registering a blank device token.
var ErrEmptyToken = errors.New("push token is empty")

// PushSender delivers through the push gateway and keeps the token table
// honest: tokens the gateway reports as permanently undeliverable are
// deactivated, transient failures leave them untouched.
type PushSender struct {
	tokens  PushTokenStore
	gateway push.Gateway
	now     func() time.Time
}

// NewPushSender creates a push sender.
func NewPushSender(tokens PushTokenStore, gateway push.Gateway) *PushSender {
	return &PushSender{tokens: tokens, gateway: gateway, now: time.Now}
}

// Channel implements ChannelSender.
func (s *PushSender) Channel() domain.Channel { return domain.ChannelPush }

// Deliver implements ChannelSender.
func (s *PushSender) Deliver(ctx context.Context, req Request) error {
	tokens, err := s.tokens.ListActiveByUser(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("load push tokens for user %s: %w", req.UserID, err)
	}
	_, err = s.send(ctx, messageOf(req.Title, req.Message, req.ImageURL, req.ActionURL, req.Type, req.Data), tokens,
		zap.String("user_id", req.UserID))
	return err
}

// Broadcast implements TenantBroadcaster.
func (s *PushSender) Broadcast(ctx context.Context, req TenantRequest) error {
	_, err := s.SendToTenant(ctx, req.TenantID, messageOf(req.Title, req.Message, "", req.ActionURL, req.Type, req.Data))
	return err
}

// SendToTenant pushes msg to every active token of the tenant and returns
// the number of devices that accepted it.
func (s *PushSender) SendToTenant(ctx context.Context, tenantID string, msg push.Message) (int, error) {
	tokens, err := s.tokens.ListActiveByTenant(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("load push tokens for tenant %s: %w", tenantID, err)
	}
	return s.send(ctx, msg, tokens, zap.String("tenant_id", tenantID))
}

func (s *PushSender) send(ctx context.Context, msg push.Message, tokens []*domain.PushToken, scope zap.Field) (int, error) {
	if len(tokens) == 0 {
		logger.Debug("No active push tokens, push skipped", scope)
		return 0, nil
	}

	values := make([]string, len(tokens))
	for i, t := range tokens {
		values[i] = t.Token
	}

	res, err := s.gateway.SendMulticast(ctx, msg, values)
	if err != nil {
		logger.Error("Push gateway call failed", scope, zap.Int("tokens", len(values)), zap.Error(err))
		return 0, fmt.Errorf("push gateway: %w", err)
	}

	now := s.now()
	for _, r := range res.Results {
		if !r.OK() && !r.Code.Permanent() {
			logger.Warn("Push delivery failed for token", scope,
				zap.String("token", redact(r.Token)),
				zap.String("reason", string(r.Code)),
				zap.Error(r.Err),
			)
		}
	}
	for _, token := range res.PermanentFailures() {
		if _, err := s.tokens.Deactivate(ctx, token, now); err != nil {
			logger.Error("Failed to deactivate push token", scope, zap.Error(err))
			continue
		}
		logger.Info("Push token deactivated", scope, zap.String("token", redact(token)))
	}
	delivered := res.Delivered()
	if len(delivered) > 0 {
		if err := s.tokens.Touch(ctx, delivered, now); err != nil {
			logger.Warn("Failed to update push token last use", scope, zap.Error(err))
		}
	}

	logger.Info("Push sent", scope,
		zap.Int("success", res.SuccessCount),
		zap.Int("failure", res.FailureCount),
	)
	return res.SuccessCount, nil
}

// RegisterToken stores a device token for the user. A known token is
// reactivated and moved to the caller; it is never duplicated.
func (s *PushSender) RegisterToken(ctx context.Context, tenantID, userID, token string, device domain.DeviceType, info string) (*domain.PushToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyToken
	}
	now := s.now()

	existing, err := s.tokens.GetByToken(ctx, token)
	switch {
	case err == nil:
		return s.reactivate(ctx, existing, tenantID, userID, device, info, now)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("lookup push token: %w", err)
	}

	created := domain.NewPushToken(tenantID, userID, token, device, info, now)
	err = s.tokens.Add(ctx, created)
	if errors.Is(err, domain.ErrAlreadyExists) {
		// Lost a race with a concurrent registration of the same device.
		existing, err = s.tokens.GetByToken(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("lookup push token after conflict: %w", err)
		}
		return s.reactivate(ctx, existing, tenantID, userID, device, info, now)
	}
	if err != nil {
		return nil, fmt.Errorf("add push token: %w", err)
	}
	logger.Info("Push token registered",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.String("device_type", string(device)),
	)
	return created, nil
}

func (s *PushSender) reactivate(ctx context.Context, t *domain.PushToken, tenantID, userID string, device domain.DeviceType, info string, now time.Time) (*domain.PushToken, error) {
	t.Reactivate(tenantID, userID, device, info, now)
	if err := s.tokens.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("reactivate push token: %w", err)
	}
	logger.Info("Push token reactivated",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", userID),
		zap.String("device_type", string(device)),
	)
	return t, nil
}

// UnregisterToken deactivates one of the user's tokens. It reports false when
// the token is unknown, owned by someone else, or already inactive.
func (s *PushSender) UnregisterToken(ctx context.Context, userID, token string) (bool, error) {
	existing, err := s.tokens.GetByToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup push token: %w", err)
	}
	if existing.UserID != userID {
		return false, nil
	}
	return s.tokens.Deactivate(ctx, token, s.now())
}

func messageOf(title, body, image, action string, typ domain.NotificationType, data map[string]string) push.Message {
	if typ == "" {
		typ = domain.TypeInfo
	}
	merged := make(map[string]string, len(data)+1)
	for k, v := range data {
		merged[k] = v
	}
	merged["type"] = string(typ)
	return push.Message{Title: title, Body: body, ImageURL: image, ActionURL: action, Data: merged}
}

// redact keeps enough of a token to correlate log lines.
func redact(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "…" + token[len(token)-4:]
}

var (
	_ ChannelSender     = (*PushSender)(nil)
	_ TenantBroadcaster = (*PushSender)(nil)
)
