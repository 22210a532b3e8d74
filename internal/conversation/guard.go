// Package conversation decides who may join and post to cross-tenant
// conversations and records which tenants take part in each one.
package conversation

import (
	"context"

	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/pkg/logger"
)

// Decision is the outcome of an access check. Denials carry a reason for
// logs; it is not shown to clients.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the positive decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny returns a negative decision with reason.
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Authorizer is the application-supplied access policy.
type Authorizer interface {
	CanJoin(ctx context.Context, conversationID, userID, tenantID string) (bool, error)
	CanSend(ctx context.Context, conversationID, userID, tenantID string) (bool, error)
	// UserConversations lists the conversations the user may access.
	UserConversations(ctx context.Context, userID, tenantID string) ([]string, error)
}

// Guard wraps an optional Authorizer and never fails: every error becomes a
// denial.
type Guard struct {
	authorizer           Authorizer
	requireAuthorization bool
}

// NewGuard creates a guard. With a nil authorizer every check is denied
// unless requireAuthorization is false, in which case it is allowed with a
// warning.
func NewGuard(authorizer Authorizer, requireAuthorization bool) *Guard {
	return &Guard{authorizer: authorizer, requireAuthorization: requireAuthorization}
}

// CanJoin decides whether the user may join the conversation.
func (g *Guard) CanJoin(ctx context.Context, conversationID, userID, tenantID string) Decision {
	return g.check(ctx, "join", conversationID, userID, tenantID, func(a Authorizer) (bool, error) {
		return a.CanJoin(ctx, conversationID, userID, tenantID)
	})
}

// CanSend decides whether the user may post to the conversation.
func (g *Guard) CanSend(ctx context.Context, conversationID, userID, tenantID string) Decision {
	return g.check(ctx, "send", conversationID, userID, tenantID, func(a Authorizer) (bool, error) {
		return a.CanSend(ctx, conversationID, userID, tenantID)
	})
}

// UserConversations lists the user's accessible conversations. Without an
// authorizer the list is empty.
func (g *Guard) UserConversations(ctx context.Context, userID, tenantID string) ([]string, error) {
	if g.authorizer == nil {
		return []string{}, nil
	}
	return g.authorizer.UserConversations(ctx, userID, tenantID)
}

func (g *Guard) check(ctx context.Context, action, conversationID, userID, tenantID string, ask func(Authorizer) (bool, error)) Decision {
	fields := []zap.Field{
		zap.String("action", action),
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID),
		zap.String("tenant_id", tenantID),
	}

	if ctx.Err() != nil {
		return Deny("request cancelled")
	}
	if conversationID == "" {
		return Deny("empty conversation id")
	}

	if g.authorizer == nil {
		if g.requireAuthorization {
			logger.Warn("Conversation access denied: no authorizer configured", fields...)
			return Deny("no authorizer configured")
		}
		logger.Warn("No conversation authorizer configured, allowing unrestricted access", fields...)
		return Allow()
	}

	ok, err := ask(g.authorizer)
	if err != nil {
		logger.Error("Conversation authorizer failed, denying", append(fields, zap.Error(err))...)
		return Deny("authorizer error")
	}
	if !ok {
		logger.Warn("Conversation access denied", fields...)
		return Deny("not authorized")
	}
	return Allow()
}
