package conversation

import (
	"context"
	"fmt"
	"strings"
)

// Authorizer names accepted by conversation.authorizer.
const (
	AuthorizerNone     = "none"
	AuthorizerDeny     = "deny"
	AuthorizerMatch    = "match"
	AuthorizerProperty = "property"
)

// NewAuthorizer returns the built-in authorizer called name. "none" yields
// nil, leaving the decision to the guard's require-authorization setting.
func NewAuthorizer(name string) (Authorizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AuthorizerNone:
		return nil, nil
	case AuthorizerDeny:
		return DenyAll{}, nil
	case AuthorizerMatch:
		return MatchAuthorizer{}, nil
	case AuthorizerProperty:
		return PropertyAuthorizer{}, nil
	default:
		return nil, fmt.Errorf("unknown conversation authorizer %q", name)
	}
}

// DenyAll rejects everything.
type DenyAll struct{}

func (DenyAll) CanJoin(context.Context, string, string, string) (bool, error) { return false, nil }
func (DenyAll) CanSend(context.Context, string, string, string) (bool, error) { return false, nil }
func (DenyAll) UserConversations(context.Context, string, string) ([]string, error) {
	return []string{}, nil
}

// MatchAuthorizer admits the two users named in a "match-{user1}-{user2}"
// conversation ID. User IDs containing '-' cannot be matched.
type MatchAuthorizer struct{}

const matchPrefix = "match-"

// MatchConversationID builds the conversation ID for two users.
func MatchConversationID(user1, user2 string) string {
	return matchPrefix + user1 + "-" + user2
}

func (MatchAuthorizer) CanJoin(_ context.Context, conversationID, userID, _ string) (bool, error) {
	if !strings.HasPrefix(conversationID, matchPrefix) {
		return false, nil
	}
	parts := strings.Split(conversationID, "-")
	if len(parts) != 3 {
		return false, nil
	}
	return userID != "" && (userID == parts[1] || userID == parts[2]), nil
}

func (a MatchAuthorizer) CanSend(ctx context.Context, conversationID, userID, tenantID string) (bool, error) {
	return a.CanJoin(ctx, conversationID, userID, tenantID)
}

// UserConversations is empty: matches live outside this service.
func (MatchAuthorizer) UserConversations(context.Context, string, string) ([]string, error) {
	return []string{}, nil
}

// PropertyAuthorizer admits any authenticated user to "property-{id}"
// conversations.
type PropertyAuthorizer struct{}

const propertyPrefix = "property-"

func (PropertyAuthorizer) CanJoin(_ context.Context, conversationID, userID, _ string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	id, ok := strings.CutPrefix(conversationID, propertyPrefix)
	return ok && id != "", nil
}

func (a PropertyAuthorizer) CanSend(ctx context.Context, conversationID, userID, tenantID string) (bool, error) {
	return a.CanJoin(ctx, conversationID, userID, tenantID)
}

func (PropertyAuthorizer) UserConversations(context.Context, string, string) ([]string, error) {
	return []string{}, nil
}

var (
	_ Authorizer = DenyAll{}
	_ Authorizer = MatchAuthorizer{}
	_ Authorizer = PropertyAuthorizer{}
)
