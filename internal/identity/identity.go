// Package identity resolves tenant and user identity from connection claims.
//
// Claims are checked in a fixed order and the first non-empty value wins.
// When no claim carries the value, a query parameter of the handshake request
// is used. A connection without both a tenant and a user is never admitted.
package identity

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/pkg/logger"
)

// ErrIdentityNotFound is returned when neither claims nor query carry the value.
var ErrIdentityNotFound = errors.New("identity not found")

// Claim and query parameter names, in resolution order.
var (
	TenantClaims = []string{"tenant_id", "tid", "TenantId"}
	UserClaims   = []string{"sub", "user_id", "uid"}
	NameClaims   = []string{"name", "given_name"}
	EmailClaims  = []string{"email"}

	TenantQueryParam = "tenantId"
	UserQueryParam   = "userId"
)

// Source exposes what the resolver needs from a connection handshake.
type Source interface {
	Claim(name string) string
	ClaimNames() []string
	QueryParam(name string) string
}

// Identity is the resolved caller.
type Identity struct {
	TenantID    string `json:"tenant_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Name returns the display name, falling back to the user ID.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.UserID
}

// Claims is a decoded token claim set.
type Claims map[string]any

// Handshake is a Source backed by claims and the request query string.
type Handshake struct {
	Claims Claims
	Query  url.Values
}

// Claim returns the claim as a string. Non-string scalars are formatted.
func (h Handshake) Claim(name string) string {
	v, ok := h.Claims[name]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return fmt.Sprintf("%.0f", val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// ClaimNames returns the claim keys, sorted.
func (h Handshake) ClaimNames() []string {
	names := make([]string, 0, len(h.Claims))
	for k := range h.Claims {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// QueryParam returns the first value of a query parameter.
func (h Handshake) QueryParam(name string) string {
	if h.Query == nil {
		return ""
	}
	return strings.TrimSpace(h.Query.Get(name))
}

// Resolver resolves identities. The zero value uses the default claim lists.
type Resolver struct {
	tenantClaims []string
	userClaims   []string
	// allowQuery enables the tenantId/userId query parameters.
	allowQuery bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithoutQueryFallback disables identity from query parameters.
func WithoutQueryFallback() Option {
	return func(r *Resolver) { r.allowQuery = false }
}

// WithTenantClaims overrides the tenant claim order.
func WithTenantClaims(names ...string) Option {
	return func(r *Resolver) { r.tenantClaims = names }
}

// NewResolver creates a Resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		tenantClaims: TenantClaims,
		userClaims:   UserClaims,
		allowQuery:   true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveTenantID returns the caller's tenant.
func (r *Resolver) ResolveTenantID(src Source) (string, error) {
	if v := r.lookup(src, r.tenantClaims, TenantQueryParam); v != "" {
		return v, nil
	}
	logger.Warn("Tenant ID not found in claims or query",
		zap.Strings("available_claims", src.ClaimNames()),
	)
	return "", fmt.Errorf("tenant: %w", ErrIdentityNotFound)
}

// ResolveUserID returns the caller's user.
func (r *Resolver) ResolveUserID(src Source) (string, error) {
	if v := r.lookup(src, r.userClaims, UserQueryParam); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("user: %w", ErrIdentityNotFound)
}

// Resolve returns the full identity. Tenant and user are required.
func (r *Resolver) Resolve(src Source) (Identity, error) {
	tenantID, err := r.ResolveTenantID(src)
	if err != nil {
		return Identity{}, err
	}
	userID, err := r.ResolveUserID(src)
	if err != nil {
		return Identity{}, err
	}
	return Identity{
		TenantID:    tenantID,
		UserID:      userID,
		DisplayName: first(src, NameClaims),
		Email:       first(src, EmailClaims),
	}, nil
}

func (r *Resolver) lookup(src Source, claims []string, queryParam string) string {
	if v := first(src, claims); v != "" {
		return v
	}
	if r.allowQuery {
		return src.QueryParam(queryParam)
	}
	return ""
}

func first(src Source, names []string) string {
	for _, name := range names {
		if v := src.Claim(name); v != "" {
			return v
		}
	}
	return ""
}
