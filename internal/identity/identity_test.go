package identity

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTenantID(t *testing.T) {
	tests := []struct {
		name    string
		claims  Claims
		query   url.Values
		want    string
		wantErr bool
	}{
		{"tenant_id wins", Claims{"tenant_id": "t1", "tid": "t2", "TenantId": "t3"}, nil, "t1", false},
		{"tid second", Claims{"tid": "t2", "TenantId": "t3"}, nil, "t2", false},
		{"TenantId third", Claims{"TenantId": "t3"}, nil, "t3", false},
		{"empty claim skipped", Claims{"tenant_id": "  ", "tid": "t2"}, nil, "t2", false},
		{"claim beats query", Claims{"tid": "t2"}, url.Values{"tenantId": {"q"}}, "t2", false},
		{"query fallback", Claims{}, url.Values{"tenantId": {"q"}}, "q", false},
		{"numeric claim", Claims{"tid": float64(42)}, nil, "42", false},
		{"missing", Claims{"sub": "u1"}, nil, "", true},
	}

	r := NewResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveTenantID(Handshake{Claims: tt.claims, Query: tt.query})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIdentityNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveUserID(t *testing.T) {
	tests := []struct {
		name    string
		claims  Claims
		query   url.Values
		want    string
		wantErr bool
	}{
		{"sub wins", Claims{"sub": "u1", "user_id": "u2", "uid": "u3"}, nil, "u1", false},
		{"user_id second", Claims{"user_id": "u2", "uid": "u3"}, nil, "u2", false},
		{"uid third", Claims{"uid": "u3"}, nil, "u3", false},
		{"query fallback", nil, url.Values{"userId": {"q"}}, "q", false},
		{"missing", Claims{"tid": "t"}, nil, "", true},
	}

	r := NewResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveUserID(Handshake{Claims: tt.claims, Query: tt.query})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIdentityNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Full(t *testing.T) {
	r := NewResolver()
	id, err := r.Resolve(Handshake{Claims: Claims{
		"tid":        "t1",
		"sub":        "u1",
		"given_name": "Ada",
		"email":      "ada@example.com",
	}})
	require.NoError(t, err)

	assert.Equal(t, Identity{TenantID: "t1", UserID: "u1", DisplayName: "Ada", Email: "ada@example.com"}, id)
	assert.Equal(t, "Ada", id.Name())
}

func TestResolve_NamePrefersNameClaim(t *testing.T) {
	id, err := NewResolver().Resolve(Handshake{Claims: Claims{"tid": "t", "sub": "u", "name": "Ada L", "given_name": "Ada"}})
	require.NoError(t, err)
	assert.Equal(t, "Ada L", id.DisplayName)
}

func TestResolve_RequiresBoth(t *testing.T) {
	r := NewResolver()

	_, err := r.Resolve(Handshake{Claims: Claims{"sub": "u1"}})
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	_, err = r.Resolve(Handshake{Claims: Claims{"tid": "t1"}})
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestWithoutQueryFallback(t *testing.T) {
	r := NewResolver(WithoutQueryFallback())
	_, err := r.Resolve(Handshake{Query: url.Values{"tenantId": {"t"}, "userId": {"u"}}})
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestWithTenantClaims(t *testing.T) {
	r := NewResolver(WithTenantClaims("org"))
	got, err := r.ResolveTenantID(Handshake{Claims: Claims{"org": "o1", "tenant_id": "t1"}})
	require.NoError(t, err)
	assert.Equal(t, "o1", got)
}

func TestIdentity_NameFallsBackToUserID(t *testing.T) {
	assert.Equal(t, "u1", Identity{UserID: "u1"}.Name())
}
