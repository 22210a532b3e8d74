// Package memstore implements the notification stores in process memory.
//
// Used when storage.driver is "memory" (local development, single node)
// and by tests. Data does not survive a restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"tenantcast.dev/tenantcast/internal/domain"
)

// Store holds notifications, preferences and push tokens.
type Store struct {
	mu            sync.RWMutex
	notifications map[string]*domain.UserNotification
	preferences   map[string]*domain.NotificationPreferences
	tokens        map[string]*domain.PushToken
}

// New creates an empty store.
func New() *Store {
	return &Store{
		notifications: make(map[string]*domain.UserNotification),
		preferences:   make(map[string]*domain.NotificationPreferences),
		tokens:        make(map[string]*domain.PushToken),
	}
}

// Notifications returns the notification store view.
func (s *Store) Notifications() *NotificationStore { return &NotificationStore{s} }

// Preferences returns the preferences store view.
func (s *Store) Preferences() *PreferencesStore { return &PreferencesStore{s} }

// Tokens returns the push token store view.
func (s *Store) Tokens() *TokenStore { return &TokenStore{s} }

// NotificationStore implements notification.NotificationStore.
type NotificationStore struct{ s *Store }

func (r *NotificationStore) Add(_ context.Context, n *domain.UserNotification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.notifications[n.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *n
	r.s.notifications[n.ID] = &cp
	return nil
}

func (r *NotificationStore) GetByID(_ context.Context, id string) (*domain.UserNotification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *NotificationStore) ListByUser(_ context.Context, userID string, limit int, unreadOnly bool) ([]*domain.UserNotification, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.UserNotification
	for _, n := range r.s.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *NotificationStore) CountByUser(_ context.Context, userID string) (int64, error) {
	return r.count(userID, false), nil
}

func (r *NotificationStore) CountUnread(_ context.Context, userID string) (int64, error) {
	return r.count(userID, true), nil
}

func (r *NotificationStore) count(userID string, unreadOnly bool) int64 {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for _, v := range r.s.notifications {
		if v.UserID == userID && (!unreadOnly || !v.IsRead) {
			n++
		}
	}
	return n
}

func (r *NotificationStore) MarkRead(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	return n.MarkAsRead(at), nil
}

func (r *NotificationStore) MarkAllRead(_ context.Context, userID string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var changed int64
	for _, n := range r.s.notifications {
		if n.UserID == userID && n.MarkAsRead(at) {
			changed++
		}
	}
	return changed, nil
}

// PreferencesStore implements notification.PreferencesStore.
type PreferencesStore struct{ s *Store }

func (r *PreferencesStore) GetByUserID(_ context.Context, userID string) (*domain.NotificationPreferences, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.preferences[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePrefs(p), nil
}

func (r *PreferencesStore) Create(_ context.Context, p *domain.NotificationPreferences) (*domain.NotificationPreferences, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.preferences[p.UserID]; ok {
		return clonePrefs(existing), nil
	}
	r.s.preferences[p.UserID] = clonePrefs(p)
	return clonePrefs(p), nil
}

func (r *PreferencesStore) Update(_ context.Context, p *domain.NotificationPreferences) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.preferences[p.UserID]; !ok {
		return domain.ErrNotFound
	}
	r.s.preferences[p.UserID] = clonePrefs(p)
	return nil
}

func clonePrefs(p *domain.NotificationPreferences) *domain.NotificationPreferences {
	cp := *p
	if p.QuietHours != nil {
		q := *p.QuietHours
		cp.QuietHours = &q
	}
	return &cp
}

// TokenStore implements notification.PushTokenStore.
type TokenStore struct{ s *Store }

func (r *TokenStore) GetByToken(_ context.Context, token string) (*domain.PushToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tokens[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *TokenStore) ListActiveByUser(_ context.Context, userID string) ([]*domain.PushToken, error) {
	return r.list(func(t *domain.PushToken) bool { return t.UserID == userID }), nil
}

func (r *TokenStore) ListActiveByTenant(_ context.Context, tenantID string) ([]*domain.PushToken, error) {
	return r.list(func(t *domain.PushToken) bool { return t.TenantID == tenantID }), nil
}

func (r *TokenStore) CountActiveByUser(ctx context.Context, userID string) (int64, error) {
	list, _ := r.ListActiveByUser(ctx, userID)
	return int64(len(list)), nil
}

func (r *TokenStore) list(match func(*domain.PushToken) bool) []*domain.PushToken {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.PushToken
	for _, t := range r.s.tokens {
		if t.IsActive && match(t) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *TokenStore) Add(_ context.Context, t *domain.PushToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[t.Token]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *t
	r.s.tokens[t.Token] = &cp
	return nil
}

func (r *TokenStore) Update(_ context.Context, t *domain.PushToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[t.Token]; !ok {
		return domain.ErrNotFound
	}
	cp := *t
	r.s.tokens[t.Token] = &cp
	return nil
}

func (r *TokenStore) Deactivate(_ context.Context, token string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[token]
	if !ok {
		return false, nil
	}
	return t.Deactivate(at), nil
}

func (r *TokenStore) Touch(_ context.Context, tokens []string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, tok := range tokens {
		if t, ok := r.s.tokens[tok]; ok {
			t.LastUsedAt = at.UTC()
		}
	}
	return nil
}

// DeactivateStale deactivates active tokens unused since cutoff.
func (r *TokenStore) DeactivateStale(_ context.Context, cutoff, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, t := range r.s.tokens {
		if t.IsActive && t.LastUsedAt.Before(cutoff) && t.Deactivate(at) {
			n++
		}
	}
	return n, nil
}
