package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantcast.dev/tenantcast/internal/domain"
)

func TestNotificationStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New().Notifications()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Add(ctx, domain.NewUserNotification("t", "u", "n", "", "", "", base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.Add(ctx, domain.NewUserNotification("t", "other", "n", "", "", "", base)))

	list, err := s.ListByUser(ctx, "u", 2, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))

	_, err = s.MarkRead(ctx, list[0].ID, base)
	require.NoError(t, err)
	unread, _ := s.CountUnread(ctx, "u")
	total, _ := s.CountByUser(ctx, "u")
	assert.Equal(t, int64(2), unread)
	assert.Equal(t, int64(3), total)

	changed, err := s.MarkAllRead(ctx, "u", base)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)
}

func TestPreferencesStore_CreateIsInsertOrGet(t *testing.T) {
	ctx := context.Background()
	s := New().Preferences()

	first, err := s.Create(ctx, domain.DefaultPreferences("t", "u", time.Now()))
	require.NoError(t, err)
	second, err := s.Create(ctx, domain.DefaultPreferences("t", "u", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	second.PushEnabled = false
	require.NoError(t, s.Update(ctx, second))
	got, err := s.GetByUserID(ctx, "u")
	require.NoError(t, err)
	assert.False(t, got.PushEnabled)

	_, err = s.GetByUserID(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTokenStore(t *testing.T) {
	ctx := context.Background()
	s := New().Tokens()
	now := time.Now()

	require.NoError(t, s.Add(ctx, domain.NewPushToken("t", "u", "a", domain.DeviceWeb, "", now)))
	assert.ErrorIs(t, s.Add(ctx, domain.NewPushToken("t", "u", "a", domain.DeviceWeb, "", now)), domain.ErrAlreadyExists)
	require.NoError(t, s.Add(ctx, domain.NewPushToken("t", "v", "b", domain.DeviceIOS, "", now.Add(-400*24*time.Hour))))

	ok, err := s.Deactivate(ctx, "a", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = s.Deactivate(ctx, "a", now)
	assert.False(t, ok)

	list, _ := s.ListActiveByTenant(ctx, "t")
	assert.Len(t, list, 1)

	n, err := s.DeactivateStale(ctx, now.Add(-270*24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
