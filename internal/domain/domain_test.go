package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clock(t *testing.T, s string) ClockTime {
	t.Helper()
	c, err := ParseClockTime(s)
	require.NoError(t, err)
	return c
}

func TestQuietHours_Contains(t *testing.T) {
	overnight := QuietHours{Start: 22 * 60, End: 7 * 60}
	daytime := QuietHours{Start: 9 * 60, End: 17 * 60}
	empty := QuietHours{Start: 8 * 60, End: 8 * 60}

	tests := []struct {
		name  string
		q     QuietHours
		at    string
		quiet bool
	}{
		{"overnight late evening", overnight, "23:00", true},
		{"overnight early morning", overnight, "03:00", true},
		{"overnight midday", overnight, "12:00", false},
		{"overnight start inclusive", overnight, "22:00", true},
		{"overnight end exclusive", overnight, "07:00", false},
		{"overnight just before end", overnight, "06:59", true},
		{"overnight midnight", overnight, "00:00", true},
		{"daytime inside", daytime, "12:30", true},
		{"daytime before", daytime, "08:59", false},
		{"daytime end exclusive", daytime, "17:00", false},
		{"empty window", empty, "08:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.quiet, tt.q.Contains(clock(t, tt.at)))
		})
	}
}

func TestPreferences_InQuietHours(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prefs := DefaultPreferences("t1", "u1", now)
	require.NoError(t, prefs.SetQuietHours(&QuietHours{Start: 22 * 60, End: 7 * 60}, now))

	at := func(h int) time.Time { return time.Date(2026, 3, 1, h, 0, 0, 0, time.UTC) }
	assert.True(t, prefs.InQuietHours(at(23)))
	assert.True(t, prefs.InQuietHours(at(3)))
	assert.False(t, prefs.InQuietHours(at(12)))

	require.NoError(t, prefs.SetQuietHours(nil, now))
	assert.False(t, prefs.InQuietHours(at(23)))
}

func TestPreferences_SetQuietHoursRejectsOutOfRange(t *testing.T) {
	prefs := DefaultPreferences("t1", "u1", time.Now())
	err := prefs.SetQuietHours(&QuietHours{Start: -1, End: 60}, time.Now())
	assert.Error(t, err)
	assert.Nil(t, prefs.QuietHours)
}

func TestDefaultPreferences_AllChannelsEnabled(t *testing.T) {
	prefs := DefaultPreferences("t1", "u1", time.Now())

	assert.Equal(t, ChannelsAll, prefs.Enabled())
	assert.Nil(t, prefs.QuietHours)
	assert.Contains(t, prefs.ID, "ntp_")
}

func TestChannels(t *testing.T) {
	cs := NewChannels(ChannelInApp, ChannelPush)

	assert.True(t, cs.Has(ChannelInApp))
	assert.True(t, cs.Has(ChannelPush))
	assert.False(t, cs.Has(ChannelEmail))
	assert.Equal(t, []string{"in_app", "push"}, cs.Names())
	assert.Equal(t, Channels(15), ChannelsAll)
}

func TestParseChannels(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    Channels
		wantErr bool
	}{
		{"empty means all", nil, ChannelsAll, false},
		{"single", []string{"push"}, NewChannels(ChannelPush), false},
		{"mixed case and alias", []string{"InApp", " SMS "}, NewChannels(ChannelInApp, ChannelSMS), false},
		{"unknown", []string{"pigeon"}, ChannelsNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseChannels(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUserNotification_MarkAsRead(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	n := NewUserNotification("t1", "u1", "Hello", "World", "", "", now)

	assert.Equal(t, TypeInfo, n.Type)
	assert.False(t, n.IsRead)
	assert.True(t, n.MarkAsRead(now.Add(time.Minute)))
	require.NotNil(t, n.ReadAt)
	assert.Equal(t, now.Add(time.Minute), *n.ReadAt)
	assert.False(t, n.MarkAsRead(now.Add(time.Hour)))
	assert.Equal(t, now.Add(time.Minute), *n.ReadAt)
}

func TestPushToken_DeactivateIsIdempotent(t *testing.T) {
	now := time.Now()
	tok := NewPushToken("t1", "u1", "tok", DeviceAndroid, "", now)

	assert.True(t, tok.Deactivate(now))
	assert.False(t, tok.Deactivate(now))
	assert.False(t, tok.IsActive)

	tok.Reactivate("t2", "u2", DeviceWeb, "Firefox", now)
	assert.True(t, tok.IsActive)
	assert.Equal(t, "u2", tok.UserID)
	assert.Equal(t, "Firefox", tok.DeviceInfo)
}

func TestParseDeviceType(t *testing.T) {
	d, err := ParseDeviceType("iOS")
	require.NoError(t, err)
	assert.Equal(t, DeviceIOS, d)

	_, err = ParseDeviceType("fridge")
	assert.Error(t, err)
}

func TestNewStats(t *testing.T) {
	s := NewStats(10, 3, 2)
	assert.Equal(t, int64(7), s.Read)
	assert.Equal(t, int64(2), s.ActiveTokens)
}

func TestParseNotificationType(t *testing.T) {
	typ, err := ParseNotificationType("")
	require.NoError(t, err)
	assert.Equal(t, TypeInfo, typ)

	_, err = ParseNotificationType("shout")
	assert.Error(t, err)
}
