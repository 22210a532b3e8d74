package domain

import (
	"fmt"
	"time"

	"tenantcast.dev/tenantcast/internal/pkg/ids"
)

// ClockTime is a time of day in minutes since midnight, 0..1439.
type ClockTime int

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return ClockTime(t.Hour()*60 + t.Minute()), nil
}

// ClockOf returns the time of day of t in t's location.
func ClockOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

// Valid reports whether c is within a day.
func (c ClockTime) Valid() bool {
	return c >= 0 && c < 24*60
}

// String formats c as "HH:MM".
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// QuietHours is a daily window [Start, End) during which nothing is delivered.
// Start > End wraps past midnight; Start == End is an empty window.
type QuietHours struct {
	Start ClockTime
	End   ClockTime
}

// Contains reports whether the time of day at falls in the window.
func (q QuietHours) Contains(at ClockTime) bool {
	switch {
	case q.Start == q.End:
		return false
	case q.Start < q.End:
		return at >= q.Start && at < q.End
	default:
		return at >= q.Start || at < q.End
	}
}

// NotificationPreferences holds one user's channel switches and quiet hours.
type NotificationPreferences struct {
	ID           string      `json:"id"`
	TenantID     string      `json:"tenant_id"`
	UserID       string      `json:"user_id"`
	EmailEnabled bool        `json:"email_enabled"`
	InAppEnabled bool        `json:"in_app_enabled"`
	PushEnabled  bool        `json:"push_enabled"`
	SMSEnabled   bool        `json:"sms_enabled"`
	QuietHours   *QuietHours `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// DefaultPreferences returns preferences with every channel enabled and no
// quiet hours. Used on first dispatch to a user without a row.
func DefaultPreferences(tenantID, userID string, now time.Time) *NotificationPreferences {
	now = now.UTC()
	return &NotificationPreferences{
		ID:           ids.New(ids.PrefixPreferences),
		TenantID:     tenantID,
		UserID:       userID,
		EmailEnabled: true,
		InAppEnabled: true,
		PushEnabled:  true,
		SMSEnabled:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Enabled returns the set of channels the user accepts.
func (p *NotificationPreferences) Enabled() Channels {
	var out Channels
	if p.InAppEnabled {
		out |= Channels(ChannelInApp)
	}
	if p.EmailEnabled {
		out |= Channels(ChannelEmail)
	}
	if p.PushEnabled {
		out |= Channels(ChannelPush)
	}
	if p.SMSEnabled {
		out |= Channels(ChannelSMS)
	}
	return out
}

// InQuietHours reports whether at, already converted to the evaluation
// time zone, falls inside the user's quiet hours.
func (p *NotificationPreferences) InQuietHours(at time.Time) bool {
	if p.QuietHours == nil {
		return false
	}
	return p.QuietHours.Contains(ClockOf(at))
}

// SetQuietHours replaces the window. Nil clears it.
func (p *NotificationPreferences) SetQuietHours(q *QuietHours, now time.Time) error {
	if q != nil && (!q.Start.Valid() || !q.End.Valid()) {
		return fmt.Errorf("quiet hours out of range: %d-%d", q.Start, q.End)
	}
	p.QuietHours = q
	p.UpdatedAt = now.UTC()
	return nil
}
