package domain

import (
	"fmt"
	"strings"
	"time"

	"tenantcast.dev/tenantcast/internal/pkg/ids"
)

// DeviceType is the platform a push token was issued for.
type DeviceType string

const (
	DeviceWeb     DeviceType = "web"
	DeviceAndroid DeviceType = "android"
	DeviceIOS     DeviceType = "ios"
)

// ParseDeviceType validates s case-insensitively.
func ParseDeviceType(s string) (DeviceType, error) {
	switch DeviceType(strings.ToLower(strings.TrimSpace(s))) {
	case DeviceWeb:
		return DeviceWeb, nil
	case DeviceAndroid:
		return DeviceAndroid, nil
	case DeviceIOS, "apns":
		return DeviceIOS, nil
	default:
		return "", fmt.Errorf("unknown device type %q", s)
	}
}

// PushToken is a device registration for the push gateway. The token value is
// unique across all users; inactive tokens are kept for audit.
type PushToken struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	UserID     string     `json:"user_id"`
	Token      string     `json:"token"`
	DeviceType DeviceType `json:"device_type"`
	DeviceInfo string     `json:"device_info,omitempty"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt time.Time  `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewPushToken creates an active registration.
func NewPushToken(tenantID, userID, token string, device DeviceType, info string, now time.Time) *PushToken {
	now = now.UTC()
	return &PushToken{
		ID:         ids.New(ids.PrefixPushToken),
		TenantID:   tenantID,
		UserID:     userID,
		Token:      token,
		DeviceType: device,
		DeviceInfo: info,
		IsActive:   true,
		LastUsedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Deactivate marks the token unusable. It reports false if already inactive.
func (t *PushToken) Deactivate(now time.Time) bool {
	if !t.IsActive {
		return false
	}
	t.IsActive = false
	t.UpdatedAt = now.UTC()
	return true
}

// Reactivate re-binds the token to an owner and device and marks it active.
// A device token moves with whoever signs in on the device last.
func (t *PushToken) Reactivate(tenantID, userID string, device DeviceType, info string, now time.Time) {
	now = now.UTC()
	t.TenantID = tenantID
	t.UserID = userID
	t.DeviceType = device
	if info != "" {
		t.DeviceInfo = info
	}
	t.IsActive = true
	t.LastUsedAt = now
	t.UpdatedAt = now
}
