package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantcast.dev/tenantcast/internal/api/middleware"
	"tenantcast.dev/tenantcast/internal/domain"
	"tenantcast.dev/tenantcast/internal/governance/audit"
	"tenantcast.dev/tenantcast/internal/identity"
	"tenantcast.dev/tenantcast/internal/notification"
	apperrors "tenantcast.dev/tenantcast/internal/pkg/errors"
	"tenantcast.dev/tenantcast/internal/push"
	"tenantcast.dev/tenantcast/internal/realtime"
	"tenantcast.dev/tenantcast/internal/realtime/realtimetest"
	"tenantcast.dev/tenantcast/internal/repository/memstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type countingGateway struct {
	mu   sync.Mutex
	sent [][]string
}

func (g *countingGateway) SendMulticast(_ context.Context, _ push.Message, tokens []string) (push.BatchResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, append([]string(nil), tokens...))
	return push.BatchResult{SuccessCount: len(tokens)}, nil
}

func (g *countingGateway) Sent() [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]string(nil), g.sent...)
}

type testEnv struct {
	router  *gin.Engine
	store   *memstore.Store
	hub     *realtime.Hub
	gateway *countingGateway
	audit   *audit.MemoryStore
	jwt     middleware.JWTConfig
	server  *Server
}

func newTestEnv(t *testing.T, resolverOpts ...identity.Option) *testEnv {
	t.Helper()
	e := &testEnv{
		store:   memstore.New(),
		gateway: &countingGateway{},
		audit:   audit.NewMemoryStore(),
		jwt:     middleware.JWTConfig{SigningKey: []byte("handlers-test-key-0123456789abcdef"), ExpiresIn: time.Hour},
	}
	resolver := identity.NewResolver(resolverOpts...)
	e.hub = realtime.NewHub("notifications", resolver, realtimetest.InlinePool{})
	inApp := notification.NewInAppSender(e.store.Notifications(), e.hub)
	notification.RegisterHub(e.hub, inApp)
	pushSender := notification.NewPushSender(e.store.Tokens(), e.gateway)
	dispatcher := notification.NewDispatcher(notification.Stores{
		Notifications: e.store.Notifications(),
		Preferences:   e.store.Preferences(),
		Tokens:        e.store.Tokens(),
	}, notification.WithSender(inApp), notification.WithSender(pushSender),
		notification.WithQuietHoursLocation(time.UTC),
		notification.WithClock(func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC) }),
	)

	e.server = NewServer(ServerDeps{
		Dispatcher: dispatcher,
		InApp:      inApp,
		Push:       pushSender,
		Resolver:   resolver,
		Audit:      audit.NewLogger(e.audit),
		Checks: map[string]ReadinessCheck{
			"store": func(context.Context) error { return nil },
		},
	})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler())
	r.GET("/health/live", e.server.GetLiveness)
	r.GET("/health/ready", e.server.GetReadiness)
	r.GET("/hubs/notifications", middleware.OptionalJWTAuth(e.jwt), e.server.ServeHub(e.hub))

	v1 := r.Group("/api/v1", middleware.JWTAuth(e.jwt))
	v1.GET("/notifications", e.server.ListNotifications)
	v1.GET("/notifications/unread-count", e.server.GetUnreadCount)
	v1.GET("/notifications/stats", e.server.GetNotificationStats)
	v1.POST("/notifications/:id/read", e.server.MarkNotificationRead)
	v1.POST("/notifications/read-all", e.server.MarkAllNotificationsRead)
	v1.GET("/notifications/preferences", e.server.GetPreferences)
	v1.PUT("/notifications/preferences", e.server.UpdatePreferences)
	v1.POST("/push-tokens", e.server.RegisterPushToken)
	v1.DELETE("/push-tokens/:token", e.server.UnregisterPushToken)
	admin := v1.Group("/admin", middleware.RequirePermission(middleware.PermissionNotificationsSend))
	admin.POST("/notifications", e.server.SendNotification)
	admin.POST("/tenants/:tenant_id/notifications", e.server.BroadcastToTenant)
	e.router = r
	return e
}

func (e *testEnv) token(t *testing.T, tenantID, userID string, perms ...string) string {
	t.Helper()
	claims := identity.Claims{"tenant_id": tenantID, "sub": userID}
	if len(perms) > 0 {
		claims["permissions"] = perms
	}
	tok, _, err := middleware.GenerateToken(e.jwt, claims)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seed(t *testing.T, tenantID, userID, title string) *domain.UserNotification {
	t.Helper()
	n := domain.NewUserNotification(tenantID, userID, title, "body", domain.TypeInfo, "", time.Now())
	require.NoError(t, e.store.Notifications().Add(context.Background(), n))
	return n
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Params  map[string]any `json:"params"`
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, HealthStatusOk, decode[Health](t, w).Status)

	w = e.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"store": "ok"}, decode[Health](t, w).Checks)

	e.server.checks["db"] = func(context.Context) error { return errors.New("down") }
	w = e.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, HealthStatusDegraded, decode[Health](t, w).Status)
}

func TestNotificationEndpoints_RequireIdentity(t *testing.T) {
	e := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/v1/notifications", "", nil).Code)

	// A valid token without a tenant claim is not an identity.
	tok, _, err := middleware.GenerateToken(e.jwt, identity.Claims{"sub": "u1"})
	require.NoError(t, err)
	w := e.do(t, http.MethodGet, "/api/v1/notifications", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperrors.CodeIdentityNotFound, decode[errorBody](t, w).Code)
}

func TestListAndReadNotifications(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, "t1", "u1")
	first := e.seed(t, "t1", "u1", "first")
	e.seed(t, "t1", "u1", "second")
	other := e.seed(t, "t1", "u2", "not yours")

	w := e.do(t, http.MethodGet, "/api/v1/notifications", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[NotificationList](t, w).Items, 2)

	w = e.do(t, http.MethodGet, "/api/v1/notifications?limit=1", tok, nil)
	assert.Len(t, decode[NotificationList](t, w).Items, 1)

	w = e.do(t, http.MethodGet, "/api/v1/notifications?limit=0", tok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeInvalidRequestField, decode[errorBody](t, w).Code)

	w = e.do(t, http.MethodPost, "/api/v1/notifications/"+first.ID+"/read", tok, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	// Idempotent.
	w = e.do(t, http.MethodPost, "/api/v1/notifications/"+first.ID+"/read", tok, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/notifications/"+other.ID+"/read", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, apperrors.CodeNotificationNotFound, body.Code)
	assert.Equal(t, other.ID, body.Params["notification_id"])

	w = e.do(t, http.MethodGet, "/api/v1/notifications/unread-count", tok, nil)
	assert.Equal(t, int64(1), decode[UnreadCount](t, w).Count)

	w = e.do(t, http.MethodGet, "/api/v1/notifications?unread_only=true", tok, nil)
	assert.Len(t, decode[NotificationList](t, w).Items, 1)

	w = e.do(t, http.MethodPost, "/api/v1/notifications/read-all", tok, nil)
	assert.Equal(t, int64(1), decode[MarkedCount](t, w).Marked)

	w = e.do(t, http.MethodGet, "/api/v1/notifications/stats", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.NewStats(2, 0, 0), decode[domain.Stats](t, w))
}

func TestListNotifications_EmptyIsArray(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/api/v1/notifications", e.token(t, "t1", "u1"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
}

func TestPreferences(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, "t1", "u1")

	w := e.do(t, http.MethodGet, "/api/v1/notifications/preferences", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, PreferencesBody{EmailEnabled: true, InAppEnabled: true, PushEnabled: true, SMSEnabled: true},
		decode[PreferencesBody](t, w))

	off := false
	w = e.do(t, http.MethodPut, "/api/v1/notifications/preferences", tok, UpdatePreferencesRequest{
		PushEnabled: &off,
		QuietHours:  &QuietHoursBody{Start: "22:00", End: "07:00"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[PreferencesBody](t, w)
	assert.False(t, got.PushEnabled)
	assert.True(t, got.EmailEnabled)
	require.NotNil(t, got.QuietHours)
	assert.Equal(t, QuietHoursBody{Start: "22:00", End: "07:00"}, *got.QuietHours)

	w = e.do(t, http.MethodPut, "/api/v1/notifications/preferences", tok, UpdatePreferencesRequest{ClearQuietHours: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode[PreferencesBody](t, w).QuietHours)
	assert.False(t, decode[PreferencesBody](t, w).PushEnabled, "omitted switches are unchanged")
}

func TestPreferences_InvalidQuietHours(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, "t1", "u1")

	tests := []struct {
		name  string
		body  UpdatePreferencesRequest
		field string
	}{
		{name: "bad start", body: UpdatePreferencesRequest{QuietHours: &QuietHoursBody{Start: "25:00", End: "07:00"}}, field: "quiet_hours.start"},
		{name: "bad end", body: UpdatePreferencesRequest{QuietHours: &QuietHoursBody{Start: "22:00", End: "7pm"}}, field: "quiet_hours.end"},
		{name: "set and clear", body: UpdatePreferencesRequest{ClearQuietHours: true, QuietHours: &QuietHoursBody{Start: "22:00", End: "07:00"}}, field: "clear_quiet_hours"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPut, "/api/v1/notifications/preferences", tok, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode[errorBody](t, w)
			assert.Equal(t, apperrors.CodeInvalidRequestField, body.Code)
			assert.Equal(t, tt.field, body.Params["field"])
		})
	}
}

func TestPushTokens(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, "t1", "u1")
	ctx := context.Background()

	w := e.do(t, http.MethodPost, "/api/v1/push-tokens", tok, RegisterPushTokenRequest{Token: "dev-1", DeviceType: "Android", DeviceInfo: "Pixel"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[PushTokenResponse](t, w)
	assert.Equal(t, domain.DeviceAndroid, resp.DeviceType)
	assert.True(t, resp.IsActive)
	assert.NotContains(t, w.Body.String(), "dev-1")

	stored, err := e.store.Tokens().GetByToken(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "t1", stored.TenantID)

	w = e.do(t, http.MethodPost, "/api/v1/push-tokens", tok, RegisterPushTokenRequest{Token: "dev-2", DeviceType: "fax"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/push-tokens", tok, RegisterPushTokenRequest{Token: "   ", DeviceType: "web"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodePushTokenInvalid, decode[errorBody](t, w).Code)

	w = e.do(t, http.MethodPost, "/api/v1/push-tokens", tok, map[string]string{"device_type": "web"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperrors.CodeValidationFailed, decode[errorBody](t, w).Code)

	// Another user cannot unregister it.
	w = e.do(t, http.MethodDelete, "/api/v1/push-tokens/dev-1", e.token(t, "t1", "u2"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.CodePushTokenNotFound, decode[errorBody](t, w).Code)

	w = e.do(t, http.MethodDelete, "/api/v1/push-tokens/dev-1", tok, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodDelete, "/api/v1/push-tokens/dev-1", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendNotification(t *testing.T) {
	e := newTestEnv(t)
	operator := e.token(t, "t1", "ops", middleware.PermissionNotificationsSend)
	_, err := e.server.push.RegisterToken(context.Background(), "t1", "u1", "dev-1", domain.DeviceWeb, "")
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/api/v1/admin/notifications", e.token(t, "t1", "u9"), SendNotificationRequest{UserID: "u1", Title: "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/admin/notifications", operator, SendNotificationRequest{
		UserID:   "u1",
		Title:    "Build finished",
		Type:     "success",
		Channels: []string{"in_app", "push"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[notification.Result](t, w)
	assert.Equal(t, notification.OutcomeDelivered, result.Outcome(domain.ChannelInApp))
	assert.Equal(t, notification.OutcomeDelivered, result.Outcome(domain.ChannelPush))

	list, err := e.store.Notifications().ListByUser(context.Background(), "u1", 10, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "t1", list[0].TenantID, "tenant defaults to the caller's")
	assert.Equal(t, domain.TypeSuccess, list[0].Type)
	assert.Equal(t, [][]string{{"dev-1"}}, e.gateway.Sent())

	records := e.audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionNotificationSent, records[0].Action)
	assert.Equal(t, "ops", records[0].Actor)
	assert.Equal(t, "u1", records[0].ResourceID)
	assert.Equal(t, "Build finished", records[0].Details["title"])
}

func TestSendNotification_Validation(t *testing.T) {
	e := newTestEnv(t)
	operator := e.token(t, "t1", "ops", middleware.PermissionNotificationsSend)

	tests := []struct {
		name string
		body any
		code string
	}{
		{name: "missing user", body: SendNotificationRequest{Title: "x"}, code: apperrors.CodeValidationFailed},
		{name: "bad type", body: SendNotificationRequest{UserID: "u1", Title: "x", Type: "urgent"}, code: apperrors.CodeInvalidRequestField},
		{name: "bad channel", body: SendNotificationRequest{UserID: "u1", Title: "x", Channels: []string{"pigeon"}}, code: apperrors.CodeInvalidRequestField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/v1/admin/notifications", operator, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decode[errorBody](t, w).Code)
		})
	}
}

func TestBroadcastToTenant(t *testing.T) {
	e := newTestEnv(t)
	operator := e.token(t, "t1", "ops", middleware.PermissionAdmin)
	conn := realtimetest.NewUserConn("c1", "t2", "u1")
	require.True(t, e.hub.OnConnect(context.Background(), conn))

	w := e.do(t, http.MethodPost, "/api/v1/admin/tenants/t2/notifications", operator, BroadcastRequest{Title: "Maintenance"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[notification.Result](t, w)
	assert.Equal(t, notification.OutcomeDelivered, result.Outcome(domain.ChannelInApp))

	events := conn.Events(notification.EventReceiveNotification)
	require.Len(t, events, 1)
	var payload notification.Payload
	require.NoError(t, json.Unmarshal(events[0].Arguments[0], &payload))
	assert.Equal(t, "Maintenance", payload.Title)

	records := e.audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, audit.ActionTenantBroadcast, records[0].Action)
	assert.Equal(t, "t2", records[0].TenantID)
}
