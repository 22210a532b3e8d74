package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantcast.dev/tenantcast/internal/api/middleware"
	"tenantcast.dev/tenantcast/internal/identity"
	"tenantcast.dev/tenantcast/internal/notification"
	"tenantcast.dev/tenantcast/internal/realtime"
)

func dialHub(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/hubs/notifications"
	if query != "" {
		url += "?" + query
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func TestServeHub_DeliversNotifications(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	conn, _, err := dialHub(t, srv, "access_token="+e.token(t, "t1", "u1"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return e.hub.Groups().Size(realtime.UserGroup("u1")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	operator := e.token(t, "t1", "ops", middleware.PermissionNotificationsSend)
	w := e.do(t, http.MethodPost, "/api/v1/admin/notifications", operator, SendNotificationRequest{
		UserID: "u1", Title: "Deploy done", Channels: []string{"in_app"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame realtime.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, realtime.FrameEvent, frame.Type)
	assert.Equal(t, notification.EventReceiveNotification, frame.Target)
	assert.Contains(t, string(frame.Arguments[0]), "Deploy done")
}

func TestServeHub_QueryIdentityFallback(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	_, _, err := dialHub(t, srv, "tenantId=t9&userId=u9")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return e.hub.Groups().Size(realtime.TenantGroup("t9")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeHub_QueryIdentityDisabledIsClosed(t *testing.T) {
	e := newTestEnv(t, identity.WithoutQueryFallback())
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	conn, _, err := dialHub(t, srv, "tenantId=t9&userId=u9")
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Zero(t, e.hub.Groups().Size(realtime.TenantGroup("t9")))
	assert.Zero(t, e.hub.Groups().Size(realtime.UserGroup("u9")))
}

func TestServeHub_QueryIdentityDisabledAcceptsToken(t *testing.T) {
	e := newTestEnv(t, identity.WithoutQueryFallback())
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	_, _, err := dialHub(t, srv, "access_token="+e.token(t, "t1", "u1")+"&userId=u9")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return e.hub.Groups().Size(realtime.UserGroup("u1")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, e.hub.Groups().Size(realtime.UserGroup("u9")))
}

func TestServeHub_NoIdentityIsClosed(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	conn, _, err := dialHub(t, srv, "")
	require.NoError(t, err, "the upgrade succeeds, admission does not")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestServeHub_InvalidTokenRejectedBeforeUpgrade(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	_, resp, err := dialHub(t, srv, "access_token=forged")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
