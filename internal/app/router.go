package app

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"tenantcast.dev/tenantcast/internal/api/handlers"
	"tenantcast.dev/tenantcast/internal/api/middleware"
	"tenantcast.dev/tenantcast/internal/config"
	"tenantcast.dev/tenantcast/internal/realtime"
)

// defaultAllowedOrigins is used when server.allowed_origins is empty.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// hubRoute binds a hub to its websocket path.
type hubRoute struct {
	path string
	hub  *realtime.Hub
}

func newRouter(cfg *config.Config, server *handlers.Server, jwtCfg middleware.JWTConfig, hubs []hubRoute) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog("/health/"), middleware.ErrorHandler())
	router.Use(cors.New(buildCORSConfig(cfg)))

	router.GET("/health/live", server.GetLiveness)
	router.GET("/health/ready", server.GetReadiness)

	// Browsers cannot set headers on websocket upgrades, so hubs also accept
	// the access_token query parameter.
	for _, h := range hubs {
		router.GET(h.path, middleware.OptionalJWTAuth(jwtCfg), server.ServeHub(h.hub))
	}

	router.Any("/log/level",
		middleware.JWTAuth(jwtCfg),
		middleware.RequirePermission(middleware.PermissionAdmin),
		handlers.LogLevel(),
	)

	v1 := router.Group("/api/v1", middleware.JWTAuth(jwtCfg))
	v1.GET("/notifications", server.ListNotifications)
	v1.GET("/notifications/unread-count", server.GetUnreadCount)
	v1.GET("/notifications/stats", server.GetNotificationStats)
	v1.POST("/notifications/:id/read", server.MarkNotificationRead)
	v1.POST("/notifications/read-all", server.MarkAllNotificationsRead)
	v1.GET("/notifications/preferences", server.GetPreferences)
	v1.PUT("/notifications/preferences", server.UpdatePreferences)
	v1.POST("/push-tokens", server.RegisterPushToken)
	v1.DELETE("/push-tokens/:token", server.UnregisterPushToken)

	admin := v1.Group("/admin", middleware.RequirePermission(middleware.PermissionNotificationsSend))
	admin.POST("/notifications", server.SendNotification)
	admin.POST("/tenants/:tenant_id/notifications", server.BroadcastToTenant)

	return router
}

// allowedOrigins returns the configured origins with "*" removed, or the
// defaults when nothing else is configured.
func allowedOrigins(s config.ServerConfig) []string {
	var origins []string
	for _, o := range s.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "" || o == "*" {
			continue
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		return append([]string(nil), defaultAllowedOrigins...)
	}
	return origins
}

func buildCORSConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	// Wildcard origins and credentials are mutually exclusive.
	if cfg.Server.UnsafeAllowAllOrigins {
		corsCfg.AllowAllOrigins = true
		return corsCfg
	}
	corsCfg.AllowOrigins = allowedOrigins(cfg.Server)
	corsCfg.AllowCredentials = cfg.Server.AllowCredentials
	return corsCfg
}

// checkOrigin applies the CORS allowlist to websocket upgrades. Requests
// without an Origin header are not from browsers and are accepted.
func checkOrigin(cfg *config.Config) func(r *http.Request) bool {
	if cfg.Server.UnsafeAllowAllOrigins {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{})
	for _, o := range allowedOrigins(cfg.Server) {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		_, ok := allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
