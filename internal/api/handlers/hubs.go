package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/api/middleware"
	"tenantcast.dev/tenantcast/internal/identity"
	"tenantcast.dev/tenantcast/internal/pkg/logger"
	"tenantcast.dev/tenantcast/internal/realtime"
)

// ServeHub returns the websocket endpoint of hub. Verified claims (if any)
// and the query string form the handshake the hub resolves identity from.
// The call blocks for the lifetime of the connection.
func (s *Server) ServeHub(hub *realtime.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		handshake := identity.Handshake{
			Claims: middleware.GetClaims(c.Request.Context()),
			Query:  c.Request.URL.Query(),
		}
		// The upgrader has already written the HTTP error on failure.
		if err := s.ws.Serve(hub, c.Writer, c.Request, handshake); err != nil {
			logger.Warn("WebSocket upgrade failed",
				zap.String("hub", hub.Name()),
				zap.String("remote_addr", c.ClientIP()),
				zap.Error(err),
			)
		}
	}
}
