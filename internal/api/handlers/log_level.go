package handlers

import (
	"github.com/gin-gonic/gin"

	"tenantcast.dev/tenantcast/internal/pkg/logger"
)

// LogLevel handles GET and PUT /log/level through zap's AtomicLevel handler.
func LogLevel() gin.HandlerFunc {
	return gin.WrapH(logger.LevelHandler())
}
