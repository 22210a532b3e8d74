// Package middleware provides the HTTP middleware of the tenantcast API:
// bearer token verification, permission checks, request IDs and centralized
// error rendering.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "tenantcast.dev/tenantcast/internal/pkg/errors"
	"tenantcast.dev/tenantcast/internal/pkg/logger"
)

// ErrorHandler renders the last error recorded with c.Error as
// {code, message, params}. Handlers record and abort; they never write
// error bodies themselves.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, body := apperrors.Render(err, apperrors.CodeInternal, "An internal error occurred")
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c.Request.Context())),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("code", body.Code),
			zap.Int("status", status),
			zap.Error(err),
		}
		// Client mistakes are expected traffic; server faults are not.
		if status >= http.StatusInternalServerError {
			logger.Error("Request failed", fields...)
		} else {
			logger.Warn("Request rejected", fields...)
		}
		c.JSON(status, body)
	}
}
