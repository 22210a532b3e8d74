package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"tenantcast.dev/tenantcast/internal/identity"
	apperrors "tenantcast.dev/tenantcast/internal/pkg/errors"
)

// Permission names carried in the "permissions" claim.
const (
	PermissionNotificationsSend = "notifications:send"
	PermissionAdmin             = "platform:admin"
)

// Permissions reads the "permissions" claim (array of strings) and the OAuth
// "scope" claim (space separated).
func Permissions(claims identity.Claims) []string {
	var out []string
	switch v := claims["permissions"].(type) {
	case []any:
		for _, p := range v {
			if s, ok := p.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, v...)
	case string:
		out = append(out, strings.Fields(v)...)
	}
	if scope, ok := claims["scope"].(string); ok {
		out = append(out, strings.Fields(scope)...)
	}
	return out
}

// RequirePermission returns middleware that checks the verified claims carry
// permission. platform:admin satisfies every check. Must run after JWTAuth.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c.Request.Context())
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": apperrors.CodeForbidden, "message": "no permissions in context",
			})
			return
		}

		perms := Permissions(claims)
		if slices.Contains(perms, PermissionAdmin) || slices.Contains(perms, permission) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code": apperrors.CodeForbidden, "message": "insufficient permissions",
		})
	}
}
