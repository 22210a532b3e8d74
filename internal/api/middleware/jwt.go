package middleware

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tenantcast.dev/tenantcast/internal/identity"
	apperrors "tenantcast.dev/tenantcast/internal/pkg/errors"
)

// AccessTokenQueryParam carries the bearer token on websocket handshakes,
// where browsers cannot set headers.
const AccessTokenQueryParam = "access_token"

const ctxKeyClaims contextKey = "claims"

// ErrMissingToken is returned when a request carries no bearer token.
var ErrMissingToken = errors.New("missing bearer token")

// JWTConfig holds HS256 signing and verification settings.
type JWTConfig struct {
	SigningKey []byte
	// VerificationKeys are accepted in addition to SigningKey during rotation.
	VerificationKeys [][]byte
	// Issuer, when set, is written on generated tokens and required on parsed ones.
	Issuer    string
	ExpiresIn time.Duration
}

// GenerateToken signs claims with HS256. Registered claims iss, iat, nbf, exp
// and jti are filled in unless already present.
func GenerateToken(cfg JWTConfig, claims identity.Claims) (string, time.Time, error) {
	now := time.Now()
	ttl := cfg.ExpiresIn
	if ttl <= 0 {
		ttl = time.Hour
	}
	expiresAt := now.Add(ttl)

	mc := jwt.MapClaims{}
	maps.Copy(mc, claims)
	if cfg.Issuer != "" {
		mc["iss"] = cfg.Issuer
	}
	setDefault(mc, "iat", now.Unix())
	setDefault(mc, "nbf", now.Unix())
	setDefault(mc, "exp", expiresAt.Unix())
	setDefault(mc, "jti", uuid.NewString())

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func setDefault(mc jwt.MapClaims, key string, v any) {
	if _, ok := mc[key]; !ok {
		mc[key] = v
	}
}

// ValidateToken verifies the signature, registered claims and issuer, and
// returns the full claim set.
func (cfg JWTConfig) ValidateToken(_ context.Context, tokenString string) (identity.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	keys := append([][]byte{cfg.SigningKey}, cfg.VerificationKeys...)
	var lastErr error
	for _, key := range keys {
		if len(key) == 0 {
			continue
		}
		mc := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, mc, func(*jwt.Token) (any, error) {
			return key, nil
		}, opts...)
		if err == nil && token.Valid {
			if parsed, ok := token.Claims.(jwt.MapClaims); ok {
				return identity.Claims(parsed), nil
			}
			return identity.Claims(mc), nil
		}
		lastErr = err
		// Only a signature mismatch is worth retrying with an older key.
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
	}
	if lastErr == nil {
		lastErr = jwt.ErrTokenUnverifiable
	}
	return nil, lastErr
}

// JWTAuth returns a Gin middleware that requires a valid Bearer token and
// stores its claims in the request context.
func JWTAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}
		authenticate(c, cfg, tokenString)
	}
}

// OptionalJWTAuth accepts a token from the Authorization header or the
// access_token query parameter. Requests without any token pass through
// without claims; a token that is present but invalid is rejected.
func OptionalJWTAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header != "" {
			tokenString, err := bearerToken(header)
			if err != nil {
				abortUnauthorized(c, err.Error())
				return
			}
			authenticate(c, cfg, tokenString)
			return
		}
		if tokenString := c.Query(AccessTokenQueryParam); tokenString != "" {
			authenticate(c, cfg, tokenString)
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, cfg JWTConfig, tokenString string) {
	claims, err := cfg.ValidateToken(c.Request.Context(), tokenString)
	if err != nil {
		msg := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "token expired"
		}
		abortUnauthorized(c, msg)
		return
	}

	c.Set(string(ctxKeyClaims), claims)
	c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
	c.Next()
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    apperrors.CodeUnauthorized,
		"message": msg,
	})
}

// WithClaims stores verified token claims in ctx.
func WithClaims(ctx context.Context, claims identity.Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, claims)
}

// GetClaims returns the verified claims, or nil for anonymous requests.
func GetClaims(ctx context.Context) identity.Claims {
	if v, ok := ctx.Value(ctxKeyClaims).(identity.Claims); ok {
		return v
	}
	return nil
}
