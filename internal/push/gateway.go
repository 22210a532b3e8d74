// Package push defines the push gateway contract and its Firebase Cloud
// Messaging implementation.
package push

import (
	"context"

	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/pkg/logger"
)

// Message is the platform-neutral push payload.
type Message struct {
	Title     string
	Body      string
	ImageURL  string
	ActionURL string
	Data      map[string]string
}

// ErrorCode classifies a per-token failure.
type ErrorCode string

const (
	CodeNone             ErrorCode = ""
	CodeInvalidArgument  ErrorCode = "invalid-argument"
	CodeUnregistered     ErrorCode = "unregistered"
	CodeSenderIDMismatch ErrorCode = "sender-id-mismatch"
	CodeQuotaExceeded    ErrorCode = "quota-exceeded"
	CodeUnavailable      ErrorCode = "unavailable"
	CodeInternal         ErrorCode = "internal"
	CodeUnknown          ErrorCode = "unknown"
)

// Permanent reports whether the token will never be deliverable again.
func (c ErrorCode) Permanent() bool {
	switch c {
	case CodeInvalidArgument, CodeUnregistered, CodeSenderIDMismatch:
		return true
	default:
		return false
	}
}

// TokenResult is the outcome for one device token.
type TokenResult struct {
	Token     string
	MessageID string
	Code      ErrorCode
	Err       error
}

// OK reports whether the message was accepted for this token.
func (r TokenResult) OK() bool { return r.Err == nil && r.Code == CodeNone }

// BatchResult holds per-token results in request order.
type BatchResult struct {
	Results      []TokenResult
	SuccessCount int
	FailureCount int
}

// Delivered returns the tokens the gateway accepted.
func (b BatchResult) Delivered() []string {
	var out []string
	for _, r := range b.Results {
		if r.OK() {
			out = append(out, r.Token)
		}
	}
	return out
}

// PermanentFailures returns the tokens that should be deactivated.
func (b BatchResult) PermanentFailures() []string {
	var out []string
	for _, r := range b.Results {
		if !r.OK() && r.Code.Permanent() {
			out = append(out, r.Token)
		}
	}
	return out
}

// Gateway sends one message to many device tokens.
type Gateway interface {
	SendMulticast(ctx context.Context, msg Message, tokens []string) (BatchResult, error)
}

// DisabledGateway is used when no push credentials are configured.
// Every send is a logged no-op with zero successes.
type DisabledGateway struct{}

// SendMulticast implements Gateway.
func (DisabledGateway) SendMulticast(_ context.Context, _ Message, tokens []string) (BatchResult, error) {
	logger.Warn("Push gateway not configured, message skipped", zap.Int("tokens", len(tokens)))
	return BatchResult{}, nil
}
