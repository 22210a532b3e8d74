package errors

import "net/http"

// Error codes are stable identifiers; clients switch on them, never on Message.

// Identity error codes.
const (
	CodeIdentityNotFound = "IDENTITY_NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeTokenInvalid     = "TOKEN_INVALID"
	CodeForbidden        = "FORBIDDEN"
)

// Conversation error codes.
const (
	CodeConversationJoinDenied = "CONVERSATION_JOIN_DENIED"
	CodeConversationSendDenied = "CONVERSATION_SEND_DENIED"
)

// Notification error codes.
const (
	CodeNotificationNotFound = "NOTIFICATION_NOT_FOUND"
	CodePushTokenInvalid     = "PUSH_TOKEN_INVALID"
	CodePushTokenNotFound    = "PUSH_TOKEN_NOT_FOUND"
)

// Hub error codes.
const (
	CodeMethodNotFound = "METHOD_NOT_FOUND"
	CodeInvocationFail = "INVOCATION_FAILED"
)

// Validation error codes.
const (
	CodeInvalidRequestField = "INVALID_REQUEST_FIELD"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeInternal            = "INTERNAL_ERROR"
)

// ErrJoinDeniedf creates the error returned to a client whose join was refused.
func ErrJoinDeniedf(conversationID, reason string) *AppError {
	return (&AppError{
		Code:       CodeConversationJoinDenied,
		Message:    "not authorized to join this conversation",
		HTTPStatus: http.StatusForbidden,
	}).WithParams(map[string]any{"conversation_id": conversationID, "reason": reason})
}

// ErrSendDeniedf creates the error returned to a client whose message was refused.
func ErrSendDeniedf(conversationID, reason string) *AppError {
	return (&AppError{
		Code:       CodeConversationSendDenied,
		Message:    "not authorized to send messages to this conversation",
		HTTPStatus: http.StatusForbidden,
	}).WithParams(map[string]any{"conversation_id": conversationID, "reason": reason})
}

// ErrInvalidRequestFieldf creates a bad request error for a missing or malformed field.
func ErrInvalidRequestFieldf(fieldName string) *AppError {
	return (&AppError{
		Code:       CodeInvalidRequestField,
		Message:    "invalid or missing field: " + fieldName,
		HTTPStatus: http.StatusBadRequest,
	}).WithParams(map[string]any{"field": fieldName})
}

// ErrNotificationNotFoundf creates a notification not found error.
func ErrNotificationNotFoundf(id string) *AppError {
	return (&AppError{
		Code:       CodeNotificationNotFound,
		Message:    "notification not found",
		HTTPStatus: http.StatusNotFound,
	}).WithParams(map[string]any{"notification_id": id})
}
