package realtime

import (
	"encoding/json"
	"fmt"

	apperrors "tenantcast.dev/tenantcast/internal/pkg/errors"
)

// FrameType discriminates wire frames.
type FrameType string

const (
	FrameInvoke     FrameType = "invoke"
	FrameEvent      FrameType = "event"
	FrameCompletion FrameType = "completion"
	FramePing       FrameType = "ping"
	FramePong       FrameType = "pong"
)

// Frame is the JSON message exchanged with clients.
//
//	client → server  {"type":"invoke","id":"7","target":"JoinConversation","arguments":["c-1"]}
//	server → client  {"type":"completion","id":"7","error":{"code":"...","message":"..."}}
//	server → client  {"type":"event","target":"ReceiveNotification","arguments":[{...}]}
type Frame struct {
	Type      FrameType         `json:"type"`
	ID        string            `json:"id,omitempty"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage   `json:"result,omitempty"`
	Error     *FrameError       `json:"error,omitempty"`
}

// FrameError is the client-visible part of a failed invocation.
type FrameError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Params  map[string]any `json:"params,omitempty"`
}

// NewEvent encodes a server-to-client event.
func NewEvent(target string, args ...any) (Frame, error) {
	encoded := make([]json.RawMessage, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return Frame{}, fmt.Errorf("encode argument %d of %s: %w", i, target, err)
		}
		encoded[i] = b
	}
	return Frame{Type: FrameEvent, Target: target, Arguments: encoded}, nil
}

// NewCompletion encodes the outcome of an invocation.
func NewCompletion(id string, result any, err error) Frame {
	f := Frame{Type: FrameCompletion, ID: id}
	if err != nil {
		f.Error = toFrameError(err)
		return f
	}
	if result != nil {
		b, mErr := json.Marshal(result)
		if mErr != nil {
			f.Error = toFrameError(mErr)
			return f
		}
		f.Result = b
	}
	return f
}

// toFrameError exposes AppErrors as-is and hides everything else.
func toFrameError(err error) *FrameError {
	_, body := apperrors.Render(err, apperrors.CodeInvocationFail, "invocation failed")
	return &FrameError{Code: body.Code, Message: body.Message, Params: body.Params}
}
