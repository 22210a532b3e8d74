// Package realtimetest provides in-memory connections for hub tests.
package realtimetest

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"

	"tenantcast.dev/tenantcast/internal/identity"
	"tenantcast.dev/tenantcast/internal/pkg/worker"
	"tenantcast.dev/tenantcast/internal/realtime"
)

// Conn records every frame sent to it.
type Conn struct {
	id        string
	handshake identity.Handshake

	mu      sync.Mutex
	frames  []realtime.Frame
	aborted bool
	// Fail makes Send return this error.
	Fail error
}

// NewConn creates a connection carrying claims.
func NewConn(id string, claims identity.Claims) *Conn {
	return &Conn{id: id, handshake: identity.Handshake{Claims: claims, Query: url.Values{}}}
}

// NewUserConn creates a connection for tenantID/userID.
func NewUserConn(id, tenantID, userID string) *Conn {
	return NewConn(id, identity.Claims{"tenant_id": tenantID, "sub": userID, "name": "User " + userID})
}

// WithQuery sets handshake query parameters.
func (c *Conn) WithQuery(q url.Values) *Conn {
	c.handshake.Query = q
	return c
}

func (c *Conn) ID() string                 { return c.id }
func (c *Conn) Handshake() identity.Source { return c.handshake }

func (c *Conn) Send(frame realtime.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail != nil {
		return c.Fail
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *Conn) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = true
}

// Aborted reports whether the hub aborted the connection.
func (c *Conn) Aborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

// Frames returns a copy of the received frames.
func (c *Conn) Frames() []realtime.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.Frame(nil), c.frames...)
}

// Events returns received events with the given target.
func (c *Conn) Events(target string) []realtime.Frame {
	var out []realtime.Frame
	for _, f := range c.Frames() {
		if f.Type == realtime.FrameEvent && f.Target == target {
			out = append(out, f)
		}
	}
	return out
}

// Completions returns received completion frames.
func (c *Conn) Completions() []realtime.Frame {
	var out []realtime.Frame
	for _, f := range c.Frames() {
		if f.Type == realtime.FrameCompletion {
			out = append(out, f)
		}
	}
	return out
}

// Reset clears recorded frames.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// DecodeArg decodes argument i of frame into v.
func DecodeArg(frame realtime.Frame, i int, v any) error {
	return json.Unmarshal(frame.Arguments[i], v)
}

// Invoke builds an invoke frame with JSON-encoded arguments.
func Invoke(id, target string, args ...any) realtime.Frame {
	encoded := make([]json.RawMessage, len(args))
	for i, a := range args {
		encoded[i], _ = json.Marshal(a)
	}
	return realtime.Frame{Type: realtime.FrameInvoke, ID: id, Target: target, Arguments: encoded}
}

// InlinePool runs tasks on the calling goroutine so tests observe results
// synchronously.
type InlinePool struct{}

func (InlinePool) Submit(ctx context.Context, task worker.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	task(ctx)
	return nil
}
