// Package realtime implements the hub abstraction behind the notification
// and chat endpoints.
//
// A Hub admits connections whose tenant and user can be resolved, keeps every
// admitted connection in its tenant:{id} and user:{id} groups, routes client
// invocations to named methods on a worker pool, and fans events out to
// groups. Sends are best-effort and at-most-once. With a Backplane configured
// every group send is also published to the other nodes.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"tenantcast.dev/tenantcast/internal/identity"
	"tenantcast.dev/tenantcast/internal/pkg/logger"
	"tenantcast.dev/tenantcast/internal/pkg/worker"
)

// ErrUnknownConnection is returned for operations on a connection the hub
// never admitted or already released.
var ErrUnknownConnection = errors.New("unknown connection")

// Conn is the transport-side view of one client connection.
type Conn interface {
	ID() string
	Handshake() identity.Source
	// Send enqueues a frame without blocking.
	Send(frame Frame) error
	// Abort closes the connection from the server side.
	Abort()
}

// Submitter runs invocation tasks. *worker.Pool implements it.
type Submitter interface {
	Submit(ctx context.Context, task worker.Task) error
}

// Session is an admitted connection and its resolved identity.
type Session struct {
	Conn        Conn
	Identity    identity.Identity
	ConnectedAt time.Time
}

// ID returns the connection ID.
func (s *Session) ID() string { return s.Conn.ID() }

// SessionHook runs after a session is admitted or released.
type SessionHook func(ctx context.Context, s *Session)

// Hub is a named set of connections, groups and invocable methods.
type Hub struct {
	name     string
	resolver *identity.Resolver
	groups   *Groups
	pool     Submitter
	log      *zap.Logger

	backplane Backplane
	node      string

	mu       sync.RWMutex
	sessions map[string]*Session

	methods      map[string]Method
	onConnect    []SessionHook
	onDisconnect []SessionHook
}

// Option configures a Hub.
type Option func(*Hub)

// WithBackplane relays group sends through bp. node must be unique per process.
func WithBackplane(bp Backplane, node string) Option {
	return func(h *Hub) {
		h.backplane = bp
		h.node = node
	}
}

// NewHub creates a hub. Invocations run on pool.
func NewHub(name string, resolver *identity.Resolver, pool Submitter, opts ...Option) *Hub {
	h := &Hub{
		name:     name,
		resolver: resolver,
		groups:   NewGroups(),
		pool:     pool,
		log:      logger.Named("hub." + name),
		sessions: make(map[string]*Session),
		methods:  make(map[string]Method),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name returns the hub name.
func (h *Hub) Name() string { return h.name }

// Groups exposes the registry for inspection.
func (h *Hub) Groups() *Groups { return h.groups }

// OnConnected registers a hook run after a connection is admitted.
func (h *Hub) OnConnected(hook SessionHook) { h.onConnect = append(h.onConnect, hook) }

// OnDisconnected registers a hook run after an admitted connection leaves.
func (h *Hub) OnDisconnected(hook SessionHook) { h.onDisconnect = append(h.onDisconnect, hook) }

// OnConnect admits conn. When the tenant or user cannot be resolved the
// connection is aborted and false is returned; the failure never propagates
// to the transport.
func (h *Hub) OnConnect(ctx context.Context, conn Conn) bool {
	id, err := h.resolver.Resolve(conn.Handshake())
	if err != nil {
		h.log.Error("Connection rejected: identity not resolved",
			zap.String("connection_id", conn.ID()),
			zap.Error(err),
		)
		conn.Abort()
		return false
	}

	s := &Session{Conn: conn, Identity: id, ConnectedAt: time.Now().UTC()}
	h.mu.Lock()
	h.sessions[conn.ID()] = s
	h.mu.Unlock()

	h.groups.Add(TenantGroup(id.TenantID), conn.ID())
	h.groups.Add(UserGroup(id.UserID), conn.ID())

	h.log.Info("Connection established",
		zap.String("connection_id", conn.ID()),
		zap.String("tenant_id", id.TenantID),
		zap.String("user_id", id.UserID),
	)

	for _, hook := range h.onConnect {
		hook(ctx, s)
	}
	return true
}

// OnDisconnect releases conn. Only connections admitted by OnConnect are
// touched; the connection leaves every group it was in.
func (h *Hub) OnDisconnect(ctx context.Context, conn Conn, cause error) {
	h.mu.Lock()
	s, ok := h.sessions[conn.ID()]
	delete(h.sessions, conn.ID())
	h.mu.Unlock()
	if !ok {
		h.log.Debug("Disconnect of unadmitted connection ignored", zap.String("connection_id", conn.ID()))
		return
	}

	for _, group := range []string{TenantGroup(s.Identity.TenantID), UserGroup(s.Identity.UserID)} {
		if !h.groups.Remove(group, conn.ID()) {
			h.log.Warn("Connection missing from group on disconnect",
				zap.String("connection_id", conn.ID()),
				zap.String("group", group),
			)
		}
	}
	left := h.groups.RemoveAll(conn.ID())

	fields := []zap.Field{
		zap.String("connection_id", conn.ID()),
		zap.String("tenant_id", s.Identity.TenantID),
		zap.String("user_id", s.Identity.UserID),
		zap.Strings("released_groups", left),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	h.log.Info("Connection closed", fields...)

	for _, hook := range h.onDisconnect {
		hook(ctx, s)
	}
}

// Session returns the admitted session for a connection ID.
func (h *Hub) Session(connID string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[connID]
	return s, ok
}

// SessionsIn returns the local sessions currently in group.
func (h *Hub) SessionsIn(group string) []*Session {
	ids := h.groups.Members(group)
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := h.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// AddToGroup puts an admitted connection in group. The session read lock is
// held across the add so a concurrent OnDisconnect cannot miss the group.
func (h *Hub) AddToGroup(connID, group string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.sessions[connID]; !ok {
		return ErrUnknownConnection
	}
	h.groups.Add(group, connID)
	return nil
}

// RemoveFromGroup takes a connection out of group. Removing a non-member is a no-op.
func (h *Hub) RemoveFromGroup(connID, group string) {
	h.groups.Remove(group, connID)
}

// SendToGroup delivers an event to every connection in group.
func (h *Hub) SendToGroup(ctx context.Context, group, target string, args ...any) error {
	return h.sendToGroup(ctx, group, "", target, args)
}

// SendToGroupExcept delivers an event to every connection in group but one.
func (h *Hub) SendToGroupExcept(ctx context.Context, group, exceptConnID, target string, args ...any) error {
	return h.sendToGroup(ctx, group, exceptConnID, target, args)
}

// SendToTenant delivers an event to every live connection of a tenant.
func (h *Hub) SendToTenant(ctx context.Context, tenantID, target string, args ...any) error {
	return h.sendToGroup(ctx, TenantGroup(tenantID), "", target, args)
}

// SendToUser delivers an event to every live connection of a user.
func (h *Hub) SendToUser(ctx context.Context, userID, target string, args ...any) error {
	return h.sendToGroup(ctx, UserGroup(userID), "", target, args)
}

// SendToUserInTenant delivers an event to the user's connections that belong
// to tenantID. Connections of the same user ID under another tenant are skipped.
func (h *Hub) SendToUserInTenant(ctx context.Context, tenantID, userID, target string, args ...any) error {
	return h.send(ctx, Envelope{Group: UserGroup(userID), Tenant: tenantID}, target, args)
}

// SendToConnection delivers an event to a single local connection.
func (h *Hub) SendToConnection(_ context.Context, connID, target string, args ...any) error {
	s, ok := h.Session(connID)
	if !ok {
		return ErrUnknownConnection
	}
	frame, err := NewEvent(target, args...)
	if err != nil {
		return err
	}
	h.deliver(s, frame)
	return nil
}

func (h *Hub) sendToGroup(ctx context.Context, group, except, target string, args []any) error {
	return h.send(ctx, Envelope{Group: group, Except: except}, target, args)
}

func (h *Hub) send(ctx context.Context, env Envelope, target string, args []any) error {
	frame, err := NewEvent(target, args...)
	if err != nil {
		return err
	}
	env.Hub, env.Node, env.Frame = h.name, h.node, frame
	h.deliverLocal(env)

	if h.backplane != nil {
		if err := h.backplane.Publish(ctx, env); err != nil {
			h.log.Warn("Backplane publish failed",
				zap.String("group", env.Group),
				zap.String("target", target),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (h *Hub) deliverLocal(env Envelope) {
	for _, s := range h.SessionsIn(env.Group) {
		if s.ID() == env.Except {
			continue
		}
		if env.Tenant != "" && s.Identity.TenantID != env.Tenant {
			continue
		}
		h.deliver(s, env.Frame)
	}
}

func (h *Hub) deliver(s *Session, frame Frame) {
	if err := s.Conn.Send(frame); err != nil {
		h.log.Warn("Frame dropped",
			zap.String("connection_id", s.ID()),
			zap.String("target", frame.Target),
			zap.Error(err),
		)
	}
}

// Close aborts every admitted connection.
func (h *Hub) Close() {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.Conn.Abort()
	}
	h.log.Info("Hub closed", zap.Int("connections", len(sessions)))
}
