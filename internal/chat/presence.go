package chat

import (
	"sort"
	"sync"
)

// OnlineUser is one entry of the OnlineUsers event.
type OnlineUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type presenceEntry struct {
	name  string
	conns int
}

// Presence counts live connections per user and tenant on this node.
type Presence struct {
	mu      sync.Mutex
	tenants map[string]map[string]*presenceEntry
}

// NewPresence creates an empty tracker.
func NewPresence() *Presence {
	return &Presence{tenants: make(map[string]map[string]*presenceEntry)}
}

// Connect records a connection and reports whether it is the user's first.
func (p *Presence) Connect(tenantID, userID, name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	users, ok := p.tenants[tenantID]
	if !ok {
		users = make(map[string]*presenceEntry)
		p.tenants[tenantID] = users
	}
	e, ok := users[userID]
	if !ok {
		e = &presenceEntry{}
		users[userID] = e
	}
	e.name = name
	e.conns++
	return e.conns == 1
}

// Disconnect releases a connection and reports whether it was the user's last.
func (p *Presence) Disconnect(tenantID, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := p.tenants[tenantID]
	e, ok := users[userID]
	if !ok {
		return false
	}
	e.conns--
	if e.conns > 0 {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(p.tenants, tenantID)
	}
	return true
}

// IsOnline reports whether the user has a live connection in the tenant.
func (p *Presence) IsOnline(tenantID, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tenants[tenantID][userID]
	return ok
}

// Online lists the tenant's online users ordered by user ID.
func (p *Presence) Online(tenantID string) []OnlineUser {
	p.mu.Lock()
	defer p.mu.Unlock()
	users := p.tenants[tenantID]
	out := make([]OnlineUser, 0, len(users))
	for id, e := range users {
		out = append(out, OnlineUser{UserID: id, UserName: e.name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
