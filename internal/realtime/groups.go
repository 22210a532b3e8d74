package realtime

import (
	"sort"
	"sync"
)

// Group name prefixes.
const (
	tenantGroupPrefix       = "tenant:"
	userGroupPrefix         = "user:"
	conversationGroupPrefix = "conversation:"
)

// TenantGroup returns the group of every connection of a tenant.
func TenantGroup(tenantID string) string { return tenantGroupPrefix + tenantID }

// UserGroup returns the group of every connection of a user.
func UserGroup(userID string) string { return userGroupPrefix + userID }

// ConversationGroup returns the group of connections that joined a conversation.
func ConversationGroup(conversationID string) string { return conversationGroupPrefix + conversationID }

// Groups is a concurrent group → connection registry with a reverse index,
// so a departing connection can be dropped from every group it joined.
type Groups struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
	byConn  map[string]map[string]struct{}
}

// NewGroups creates an empty registry.
func NewGroups() *Groups {
	return &Groups{
		members: make(map[string]map[string]struct{}),
		byConn:  make(map[string]map[string]struct{}),
	}
}

// Add puts connID in group. It reports false if it was already a member.
func (g *Groups) Add(group, connID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	conns, ok := g.members[group]
	if !ok {
		conns = make(map[string]struct{})
		g.members[group] = conns
	}
	if _, exists := conns[connID]; exists {
		return false
	}
	conns[connID] = struct{}{}

	joined, ok := g.byConn[connID]
	if !ok {
		joined = make(map[string]struct{})
		g.byConn[connID] = joined
	}
	joined[group] = struct{}{}
	return true
}

// Remove takes connID out of group. It reports false if it was not a member.
func (g *Groups) Remove(group, connID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeLocked(group, connID)
}

func (g *Groups) removeLocked(group, connID string) bool {
	conns, ok := g.members[group]
	if !ok {
		return false
	}
	if _, exists := conns[connID]; !exists {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(g.members, group)
	}
	if joined, ok := g.byConn[connID]; ok {
		delete(joined, group)
		if len(joined) == 0 {
			delete(g.byConn, connID)
		}
	}
	return true
}

// RemoveAll drops connID from every group and returns the groups it left.
func (g *Groups) RemoveAll(connID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	joined := g.byConn[connID]
	left := make([]string, 0, len(joined))
	for group := range joined {
		left = append(left, group)
	}
	for _, group := range left {
		g.removeLocked(group, connID)
	}
	sort.Strings(left)
	return left
}

// Members returns a snapshot of the connections in group.
func (g *Groups) Members(group string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	conns := g.members[group]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// GroupsOf returns the groups connID belongs to, sorted.
func (g *Groups) GroupsOf(connID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	joined := g.byConn[connID]
	out := make([]string, 0, len(joined))
	for group := range joined {
		out = append(out, group)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether connID is in group.
func (g *Groups) Contains(group, connID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[group][connID]
	return ok
}

// Size returns the number of connections in group.
func (g *Groups) Size(group string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members[group])
}
