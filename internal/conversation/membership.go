package conversation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// MembershipStore records which tenants take part in a conversation.
// Entries are never evicted.
type MembershipStore interface {
	// Join adds tenantID to the conversation. Joining twice is a no-op.
	Join(ctx context.Context, conversationID, tenantID string) error
	// Participants returns the sorted tenant IDs of the conversation.
	Participants(ctx context.Context, conversationID string) ([]string, error)
}

// MemoryStore keeps memberships in process memory.
type MemoryStore struct {
	mu           sync.RWMutex
	participants map[string]map[string]struct{}
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{participants: make(map[string]map[string]struct{})}
}

func (s *MemoryStore) Join(_ context.Context, conversationID, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.participants[conversationID]
	if !ok {
		set = make(map[string]struct{})
		s.participants[conversationID] = set
	}
	set[tenantID] = struct{}{}
	return nil
}

func (s *MemoryStore) Participants(_ context.Context, conversationID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.participants[conversationID]
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// RedisStore keeps memberships in redis sets, shared by every node.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store whose keys are prefix + conversation ID.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tenantcast:conversation:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Join(ctx context.Context, conversationID, tenantID string) error {
	if err := s.client.SAdd(ctx, s.prefix+conversationID, tenantID).Err(); err != nil {
		return fmt.Errorf("join conversation %s: %w", conversationID, err)
	}
	return nil
}

func (s *RedisStore) Participants(ctx context.Context, conversationID string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.prefix+conversationID).Result()
	if err != nil {
		return nil, fmt.Errorf("participants of %s: %w", conversationID, err)
	}
	sort.Strings(members)
	return members, nil
}

var (
	_ MembershipStore = (*MemoryStore)(nil)
	_ MembershipStore = (*RedisStore)(nil)
)
