package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroups_AddRemove(t *testing.T) {
	g := NewGroups()

	assert.True(t, g.Add("tenant:a", "c1"))
	assert.False(t, g.Add("tenant:a", "c1"))
	assert.True(t, g.Add("user:u", "c1"))
	assert.True(t, g.Contains("tenant:a", "c1"))
	assert.Equal(t, []string{"tenant:a", "user:u"}, g.GroupsOf("c1"))

	assert.True(t, g.Remove("tenant:a", "c1"))
	assert.False(t, g.Remove("tenant:a", "c1"))
	assert.Equal(t, 0, g.Size("tenant:a"))
	assert.Equal(t, []string{"user:u"}, g.GroupsOf("c1"))
}

func TestGroups_RemoveAll(t *testing.T) {
	g := NewGroups()
	g.Add("tenant:a", "c1")
	g.Add("user:u", "c1")
	g.Add("conversation:x", "c1")
	g.Add("tenant:a", "c2")

	left := g.RemoveAll("c1")

	assert.Equal(t, []string{"conversation:x", "tenant:a", "user:u"}, left)
	assert.Empty(t, g.GroupsOf("c1"))
	assert.Equal(t, []string{"c2"}, g.Members("tenant:a"))
	assert.Empty(t, g.RemoveAll("c1"))
}

func TestGroups_ConcurrentMutation(t *testing.T) {
	g := NewGroups()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			g.Add("tenant:a", id)
			g.Add(UserGroup(id), id)
			_ = g.Members("tenant:a")
			if i%2 == 0 {
				g.RemoveAll(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, g.Size("tenant:a"))
}

func TestGroupNames(t *testing.T) {
	assert.Equal(t, "tenant:t1", TenantGroup("t1"))
	assert.Equal(t, "user:u1", UserGroup("u1"))
	assert.Equal(t, "conversation:c1", ConversationGroup("c1"))
}
