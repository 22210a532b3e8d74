package chat

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantcast.dev/tenantcast/internal/conversation"
	"tenantcast.dev/tenantcast/internal/identity"
	apperrors "tenantcast.dev/tenantcast/internal/pkg/errors"
	"tenantcast.dev/tenantcast/internal/realtime"
	"tenantcast.dev/tenantcast/internal/realtime/realtimetest"
)

type notified struct {
	tenantID, sender, recipient, preview string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notified
}

func (n *recordingNotifier) OnDirectMessage(_ context.Context, tenantID, senderName, recipientID, preview string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notified{tenantID, senderName, recipientID, preview})
}

type fixture struct {
	hub      *realtime.Hub
	members  *conversation.MemoryStore
	service  *Service
	notifier *recordingNotifier
}

func newFixture(t *testing.T, authorizer conversation.Authorizer) *fixture {
	t.Helper()
	hub := realtime.NewHub("chat", identity.NewResolver(), realtimetest.InlinePool{})
	members := conversation.NewMemoryStore()
	notifier := &recordingNotifier{}
	svc := Register(hub, conversation.NewGuard(authorizer, true), members, WithNotifier(notifier, nil))
	return &fixture{hub: hub, members: members, service: svc, notifier: notifier}
}

func (f *fixture) connect(t *testing.T, id, tenantID, userID string) *realtimetest.Conn {
	t.Helper()
	c := realtimetest.NewUserConn(id, tenantID, userID)
	require.True(t, f.hub.OnConnect(context.Background(), c))
	return c
}

func (f *fixture) invoke(c *realtimetest.Conn, target string, args ...any) {
	f.hub.Invoke(context.Background(), c, realtimetest.Invoke("1", target, args...))
}

func lastError(t *testing.T, c *realtimetest.Conn) *realtime.FrameError {
	t.Helper()
	completions := c.Completions()
	require.NotEmpty(t, completions)
	return completions[len(completions)-1].Error
}

func TestSendMessageToTenant_StaysInTenant(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.connect(t, "c1", "t1", "alice")
	bob := f.connect(t, "c2", "t1", "bob")
	eve := f.connect(t, "c3", "t2", "eve")

	f.invoke(alice, MethodSendMessageToTenant, "hello team")

	for _, c := range []*realtimetest.Conn{alice, bob} {
		events := c.Events(EventReceiveMessage)
		require.Len(t, events, 1)
		var msg Message
		require.NoError(t, realtimetest.DecodeArg(events[0], 0, &msg))
		assert.Equal(t, "hello team", msg.Message)
		assert.Equal(t, "alice", msg.UserID)
		assert.Equal(t, "User alice", msg.UserName)
		assert.Equal(t, "t1", msg.TenantID)
	}
	assert.Empty(t, eve.Events(EventReceiveMessage))
}

func TestSendMessageToTenant_RequiresMessage(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.connect(t, "c1", "t1", "alice")

	f.invoke(alice, MethodSendMessageToTenant, "   ")

	fe := lastError(t, alice)
	require.NotNil(t, fe)
	assert.Equal(t, apperrors.CodeInvalidRequestField, fe.Code)
	assert.Empty(t, alice.Events(EventReceiveMessage))
}

func TestSendDirectMessage(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.connect(t, "c1", "t1", "alice")
	aliceTab := f.connect(t, "c2", "t1", "alice")
	bob := f.connect(t, "c3", "t1", "bob")
	otherBob := f.connect(t, "c4", "t2", "bob")

	f.invoke(alice, MethodSendDirectMessage, "bob", "lunch?")

	require.Len(t, bob.Events(EventReceiveDirectMessage), 1)
	require.Len(t, alice.Events(EventReceiveDirectMessage), 1, "echo to caller")
	assert.Empty(t, aliceTab.Events(EventReceiveDirectMessage), "echo goes to the calling connection only")
	assert.Empty(t, otherBob.Events(EventReceiveDirectMessage))

	var msg Message
	require.NoError(t, realtimetest.DecodeArg(bob.Events(EventReceiveDirectMessage)[0], 0, &msg))
	assert.True(t, msg.IsDirectMessage)
	assert.Equal(t, "bob", msg.RecipientUserID)

	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, notified{"t1", "User alice", "bob", "lunch?"}, f.notifier.calls[0])
}

func TestSendDirectMessage_ToSelfDoesNotNotify(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.connect(t, "c1", "t1", "alice")

	f.invoke(alice, MethodSendDirectMessage, "alice", "note to self")

	assert.Empty(t, f.notifier.calls)
}

func TestJoinConversation_Denied(t *testing.T) {
	tests := []struct {
		name       string
		authorizer conversation.Authorizer
		convID     string
	}{
		{"no authorizer", nil, "property-1"},
		{"deny all", conversation.DenyAll{}, "property-1"},
		{"not one of the matched users", conversation.MatchAuthorizer{}, "match-bob-carol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.authorizer)
			alice := f.connect(t, "c1", "t1", "alice")
			before := f.hub.Groups().GroupsOf("c1")

			f.invoke(alice, MethodJoinConversation, tt.convID)

			fe := lastError(t, alice)
			require.NotNil(t, fe)
			assert.Equal(t, apperrors.CodeConversationJoinDenied, fe.Code)
			assert.Equal(t, before, f.hub.Groups().GroupsOf("c1"))
			assert.False(t, f.hub.Groups().Contains(realtime.ConversationGroup(tt.convID), "c1"))
			participants, _ := f.members.Participants(context.Background(), tt.convID)
			assert.Empty(t, participants)
			_, stillOpen := f.hub.Session("c1")
			assert.True(t, stillOpen)
		})
	}
}

func TestConversation_CrossTenantFlow(t *testing.T) {
	f := newFixture(t, conversation.PropertyAuthorizer{})
	landlord := f.connect(t, "c1", "t1", "landlord")
	renter := f.connect(t, "c2", "t2", "renter")
	bystander := f.connect(t, "c3", "t1", "bystander")

	f.invoke(landlord, MethodJoinConversation, "property-7")
	f.invoke(renter, MethodJoinConversation, "property-7")
	f.invoke(renter, MethodJoinConversation, "property-7")

	participants, err := f.members.Participants(context.Background(), "property-7")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, participants)
	assert.Len(t, landlord.Events(EventUserJoinedConversation), 2)

	f.invoke(renter, MethodSendMessageToConversation, "property-7", "is it still available?")

	for _, c := range []*realtimetest.Conn{landlord, renter} {
		events := c.Events(EventReceiveConversationMessage)
		require.Len(t, events, 1)
		var msg Message
		require.NoError(t, realtimetest.DecodeArg(events[0], 0, &msg))
		assert.True(t, msg.IsCrossTenant)
		assert.Equal(t, "property-7", msg.ConversationID)
		assert.Equal(t, "t2", msg.TenantID)
	}
	assert.Empty(t, bystander.Events(EventReceiveConversationMessage))

	f.invoke(renter, MethodLeaveConversation, "property-7")
	assert.False(t, f.hub.Groups().Contains(realtime.ConversationGroup("property-7"), "c2"))
	assert.True(t, f.hub.Groups().Contains(realtime.ConversationGroup("property-7"), "c1"))
	assert.Len(t, landlord.Events(EventUserLeftConversation), 1)
	participants, _ = f.members.Participants(context.Background(), "property-7")
	assert.Equal(t, []string{"t1", "t2"}, participants, "leaving keeps tenant participation")
}

func TestSendMessageToConversation_Denied(t *testing.T) {
	f := newFixture(t, conversation.MatchAuthorizer{})
	alice := f.connect(t, "c1", "t1", "alice")
	bob := f.connect(t, "c2", "t1", "bob")
	f.invoke(bob, MethodJoinConversation, "match-alice-bob")

	f.invoke(alice, MethodSendMessageToConversation, "match-bob-carol", "hi")

	fe := lastError(t, alice)
	require.NotNil(t, fe)
	assert.Equal(t, apperrors.CodeConversationSendDenied, fe.Code)
	assert.Empty(t, bob.Events(EventReceiveConversationMessage))
}

func TestDisconnectDropsConversationGroups(t *testing.T) {
	f := newFixture(t, conversation.PropertyAuthorizer{})
	alice := f.connect(t, "c1", "t1", "alice")
	f.invoke(alice, MethodJoinConversation, "property-1")
	require.True(t, f.hub.Groups().Contains(realtime.ConversationGroup("property-1"), "c1"))

	f.hub.OnDisconnect(context.Background(), alice, nil)

	assert.Empty(t, f.hub.Groups().GroupsOf("c1"))
}

func TestTyping(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.connect(t, "c1", "t1", "alice")
	bob := f.connect(t, "c2", "t1", "bob")

	f.invoke(alice, MethodNotifyTyping)
	f.invoke(alice, MethodNotifyStoppedTyping)

	assert.Len(t, bob.Events(EventUserTyping), 1)
	assert.Len(t, bob.Events(EventUserStoppedTyping), 1)
	assert.Empty(t, alice.Events(EventUserTyping))
}

func TestPresence_RefCountedAcrossConnections(t *testing.T) {
	f := newFixture(t, nil)
	bob := f.connect(t, "c0", "t1", "bob")
	bob.Reset()

	alice1 := f.connect(t, "c1", "t1", "alice")
	alice2 := f.connect(t, "c2", "t1", "alice")

	assert.Len(t, bob.Events(EventUserConnected), 1, "second connection is not announced")
	var online []OnlineUser
	require.NoError(t, realtimetest.DecodeArg(alice2.Events(EventOnlineUsers)[0], 0, &online))
	assert.Equal(t, []OnlineUser{{"alice", "User alice"}, {"bob", "User bob"}}, online)
	assert.True(t, f.service.IsOnline("t1", "alice"))

	f.hub.OnDisconnect(context.Background(), alice1, nil)
	assert.Empty(t, bob.Events(EventUserDisconnected))
	assert.True(t, f.service.IsOnline("t1", "alice"))

	f.hub.OnDisconnect(context.Background(), alice2, nil)
	assert.Len(t, bob.Events(EventUserDisconnected), 1)
	assert.False(t, f.service.IsOnline("t1", "alice"))
}

func TestGetUserConversations(t *testing.T) {
	f := newFixture(t, conversation.MatchAuthorizer{})
	alice := f.connect(t, "c1", "t1", "alice")

	f.invoke(alice, MethodGetUserConversations)

	completions := alice.Completions()
	require.Len(t, completions, 1)
	assert.Nil(t, completions[0].Error)
	assert.JSONEq(t, `[]`, string(completions[0].Result))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))
	long := strings.Repeat("é", 60)
	got := Preview(long)
	assert.Equal(t, strings.Repeat("é", 50)+"...", got)
}
