package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/chitchat-backend/chitchat-server/internal/stats"
	"github.com/chitchat-backend/chitchat-server/internal/store"
	"github.com/chitchat-backend/chitchat-server/internal/testutil"
	"github.com/chitchat-backend/chitchat-server/internal/types"
)

func newTestRoomManager(t *testing.T, db store.ChatStore) (*RoomManager, *Registry) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	registry := NewRegistry()
	return NewRoomManager(registry, db, su, testutil.TestLogger(t)), registry
}

func TestRoomManagerOnAttach(t *testing.T) {
	t.Run("subscribes to all conversations", func(t *testing.T) {
		db := &store.MockChatStore{}
		defer db.AssertExpectations(t)
		db.On("FindConversationIdsForParticipant", mock.Anything, "u1", maxAttachRooms).
			Return([]string{"c1", "c2"}, nil)

		rm, registry := newTestRoomManager(t, db)
		c := &Client{user: types.User{Id: "u1", Username: "alice"}}
		registry.Register("u1", c)

		current, err := rm.OnAttach(context.Background(), c)
		assert.NoError(t, err, "expected attach to succeed")
		assert.True(t, current, "expected connection to still be current")
		assert.ElementsMatch(t, []string{"c1", "c2"}, rm.Subscriptions(c), "expected subscriptions for both conversations")
		assert.True(t, rm.IsSubscribed("c1", c), "expected connection subscribed to c1")
	})

	t.Run("query failure leaves connection unsubscribed", func(t *testing.T) {
		db := &store.MockChatStore{}
		defer db.AssertExpectations(t)
		db.On("FindConversationIdsForParticipant", mock.Anything, "u1", maxAttachRooms).
			Return(nil, context.DeadlineExceeded)

		rm, registry := newTestRoomManager(t, db)
		c := &Client{user: types.User{Id: "u1"}}
		registry.Register("u1", c)

		_, err := rm.OnAttach(context.Background(), c)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected deadline error to propagate")
		assert.Empty(t, rm.Subscriptions(c), "expected no subscriptions after failed attach")
	})

	t.Run("store error propagates", func(t *testing.T) {
		db := &store.MockChatStore{}
		defer db.AssertExpectations(t)
		db.On("FindConversationIdsForParticipant", mock.Anything, "u1", maxAttachRooms).
			Return(nil, errors.New("connection refused"))

		rm, registry := newTestRoomManager(t, db)
		c := &Client{user: types.User{Id: "u1"}}
		registry.Register("u1", c)

		_, err := rm.OnAttach(context.Background(), c)
		assert.Error(t, err, "expected store error to propagate")
	})

	t.Run("unregistered connection is not subscribed", func(t *testing.T) {
		db := &store.MockChatStore{}
		defer db.AssertExpectations(t)
		db.On("FindConversationIdsForParticipant", mock.Anything, "u1", maxAttachRooms).
			Return([]string{"c1"}, nil)

		rm, _ := newTestRoomManager(t, db)
		// u1's connection was deregistered while the query was in flight
		c := &Client{user: types.User{Id: "u1"}}

		current, err := rm.OnAttach(context.Background(), c)
		assert.NoError(t, err, "expected no error for a superseded connection")
		assert.False(t, current, "expected connection to be reported stale")
		assert.Empty(t, rm.Subscriptions(c), "expected no subscriptions for a dead connection")
	})

	t.Run("superseded connection is not subscribed", func(t *testing.T) {
		db := &store.MockChatStore{}
		defer db.AssertExpectations(t)
		db.On("FindConversationIdsForParticipant", mock.Anything, "u1", maxAttachRooms).
			Return([]string{"c1"}, nil)

		rm, registry := newTestRoomManager(t, db)
		old := &Client{user: types.User{Id: "u1"}}
		replacement := &Client{user: types.User{Id: "u1"}}
		registry.Register("u1", replacement)

		current, err := rm.OnAttach(context.Background(), old)
		assert.NoError(t, err)
		assert.False(t, current, "expected replaced connection to be reported stale")
		assert.Empty(t, rm.Subscriptions(old), "expected no subscriptions for the replaced connection")
	})
}

func TestRoomManagerOnMembershipChanged(t *testing.T) {
	t.Run("join subscribes a live connection", func(t *testing.T) {
		rm, registry := newTestRoomManager(t, &store.MockChatStore{})
		c := &Client{user: types.User{Id: "u1"}}
		registry.Register("u1", c)

		rm.OnMembershipChanged("c1", "u1", MembershipJoin)
		assert.True(t, rm.IsSubscribed("c1", c), "expected live connection to be subscribed without reconnect")
	})

	t.Run("leave unsubscribes immediately", func(t *testing.T) {
		rm, registry := newTestRoomManager(t, &store.MockChatStore{})
		c := &Client{user: types.User{Id: "u1"}}
		registry.Register("u1", c)
		rm.Subscribe("c1", c)

		rm.OnMembershipChanged("c1", "u1", MembershipLeave)
		assert.False(t, rm.IsSubscribed("c1", c), "expected removed user to stop receiving room events")
		assert.Empty(t, rm.Connections("c1"), "expected room to have no connections")
	})

	t.Run("no live connection is a no-op", func(t *testing.T) {
		rm, _ := newTestRoomManager(t, &store.MockChatStore{})

		rm.OnMembershipChanged("c1", "u1", MembershipJoin)
		assert.Empty(t, rm.Connections("c1"), "expected no subscriptions for offline user")
	})
}

func TestRoomManagerDetach(t *testing.T) {
	rm, _ := newTestRoomManager(t, &store.MockChatStore{})
	c1 := &Client{user: types.User{Id: "u1"}}
	c2 := &Client{user: types.User{Id: "u2"}}

	rm.Subscribe("c1", c1)
	rm.Subscribe("c2", c1)
	rm.Subscribe("c1", c2)

	convIds := rm.Detach(c1)
	assert.ElementsMatch(t, []string{"c1", "c2"}, convIds, "expected detach to return former subscriptions")
	assert.Empty(t, rm.Subscriptions(c1), "expected no subscriptions after detach")

	// the other connection keeps its subscription
	assert.ElementsMatch(t, []*Client{c2}, rm.Connections("c1"), "expected other connection to remain in room")
	assert.Empty(t, rm.Connections("c2"), "expected empty room to be dropped")
}
