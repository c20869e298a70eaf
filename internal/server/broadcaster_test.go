package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/chitchat-backend/chitchat-server/internal/stats"
	"github.com/chitchat-backend/chitchat-server/internal/store"
	"github.com/chitchat-backend/chitchat-server/internal/testutil"
	"github.com/chitchat-backend/chitchat-server/internal/types"
)

func newTestBroadcaster(t *testing.T) (*Broadcaster, *Registry, *RoomManager) {
	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	logger := testutil.TestLogger(t)
	registry := NewRegistry()
	rooms := NewRoomManager(registry, &store.MockChatStore{}, su, logger)

	return NewBroadcaster(registry, rooms, su, logger), registry, rooms
}

func newTestClient(userId string) *Client {
	return &Client{
		user: types.User{Id: userId, Username: userId},
		send: make(chan *ServerEvent, 16),
		stop: make(chan struct{}),
	}
}

func TestBroadcasterToRoom(t *testing.T) {
	bc, _, rooms := newTestBroadcaster(t)

	c1 := newTestClient("u1")
	c2 := newTestClient("u2")
	rooms.Subscribe("c1", c1)
	rooms.Subscribe("c1", c2)

	ev := newServerEvent(EventNewMessage, nil)
	bc.ToRoom("c1", ev, c1)

	select {
	case got := <-c2.send:
		assert.Equal(t, ev, got, "expected subscribed connection to receive the event")
	default:
		t.Error("expected event on subscribed connection")
	}

	select {
	case <-c1.send:
		t.Error("expected skipped connection to receive nothing")
	default:
	}
}

func TestBroadcasterToUsers(t *testing.T) {
	bc, registry, _ := newTestBroadcaster(t)

	c1 := newTestClient("u1")
	registry.Register("u1", c1)

	ev := newServerEvent(EventMessageStatusUpdate, nil)
	// u2 has no live connection, best-effort fan-out silently drops it
	bc.ToUsers([]string{"u1", "u2"}, ev)

	select {
	case got := <-c1.send:
		assert.Equal(t, ev, got, "expected connected user to receive the event")
	default:
		t.Error("expected event on connected user's connection")
	}
}

func TestBroadcasterFullSendChannel(t *testing.T) {
	bc, registry, _ := newTestBroadcaster(t)

	c := &Client{
		user: types.User{Id: "u1"},
		send: make(chan *ServerEvent, 1),
		log:  testutil.TestLogger(t),
	}
	registry.Register("u1", c)

	c.send <- newServerEvent(EventNewMessage, nil) // fill the channel

	// a slow consumer must not block the broadcaster
	bc.ToUsers([]string{"u1"}, newServerEvent(EventPresenceUpdate, nil))
	assert.Len(t, c.send, 1, "expected overflowing event to be dropped")
}
