package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chitchat-backend/chitchat-server/internal/types"
)

func TestRegistryRegister(t *testing.T) {
	t.Run("first connection for a user", func(t *testing.T) {
		r := NewRegistry()
		c := &Client{user: types.User{Id: "u1", Username: "alice"}}

		evicted := r.Register("u1", c)
		assert.Nil(t, evicted, "expected no evicted connection on first register")

		got, ok := r.Lookup("u1")
		assert.True(t, ok, "expected lookup to find registered connection")
		assert.Equal(t, c, got, "expected lookup to return registered connection")
	})

	t.Run("second connection replaces the first", func(t *testing.T) {
		r := NewRegistry()
		c1 := &Client{user: types.User{Id: "u1", Username: "alice"}}
		c2 := &Client{user: types.User{Id: "u1", Username: "alice"}}

		r.Register("u1", c1)
		evicted := r.Register("u1", c2)
		assert.Equal(t, c1, evicted, "expected first connection to be evicted")

		got, _ := r.Lookup("u1")
		assert.Equal(t, c2, got, "expected second connection to be current")
		assert.Equal(t, 1, r.Len(), "expected at most one connection per user")
	})

	t.Run("re-registering the same connection is a no-op", func(t *testing.T) {
		r := NewRegistry()
		c := &Client{user: types.User{Id: "u1"}}

		r.Register("u1", c)
		evicted := r.Register("u1", c)
		assert.Nil(t, evicted, "expected no eviction when re-registering the current connection")
	})
}

func TestRegistryUnregister(t *testing.T) {
	t.Run("removes the current connection", func(t *testing.T) {
		r := NewRegistry()
		c := &Client{user: types.User{Id: "u1"}}

		r.Register("u1", c)
		assert.True(t, r.Unregister("u1", c), "expected unregister of current connection to succeed")

		_, ok := r.Lookup("u1")
		assert.False(t, ok, "expected no connection after unregister")
	})

	t.Run("stale disconnect does not evict the newer connection", func(t *testing.T) {
		r := NewRegistry()
		c1 := &Client{user: types.User{Id: "u1"}}
		c2 := &Client{user: types.User{Id: "u1"}}

		r.Register("u1", c1)
		r.Register("u1", c2)

		// the superseded connection's disconnect arrives late
		assert.False(t, r.Unregister("u1", c1), "expected stale unregister to be a no-op")

		got, ok := r.Lookup("u1")
		assert.True(t, ok, "expected newer connection to survive stale unregister")
		assert.Equal(t, c2, got, "expected newer connection to still be current")
	})
}

func TestRegistryOnlineUsers(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.OnlineUsers(), "expected no online users initially")

	r.Register("u1", &Client{user: types.User{Id: "u1"}})
	r.Register("u2", &Client{user: types.User{Id: "u2"}})

	users := r.OnlineUsers()
	assert.Len(t, users, 2, "expected two online users")
	assert.ElementsMatch(t, []string{"u1", "u2"}, users, "expected online user ids to match")
}
