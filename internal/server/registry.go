package server

import (
	"sync"
)

// Registry is the authoritative mapping from a user id to its single live
// connection. It is the sole mutator of that mapping; every other component
// reads it through Lookup.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Client),
	}
}

// Register installs c as the current connection for userId and returns the
// connection it replaced, if any. The caller is responsible for signalling
// and terminating the evicted connection.
func (r *Registry) Register(userId string, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.conns[userId]
	if old == c {
		return nil
	}
	r.conns[userId] = c

	return old
}

// Unregister removes the mapping only if c is still the current connection
// for userId. A disconnect from an already-superseded connection must not
// evict the newer one. Returns whether the mapping was removed.
func (r *Registry) Unregister(userId string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[userId] != c {
		return false
	}
	delete(r.conns, userId)

	return true
}

func (r *Registry) Lookup(userId string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[userId]
	return c, ok
}

func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.conns))
	for userId := range r.conns {
		users = append(users, userId)
	}

	return users
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
