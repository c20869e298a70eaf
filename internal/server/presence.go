package server

import (
	"log"
	"sync"

	"github.com/chitchat-backend/chitchat-server/internal/store"
	"github.com/chitchat-backend/chitchat-server/internal/types"
)

// PresenceTracker derives online/offline/last-seen transitions from the
// connection lifecycle and broadcasts each delta immediately, without
// batching. The in-memory state is authoritative while a connection is live;
// the user store holds the durable copy on a best-effort write-behind.
type PresenceTracker struct {
	mu       sync.Mutex
	states   map[string]types.PresenceState
	registry *Registry
	rooms    *RoomManager
	bc       *Broadcaster
	store    store.ChatStore
	log      *log.Logger
}

func NewPresenceTracker(registry *Registry, rooms *RoomManager, bc *Broadcaster, db store.ChatStore, logger *log.Logger) *PresenceTracker {
	return &PresenceTracker{
		states:   make(map[string]types.PresenceState),
		registry: registry,
		rooms:    rooms,
		bc:       bc,
		store:    db,
		log:      logger,
	}
}

// SetOnline marks the user online and broadcasts the delta to every room the
// user's connection is subscribed to.
func (p *PresenceTracker) SetOnline(userId string) {
	c, ok := p.registry.Lookup(userId)
	if !ok {
		// the connection is already gone, the disconnect path owns the state
		return
	}

	state := p.setState(userId, types.StatusOnline)
	p.broadcast(state, p.rooms.Subscriptions(c))
}

// SetOffline marks the user offline, unless a newer connection has been
// registered in the meantime. The registry check serializes presence
// transitions per user: a stale offline from a superseded connection cannot
// mark a reconnected user offline.
func (p *PresenceTracker) SetOffline(userId string, conversationIds []string) {
	if _, ok := p.registry.Lookup(userId); ok {
		return
	}

	state := p.setState(userId, types.StatusOffline)
	p.broadcast(state, conversationIds)
}

// SetStatus applies an explicit away/busy/online status change for a
// connected user.
func (p *PresenceTracker) SetStatus(userId, status string) bool {
	if !types.ValidStatus(status) {
		return false
	}

	c, ok := p.registry.Lookup(userId)
	if !ok {
		return false
	}

	state := p.setState(userId, status)
	p.broadcast(state, p.rooms.Subscriptions(c))

	return true
}

func (p *PresenceTracker) Snapshot(userId string) (types.PresenceState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.states[userId]
	return state, ok
}

func (p *PresenceTracker) setState(userId, status string) types.PresenceState {
	state := types.PresenceState{
		UserId:   userId,
		Status:   status,
		LastSeen: Now(),
	}

	p.mu.Lock()
	p.states[userId] = state
	p.mu.Unlock()

	if err := p.store.UpdatePresence(userId, status, state.LastSeen); err != nil {
		p.log.Printf("persist presence for %q: %v", userId, err)
	}

	return state
}

func (p *PresenceTracker) broadcast(state types.PresenceState, conversationIds []string) {
	ev := newPresenceEvent(state)
	for _, convId := range conversationIds {
		p.bc.ToRoom(convId, ev, nil)
	}
}
