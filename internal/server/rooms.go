package server

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/chitchat-backend/chitchat-server/internal/stats"
	"github.com/chitchat-backend/chitchat-server/internal/store"
)

const (
	// maxAttachRooms bounds the attach-time subscription cost for accounts
	// with very large conversation counts.
	maxAttachRooms = 50
)

type MembershipOp string

const (
	MembershipJoin  MembershipOp = "join"
	MembershipLeave MembershipOp = "leave"
)

// RoomManager keeps each connection's broadcast-group subscriptions in sync
// with the persisted conversation participant lists.
type RoomManager struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	subs     map[*Client]map[string]struct{}
	registry *Registry
	store    store.ChatStore
	stats    stats.StatsProvider
	log      *log.Logger
}

func NewRoomManager(registry *Registry, db store.ChatStore, su stats.StatsProvider, logger *log.Logger) *RoomManager {
	return &RoomManager{
		rooms:    make(map[string]map[*Client]struct{}),
		subs:     make(map[*Client]map[string]struct{}),
		registry: registry,
		store:    db,
		stats:    su,
		log:      logger,
	}
}

// OnAttach subscribes c to the rooms of every conversation its user
// participates in. The membership query may block; until it completes the
// connection stays attached but unsubscribed, and on error it is left that
// way rather than partially joined. Reports whether c was still the user's
// current connection when the subscriptions were applied.
func (rm *RoomManager) OnAttach(ctx context.Context, c *Client) (bool, error) {
	convIds, err := rm.store.FindConversationIdsForParticipant(ctx, c.user.Id, maxAttachRooms)
	if err != nil {
		return false, fmt.Errorf("find conversations for %q: %w", c.user.Id, err)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	// a disconnect or replacement that landed while the query was in flight
	// wins; subscribing c now would leave a dead connection in the room
	// tables with nothing left to detach it
	if cur, ok := rm.registry.Lookup(c.user.Id); !ok || cur != c {
		return false, nil
	}

	for _, convId := range convIds {
		rm.subscribeLocked(convId, c)
	}

	return true, nil
}

// OnMembershipChanged applies a persisted membership change to the live
// connection, if one exists. No reconnect is required for the change to take
// effect.
func (rm *RoomManager) OnMembershipChanged(conversationId, userId string, op MembershipOp) {
	c, ok := rm.registry.Lookup(userId)
	if !ok {
		return
	}

	switch op {
	case MembershipJoin:
		rm.Subscribe(conversationId, c)
	case MembershipLeave:
		rm.Unsubscribe(conversationId, c)
	default:
		rm.log.Printf("unknown membership op %q for user %q", op, userId)
	}
}

func (rm *RoomManager) Subscribe(conversationId string, c *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.subscribeLocked(conversationId, c)
}

func (rm *RoomManager) subscribeLocked(conversationId string, c *Client) {
	if rm.rooms[conversationId] == nil {
		rm.rooms[conversationId] = make(map[*Client]struct{})
		rm.stats.Incr(stats.ActiveRooms)
	}
	rm.rooms[conversationId][c] = struct{}{}

	if rm.subs[c] == nil {
		rm.subs[c] = make(map[string]struct{})
	}
	rm.subs[c][conversationId] = struct{}{}
}

func (rm *RoomManager) Unsubscribe(conversationId string, c *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.unsubscribeLocked(conversationId, c)
}

func (rm *RoomManager) unsubscribeLocked(conversationId string, c *Client) {
	if clients, ok := rm.rooms[conversationId]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(rm.rooms, conversationId)
			rm.stats.Decr(stats.ActiveRooms)
		}
	}

	if convs, ok := rm.subs[c]; ok {
		delete(convs, conversationId)
		if len(convs) == 0 {
			delete(rm.subs, c)
		}
	}
}

// Detach removes c from every room and returns the conversation ids it was
// subscribed to.
func (rm *RoomManager) Detach(c *Client) []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	convIds := make([]string, 0, len(rm.subs[c]))
	for convId := range rm.subs[c] {
		convIds = append(convIds, convId)
	}

	for _, convId := range convIds {
		rm.unsubscribeLocked(convId, c)
	}

	return convIds
}

func (rm *RoomManager) Subscriptions(c *Client) []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	convIds := make([]string, 0, len(rm.subs[c]))
	for convId := range rm.subs[c] {
		convIds = append(convIds, convId)
	}

	return convIds
}

func (rm *RoomManager) IsSubscribed(conversationId string, c *Client) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	_, ok := rm.subs[c][conversationId]
	return ok
}

// Connections returns the connections currently subscribed to a room.
func (rm *RoomManager) Connections(conversationId string) []*Client {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	clients := make([]*Client, 0, len(rm.rooms[conversationId]))
	for c := range rm.rooms[conversationId] {
		clients = append(clients, c)
	}

	return clients
}
