package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/chitchat-backend/chitchat-server/internal/stats"
	"github.com/chitchat-backend/chitchat-server/internal/store"
)

// attachTimeout bounds the membership query at attach time. On timeout the
// connection stays attached but unsubscribed instead of silently joining.
const attachTimeout = 5 * time.Second

type stopReq struct {
	done chan struct{}
}

// CoordinatorServer ties the registry, room membership, presence, typing,
// receipt and reaction components together and serializes connection
// lifecycle through a single run loop.
type CoordinatorServer struct {
	log         *log.Logger
	store       store.ChatStore
	stats       stats.StatsProvider
	registry    *Registry
	rooms       *RoomManager
	broadcaster *Broadcaster
	presence    *PresenceTracker
	typing      *TypingTracker
	receipts    *ReceiptTracker
	reactions   *ReactionAggregator

	clients     map[*Client]struct{}
	clientsLock sync.Mutex

	registerChan   chan *Client
	deregisterChan chan *Client
	stop           chan stopReq
	done           chan struct{}
}

func NewCoordinatorServer(logger *log.Logger, db store.ChatStore, su stats.StatsProvider) (*CoordinatorServer, error) {
	registry := NewRegistry()
	rooms := NewRoomManager(registry, db, su, logger)
	broadcaster := NewBroadcaster(registry, rooms, su, logger)

	cs := &CoordinatorServer{
		log:            logger,
		store:          db,
		stats:          su,
		registry:       registry,
		rooms:          rooms,
		broadcaster:    broadcaster,
		presence:       NewPresenceTracker(registry, rooms, broadcaster, db, logger),
		typing:         NewTypingTracker(broadcaster, su, logger),
		receipts:       NewReceiptTracker(db, registry, broadcaster, logger),
		reactions:      NewReactionAggregator(db, broadcaster, logger),
		clients:        make(map[*Client]struct{}),
		registerChan:   make(chan *Client),
		deregisterChan: make(chan *Client),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}

	su.RegisterMetric(stats.ActiveConnections)
	su.RegisterMetric(stats.ActiveRooms)
	su.RegisterMetric(stats.TypingEntries)
	su.RegisterMetric(stats.EventsDelivered)

	return cs, nil
}

func (cs *CoordinatorServer) Run() {
	for {
		select {
		case c := <-cs.registerChan:
			cs.handleRegister(c)
		case c := <-cs.deregisterChan:
			cs.handleDeregister(c)
		case req := <-cs.stop:
			cs.log.Println("stopping all connections")
			cs.clientsLock.Lock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.Unlock()

			// unblocks read pumps still parked in DeregisterClient
			close(cs.done)
			close(req.done)
			return
		}
	}
}

func (cs *CoordinatorServer) RegisterClient(c *Client) {
	select {
	case cs.registerChan <- c:
	case <-cs.done:
	}
}

func (cs *CoordinatorServer) DeregisterClient(c *Client) {
	select {
	case cs.deregisterChan <- c:
	case <-cs.done:
	}
}

func (cs *CoordinatorServer) handleRegister(c *Client) {
	cs.log.Printf("adding connection %q for %q", c.connId, c.user.Username)

	if evicted := cs.registry.Register(c.user.Id, c); evicted != nil {
		cs.log.Printf("replacing connection %q for %q", evicted.connId, c.user.Username)
		evicted.queueEvent(newConnectionReplacedEvent())
		cs.rooms.Detach(evicted)
		evicted.stopClient()
	}

	cs.addClient(c)
	cs.stats.Incr(stats.ActiveConnections)

	// membership sync touches the store, keep it off the run loop
	go cs.attach(c)
}

func (cs *CoordinatorServer) attach(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), attachTimeout)
	defer cancel()

	current, err := cs.rooms.OnAttach(ctx, c)
	if err != nil {
		cs.log.Printf("attach %q: %v, connection stays unsubscribed", c.user.Username, err)
	} else if !current {
		// the connection was deregistered or replaced during the query;
		// that path owns the presence state
		return
	}

	cs.presence.SetOnline(c.user.Id)
}

func (cs *CoordinatorServer) handleDeregister(c *Client) {
	cs.log.Printf("removing connection %q for %q", c.connId, c.user.Username)

	// unregister before detaching so an attach goroutine still holding a
	// membership query for c observes the removal and skips subscribing
	current := cs.registry.Unregister(c.user.Id, c)
	convIds := cs.rooms.Detach(c)
	if current {
		cs.typing.StopAllForUser(c.user.Id)
		cs.presence.SetOffline(c.user.Id, convIds)
	}

	cs.removeClient(c)
	cs.stats.Decr(stats.ActiveConnections)
}

func (cs *CoordinatorServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *CoordinatorServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c)
}

// BroadcastToConversation fans an event out to every connection subscribed
// to the conversation's room.
func (cs *CoordinatorServer) BroadcastToConversation(conversationId, event string, payload any) {
	cs.broadcaster.ToRoom(conversationId, newServerEvent(event, payload), nil)
}

func (cs *CoordinatorServer) GetConnectionForUser(userId string) (*Client, bool) {
	return cs.registry.Lookup(userId)
}

// NotifyMembershipChanged applies a persisted participant change to the live
// subscription tables.
func (cs *CoordinatorServer) NotifyMembershipChanged(conversationId, userId string, op MembershipOp) {
	cs.rooms.OnMembershipChanged(conversationId, userId, op)
}

func (cs *CoordinatorServer) Receipts() *ReceiptTracker {
	return cs.receipts
}

func (cs *CoordinatorServer) Reactions() *ReactionAggregator {
	return cs.reactions
}

func (cs *CoordinatorServer) Presence() *PresenceTracker {
	return cs.presence
}

func (cs *CoordinatorServer) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
