package server

import (
	"log"

	"github.com/chitchat-backend/chitchat-server/internal/stats"
)

// Broadcaster is the fan-out primitive shared by every coordinator
// component. Delivery is best-effort: a user with no live connection
// silently receives nothing, and nothing is queued or retried. Durable state
// plus catch-up pagination cover offline recipients.
type Broadcaster struct {
	registry *Registry
	rooms    *RoomManager
	stats    stats.StatsProvider
	log      *log.Logger
}

func NewBroadcaster(registry *Registry, rooms *RoomManager, su stats.StatsProvider, logger *log.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		rooms:    rooms,
		stats:    su,
		log:      logger,
	}
}

// ToRoom delivers ev to every connection subscribed to the conversation's
// room, skipping skip if non-nil.
func (b *Broadcaster) ToRoom(conversationId string, ev *ServerEvent, skip *Client) {
	for _, c := range b.rooms.Connections(conversationId) {
		if c == skip {
			continue
		}

		if c.queueEvent(ev) {
			b.stats.Incr(stats.EventsDelivered)
		}
	}
}

// ToUsers delivers ev to each user's connection, resolved individually via
// the registry.
func (b *Broadcaster) ToUsers(userIds []string, ev *ServerEvent) {
	for _, userId := range userIds {
		c, ok := b.registry.Lookup(userId)
		if !ok {
			continue
		}

		if c.queueEvent(ev) {
			b.stats.Incr(stats.EventsDelivered)
		}
	}
}
