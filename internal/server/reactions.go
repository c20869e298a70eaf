package server

import (
	"fmt"
	"log"

	"github.com/samber/lo"

	"github.com/chitchat-backend/chitchat-server/internal/store"
)

// ReactionAggregator maintains per-message per-emoji participant sets on the
// persisted record. The count broadcast to clients always equals the
// cardinality of the user set; an emoji whose last user removed their
// reaction is deleted, never kept at zero.
type ReactionAggregator struct {
	store store.ChatStore
	bc    *Broadcaster
	log   *log.Logger
}

func NewReactionAggregator(db store.ChatStore, bc *Broadcaster, logger *log.Logger) *ReactionAggregator {
	return &ReactionAggregator{
		store: db,
		bc:    bc,
		log:   logger,
	}
}

// AddReaction adds userId to the emoji's participant set, persisting and
// broadcasting the new count. Adding an already-present reaction is a
// silent no-op.
func (ra *ReactionAggregator) AddReaction(messageId, emoji, userId string) error {
	msg, err := ra.store.GetMessage(messageId)
	if err != nil {
		return fmt.Errorf("get message %q: %w", messageId, err)
	}

	if reactionUsers(msg, emoji, userId) {
		// duplicate suppressed
		return nil
	}

	count, err := ra.store.PersistReactionUpdate(messageId, emoji, userId, store.ReactionAdd)
	if err != nil {
		return fmt.Errorf("persist reaction add: %w", err)
	}

	ra.broadcast(EventReactionAdded, msg, emoji, userId, count)

	return nil
}

// RemoveReaction removes userId from the emoji's participant set. Removing a
// reaction that was never added is a silent no-op.
func (ra *ReactionAggregator) RemoveReaction(messageId, emoji, userId string) error {
	msg, err := ra.store.GetMessage(messageId)
	if err != nil {
		return fmt.Errorf("get message %q: %w", messageId, err)
	}

	if !reactionUsers(msg, emoji, userId) {
		// duplicate suppressed
		return nil
	}

	count, err := ra.store.PersistReactionUpdate(messageId, emoji, userId, store.ReactionRemove)
	if err != nil {
		return fmt.Errorf("persist reaction remove: %w", err)
	}

	ra.broadcast(EventReactionRemoved, msg, emoji, userId, count)

	return nil
}

func (ra *ReactionAggregator) broadcast(event string, msg store.Message, emoji, userId string, count int) {
	ra.bc.ToRoom(msg.ConversationId, newServerEvent(event, ReactionPayload{
		MessageId:      msg.Id,
		ConversationId: msg.ConversationId,
		Emoji:          emoji,
		UserId:         userId,
		Count:          count,
	}), nil)
}

// reactionUsers reports whether userId already reacted with emoji.
func reactionUsers(msg store.Message, emoji, userId string) bool {
	entry, ok := lo.Find(msg.Reactions, func(r store.Reaction) bool {
		return r.Emoji == emoji
	})
	if !ok {
		return false
	}

	return lo.Contains(entry.UserIds, userId)
}
