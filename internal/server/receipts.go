package server

import (
	"fmt"
	"log"

	"github.com/chitchat-backend/chitchat-server/internal/store"
)

// ReceiptTracker reconciles per-message per-recipient acknowledgement state
// with the persisted message record. It holds no state of its own: the store
// is the source of truth and every operation converges under repeat calls.
type ReceiptTracker struct {
	store    store.ChatStore
	registry *Registry
	bc       *Broadcaster
	log      *log.Logger
}

func NewReceiptTracker(db store.ChatStore, registry *Registry, bc *Broadcaster, logger *log.Logger) *ReceiptTracker {
	return &ReceiptTracker{
		store:    db,
		registry: registry,
		bc:       bc,
		log:      logger,
	}
}

// MarkDelivered records that userId's client received the message. Calls
// from the sender, from non-participants, and repeats for an already
// delivered recipient are silent no-ops.
func (rt *ReceiptTracker) MarkDelivered(messageId, userId string) error {
	msg, err := rt.store.GetMessage(messageId)
	if err != nil {
		return fmt.Errorf("get message %q: %w", messageId, err)
	}

	if userId == msg.SenderId || !rt.store.IsParticipant(msg.ConversationId, userId) {
		return nil
	}

	if receiptFor(msg, userId) != nil {
		// duplicate suppressed
		return nil
	}

	if err := rt.store.PersistDeliveryUpdate(messageId, userId, store.DeliveryDelivered); err != nil {
		return fmt.Errorf("persist delivery: %w", err)
	}

	rt.notifySender(msg, userId, string(store.DeliveryDelivered))

	return nil
}

// MarkRead records that userId read the message, recording delivery first if
// the recipient had no delivered entry. Repeat calls for an already-read
// recipient are silent no-ops.
func (rt *ReceiptTracker) MarkRead(messageId, userId string) error {
	msg, err := rt.store.GetMessage(messageId)
	if err != nil {
		return fmt.Errorf("get message %q: %w", messageId, err)
	}

	if userId == msg.SenderId || !rt.store.IsParticipant(msg.ConversationId, userId) {
		return nil
	}

	rec := receiptFor(msg, userId)
	if rec != nil && rec.ReadAt != nil {
		// duplicate suppressed
		return nil
	}

	if rec == nil {
		if err := rt.store.PersistDeliveryUpdate(messageId, userId, store.DeliveryDelivered); err != nil {
			return fmt.Errorf("persist delivery: %w", err)
		}
		rt.notifySender(msg, userId, string(store.DeliveryDelivered))
	}

	if err := rt.store.PersistDeliveryUpdate(messageId, userId, store.DeliveryRead); err != nil {
		return fmt.Errorf("persist read: %w", err)
	}

	rt.notifySender(msg, userId, string(store.DeliveryRead))

	return nil
}

func (rt *ReceiptTracker) notifySender(msg store.Message, userId, status string) {
	rt.bc.ToUsers([]string{msg.SenderId}, newServerEvent(EventMessageStatusUpdate, MessageStatusPayload{
		MessageId:      msg.Id,
		ConversationId: msg.ConversationId,
		UserId:         userId,
		Status:         status,
		Timestamp:      Now(),
	}))
}

func receiptFor(msg store.Message, userId string) *store.Receipt {
	for i := range msg.Receipts {
		if msg.Receipts[i].UserId == userId {
			return &msg.Receipts[i]
		}
	}

	return nil
}
