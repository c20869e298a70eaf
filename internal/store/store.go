package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type DeliveryKind string

const (
	DeliveryDelivered DeliveryKind = "delivered"
	DeliveryRead      DeliveryKind = "read"
)

type ReactionOp string

const (
	ReactionAdd    ReactionOp = "add"
	ReactionRemove ReactionOp = "remove"
)

// ChatStore is the persisted-storage collaborator. The coordinator consumes
// this interface only; the Postgres implementation is the default backing.
type ChatStore interface {
	Ping() error
	GetAccount(userId string) (User, error)
	GetConversation(conversationId string) (Conversation, error)
	CreateConversation(params CreateConversationParams) (Conversation, error)
	FindConversationIdsForParticipant(ctx context.Context, userId string, limit int) ([]string, error)
	IsParticipant(conversationId, userId string) bool
	AddParticipant(conversationId, userId string) error
	RemoveParticipant(conversationId, userId string) error
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessage(messageId string) (Message, error)
	GetMessages(conversationId string, before time.Time, limit int) ([]Message, error)
	PersistDeliveryUpdate(messageId, recipientId string, kind DeliveryKind) error
	PersistReactionUpdate(messageId, emoji, userId string, op ReactionOp) (int, error)
	UpdatePresence(userId, status string, lastSeen time.Time) error
}
