package types

import (
	"time"
)

// Presence statuses. Online and offline are derived from the connection
// lifecycle; away and busy are set explicitly by the user.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
	StatusBusy    = "busy"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusOnline, StatusOffline, StatusAway, StatusBusy:
		return true
	}
	return false
}

type User struct {
	Id           string    `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email,omitempty"`
	Status       string    `json:"status,omitempty"`
	LastSeen     time.Time `json:"lastSeen,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

type Conversation struct {
	Id           string    `json:"id"`
	ExternalId   string    `json:"externalId"`
	Name         string    `json:"name"`
	IsGroup      bool      `json:"isGroup"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

type Message struct {
	Id             string            `json:"id"`
	ConversationId string            `json:"conversationId"`
	SenderId       string            `json:"senderId"`
	Content        string            `json:"content"`
	Timestamp      time.Time         `json:"timestamp"`
	DeliveredTo    []DeliveryReceipt `json:"deliveredTo,omitempty"`
	ReadBy         []ReadReceipt     `json:"readBy,omitempty"`
	Reactions      []Reaction        `json:"reactions,omitempty"`
}

// DeliveryReceipt records that a recipient's client received the message.
// A ReadReceipt for the same recipient implies a DeliveryReceipt with
// DeliveredAt <= ReadAt.
type DeliveryReceipt struct {
	UserId      string    `json:"userId"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

type ReadReceipt struct {
	UserId string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Reaction is the aggregated view of one emoji on one message. Count always
// equals len(UserIds); an emoji with no remaining users is removed, never
// kept at zero.
type Reaction struct {
	Emoji   string   `json:"emoji"`
	UserIds []string `json:"userIds"`
	Count   int      `json:"count"`
}

type PresenceState struct {
	UserId   string    `json:"userId"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}
