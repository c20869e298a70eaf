package store

import "time"

type User struct {
	Id           string
	Username     string
	EmailAddress string
	Status       string
	LastSeen     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Conversation struct {
	Id             string
	ExternalId     string
	Name           string
	IsGroup        bool
	ParticipantIds []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Message struct {
	Id             string
	ConversationId string
	SenderId       string
	Content        string
	CreatedAt      time.Time
	Receipts       []Receipt
	Reactions      []Reaction
}

// Receipt is one recipient's acknowledgement state for a message. ReadAt is
// nil until the recipient reads the message; it is never set without
// DeliveredAt being set first.
type Receipt struct {
	UserId      string
	DeliveredAt time.Time
	ReadAt      *time.Time
}

type Reaction struct {
	Emoji   string
	UserIds []string
}

type CreateConversationParams struct {
	Name           string
	IsGroup        bool
	ParticipantIds []string
}

type CreateMessageParams struct {
	ConversationId string
	SenderId       string
	Content        string
}
