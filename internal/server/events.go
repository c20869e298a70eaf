package server

import (
	"encoding/json"
	"time"

	"github.com/chitchat-backend/chitchat-server/internal/types"
)

// Event names are a wire contract with clients and must not change.
const (
	// inbound
	EventTyping         = "typing"
	EventStopTyping     = "stopTyping"
	EventGetOnlineUsers = "getOnlineUsers"

	// outbound
	EventUserTyping          = "userTyping"
	EventUserStoppedTyping   = "userStoppedTyping"
	EventMessageStatusUpdate = "messageStatusUpdate"
	EventNewMessage          = "newMessage"
	EventReactionAdded       = "reactionAdded"
	EventReactionRemoved     = "reactionRemoved"
	EventPresenceUpdate      = "presenceUpdate"
	EventConnectionReplaced  = "connectionReplaced"
)

// ClientEvent is the envelope for inbound socket frames. The payload is
// decoded per event name.
type ClientEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerEvent is the envelope for outbound socket frames.
type ServerEvent struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

type TypingPayload struct {
	ConversationId string `json:"conversationId"`
}

type UserTypingPayload struct {
	ConversationId string `json:"conversationId"`
	UserId         string `json:"userId"`
	Username       string `json:"username"`
}

type MessageStatusPayload struct {
	MessageId      string    `json:"messageId"`
	ConversationId string    `json:"conversationId"`
	UserId         string    `json:"userId"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

type ReactionPayload struct {
	MessageId      string `json:"messageId"`
	ConversationId string `json:"conversationId"`
	Emoji          string `json:"emoji"`
	UserId         string `json:"userId"`
	Count          int    `json:"count"`
}

type OnlineUsersPayload struct {
	UserIds []string `json:"userIds"`
}

func newServerEvent(event string, payload any) *ServerEvent {
	return &ServerEvent{
		Event:     event,
		Timestamp: Now(),
		Payload:   payload,
	}
}

func newPresenceEvent(state types.PresenceState) *ServerEvent {
	return newServerEvent(EventPresenceUpdate, state)
}

func newConnectionReplacedEvent() *ServerEvent {
	return newServerEvent(EventConnectionReplaced, nil)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
