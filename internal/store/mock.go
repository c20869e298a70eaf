package store

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatStore struct {
	mock.Mock
}

func (m *MockChatStore) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatStore) GetAccount(userId string) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatStore) GetConversation(conversationId string) (Conversation, error) {
	args := m.Called(conversationId)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockChatStore) CreateConversation(params CreateConversationParams) (Conversation, error) {
	args := m.Called(params)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockChatStore) FindConversationIdsForParticipant(ctx context.Context, userId string, limit int) ([]string, error) {
	args := m.Called(ctx, userId, limit)
	if ids, ok := args.Get(0).([]string); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatStore) IsParticipant(conversationId, userId string) bool {
	args := m.Called(conversationId, userId)
	return args.Bool(0)
}
func (m *MockChatStore) AddParticipant(conversationId, userId string) error {
	args := m.Called(conversationId, userId)
	return args.Error(0)
}
func (m *MockChatStore) RemoveParticipant(conversationId, userId string) error {
	args := m.Called(conversationId, userId)
	return args.Error(0)
}
func (m *MockChatStore) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatStore) GetMessage(messageId string) (Message, error) {
	args := m.Called(messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatStore) GetMessages(conversationId string, before time.Time, limit int) ([]Message, error) {
	args := m.Called(conversationId, before, limit)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatStore) PersistDeliveryUpdate(messageId, recipientId string, kind DeliveryKind) error {
	args := m.Called(messageId, recipientId, kind)
	return args.Error(0)
}
func (m *MockChatStore) PersistReactionUpdate(messageId, emoji, userId string, op ReactionOp) (int, error) {
	args := m.Called(messageId, emoji, userId, op)
	return args.Int(0), args.Error(1)
}
func (m *MockChatStore) UpdatePresence(userId, status string, lastSeen time.Time) error {
	args := m.Called(userId, status, lastSeen)
	return args.Error(0)
}
