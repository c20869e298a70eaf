package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/chitchat-backend/chitchat-server/internal/server"
	"github.com/chitchat-backend/chitchat-server/internal/store"
	"github.com/chitchat-backend/chitchat-server/internal/types"
)

type CreateConversationRequest struct {
	Name         string   `json:"name" validate:"required,max=128"`
	IsGroup      bool     `json:"isGroup"`
	Participants []string `json:"participants" validate:"required,min=1"`
}

type CreateMessageRequest struct {
	ConversationId string `json:"conversationId" validate:"required"`
	Content        string `json:"content" validate:"required,max=4000"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

type ParticipantRequest struct {
	UserId string `json:"userId" validate:"required"`
}

type PresenceRequest struct {
	Status string `json:"status" validate:"required,oneof=online away busy"`
}

func (s *ChitChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// decodeValid decodes the request body into v and runs struct validation.
func (s *ChitChatApp) decodeValid(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}

	return s.validate.Struct(v)
}

func (s *ChitChatApp) createConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateConversationRequest
	if err := s.decodeValid(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participants := req.Participants
	if !slices.Contains(participants, userId) {
		participants = append(participants, userId)
	}

	conv, err := s.db.CreateConversation(store.CreateConversationParams{
		Name:           req.Name,
		IsGroup:        req.IsGroup,
		ParticipantIds: participants,
	})
	if err != nil {
		s.log.Println("create conversation:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// connected participants start receiving this conversation's events
	// without reconnecting
	for _, participantId := range conv.ParticipantIds {
		s.cs.NotifyMembershipChanged(conv.Id, participantId, server.MembershipJoin)
	}

	s.writeJson(w, http.StatusCreated, types.Conversation{
		Id:           conv.Id,
		ExternalId:   conv.ExternalId,
		Name:         conv.Name,
		IsGroup:      conv.IsGroup,
		Participants: conv.ParticipantIds,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	})
}

func (s *ChitChatApp) addParticipant(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.PathValue("id")
	if !s.db.IsParticipant(conversationId, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ParticipantRequest
	if err := s.decodeValid(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.AddParticipant(conversationId, req.UserId); err != nil {
		s.log.Println("add participant:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.cs.NotifyMembershipChanged(conversationId, req.UserId, server.MembershipJoin)
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChitChatApp) removeParticipant(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.PathValue("id")
	if !s.db.IsParticipant(conversationId, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ParticipantRequest
	if err := s.decodeValid(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.RemoveParticipant(conversationId, req.UserId); err != nil {
		s.log.Println("remove participant:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// the removed user stops receiving this conversation's events
	// immediately, even if their connection stays open
	s.cs.NotifyMembershipChanged(conversationId, req.UserId, server.MembershipLeave)
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChitChatApp) createMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateMessageRequest
	if err := s.decodeValid(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsParticipant(req.ConversationId, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.db.CreateMessage(store.CreateMessageParams{
		ConversationId: req.ConversationId,
		SenderId:       userId,
		Content:        req.Content,
	})
	if err != nil {
		s.log.Println("create message:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userMsg := types.Message{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		SenderId:       msg.SenderId,
		Content:        msg.Content,
		Timestamp:      msg.CreatedAt,
	}

	s.cs.BroadcastToConversation(msg.ConversationId, server.EventNewMessage, userMsg)
	s.writeJson(w, http.StatusCreated, userMsg)
}

func (s *ChitChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.URL.Query().Get("conversationId")
	if conversationId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsParticipant(conversationId, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var before time.Time
	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		var err error
		before, err = time.Parse(time.RFC3339, beforeStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := s.db.GetMessages(conversationId, before, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userMessages := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		userMessages = append(userMessages, types.Message{
			Id:             msg.Id,
			ConversationId: msg.ConversationId,
			SenderId:       msg.SenderId,
			Content:        msg.Content,
			Timestamp:      msg.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, userMessages)
}

func (s *ChitChatApp) markDelivered(w http.ResponseWriter, r *http.Request) {
	s.markReceipt(w, r, s.cs.Receipts().MarkDelivered)
}

func (s *ChitChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	s.markReceipt(w, r, s.cs.Receipts().MarkRead)
}

func (s *ChitChatApp) markReceipt(w http.ResponseWriter, r *http.Request, mark func(messageId, userId string) error) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId := r.PathValue("id")
	if err := mark(messageId, userId); err != nil {
		var errResp *ApiError
		if errors.Is(err, store.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("mark receipt:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChitChatApp) addReaction(w http.ResponseWriter, r *http.Request) {
	s.updateReaction(w, r, s.cs.Reactions().AddReaction)
}

func (s *ChitChatApp) removeReaction(w http.ResponseWriter, r *http.Request) {
	s.updateReaction(w, r, s.cs.Reactions().RemoveReaction)
}

func (s *ChitChatApp) updateReaction(w http.ResponseWriter, r *http.Request, update func(messageId, emoji, userId string) error) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ReactionRequest
	if err := s.decodeValid(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId := r.PathValue("id")
	msg, err := s.db.GetMessage(messageId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, store.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsParticipant(msg.ConversationId, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := update(messageId, req.Emoji, userId); err != nil {
		s.log.Println("update reaction:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChitChatApp) updatePresence(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req PresenceRequest
	if err := s.decodeValid(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.cs.Presence().SetStatus(userId, req.Status) {
		// no live connection to apply the status to
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *ChitChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccount(id)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, store.ErrNotFound) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	connId, err := shortid.Generate()
	if err != nil {
		connId = uuid.NewString()
	}

	client := server.NewClient(connId, types.User{
		Id:           user.Id,
		Username:     user.Username,
		EmailAddress: user.EmailAddress,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
