package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"

	"github.com/chitchat-backend/chitchat-server/internal/config"
	"github.com/chitchat-backend/chitchat-server/internal/server"
	"github.com/chitchat-backend/chitchat-server/internal/store"
)

// ChitChatApp is the HTTP surface that drives the coordinator: the websocket
// attach endpoint plus the REST handlers that persist state and then fan the
// resulting events out to connected participants.
type ChitChatApp struct {
	log            *log.Logger
	db             store.ChatStore
	mux            *http.Server
	cs             *server.CoordinatorServer
	validate       *validator.Validate
	signingKey     []byte
	allowedOrigins []string
}

func NewChitChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.CoordinatorServer, db store.ChatStore, cfg *config.Config) *ChitChatApp {
	s := &ChitChatApp{
		log:            logger,
		db:             db,
		cs:             cs,
		validate:       validator.New(),
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))
	mux.Handle("POST /api/conversations", s.authMiddleware(s.createConversation))
	mux.Handle("POST /api/conversations/{id}/participants", s.authMiddleware(s.addParticipant))
	mux.Handle("DELETE /api/conversations/{id}/participants", s.authMiddleware(s.removeParticipant))
	mux.Handle("POST /api/messages", s.authMiddleware(s.createMessage))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/messages/{id}/delivered", s.authMiddleware(s.markDelivered))
	mux.Handle("POST /api/messages/{id}/read", s.authMiddleware(s.markRead))
	mux.Handle("POST /api/messages/{id}/reactions", s.authMiddleware(s.addReaction))
	mux.Handle("DELETE /api/messages/{id}/reactions", s.authMiddleware(s.removeReaction))
	mux.Handle("PUT /api/presence", s.authMiddleware(s.updatePresence))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChitChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChitChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
