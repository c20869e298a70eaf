package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/chitchat-backend/chitchat-server/internal/config"
	"github.com/chitchat-backend/chitchat-server/internal/server"
	"github.com/chitchat-backend/chitchat-server/internal/stats"
	"github.com/chitchat-backend/chitchat-server/internal/store"
	"github.com/chitchat-backend/chitchat-server/internal/testutil"
)

var testSigningKey = []byte("test-signing-key")

func newTestApp(t *testing.T, db store.ChatStore) *ChitChatApp {
	t.Helper()

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return().Times(4)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	logger := testutil.TestLogger(t)
	cs, err := server.NewCoordinatorServer(logger, db, su)
	if err != nil {
		t.Fatalf("failed to create coordinator: %v", err)
	}

	cfg := &config.Config{
		ServerAddr:     "localhost:8080",
		SigningKey:     testSigningKey,
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	return NewChitChatApp(http.NewServeMux(), logger, cs, db, cfg)
}

func signedToken(t *testing.T, userId string, key []byte) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{userIdClaim: userId})
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func doRequest(s *ChitChatApp, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.mux.Handler.ServeHTTP(rr, r)
	return rr
}

func TestUserIdContext(t *testing.T) {
	ctx := WithUserId(context.Background(), "u1")

	userId, ok := UserId(ctx)
	assert.True(t, ok, "expected user id to be present")
	assert.Equal(t, "u1", userId, "expected stored user id")

	_, ok = UserId(context.Background())
	assert.False(t, ok, "expected no user id on a bare context")
}

func TestBearerToken(t *testing.T) {
	t.Run("authorization header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
		r.Header.Set("Authorization", "Bearer abc")

		token, err := bearerToken(r)
		assert.NoError(t, err)
		assert.Equal(t, "abc", token)
	})

	t.Run("malformed authorization header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
		r.Header.Set("Authorization", "abc")

		_, err := bearerToken(r)
		assert.Error(t, err, "expected error for missing Bearer prefix")
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
		r.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "abc"})

		token, err := bearerToken(r)
		assert.NoError(t, err)
		assert.Equal(t, "abc", token)
	})

	t.Run("query parameter", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)

		token, err := bearerToken(r)
		assert.NoError(t, err)
		assert.Equal(t, "abc", token)
	})

	t.Run("no token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/messages", nil)

		_, err := bearerToken(r)
		assert.Error(t, err, "expected error when no token is provided")
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("valid token reaches the handler", func(t *testing.T) {
		app := newTestApp(t, &store.MockChatStore{})

		var gotUserId string
		h := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			gotUserId, _ = UserId(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		r := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
		r.Header.Set("Authorization", "Bearer "+signedToken(t, "u1", testSigningKey))

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)

		assert.Equal(t, http.StatusOK, rr.Code, "expected handler to be reached")
		assert.Equal(t, "u1", gotUserId, "expected user id from token claims")
	})

	t.Run("missing token is unauthorized", func(t *testing.T) {
		app := newTestApp(t, &store.MockChatStore{})

		r := httptest.NewRequest(http.MethodGet, "/api/messages?conversationId=c1", nil)
		rr := doRequest(app, r)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected 401 without a token")
	})

	t.Run("token signed with wrong key is unauthorized", func(t *testing.T) {
		app := newTestApp(t, &store.MockChatStore{})

		r := httptest.NewRequest(http.MethodGet, "/api/messages?conversationId=c1", nil)
		r.Header.Set("Authorization", "Bearer "+signedToken(t, "u1", []byte("other-key")))
		rr := doRequest(app, r)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected 401 for a bad signature")
	})

	t.Run("token without user id claim is unauthorized", func(t *testing.T) {
		app := newTestApp(t, &store.MockChatStore{})

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{})
		signed, err := token.SignedString(testSigningKey)
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}

		r := httptest.NewRequest(http.MethodGet, "/api/messages?conversationId=c1", nil)
		r.Header.Set("Authorization", "Bearer "+signed)
		rr := doRequest(app, r)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected 401 without a user id claim")

		body, _ := io.ReadAll(rr.Body)
		assert.Contains(t, string(body), "unauthorized", "expected unauthorized error body")
	})
}
