package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("super-secret"))

	t.Run("builds a config from valid inputs", func(t *testing.T) {
		cfg, err := NewConfig("localhost:8080", "postgres://localhost/chitchat", secret,
			[]string{"http://localhost:3000"})

		assert.NoError(t, err)
		assert.Equal(t, "localhost:8080", cfg.ServerAddr)
		assert.Equal(t, "postgres://localhost/chitchat", cfg.DatabaseDSN)
		assert.Equal(t, []byte("super-secret"), cfg.SigningKey, "expected decoded signing key")
		assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	})

	t.Run("rejects an empty server address", func(t *testing.T) {
		_, err := NewConfig("", "postgres://localhost/chitchat", secret, nil)
		assert.Error(t, err)
	})

	t.Run("rejects an empty database DSN", func(t *testing.T) {
		_, err := NewConfig("localhost:8080", "", secret, nil)
		assert.Error(t, err)
	})

	t.Run("rejects an empty signing secret", func(t *testing.T) {
		_, err := NewConfig("localhost:8080", "postgres://localhost/chitchat", "", nil)
		assert.Error(t, err)
	})

	t.Run("rejects a signing secret that is not base64", func(t *testing.T) {
		_, err := NewConfig("localhost:8080", "postgres://localhost/chitchat", "%%%", nil)
		assert.Error(t, err)
	})
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CHITCHAT_SERVER_ADDR", "localhost:9999")
	t.Setenv("CHITCHAT_DATABASE_DSN", "postgres://localhost/chitchat")
	t.Setenv("CHITCHAT_ALLOWED_ORIGINS", "http://a.example,http://b.example")

	e, err := FromEnv()
	assert.NoError(t, err)
	assert.Equal(t, "localhost:9999", e.ServerAddr)
	assert.Equal(t, "postgres://localhost/chitchat", e.DatabaseDSN)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, e.AllowedOrigins)
}
