package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Feed.ReconnectDelay)
	assert.Equal(t, "/ws", cfg.Feed.Path)
	assert.Equal(t, 50, cfg.Backend.SuggestionLimit)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SORTDESK_BACKEND_BASEURL", "https://files.example.com")
	t.Setenv("SORTDESK_FEED_RECONNECTDELAY", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://files.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 2*time.Second, cfg.Feed.ReconnectDelay)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		delay   time.Duration
		wantErr bool
	}{
		{name: "http origin", baseURL: "http://localhost:8000", delay: 5 * time.Second},
		{name: "https origin", baseURL: "https://example.com", delay: time.Second},
		{name: "ws scheme rejected", baseURL: "ws://example.com", delay: time.Second, wantErr: true},
		{name: "missing host", baseURL: "http://", delay: time.Second, wantErr: true},
		{name: "zero delay", baseURL: "http://example.com", delay: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Backend: BackendConfig{BaseURL: tt.baseURL},
				Feed:    FeedConfig{ReconnectDelay: tt.delay},
			}
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
