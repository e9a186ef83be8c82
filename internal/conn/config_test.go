package conn

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 10, c.MaxReconnectAttempts)
	assert.Equal(t, time.Second, c.InitialReconnectDelay)
	assert.Equal(t, 30*time.Second, c.MaxReconnectDelay)
	assert.Equal(t, 30*time.Second, c.HeartbeatInterval)
	assert.Equal(t, 1000, c.QueueSize)
	assert.Equal(t, 100, c.LatencyWindow)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conn.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
url: ws://localhost:8080/ws
token: t0k3n
session_id: doc-7
initial_reconnect_delay_ms: 250
heartbeat_interval_ms: 5000
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.URL)
	assert.Equal(t, "t0k3n", cfg.Token)
	assert.Equal(t, "doc-7", cfg.SessionID)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialReconnectDelay)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 30*time.Second, cfg.MaxReconnectDelay, "unset fields take defaults")
	assert.Equal(t, 10, cfg.MaxReconnectAttempts)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing url", "session_id: s\n"},
		{"missing session", "url: ws://x\n"},
		{"initial above max", "url: ws://x\nsession_id: s\ninitial_reconnect_delay_ms: 9000\nmax_reconnect_delay_ms: 10\n"},
		{"not yaml", "url: [unterminated\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
