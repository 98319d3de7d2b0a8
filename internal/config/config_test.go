package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicerelay/internal/domain"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	require.Equal(t, "release", cfg.Mode)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 54*time.Second, cfg.PingPeriod)
	require.Equal(t, 60*time.Second, cfg.PongWait)
	require.Equal(t, 64, cfg.SendBuffer)
	require.Equal(t, RateConfig{Limit: 5, Interval: 10 * time.Second}, cfg.JoinRate)
	require.Len(t, cfg.Rooms, 3)
	require.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadFile_YAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: debug
port: 9000
log_level: debug
join_rate:
  limit: 2
  interval: 1m
rooms:
  - id: ops
    name: Ops
    kind: voice
  - id: notes
    kind: text
`), 0o600))
	t.Setenv("VOICE_PORT", "9100")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Mode)
	require.Equal(t, 9100, cfg.Port)
	require.Equal(t, zerolog.DebugLevel, cfg.Level())
	require.Equal(t, RateConfig{Limit: 2, Interval: time.Minute}, cfg.JoinRate)

	rooms, err := cfg.DomainRooms()
	require.NoError(t, err)
	require.Equal(t, []domain.Room{
		{ID: "ops", Name: "Ops", Kind: domain.RoomKindVoice},
		{ID: "notes", Kind: domain.RoomKindText},
	}, rooms)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:       8080,
			PingPeriod: time.Second,
			PongWait:   2 * time.Second,
			SendBuffer: 1,
			Rooms:      []RoomConfig{{ID: "lounge"}},
		}
	}
	c := valid()
	require.NoError(t, c.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 70000 }},
		{"pong before ping", func(c *Config) { c.PongWait = c.PingPeriod }},
		{"send buffer", func(c *Config) { c.SendBuffer = 0 }},
		{"no rooms", func(c *Config) { c.Rooms = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestDomainRooms_BadKind(t *testing.T) {
	c := Config{Rooms: []RoomConfig{{ID: "x", Kind: "video"}}}
	_, err := c.DomainRooms()
	require.Error(t, err)
}
