package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/voicerelay/internal/domain"
)

type RoomConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	Kind string `mapstructure:"kind"`
}

type RateConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	StaticPath  string        `mapstructure:"static_path"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	PongWait    time.Duration `mapstructure:"pong_wait"`
	WriteWait   time.Duration `mapstructure:"write_wait"`
	SendBuffer  int           `mapstructure:"send_buffer"`
	EventBuffer int           `mapstructure:"event_buffer"`
	Secret      string        `mapstructure:"secret"`
	LogLevel    string        `mapstructure:"log_level"`
	JoinRate    RateConfig    `mapstructure:"join_rate"`
	ICEServers  []string      `mapstructure:"ice_servers"`
	Rooms       []RoomConfig  `mapstructure:"rooms"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("event_buffer", 256)
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("join_rate.limit", 5)
	v.SetDefault("join_rate.interval", "10s")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("rooms", []map[string]any{
		{"id": "general", "name": "General", "kind": "text"},
		{"id": "lounge", "name": "Lounge", "kind": "voice"},
		{"id": "gaming", "name": "Gaming", "kind": "voice"},
	})
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults.
// VOICE_* environment variables override both.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Int("rooms", len(cfg.Rooms)).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PongWait <= c.PingPeriod {
		return errors.New("pong_wait must be longer than ping_period")
	}
	if c.SendBuffer <= 0 {
		return errors.New("send_buffer must be positive")
	}
	if len(c.Rooms) == 0 {
		return errors.New("at least one room must be configured")
	}
	return nil
}

// DomainRooms converts the configured catalog into domain rooms.
func (c *Config) DomainRooms() ([]domain.Room, error) {
	out := make([]domain.Room, 0, len(c.Rooms))
	for _, rc := range c.Rooms {
		kind, err := domain.ParseRoomKind(rc.Kind)
		if err != nil {
			return nil, fmt.Errorf("room %s: %w", rc.ID, err)
		}
		out = append(out, domain.Room{
			ID:   domain.RoomID(rc.ID),
			Name: domain.RoomName(rc.Name),
			Kind: kind,
		})
	}
	return out, nil
}

// Level maps log_level to a zerolog level, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
