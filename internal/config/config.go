package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	APIKey    string `yaml:"api_key"`
	PublicURL string `yaml:"public_url"` // HTTPS base used to register webhooks upstream
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

// HomeAssistantConfig points at the host event bus: events are POSTed to
// {url}/api/events/{event_type} with the long-lived access token.
type HomeAssistantConfig struct {
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	EventType string `yaml:"event_type"`
}

// RedisConfig is optional; when url is set the dedup window is kept in Redis
// so it survives restarts and is shared between replicas.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DedupConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	CallbackTTL time.Duration `yaml:"callback_ttl"`
	Capacity    int           `yaml:"capacity"`
}

type MediaConfig struct {
	Root string `yaml:"root"` // base dir for relative file paths in send calls
}

type TargetConfig struct {
	Entity string `yaml:"entity"`
	Name   string `yaml:"name"`
	ChatID int64  `yaml:"chat_id"`
	UserID int64  `yaml:"user_id"`
}

type ButtonConfig struct {
	Type    string `yaml:"type"`
	Text    string `yaml:"text"`
	Payload string `yaml:"payload"`
}

type CommandConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type BotConfig struct {
	ID            string           `yaml:"id"`
	Name          string           `yaml:"name"`
	AccessToken   string           `yaml:"access_token"`
	MessageFormat string           `yaml:"message_format"` // ""|markdown|html
	ReceiveMode   string           `yaml:"receive_mode"`   // disabled|long_polling|webhook
	WebhookSecret string           `yaml:"webhook_secret"`
	Targets       []TargetConfig   `yaml:"targets"`
	Keyboard      [][]ButtonConfig `yaml:"keyboard"`
	Commands      []CommandConfig  `yaml:"commands"`
}

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Redis         RedisConfig         `yaml:"redis"`
	Dedup         DedupConfig         `yaml:"dedup"`
	Media         MediaConfig         `yaml:"media"`
	Bots          []BotConfig         `yaml:"bots"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads and validates the YAML config file.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes raw YAML, applies defaults and validates. Used by LoadConfig
// and by the reload watcher.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8126
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HomeAssistant.EventType == "" {
		cfg.HomeAssistant.EventType = "max_notify_received"
	}
	if cfg.Dedup.TTL <= 0 {
		cfg.Dedup.TTL = 5 * time.Minute
	}
	if cfg.Dedup.CallbackTTL <= 0 {
		cfg.Dedup.CallbackTTL = 3 * time.Second
	}
	if cfg.Dedup.Capacity <= 0 {
		cfg.Dedup.Capacity = 4096
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Bots) == 0 {
		return errors.New("at least one bots entry is required")
	}
	seenIDs := make(map[string]struct{}, len(cfg.Bots))
	seenEntities := make(map[string]struct{})
	for i, b := range cfg.Bots {
		if b.ID == "" {
			return fmt.Errorf("bots[%d]: id is required", i)
		}
		if _, dup := seenIDs[b.ID]; dup {
			return fmt.Errorf("bots[%d]: duplicate id %q", i, b.ID)
		}
		seenIDs[b.ID] = struct{}{}
		if b.AccessToken == "" {
			return fmt.Errorf("bots[%d] %q: access_token is required", i, b.ID)
		}
		switch b.ReceiveMode {
		case "", "disabled", "long_polling", "webhook":
		default:
			return fmt.Errorf("bots[%d] %q: invalid receive_mode %q", i, b.ID, b.ReceiveMode)
		}
		switch b.MessageFormat {
		case "", "text", "markdown", "html":
		default:
			return fmt.Errorf("bots[%d] %q: invalid message_format %q", i, b.ID, b.MessageFormat)
		}
		for j, t := range b.Targets {
			if (t.ChatID == 0) == (t.UserID == 0) {
				return fmt.Errorf("bots[%d] %q targets[%d]: exactly one of chat_id/user_id is required", i, b.ID, j)
			}
			if t.Entity != "" {
				if _, dup := seenEntities[t.Entity]; dup {
					return fmt.Errorf("bots[%d] %q targets[%d]: duplicate entity %q", i, b.ID, j, t.Entity)
				}
				seenEntities[t.Entity] = struct{}{}
			}
		}
	}
	return nil
}
