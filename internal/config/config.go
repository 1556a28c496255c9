package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jaam8/polling_server/pkg/tarantool"
	"github.com/joho/godotenv"
)

const (
	BackendMemory    = "memory"
	BackendTarantool = "tarantool"
)

type Config struct {
	HTTPPort       string           `yaml:"HTTP_PORT"       env:"HTTP_PORT"       env-default:"3000"`
	LogLevel       string           `yaml:"LOG_LEVEL"       env:"LOG_LEVEL"       env-default:"info"`
	FrontendURL    string           `yaml:"FRONTEND_URL"    env:"FRONTEND_URL"    env-default:"http://localhost:3000"`
	RPID           string           `yaml:"RP_ID"           env:"RP_ID"           env-default:"localhost"`
	RPOrigin       string           `yaml:"RP_ORIGIN"       env:"RP_ORIGIN"       env-default:"http://localhost:3000"`
	RPName         string           `yaml:"RP_NAME"         env:"RP_NAME"         env-default:"Polling Application"`
	SessionSecret  string           `yaml:"SESSION_SECRET"  env:"SESSION_SECRET"`
	SessionCookie  string           `yaml:"SESSION_COOKIE"  env:"SESSION_COOKIE"  env-default:"webauthn"`
	SessionTTL     time.Duration    `yaml:"SESSION_TTL"     env:"SESSION_TTL"     env-default:"560s"`
	SessionSecure  bool             `yaml:"SESSION_SECURE"  env:"SESSION_SECURE"  env-default:"false"`
	SessionBackend string           `yaml:"SESSION_BACKEND" env:"SESSION_BACKEND" env-default:"memory"`
	HubBacklog     int              `yaml:"HUB_BACKLOG"     env:"HUB_BACKLOG"     env-default:"100"`
	MmURL          string           `yaml:"MM_URL"          env:"MM_URL"`
	BotToken       string           `yaml:"BOT_TOKEN"       env:"BOT_TOKEN"`
	ChannelID      string           `yaml:"CHANNEL_ID"      env:"CHANNEL_ID"`
	Tarantool      tarantool.Config `yaml:"TARANTOOL"`
}

// New reads the environment, loading a .env file first when one exists.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	switch c.SessionBackend {
	case BackendMemory, BackendTarantool:
	default:
		return fmt.Errorf("config: unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL must be positive")
	}
	if c.MmURL != "" && c.ChannelID == "" {
		return fmt.Errorf("config: CHANNEL_ID is required when MM_URL is set")
	}
	return nil
}

func (c *Config) FrontendOrigins() []string {
	return splitList(c.FrontendURL)
}

func (c *Config) RPOrigins() []string {
	return splitList(c.RPOrigin)
}

// Secret returns SESSION_SECRET, or a random key that lives as long as the process.
func (c *Config) Secret() ([]byte, error) {
	if c.SessionSecret != "" {
		return []byte(c.SessionSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("config: failed to generate session secret: %w", err)
	}
	c.SessionSecret = string(secret)
	return secret, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
