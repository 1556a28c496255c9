package tarantool

import (
	"fmt"
	"time"

	"github.com/tarantool/go-tarantool"
)

type Config struct {
	Host         string `yaml:"TARANTOOL_HOST" env:"TARANTOOL_HOST" env-default:"localhost"`
	Port         string `yaml:"TARANTOOL_PORT" env:"TARANTOOL_PORT" env-default:"3301"`
	Username     string `yaml:"TARANTOOL_USER" env:"TARANTOOL_USER" env-default:"admin"`
	Password     string `yaml:"TARANTOOL_PASSWORD" env:"TARANTOOL_PASSWORD" env-default:"secret"`
	SessionSpace string `yaml:"TARANTOOL_SESSION_SPACE" env:"TARANTOOL_SESSION_SPACE" env-default:"sessions"`
}

func New(config Config) (*tarantool.Connection, error) {
	conn, err := tarantool.Connect(config.Host+":"+config.Port, tarantool.Opts{
		User:    config.Username,
		Pass:    config.Password,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed connect to Tarantool: %w", err)
	}
	return conn, nil
}
