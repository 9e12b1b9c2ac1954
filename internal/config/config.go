// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries everything the server and CLI need from the environment.
// SigningKeyHex is forwarded to executed code, never used by the loader
// itself.
type Config struct {
	DBPath        string `env:"SPANOS_DB" envDefault:"spanos.db"`
	Addr          string `env:"SPANOS_ADDR" envDefault:":8787"`
	SigningKeyHex string `env:"SIGNING_KEY_HEX"`

	ObserverInterval time.Duration `env:"SPANOS_OBSERVER_INTERVAL" envDefault:"5s"`
	WorkerInterval   time.Duration `env:"SPANOS_WORKER_INTERVAL" envDefault:"2s"`
	PolicyInterval   time.Duration `env:"SPANOS_POLICY_INTERVAL" envDefault:"10s"`
}

// Load parses the environment.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
