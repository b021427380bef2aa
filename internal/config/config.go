// Package config loads process configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPPort  string `env:"HTTP_PORT" envDefault:"8080"`
	HTTPSPort string `env:"HTTPS_PORT" envDefault:"8443"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	RoomDuration    time.Duration `env:"ROOM_DURATION" envDefault:"60m"`
	ExpirationGrace time.Duration `env:"ROOM_EXPIRATION_GRACE" envDefault:"30s"`

	AuthCooldown   time.Duration `env:"AUTH_COOLDOWN" envDefault:"2s"`
	AuthQueueSize  int           `env:"AUTH_QUEUE_SIZE" envDefault:"5"`
	AuthStaleAfter time.Duration `env:"AUTH_STALE_AFTER" envDefault:"10s"`

	AuthIssuer   string `env:"AUTH_ISSUER"`
	AuthClientID string `env:"AUTH_CLIENT_ID"`
	AuthJWKSURL  string `env:"AUTH_JWKS_URL"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
