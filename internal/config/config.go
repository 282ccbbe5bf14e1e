package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is loaded from the environment. BattleSecret may be empty: battles
// then conclude without signed result tokens and the settlement endpoint is
// effectively disabled.
type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	BattleSecret  string `env:"BATTLE_SECRET"`
	JWTSecret     string `env:"JWT_SECRET" envDefault:"dev-secret"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"*"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
