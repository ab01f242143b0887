// Package config loads the service configuration from the environment.
// Every variable carries the PARLIAMENT_ prefix.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ListenAddr      string `envconfig:"LISTEN_ADDR" default:":8790"`
	DataDir         string `envconfig:"DATA_DIR" default:"./data/stores"`
	ParliamentStore string `envconfig:"PARLIAMENT_STORE" default:"parliament"`

	// Remotes are the participant stores consulted at tally time.
	Remotes []string `envconfig:"REMOTES"`

	AcceptThreshold    float64       `envconfig:"ACCEPT_THRESHOLD" default:"0.6"`
	FaninPolicy        string        `envconfig:"FANIN_POLICY" default:"aggregate"`
	ResolutionPolicy   string        `envconfig:"RESOLUTION_POLICY" default:"forward_all"`
	MaxDelegationDepth int           `envconfig:"MAX_DELEGATION_DEPTH" default:"10"`
	FetchTimeout       time.Duration `envconfig:"FETCH_TIMEOUT" default:"5s"`
	DedupLatestBallot  bool          `envconfig:"DEDUP_LATEST_BALLOT" default:"false"`
	StrictBallots      bool          `envconfig:"STRICT_BALLOTS" default:"false"`

	// RedisURL enables the shared enactment lease; empty keeps the
	// in-process locker. DatabaseURL enables the audit trail.
	RedisURL    string `envconfig:"REDIS_URL"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("parliament", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
