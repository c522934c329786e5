package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/wricardo/tank-tactics/game/engine"
	"github.com/wricardo/tank-tactics/game/lifecycle"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Store drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Settings are the runtime settings of the server
type Settings struct {
	HTTPHost string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort int    `env:"HTTP_PORT" envDefault:"8080"`

	StoreDriver  string `env:"STORE_DRIVER" envDefault:"memory"`
	StoreDSN     string `env:"STORE_DSN"`
	SnapshotPath string `env:"SNAPSHOT_PATH"`

	RedisAddr          string `env:"REDIS_ADDR"`
	RedisChannelPrefix string `env:"REDIS_CHANNEL_PREFIX" envDefault:"tanks"`

	MaxPlayers           int           `env:"MAX_PLAYERS" envDefault:"20"`
	DefaultPointInterval time.Duration `env:"DEFAULT_POINT_INTERVAL" envDefault:"1h"`
	SchedulerMinDelay    time.Duration `env:"SCHEDULER_MIN_DELAY" envDefault:"1s"`
	StartLives           int           `env:"START_LIVES" envDefault:"3"`
	StartPoints          int           `env:"START_POINTS" envDefault:"1"`
	StartRange           int           `env:"START_RANGE" envDefault:"2"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" envDefault:"5"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"10"`

	NgrokEnabled   bool   `env:"NGROK_ENABLED"`
	NgrokAuthtoken string `env:"NGROK_AUTHTOKEN"`
	NgrokDomain    string `env:"NGROK_DOMAIN"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// LoadDotEnv loads the given .env files, or .env in the working directory.
// Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load parses settings from the process environment
func Load() (*Settings, error) {
	return parse(env.Options{})
}

// LoadFrom parses settings from vars instead of the process environment
func LoadFrom(vars map[string]string) (*Settings, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings for values the server cannot run with
func (s *Settings) Validate() error {
	var problems []string
	switch s.StoreDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if s.StoreDSN == "" {
			problems = append(problems, "STORE_DSN is required for "+s.StoreDriver)
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", s.StoreDriver))
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		problems = append(problems, fmt.Sprintf("HTTP_PORT %d out of range", s.HTTPPort))
	}
	if s.MaxPlayers < engine.MinPlayers {
		problems = append(problems, fmt.Sprintf("MAX_PLAYERS must be at least %d", engine.MinPlayers))
	}
	if s.DefaultPointInterval <= 0 {
		problems = append(problems, "DEFAULT_POINT_INTERVAL must be positive")
	}
	if s.SchedulerMinDelay < 0 {
		problems = append(problems, "SCHEDULER_MIN_DELAY must not be negative")
	}
	if s.StartLives <= 0 || s.StartPoints < 0 || s.StartRange < 0 {
		problems = append(problems, "starting stats must be non-negative with at least one life")
	}
	if s.NgrokEnabled && s.NgrokAuthtoken == "" {
		problems = append(problems, "NGROK_AUTHTOKEN is required when NGROK_ENABLED")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}

// Addr is the listen address of the HTTP server
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.HTTPHost, s.HTTPPort)
}

// Rules returns the lifecycle rules described by the settings
func (s *Settings) Rules() lifecycle.Rules {
	return lifecycle.Rules{
		MaxPlayers:  s.MaxPlayers,
		StartLives:  s.StartLives,
		StartPoints: s.StartPoints,
		StartRange:  s.StartRange,
	}
}
