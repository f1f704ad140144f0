package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Server struct {
	ListenAddr string `env:"LISTEN_ADDR, default=0.0.0.0:7555"`
	DBPath     string `env:"DB_PATH, default=elevator.db"`
	LogLevel   string `env:"LOG_LEVEL, default=info"`
	Workspace  string `env:"WORKSPACE, default=dev"`

	// Dev switches traces to stdout and forces debug logging.
	Dev bool `env:"DEV, default=false"`
}

type GitHub struct {
	ApiUrl         string `env:"API_URL, default=https://api.github.com"`
	EscalationTeam string `env:"ESCALATION_TEAM, default=can-escalate-to-become-an-owner"`

	// comments authored by this login are ignored so the app never
	// reacts to itself
	BotLogin string `env:"BOT_LOGIN, default=elevatemetoowner[bot]"`
}

type Elevation struct {
	Duration time.Duration `env:"DURATION, default=1h"`
}

// WaitSeconds is the delay handed to the scheduler for every elevation.
func (e Elevation) WaitSeconds() int64 {
	return int64(e.Duration / time.Second)
}

type RedisConfig struct {
	Addr     string `env:"ADDR, default=localhost:6379"`
	Password string `env:"PASS"`
	DB       int    `env:"DB, default=0"`
}

type Store struct {
	Provider string      `env:"PROVIDER, default=sqlite"`
	Redis    RedisConfig `env:",prefix=REDIS_"`
}

type OpenBaoConfig struct {
	Addr     string `env:"ADDR"`
	RoleID   string `env:"ROLE_ID"`
	SecretID string `env:"SECRET_ID"`
	Mount    string `env:"MOUNT, default=elevator"`
}

type Secrets struct {
	Provider string `env:"PROVIDER, default=env"`

	// only read by the env provider
	AppID          string `env:"APP_ID"`
	PrivateKey     string `env:"PRIVATE_KEY"`
	InstallationID string `env:"INSTALLATION_ID"`
	WebhookSecret  string `env:"WEBHOOK_SECRET"`

	OpenBao OpenBaoConfig `env:",prefix=OPENBAO_"`
}

type Scheduler struct {
	PollInterval time.Duration `env:"POLL_INTERVAL, default=5s"`
	Workers      int           `env:"WORKERS, default=2"`
	QueueSize    int           `env:"QUEUE_SIZE, default=100"`
}

type PosthogConfig struct {
	ApiKey   string `env:"API_KEY"`
	Endpoint string `env:"ENDPOINT, default=https://eu.i.posthog.com"`
}

type Telemetry struct {
	Enabled  bool   `env:"ENABLED, default=false"`
	Endpoint string `env:"ENDPOINT, default=localhost:4318"`
}

type Config struct {
	Server    Server        `env:",prefix=ELEVATOR_SERVER_"`
	GitHub    GitHub        `env:",prefix=ELEVATOR_GITHUB_"`
	Elevation Elevation     `env:",prefix=ELEVATOR_ELEVATION_"`
	Store     Store         `env:",prefix=ELEVATOR_STORE_"`
	Secrets   Secrets       `env:",prefix=ELEVATOR_SECRETS_"`
	Scheduler Scheduler     `env:",prefix=ELEVATOR_SCHEDULER_"`
	Posthog   PosthogConfig `env:",prefix=ELEVATOR_POSTHOG_"`
	Telemetry Telemetry     `env:",prefix=ELEVATOR_TELEMETRY_"`
}

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	err := envconfig.Process(ctx, &cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Server.Dev {
		cfg.Server.LogLevel = "debug"
	}

	return &cfg, nil
}
