package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// EngineConfig drives the per-session game engine: transport endpoints,
// heartbeat and reconnect budgets, credential renewal timing, and the
// stake sequence walked per pattern level.
type EngineConfig struct {
	AuthURL     string        `env:"AUTH_URL,required,notEmpty"`
	AuthTimeout time.Duration `env:"AUTH_TIMEOUT" envDefault:"10s"`

	GameWSURL string `env:"GAME_WS_URL,required,notEmpty"`
	TableID   string `env:"TABLE_ID" envDefault:"rt01"`

	Stakes []float64 `env:"STAKE_SEQUENCE" envDefault:"0.5,2,5,11,23" envSeparator:","`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	PongSoftLimit     time.Duration `env:"PONG_SOFT_LIMIT" envDefault:"60s"`
	PongHardLimit     time.Duration `env:"PONG_HARD_LIMIT" envDefault:"120s"`

	BackoffInitial       time.Duration `env:"BACKOFF_INITIAL" envDefault:"5s"`
	BackoffMax           time.Duration `env:"BACKOFF_MAX" envDefault:"30s"`
	MaxReconnectAttempts int           `env:"MAX_RECONNECT_ATTEMPTS" envDefault:"5"`

	SendRate  float64 `env:"SEND_RATE" envDefault:"10"`
	SendBurst int     `env:"SEND_BURST" envDefault:"20"`

	RenewInterval    time.Duration `env:"RENEW_INTERVAL" envDefault:"18m"`
	RenewRetryDelay  time.Duration `env:"RENEW_RETRY_DELAY" envDefault:"30s"`
	RenewMaxAttempts int           `env:"RENEW_MAX_ATTEMPTS" envDefault:"3"`
	AckRenewDelay    time.Duration `env:"ACK_RENEW_DELAY" envDefault:"5s"`

	LogBufferSize int           `env:"SESSION_LOG_LINES" envDefault:"200"`
	SessionTTL    time.Duration `env:"FAILED_SESSION_TTL" envDefault:"30m"`
}

func LoadEngine() (EngineConfig, error) {
	var cfg EngineConfig
	err := env.Parse(&cfg)
	return cfg, err
}
