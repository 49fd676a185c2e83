package config

import "github.com/caarlos0/env/v11"

type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	SampleEvery int    `env:"LOG_SAMPLE_EVERY" envDefault:"0"`
	File        string `env:"LOG_FILE"`
	MaxMB       int    `env:"LOG_MAX_MB" envDefault:"10"`
}

// MaxBytes is the log file size cap in bytes; falls back to the
// documented default when the struct is built without env parsing.
func (c LogConfig) MaxBytes() int64 {
	mb := c.MaxMB
	if mb <= 0 {
		mb = 10
	}
	return int64(mb) * 1024 * 1024
}

func LoadLog() (LogConfig, error) {
	var cfg LogConfig
	err := env.Parse(&cfg)
	return cfg, err
}
