package config

import (
	"testing"
	"time"
)

func TestLoadEngineDefaults(t *testing.T) {
	t.Setenv("AUTH_URL", "http://localhost:9000/auth")
	t.Setenv("GAME_WS_URL", "wss://game.example.com/socket")

	cfg, err := LoadEngine()
	if err != nil {
		t.Fatalf("LoadEngine() error = %v", err)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Fatalf("HeartbeatInterval = %v, want 30s", cfg.HeartbeatInterval)
	}
	if cfg.RenewInterval != 18*time.Minute {
		t.Fatalf("RenewInterval = %v, want 18m", cfg.RenewInterval)
	}
	if cfg.MaxReconnectAttempts != 5 {
		t.Fatalf("MaxReconnectAttempts = %d, want 5", cfg.MaxReconnectAttempts)
	}
	if cfg.SendRate != 10 || cfg.SendBurst != 20 {
		t.Fatalf("send limiter defaults = %v/%d, want 10/20", cfg.SendRate, cfg.SendBurst)
	}
	want := []float64{0.5, 2, 5, 11, 23}
	if len(cfg.Stakes) != len(want) {
		t.Fatalf("Stakes = %v, want %v", cfg.Stakes, want)
	}
	for i, v := range want {
		if cfg.Stakes[i] != v {
			t.Fatalf("Stakes[%d] = %v, want %v", i, cfg.Stakes[i], v)
		}
	}
}

func TestLoadEngineRequiresEndpoints(t *testing.T) {
	t.Setenv("AUTH_URL", "")
	t.Setenv("GAME_WS_URL", "wss://game.example.com/socket")

	if _, err := LoadEngine(); err == nil {
		t.Fatal("LoadEngine() expected error for missing AUTH_URL")
	}
}

func TestLoadEngineParseTypes(t *testing.T) {
	t.Setenv("AUTH_URL", "http://localhost:9000/auth")
	t.Setenv("GAME_WS_URL", "wss://game.example.com/socket")
	t.Setenv("STAKE_SEQUENCE", "1,2,4,8,16")
	t.Setenv("BACKOFF_INITIAL", "2s")
	t.Setenv("RENEW_MAX_ATTEMPTS", "7")
	t.Setenv("SEND_RATE", "2.5")

	cfg, err := LoadEngine()
	if err != nil {
		t.Fatalf("LoadEngine() error = %v", err)
	}
	if cfg.Stakes[4] != 16 {
		t.Fatalf("Stakes[4] = %v, want 16", cfg.Stakes[4])
	}
	if cfg.BackoffInitial != 2*time.Second {
		t.Fatalf("BackoffInitial = %v, want 2s", cfg.BackoffInitial)
	}
	if cfg.RenewMaxAttempts != 7 {
		t.Fatalf("RenewMaxAttempts = %d, want 7", cfg.RenewMaxAttempts)
	}
	if cfg.SendRate != 2.5 {
		t.Fatalf("SendRate = %v, want 2.5", cfg.SendRate)
	}
}
