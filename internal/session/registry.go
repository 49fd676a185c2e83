package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"roulette-pilot/internal/config"
	"roulette-pilot/internal/gameconn"
)

// Registry is the concurrency-safe table of live sessions, keyed by user
// id. It is the only cross-session shared resource: the map lock is held
// for lookups and inserts only, never while a session processes events.
type Registry struct {
	cfg    config.EngineConfig
	authFn AuthFunc
	log    zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(cfg config.EngineConfig, authFn AuthFunc, logger zerolog.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		authFn:   authFn,
		log:      logger,
		sessions: map[string]*Session{},
	}
}

// Connect authenticates the user, opens the game connection and starts
// the session's event loop. Fails if a session already exists.
func (r *Registry) Connect(ctx context.Context, userID string) error {
	r.mu.RLock()
	_, exists := r.sessions[userID]
	r.mu.RUnlock()
	if exists {
		return ErrSessionExists
	}

	creds, err := r.authFn(ctx, userID)
	if err != nil {
		return err
	}

	sup := gameconn.NewSupervisor(gameconn.Config{
		URL:                  gameURL(r.cfg.GameWSURL, r.cfg.TableID, creds),
		HeartbeatInterval:    r.cfg.HeartbeatInterval,
		PongSoftLimit:        r.cfg.PongSoftLimit,
		PongHardLimit:        r.cfg.PongHardLimit,
		BackoffInitial:       r.cfg.BackoffInitial,
		BackoffMax:           r.cfg.BackoffMax,
		MaxReconnectAttempts: r.cfg.MaxReconnectAttempts,
		SendRate:             rate.Limit(r.cfg.SendRate),
		SendBurst:            r.cfg.SendBurst,
	}, r.log.With().Str("user_id", userID).Logger())

	s, err := newSession(userID, r.cfg, creds, sup, r.authFn, r.log)
	if err != nil {
		return err
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	r.mu.Lock()
	if _, exists := r.sessions[userID]; exists {
		r.mu.Unlock()
		cancel()
		return ErrSessionExists
	}
	r.sessions[userID] = s
	r.mu.Unlock()

	go sup.Run(sessionCtx, s.events)
	go s.run(sessionCtx)
	s.logf("session connected")
	return nil
}

// Disconnect stops the session's connection with an intentional close
// and removes it from the registry.
func (r *Registry) Disconnect(userID string) error {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	if ok {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	r.log.Info().Str("user_id", userID).Msg("session disconnected")
	return nil
}

func (r *Registry) StartOperation(ctx context.Context, userID string) error {
	s, err := r.lookup(userID)
	if err != nil {
		return err
	}
	return s.post(ctx, ctrlStart)
}

func (r *Registry) StopOperation(ctx context.Context, userID string) error {
	s, err := r.lookup(userID)
	if err != nil {
		return err
	}
	return s.post(ctx, ctrlStop)
}

func (r *Registry) ResetReport(ctx context.Context, userID string) error {
	s, err := r.lookup(userID)
	if err != nil {
		return err
	}
	return s.post(ctx, ctrlReset)
}

func (r *Registry) Logs(userID string) ([]string, error) {
	s, err := r.lookup(userID)
	if err != nil {
		return nil, err
	}
	return s.logs.Lines(), nil
}

func (r *Registry) Report(userID string) (Report, error) {
	s, err := r.lookup(userID)
	if err != nil {
		return Report{}, err
	}
	return s.report(), nil
}

func (r *Registry) Status(userID string) (Status, error) {
	s, err := r.lookup(userID)
	if err != nil {
		return Status{}, err
	}
	return s.status(), nil
}

func (r *Registry) lookup(userID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// StartJanitor sweeps sessions whose connection has been terminally
// failed for longer than the configured TTL. Failed sessions stay
// queryable until then so the operator can inspect and stop them.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.sweep(now)
			}
		}
	}()
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	var expired []*Session
	for userID, s := range r.sessions {
		s.mu.RLock()
		terminal := s.terminalSince
		s.mu.RUnlock()
		if !terminal.IsZero() && now.Sub(terminal) > r.cfg.SessionTTL {
			delete(r.sessions, userID)
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()
	for _, s := range expired {
		s.close()
		r.log.Info().Str("user_id", s.userID).Msg("expired session swept")
	}
}
