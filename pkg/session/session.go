// Package session owns the identity of the current customer at a station:
// one live session at most, created on "new car", destroyed on "next car".
// Every other component validates its work against the live session id;
// once End begins, the outgoing id is invalid everywhere and in-flight
// results carrying it must be dropped.
package session

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/grubvoice/station-go/pkg/backend"
	"github.com/grubvoice/station-go/pkg/speaking"
)

// Session binds one customer's interaction sequence to a restaurant context.
type Session struct {
	ID           string
	RestaurantID int
	CreatedAt    time.Time
}

// Manager is the single writer of the live session. Start and End serialize
// through its mutex; reads go through Current and IsLive.
type Manager struct {
	client backend.Client
	gate   *speaking.Gate
	logger *slog.Logger

	mu      sync.Mutex
	live    *Session
	onReset []func()

	started *expvar.Int
	ended   *expvar.Int
}

// Config holds configuration for creating a Manager.
type Config struct {
	Client backend.Client
	Gate   *speaking.Gate
}

// NewManager creates a session manager with no live session.
func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("backend client is required")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("speaking gate is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client:  cfg.Client,
		gate:    cfg.Gate,
		logger:  logger,
		started: &expvar.Int{},
		ended:   &expvar.Int{},
	}, nil
}

// OnReset registers a hook run by End after the gate is forced idle and
// before the backend is notified. Capture abort and playback stop register
// here so a mid-interaction "next car" releases the devices they hold.
func (m *Manager) OnReset(hook func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReset = append(m.onReset, hook)
}

// Start allocates a session for a new customer. It refuses to start while a
// session is live or while the station is mid-interaction, and returns the
// greeting audio URL for the station to play.
func (m *Manager) Start(ctx context.Context, restaurantID int) (*Session, string, error) {
	m.mu.Lock()
	if m.live != nil {
		m.mu.Unlock()
		return nil, "", fmt.Errorf("%w: session already live", backend.ErrSessionStart)
	}
	if state := m.gate.Current(); state != speaking.Idle {
		m.mu.Unlock()
		return nil, "", fmt.Errorf("%w: station busy (%s)", backend.ErrSessionStart, state)
	}
	m.mu.Unlock()

	grant, err := m.client.CreateSession(ctx, restaurantID)
	if err != nil {
		return nil, "", err
	}

	sess := &Session{
		ID:           grant.SessionID,
		RestaurantID: restaurantID,
		CreatedAt:    time.Now(),
	}

	m.mu.Lock()
	m.live = sess
	m.mu.Unlock()
	m.started.Add(1)

	m.logger.Info("Session started",
		slog.String("session_id", sess.ID),
		slog.Int("restaurant_id", restaurantID))

	return sess, grant.GreetingAudioURL, nil
}

// End clears the current session. Idempotent: with no live session it is a
// no-op. The gate is forced idle and the reset hooks run before anything
// else, so the UI is responsive immediately; local identity is cleared even
// when the backend clear call fails, which is reported as ErrSessionClear.
func (m *Manager) End(ctx context.Context) error {
	m.mu.Lock()
	sess := m.live
	m.live = nil
	hooks := append([]func(){}, m.onReset...)
	m.mu.Unlock()

	if sess == nil {
		return nil
	}

	m.gate.ForceIdle()
	for _, hook := range hooks {
		hook()
	}
	m.ended.Add(1)

	m.logger.Info("Session ended", slog.String("session_id", sess.ID))

	if err := m.client.ClearSession(ctx, sess.ID); err != nil {
		m.logger.Warn("Backend session clear failed",
			slog.String("session_id", sess.ID),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Current returns the live session, nil when the station is between
// customers.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// IsLive reports whether id names the current live session. Pipeline
// callbacks use this to drop stale results after a session change.
func (m *Manager) IsLive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live != nil && m.live.ID == id
}

// Counters exposes started/ended totals for diagnostics.
func (m *Manager) Counters() (started, ended int64) {
	return m.started.Value(), m.ended.Value()
}
