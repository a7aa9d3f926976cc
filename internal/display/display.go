// Package display bridges a station's order feed to the customer-facing
// order display. It subscribes to refresh tokens, re-fetches the current
// order from the backend on each one, and pushes the snapshot to the display
// over a websocket, reconnecting with backoff when the display drops.
package display

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/grubvoice/station-go/pkg/backend"
	"github.com/grubvoice/station-go/pkg/orderfeed"
)

// Bridge forwards order snapshots to one display.
type Bridge struct {
	client    backend.Client
	feed      *orderfeed.Feed
	sessionID func() string
	wsClient  *wsClient
	logger    *slog.Logger

	mu             sync.RWMutex
	connected      bool
	backoffAttempt int
	pushed         int
}

// Config holds configuration for creating a Bridge.
type Config struct {
	// DisplayURL is the websocket endpoint of the order display.
	DisplayURL string

	// StationID identifies this station to the display.
	StationID string

	// Client fetches the current order.
	Client backend.Client

	// Feed is the station's order refresh feed.
	Feed *orderfeed.Feed

	// SessionID reports the live session id, "" between customers.
	SessionID func() string
}

// New creates a display bridge.
func New(cfg Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		client:    cfg.Client,
		feed:      cfg.Feed,
		sessionID: cfg.SessionID,
		wsClient:  newWSClient(cfg.DisplayURL, cfg.StationID, logger),
		logger:    logger,
	}
}

// Run connects to the display and forwards snapshots until ctx ends,
// reconnecting with exponential backoff after failures.
func (b *Bridge) Run(ctx context.Context) error {
	tokens, cancel := b.feed.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Display bridge shutting down")
			return nil
		default:
			if err := b.connectAndForward(ctx, tokens); err != nil {
				b.logger.Error("Display connection failed", slog.String("error", err.Error()))
				if err := b.backoffDelay(ctx); err != nil {
					return nil
				}
				continue
			}
		}
	}
}

func (b *Bridge) connectAndForward(ctx context.Context, tokens <-chan uint64) error {
	if err := b.wsClient.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := b.wsClient.Close(); err != nil {
			b.logger.Error("Error closing display connection", slog.String("error", err.Error()))
		}
	}()

	b.setConnected(true)
	defer b.setConnected(false)
	b.resetBackoff()

	for {
		select {
		case <-ctx.Done():
			return nil
		case token, ok := <-tokens:
			if !ok {
				return nil
			}
			if err := b.push(ctx, token); err != nil {
				return err
			}
		}
	}
}

// push fetches the live order and writes one frame. A token observed with no
// live session means the customer left: the display is cleared instead.
func (b *Bridge) push(ctx context.Context, token uint64) error {
	sessionID := b.sessionID()
	if sessionID == "" {
		return b.write(&Frame{Type: FrameTypeClear, Token: token})
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	order, err := b.client.FetchCurrentOrder(fetchCtx, sessionID)
	if err != nil {
		// The display keeps its last snapshot; the next token retries.
		b.logger.Warn("Order fetch failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return nil
	}

	return b.write(&Frame{Type: FrameTypeOrder, Token: token, Order: &order})
}

func (b *Bridge) write(frame *Frame) error {
	if err := b.wsClient.WriteFrame(frame); err != nil {
		return err
	}
	b.mu.Lock()
	b.pushed++
	b.mu.Unlock()
	return nil
}

// IsConnected reports whether the display link is up.
func (b *Bridge) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// Pushed reports how many frames were written.
func (b *Bridge) Pushed() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pushed
}

func (b *Bridge) setConnected(connected bool) {
	b.mu.Lock()
	b.connected = connected
	b.mu.Unlock()
}

func (b *Bridge) resetBackoff() {
	b.mu.Lock()
	b.backoffAttempt = 0
	b.mu.Unlock()
}

func (b *Bridge) backoffDelay(ctx context.Context) error {
	b.mu.Lock()
	b.backoffAttempt++
	attempt := b.backoffAttempt
	b.mu.Unlock()

	// Exponential backoff: 1s, 2s, 4s, 8s, up to 10s max
	delay := time.Duration(math.Min(math.Pow(2, float64(attempt-1)), 10)) * time.Second

	b.logger.Info("Reconnecting to display with backoff",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
