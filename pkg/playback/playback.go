// Package playback plays AI response audio and canned fallback phrases. The
// controller guarantees the completion callback fires exactly once per Play,
// whatever the outcome: natural end, explicit stop, or an immediate player
// error. Callers rely on that to always return the speaking state to Idle.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/grubvoice/station-go/pkg/phrase"
)

// Player is the platform audio-output boundary. Play blocks until the source
// finishes, the context is cancelled, or playback fails.
type Player interface {
	Play(ctx context.Context, source string) error
}

// Outcome describes how one playback ended.
type Outcome struct {
	// Source is the URL or asset path that was played.
	Source string

	// Stopped is true when Stop cut the playback short.
	Stopped bool

	// Err is the player error, nil for a natural end or a stop.
	Err error
}

// handle is the state of one playback. Each Play gets its own handle so a
// late completion can never touch a successor's cancel function.
type handle struct {
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
}

func (h *handle) stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.cancel()
}

func (h *handle) wasStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Controller serializes speaker output for a station. At most one playback is
// live at a time; a Play while another is live stops the previous one first.
type Controller struct {
	player  Player
	phrases phrase.Source
	logger  *slog.Logger

	mu      sync.Mutex
	current *handle
}

// Config holds configuration for creating a Controller.
type Config struct {
	Player Player

	// Phrases locates canned phrase audio for the fallback path.
	Phrases phrase.Source
}

// New creates a playback controller.
func New(cfg Config, logger *slog.Logger) (*Controller, error) {
	if cfg.Player == nil {
		return nil, fmt.Errorf("player is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{player: cfg.Player, phrases: cfg.Phrases, logger: logger}, nil
}

// Play starts playing source and returns immediately. onComplete is invoked
// exactly once, from the playback goroutine, when the playback ends for any
// reason.
func (c *Controller) Play(source string, onComplete func(Outcome)) {
	c.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel}

	c.mu.Lock()
	c.current = h
	c.mu.Unlock()

	var once sync.Once
	complete := func(out Outcome) {
		once.Do(func() {
			cancel()
			c.mu.Lock()
			if c.current == h {
				c.current = nil
			}
			c.mu.Unlock()
			if onComplete != nil {
				onComplete(out)
			}
		})
	}

	c.logger.Info("Playback started", slog.String("source", source))

	go func() {
		err := c.player.Play(ctx, source)

		switch {
		case h.wasStopped():
			c.logger.Info("Playback stopped", slog.String("source", source))
			complete(Outcome{Source: source, Stopped: true})
		case err != nil:
			c.logger.Error("Playback failed",
				slog.String("source", source),
				slog.String("error", err.Error()))
			complete(Outcome{Source: source, Err: err})
		default:
			c.logger.Info("Playback finished", slog.String("source", source))
			complete(Outcome{Source: source})
		}
	}()
}

// PlayPhrase plays a canned phrase from the local catalog.
func (c *Controller) PlayPhrase(t phrase.Type, onComplete func(Outcome)) {
	c.Play(c.phrases.Resolve(t), onComplete)
}

// Stop cuts the live playback, if any. The playback's completion callback
// still fires (exactly once) with Stopped set.
func (c *Controller) Stop() {
	c.mu.Lock()
	h := c.current
	c.mu.Unlock()

	if h != nil {
		h.stop()
	}
}

// Playing reports whether a playback is currently live.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}
