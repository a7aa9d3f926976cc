// Package fake provides an in-memory audio player for tests and the
// simulator.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakePlayer is a scriptable playback.Player. Zero value: every source plays
// for PlayTime (default instantly) and succeeds.
type FakePlayer struct {
	mu sync.Mutex

	// FailSources lists sources whose playback errors immediately.
	FailSources map[string]bool

	// PlayTime is how long each playback takes; zero completes immediately.
	PlayTime time.Duration

	// Block, when non-nil, makes playback run until the channel closes or
	// the playback is stopped.
	Block chan struct{}

	played  []string
	stopped int
}

// New creates a fake player.
func New() *FakePlayer {
	return &FakePlayer{}
}

// Play implements playback.Player.
func (p *FakePlayer) Play(ctx context.Context, source string) error {
	p.mu.Lock()
	p.played = append(p.played, source)
	fail := p.FailSources[source]
	playTime := p.PlayTime
	block := p.Block
	p.mu.Unlock()

	if fail {
		return fmt.Errorf("fake player: cannot play %q", source)
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			p.markStopped()
			return ctx.Err()
		}
		return nil
	}

	if playTime > 0 {
		select {
		case <-time.After(playTime):
		case <-ctx.Done():
			p.markStopped()
			return ctx.Err()
		}
	}
	return nil
}

func (p *FakePlayer) markStopped() {
	p.mu.Lock()
	p.stopped++
	p.mu.Unlock()
}

// Played returns every source handed to Play, in order.
func (p *FakePlayer) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

// StoppedCount reports how many playbacks were cut by cancellation.
func (p *FakePlayer) StoppedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
