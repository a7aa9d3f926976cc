// Package beepplayer implements playback.Player on a real speaker using the
// beep library. Sources may be local file paths or http(s) URLs to MP3 audio,
// which matches what the ordering backend serves.
package beepplayer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Player plays MP3 sources through the system speaker.
type Player struct {
	client *http.Client
	logger *slog.Logger

	initOnce sync.Once
	initErr  error
	rate     beep.SampleRate
}

// New creates a speaker-backed player.
func New(logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Play implements playback.Player. It blocks until the source finishes, the
// context is cancelled, or decoding fails.
func (p *Player) Play(ctx context.Context, source string) error {
	rc, err := p.open(ctx, source)
	if err != nil {
		return err
	}
	defer rc.Close()

	streamer, format, err := mp3.Decode(rc)
	if err != nil {
		return fmt.Errorf("decoding %q: %w", source, err)
	}
	defer streamer.Close()

	// The speaker is initialized once at the first playback's sample rate;
	// later sources are resampled to it.
	p.initOnce.Do(func() {
		p.rate = format.SampleRate
		p.initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if p.initErr != nil {
		return fmt.Errorf("initializing speaker: %w", p.initErr)
	}

	var stream beep.Streamer = streamer
	if format.SampleRate != p.rate {
		stream = beep.Resample(4, format.SampleRate, p.rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(stream, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// open resolves a source to a readable MP3 stream.
func (p *Player) open(ctx context.Context, source string) (io.ReadCloser, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching %q: %w", source, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetching %q: status %d", source, resp.StatusCode)
		}
		return resp.Body, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", source, err)
	}
	return f, nil
}
