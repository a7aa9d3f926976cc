// Package pipeline drives one utterance from finished clip to spoken
// response: enter Processing, submit to the ordering backend, broadcast an
// order refresh when the order changed, hand response audio to playback, and
// land back in Idle on every path. The Processing state itself serializes
// utterances; a second clip cannot be submitted until the first resolves.
package pipeline

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"time"

	"github.com/grubvoice/station-go/pkg/audio"
	"github.com/grubvoice/station-go/pkg/backend"
	"github.com/grubvoice/station-go/pkg/orderfeed"
	"github.com/grubvoice/station-go/pkg/phrase"
	"github.com/grubvoice/station-go/pkg/playback"
	"github.com/grubvoice/station-go/pkg/session"
	"github.com/grubvoice/station-go/pkg/speaking"
)

// DefaultTimeout bounds the backend round-trip for one utterance.
const DefaultTimeout = 20 * time.Second

// failureText is shown (not spoken) when the backend gives us nothing better.
const failureText = "Sorry, I couldn't process your request. Please try again."

// ErrNotCaptured indicates Submit was called without a preceding capture
// holding the CustomerSpeaking state. That is a caller bug, not a runtime
// condition to recover from.
var ErrNotCaptured = errors.New("submit without live capture state")

// Notice is the pipeline's report to the UI about one utterance. Err carries
// diagnostic detail only; the customer-facing voice channel hears either the
// backend's response audio or a canned phrase, never raw errors.
type Notice struct {
	SessionID string
	Text      string
	Err       error
	Result    backend.UtteranceResult
}

// Pipeline orchestrates utterances for one station.
type Pipeline struct {
	client   backend.Client
	gate     *speaking.Gate
	sessions *session.Manager
	speaker  *playback.Controller
	feed     *orderfeed.Feed
	logger   *slog.Logger

	timeout  time.Duration
	language string
	fallback phrase.Type
	onNotice func(Notice)

	utterances *expvar.Int
	failures   *expvar.Int
	stale      *expvar.Int
}

// Config holds configuration for creating a Pipeline.
type Config struct {
	Client   backend.Client
	Gate     *speaking.Gate
	Sessions *session.Manager
	Speaker  *playback.Controller
	Feed     *orderfeed.Feed

	// Timeout bounds the backend call; DefaultTimeout when zero.
	Timeout time.Duration

	// Language is the utterance language code, "en" when empty.
	Language string

	// Fallback is the canned phrase spoken on processing failure;
	// phrase.ComeAgain when empty.
	Fallback phrase.Type

	// OnNotice receives the outcome of each utterance for the UI. Called
	// from the pipeline goroutine; must not block for long.
	OnNotice func(Notice)
}

// New creates a pipeline.
func New(cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("backend client is required")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("speaking gate is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Speaker == nil {
		return nil, fmt.Errorf("playback controller is required")
	}
	if cfg.Feed == nil {
		return nil, fmt.Errorf("order feed is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Fallback == "" {
		cfg.Fallback = phrase.ComeAgain
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		client:     cfg.Client,
		gate:       cfg.Gate,
		sessions:   cfg.Sessions,
		speaker:    cfg.Speaker,
		feed:       cfg.Feed,
		logger:     logger,
		timeout:    cfg.Timeout,
		language:   cfg.Language,
		fallback:   cfg.Fallback,
		onNotice:   cfg.OnNotice,
		utterances: &expvar.Int{},
		failures:   &expvar.Int{},
		stale:      &expvar.Int{},
	}, nil
}

// Submit takes the finished clip of the current capture and resolves it
// asynchronously. The capture must have left the gate in CustomerSpeaking;
// Submit moves it to Processing and the async resolution returns it to Idle
// on every path. An empty clip abandons the utterance and rolls the gate
// back.
func (p *Pipeline) Submit(ctx context.Context, clip *audio.Clip, sess *session.Session) error {
	if sess == nil {
		return fmt.Errorf("session is required")
	}
	if clip.Empty() {
		p.gate.TryEnter(speaking.Idle)
		p.logger.Debug("Empty clip, utterance abandoned", slog.String("session_id", sess.ID))
		return nil
	}
	if !p.gate.TryEnter(speaking.Processing) {
		return fmt.Errorf("%w: gate in %s", ErrNotCaptured, p.gate.Current())
	}

	p.utterances.Add(1)
	p.logger.Info("Utterance submitted",
		slog.String("session_id", sess.ID),
		slog.Int("bytes", len(clip.Data)))

	go p.resolve(ctx, clip, sess)
	return nil
}

// resolve performs the backend call and applies its effects, re-validating
// the session at every suspension point.
func (p *Pipeline) resolve(ctx context.Context, clip *audio.Clip, sess *session.Session) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.client.ProcessUtterance(callCtx, clip, sess.ID, sess.RestaurantID, p.language)

	// Stale-response suppression: the customer may have changed while the
	// call was in flight. Release Processing through the normal edge; if the
	// session reset already forced Idle this is a no-op, and a new
	// customer's capture state is never touched.
	if !p.sessions.IsLive(sess.ID) {
		p.stale.Add(1)
		p.gate.TryEnter(speaking.Idle)
		p.logger.Info("Stale response discarded", slog.String("session_id", sess.ID))
		return
	}

	if err != nil {
		p.fail(sess.ID, result, err)
		return
	}

	if result.OrderChanged {
		token := p.feed.Broadcast()
		p.logger.Info("Order refresh broadcast",
			slog.String("session_id", sess.ID),
			slog.Uint64("token", token))
	}

	if result.AudioURL != "" && p.gate.TryEnter(speaking.AISpeaking) {
		if !p.sessions.IsLive(sess.ID) {
			p.stale.Add(1)
			p.gate.TryEnter(speaking.Idle)
			return
		}
		p.speaker.Play(result.AudioURL, func(playback.Outcome) {
			p.gate.TryEnter(speaking.Idle)
		})
	} else {
		p.gate.TryEnter(speaking.Idle)
	}

	p.notify(Notice{SessionID: sess.ID, Text: result.ResponseText, Result: result})
}

// fail handles the failure branch: speak the canned fallback phrase and
// surface diagnostics to the UI. No order refresh is broadcast.
func (p *Pipeline) fail(sessionID string, result backend.UtteranceResult, err error) {
	p.failures.Add(1)
	p.logger.Warn("Utterance processing failed",
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()))

	if p.gate.TryEnter(speaking.AISpeaking) {
		p.speaker.PlayPhrase(p.fallback, func(playback.Outcome) {
			p.gate.TryEnter(speaking.Idle)
		})
	} else {
		p.gate.TryEnter(speaking.Idle)
	}

	text := result.ResponseText
	if text == "" {
		text = failureText
	}
	p.notify(Notice{SessionID: sessionID, Text: text, Err: err, Result: result})
}

func (p *Pipeline) notify(n Notice) {
	if p.onNotice != nil {
		p.onNotice(n)
	}
}

// Stats reports utterance totals for diagnostics.
func (p *Pipeline) Stats() (utterances, failures, staleDiscards int64) {
	return p.utterances.Value(), p.failures.Value(), p.stale.Value()
}
