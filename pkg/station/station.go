// Package station composes the voice-interaction orchestrator for one
// drive-thru station: the speaking gate, session lifecycle, capture,
// interaction pipeline, order feed and playback, wired together behind the
// handful of entry points the UI calls. Every entry point is non-blocking;
// outcomes arrive on the notices channel.
package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grubvoice/station-go/pkg/backend"
	"github.com/grubvoice/station-go/pkg/capture"
	"github.com/grubvoice/station-go/pkg/device"
	"github.com/grubvoice/station-go/pkg/orderfeed"
	"github.com/grubvoice/station-go/pkg/phrase"
	"github.com/grubvoice/station-go/pkg/pipeline"
	"github.com/grubvoice/station-go/pkg/playback"
	"github.com/grubvoice/station-go/pkg/session"
	"github.com/grubvoice/station-go/pkg/speaking"
)

// ErrNoSession indicates a talk action arrived with no customer session
// live. The UI should prompt for "New Car" first.
var ErrNoSession = errors.New("no live session")

// Station is one drive-thru voice station.
type Station struct {
	gate     *speaking.Gate
	sessions *session.Manager
	capture  *capture.Controller
	speaker  *playback.Controller
	pipeline *pipeline.Pipeline
	feed     *orderfeed.Feed
	client   backend.Client
	logger   *slog.Logger

	restaurantID int
	notices      chan pipeline.Notice
}

// Config holds configuration for creating a Station.
type Config struct {
	// Backend is the ordering-backend client.
	Backend backend.Client

	// Input is the microphone device.
	Input device.Input

	// Player is the speaker output.
	Player playback.Player

	// Phrases locates canned fallback audio.
	Phrases phrase.Source

	// RestaurantID identifies the restaurant this station serves.
	RestaurantID int

	// Language is the utterance language code, "en" when empty.
	Language string

	// ProcessTimeout bounds one utterance round-trip; the pipeline default
	// applies when zero.
	ProcessTimeout time.Duration
}

// New creates a fully wired station.
func New(cfg Config, logger *slog.Logger) (*Station, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend client is required")
	}
	if cfg.Input == nil {
		return nil, fmt.Errorf("input device is required")
	}
	if cfg.Player == nil {
		return nil, fmt.Errorf("player is required")
	}
	if cfg.RestaurantID == 0 {
		return nil, fmt.Errorf("restaurant id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	gate := speaking.NewGate()
	feed := orderfeed.New()

	speaker, err := playback.New(playback.Config{
		Player:  cfg.Player,
		Phrases: cfg.Phrases,
	}, logger)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(session.Config{
		Client: cfg.Backend,
		Gate:   gate,
	}, logger)
	if err != nil {
		return nil, err
	}

	cap, err := capture.New(capture.Config{
		Input: cfg.Input,
		Gate:  gate,
	}, logger)
	if err != nil {
		return nil, err
	}

	s := &Station{
		gate:         gate,
		sessions:     sessions,
		capture:      cap,
		speaker:      speaker,
		feed:         feed,
		client:       cfg.Backend,
		logger:       logger,
		restaurantID: cfg.RestaurantID,
		notices:      make(chan pipeline.Notice, 16),
	}

	pipe, err := pipeline.New(pipeline.Config{
		Client:   cfg.Backend,
		Gate:     gate,
		Sessions: sessions,
		Speaker:  speaker,
		Feed:     feed,
		Timeout:  cfg.ProcessTimeout,
		Language: cfg.Language,
		OnNotice: s.pushNotice,
	}, logger)
	if err != nil {
		return nil, err
	}
	s.pipeline = pipe

	// A session reset must release whatever the outgoing customer still
	// holds: the microphone and the speaker.
	sessions.OnReset(cap.Abort)
	sessions.OnReset(speaker.Stop)

	return s, nil
}

// NewCar starts a session for an arriving customer and plays the greeting.
func (s *Station) NewCar(ctx context.Context) error {
	_, greetingURL, err := s.sessions.Start(ctx, s.restaurantID)
	if err != nil {
		return err
	}

	if greetingURL != "" && s.gate.TryEnter(speaking.AISpeaking) {
		s.speaker.Play(greetingURL, func(playback.Outcome) {
			s.gate.TryEnter(speaking.Idle)
		})
	}
	return nil
}

// NextCar ends the current session: the gate is forced idle, any capture or
// playback is cut, and the in-flight utterance (if any) becomes stale.
func (s *Station) NextCar(ctx context.Context) error {
	return s.sessions.End(ctx)
}

// PressTalk begins capturing the customer's utterance. It returns false with
// no error when the gate refuses (double press, AI speaking, processing).
func (s *Station) PressTalk(ctx context.Context) (bool, error) {
	if s.sessions.Current() == nil {
		return false, ErrNoSession
	}
	return s.capture.Begin(ctx)
}

// ReleaseTalk finishes the capture and submits the clip. A release without a
// live capture, or after the session ended mid-capture, is a no-op.
func (s *Station) ReleaseTalk(ctx context.Context) error {
	sess := s.sessions.Current()
	if sess == nil {
		s.capture.Cancel()
		return nil
	}

	clip, err := s.capture.End()
	if err != nil {
		return err
	}
	if clip == nil {
		return nil
	}
	return s.pipeline.Submit(ctx, clip, sess)
}

// State returns the current speaking state.
func (s *Station) State() speaking.State {
	return s.gate.Current()
}

// Session returns the live session, nil between customers.
func (s *Station) Session() *session.Session {
	return s.sessions.Current()
}

// SessionID returns the live session id, "" between customers. The order
// display bridge uses this to fetch the current order.
func (s *Station) SessionID() string {
	if sess := s.sessions.Current(); sess != nil {
		return sess.ID
	}
	return ""
}

// Notices delivers utterance outcomes to the UI. Slow consumers lose oldest
// notices rather than stalling the pipeline.
func (s *Station) Notices() <-chan pipeline.Notice {
	return s.notices
}

// OrderFeed exposes the refresh feed for display subscribers.
func (s *Station) OrderFeed() *orderfeed.Feed {
	return s.feed
}

// Gate exposes the speaking gate for diagnostics.
func (s *Station) Gate() *speaking.Gate {
	return s.gate
}

// Close ends any live session and releases devices.
func (s *Station) Close(ctx context.Context) error {
	return s.sessions.End(ctx)
}

func (s *Station) pushNotice(n pipeline.Notice) {
	select {
	case s.notices <- n:
	default:
		select {
		case <-s.notices:
		default:
		}
		select {
		case s.notices <- n:
		default:
		}
		s.logger.Debug("Notice dropped for slow consumer")
	}
}
