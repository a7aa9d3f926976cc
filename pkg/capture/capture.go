// Package capture records one customer utterance at a time. The controller
// holds the microphone only between Begin and End (or Abort), entering the
// speaking gate on the way in and releasing the device on every exit path,
// including forced session termination.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/grubvoice/station-go/pkg/audio"
	"github.com/grubvoice/station-go/pkg/device"
	"github.com/grubvoice/station-go/pkg/speaking"
)

// ErrPermissionDenied mirrors the device error at the controller boundary so
// callers need not import the device package to classify it.
var ErrPermissionDenied = device.ErrPermissionDenied

// Controller drives microphone capture for a station.
type Controller struct {
	input  device.Input
	gate   *speaking.Gate
	logger *slog.Logger

	mu        sync.Mutex
	recording device.Recording
}

// Config holds configuration for creating a Controller.
type Config struct {
	Input device.Input
	Gate  *speaking.Gate
}

// New creates a capture controller.
func New(cfg Config, logger *slog.Logger) (*Controller, error) {
	if cfg.Input == nil {
		return nil, fmt.Errorf("input device is required")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("speaking gate is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{input: cfg.Input, gate: cfg.Gate, logger: logger}, nil
}

// Begin starts recording. It returns (false, nil) when the gate refuses entry
// (double press, AI speaking, processing in flight): not an error, the caller
// abandons the press. On permission failure it returns ErrPermissionDenied
// with the gate back where Begin found it, so the UI can offer a retry.
func (c *Controller) Begin(ctx context.Context) (bool, error) {
	if !c.gate.TryEnter(speaking.CustomerSpeaking) {
		c.logger.Debug("Capture refused", slog.String("state", c.gate.Current().String()))
		return false, nil
	}

	rec, err := c.input.Open(ctx)
	if err != nil {
		// Roll the gate back so a denied microphone leaves no state residue.
		c.gate.TryEnter(speaking.Idle)
		if errors.Is(err, device.ErrPermissionDenied) {
			c.logger.Warn("Microphone permission denied")
			return false, ErrPermissionDenied
		}
		return false, fmt.Errorf("opening input device: %w", err)
	}

	c.mu.Lock()
	c.recording = rec
	c.mu.Unlock()

	c.logger.Info("Capture started")
	return true, nil
}

// End stops recording and returns the finished clip. It does not change the
// speaking state; the interaction pipeline owns the next transition and must
// be invoked with the clip. Returns nil when no capture is live.
func (c *Controller) End() (*audio.Clip, error) {
	c.mu.Lock()
	rec := c.recording
	c.recording = nil
	c.mu.Unlock()

	if rec == nil {
		return nil, nil
	}

	clip, err := rec.Stop()
	if err != nil {
		// Device is released by Stop regardless; hand the gate back to Idle
		// since there is nothing to submit.
		c.gate.TryEnter(speaking.Idle)
		return nil, fmt.Errorf("stopping capture: %w", err)
	}

	c.logger.Info("Capture finished",
		slog.Duration("duration", clip.Duration),
		slog.Int("bytes", len(clip.Data)))
	return clip, nil
}

// Cancel discards a live capture without producing a clip and returns the
// gate to Idle through the rollback edge. No-op when nothing is recording.
func (c *Controller) Cancel() {
	c.mu.Lock()
	rec := c.recording
	c.recording = nil
	c.mu.Unlock()

	if rec == nil {
		return
	}
	rec.Abort()
	c.gate.TryEnter(speaking.Idle)
	c.logger.Info("Capture cancelled")
}

// Abort releases the device without touching the speaking state. Session
// clearing calls this after ForceIdle has already cut the gate over.
func (c *Controller) Abort() {
	c.mu.Lock()
	rec := c.recording
	c.recording = nil
	c.mu.Unlock()

	if rec == nil {
		return
	}
	rec.Abort()
	c.logger.Info("Capture aborted")
}

// Recording reports whether a capture currently holds the device.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording != nil
}
