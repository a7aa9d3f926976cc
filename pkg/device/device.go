// Package device is the station's boundary with platform audio input. The
// core only touches the microphone through these interfaces; real platforms
// and the test fake plug in behind them.
package device

import (
	"context"
	"errors"

	"github.com/grubvoice/station-go/pkg/audio"
)

// ErrPermissionDenied indicates the microphone is unavailable to the station.
// Recoverable: the UI surfaces it with a retry affordance.
var ErrPermissionDenied = errors.New("microphone permission denied")

// Input is an audio input device. Open acquires the device and starts
// buffering; the returned Recording owns the device until Stop or Abort.
// At most one Recording is live per Input.
type Input interface {
	Open(ctx context.Context) (Recording, error)
}

// Recording is one in-progress capture. Exactly one of Stop or Abort must be
// called on every Recording; both release the device.
type Recording interface {
	// Stop ends the capture and returns the finished clip.
	Stop() (*audio.Clip, error)

	// Abort ends the capture discarding any buffered audio. Used on forced
	// session termination. Idempotent.
	Abort()
}
