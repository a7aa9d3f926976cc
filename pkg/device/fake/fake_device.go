// Package fake provides an in-memory microphone for tests and the simulator.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grubvoice/station-go/pkg/audio"
	"github.com/grubvoice/station-go/pkg/audio/wav"
	"github.com/grubvoice/station-go/pkg/device"
)

// FakeInput is a scriptable device.Input. Each Open returns a recording that
// yields a short WAV clip of silence; DenyPermission scripts the
// permission-denied path.
type FakeInput struct {
	mu sync.Mutex

	// DenyPermission makes Open fail with device.ErrPermissionDenied.
	DenyPermission bool

	// ClipDuration is the length of the produced clip (default 500ms).
	ClipDuration time.Duration

	opens    int
	releases int
	live     bool
}

// New creates a fake input device.
func New() *FakeInput {
	return &FakeInput{}
}

// Open implements device.Input.
func (f *FakeInput) Open(ctx context.Context) (device.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DenyPermission {
		return nil, device.ErrPermissionDenied
	}
	if f.live {
		return nil, fmt.Errorf("fake device already recording")
	}

	f.opens++
	f.live = true

	duration := f.ClipDuration
	if duration == 0 {
		duration = 500 * time.Millisecond
	}
	return &fakeRecording{owner: f, duration: duration}, nil
}

// Opens reports how many recordings were started.
func (f *FakeInput) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// Releases reports how many recordings were released (stopped or aborted).
func (f *FakeInput) Releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

// Live reports whether a recording currently holds the device.
func (f *FakeInput) Live() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

func (f *FakeInput) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live {
		f.live = false
		f.releases++
	}
}

type fakeRecording struct {
	owner    *FakeInput
	duration time.Duration
	once     sync.Once
}

// Stop implements device.Recording, producing a WAV clip of silence.
func (r *fakeRecording) Stop() (*audio.Clip, error) {
	var clip *audio.Clip
	r.once.Do(func() {
		const sampleRate = 16000
		w := wav.NewWriter(sampleRate, 1, 16)
		samples := make([]int16, int(float64(sampleRate)*r.duration.Seconds()))
		w.WriteSamples(samples)

		clip = &audio.Clip{
			Data:       w.Bytes(),
			MIMEType:   "audio/wav",
			Duration:   r.duration,
			CapturedAt: time.Now(),
		}
		r.owner.release()
	})
	return clip, nil
}

// Abort implements device.Recording.
func (r *fakeRecording) Abort() {
	r.once.Do(func() {
		r.owner.release()
	})
}
