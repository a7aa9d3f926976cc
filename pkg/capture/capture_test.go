package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/matryer/is"

	devicefake "github.com/grubvoice/station-go/pkg/device/fake"
	"github.com/grubvoice/station-go/pkg/speaking"
)

func newController(t *testing.T, input *devicefake.FakeInput) (*Controller, *speaking.Gate) {
	t.Helper()
	gate := speaking.NewGate()
	c, err := New(Config{Input: input, Gate: gate}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c, gate
}

func TestController_New_Validation(t *testing.T) {
	if _, err := New(Config{Gate: speaking.NewGate()}, nil); err == nil {
		t.Fatal("expected error for missing input")
	}
	if _, err := New(Config{Input: devicefake.New()}, nil); err == nil {
		t.Fatal("expected error for missing gate")
	}
}

func TestController_BeginEnd(t *testing.T) {
	is := is.New(t)
	input := devicefake.New()
	c, gate := newController(t, input)

	ok, err := c.Begin(context.Background())
	is.NoErr(err)
	is.True(ok)
	is.Equal(gate.Current(), speaking.CustomerSpeaking)
	is.Equal(input.Opens(), 1)

	clip, err := c.End()
	is.NoErr(err)
	is.True(!clip.Empty())
	is.Equal(clip.MIMEType, "audio/wav")
	is.Equal(input.Releases(), 1)

	// End leaves the transition to Processing for the pipeline.
	is.Equal(gate.Current(), speaking.CustomerSpeaking)
}

func TestController_DoublePress(t *testing.T) {
	is := is.New(t)
	input := devicefake.New()
	c, _ := newController(t, input)

	ok, err := c.Begin(context.Background())
	is.NoErr(err)
	is.True(ok)

	// Second press while recording: refused, no second device open.
	ok, err = c.Begin(context.Background())
	is.NoErr(err)
	is.True(!ok)
	is.Equal(input.Opens(), 1)
}

func TestController_BeginWhileAISpeaking(t *testing.T) {
	is := is.New(t)
	input := devicefake.New()
	c, gate := newController(t, input)

	is.True(gate.TryEnter(speaking.AISpeaking))

	ok, err := c.Begin(context.Background())
	is.NoErr(err)
	is.True(!ok)
	is.Equal(input.Opens(), 0)
}

func TestController_PermissionDenied(t *testing.T) {
	is := is.New(t)
	input := devicefake.New()
	input.DenyPermission = true
	c, gate := newController(t, input)

	ok, err := c.Begin(context.Background())
	is.True(!ok)
	is.True(errors.Is(err, ErrPermissionDenied))

	// The gate is back to Idle: the UI may retry immediately.
	is.Equal(gate.Current(), speaking.Idle)

	input.DenyPermission = false
	ok, err = c.Begin(context.Background())
	is.NoErr(err)
	is.True(ok)
}

func TestController_EndWithoutBegin(t *testing.T) {
	is := is.New(t)
	c, _ := newController(t, devicefake.New())

	clip, err := c.End()
	is.NoErr(err)
	is.True(clip == nil)
}

func TestController_AbortReleasesDevice(t *testing.T) {
	is := is.New(t)
	input := devicefake.New()
	c, gate := newController(t, input)

	ok, err := c.Begin(context.Background())
	is.NoErr(err)
	is.True(ok)

	// Session clearing: gate forced first, then the device released.
	gate.ForceIdle()
	c.Abort()

	is.Equal(input.Releases(), 1)
	is.True(!input.Live())
	is.Equal(gate.Current(), speaking.Idle)

	// Abort is idempotent.
	c.Abort()
	is.Equal(input.Releases(), 1)
}

func TestController_Cancel(t *testing.T) {
	is := is.New(t)
	input := devicefake.New()
	c, gate := newController(t, input)

	ok, err := c.Begin(context.Background())
	is.NoErr(err)
	is.True(ok)

	c.Cancel()
	is.Equal(gate.Current(), speaking.Idle)
	is.True(!input.Live())
}
