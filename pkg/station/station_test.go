package station

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"

	backendfake "github.com/grubvoice/station-go/pkg/backend/fake"
	devicefake "github.com/grubvoice/station-go/pkg/device/fake"
	"github.com/grubvoice/station-go/pkg/phrase"
	playerfake "github.com/grubvoice/station-go/pkg/playback/fake"
	"github.com/grubvoice/station-go/pkg/speaking"
)

type fixture struct {
	station *Station
	backend *backendfake.FakeBackend
	input   *devicefake.FakeInput
	player  *playerfake.FakePlayer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fb := backendfake.New()
	input := devicefake.New()
	player := playerfake.New()

	s, err := New(Config{
		Backend:      fb,
		Input:        input,
		Player:       player,
		Phrases:      phrase.Source{Dir: "testdata/phrases"},
		RestaurantID: 7,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{station: s, backend: fb, input: input, player: player}
}

func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for f.station.State() != speaking.Idle {
		select {
		case <-deadline:
			t.Fatalf("station never returned to Idle, stuck in %s", f.station.State())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (f *fixture) speakOnce(t *testing.T) {
	t.Helper()
	ok, err := f.station.PressTalk(context.Background())
	if err != nil || !ok {
		t.Fatalf("PressTalk: ok=%v err=%v", ok, err)
	}
	if err := f.station.ReleaseTalk(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestStation_New_Validation(t *testing.T) {
	base := Config{
		Backend:      backendfake.New(),
		Input:        devicefake.New(),
		Player:       playerfake.New(),
		RestaurantID: 7,
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing backend", func(c *Config) { c.Backend = nil }},
		{"missing input", func(c *Config) { c.Input = nil }},
		{"missing player", func(c *Config) { c.Player = nil }},
		{"missing restaurant", func(c *Config) { c.RestaurantID = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if _, err := New(cfg, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestStation_NewCarPlaysGreeting(t *testing.T) {
	is := is.New(t)
	f := newFixture(t)

	is.NoErr(f.station.NewCar(context.Background()))
	is.True(f.station.Session() != nil)

	f.waitIdle(t)
	played := f.player.Played()
	is.Equal(len(played), 1)
	is.True(strings.HasPrefix(played[0], "fake://greeting/"))
}

func TestStation_PressTalkWithoutSession(t *testing.T) {
	is := is.New(t)
	f := newFixture(t)

	ok, err := f.station.PressTalk(context.Background())
	is.True(!ok)
	is.True(errors.Is(err, ErrNoSession))
	is.Equal(f.input.Opens(), 0)
}

func TestStation_FullUtteranceCycle(t *testing.T) {
	is := is.New(t)
	f := newFixture(t)

	is.NoErr(f.station.NewCar(context.Background()))
	f.waitIdle(t)

	f.speakOnce(t)
	f.waitIdle(t)

	// Backend saw the utterance, order refresh fired, response audio played
	// after the greeting.
	is.Equal(f.backend.Processed(), 1)
	is.Equal(f.station.OrderFeed().Token(), uint64(1))
	played := f.player.Played()
	is.Equal(len(played), 2)
	is.True(strings.HasPrefix(played[1], "fake://response/"))
	is.Equal(f.input.Opens(), 1)
	is.Equal(f.input.Releases(), 1)
}

func TestStation_DoublePress(t *testing.T) {
	is := is.New(t)
	f := newFixture(t)

	is.NoErr(f.station.NewCar(context.Background()))
	f.waitIdle(t)

	ok, err := f.station.PressTalk(context.Background())
	is.NoErr(err)
	is.True(ok)

	ok, err = f.station.PressTalk(context.Background())
	is.NoErr(err)
	is.True(!ok)
	is.Equal(f.input.Opens(), 1)

	is.NoErr(f.station.ReleaseTalk(context.Background()))
	f.waitIdle(t)
}

func TestStation_NextCarMidCaptureReleasesDevice(t *testing.T) {
	is := is.New(t)
	f := newFixture(t)

	is.NoErr(f.station.NewCar(context.Background()))
	f.waitIdle(t)

	ok, err := f.station.PressTalk(context.Background())
	is.NoErr(err)
	is.True(ok)
	is.Equal(f.station.State(), speaking.CustomerSpeaking)

	is.NoErr(f.station.NextCar(context.Background()))

	is.Equal(f.station.State(), speaking.Idle)
	is.True(f.station.Session() == nil)
	is.True(!f.input.Live())
	is.Equal(f.input.Releases(), 1)

	// A release after the reset is a harmless no-op.
	is.NoErr(f.station.ReleaseTalk(context.Background()))
	is.Equal(f.backend.Processed(), 0)
}

func TestStation_NextCarDuringProcessingSuppressesResult(t *testing.T) {
	is := is.New(t)
	f := newFixture(t)
	f.backend.Release = make(chan struct{})

	is.NoErr(f.station.NewCar(context.Background()))
	f.waitIdle(t)

	f.speakOnce(t)
	is.Equal(f.station.State(), speaking.Processing)

	is.NoErr(f.station.NextCar(context.Background()))
	is.Equal(f.station.State(), speaking.Idle)

	close(f.backend.Release)
	time.Sleep(50 * time.Millisecond)

	// The stale result neither refreshed the order nor replayed audio.
	is.Equal(f.station.State(), speaking.Idle)
	is.Equal(f.station.OrderFeed().Token(), uint64(0))
	is.Equal(len(f.player.Played()), 1) // greeting only
}

func TestStation_SessionsDoNotLeakAcrossCustomers(t *testing.T) {
	is := is.New(t)
	f := newFixture(t)

	is.NoErr(f.station.NewCar(context.Background()))
	first := f.station.SessionID()
	f.waitIdle(t)
	is.NoErr(f.station.NextCar(context.Background()))

	is.NoErr(f.station.NewCar(context.Background()))
	second := f.station.SessionID()
	f.waitIdle(t)

	is.True(first != second)
	is.True(f.station.Session().ID == second)
}

func TestStation_NoticeDelivered(t *testing.T) {
	is := is.New(t)
	f := newFixture(t)

	is.NoErr(f.station.NewCar(context.Background()))
	f.waitIdle(t)
	f.speakOnce(t)

	select {
	case n := <-f.station.Notices():
		is.NoErr(n.Err)
		is.True(n.Text != "")
		is.Equal(n.SessionID, f.station.SessionID())
	case <-time.After(2 * time.Second):
		t.Fatal("no notice delivered")
	}
}

func TestStation_Close(t *testing.T) {
	is := is.New(t)
	f := newFixture(t)

	is.NoErr(f.station.NewCar(context.Background()))
	is.NoErr(f.station.Close(context.Background()))
	is.True(f.station.Session() == nil)
	is.Equal(f.station.State(), speaking.Idle)
}
