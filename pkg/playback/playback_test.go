package playback

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/grubvoice/station-go/pkg/phrase"
	playerfake "github.com/grubvoice/station-go/pkg/playback/fake"
)

func newController(t *testing.T, player Player) *Controller {
	t.Helper()
	c, err := New(Config{
		Player:  player,
		Phrases: phrase.Source{Dir: "testdata/phrases"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
		return Outcome{}
	}
}

func TestController_New_RequiresPlayer(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error for missing player")
	}
}

func TestController_CompletesOnNaturalEnd(t *testing.T) {
	is := is.New(t)
	player := playerfake.New()
	c := newController(t, player)

	done := make(chan Outcome, 1)
	c.Play("https://cdn.example.com/resp.mp3", func(out Outcome) { done <- out })

	out := waitOutcome(t, done)
	is.NoErr(out.Err)
	is.True(!out.Stopped)
	is.Equal(out.Source, "https://cdn.example.com/resp.mp3")
	is.Equal(player.Played(), []string{"https://cdn.example.com/resp.mp3"})
}

func TestController_CompletesExactlyOnceOnImmediateError(t *testing.T) {
	is := is.New(t)
	player := playerfake.New()
	player.FailSources = map[string]bool{"bad://url": true}
	c := newController(t, player)

	var calls atomic.Int32
	done := make(chan Outcome, 1)
	c.Play("bad://url", func(out Outcome) {
		calls.Add(1)
		done <- out
	})

	out := waitOutcome(t, done)
	is.True(out.Err != nil)
	is.True(!out.Stopped)

	// Give any duplicate callback a chance to fire.
	time.Sleep(50 * time.Millisecond)
	is.Equal(calls.Load(), int32(1))
}

func TestController_StopCompletesWithStopped(t *testing.T) {
	is := is.New(t)
	player := playerfake.New()
	player.Block = make(chan struct{})
	c := newController(t, player)

	done := make(chan Outcome, 1)
	c.Play("fake://long", func(out Outcome) { done <- out })

	// Let the playback goroutine reach the player.
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	out := waitOutcome(t, done)
	is.True(out.Stopped)
	is.NoErr(out.Err)
	is.True(!c.Playing())
}

func TestController_StopWithoutPlayback(t *testing.T) {
	c := newController(t, playerfake.New())
	c.Stop() // no-op, must not panic
}

func TestController_SecondPlayStopsFirst(t *testing.T) {
	is := is.New(t)
	player := playerfake.New()
	player.Block = make(chan struct{})
	c := newController(t, player)

	first := make(chan Outcome, 1)
	c.Play("fake://one", func(out Outcome) { first <- out })
	time.Sleep(20 * time.Millisecond)

	second := make(chan Outcome, 1)
	c.Play("fake://two", func(out Outcome) { second <- out })

	out := waitOutcome(t, first)
	is.True(out.Stopped)
	is.Equal(out.Source, "fake://one")

	close(player.Block)
	out = waitOutcome(t, second)
	is.True(!out.Stopped)
	is.Equal(out.Source, "fake://two")
}

func TestController_PlayPhrase(t *testing.T) {
	is := is.New(t)
	player := playerfake.New()
	c := newController(t, player)

	done := make(chan Outcome, 1)
	c.PlayPhrase(phrase.ComeAgain, func(out Outcome) { done <- out })

	out := waitOutcome(t, done)
	is.NoErr(out.Err)
	is.Equal(out.Source, "testdata/phrases/come_again.mp3")
}

func TestController_NilCallback(t *testing.T) {
	c := newController(t, playerfake.New())
	c.Play("fake://anything", nil)
	time.Sleep(50 * time.Millisecond) // must not panic
}
