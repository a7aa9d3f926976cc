package orderfeed

import (
	"testing"

	"github.com/matryer/is"
)

func TestFeed_TokensIncrease(t *testing.T) {
	is := is.New(t)
	f := New()

	is.Equal(f.Token(), uint64(0))
	is.Equal(f.Broadcast(), uint64(1))
	is.Equal(f.Broadcast(), uint64(2))
	is.Equal(f.Token(), uint64(2))
}

func TestFeed_SubscriberObservesToken(t *testing.T) {
	is := is.New(t)
	f := New()

	ch, cancel := f.Subscribe()
	defer cancel()

	f.Broadcast()
	is.Equal(<-ch, uint64(1))
}

func TestFeed_SlowSubscriberCoalesces(t *testing.T) {
	is := is.New(t)
	f := New()

	ch, cancel := f.Subscribe()
	defer cancel()

	// Three broadcasts without a read must not block and must leave only the
	// latest token in the mailbox.
	f.Broadcast()
	f.Broadcast()
	f.Broadcast()

	is.Equal(<-ch, uint64(3))
	select {
	case tok := <-ch:
		t.Fatalf("unexpected extra token %d", tok)
	default:
	}
}

func TestFeed_CancelIdempotent(t *testing.T) {
	f := New()

	ch, cancel := f.Subscribe()
	cancel()
	cancel()

	// Channel is closed; broadcast after cancel must not panic.
	f.Broadcast()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
}

func TestFeed_MultipleSubscribers(t *testing.T) {
	is := is.New(t)
	f := New()

	a, cancelA := f.Subscribe()
	b, cancelB := f.Subscribe()
	defer cancelA()
	defer cancelB()

	f.Broadcast()
	is.Equal(<-a, uint64(1))
	is.Equal(<-b, uint64(1))
}
