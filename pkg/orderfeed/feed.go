// Package orderfeed broadcasts order-refresh tokens. The interaction pipeline
// bumps the feed whenever the backend reports an order change; the order
// display subscribes and re-fetches on every token it observes. The token is
// a monotonic counter, not order data: the authoritative order always comes
// from the backend.
package orderfeed

import "sync"

// Feed is a broadcast counter. Broadcast never blocks: each subscriber has a
// one-slot mailbox and a slow subscriber coalesces intermediate tokens,
// observing only the latest.
type Feed struct {
	mu    sync.Mutex
	token uint64
	subs  map[int]chan uint64
	next  int
}

// New creates an empty feed with token 0.
func New() *Feed {
	return &Feed{subs: make(map[int]chan uint64)}
}

// Token returns the latest broadcast token.
func (f *Feed) Token() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

// Broadcast increments the token and notifies every subscriber. It returns
// the new token.
func (f *Feed) Broadcast() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.token++
	for _, ch := range f.subs {
		// Replace a pending token rather than blocking.
		select {
		case ch <- f.token:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- f.token:
			default:
			}
		}
	}
	return f.token
}

// Subscribe registers a new subscriber and returns its token channel plus a
// cancel function. Cancel is idempotent and closes the channel.
func (f *Feed) Subscribe() (<-chan uint64, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.next
	f.next++
	ch := make(chan uint64, 1)
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}
