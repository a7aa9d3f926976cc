// Package fake provides an in-memory ordering backend for tests and the
// station simulator.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/grubvoice/station-go/pkg/audio"
	"github.com/grubvoice/station-go/pkg/backend"
)

// FakeBackend is a scriptable backend.Client. Zero value behavior: every
// utterance succeeds with a spoken response, audio URL and an order change.
// Tests script failures and latency through the exported fields.
type FakeBackend struct {
	mu sync.Mutex

	// FailCreate makes CreateSession fail with ErrSessionStart.
	FailCreate bool

	// FailClear makes ClearSession fail with ErrSessionClear.
	FailClear bool

	// FailProcess makes ProcessUtterance fail with ErrProcessing.
	FailProcess bool

	// ProcessDelay stalls ProcessUtterance; combined with a short caller
	// deadline it simulates a timeout.
	ProcessDelay time.Duration

	// Result overrides the default successful utterance result when set.
	Result *backend.UtteranceResult

	// Release, when non-nil, gates ProcessUtterance: the call blocks until
	// the channel is closed (or the context ends). Tests use it to end a
	// session while an utterance is in flight.
	Release chan struct{}

	sessions    map[string]int // session id -> restaurant id
	orders      map[string]backend.OrderView
	processed   int
	cleared     int
	lastSession string
}

// New creates a fake backend.
func New() *FakeBackend {
	return &FakeBackend{
		sessions: make(map[string]int),
		orders:   make(map[string]backend.OrderView),
	}
}

// CreateSession implements backend.Client.
func (f *FakeBackend) CreateSession(ctx context.Context, restaurantID int) (backend.SessionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailCreate {
		return backend.SessionGrant{}, fmt.Errorf("%w: scripted failure", backend.ErrSessionStart)
	}

	id := uuid.NewString()
	f.sessions[id] = restaurantID
	f.orders[id] = backend.OrderView{OrderID: uuid.NewString()}
	f.lastSession = id

	return backend.SessionGrant{
		SessionID:        id,
		GreetingAudioURL: "fake://greeting/" + id,
	}, nil
}

// ClearSession implements backend.Client.
func (f *FakeBackend) ClearSession(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cleared++
	if f.FailClear {
		return fmt.Errorf("%w: scripted failure", backend.ErrSessionClear)
	}
	delete(f.sessions, sessionID)
	delete(f.orders, sessionID)
	return nil
}

// ProcessUtterance implements backend.Client.
func (f *FakeBackend) ProcessUtterance(ctx context.Context, clip *audio.Clip, sessionID string, restaurantID int, language string) (backend.UtteranceResult, error) {
	f.mu.Lock()
	delay := f.ProcessDelay
	release := f.Release
	fail := f.FailProcess
	scripted := f.Result
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return backend.UtteranceResult{}, fmt.Errorf("%w: %v", backend.ErrProcessing, ctx.Err())
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return backend.UtteranceResult{}, fmt.Errorf("%w: %v", backend.ErrProcessing, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed++

	if fail {
		return backend.UtteranceResult{}, fmt.Errorf("%w: scripted failure", backend.ErrProcessing)
	}
	if scripted != nil {
		return *scripted, nil
	}

	// Default: a successful order-changing response.
	order := f.orders[sessionID]
	order.Items = append(order.Items, backend.OrderItem{Name: "Cheeseburger", Quantity: 1, Price: 5.99})
	order.Total += 5.99
	f.orders[sessionID] = order

	return backend.UtteranceResult{
		Success:      true,
		ResponseText: "Added that to your order. Would you like anything else?",
		AudioURL:     "fake://response/" + uuid.NewString(),
		OrderChanged: true,
	}, nil
}

// FetchCurrentOrder implements backend.Client.
func (f *FakeBackend) FetchCurrentOrder(ctx context.Context, sessionID string) (backend.OrderView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[sessionID], nil
}

// Processed reports how many utterances reached the backend.
func (f *FakeBackend) Processed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed
}

// Cleared reports how many clear calls were made.
func (f *FakeBackend) Cleared() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

// LastSessionID returns the most recently granted session id.
func (f *FakeBackend) LastSessionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSession
}
