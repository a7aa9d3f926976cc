// Package speaking implements the shared speaking-state machine for a
// drive-thru station. Exactly one of Idle, CustomerSpeaking, Processing or
// AISpeaking holds at any instant; every component that touches the
// microphone, the network or the speaker must pass through the gate's
// TryEnter guard before acting.
package speaking

import (
	"expvar"
	"fmt"
	"sync"
)

// State is the station's current speaker.
type State int32

const (
	Idle State = iota
	CustomerSpeaking
	Processing
	AISpeaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case CustomerSpeaking:
		return "CustomerSpeaking"
	case Processing:
		return "Processing"
	case AISpeaking:
		return "AISpeaking"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// allowedEdges enumerates every permitted transition. Anything not listed is
// refused by TryEnter; ForceIdle is the only way across.
//
// Idle→AISpeaking exists solely for greeting playback on session start, where
// no customer utterance precedes the AI speaking.
// CustomerSpeaking→Idle is the capture rollback edge: device-open failure or
// an empty clip must leave the station exactly where begin() found it.
var allowedEdges = map[State][]State{
	Idle:             {CustomerSpeaking, AISpeaking},
	CustomerSpeaking: {Processing, Idle},
	Processing:       {AISpeaking, Idle},
	AISpeaking:       {Idle},
}

// Gate is the single owner of the speaking state. All transitions are
// serialized through its mutex; callers treat a false return from TryEnter as
// "abandon this action", never as an error.
type Gate struct {
	mu      sync.Mutex
	current State

	transitions *expvar.Map
	forced      *expvar.Int
}

// NewGate creates a gate starting in Idle.
func NewGate() *Gate {
	transitions := &expvar.Map{}
	transitions.Init()
	return &Gate{
		current:     Idle,
		transitions: transitions,
		forced:      &expvar.Int{},
	}
}

// Current returns the state at the moment of the call. Callers that act on
// the answer must still re-check through TryEnter; the state may move between
// the read and the action.
func (g *Gate) Current() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// TryEnter attempts the transition from the current state to target. It
// succeeds only along a permitted edge and returns false otherwise, leaving
// the state untouched. A second press-to-talk while already CustomerSpeaking,
// or a playback request while a capture is live, simply fails here.
func (g *Gate) TryEnter(target State) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, next := range allowedEdges[g.current] {
		if next == target {
			g.record(g.current, target)
			g.current = target
			return true
		}
	}
	return false
}

// ForceIdle cuts across the edge table and always lands in Idle. Reserved for
// session clearing: it is the only transition that may interrupt a live
// capture or playback.
func (g *Gate) ForceIdle() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current != Idle {
		g.record(g.current, Idle)
		g.forced.Add(1)
	}
	g.current = Idle
}

// record bumps the expvar counter for one transition. Caller holds g.mu.
func (g *Gate) record(from, to State) {
	key := fmt.Sprintf("%s_to_%s", from, to)
	if counter := g.transitions.Get(key); counter != nil {
		counter.(*expvar.Int).Add(1)
	} else {
		c := &expvar.Int{}
		c.Set(1)
		g.transitions.Set(key, c)
	}
}

// Transitions exposes the transition counters for diagnostics.
func (g *Gate) Transitions() *expvar.Map {
	return g.transitions
}

// ForcedResets reports how many times ForceIdle interrupted a non-idle state.
func (g *Gate) ForcedResets() int64 {
	return g.forced.Value()
}
