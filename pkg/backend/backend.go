// Package backend defines the station's boundary with the AI ordering
// backend: session creation and clearing, utterance processing, and the
// current-order fetch used by the display. The station never interprets
// speech itself; everything past the audio bytes is the backend's job.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/grubvoice/station-go/pkg/audio"
)

// Sentinel errors classifying backend failures. Components wrap these so the
// UI layer can branch with errors.Is without parsing text.
var (
	// ErrSessionStart indicates createSession failed; the station stays
	// session-less.
	ErrSessionStart = errors.New("backend session create failed")

	// ErrSessionClear indicates clearSession failed; local session identity
	// is cleared regardless.
	ErrSessionClear = errors.New("backend session clear failed")

	// ErrProcessing indicates processUtterance failed or timed out; the
	// pipeline plays the fallback phrase instead of surfacing this to the
	// voice channel.
	ErrProcessing = errors.New("utterance processing failed")
)

// SessionGrant is the backend's answer to createSession.
type SessionGrant struct {
	SessionID        string
	GreetingAudioURL string
}

// UtteranceResult is the structured outcome of one processed utterance.
// Transient: the pipeline consumes it immediately and nothing persists it.
type UtteranceResult struct {
	Success      bool
	ResponseText string
	AudioURL     string
	OrderChanged bool

	// Errors carries backend validation detail for diagnostics only; it is
	// never spoken or shown to the customer.
	Errors []string

	// ProcessingTime is the backend-reported wall time for the utterance.
	ProcessingTime time.Duration
}

// OrderItem is one line of the current order as the display shows it.
type OrderItem struct {
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	Size      string   `json:"size,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
	Price     float64  `json:"price"`
}

// OrderView is the display's snapshot of the live order.
type OrderView struct {
	OrderID string      `json:"order_id"`
	Items   []OrderItem `json:"items"`
	Total   float64     `json:"total"`
}

// Client is the ordering-backend collaborator. Implementations must be safe
// for concurrent use; ProcessUtterance is called at most once per utterance
// with no client-side retry.
type Client interface {
	// CreateSession allocates a session for one customer at a restaurant.
	CreateSession(ctx context.Context, restaurantID int) (SessionGrant, error)

	// ClearSession archives server-side state for a finished session.
	ClearSession(ctx context.Context, sessionID string) error

	// ProcessUtterance submits one finished clip and returns the AI response.
	ProcessUtterance(ctx context.Context, clip *audio.Clip, sessionID string, restaurantID int, language string) (UtteranceResult, error)

	// FetchCurrentOrder returns the live order for the display.
	FetchCurrentOrder(ctx context.Context, sessionID string) (OrderView, error)
}
