// Package phrase catalogs the canned spoken phrases a station can play
// without a backend round-trip. The pipeline's failure branch plays from this
// catalog so raw error text never reaches the customer-facing voice channel.
package phrase

import "fmt"

// Type identifies a canned phrase.
type Type string

const (
	Greeting         Type = "greeting"
	ComeAgain        Type = "come_again"
	ThankYou         Type = "thank_you"
	DidntUnderstand  Type = "didnt_understand"
	TakeYourTime     Type = "take_your_time"
	ReadyToOrder     Type = "ready_to_order"
	HowCanIHelp      Type = "how_can_i_help"
	SystemErrorRetry Type = "system_error_retry"
	DriveToWindow    Type = "drive_to_window"
)

// texts holds the spoken text for each phrase. Greeting interpolates the
// restaurant name via Text's name argument.
var texts = map[Type]string{
	Greeting:         "Welcome to %s, may I take your order?",
	ComeAgain:        "I'm sorry, I didn't catch that. Could you please repeat your order?",
	ThankYou:         "Thank you! Please pull forward to the window.",
	DidntUnderstand:  "I'm sorry, I didn't understand. Could you please try again?",
	TakeYourTime:     "Take your time! Let me know when you're ready to order.",
	ReadyToOrder:     "I'm here when you're ready to order!",
	HowCanIHelp:      "What can I help you with today?",
	SystemErrorRetry: "I'm sorry, I'm having some technical difficulties. Please try again.",
	DriveToWindow:    "Drive up to the next window please!",
}

// Text returns the spoken text for a phrase. restaurantName is only used by
// phrases that mention the restaurant; pass "" to use a neutral form.
func Text(t Type, restaurantName string) string {
	text, ok := texts[t]
	if !ok {
		return ""
	}
	if t == Greeting {
		if restaurantName == "" {
			restaurantName = "our restaurant"
		}
		return fmt.Sprintf(text, restaurantName)
	}
	return text
}

// Known reports whether t names a cataloged phrase.
func Known(t Type) bool {
	_, ok := texts[t]
	return ok
}

// Source is the playback source for a canned phrase: a local asset path or
// URL resolvable without the backend. Assets ship with the station install.
type Source struct {
	// Dir is the directory holding one audio file per phrase type.
	Dir string

	// Format is the file extension, "mp3" unless overridden.
	Format string
}

// Resolve returns the playable location for a phrase.
func (s Source) Resolve(t Type) string {
	format := s.Format
	if format == "" {
		format = "mp3"
	}
	return fmt.Sprintf("%s/%s.%s", s.Dir, t, format)
}
