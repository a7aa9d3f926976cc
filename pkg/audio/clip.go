// Package audio defines the clip type exchanged between capture, the
// interaction pipeline and the ordering backend.
package audio

import "time"

// Clip is one finished customer utterance: the encoded bytes handed to the
// backend plus enough metadata to describe them. Clips are immutable once
// produced by the capture controller.
type Clip struct {
	// Data is the encoded audio payload.
	Data []byte

	// MIMEType describes Data, e.g. "audio/wav" or "audio/webm".
	MIMEType string

	// Duration is the captured length, zero when the device cannot report it.
	Duration time.Duration

	// CapturedAt is when the capture ended.
	CapturedAt time.Time
}

// Empty reports whether the clip carries no audio worth submitting.
func (c *Clip) Empty() bool {
	return c == nil || len(c.Data) == 0
}
