// Package speech defines the Provider interface for text-to-speech backends.
//
// A speech provider wraps a synthesis service (e.g., a local Coqui TTS
// server) together with an audio sink that plays the result. At most one
// utterance is active per provider at any time: starting a new utterance
// cancels the one in flight, mirroring how speech-synthesis devices behave.
//
// Implementations must be safe for concurrent use.
package speech

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by Speak when no synthesis backend is available.
// Callers should surface this as a disabled affordance, never as a fatal
// error.
var ErrUnsupported = errors.New("speech: synthesis is not available")

// Provider is the abstraction over any text-to-speech backend.
type Provider interface {
	// Speak synthesises text in the given BCP-47 language and plays it on
	// the provider's audio sink. It returns once playback has finished, was
	// cancelled, or failed. If an utterance is already in flight it is
	// cancelled first; its Speak call returns context.Canceled.
	//
	// Returns ErrUnsupported when the backend is not available.
	Speak(ctx context.Context, text, language string) error

	// Cancel stops the active utterance, if any. Idempotent and safe to call
	// when nothing is playing.
	Cancel()
}
