// Package recognizer defines the Provider interface for speech-capture backends.
//
// A recognizer wraps a speech-to-text capture device (e.g., a local
// whisper-server instance fed from a microphone source) and exposes a uniform
// event-driven interface. The central abstraction is SessionHandle: once a
// capture is started, the device emits Event values — zero or more interim
// results, then either a final result or an error — on a single ordered
// channel, and the channel is closed when the capture ends.
//
// A single channel (rather than separate interim/final streams) is
// deliberate: consumers depend on receiving events in emission order, and the
// device contract guarantees single-threaded dispatch per session.
//
// Implementations must be safe for concurrent use.
package recognizer

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by Provider.Start when no speech-capture device
// is available (no backend configured, or the backend cannot capture audio on
// this host). Callers should surface this as a disabled affordance rather
// than an error condition.
var ErrUnsupported = errors.New("recognizer: speech capture is not available")

// ErrorCode is the fixed taxonomy of capture failures a device may report.
// The values mirror the error codes of common speech-capture APIs so that
// backends can map their native failures onto a stable set.
type ErrorCode string

const (
	// ErrorNoSpeech means the capture window elapsed without detectable speech.
	ErrorNoSpeech ErrorCode = "no-speech"

	// ErrorAudioCapture means the audio input device could not be opened or read.
	ErrorAudioCapture ErrorCode = "audio-capture"

	// ErrorNotAllowed means permission to capture audio was denied.
	ErrorNotAllowed ErrorCode = "not-allowed"

	// ErrorNetwork means the transcription backend could not be reached.
	ErrorNetwork ErrorCode = "network"

	// ErrorLanguageNotSupported means the requested language tag is not
	// supported by the backend.
	ErrorLanguageNotSupported ErrorCode = "language-not-supported"

	// ErrorAborted means the capture was cancelled before any result.
	ErrorAborted ErrorCode = "aborted"

	// ErrorOther covers failures outside the fixed taxonomy.
	ErrorOther ErrorCode = "other"
)

// Config describes a single capture session.
type Config struct {
	// Language is the BCP-47 language tag for recognition (e.g., "ru-RU").
	// An empty string lets the backend use its configured default.
	Language string

	// MaxAlternatives is the number of candidate transcripts the device may
	// produce per result. Implementations treat values < 1 as 1; only the top
	// alternative is ever reported in an Event.
	MaxAlternatives int

	// InterimResults requests low-latency non-final results while the
	// utterance is still in progress. Backends that cannot produce interims
	// simply emit the final result alone.
	InterimResults bool
}

// EventKind discriminates the variants of Event.
type EventKind int

const (
	// EventResult carries a transcript (interim or final).
	EventResult EventKind = iota

	// EventError carries an ErrorCode from the fixed taxonomy. An error ends
	// the capture; an EventEnd follows before the channel closes.
	EventError

	// EventEnd signals that the device has confirmed the end of the capture.
	// It is always the last event before the channel closes.
	EventEnd
)

// Event is a single notification from a capture session. Exactly one variant
// is populated, selected by Kind.
type Event struct {
	Kind EventKind

	// Transcript is the recognised text. Valid when Kind == EventResult.
	Transcript string

	// Confidence is the device-reported certainty in [0, 1] for Transcript.
	// Zero when the device does not report confidence.
	Confidence float64

	// Final marks an authoritative result: the device has committed to
	// Transcript and will emit no further results for this capture.
	Final bool

	// Code is the failure classification. Valid when Kind == EventError.
	Code ErrorCode
}

// SessionHandle represents one active capture. It is an interface so that
// tests can script device behaviour without audio hardware.
//
// Callers must call Close when the session is no longer needed. All methods
// are safe for concurrent use.
type SessionHandle interface {
	// Events returns the ordered event stream for this capture. The channel
	// is closed after the final EventEnd. Events for one session are never
	// delivered concurrently.
	Events() <-chan Event

	// Stop requests the device to end the capture. Any audio already
	// captured is still transcribed and delivered as a final result where
	// possible. Stop is idempotent; calling it after the session has ended
	// is a no-op and returns nil.
	Stop() error

	// Close releases all session resources. After Close returns the Events
	// channel is closed. Calling Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any speech-capture backend.
type Provider interface {
	// Start opens a new capture session. The device begins capturing
	// immediately and the returned handle's Events channel delivers results.
	//
	// Returns ErrUnsupported when no capture device is available, or another
	// error when the session cannot be established.
	Start(ctx context.Context, cfg Config) (SessionHandle, error)
}
