// Package capture implements the speech-capture session state machine.
//
// A Session wraps a recognizer.Provider and tracks one capture at a time
// through the states idle → listening → idle. Device notifications (interim
// results, the final result, errors, end-of-capture) arrive on the device's
// event channel and are consumed by a single goroutine per capture, so the
// machine observes them in emission order.
//
// Transitions:
//
//   - Start: idle → listening. A no-op while already listening; fails with
//     recognizer.ErrUnsupported when no device is available.
//   - final result: listening → idle, transcript and confidence frozen.
//   - device error: listening → idle, a displayable message is recorded.
//   - Stop: requests the device to end the capture; the session goes idle
//     once the device confirms. Idempotent from any state.
//   - timeout: a timer armed by Start calls Stop automatically if the
//     session is still listening when it fires.
//
// At most one capture is active per Session; starting while listening is
// rejected (silently), never queued.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anvilane/slovoday/pkg/provider/recognizer"
)

// State is the session's lifecycle position.
type State int

const (
	// StateIdle means no capture is active. Transcript, confidence, and the
	// error message hold whatever the last capture left behind.
	StateIdle State = iota

	// StateListening means a capture is active and device events are being
	// consumed.
	StateListening
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is the capture state machine. All methods are safe for concurrent
// use. The zero value is not usable; construct with New.
type Session struct {
	provider recognizer.Provider

	mu         sync.Mutex
	state      State
	transcript string
	confidence float64
	message    string
	code       recognizer.ErrorCode

	handle recognizer.SessionHandle
	timer  *time.Timer

	// gen increments on every Start so events from a superseded capture are
	// discarded instead of mutating the new one.
	gen uint64
}

// New creates a Session over the given capture device. provider may be nil,
// in which case every Start fails with recognizer.ErrUnsupported.
func New(provider recognizer.Provider) *Session {
	return &Session{provider: provider}
}

// Supported reports whether a capture device is available at all.
func (s *Session) Supported() bool { return s.provider != nil }

// Start begins a capture in the given BCP-47 language. A timeout greater
// than zero arms a timer that stops the capture automatically if it is still
// listening when the timer fires.
//
// Starting while already listening is a no-op and returns nil. When no
// device is available Start returns recognizer.ErrUnsupported.
func (s *Session) Start(ctx context.Context, language string, timeout time.Duration) error {
	if s.provider == nil {
		return recognizer.ErrUnsupported
	}

	s.mu.Lock()
	if s.state == StateListening {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen := s.gen
	s.transcript = ""
	s.confidence = 0
	s.message = ""
	s.code = ""
	s.mu.Unlock()

	handle, err := s.provider.Start(ctx, recognizer.Config{
		Language:        language,
		MaxAlternatives: 1,
		InterimResults:  true,
	})
	if err != nil {
		if errors.Is(err, recognizer.ErrUnsupported) {
			return err
		}
		s.mu.Lock()
		if s.gen == gen {
			s.message = "Speech capture could not be started. Please try again."
		}
		s.mu.Unlock()
		return fmt.Errorf("capture: start: %w", err)
	}

	s.mu.Lock()
	// Start may race with another Start; the generation check keeps only the
	// first winner.
	if s.gen != gen {
		s.mu.Unlock()
		handle.Stop() //nolint:errcheck // superseded capture, best effort
		handle.Close()
		return nil
	}
	s.state = StateListening
	s.handle = handle
	if timeout > 0 {
		s.timer = time.AfterFunc(timeout, func() { s.stopGen(gen) })
	}
	s.mu.Unlock()

	go s.consume(gen, handle)
	return nil
}

// Stop requests the device to end the active capture. The session transitions
// to idle once the device confirms the end of the stream. Calling Stop while
// idle is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.stopGen(gen)
}

// stopGen stops the capture identified by gen, if it is still the active one.
// Used by both Stop and the timeout timer so a timer from an old capture can
// never stop a new one.
func (s *Session) stopGen(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateListening {
		s.mu.Unlock()
		return
	}
	handle := s.handle
	s.mu.Unlock()

	if err := handle.Stop(); err != nil {
		slog.Warn("capture: device stop failed", "err", err)
	}
}

// consume drains the device event stream for one capture. It is the only
// writer of transcript/confidence while the capture is live.
func (s *Session) consume(gen uint64, handle recognizer.SessionHandle) {
	for ev := range handle.Events() {
		switch ev.Kind {
		case recognizer.EventResult:
			s.mu.Lock()
			if s.gen == gen && s.state == StateListening {
				// Last write wins; no result history is retained.
				s.transcript = ev.Transcript
				s.confidence = ev.Confidence
				if ev.Final {
					s.toIdleLocked()
				}
			}
			s.mu.Unlock()

		case recognizer.EventError:
			s.mu.Lock()
			if s.gen == gen && s.state == StateListening {
				s.message = MessageFor(ev.Code)
				s.code = ev.Code
				s.toIdleLocked()
			}
			s.mu.Unlock()

		case recognizer.EventEnd:
			s.mu.Lock()
			if s.gen == gen {
				s.toIdleLocked()
			}
			s.mu.Unlock()
		}
	}

	// Stream closed without an explicit end event: make sure the machine is
	// not stuck in listening.
	s.mu.Lock()
	if s.gen == gen {
		s.toIdleLocked()
	}
	s.mu.Unlock()

	if err := handle.Close(); err != nil {
		slog.Warn("capture: device close failed", "err", err)
	}
}

// toIdleLocked transitions to idle and cancels the timeout timer. Callers
// must hold s.mu and have verified the generation.
func (s *Session) toIdleLocked() {
	if s.state != StateListening {
		return
	}
	s.state = StateIdle
	s.handle = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns the most recent transcript and its confidence. While
// listening these reflect the latest interim result; after a final result
// they are frozen until the next Start.
func (s *Session) Transcript() (string, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript, s.confidence
}

// Message returns the displayable error message from the last capture, or ""
// when the last capture ended without error.
func (s *Session) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// ErrorCode returns the device error code from the last capture, or "" when
// it ended without a device error.
func (s *Session) ErrorCode() recognizer.ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code
}

// Reset clears the transcript, confidence, and error message. It does not
// affect an active capture.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = ""
	s.confidence = 0
	s.message = ""
	s.code = ""
}

// MessageFor maps a device error code to the user-facing message shown in
// the practice panel.
func MessageFor(code recognizer.ErrorCode) string {
	switch code {
	case recognizer.ErrorNoSpeech:
		return "No speech was detected. Try speaking louder."
	case recognizer.ErrorAudioCapture:
		return "The microphone is not accessible. Check the device permissions."
	case recognizer.ErrorNotAllowed:
		return "Microphone permission was denied."
	case recognizer.ErrorNetwork:
		return "Network error. Check your connection."
	case recognizer.ErrorLanguageNotSupported:
		return "That language is not supported."
	default:
		return "Speech recognition failed. Please try again."
	}
}
