// Package mock provides test doubles for the recognizer package interfaces.
//
// Use Provider to verify that the caller starts captures with the expected
// Config. Use Session to script the exact event sequence a device would emit
// and to inspect Stop/Close calls.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Start(ctx, cfg)
//	sess.Emit(recognizer.Event{Kind: recognizer.EventResult, Transcript: "книга", Final: true})
//	sess.End()
package mock

import (
	"context"
	"sync"

	"github.com/anvilane/slovoday/pkg/provider/recognizer"
)

// StartCall records a single invocation of Provider.Start.
type StartCall struct {
	// Ctx is the context passed to Start.
	Ctx context.Context
	// Cfg is the Config passed to Start.
	Cfg recognizer.Config
}

// Provider is a mock implementation of recognizer.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Start. If nil, Start returns
	// a fresh default Session.
	Session recognizer.SessionHandle

	// StartErr, if non-nil, is returned as the error from Start.
	StartErr error

	// StartCalls records every call to Start.
	StartCalls []StartCall
}

// Start records the call and returns Session, StartErr.
func (p *Provider) Start(ctx context.Context, cfg recognizer.Config) (recognizer.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = append(p.StartCalls, StartCall{Ctx: ctx, Cfg: cfg})
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// StartCallCount returns the number of Start calls. Thread-safe.
func (p *Provider) StartCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartCalls = nil
}

// Ensure Provider implements recognizer.Provider at compile time.
var _ recognizer.Provider = (*Provider)(nil)

// Session is a mock implementation of recognizer.SessionHandle. Tests drive
// it by calling Emit for each scripted event and End to close the stream.
type Session struct {
	mu sync.Mutex

	// StopErr, if non-nil, is returned by every Stop call.
	StopErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// StopEndsStream makes Stop emit an EventEnd and close the stream,
	// mimicking a device that confirms the stop immediately.
	StopEndsStream bool

	// StopCallCount is the number of times Stop was called.
	StopCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	events chan recognizer.Event
	ended  bool
}

// NewSession returns a Session with a buffered event channel ready for
// scripting.
func NewSession() *Session {
	return &Session{events: make(chan recognizer.Event, 16)}
}

// Emit delivers a scripted event to the consumer. Emitting after End panics,
// matching the device contract that EventEnd is terminal.
func (s *Session) Emit(ev recognizer.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events <- ev
}

// EmitResult is shorthand for emitting an EventResult.
func (s *Session) EmitResult(transcript string, confidence float64, final bool) {
	s.Emit(recognizer.Event{
		Kind:       recognizer.EventResult,
		Transcript: transcript,
		Confidence: confidence,
		Final:      final,
	})
}

// EmitError is shorthand for emitting an EventError.
func (s *Session) EmitError(code recognizer.ErrorCode) {
	s.Emit(recognizer.Event{Kind: recognizer.EventError, Code: code})
}

// End emits the terminal EventEnd and closes the event channel. Safe to call
// once; subsequent calls are no-ops.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.events <- recognizer.Event{Kind: recognizer.EventEnd}
	close(s.events)
}

// Events implements recognizer.SessionHandle.
func (s *Session) Events() <-chan recognizer.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

// Stop records the call. When StopEndsStream is set it also terminates the
// event stream like a real device confirming the stop.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.StopCallCount++
	err := s.StopErr
	endNow := s.StopEndsStream && !s.ended
	if endNow {
		s.ended = true
	}
	s.mu.Unlock()

	if endNow {
		s.events <- recognizer.Event{Kind: recognizer.EventEnd}
		close(s.events)
	}
	return err
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// StopCalls returns the number of Stop calls. Thread-safe.
func (s *Session) StopCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.StopCallCount
}

// CloseCalls returns the number of Close calls. Thread-safe.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Ensure Session implements recognizer.SessionHandle at compile time.
var _ recognizer.SessionHandle = (*Session)(nil)
