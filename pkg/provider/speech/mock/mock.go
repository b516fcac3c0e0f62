// Package mock provides a test double for the speech.Provider interface.
//
// Use Provider to verify which texts were spoken and in which language, and
// to simulate synthesis failures.
package mock

import (
	"context"
	"sync"

	"github.com/anvilane/slovoday/pkg/provider/speech"
)

// SpeakCall records a single invocation of Provider.Speak.
type SpeakCall struct {
	// Ctx is the context passed to Speak.
	Ctx context.Context
	// Text is the utterance text passed to Speak.
	Text string
	// Language is the BCP-47 tag passed to Speak.
	Language string
}

// Provider is a mock implementation of speech.Provider.
type Provider struct {
	mu sync.Mutex

	// SpeakErr, if non-nil, is returned by every Speak call.
	SpeakErr error

	// SpeakCalls records every call to Speak in order.
	SpeakCalls []SpeakCall

	// CancelCallCount is the number of times Cancel was called.
	CancelCallCount int
}

// Speak records the call and returns SpeakErr.
func (p *Provider) Speak(ctx context.Context, text, language string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SpeakCalls = append(p.SpeakCalls, SpeakCall{Ctx: ctx, Text: text, Language: language})
	return p.SpeakErr
}

// Cancel records the call.
func (p *Provider) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CancelCallCount++
}

// SpeakCallCount returns the number of Speak calls. Thread-safe.
func (p *Provider) SpeakCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SpeakCalls)
}

// LastSpeak returns the most recent SpeakCall and true, or the zero value and
// false when Speak has not been called.
func (p *Provider) LastSpeak() (SpeakCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.SpeakCalls) == 0 {
		return SpeakCall{}, false
	}
	return p.SpeakCalls[len(p.SpeakCalls)-1], true
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SpeakCalls = nil
	p.CancelCallCount = 0
}

// Ensure Provider implements speech.Provider at compile time.
var _ speech.Provider = (*Provider)(nil)
