package resilience

import (
	"context"

	"github.com/anvilane/slovoday/pkg/provider/speech"
)

// SpeechGroup implements [speech.Provider] with automatic failover across
// multiple playback backends. Each backend has its own circuit breaker, so a
// TTS server that stops responding is skipped until it recovers.
type SpeechGroup struct {
	group *FallbackGroup[speech.Provider]
}

// Compile-time interface assertion.
var _ speech.Provider = (*SpeechGroup)(nil)

// NewSpeechGroup creates a [SpeechGroup] with primary as the preferred backend.
func NewSpeechGroup(primary speech.Provider, primaryName string, cfg FallbackConfig) *SpeechGroup {
	return &SpeechGroup{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional playback backend.
func (g *SpeechGroup) AddFallback(name string, provider speech.Provider) {
	g.group.AddFallback(name, provider)
}

// Speak synthesises and plays text on the first healthy backend.
func (g *SpeechGroup) Speak(ctx context.Context, text, language string) error {
	return g.group.Execute(func(p speech.Provider) error {
		return p.Speak(ctx, text, language)
	})
}

// Cancel stops the active utterance on every backend. Cancelling an idle
// backend is a no-op, so fanning out is cheaper than tracking which entry
// served the last Speak.
func (g *SpeechGroup) Cancel() {
	for i := range g.group.entries {
		g.group.entries[i].value.Cancel()
	}
}
