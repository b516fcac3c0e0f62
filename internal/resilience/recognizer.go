package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anvilane/slovoday/pkg/provider/recognizer"
)

// RecognizerGroup implements [recognizer.Provider] with automatic failover
// across multiple capture backends. Only session establishment is covered by
// failover; once a capture is running, its events come from the backend that
// opened it.
type RecognizerGroup struct {
	group *FallbackGroup[recognizer.Provider]
}

// Compile-time interface assertion.
var _ recognizer.Provider = (*RecognizerGroup)(nil)

// NewRecognizerGroup creates a [RecognizerGroup] with primary as the preferred
// backend.
func NewRecognizerGroup(primary recognizer.Provider, primaryName string, cfg FallbackConfig) *RecognizerGroup {
	return &RecognizerGroup{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional capture backend.
func (g *RecognizerGroup) AddFallback(name string, provider recognizer.Provider) {
	g.group.AddFallback(name, provider)
}

// Start opens a capture session on the first healthy backend.
//
// [recognizer.ErrUnsupported] is a capability statement, not a failure: an
// unsupported backend is skipped without tripping its breaker, and when every
// backend is unsupported the error is returned unwrapped so callers can still
// detect it with errors.Is.
func (g *RecognizerGroup) Start(ctx context.Context, cfg recognizer.Config) (recognizer.SessionHandle, error) {
	var (
		lastErr        error
		allUnsupported = true
	)
	for i := range g.group.entries {
		entry := &g.group.entries[i]

		var handle recognizer.SessionHandle
		err := entry.breaker.Execute(func() error {
			h, startErr := entry.value.Start(ctx, cfg)
			if errors.Is(startErr, recognizer.ErrUnsupported) {
				// Do not count capability gaps as backend failures.
				handle = nil
				return nil
			}
			handle = h
			return startErr
		})
		if err == nil && handle != nil {
			return handle, nil
		}
		if err == nil {
			// Unsupported; try the next backend.
			lastErr = recognizer.ErrUnsupported
			continue
		}
		allUnsupported = false
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping capture backend (circuit open)", "provider", entry.name)
		} else {
			slog.Warn("capture backend failed, trying next", "provider", entry.name, "error", err)
		}
	}
	if allUnsupported {
		return nil, recognizer.ErrUnsupported
	}
	return nil, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
