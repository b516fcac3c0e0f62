// Package coqui provides a speech.Provider backed by a standard Coqui TTS
// server (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts
// with URL query parameters; the returned WAV is handed to an injected Sink
// for playback.
//
// The server operates in batch mode (one HTTP call per utterance), which fits
// the provider contract directly: one Speak call, one request, one playback.
//
// Typical usage:
//
//	p := coqui.New("http://localhost:5002",
//	    coqui.WithTimeout(15*time.Second),
//	    coqui.WithSink(alsaSink),
//	)
//	err := p.Speak(ctx, "Книга", "ru")
package coqui

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/anvilane/slovoday/pkg/provider/speech"
)

// Compile-time interface assertion.
var _ speech.Provider = (*Provider)(nil)

const (
	ttsEndpoint    = "/api/tts"
	defaultTimeout = 30 * time.Second

	// maxResponseBytes caps how much synthesised audio is read from the
	// server for a single utterance.
	maxResponseBytes = 32 << 20
)

// Sink plays a synthesised WAV payload. Play must respect context
// cancellation; a cancelled context aborts playback mid-utterance.
type Sink interface {
	Play(ctx context.Context, wav []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, wav []byte) error

// Play implements Sink.
func (f SinkFunc) Play(ctx context.Context, wav []byte) error { return f(ctx, wav) }

// discardSink drops the audio. Used when no sink is configured, which keeps
// the provider usable in headless deployments where synthesis is exercised
// but playback happens client-side.
var discardSink = SinkFunc(func(context.Context, []byte) error { return nil })

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
// Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithSpeakerID selects a specific speaker on multi-speaker models. Empty
// (the default) lets the server pick its default speaker.
func WithSpeakerID(id string) Option {
	return func(p *Provider) { p.speakerID = id }
}

// WithSink sets the playback sink. Defaults to a sink that discards audio.
func WithSink(s Sink) Option {
	return func(p *Provider) {
		if s != nil {
			p.sink = s
		}
	}
}

// Provider implements speech.Provider against a Coqui TTS server. At most one
// utterance is active at a time; a new Speak cancels the previous one.
type Provider struct {
	baseURL    string
	speakerID  string
	httpClient *http.Client
	sink       Sink

	mu      sync.Mutex
	current *utterance
}

// utterance identifies one in-flight Speak call so that a finished utterance
// never clears or cancels its successor.
type utterance struct {
	cancel context.CancelFunc
}

// New creates a Provider that connects to the Coqui TTS server at baseURL
// (e.g., "http://localhost:5002").
func New(baseURL string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		sink:       discardSink,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Speak synthesises text and plays it on the configured sink. A Speak call
// issued while a previous utterance is still playing cancels that utterance
// first.
func (p *Provider) Speak(ctx context.Context, text, language string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	u := &utterance{cancel: cancel}

	p.mu.Lock()
	if p.current != nil {
		p.current.cancel()
	}
	p.current = u
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.current == u {
			p.current = nil
		}
		p.mu.Unlock()
		cancel()
	}()

	wav, err := p.synthesize(ctx, text, language)
	if err != nil {
		return err
	}
	if err := p.sink.Play(ctx, wav); err != nil {
		return fmt.Errorf("coqui: play: %w", err)
	}
	return nil
}

// Cancel stops the active utterance, if any.
func (p *Provider) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.cancel()
		p.current = nil
	}
}

// synthesize calls GET /api/tts and returns the WAV payload.
func (p *Provider) synthesize(ctx context.Context, text, language string) ([]byte, error) {
	q := url.Values{}
	q.Set("text", text)
	if p.speakerID != "" {
		q.Set("speaker_id", p.speakerID)
	}
	if language != "" {
		q.Set("language_id", language)
	}

	endpoint := p.baseURL + ttsEndpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: server returned HTTP %d", resp.StatusCode)
	}

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("coqui: read response body: %w", err)
	}
	return wav, nil
}
