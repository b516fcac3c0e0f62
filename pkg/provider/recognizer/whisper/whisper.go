// Package whisper provides a recognizer.Provider backed by a local
// whisper-server instance.
//
// whisper-server exposes a batch REST API (POST /inference) rather than a
// streaming socket, so a capture session buffers 16-bit signed little-endian
// PCM from an injected AudioSource until the capture ends (Stop, context
// cancellation, source EOF, or the maximum capture duration), then submits the
// whole utterance as one inference request. Because of the batch model the
// session emits no true interim results — a single final result is delivered
// once the server responds.
//
// An energy gate classifies captures that never rise above the silence
// threshold as ErrorNoSpeech, matching the device error taxonomy.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", micSource,
//	    whisper.WithLanguage("ru"),
//	)
//	handle, err := p.Start(ctx, recognizer.Config{Language: "ru-RU"})
//	ev := <-handle.Events()
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/anvilane/slovoday/pkg/provider/recognizer"
)

const (
	// bitsPerSample is fixed at 16 for the PCM audio whisper-server expects.
	bitsPerSample = 16

	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
	// units, max 32 767) below which a whole capture is considered silent.
	defaultRMSThreshold = 300.0

	defaultSampleRate         = 16000
	defaultMaxCaptureDuration = 30 * time.Second

	// readChunkSize is the size of each read from the audio source.
	readChunkSize = 4096
)

// Compile-time assertion that Provider implements recognizer.Provider.
var _ recognizer.Provider = (*Provider)(nil)

// AudioSource supplies raw PCM audio for a capture, typically from a
// microphone capture process. Open is called once per capture session; the
// returned reader yields 16-bit signed little-endian mono PCM at the
// provider's configured sample rate and is closed when the capture ends.
type AudioSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SourceFunc adapts a function to the AudioSource interface.
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

// Open implements AudioSource.
func (f SourceFunc) Open(ctx context.Context) (io.ReadCloser, error) { return f(ctx) }

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to whisper-server (e.g.,
// "base", "small"). When empty the server uses whichever model it was started
// with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default ISO-639-1 language code sent to whisper-server
// when the capture Config carries no language tag.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the PCM sample rate in Hz of the audio source.
// Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithTimeout sets the per-request HTTP timeout for inference calls.
// Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithMaxCaptureDuration caps how much audio a single capture may accumulate
// before it is force-flushed to inference. Defaults to 30 s.
func WithMaxCaptureDuration(d time.Duration) Option {
	return func(p *Provider) { p.maxCapture = d }
}

// Provider implements recognizer.Provider backed by a whisper-server HTTP
// endpoint. Multiple captures may be open simultaneously; each maintains its
// own buffer and goroutine.
type Provider struct {
	serverURL  string
	source     AudioSource
	model      string
	language   string
	sampleRate int
	maxCapture time.Duration
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8080") and captures audio from source. Both must
// be non-nil/non-empty.
func New(serverURL string, source AudioSource, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	if source == nil {
		return nil, errors.New("whisper: audio source must not be nil")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		source:     source,
		sampleRate: defaultSampleRate,
		maxCapture: defaultMaxCaptureDuration,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Start opens a new capture session. Audio is read from the provider's
// AudioSource immediately; the capture ends on Stop, ctx cancellation, source
// EOF, or the maximum capture duration, whichever comes first.
func (p *Provider) Start(ctx context.Context, cfg recognizer.Config) (recognizer.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := languageCode(cfg.Language)
	if lang == "" {
		lang = p.language
	}

	s := &session{
		provider: p,
		language: lang,
		events:   make(chan recognizer.Event, 8),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.captureLoop(ctx)

	return s, nil
}

// languageCode reduces a BCP-47 tag to the bare ISO-639-1 code whisper-server
// accepts ("ru-RU" → "ru").
func languageCode(tag string) string {
	if i := strings.IndexByte(tag, '-'); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}

// session is one live capture. It implements recognizer.SessionHandle. All
// buffering happens inside captureLoop; the exported methods only signal.
type session struct {
	provider *Provider
	language string

	events chan recognizer.Event

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// Events implements recognizer.SessionHandle.
func (s *session) Events() <-chan recognizer.Event { return s.events }

// Stop requests the end of the capture. The buffered audio is still submitted
// for inference; the final result (or an error event) is delivered before the
// stream closes. Idempotent.
func (s *session) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// Close terminates the capture and waits for the event stream to close.
// Calling Close more than once is safe and returns nil.
func (s *session) Close() error {
	s.doneOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

// captureLoop reads PCM from the audio source until the capture ends, then
// runs inference and emits the terminal events. It is the only goroutine that
// touches the buffer, so no extra synchronisation is needed.
func (s *session) captureLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	src, err := s.provider.source.Open(ctx)
	if err != nil {
		s.emitError(recognizer.ErrorAudioCapture)
		s.emitEnd()
		return
	}
	defer src.Close()

	p := s.provider
	bytesPerSec := p.sampleRate * (bitsPerSample / 8)
	maxBytes := int(p.maxCapture.Seconds() * float64(bytesPerSec))

	var buffer []byte

	// Reads happen on a helper goroutine so the loop stays responsive to
	// Stop/Close/ctx while the source blocks. The goroutine reports its
	// terminal error (nil on EOF) before closing the chunk channel.
	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(chunks)
		for {
			chunk := make([]byte, readChunkSize)
			n, err := src.Read(chunk)
			if n > 0 {
				select {
				case chunks <- chunk[:n]:
				case <-s.done:
					readErr <- nil
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				readErr <- err
				return
			}
		}
	}()

reading:
	for {
		select {
		case <-ctx.Done():
			s.emitError(recognizer.ErrorAborted)
			s.emitEnd()
			return
		case <-s.done:
			s.emitError(recognizer.ErrorAborted)
			s.emitEnd()
			return
		case <-s.stop:
			break reading
		case chunk, ok := <-chunks:
			if !ok {
				if err := <-readErr; err != nil {
					s.emitError(recognizer.ErrorAudioCapture)
					s.emitEnd()
					return
				}
				break reading
			}
			buffer = append(buffer, chunk...)
			if maxBytes > 0 && len(buffer) >= maxBytes {
				break reading
			}
		}
	}

	if computeRMS(buffer) < defaultRMSThreshold {
		s.emitError(recognizer.ErrorNoSpeech)
		s.emitEnd()
		return
	}

	// Inference uses a fresh context so a Stop-triggered flush still
	// completes even when the caller's ctx is on its way out.
	inferCtx, cancel := context.WithTimeout(context.Background(), p.httpClient.Timeout)
	defer cancel()

	text, conf, err := s.infer(inferCtx, buffer)
	switch {
	case err != nil:
		s.emitError(recognizer.ErrorNetwork)
	case strings.TrimSpace(text) == "":
		s.emitError(recognizer.ErrorNoSpeech)
	default:
		s.emit(recognizer.Event{
			Kind:       recognizer.EventResult,
			Transcript: strings.TrimSpace(text),
			Confidence: conf,
			Final:      true,
		})
	}
	s.emitEnd()
}

func (s *session) emit(ev recognizer.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *session) emitError(code recognizer.ErrorCode) {
	s.emit(recognizer.Event{Kind: recognizer.EventError, Code: code})
}

func (s *session) emitEnd() {
	s.emit(recognizer.Event{Kind: recognizer.EventEnd})
}

// infer encodes pcm as WAV and POSTs it to the whisper-server /inference
// endpoint as multipart/form-data. Returns the transcribed text and a
// confidence value (whisper-server does not report one; 0 is returned).
func (s *session) infer(ctx context.Context, pcm []byte) (string, float64, error) {
	p := s.provider
	wav := encodeWAV(pcm, p.sampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", 0, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", 0, fmt.Errorf("whisper: write wav data: %w", err)
	}
	if s.language != "" {
		if err := mw.WriteField("language", s.language); err != nil {
			return "", 0, fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return "", 0, fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", 0, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", 0, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", 0, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, 0, nil
}

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container suitable for a multipart upload.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// computeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer, in PCM sample units (0–32 767).
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
