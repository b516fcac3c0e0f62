// Package assess runs the practice flows: pronunciation assessment over a
// speech capture, and writing practice over typed input.
//
// A Controller owns one pronunciation practice panel. Begin opens it for a
// word, StartListening/StopListening drive the capture, and Evaluate turns
// the captured transcript into a scored outcome. A successful outcome closes
// the panel automatically after a short delay so the learner sees the result
// without having to dismiss it.
package assess

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/anvilane/slovoday/internal/capture"
	"github.com/anvilane/slovoday/internal/observe"
	"github.com/anvilane/slovoday/internal/score"
	"github.com/anvilane/slovoday/internal/vocab"
	"github.com/anvilane/slovoday/pkg/provider/speech"
)

// Outcome is the result state of a practice attempt.
type Outcome string

const (
	// OutcomePending means no attempt has been evaluated yet.
	OutcomePending Outcome = "pending"

	// OutcomeSuccess means the last attempt met the success threshold.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailure means the last attempt fell short of the threshold.
	OutcomeFailure Outcome = "failure"
)

// successThreshold is the minimum similarity score that counts as a
// successful pronunciation.
const successThreshold = 70

// defaultAutoClose is how long a successful result stays visible before the
// panel closes itself.
const defaultAutoClose = 3 * time.Second

// Attempt is a point-in-time view of the pronunciation panel.
type Attempt struct {
	// Word is the word under practice. Zero when the panel is closed.
	Word vocab.Word

	// Active reports whether the panel is open.
	Active bool

	// Listening reports whether a capture is running.
	Listening bool

	// Transcript and Confidence are the latest capture result.
	Transcript string
	Confidence float64

	// Message is the displayable capture error, or "".
	Message string

	// Score, Outcome, and Feedback describe the last evaluated attempt.
	Score    float64
	Outcome  Outcome
	Feedback string

	// Attempts counts evaluated attempts since the panel opened.
	Attempts int

	// Supported reports whether a capture device is available at all.
	Supported bool
}

// Option configures a Controller or a Writing practice.
type Option func(*options)

type options struct {
	autoClose      time.Duration
	captureTimeout time.Duration
	metrics        *observe.Metrics
	logger         *slog.Logger
	onAttempt      func(wordID string, outcome Outcome, score float64)
	onLearned      func(wordID string)
}

// WithAutoClose sets how long a successful result stays open before the
// panel closes itself. Zero disables auto-close.
func WithAutoClose(d time.Duration) Option {
	return func(o *options) { o.autoClose = d }
}

// WithCaptureTimeout bounds how long a capture may listen. Zero leaves the
// capture unbounded.
func WithCaptureTimeout(d time.Duration) Option {
	return func(o *options) { o.captureTimeout = d }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOnAttempt registers a callback invoked after every evaluated attempt.
func WithOnAttempt(fn func(wordID string, outcome Outcome, score float64)) Option {
	return func(o *options) { o.onAttempt = fn }
}

// WithOnLearned registers a callback invoked when an attempt succeeds.
func WithOnLearned(fn func(wordID string)) Option {
	return func(o *options) { o.onLearned = fn }
}

func newOptions(opts []Option) options {
	o := options{
		autoClose: defaultAutoClose,
		logger:    slog.Default(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Controller runs pronunciation practice for one learner. All methods are
// safe for concurrent use.
type Controller struct {
	capture  *capture.Session
	speech   speech.Provider
	language string
	opts     options

	mu           sync.Mutex
	word         vocab.Word
	active       bool
	outcome      Outcome
	lastScore    float64
	feedback     string
	attempts     int
	captureStart time.Time
	closeTimer   *time.Timer
}

// NewController creates a pronunciation practice controller. sp may be nil
// when no speech device is available; word playback is then skipped.
func NewController(cap *capture.Session, sp speech.Provider, language string, opts ...Option) *Controller {
	return &Controller{
		capture:  cap,
		speech:   sp,
		language: language,
		opts:     newOptions(opts),
	}
}

// Begin opens the panel for a word and speaks it once so the learner hears
// the target before recording. Reopening for another word discards the
// previous state.
func (c *Controller) Begin(ctx context.Context, word vocab.Word) {
	c.mu.Lock()
	c.stopCloseTimerLocked()
	c.word = word
	c.active = true
	c.outcome = OutcomePending
	c.lastScore = 0
	c.feedback = ""
	c.attempts = 0
	c.mu.Unlock()

	c.capture.Reset()
	c.speak(ctx, word.Text)
}

// Speak replays the word on the speech device.
func (c *Controller) Speak(ctx context.Context) {
	c.mu.Lock()
	active := c.active
	text := c.word.Text
	c.mu.Unlock()
	if !active {
		return
	}
	c.speak(ctx, text)
}

// speak runs synthesis in the background. Playback failures are logged, not
// surfaced; practice works without audio.
func (c *Controller) speak(ctx context.Context, text string) {
	if c.speech == nil || text == "" {
		return
	}
	go func() {
		start := time.Now()
		if err := c.speech.Speak(ctx, text, c.language); err != nil {
			c.opts.logger.Warn("assess: speak word", "word", text, "err", err)
			return
		}
		c.opts.metrics.SpeakDuration.Record(ctx, time.Since(start).Seconds())
	}()
}

// StartListening begins a capture for the current word. Returns
// recognizer.ErrUnsupported when no capture device is available.
func (c *Controller) StartListening(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.captureStart = time.Now()
	c.mu.Unlock()

	return c.capture.Start(ctx, c.language, c.opts.captureTimeout)
}

// StopListening asks the capture device to finish the current capture.
func (c *Controller) StopListening() {
	c.capture.Stop()
}

// Evaluate scores the captured transcript against the target word. It is a
// no-op while the capture is still listening, and when no transcript was
// captured (for example after a device error); the attempt counter only
// moves for evaluated attempts.
func (c *Controller) Evaluate(ctx context.Context) Attempt {
	if c.capture.State() == capture.StateListening {
		return c.Snapshot()
	}

	transcript, confidence := c.capture.Transcript()

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return c.Snapshot()
	}
	target := c.word.Text
	if !c.captureStart.IsZero() {
		c.opts.metrics.CaptureDuration.Record(ctx, time.Since(c.captureStart).Seconds())
		c.captureStart = time.Time{}
	}
	c.mu.Unlock()

	if transcript == "" {
		if code := c.capture.ErrorCode(); code != "" {
			c.opts.metrics.RecordCaptureError(ctx, string(code))
		}
		return c.Snapshot()
	}

	s := score.Score(transcript, target, confidence)

	c.mu.Lock()
	if !c.active {
		// Closed while scoring.
		c.mu.Unlock()
		return c.Snapshot()
	}
	c.lastScore = s
	c.attempts++
	if s >= successThreshold {
		c.outcome = OutcomeSuccess
	} else {
		c.outcome = OutcomeFailure
	}
	c.feedback = feedbackFor(s)
	word := c.word
	outcome := c.outcome
	if outcome == OutcomeSuccess && c.opts.autoClose > 0 {
		c.stopCloseTimerLocked()
		c.closeTimer = time.AfterFunc(c.opts.autoClose, c.Close)
	}
	c.mu.Unlock()

	c.opts.metrics.RecordAttempt(ctx, "pronunciation", string(outcome), s)
	if c.opts.onAttempt != nil {
		c.opts.onAttempt(word.ID, outcome, s)
	}
	if outcome == OutcomeSuccess && c.opts.onLearned != nil {
		c.opts.onLearned(word.ID)
	}

	return c.Snapshot()
}

// Close shuts the panel: the capture stops, pending playback is cancelled,
// and the state resets. Safe to call at any time.
func (c *Controller) Close() {
	c.capture.Stop()
	if c.speech != nil {
		c.speech.Cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCloseTimerLocked()
	c.word = vocab.Word{}
	c.active = false
	c.outcome = OutcomePending
	c.lastScore = 0
	c.feedback = ""
	c.attempts = 0
	c.captureStart = time.Time{}
}

// stopCloseTimerLocked cancels a pending auto-close. Caller holds c.mu.
func (c *Controller) stopCloseTimerLocked() {
	if c.closeTimer != nil {
		c.closeTimer.Stop()
		c.closeTimer = nil
	}
}

// Snapshot returns the current panel state.
func (c *Controller) Snapshot() Attempt {
	transcript, confidence := c.capture.Transcript()
	listening := c.capture.State() == capture.StateListening
	message := c.capture.Message()

	c.mu.Lock()
	defer c.mu.Unlock()
	return Attempt{
		Word:       c.word,
		Active:     c.active,
		Listening:  listening,
		Transcript: transcript,
		Confidence: confidence,
		Message:    message,
		Score:      c.lastScore,
		Outcome:    c.outcome,
		Feedback:   c.feedback,
		Attempts:   c.attempts,
		Supported:  c.capture.Supported(),
	}
}

// feedbackFor maps a similarity score to the encouragement line shown under
// the result.
func feedbackFor(s float64) string {
	switch {
	case s >= 90:
		return "Excellent! Your pronunciation is great!"
	case s >= successThreshold:
		return "Good job! Keep practicing!"
	case s >= 50:
		return "Not bad! Try again for better results."
	default:
		return "Keep practicing! Listen to the example again."
	}
}
