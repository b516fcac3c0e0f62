package assess

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/anvilane/slovoday/internal/vocab"
)

// hintAfterAttempts is how many failed checks it takes before the target
// word is revealed as a hint.
const hintAfterAttempts = 2

// WritingState is a point-in-time view of the writing practice panel.
type WritingState struct {
	// Word is the word under practice. Zero when the panel is closed.
	Word vocab.Word

	// Active reports whether the panel is open.
	Active bool

	// Attempts counts checks since the panel opened.
	Attempts int

	// Correct reports whether the last check matched the target.
	Correct bool

	// Checked reports whether at least one check has happened.
	Checked bool

	// Hint is the revealed target word after repeated failures, or "".
	Hint string
}

// Writing runs writing practice for one learner: the learner types the word
// in Cyrillic and checks it against the target. All methods are safe for
// concurrent use.
type Writing struct {
	opts options

	mu         sync.Mutex
	word       vocab.Word
	active     bool
	attempts   int
	correct    bool
	checked    bool
	hint       string
	closeTimer *time.Timer
}

// NewWriting creates a writing practice panel.
func NewWriting(opts ...Option) *Writing {
	return &Writing{opts: newOptions(opts)}
}

// Begin opens the panel for a word. Reopening discards the previous state.
func (w *Writing) Begin(word vocab.Word) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopCloseTimerLocked()
	w.word = word
	w.active = true
	w.attempts = 0
	w.correct = false
	w.checked = false
	w.hint = ""
}

// Check compares typed input against the target word. Comparison ignores
// case and surrounding whitespace; the Cyrillic letters themselves must
// match. After hintAfterAttempts failed checks, the target is revealed as a
// hint. A correct answer arms the auto-close timer.
func (w *Writing) Check(ctx context.Context, input string) WritingState {
	w.mu.Lock()
	if !w.active {
		w.mu.Unlock()
		return w.Snapshot()
	}

	w.attempts++
	w.checked = true
	w.correct = strings.EqualFold(strings.TrimSpace(input), strings.TrimSpace(w.word.Text))
	if !w.correct && w.attempts >= hintAfterAttempts {
		w.hint = w.word.Text
	}

	word := w.word
	correct := w.correct
	if correct && w.opts.autoClose > 0 {
		w.stopCloseTimerLocked()
		w.closeTimer = time.AfterFunc(w.opts.autoClose, w.Close)
	}
	w.mu.Unlock()

	outcome := OutcomeFailure
	if correct {
		outcome = OutcomeSuccess
	}
	w.opts.metrics.RecordAttempt(ctx, "writing", string(outcome), -1)
	if w.opts.onAttempt != nil {
		w.opts.onAttempt(word.ID, outcome, -1)
	}

	return w.Snapshot()
}

// Reset clears the attempt state but keeps the panel open on the same word.
func (w *Writing) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopCloseTimerLocked()
	w.attempts = 0
	w.correct = false
	w.checked = false
	w.hint = ""
}

// Close shuts the panel and discards its state.
func (w *Writing) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopCloseTimerLocked()
	w.word = vocab.Word{}
	w.active = false
	w.attempts = 0
	w.correct = false
	w.checked = false
	w.hint = ""
}

func (w *Writing) stopCloseTimerLocked() {
	if w.closeTimer != nil {
		w.closeTimer.Stop()
		w.closeTimer = nil
	}
}

// Snapshot returns the current panel state.
func (w *Writing) Snapshot() WritingState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WritingState{
		Word:     w.word,
		Active:   w.active,
		Attempts: w.attempts,
		Correct:  w.correct,
		Checked:  w.checked,
		Hint:     w.hint,
	}
}
