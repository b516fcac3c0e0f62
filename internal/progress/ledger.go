package progress

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultKey is the store key under which the learner record lives. Frozen
// for compatibility with existing records.
const DefaultKey = "russian-word-progress"

// Ledger owns the learner's current Snapshot and keeps it durable. Updates
// apply to the in-memory snapshot first and are then written through to the
// Store; a failed write is logged but never blocks or rolls back the update,
// so the in-memory state stays authoritative for the running process.
//
// All methods are safe for concurrent use.
type Ledger struct {
	store  Store
	key    string
	logger *slog.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithKey overrides the store key. Defaults to DefaultKey.
func WithKey(key string) LedgerOption {
	return func(l *Ledger) { l.key = key }
}

// WithLogger sets the logger used for persistence warnings. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLedger creates a Ledger over the given store and loads the existing
// record. A missing record starts fresh; a corrupt record is discarded with a
// warning and also starts fresh, never an error.
func NewLedger(store Store, opts ...LedgerOption) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		key:    DefaultKey,
		logger: slog.Default(),
		snap:   NewSnapshot(),
	}
	for _, o := range opts {
		o(l)
	}

	data, ok, err := store.Get(l.key)
	if err != nil {
		return nil, fmt.Errorf("progress: load record: %w", err)
	}
	if ok {
		snap, err := UnmarshalSnapshot(data)
		if err != nil {
			l.logger.Warn("progress: discarding corrupt record", "key", l.key, "err", err)
		} else {
			l.snap = snap
		}
	}
	return l, nil
}

// Snapshot returns a copy of the current learner state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.clone()
}

// apply swaps in next and writes it through to the store.
func (l *Ledger) applyLocked(next Snapshot) {
	l.snap = next
	data, err := MarshalSnapshot(next)
	if err != nil {
		l.logger.Warn("progress: encode record", "key", l.key, "err", err)
		return
	}
	if err := l.store.Set(l.key, data); err != nil {
		l.logger.Warn("progress: persist record", "key", l.key, "err", err)
	}
}

// RecordVisit registers a visit at time now and reports whether the streak
// changed. Repeated visits on the same calendar day change nothing and write
// nothing.
func (l *Ledger) RecordVisit(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, changed := l.snap.RecordVisit(DateOf(now))
	if changed {
		l.applyLocked(next)
	}
	return changed
}

// IsLearned reports whether the word is marked as learned.
func (l *Ledger) IsLearned(wordID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.IsLearned(wordID)
}

// MarkLearned marks the word as learned.
func (l *Ledger) MarkLearned(wordID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snap.IsLearned(wordID) {
		return
	}
	l.applyLocked(l.snap.MarkLearned(wordID))
}

// ToggleLearned flips the learned mark and reports the new value.
func (l *Ledger) ToggleLearned(wordID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, nowLearned := l.snap.ToggleLearned(wordID)
	l.applyLocked(next)
	return nowLearned
}

// TrackView records one view of the word.
func (l *Ledger) TrackView(wordID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyLocked(l.snap.TrackView(wordID))
}

// IsFavorite reports whether the example sentence is favourited.
func (l *Ledger) IsFavorite(exampleID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.IsFavorite(exampleID)
}

// ToggleFavorite flips the favourite mark on an example sentence and reports
// the new value.
func (l *Ledger) ToggleFavorite(exampleID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, nowFavorite := l.snap.ToggleFavorite(exampleID)
	l.applyLocked(next)
	return nowFavorite
}

// TrackWritingAttempt records one writing-practice attempt for the word.
func (l *Ledger) TrackWritingAttempt(wordID string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyLocked(l.snap.TrackWritingAttempt(wordID, success))
}

// Reset discards all learner state and removes the durable record.
func (l *Ledger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = NewSnapshot()
	if err := l.store.Remove(l.key); err != nil {
		return fmt.Errorf("progress: reset: %w", err)
	}
	return nil
}

// Stats is a summary of the learner state for display.
type Stats struct {
	WordsLearned     int
	CurrentStreak    int
	LongestStreak    int
	TotalWordsViewed int
	FavoriteCount    int
	WritingAttempts  int
	WritingSuccesses int
}

// Stats summarises the current snapshot.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Stats{
		WordsLearned:     len(l.snap.LearnedWords),
		CurrentStreak:    l.snap.CurrentStreak,
		LongestStreak:    l.snap.LongestStreak,
		TotalWordsViewed: l.snap.TotalWordsViewed,
		FavoriteCount:    len(l.snap.FavoriteExamples),
	}
	for _, ws := range l.snap.WritingPractice {
		st.WritingAttempts += ws.Attempts
		st.WritingSuccesses += ws.Successes
	}
	return st
}
