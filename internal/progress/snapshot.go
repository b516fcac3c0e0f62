// Package progress tracks a learner's journey through the vocabulary: which
// words are learned, the daily visit streak, view counts, favourite example
// sentences, and writing-practice statistics.
//
// The state lives in a Snapshot, a plain value updated functionally: every
// mutating method returns a new Snapshot and leaves the receiver untouched.
// The Ledger owns the current Snapshot, applies updates, and persists each
// one durably through a Store.
package progress

// WritingStats counts writing-practice attempts for one word.
type WritingStats struct {
	Attempts  int
	Successes int
}

// Snapshot is the complete learner state at a point in time. The zero value
// has nil maps; construct with NewSnapshot or update through the methods,
// which tolerate nil maps on the receiver.
type Snapshot struct {
	// LearnedWords holds the IDs of words the learner marked as learned.
	LearnedWords map[string]struct{}

	// LastVisitDate is the calendar day of the most recent recorded visit,
	// or "" before the first visit.
	LastVisitDate Date

	// CurrentStreak is the number of consecutive days visited, ending at
	// LastVisitDate. Zero before the first visit.
	CurrentStreak int

	// LongestStreak is the best CurrentStreak ever reached.
	LongestStreak int

	// TotalWordsViewed counts every word view ever recorded.
	TotalWordsViewed int

	// ViewHistory counts views per word ID.
	ViewHistory map[string]int

	// FavoriteExamples holds example-sentence IDs in the order they were
	// favourited.
	FavoriteExamples []string

	// WritingPractice holds per-word writing statistics, keyed by word ID.
	WritingPractice map[string]WritingStats
}

// NewSnapshot returns an empty Snapshot with initialised collections.
func NewSnapshot() Snapshot {
	return Snapshot{
		LearnedWords:    map[string]struct{}{},
		ViewHistory:     map[string]int{},
		WritingPractice: map[string]WritingStats{},
	}
}

// clone deep-copies the snapshot so updates never alias the original.
func (s Snapshot) clone() Snapshot {
	out := s
	out.LearnedWords = make(map[string]struct{}, len(s.LearnedWords))
	for id := range s.LearnedWords {
		out.LearnedWords[id] = struct{}{}
	}
	out.ViewHistory = make(map[string]int, len(s.ViewHistory))
	for id, n := range s.ViewHistory {
		out.ViewHistory[id] = n
	}
	out.FavoriteExamples = append([]string(nil), s.FavoriteExamples...)
	out.WritingPractice = make(map[string]WritingStats, len(s.WritingPractice))
	for id, ws := range s.WritingPractice {
		out.WritingPractice[id] = ws
	}
	return out
}

// RecordVisit applies one day's visit to the streak. Visiting again on the
// same day changes nothing; visiting the day after the last visit extends the
// streak by one; any other gap resets it to one. The longest streak never
// decreases.
//
// The second return value reports whether the snapshot changed.
func (s Snapshot) RecordVisit(today Date) (Snapshot, bool) {
	if s.LastVisitDate == today {
		return s, false
	}

	out := s.clone()
	if s.LastVisitDate == today.AddDays(-1) {
		out.CurrentStreak = s.CurrentStreak + 1
	} else {
		out.CurrentStreak = 1
	}
	if out.CurrentStreak > out.LongestStreak {
		out.LongestStreak = out.CurrentStreak
	}
	out.LastVisitDate = today
	return out, true
}

// IsLearned reports whether the word is marked as learned.
func (s Snapshot) IsLearned(wordID string) bool {
	_, ok := s.LearnedWords[wordID]
	return ok
}

// MarkLearned marks the word as learned.
func (s Snapshot) MarkLearned(wordID string) Snapshot {
	if s.IsLearned(wordID) {
		return s
	}
	out := s.clone()
	out.LearnedWords[wordID] = struct{}{}
	return out
}

// UnmarkLearned removes the learned mark from the word.
func (s Snapshot) UnmarkLearned(wordID string) Snapshot {
	if !s.IsLearned(wordID) {
		return s
	}
	out := s.clone()
	delete(out.LearnedWords, wordID)
	return out
}

// ToggleLearned flips the learned mark and reports the new value.
func (s Snapshot) ToggleLearned(wordID string) (Snapshot, bool) {
	if s.IsLearned(wordID) {
		return s.UnmarkLearned(wordID), false
	}
	return s.MarkLearned(wordID), true
}

// TrackView records one view of the word.
func (s Snapshot) TrackView(wordID string) Snapshot {
	out := s.clone()
	out.TotalWordsViewed++
	out.ViewHistory[wordID]++
	return out
}

// IsFavorite reports whether the example sentence is favourited.
func (s Snapshot) IsFavorite(exampleID string) bool {
	for _, id := range s.FavoriteExamples {
		if id == exampleID {
			return true
		}
	}
	return false
}

// ToggleFavorite flips the favourite mark on an example sentence and reports
// the new value. Favourites keep their insertion order.
func (s Snapshot) ToggleFavorite(exampleID string) (Snapshot, bool) {
	out := s.clone()
	for i, id := range out.FavoriteExamples {
		if id == exampleID {
			out.FavoriteExamples = append(out.FavoriteExamples[:i], out.FavoriteExamples[i+1:]...)
			return out, false
		}
	}
	out.FavoriteExamples = append(out.FavoriteExamples, exampleID)
	return out, true
}

// TrackWritingAttempt records one writing-practice attempt for the word.
func (s Snapshot) TrackWritingAttempt(wordID string, success bool) Snapshot {
	out := s.clone()
	ws := out.WritingPractice[wordID]
	ws.Attempts++
	if success {
		ws.Successes++
	}
	out.WritingPractice[wordID] = ws
	return out
}
