package progress

import (
	"encoding/json"
	"fmt"
	"sort"
)

// snapshotJSON is the durable wire form of a Snapshot. Field names are frozen:
// existing learner records must keep loading across releases.
type snapshotJSON struct {
	LearnedWords     []string                    `json:"learnedWords"`
	LastVisitDate    string                      `json:"lastVisitDate"`
	CurrentStreak    int                         `json:"currentStreak"`
	LongestStreak    int                         `json:"longestStreak"`
	TotalWordsViewed int                         `json:"totalWordsViewed"`
	ViewHistory      map[string]int              `json:"viewHistory"`
	FavoriteExamples []string                    `json:"favoriteExamples"`
	WritingPractice  map[string]writingStatsJSON `json:"writingPractice"`
}

type writingStatsJSON struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// MarshalSnapshot encodes s into its durable JSON form. Learned-word IDs are
// sorted so equal snapshots encode to equal bytes.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	learned := make([]string, 0, len(s.LearnedWords))
	for id := range s.LearnedWords {
		learned = append(learned, id)
	}
	sort.Strings(learned)

	views := make(map[string]int, len(s.ViewHistory))
	for id, n := range s.ViewHistory {
		views[id] = n
	}

	writing := make(map[string]writingStatsJSON, len(s.WritingPractice))
	for id, ws := range s.WritingPractice {
		writing[id] = writingStatsJSON{Attempts: ws.Attempts, Successes: ws.Successes}
	}

	out := snapshotJSON{
		LearnedWords:     learned,
		LastVisitDate:    string(s.LastVisitDate),
		CurrentStreak:    s.CurrentStreak,
		LongestStreak:    s.LongestStreak,
		TotalWordsViewed: s.TotalWordsViewed,
		ViewHistory:      views,
		FavoriteExamples: append([]string{}, s.FavoriteExamples...),
		WritingPractice:  writing,
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("progress: marshal snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes the durable JSON form. Missing fields load as
// their zero values, so records written by older releases keep working.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var in snapshotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return Snapshot{}, fmt.Errorf("progress: unmarshal snapshot: %w", err)
	}

	s := NewSnapshot()
	for _, id := range in.LearnedWords {
		s.LearnedWords[id] = struct{}{}
	}
	s.LastVisitDate = Date(in.LastVisitDate)
	s.CurrentStreak = in.CurrentStreak
	s.LongestStreak = in.LongestStreak
	s.TotalWordsViewed = in.TotalWordsViewed
	for id, n := range in.ViewHistory {
		s.ViewHistory[id] = n
	}
	s.FavoriteExamples = append(s.FavoriteExamples, in.FavoriteExamples...)
	for id, ws := range in.WritingPractice {
		s.WritingPractice[id] = WritingStats{Attempts: ws.Attempts, Successes: ws.Successes}
	}
	return s, nil
}
