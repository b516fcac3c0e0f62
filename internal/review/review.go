// Package review keeps an append-only log of evaluated practice attempts.
// Attempts are stored as JSON lines in a local file, suitable for a single
// learner reviewing their own history.
package review

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Record is a single evaluated attempt written to the log.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	WordID    string    `json:"word_id"`
	Mode      string    `json:"mode"`
	Outcome   string    `json:"outcome"`
	Score     float64   `json:"score,omitempty"`
}

// Log persists practice attempts as JSON lines in a local file.
// Thread-safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewLog creates a Log that writes to the given path. The file is created on
// the first append.
func NewLog(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Append writes one attempt to the log. A negative score (writing practice
// has no score) is omitted from the record.
func (l *Log) Append(wordID, mode, outcome string, score float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record := Record{
		Timestamp: l.now().UTC(),
		WordID:    wordID,
		Mode:      mode,
		Outcome:   outcome,
	}
	if score >= 0 {
		record.Score = score
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("review: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("review: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("review: write: %w", err)
	}
	return nil
}

// Records reads the whole log back, oldest first. A missing file is an empty
// log, not an error. Lines that fail to parse are skipped so one damaged
// entry does not hide the rest of the history.
func (l *Log) Records() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("review: open file: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("review: read: %w", err)
	}
	return records, nil
}
