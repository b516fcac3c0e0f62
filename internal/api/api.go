// Package api exposes the word-of-the-day widget over HTTP.
//
// All endpoints live under /api/v1 and speak JSON. State-changing endpoints
// use POST; reads use GET. Practice endpoints that depend on an optional
// device never fail just because the device is absent — they answer with
// supported:false so the client can hide the affordance.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anvilane/slovoday/internal/assess"
	"github.com/anvilane/slovoday/internal/observe"
	"github.com/anvilane/slovoday/internal/progress"
	"github.com/anvilane/slovoday/internal/vocab"
	"github.com/anvilane/slovoday/pkg/provider/recognizer"
)

// Server holds the handlers for the widget API. Construct with New and mount
// with Register.
type Server struct {
	ledger    *progress.Ledger
	catalogue *vocab.Catalogue
	pron      *assess.Controller
	writing   *assess.Writing
	metrics   *observe.Metrics
	logger    *slog.Logger

	// now is the clock used for visits and the daily word. Overridable in
	// tests.
	now func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the server clock.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates the API server.
func New(ledger *progress.Ledger, catalogue *vocab.Catalogue, pron *assess.Controller, writing *assess.Writing, opts ...Option) *Server {
	s := &Server{
		ledger:    ledger,
		catalogue: catalogue,
		pron:      pron,
		writing:   writing,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Register mounts all API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/word", s.handleWord)
	mux.HandleFunc("GET /api/v1/words", s.handleWords)

	mux.HandleFunc("GET /api/v1/progress", s.handleProgress)
	mux.HandleFunc("POST /api/v1/progress/visit", s.handleVisit)
	mux.HandleFunc("POST /api/v1/progress/learned/toggle", s.handleToggleLearned)
	mux.HandleFunc("POST /api/v1/progress/views", s.handleTrackView)
	mux.HandleFunc("POST /api/v1/progress/favorites/toggle", s.handleToggleFavorite)
	mux.HandleFunc("POST /api/v1/progress/reset", s.handleReset)

	mux.HandleFunc("GET /api/v1/practice/snapshot", s.handlePracticeSnapshot)
	mux.HandleFunc("POST /api/v1/practice/pronunciation/begin", s.handlePronBegin)
	mux.HandleFunc("POST /api/v1/practice/pronunciation/speak", s.handlePronSpeak)
	mux.HandleFunc("POST /api/v1/practice/pronunciation/listen", s.handlePronListen)
	mux.HandleFunc("POST /api/v1/practice/pronunciation/stop", s.handlePronStop)
	mux.HandleFunc("POST /api/v1/practice/pronunciation/evaluate", s.handlePronEvaluate)
	mux.HandleFunc("POST /api/v1/practice/pronunciation/close", s.handlePronClose)
	mux.HandleFunc("POST /api/v1/practice/writing/begin", s.handleWritingBegin)
	mux.HandleFunc("POST /api/v1/practice/writing/check", s.handleWritingCheck)
	mux.HandleFunc("POST /api/v1/practice/writing/close", s.handleWritingClose)
}

// --- Word of the day ---

type exampleResponse struct {
	ID              string `json:"id"`
	Text            string `json:"text"`
	Transliteration string `json:"transliteration"`
	Translation     string `json:"translation"`
	Favorite        bool   `json:"favorite"`
}

type wordResponse struct {
	ID              string            `json:"id"`
	Text            string            `json:"text"`
	Transliteration string            `json:"transliteration"`
	Translation     string            `json:"translation"`
	ImageURL        string            `json:"imageUrl,omitempty"`
	Examples        []exampleResponse `json:"examples"`
	Learned         bool              `json:"learned"`
	Views           int               `json:"views"`
}

func (s *Server) wordResponse(w vocab.Word) wordResponse {
	snap := s.ledger.Snapshot()
	examples := make([]exampleResponse, 0, len(w.Examples))
	for i, ex := range w.Examples {
		id := vocab.ExampleID(w, i)
		examples = append(examples, exampleResponse{
			ID:              id,
			Text:            ex.Text,
			Transliteration: ex.Transliteration,
			Translation:     ex.Translation,
			Favorite:        snap.IsFavorite(id),
		})
	}
	return wordResponse{
		ID:              w.ID,
		Text:            w.Text,
		Transliteration: w.Transliteration,
		Translation:     w.Translation,
		ImageURL:        w.ImageURL,
		Examples:        examples,
		Learned:         snap.IsLearned(w.ID),
		Views:           snap.ViewHistory[w.ID],
	}
}

// handleWord returns today's word with the learner's flags applied.
func (s *Server) handleWord(w http.ResponseWriter, r *http.Request) {
	word := s.catalogue.WordAt(s.now())
	writeJSON(w, http.StatusOK, s.wordResponse(word))
}

// handleWords returns the whole catalogue, for browsing past and future words.
func (s *Server) handleWords(w http.ResponseWriter, r *http.Request) {
	words := s.catalogue.Words()
	out := make([]wordResponse, 0, len(words))
	for _, word := range words {
		out = append(out, s.wordResponse(word))
	}
	writeJSON(w, http.StatusOK, map[string]any{"words": out})
}

// --- Progress ---

type progressResponse struct {
	LastVisitDate    string         `json:"lastVisitDate"`
	CurrentStreak    int            `json:"currentStreak"`
	LongestStreak    int            `json:"longestStreak"`
	TotalWordsViewed int            `json:"totalWordsViewed"`
	WordsLearned     int            `json:"wordsLearned"`
	FavoriteExamples []string       `json:"favoriteExamples"`
	ViewHistory      map[string]int `json:"viewHistory"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()
	writeJSON(w, http.StatusOK, progressResponse{
		LastVisitDate:    string(snap.LastVisitDate),
		CurrentStreak:    snap.CurrentStreak,
		LongestStreak:    snap.LongestStreak,
		TotalWordsViewed: snap.TotalWordsViewed,
		WordsLearned:     len(snap.LearnedWords),
		FavoriteExamples: snap.FavoriteExamples,
		ViewHistory:      snap.ViewHistory,
	})
}

func (s *Server) handleVisit(w http.ResponseWriter, r *http.Request) {
	changed := s.ledger.RecordVisit(s.now())
	stats := s.ledger.Stats()
	if changed {
		s.metrics.RecordVisit(r.Context(), stats.CurrentStreak)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changed":       changed,
		"currentStreak": stats.CurrentStreak,
		"longestStreak": stats.LongestStreak,
	})
}

type wordIDRequest struct {
	WordID string `json:"wordId"`
}

// resolveWordID validates that the ID names a catalogue word.
func (s *Server) resolveWordID(w http.ResponseWriter, r *http.Request) (vocab.Word, bool) {
	var req wordIDRequest
	if !readJSON(w, r, &req) {
		return vocab.Word{}, false
	}
	word, ok := s.catalogue.ByID(req.WordID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown word %q", req.WordID))
		return vocab.Word{}, false
	}
	return word, true
}

func (s *Server) handleToggleLearned(w http.ResponseWriter, r *http.Request) {
	word, ok := s.resolveWordID(w, r)
	if !ok {
		return
	}
	learned := s.ledger.ToggleLearned(word.ID)
	s.metrics.WordsLearned.Record(r.Context(), int64(s.ledger.Stats().WordsLearned))
	writeJSON(w, http.StatusOK, map[string]any{"wordId": word.ID, "learned": learned})
}

func (s *Server) handleTrackView(w http.ResponseWriter, r *http.Request) {
	word, ok := s.resolveWordID(w, r)
	if !ok {
		return
	}
	s.ledger.TrackView(word.ID)
	snap := s.ledger.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"wordId":           word.ID,
		"views":            snap.ViewHistory[word.ID],
		"totalWordsViewed": snap.TotalWordsViewed,
	})
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExampleID string `json:"exampleId"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.ExampleID == "" {
		writeError(w, http.StatusBadRequest, "exampleId is required")
		return
	}
	favorite := s.ledger.ToggleFavorite(req.ExampleID)
	writeJSON(w, http.StatusOK, map[string]any{"exampleId": req.ExampleID, "favorite": favorite})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Reset(); err != nil {
		s.logger.Error("api: reset progress", "err", err)
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// --- Practice ---

type practiceSnapshot struct {
	Pronunciation pronunciationSnapshot `json:"pronunciation"`
	Writing       writingSnapshot       `json:"writing"`
}

type pronunciationSnapshot struct {
	Supported  bool    `json:"supported"`
	Active     bool    `json:"active"`
	WordID     string  `json:"wordId,omitempty"`
	Listening  bool    `json:"listening"`
	Transcript string  `json:"transcript"`
	Score      float64 `json:"score"`
	Outcome    string  `json:"outcome"`
	Feedback   string  `json:"feedback,omitempty"`
	Message    string  `json:"message,omitempty"`
	Attempts   int     `json:"attempts"`
}

type writingSnapshot struct {
	Active   bool   `json:"active"`
	WordID   string `json:"wordId,omitempty"`
	Attempts int    `json:"attempts"`
	Checked  bool   `json:"checked"`
	Correct  bool   `json:"correct"`
	Hint     string `json:"hint,omitempty"`
}

func toPronunciationSnapshot(a assess.Attempt) pronunciationSnapshot {
	return pronunciationSnapshot{
		Supported:  a.Supported,
		Active:     a.Active,
		WordID:     a.Word.ID,
		Listening:  a.Listening,
		Transcript: a.Transcript,
		Score:      a.Score,
		Outcome:    string(a.Outcome),
		Feedback:   a.Feedback,
		Message:    a.Message,
		Attempts:   a.Attempts,
	}
}

func toWritingSnapshot(ws assess.WritingState) writingSnapshot {
	return writingSnapshot{
		Active:   ws.Active,
		WordID:   ws.Word.ID,
		Attempts: ws.Attempts,
		Checked:  ws.Checked,
		Correct:  ws.Correct,
		Hint:     ws.Hint,
	}
}

func (s *Server) handlePracticeSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, practiceSnapshot{
		Pronunciation: toPronunciationSnapshot(s.pron.Snapshot()),
		Writing:       toWritingSnapshot(s.writing.Snapshot()),
	})
}

// practiceWord resolves the word to practice: an explicit wordId, or today's
// word when the body is empty.
func (s *Server) practiceWord(w http.ResponseWriter, r *http.Request) (vocab.Word, bool) {
	var req wordIDRequest
	if r.ContentLength != 0 {
		if !readJSON(w, r, &req) {
			return vocab.Word{}, false
		}
	}
	if req.WordID == "" {
		return s.catalogue.WordAt(s.now()), true
	}
	word, ok := s.catalogue.ByID(req.WordID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown word %q", req.WordID))
		return vocab.Word{}, false
	}
	return word, true
}

func (s *Server) handlePronBegin(w http.ResponseWriter, r *http.Request) {
	word, ok := s.practiceWord(w, r)
	if !ok {
		return
	}
	s.pron.Begin(r.Context(), word)
	writeJSON(w, http.StatusOK, toPronunciationSnapshot(s.pron.Snapshot()))
}

func (s *Server) handlePronSpeak(w http.ResponseWriter, r *http.Request) {
	s.pron.Speak(r.Context())
	writeJSON(w, http.StatusOK, toPronunciationSnapshot(s.pron.Snapshot()))
}

func (s *Server) handlePronListen(w http.ResponseWriter, r *http.Request) {
	err := s.pron.StartListening(r.Context())
	if errors.Is(err, recognizer.ErrUnsupported) {
		// Not an error from the client's point of view: the panel simply has
		// no microphone behind it.
		writeJSON(w, http.StatusOK, toPronunciationSnapshot(s.pron.Snapshot()))
		return
	}
	if err != nil {
		s.logger.Error("api: start capture", "err", err)
		writeError(w, http.StatusBadGateway, "capture device failed")
		return
	}
	writeJSON(w, http.StatusOK, toPronunciationSnapshot(s.pron.Snapshot()))
}

func (s *Server) handlePronStop(w http.ResponseWriter, r *http.Request) {
	s.pron.StopListening()
	writeJSON(w, http.StatusOK, toPronunciationSnapshot(s.pron.Snapshot()))
}

func (s *Server) handlePronEvaluate(w http.ResponseWriter, r *http.Request) {
	snap := s.pron.Evaluate(r.Context())
	writeJSON(w, http.StatusOK, toPronunciationSnapshot(snap))
}

func (s *Server) handlePronClose(w http.ResponseWriter, r *http.Request) {
	s.pron.Close()
	writeJSON(w, http.StatusOK, toPronunciationSnapshot(s.pron.Snapshot()))
}

func (s *Server) handleWritingBegin(w http.ResponseWriter, r *http.Request) {
	word, ok := s.practiceWord(w, r)
	if !ok {
		return
	}
	s.writing.Begin(word)
	writeJSON(w, http.StatusOK, toWritingSnapshot(s.writing.Snapshot()))
}

func (s *Server) handleWritingCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input string `json:"input"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	state := s.writing.Check(r.Context(), req.Input)
	writeJSON(w, http.StatusOK, toWritingSnapshot(state))
}

func (s *Server) handleWritingClose(w http.ResponseWriter, r *http.Request) {
	s.writing.Close()
	writeJSON(w, http.StatusOK, toWritingSnapshot(s.writing.Snapshot()))
}

// --- Helpers ---

// maxBodyBytes bounds request bodies; every request here is a tiny JSON
// object.
const maxBodyBytes = 1 << 20

// readJSON decodes the request body into v, answering 400 and returning
// false on malformed input.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// writeError answers with a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
