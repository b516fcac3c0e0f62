package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/anvilane/slovoday/internal/api"
	"github.com/anvilane/slovoday/internal/assess"
	"github.com/anvilane/slovoday/internal/capture"
	"github.com/anvilane/slovoday/internal/observe"
	"github.com/anvilane/slovoday/internal/progress"
	"github.com/anvilane/slovoday/internal/vocab"
	recmock "github.com/anvilane/slovoday/pkg/provider/recognizer/mock"
	spmock "github.com/anvilane/slovoday/pkg/provider/speech/mock"
)

const testWords = `
words:
  - text: "Книга"
    transliteration: "Kniga"
    translation: "Book"
    examples:
      - text: "Это интересная книга."
        transliteration: "Eto interesnaya kniga."
        translation: "This is an interesting book."
  - text: "Дом"
    transliteration: "Dom"
    translation: "House"
    examples:
      - text: "Мой дом большой."
        transliteration: "Moy dom bolshoy."
        translation: "My house is big."
`

// testNow pins the clock so the daily word is stable across a test run.
var testNow = time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

type testServer struct {
	*httptest.Server

	ledger     *progress.Ledger
	catalogue  *vocab.Catalogue
	session    *recmock.Session
	speech     *spmock.Provider
	controller *assess.Controller
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithCapture(t, nil)
}

// newTestServerWithCapture lets a test swap in its own capture session, e.g.
// capture.New(nil) for the unsupported-device case.
func newTestServerWithCapture(t *testing.T, cap *capture.Session) *testServer {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	catalogue, err := vocab.LoadFromReader(strings.NewReader(testWords))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	ledger, err := progress.NewLedger(progress.NewMemStore())
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	ts := &testServer{
		ledger:    ledger,
		catalogue: catalogue,
		session:   recmock.NewSession(),
		speech:    &spmock.Provider{},
	}
	if cap == nil {
		cap = capture.New(&recmock.Provider{Session: ts.session})
	}
	ts.controller = assess.NewController(cap, ts.speech, "ru-RU",
		assess.WithMetrics(metrics),
		assess.WithAutoClose(0),
		assess.WithOnLearned(ledger.MarkLearned),
	)
	writing := assess.NewWriting(
		assess.WithMetrics(metrics),
		assess.WithAutoClose(0),
		assess.WithOnAttempt(func(wordID string, outcome assess.Outcome, _ float64) {
			ledger.TrackWritingAttempt(wordID, outcome == assess.OutcomeSuccess)
		}),
	)

	srv := api.New(ledger, catalogue, ts.controller, writing,
		api.WithClock(func() time.Time { return testNow }),
		api.WithMetrics(metrics),
	)
	mux := http.NewServeMux()
	srv.Register(mux)
	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Server.Close)
	return ts
}

// do sends a request and decodes the JSON response into a generic map.
func (ts *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reqBody)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWordOfDay(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	want := ts.catalogue.WordAt(testNow)

	status, body := ts.do(t, http.MethodGet, "/api/v1/word", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["id"] != want.ID {
		t.Errorf("id = %v, want %q", body["id"], want.ID)
	}
	if body["learned"] != false {
		t.Errorf("learned = %v, want false", body["learned"])
	}
	examples, ok := body["examples"].([]any)
	if !ok || len(examples) != len(want.Examples) {
		t.Fatalf("examples = %v, want %d entries", body["examples"], len(want.Examples))
	}
	first := examples[0].(map[string]any)
	if first["id"] != vocab.ExampleID(want, 0) {
		t.Errorf("example id = %v, want %q", first["id"], vocab.ExampleID(want, 0))
	}
	if first["favorite"] != false {
		t.Errorf("favorite = %v, want false", first["favorite"])
	}
}

func TestListWords(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	status, body := ts.do(t, http.MethodGet, "/api/v1/words", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	words, ok := body["words"].([]any)
	if !ok || len(words) != 2 {
		t.Fatalf("words = %v, want 2 entries", body["words"])
	}
}

func TestVisitChangesStreakOncePerDay(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/api/v1/progress/visit", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["changed"] != true || body["currentStreak"] != float64(1) {
		t.Errorf("first visit = %v, want changed with streak 1", body)
	}

	_, body = ts.do(t, http.MethodPost, "/api/v1/progress/visit", nil)
	if body["changed"] != false || body["currentStreak"] != float64(1) {
		t.Errorf("second visit = %v, want unchanged streak 1", body)
	}
}

func TestToggleLearned(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/api/v1/progress/learned/toggle", map[string]string{"wordId": "Книга"})
	if status != http.StatusOK || body["learned"] != true {
		t.Fatalf("toggle on = %d %v, want 200 learned", status, body)
	}
	_, body = ts.do(t, http.MethodPost, "/api/v1/progress/learned/toggle", map[string]string{"wordId": "Книга"})
	if body["learned"] != false {
		t.Errorf("toggle off = %v, want learned false", body)
	}

	status, _ = ts.do(t, http.MethodPost, "/api/v1/progress/learned/toggle", map[string]string{"wordId": "нет"})
	if status != http.StatusNotFound {
		t.Errorf("unknown word status = %d, want 404", status)
	}
}

func TestTrackView(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/api/v1/progress/views", map[string]string{"wordId": "Книга"})
	_, body := ts.do(t, http.MethodPost, "/api/v1/progress/views", map[string]string{"wordId": "Книга"})
	if body["views"] != float64(2) || body["totalWordsViewed"] != float64(2) {
		t.Errorf("views = %v, want 2/2", body)
	}
}

func TestToggleFavorite(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	exampleID := vocab.ExampleID(ts.catalogue.WordAt(testNow), 0)

	_, body := ts.do(t, http.MethodPost, "/api/v1/progress/favorites/toggle", map[string]string{"exampleId": exampleID})
	if body["favorite"] != true {
		t.Errorf("toggle on = %v, want favorite", body)
	}

	_, wordBody := ts.do(t, http.MethodGet, "/api/v1/word", nil)
	first := wordBody["examples"].([]any)[0].(map[string]any)
	if first["favorite"] != true {
		t.Errorf("word example favorite = %v, want true", first["favorite"])
	}

	status, _ := ts.do(t, http.MethodPost, "/api/v1/progress/favorites/toggle", map[string]string{})
	if status != http.StatusBadRequest {
		t.Errorf("empty exampleId status = %d, want 400", status)
	}
}

func TestProgressSummary(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/progress/visit", nil)
	ts.do(t, http.MethodPost, "/api/v1/progress/learned/toggle", map[string]string{"wordId": "Дом"})
	ts.do(t, http.MethodPost, "/api/v1/progress/views", map[string]string{"wordId": "Дом"})

	status, body := ts.do(t, http.MethodGet, "/api/v1/progress", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["currentStreak"] != float64(1) || body["wordsLearned"] != float64(1) || body["totalWordsViewed"] != float64(1) {
		t.Errorf("progress = %v, want streak 1, learned 1, viewed 1", body)
	}
}

func TestResetProgress(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/progress/visit", nil)
	ts.do(t, http.MethodPost, "/api/v1/progress/reset", nil)

	_, body := ts.do(t, http.MethodGet, "/api/v1/progress", nil)
	if body["currentStreak"] != float64(0) || body["lastVisitDate"] != "" {
		t.Errorf("progress after reset = %v, want empty", body)
	}
}

func TestMalformedBody(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	resp, err := ts.Client().Post(ts.URL+"/api/v1/progress/learned/toggle", "application/json", strings.NewReader("{nope"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPronunciationFlow(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	status, body := ts.do(t, http.MethodPost, "/api/v1/practice/pronunciation/begin", map[string]string{"wordId": "Книга"})
	if status != http.StatusOK || body["active"] != true {
		t.Fatalf("begin = %d %v, want active panel", status, body)
	}

	status, _ = ts.do(t, http.MethodPost, "/api/v1/practice/pronunciation/listen", nil)
	if status != http.StatusOK {
		t.Fatalf("listen status = %d, want 200", status)
	}
	ts.session.EmitResult("книга", 0.9, true)
	waitFor(t, func() bool { return !ts.controller.Snapshot().Listening })

	_, body = ts.do(t, http.MethodPost, "/api/v1/practice/pronunciation/evaluate", nil)
	if body["outcome"] != "success" {
		t.Errorf("evaluate = %v, want success", body)
	}
	if body["score"] != float64(100) {
		t.Errorf("score = %v, want 100", body["score"])
	}

	// A successful attempt marks the word learned through the callback.
	if !ts.ledger.IsLearned("Книга") {
		t.Error("word not marked learned after a successful attempt")
	}

	_, body = ts.do(t, http.MethodPost, "/api/v1/practice/pronunciation/close", nil)
	if body["active"] != false {
		t.Errorf("close = %v, want inactive", body)
	}
}

func TestPronunciationBeginDefaultsToDailyWord(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	want := ts.catalogue.WordAt(testNow)

	_, body := ts.do(t, http.MethodPost, "/api/v1/practice/pronunciation/begin", nil)
	if body["wordId"] != want.ID {
		t.Errorf("wordId = %v, want %q", body["wordId"], want.ID)
	}
}

func TestPronunciationUnsupportedDevice(t *testing.T) {
	t.Parallel()

	ts := newTestServerWithCapture(t, capture.New(nil))
	ts.do(t, http.MethodPost, "/api/v1/practice/pronunciation/begin", nil)

	status, body := ts.do(t, http.MethodPost, "/api/v1/practice/pronunciation/listen", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200 even without a device", status)
	}
	if body["supported"] != false {
		t.Errorf("supported = %v, want false", body["supported"])
	}
}

func TestPracticeSnapshot(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/practice/pronunciation/begin", map[string]string{"wordId": "Дом"})

	status, body := ts.do(t, http.MethodGet, "/api/v1/practice/snapshot", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	pron, ok := body["pronunciation"].(map[string]any)
	if !ok || pron["active"] != true || pron["wordId"] != "Дом" {
		t.Errorf("pronunciation snapshot = %v, want active Дом", body["pronunciation"])
	}
	writing, ok := body["writing"].(map[string]any)
	if !ok || writing["active"] != false {
		t.Errorf("writing snapshot = %v, want inactive", body["writing"])
	}
}

func TestWritingFlow(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	_, body := ts.do(t, http.MethodPost, "/api/v1/practice/writing/begin", map[string]string{"wordId": "Дом"})
	if body["active"] != true || body["wordId"] != "Дом" {
		t.Fatalf("begin = %v, want active Дом", body)
	}

	_, body = ts.do(t, http.MethodPost, "/api/v1/practice/writing/check", map[string]string{"input": "дым"})
	if body["correct"] != false || body["attempts"] != float64(1) {
		t.Errorf("wrong answer = %v, want incorrect attempt 1", body)
	}

	_, body = ts.do(t, http.MethodPost, "/api/v1/practice/writing/check", map[string]string{"input": " дом "})
	if body["correct"] != true {
		t.Errorf("right answer = %v, want correct", body)
	}

	// Both checks land in the ledger through the attempt callback.
	stats := ts.ledger.Stats()
	if stats.WritingAttempts != 2 || stats.WritingSuccesses != 1 {
		t.Errorf("ledger stats = %+v, want 2 attempts, 1 success", stats)
	}

	_, body = ts.do(t, http.MethodPost, "/api/v1/practice/writing/close", nil)
	if body["active"] != false {
		t.Errorf("close = %v, want inactive", body)
	}
}

func TestWritingHint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/practice/writing/begin", map[string]string{"wordId": "Книга"})
	ts.do(t, http.MethodPost, "/api/v1/practice/writing/check", map[string]string{"input": "кнега"})
	_, body := ts.do(t, http.MethodPost, "/api/v1/practice/writing/check", map[string]string{"input": "кинга"})

	if body["hint"] != "Книга" {
		t.Errorf("hint = %v, want Книга after two failures", body["hint"])
	}
}
