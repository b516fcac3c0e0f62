package assess_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/anvilane/slovoday/internal/assess"
	"github.com/anvilane/slovoday/internal/capture"
	"github.com/anvilane/slovoday/internal/observe"
	"github.com/anvilane/slovoday/internal/vocab"
	"github.com/anvilane/slovoday/pkg/provider/recognizer"
	recmock "github.com/anvilane/slovoday/pkg/provider/recognizer/mock"
	spmock "github.com/anvilane/slovoday/pkg/provider/speech/mock"
)

var kniga = vocab.Word{ID: "Книга", Text: "Книга", Transliteration: "Kniga", Translation: "Book"}

// testRig bundles the controller with its scripted devices and a metric
// reader for assertions.
type testRig struct {
	controller *assess.Controller
	session    *recmock.Session
	speech     *spmock.Provider
	reader     *sdkmetric.ManualReader

	mu      sync.Mutex
	learned []string
}

func newRig(t *testing.T, opts ...assess.Option) *testRig {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	rig := &testRig{
		session: recmock.NewSession(),
		speech:  &spmock.Provider{},
		reader:  reader,
	}
	sess := capture.New(&recmock.Provider{Session: rig.session})

	all := append([]assess.Option{
		assess.WithMetrics(metrics),
		assess.WithOnLearned(func(wordID string) {
			rig.mu.Lock()
			defer rig.mu.Unlock()
			rig.learned = append(rig.learned, wordID)
		}),
	}, opts...)
	rig.controller = assess.NewController(sess, rig.speech, "ru-RU", all...)
	return rig
}

func (r *testRig) learnedWords() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.learned...)
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

func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != name {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestController_BeginSpeaksWord(t *testing.T) {
	t.Parallel()

	rig := newRig(t)
	rig.controller.Begin(context.Background(), kniga)

	waitFor(t, func() bool { return rig.speech.SpeakCallCount() == 1 })
	call, _ := rig.speech.LastSpeak()
	if call.Text != "Книга" || call.Language != "ru-RU" {
		t.Errorf("Speak(%q, %q), want Книга in ru-RU", call.Text, call.Language)
	}

	snap := rig.controller.Snapshot()
	if !snap.Active || snap.Outcome != assess.OutcomePending || snap.Attempts != 0 {
		t.Errorf("Snapshot after Begin = %+v, want active pending", snap)
	}
}

func TestController_SuccessfulAttempt(t *testing.T) {
	t.Parallel()

	rig := newRig(t, assess.WithAutoClose(0))
	c := rig.controller
	c.Begin(context.Background(), kniga)

	if err := c.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	rig.session.EmitResult("книга", 0.9, true)
	waitFor(t, func() bool { return !c.Snapshot().Listening })

	snap := c.Evaluate(context.Background())
	if snap.Outcome != assess.OutcomeSuccess {
		t.Errorf("Outcome = %q, want success", snap.Outcome)
	}
	if snap.Score != 100 {
		t.Errorf("Score = %v, want 100", snap.Score)
	}
	if snap.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", snap.Attempts)
	}
	if snap.Feedback != "Excellent! Your pronunciation is great!" {
		t.Errorf("Feedback = %q", snap.Feedback)
	}
	if got := rig.learnedWords(); len(got) != 1 || got[0] != "Книга" {
		t.Errorf("learned callback got %v, want [Книга]", got)
	}
	if got := counterValue(t, rig.reader, "slovoday.practice.attempts"); got != 1 {
		t.Errorf("attempts counter = %d, want 1", got)
	}
}

func TestController_FailedAttemptKeepsPanelOpen(t *testing.T) {
	t.Parallel()

	rig := newRig(t)
	c := rig.controller
	c.Begin(context.Background(), kniga)

	if err := c.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	rig.session.EmitResult("дом", 0.9, true)
	waitFor(t, func() bool { return !c.Snapshot().Listening })

	snap := c.Evaluate(context.Background())
	if snap.Outcome != assess.OutcomeFailure {
		t.Errorf("Outcome = %q, want failure", snap.Outcome)
	}
	if snap.Score >= 70 {
		t.Errorf("Score = %v, want below threshold", snap.Score)
	}
	if !snap.Active {
		t.Error("panel closed after a failed attempt")
	}
	if got := rig.learnedWords(); len(got) != 0 {
		t.Errorf("learned callback fired on failure: %v", got)
	}
}

func TestController_SuccessAutoCloses(t *testing.T) {
	t.Parallel()

	rig := newRig(t, assess.WithAutoClose(20*time.Millisecond))
	c := rig.controller
	c.Begin(context.Background(), kniga)

	if err := c.StartListening(context.Background()); err != nil {
		t.Fatal(err)
	}
	rig.session.EmitResult("книга", 1, true)
	waitFor(t, func() bool { return !c.Snapshot().Listening })
	c.Evaluate(context.Background())

	waitFor(t, func() bool { return !c.Snapshot().Active })
}

func TestController_DeviceErrorLeavesAttemptPending(t *testing.T) {
	t.Parallel()

	rig := newRig(t)
	c := rig.controller
	c.Begin(context.Background(), kniga)

	if err := c.StartListening(context.Background()); err != nil {
		t.Fatal(err)
	}
	rig.session.EmitError(recognizer.ErrorNoSpeech)
	rig.session.End()
	waitFor(t, func() bool { return !c.Snapshot().Listening })

	snap := c.Evaluate(context.Background())
	if snap.Outcome != assess.OutcomePending {
		t.Errorf("Outcome = %q, want pending after device error", snap.Outcome)
	}
	if snap.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0 — errors are not attempts", snap.Attempts)
	}
	if snap.Message == "" {
		t.Error("Message is empty, want the no-speech text")
	}
	if got := counterValue(t, rig.reader, "slovoday.capture.errors"); got != 1 {
		t.Errorf("capture error counter = %d, want 1", got)
	}
	if got := counterValue(t, rig.reader, "slovoday.practice.attempts"); got != 0 {
		t.Errorf("attempts counter = %d, want 0", got)
	}
}

func TestController_EvaluateWhileListeningIsNoOp(t *testing.T) {
	t.Parallel()

	rig := newRig(t)
	c := rig.controller
	c.Begin(context.Background(), kniga)

	if err := c.StartListening(context.Background()); err != nil {
		t.Fatal(err)
	}
	rig.session.EmitResult("кни", 0.4, false)

	snap := c.Evaluate(context.Background())
	if snap.Outcome != assess.OutcomePending || snap.Attempts != 0 {
		t.Errorf("Evaluate during capture = %+v, want untouched pending state", snap)
	}

	rig.session.End()
	waitFor(t, func() bool { return !c.Snapshot().Listening })
}

func TestController_UnsupportedDevice(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}

	c := assess.NewController(capture.New(nil), nil, "ru-RU", assess.WithMetrics(metrics))
	c.Begin(context.Background(), kniga)

	snap := c.Snapshot()
	if snap.Supported {
		t.Error("Supported = true with no device")
	}
	if err := c.StartListening(context.Background()); !errors.Is(err, recognizer.ErrUnsupported) {
		t.Errorf("StartListening() error = %v, want ErrUnsupported", err)
	}
}

func TestController_CloseCancelsSpeech(t *testing.T) {
	t.Parallel()

	rig := newRig(t)
	c := rig.controller
	c.Begin(context.Background(), kniga)
	c.Close()

	if rig.speech.CancelCallCount == 0 {
		t.Error("Close did not cancel playback")
	}
	snap := c.Snapshot()
	if snap.Active || snap.Word.ID != "" {
		t.Errorf("Snapshot after Close = %+v, want empty", snap)
	}
}
