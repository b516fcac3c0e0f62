package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/anvilane/slovoday/internal/app"
	"github.com/anvilane/slovoday/internal/config"
	"github.com/anvilane/slovoday/internal/observe"
	recmock "github.com/anvilane/slovoday/pkg/provider/recognizer/mock"
	spmock "github.com/anvilane/slovoday/pkg/provider/speech/mock"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Storage: config.StorageConfig{Backend: config.StorageMemory},
		Practice: config.PracticeConfig{
			Language:         "ru-RU",
			CaptureTimeoutMs: 5000,
			AutoCloseMs:      3000,
		},
	}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return metrics
}

func newTestApp(t *testing.T, cfg *config.Config) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg,
		app.WithMetrics(testMetrics(t)),
		app.WithRecognizer(&recmock.Provider{Session: recmock.NewSession()}),
		app.WithSpeech(&spmock.Provider{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func get(t *testing.T, srv *httptest.Server, path string) (int, map[string]any) {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp.StatusCode, body
}

func TestApp_ServesAllSurfaces(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	status, body := get(t, srv, "/healthz")
	if status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("/healthz = %d %v, want 200 ok", status, body)
	}
	status, body = get(t, srv, "/readyz")
	if status != http.StatusOK || body["status"] != "ok" {
		t.Errorf("/readyz = %d %v, want 200 ok", status, body)
	}
	status, body = get(t, srv, "/api/v1/word")
	if status != http.StatusOK || body["id"] == "" {
		t.Errorf("/api/v1/word = %d %v, want a daily word", status, body)
	}
	status, body = get(t, srv, "/api/v1/practice/snapshot")
	if status != http.StatusOK {
		t.Errorf("/api/v1/practice/snapshot = %d, want 200", status)
	}
	if pron, ok := body["pronunciation"].(map[string]any); !ok || pron["supported"] != true {
		t.Errorf("pronunciation snapshot = %v, want supported with mock device", body["pronunciation"])
	}

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics = %d, want 200", resp.StatusCode)
	}
}

func TestApp_SQLiteBackendPersists(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Storage = config.StorageConfig{
		Backend: config.StorageSQLite,
		Path:    filepath.Join(t.TempDir(), "progress.db"),
	}

	a := newTestApp(t, cfg)
	srv := httptest.NewServer(a.Handler())

	resp, err := srv.Client().Post(srv.URL+"/api/v1/progress/visit", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	srv.Close()
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// A second app over the same database sees the recorded visit.
	b := newTestApp(t, cfg)
	srv = httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })

	_, body := get(t, srv, "/api/v1/progress")
	if body["currentStreak"] != float64(1) {
		t.Errorf("currentStreak after reload = %v, want 1", body["currentStreak"])
	}
}

func TestApp_NoProvidersDegradesToUnsupported(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	_, body := get(t, srv, "/api/v1/practice/snapshot")
	pron, ok := body["pronunciation"].(map[string]any)
	if !ok || pron["supported"] != false {
		t.Errorf("pronunciation snapshot = %v, want unsupported", body["pronunciation"])
	}
}

func TestApp_UnknownStorageBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Storage.Backend = "etcd"
	if _, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t))); err == nil {
		t.Fatal("New() accepted an unknown storage backend")
	}
}

func TestApp_RecognizerRequiresAudioPath(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Providers.Recognizer = config.ProviderEntry{
		Name:    "whisper",
		BaseURL: "http://localhost:8178",
	}
	if _, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t))); err == nil {
		t.Fatal("New() accepted a whisper recognizer without an audio source")
	}
}

func TestApp_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Storage = config.StorageConfig{
		Backend: config.StorageSQLite,
		Path:    filepath.Join(t.TempDir(), "progress.db"),
	}
	a := newTestApp(t, cfg)

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
