// Package app wires all Slovoday subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject test doubles via functional options (WithStore,
// WithRecognizer, WithSpeech, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/anvilane/slovoday/internal/api"
	"github.com/anvilane/slovoday/internal/assess"
	"github.com/anvilane/slovoday/internal/capture"
	"github.com/anvilane/slovoday/internal/config"
	"github.com/anvilane/slovoday/internal/health"
	"github.com/anvilane/slovoday/internal/observe"
	"github.com/anvilane/slovoday/internal/progress"
	"github.com/anvilane/slovoday/internal/resilience"
	"github.com/anvilane/slovoday/internal/review"
	"github.com/anvilane/slovoday/internal/vocab"
	"github.com/anvilane/slovoday/pkg/provider/recognizer"
	"github.com/anvilane/slovoday/pkg/provider/recognizer/whisper"
	"github.com/anvilane/slovoday/pkg/provider/speech"
	"github.com/anvilane/slovoday/pkg/provider/speech/coqui"
)

// shutdownTimeout bounds how long Run waits for the HTTP server to drain
// in-flight requests after the context is cancelled.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observe.Metrics

	store      progress.Store
	ledger     *progress.Ledger
	catalogue  *vocab.Catalogue
	controller *assess.Controller
	writing    *assess.Writing
	httpServer *http.Server

	recognizer recognizer.Provider
	speech     speech.Provider
	audio      whisper.AudioSource

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a progress store instead of creating one from config.
func WithStore(s progress.Store) Option {
	return func(a *App) { a.store = s }
}

// WithRecognizer injects a capture provider instead of creating one from
// config.
func WithRecognizer(p recognizer.Provider) Option {
	return func(a *App) { a.recognizer = p }
}

// WithSpeech injects a speech provider instead of creating one from config.
func WithSpeech(p speech.Provider) Option {
	return func(a *App) { a.speech = p }
}

// WithAudioSource sets the PCM source handed to the capture provider.
// Defaults to reading the path named by the recognizer's audio_path option.
func WithAudioSource(src whisper.AudioSource) Option {
	return func(a *App) { a.audio = src }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) {
		if m != nil {
			a.metrics = m
		}
	}
}

// New creates an App by wiring all subsystems together: the durable progress
// ledger, the word catalogue, the practice controllers over their providers,
// and the HTTP server. Use Option functions to inject test doubles for any
// subsystem.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initCatalogue(); err != nil {
		return nil, fmt.Errorf("app: init catalogue: %w", err)
	}
	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}
	a.initPractice()
	a.initHTTP()

	return a, nil
}

// initStore sets up the progress store per the configured backend and the
// ledger over it.
func (a *App) initStore() error {
	if a.store == nil {
		switch a.cfg.Storage.Backend {
		case config.StorageMemory:
			a.store = progress.NewMemStore()
		case config.StorageFile:
			store, err := progress.NewFileStore(a.cfg.Storage.Path)
			if err != nil {
				return err
			}
			a.store = store
		case config.StorageSQLite:
			store, err := progress.NewSQLiteStore(a.cfg.Storage.Path)
			if err != nil {
				return err
			}
			a.store = store
			a.closers = append(a.closers, store.Close)
		default:
			return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
		}
	}

	ledger, err := progress.NewLedger(a.store, progress.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.ledger = ledger
	return nil
}

// initCatalogue loads the word catalogue: a configured YAML file, or the
// embedded starter set.
func (a *App) initCatalogue() error {
	if a.cfg.Vocabulary.Path == "" {
		c, err := vocab.LoadEmbedded()
		if err != nil {
			return err
		}
		a.catalogue = c
		return nil
	}
	c, err := vocab.Load(a.cfg.Vocabulary.Path)
	if err != nil {
		return err
	}
	a.catalogue = c
	a.logger.Info("loaded vocabulary", "path", a.cfg.Vocabulary.Path, "words", c.Len())
	return nil
}

// initProviders builds the capture and speech providers from config via the
// provider registry. A missing provider is not an error — practice degrades
// to unsupported — but a configured provider that fails to construct is.
func (a *App) initProviders() error {
	reg := config.NewRegistry()
	reg.RegisterRecognizer("whisper", a.newWhisper)
	reg.RegisterSpeech("coqui", newCoqui)

	// Real backends get a circuit breaker so a server that goes down is not
	// hammered on every practice attempt.
	if a.recognizer == nil && a.cfg.Providers.Recognizer.Name != "" {
		p, err := reg.CreateRecognizer(a.cfg.Providers.Recognizer)
		if err != nil {
			return err
		}
		a.recognizer = resilience.NewRecognizerGroup(p, a.cfg.Providers.Recognizer.Name, resilience.FallbackConfig{})
	}
	if a.speech == nil && a.cfg.Providers.Speech.Name != "" {
		p, err := reg.CreateSpeech(a.cfg.Providers.Speech)
		if err != nil {
			return err
		}
		a.speech = resilience.NewSpeechGroup(p, a.cfg.Providers.Speech.Name, resilience.FallbackConfig{})
	}

	if a.recognizer == nil {
		a.logger.Warn("no capture provider configured, pronunciation practice disabled")
	}
	if a.speech == nil {
		a.logger.Warn("no speech provider configured, word playback disabled")
	}
	return nil
}

// newWhisper constructs the whisper-server backed capture provider. The audio
// source comes from WithAudioSource or the audio_path option (a file or FIFO
// carrying 16-bit mono PCM).
func (a *App) newWhisper(entry config.ProviderEntry) (recognizer.Provider, error) {
	src := a.audio
	if src == nil {
		path := stringOption(entry, "audio_path")
		if path == "" {
			return nil, errors.New("recognizer whisper: audio_path option or an injected audio source is required")
		}
		src = whisper.SourceFunc(func(ctx context.Context) (io.ReadCloser, error) {
			return os.Open(path)
		})
	}

	var opts []whisper.Option
	if entry.Model != "" {
		opts = append(opts, whisper.WithModel(entry.Model))
	}
	return whisper.New(entry.BaseURL, src, opts...)
}

// newCoqui constructs the Coqui TTS backed speech provider.
func newCoqui(entry config.ProviderEntry) (speech.Provider, error) {
	var opts []coqui.Option
	if id := stringOption(entry, "speaker_id"); id != "" {
		opts = append(opts, coqui.WithSpeakerID(id))
	}
	return coqui.New(entry.BaseURL, opts...), nil
}

// stringOption reads a string value from a provider's options map.
func stringOption(entry config.ProviderEntry, key string) string {
	v, ok := entry.Options[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// initPractice builds the pronunciation controller and the writing panel,
// wired into the ledger: a successful pronunciation marks the word learned,
// and every writing check lands in the writing stats.
func (a *App) initPractice() {
	pc := a.cfg.Practice
	sess := capture.New(a.recognizer)

	var reviewLog *review.Log
	if pc.ReviewLog != "" {
		reviewLog = review.NewLog(pc.ReviewLog)
	}
	logAttempt := func(wordID, mode string, outcome assess.Outcome, score float64) {
		if reviewLog == nil {
			return
		}
		if err := reviewLog.Append(wordID, mode, string(outcome), score); err != nil {
			a.logger.Warn("review log append failed", "err", err)
		}
	}

	a.controller = assess.NewController(sess, a.speech, pc.Language,
		assess.WithMetrics(a.metrics),
		assess.WithLogger(a.logger),
		assess.WithCaptureTimeout(time.Duration(pc.CaptureTimeoutMs)*time.Millisecond),
		assess.WithAutoClose(time.Duration(pc.AutoCloseMs)*time.Millisecond),
		assess.WithOnLearned(a.ledger.MarkLearned),
		assess.WithOnAttempt(func(wordID string, outcome assess.Outcome, score float64) {
			logAttempt(wordID, "pronunciation", outcome, score)
		}),
	)
	a.writing = assess.NewWriting(
		assess.WithMetrics(a.metrics),
		assess.WithLogger(a.logger),
		assess.WithAutoClose(time.Duration(pc.AutoCloseMs)*time.Millisecond),
		assess.WithOnAttempt(func(wordID string, outcome assess.Outcome, _ float64) {
			a.ledger.TrackWritingAttempt(wordID, outcome == assess.OutcomeSuccess)
			logAttempt(wordID, "writing", outcome, -1)
		}),
	)
}

// initHTTP assembles the server: the widget API, health probes, and the
// Prometheus scrape endpoint, all behind the observability middleware.
func (a *App) initHTTP() {
	mux := http.NewServeMux()

	srv := api.New(a.ledger, a.catalogue, a.controller, a.writing,
		api.WithLogger(a.logger),
		api.WithMetrics(a.metrics),
	)
	srv.Register(mux)
	health.New(health.StoreChecker(a.store)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpServer = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Handler exposes the assembled HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("listening", "addr", a.cfg.Server.ListenAddr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown drains the HTTP server, closes the practice panels, and tears down
// the remaining subsystems in order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down")

		if err := a.httpServer.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("app: shutdown http: %w", err)
		}
		a.controller.Close()
		a.writing.Close()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				if shutdownErr == nil {
					shutdownErr = ctx.Err()
				}
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}
		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}
