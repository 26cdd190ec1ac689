package bootstrap

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"inkpost/internal/audio"
	"inkpost/internal/capture"
	"inkpost/internal/composer"
	"inkpost/internal/config"
	"inkpost/internal/dictation"
	"inkpost/internal/handwriting"
	"inkpost/internal/logging"
	"inkpost/internal/ports"
	"inkpost/internal/providers/deepgram"
	"inkpost/internal/providers/gemini"
	"inkpost/internal/providers/ollama"
	"inkpost/internal/providers/supabase"
	"inkpost/internal/stylestore"
	"inkpost/internal/telemetry"
	"inkpost/internal/usecase"
)

// Options are the runtime hooks supplied by the application root.
type Options struct {
	Events ports.EventSink
	// Console receives a copy of the log. Nil logs to the file only.
	Console io.Writer
	// OnTrained is called after the composer has picked up a new style table.
	OnTrained handwriting.CompletionFunc
}

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Log        zerolog.Logger
	Controller *usecase.SessionController
	Composer   *composer.Composer
	Trainer    *handwriting.Trainer
	Auth       *supabase.Auth

	logger      *logging.Logger
	store       ports.StyleStore
	telemetry   *telemetry.Provider
	diagnostics *telemetry.DiagnosticsServer
}

// Build wires all backend dependencies for the current runtime.
func Build(ctx context.Context, opts Options) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.Events == nil {
		return nil, errors.New("event sink is required")
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level, opts.Console)
	if err != nil {
		return nil, err
	}
	log := logger.Logger
	s := &Services{Config: cfg, Log: log, logger: logger}

	rulesEngine, err := dictation.New(dictation.Options{
		RulesPath:      cfg.Rules.Path,
		LoopLimit:      cfg.Rules.IterationLimit,
		SpokenCommands: cfg.Rules.SpokenCommands,
	})
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	s.telemetry, err = telemetry.Setup(ctx, telemetry.Options{Environment: cfg.Telemetry.Environment}, log)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	metrics, err := telemetry.NewMetrics(s.telemetry.Meter())
	if err != nil {
		log.Warn().Err(err).Msg("metrics disabled")
		metrics = nil
	}

	s.store = openStyleStore(ctx, cfg.Handwriting.DBPath, log)

	httpClient := &http.Client{Timeout: cfg.Supabase.Timeout}
	supabaseClient := supabase.NewClient(supabase.Config{
		URL:     cfg.Supabase.URL,
		AnonKey: cfg.Supabase.AnonKey,
		Timeout: cfg.Supabase.Timeout,
	}, httpClient)
	s.Auth = supabase.NewAuth(supabaseClient, log)
	storage := supabase.NewStorage(supabaseClient, s.Auth)

	s.Composer = composer.New(newGenerator(cfg.Generation), s.store, metrics, log)
	if err := s.Composer.Init(ctx); err != nil {
		log.Warn().Err(err).Msg("could not read handwriting style")
	}

	templates := handwriting.NewTemplateService(storage, httpClient, handwriting.TemplateConfig{
		TemplateBucket: cfg.Supabase.TemplateBucket,
		UploadBucket:   cfg.Supabase.UploadBucket,
		SignedURLTTL:   cfg.Supabase.SignedURLTTL,
	}, log)
	s.Trainer = handwriting.NewTrainer(s.Auth, s.store, templates, metrics, func(method string) {
		if err := s.Composer.MarkTrained(context.Background()); err != nil {
			log.Warn().Err(err).Msg("re-render after training failed")
		}
		if opts.OnTrained != nil {
			opts.OnTrained(method)
		}
	}, log)

	captureManager := capture.NewManager(
		audio.NewFFMPEGCapture(audio.Options{
			Command:          cfg.Audio.RecorderCommand,
			EchoCancelSource: cfg.Audio.EchoCancelSource,
		}, log),
		deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Session.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
		}),
		capture.Config{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Recognition: ports.RecognitionConfig{
				SampleRate: cfg.Audio.SampleRate,
				Channels:   cfg.Audio.Channels,
				Encoding:   "linear16",
			},
			ChunkSize:      cfg.Session.ChunkSize,
			ReleaseTimeout: cfg.Session.ReleaseTimeout,
		},
		log,
	)

	s.Controller = usecase.NewSessionController(
		captureManager,
		rulesEngine,
		s.Composer,
		opts.Events,
		metrics,
		usecase.Config{
			Language:     cfg.Session.Language,
			RestartDelay: cfg.Speech.RestartDelay,
			SettleDelay:  cfg.Speech.SettleDelay,
			SwitchDelay:  cfg.Speech.SwitchDelay,
			CloseDelay:   cfg.Speech.CloseDelay,
		},
		log,
	)

	if cfg.Telemetry.DiagnosticsAddr != "" {
		s.diagnostics = telemetry.NewDiagnosticsServer(cfg.Telemetry.DiagnosticsAddr, s.telemetry.Handler(), s.ready, log)
		if err := s.diagnostics.Start(); err != nil {
			log.Warn().Err(err).Msg("diagnostics listener disabled")
			s.diagnostics = nil
		}
	}

	log.Info().
		Str("language", cfg.Session.Language).
		Str("generator", cfg.Generation.Provider).
		Str("log_file", logger.Path()).
		Msg("inkpost started")
	return s, nil
}

// Close tears the graph down in reverse order of construction.
func (s *Services) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.Controller != nil {
		s.Controller.Shutdown()
	}
	if s.Composer != nil {
		s.Composer.Close()
	}
	if s.diagnostics != nil {
		errs = append(errs, s.diagnostics.Shutdown(ctx))
	}
	if closer, ok := s.store.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	errs = append(errs, s.telemetry.Shutdown(ctx))
	s.Log.Info().Msg("inkpost stopped")
	errs = append(errs, s.logger.Close())
	return errors.Join(errs...)
}

// ready reports whether the persisted style store answers.
func (s *Services) ready() error {
	pinger, ok := s.store.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return pinger.Ping(context.Background())
}

// openStyleStore prefers the SQLite file and falls back to memory so the
// composer stays usable when the file cannot be opened.
func openStyleStore(ctx context.Context, path string, log zerolog.Logger) ports.StyleStore {
	store, err := stylestore.Open(ctx, path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("style store unavailable, training will not persist")
		return stylestore.NewMemoryStore()
	}
	return store
}

func newGenerator(cfg config.GenerationConfig) ports.Generator {
	if cfg.Provider == "ollama" {
		return ollama.NewGenerator(cfg.OllamaEndpoint, cfg.OllamaModel, &http.Client{Timeout: cfg.Timeout})
	}
	return gemini.NewGenerator(gemini.Config{
		APIKey:     cfg.GeminiAPIKey,
		APIBaseURL: cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		Timeout:    cfg.Timeout,
	}, nil)
}
