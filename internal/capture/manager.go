package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"inkpost/internal/domain"
	"inkpost/internal/ports"
)

// EventKind tags events delivered by a handle generation.
type EventKind int

const (
	EventResults EventKind = iota
	EventRecognitionError
	EventAudioError
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventResults:
		return "results"
	case EventRecognitionError:
		return "recognition_error"
	case EventAudioError:
		return "audio_error"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Event is delivered to the dispatch function of the handle generation that
// produced it.
type Event struct {
	Generation uint64
	Kind       EventKind
	Results    []domain.RecognitionResult
	Err        error
	// Expected is set on EventEnd when the end was requested through Release.
	Expected bool
}

// Dispatch receives the events of one handle generation. Results, engine
// errors and the end event arrive in order from a single goroutine; audio
// errors come from the pump goroutine.
type Dispatch func(Event)

// Config controls device and engine acquisition.
type Config struct {
	Audio          ports.AudioConfig
	Recognition    ports.RecognitionConfig
	ChunkSize      int
	ReleaseTimeout time.Duration
}

// Handles is a live microphone + recognition stream pair.
type Handles struct {
	Generation uint64
	Language   string

	audio  ports.AudioSession
	stream ports.RecognitionStream
	cancel context.CancelFunc

	ready      chan struct{}
	readyOnce  sync.Once
	readerDone chan struct{}
	pumpDone   chan struct{}

	stopping    atomic.Bool
	releaseOnce sync.Once
	releaseErr  error
}

// Activate starts event delivery. The owner calls it once it has recorded
// the generation, so no event can arrive before the owner knows about it.
func (h *Handles) Activate() {
	h.readyOnce.Do(func() { close(h.ready) })
}

func (h *Handles) releasing() bool {
	return h.stopping.Load()
}

// Manager owns acquisition and release of capture handles.
type Manager struct {
	audio    ports.AudioCapture
	provider ports.RecognitionProvider
	cfg      Config
	log      zerolog.Logger

	generation atomic.Uint64
}

func NewManager(audio ports.AudioCapture, provider ports.RecognitionProvider, cfg Config, log zerolog.Logger) *Manager {
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = 4 * time.Second
	}
	return &Manager{
		audio:    audio,
		provider: provider,
		cfg:      cfg,
		log:      log.With().Str("component", "capture").Logger(),
	}
}

// Acquire opens the recognition stream and the microphone for language and
// prepares delivery of its events to dispatch; delivery begins on Activate.
func (m *Manager) Acquire(ctx context.Context, language string, dispatch Dispatch) (*Handles, error) {
	if m.provider == nil || !m.provider.Available() {
		return nil, domain.ErrUnsupportedPlatform
	}
	if m.audio == nil {
		return nil, domain.ErrDeviceUnavailable
	}

	recCfg := m.cfg.Recognition
	recCfg.Language = language
	recCfg.Continuous = true
	recCfg.InterimResults = true
	recCfg.MaxAlternatives = 1

	audioCfg := m.cfg.Audio
	audioCfg.EchoCancellation = true
	audioCfg.NoiseSuppression = true
	audioCfg.AutoGainControl = true

	handleCtx, cancel := context.WithCancel(ctx)
	stream, err := m.provider.StartStreaming(handleCtx, recCfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %w", domain.ErrEngineInit, err)
	}

	audio, err := m.audio.Start(handleCtx, audioCfg)
	if err != nil {
		_ = stream.Close()
		cancel()
		return nil, fmt.Errorf("%w: %w", domain.ErrDeviceUnavailable, err)
	}

	h := &Handles{
		Generation: m.generation.Add(1),
		Language:   language,
		audio:      audio,
		stream:     stream,
		cancel:     cancel,
		ready:      make(chan struct{}),
		readerDone: make(chan struct{}),
		pumpDone:   make(chan struct{}),
	}

	go m.readEvents(h, dispatch)
	go pumpAudio(h, m.cfg.ChunkSize, func(err error) {
		<-h.ready
		dispatch(Event{Generation: h.Generation, Kind: EventAudioError, Err: err})
	})

	m.log.Debug().Uint64("generation", h.Generation).Str("language", language).Msg("capture acquired")
	return h, nil
}

// Release stops the recognition stream and the microphone and waits for the
// generation's goroutines to exit. It is safe to call more than once and on
// nil handles. It must not be called from the generation's dispatch function.
func (m *Manager) Release(h *Handles) error {
	if h == nil {
		return nil
	}

	h.releaseOnce.Do(func() {
		h.stopping.Store(true)
		h.Activate()

		if err := h.audio.Stop(); err != nil {
			h.releaseErr = err
		}
		<-h.pumpDone

		_ = h.stream.CloseSend()
		if err := waitForStream(h.stream, m.cfg.ReleaseTimeout); err != nil {
			m.log.Debug().Err(err).Uint64("generation", h.Generation).Msg("recognition stream ended with error")
		}
		<-h.readerDone
		h.cancel()

		m.log.Debug().Uint64("generation", h.Generation).Msg("capture released")
	})

	return h.releaseErr
}

// SwitchLanguage releases h and acquires a new pair for language. The caller
// restarts its session if one was active.
func (m *Manager) SwitchLanguage(ctx context.Context, h *Handles, language string, dispatch Dispatch) (*Handles, error) {
	if err := m.Release(h); err != nil {
		m.log.Warn().Err(err).Msg("audio stop failed during language switch")
	}
	return m.Acquire(ctx, language, dispatch)
}

func (m *Manager) readEvents(h *Handles, dispatch Dispatch) {
	defer close(h.readerDone)
	<-h.ready

	for event := range h.stream.Events() {
		if event.Err != nil {
			dispatch(Event{Generation: h.Generation, Kind: EventRecognitionError, Err: event.Err})
			continue
		}
		if len(event.Results) == 0 {
			continue
		}
		dispatch(Event{Generation: h.Generation, Kind: EventResults, Results: event.Results})
	}

	err := h.stream.Wait()
	dispatch(Event{Generation: h.Generation, Kind: EventEnd, Err: err, Expected: h.releasing()})
}
