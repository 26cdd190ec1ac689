package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"inkpost/internal/capture"
	"inkpost/internal/domain"
	"inkpost/internal/ports"
	"inkpost/internal/telemetry"
)

var (
	ErrNoActiveSession = errors.New("no active recording session")
	ErrSessionActive   = errors.New("a recording session is already active")
)

// CaptureManager acquires and releases microphone + engine handle pairs.
type CaptureManager interface {
	Acquire(ctx context.Context, language string, dispatch capture.Dispatch) (*capture.Handles, error)
	Release(h *capture.Handles) error
}

// Config controls recording session timing.
type Config struct {
	Language string
	// RestartDelay is waited before reacquiring an engine that ended on its own.
	RestartDelay time.Duration
	// SettleDelay lets the engine flush its last final result before release.
	SettleDelay time.Duration
	// SwitchDelay is waited between releasing and reacquiring on a language switch.
	SwitchDelay time.Duration
	// CloseDelay is waited after a completed transcription before the
	// recording surface closes itself.
	CloseDelay time.Duration
}

// SessionController drives the dictation state machine:
// idle -> recording -> processing -> idle.
type SessionController struct {
	capture   CaptureManager
	events    ports.EventSink
	finalizer transcriptFinalizer
	metrics   *telemetry.Metrics
	cfg       Config
	log       zerolog.Logger

	// opMu serializes lifecycle operations. It is never taken by dispatch.
	opMu sync.Mutex

	mu           sync.Mutex
	state        domain.SessionState
	language     string
	sessionID    string
	handles      *capture.Handles
	baseCtx      context.Context
	acc          *transcriptAccumulator
	surfaceOpen  bool
	restartTimer *time.Timer
	closeTimer   *time.Timer
	closeSeq     uint64
}

func NewSessionController(
	captureManager CaptureManager,
	rules ports.TranscriptRules,
	prompt ports.PromptSink,
	events ports.EventSink,
	metrics *telemetry.Metrics,
	cfg Config,
	log zerolog.Logger,
) *SessionController {
	if _, ok := domain.LookupLanguage(cfg.Language); !ok {
		cfg.Language = domain.DefaultLanguage
	}
	return &SessionController{
		capture:   captureManager,
		events:    events,
		finalizer: newTranscriptFinalizer(rules, prompt, events),
		metrics:   metrics,
		cfg:       cfg,
		log:       log.With().Str("component", "session").Logger(),
		state:     domain.SessionStateIdle,
		language:  cfg.Language,
		baseCtx:   context.Background(),
		acc:       newTranscriptAccumulator(),
	}
}

// Open marks the recording surface visible and cancels a pending auto-close.
func (c *SessionController) Open() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.surfaceOpen = true
	c.cancelCloseLocked()
	if c.state == domain.SessionStateIdle {
		c.acc.Reset()
	}
	state := c.state
	c.mu.Unlock()

	c.events.SessionStateChanged(state, domain.SessionReasonSurfaceOpened)
}

// Start acquires the microphone and engine and begins recording.
func (c *SessionController) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != domain.SessionStateIdle {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.cancelCloseLocked()
	language := c.language
	c.mu.Unlock()

	h, err := c.capture.Acquire(ctx, language, c.dispatch)
	if err != nil {
		c.log.Warn().Err(err).Str("language", language).Msg("recording start failed")
		c.events.SessionError(errorCodeFor(err), err.Error())
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonStartFailed)
		return err
	}

	c.mu.Lock()
	c.baseCtx = context.WithoutCancel(ctx)
	c.handles = h
	c.state = domain.SessionStateRecording
	c.sessionID = uuid.NewString()
	c.acc.Reset()
	sessionID := c.sessionID
	c.mu.Unlock()
	h.Activate()

	c.metrics.SessionStarted(ctx, language)
	c.log.Info().Str("session_id", sessionID).Str("language", language).Msg("recording started")
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	return nil
}

// Stop ends recording, lets the engine settle and finalizes the transcript.
// An empty transcript yields an empty result and no completion event.
func (c *SessionController) Stop(ctx context.Context) (domain.StopResult, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.stopLocked(ctx)
}

// Close stops an active recording and hides the recording surface.
func (c *SessionController) Close(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	recording := c.state == domain.SessionStateRecording
	c.mu.Unlock()

	if recording {
		if _, err := c.stopLocked(ctx); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.surfaceOpen = false
	c.cancelCloseLocked()
	c.acc.Reset()
	c.mu.Unlock()

	c.events.SurfaceClosed()
	return nil
}

// SetLanguage changes the recognition language. While recording, the engine
// is released and reacquired for the new language and the committed
// transcript is kept.
func (c *SessionController) SetLanguage(ctx context.Context, language string) error {
	if _, ok := domain.LookupLanguage(language); !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedLanguage, language)
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != domain.SessionStateRecording {
		c.language = language
		c.mu.Unlock()
		return nil
	}
	c.state = domain.SessionStateProcessing
	c.stopRestartLocked()
	previous := c.handles
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStateProcessing, domain.SessionReasonLanguageSwitch)
	c.releaseHandles(previous)

	c.mu.Lock()
	c.handles = nil
	c.state = domain.SessionStateIdle
	c.language = language
	c.acc.DropInterim()
	c.mu.Unlock()
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonLanguageSwitch)

	sleepCtx(ctx, c.cfg.SwitchDelay)

	h, err := c.capture.Acquire(ctx, language, c.dispatch)
	if err != nil {
		c.log.Warn().Err(err).Str("language", language).Msg("restart after language switch failed")
		c.events.SessionError(errorCodeFor(err), err.Error())
		c.finishLocked(domain.SessionReasonStartFailed)
		return err
	}

	c.mu.Lock()
	c.handles = h
	c.state = domain.SessionStateRecording
	c.mu.Unlock()
	h.Activate()

	c.log.Info().Str("language", language).Msg("recognition language switched")
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonLanguageSwitch)
	return nil
}

func (c *SessionController) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// Status returns the current session snapshot.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := domain.Status{
		State:      c.state,
		Active:     c.state != domain.SessionStateIdle,
		Language:   c.language,
		Transcript: c.acc.Displayed(),
		SurfaceOn:  c.surfaceOpen,
	}
	if status.Active {
		status.SessionID = c.sessionID
	}
	return status
}

// Shutdown releases any live handles without emitting session events.
func (c *SessionController) Shutdown() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.stopRestartLocked()
	c.cancelCloseLocked()
	h := c.handles
	c.handles = nil
	c.state = domain.SessionStateIdle
	c.surfaceOpen = false
	c.mu.Unlock()

	if err := c.capture.Release(h); err != nil {
		c.log.Warn().Err(err).Msg("release during shutdown failed")
	}
}

func (c *SessionController) stopLocked(ctx context.Context) (domain.StopResult, error) {
	c.mu.Lock()
	if c.state != domain.SessionStateRecording {
		c.mu.Unlock()
		return domain.StopResult{}, ErrNoActiveSession
	}
	c.state = domain.SessionStateProcessing
	c.stopRestartLocked()
	h := c.handles
	c.mu.Unlock()

	c.events.SessionStateChanged(domain.SessionStateProcessing, domain.SessionReasonFinishing)
	sleepCtx(ctx, c.cfg.SettleDelay)

	c.releaseHandles(h)
	return c.finishLocked(domain.SessionReasonTranscriptReady), nil
}

// finishLocked moves to idle and finalizes whatever was committed. The
// caller holds opMu and has released the handles.
func (c *SessionController) finishLocked(reason domain.SessionStateReason) domain.StopResult {
	c.mu.Lock()
	c.handles = nil
	c.state = domain.SessionStateIdle
	raw := c.acc.Final()
	sessionID := c.sessionID
	c.acc.Reset()
	surfaceOpen := c.surfaceOpen
	c.mu.Unlock()

	if raw == "" {
		if reason == domain.SessionReasonTranscriptReady {
			reason = domain.SessionReasonNoTranscript
		}
		c.events.SessionStateChanged(domain.SessionStateIdle, reason)
		return domain.StopResult{SessionID: sessionID}
	}

	c.events.SessionStateChanged(domain.SessionStateIdle, reason)
	result := c.finalizer.Finalize(sessionID, raw)
	c.log.Info().Str("session_id", sessionID).Int("chars", len(result.FinalTranscript)).Msg("transcription complete")

	if surfaceOpen {
		c.scheduleAutoClose()
	}
	return result
}

// dispatch handles events of the current handle generation. It runs on the
// generation's reader goroutine and must not call Release.
func (c *SessionController) dispatch(event capture.Event) {
	c.mu.Lock()
	if c.handles == nil || c.handles.Generation != event.Generation {
		c.mu.Unlock()
		c.log.Debug().Uint64("generation", event.Generation).Stringer("kind", event.Kind).Msg("stale capture event ignored")
		return
	}
	state := c.state

	switch event.Kind {
	case capture.EventResults:
		if state == domain.SessionStateIdle {
			c.mu.Unlock()
			return
		}
		update := c.acc.Apply(event.Results)
		c.mu.Unlock()
		c.events.PartialTranscript(update.Displayed)

	case capture.EventRecognitionError:
		c.mu.Unlock()
		c.handleRecognitionError(event)

	case capture.EventAudioError:
		c.mu.Unlock()
		c.events.SessionError(domain.ErrorCodeAudioStream, event.Err.Error())

	case capture.EventEnd:
		if event.Expected || state != domain.SessionStateRecording {
			c.mu.Unlock()
			return
		}
		c.stopRestartLocked()
		generation := event.Generation
		c.restartTimer = time.AfterFunc(c.cfg.RestartDelay, func() { c.restart(generation) })
		c.mu.Unlock()
		c.log.Debug().Uint64("generation", generation).Msg("engine ended while recording, restarting")

	default:
		c.mu.Unlock()
	}
}

func (c *SessionController) handleRecognitionError(event capture.Event) {
	var recErr *domain.RecognitionError
	if !errors.As(event.Err, &recErr) {
		recErr = &domain.RecognitionError{Code: domain.RecognitionEngine, Message: event.Err.Error()}
	}
	c.metrics.RecognitionError(context.Background(), recErr.Code)

	if recErr.Silent() {
		c.log.Debug().Str("code", recErr.Code).Msg("no speech detected")
		return
	}
	c.events.SessionError(domain.ErrorCodeRecognition, recErr.Error())
	if recErr.Fatal() {
		c.log.Warn().Str("code", recErr.Code).Str("message", recErr.Message).Msg("recognition failed")
		go c.fail(event.Generation)
	}
}

// fail forces the session to idle after a fatal engine error, keeping the
// text committed so far.
func (c *SessionController) fail(generation uint64) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.handles == nil || c.handles.Generation != generation || c.state == domain.SessionStateIdle {
		c.mu.Unlock()
		return
	}
	c.stopRestartLocked()
	h := c.handles
	c.handles = nil
	c.state = domain.SessionStateProcessing
	c.mu.Unlock()

	c.releaseHandles(h)
	c.finishLocked(domain.SessionReasonEngineFailed)
}

func (c *SessionController) restart(generation uint64) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != domain.SessionStateRecording || c.handles == nil || c.handles.Generation != generation {
		c.mu.Unlock()
		return
	}
	previous := c.handles
	language := c.language
	ctx := c.baseCtx
	c.mu.Unlock()

	c.releaseHandles(previous)

	h, err := c.capture.Acquire(ctx, language, c.dispatch)
	if err != nil {
		c.log.Warn().Err(err).Msg("engine restart failed")
		c.events.SessionError(errorCodeFor(err), "could not restart speech recognition: "+err.Error())
		c.mu.Lock()
		c.state = domain.SessionStateProcessing
		c.mu.Unlock()
		c.finishLocked(domain.SessionReasonEngineFailed)
		return
	}

	c.mu.Lock()
	c.handles = h
	c.acc.DropInterim()
	c.mu.Unlock()
	h.Activate()

	c.metrics.EngineRestarted(ctx)
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingRestarted)
}

// releaseHandles releases h and reports a failed microphone stop.
func (c *SessionController) releaseHandles(h *capture.Handles) {
	if err := c.capture.Release(h); err != nil {
		c.log.Warn().Err(err).Msg("audio capture did not stop cleanly")
		c.events.SessionError(domain.ErrorCodeAudioStop, "failed to stop audio capture cleanly")
	}
}

func (c *SessionController) scheduleAutoClose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelCloseLocked()
	seq := c.closeSeq
	c.closeTimer = time.AfterFunc(c.cfg.CloseDelay, func() { c.autoClose(seq) })
}

func (c *SessionController) autoClose(seq uint64) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if seq != c.closeSeq || !c.surfaceOpen || c.state != domain.SessionStateIdle {
		c.mu.Unlock()
		return
	}
	c.surfaceOpen = false
	c.closeTimer = nil
	c.mu.Unlock()

	c.events.SurfaceClosed()
}

func (c *SessionController) cancelCloseLocked() {
	c.closeSeq++
	if c.closeTimer != nil {
		c.closeTimer.Stop()
		c.closeTimer = nil
	}
}

func (c *SessionController) stopRestartLocked() {
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
}

func errorCodeFor(err error) domain.ErrorCode {
	switch {
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return domain.ErrorCodeDeviceUnavailable
	case errors.Is(err, domain.ErrEngineInit):
		return domain.ErrorCodeEngineInit
	default:
		return domain.ErrorCodeRecognition
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
