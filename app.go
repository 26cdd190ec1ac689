package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"inkpost/internal/bootstrap"
	"inkpost/internal/composer"
	"inkpost/internal/domain"
	"inkpost/internal/handwriting"
	"inkpost/internal/usecase"
)

const (
	eventSession       = "inkpost:session"
	eventPartial       = "inkpost:partial"
	eventTranscription = "inkpost:transcription"
	eventSurfaceClosed = "inkpost:surface-closed"
	eventTrained       = "inkpost:trained"
	eventError         = "inkpost:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services *bootstrap.Services
	bootErr  error

	drawMu sync.Mutex
	draw   *handwriting.DrawSession
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, bootstrap.Options{
		Events:    a,
		Console:   os.Stderr,
		OnTrained: a.trainingCompleted,
	})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}
	a.services = services
	a.SessionStateChanged(domain.SessionStateIdle, "")
}

func (a *App) shutdown(ctx context.Context) {
	if a.services == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.services.Close(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "inkpost shutdown: %v\n", err)
	}
}

// OpenRecorder shows the recording surface.
func (a *App) OpenRecorder() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.services.Controller.Open()
	return a.services.Controller.Status(), nil
}

// StartRecording starts dictation in the current language.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Start(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return a.services.Controller.Status(), nil
}

// StopRecording stops dictation and returns the processed transcript.
func (a *App) StopRecording() (domain.StopResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.StopResult{}, err
	}
	result, err := a.services.Controller.Stop(a.ctx)
	if errors.Is(err, usecase.ErrNoActiveSession) {
		return domain.StopResult{}, nil
	}
	return result, err
}

// CloseRecorder stops any live recording and hides the recording surface.
func (a *App) CloseRecorder() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Controller.Close(a.ctx)
}

// SetLanguage switches the recognition language, restarting a live recording.
func (a *App) SetLanguage(code string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.SetLanguage(a.ctx, code); err != nil {
		return domain.Status{}, err
	}
	return a.services.Controller.Status(), nil
}

// GetLanguages lists the supported recognition languages.
func (a *App) GetLanguages() []domain.Language {
	return domain.SupportedLanguages
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.services == nil {
		status := domain.Status{State: domain.SessionStateIdle, Language: domain.DefaultLanguage}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.services.Controller.Status()
}

// GetComposer returns the composer state.
func (a *App) GetComposer() (composer.Snapshot, error) {
	if err := a.requireReady(); err != nil {
		return composer.Snapshot{}, err
	}
	return a.services.Composer.Snapshot(), nil
}

func (a *App) SetPrompt(prompt string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.services.Composer.SetPrompt(prompt)
	return nil
}

func (a *App) SetEmailType(emailType string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Composer.SetEmailType(emailType)
}

func (a *App) SetSubject(subject string) (domain.ComposedEmail, error) {
	if err := a.requireReady(); err != nil {
		return domain.ComposedEmail{}, err
	}
	return a.services.Composer.SetSubject(a.ctx, subject)
}

func (a *App) SetContent(content string) (domain.ComposedEmail, error) {
	if err := a.requireReady(); err != nil {
		return domain.ComposedEmail{}, err
	}
	return a.services.Composer.SetContent(a.ctx, content)
}

// SetHandwritingMode toggles styled rendering and reports whether training
// must run first.
func (a *App) SetHandwritingMode(on bool) (bool, error) {
	if err := a.requireReady(); err != nil {
		return false, err
	}
	return a.services.Composer.SetHandwritingMode(a.ctx, on)
}

// GenerateEmail asks the generator for a subject and body.
func (a *App) GenerateEmail() (domain.ComposedEmail, error) {
	if err := a.requireReady(); err != nil {
		return domain.ComposedEmail{}, err
	}
	email, err := a.services.Composer.Generate(a.ctx)
	switch {
	case errors.Is(err, composer.ErrStaleResponse):
		return a.services.Composer.Snapshot().Email, nil
	case err != nil:
		a.SessionError(domain.ErrorCodeGeneration, err.Error())
	}
	return email, err
}

func (a *App) SignIn(email, password string) (*domain.AuthSession, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	session, err := a.services.Auth.SignIn(a.ctx, email, password)
	if err != nil {
		a.SessionError(domain.ErrorCodeAuth, err.Error())
	}
	return session, err
}

func (a *App) SignUp(email, password string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	err := a.services.Auth.SignUp(a.ctx, email, password)
	if err != nil {
		a.SessionError(domain.ErrorCodeAuth, err.Error())
	}
	return err
}

func (a *App) SignOut() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Auth.SignOut(a.ctx)
}

func (a *App) GetSession() (*domain.AuthSession, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Auth.Session(a.ctx)
}

// StartDrawingTraining begins draw-by-character training on a canvas of the
// given size.
func (a *App) StartDrawingTraining(width, height int) (handwriting.Progress, error) {
	if err := a.requireReady(); err != nil {
		return handwriting.Progress{}, err
	}
	session, err := a.services.Trainer.StartDrawing(a.ctx, width, height)
	if err != nil {
		a.SessionError(domain.ErrorCodeAuth, err.Error())
		return handwriting.Progress{}, err
	}
	a.drawMu.Lock()
	a.draw = session
	a.drawMu.Unlock()
	return session.Progress(), nil
}

func (a *App) BeginStroke(x, y float32) error {
	session, err := a.drawSession()
	if err != nil {
		return err
	}
	return session.BeginStroke(x, y)
}

func (a *App) ExtendStroke(x, y float32) error {
	session, err := a.drawSession()
	if err != nil {
		return err
	}
	session.ExtendStroke(x, y)
	return nil
}

// EndStroke lifts the pen and returns the canvas as a PNG data URL.
func (a *App) EndStroke() (string, error) {
	session, err := a.drawSession()
	if err != nil {
		return "", err
	}
	return session.EndStroke()
}

func (a *App) SetEraser(on bool) error {
	session, err := a.drawSession()
	if err != nil {
		return err
	}
	session.SetEraser(on)
	return nil
}

func (a *App) ClearCanvas() error {
	session, err := a.drawSession()
	if err != nil {
		return err
	}
	session.Clear()
	return nil
}

// ConfirmCharacter stores the current drawing and advances to the next
// character.
func (a *App) ConfirmCharacter() (handwriting.Progress, error) {
	session, err := a.drawSession()
	if err != nil {
		return handwriting.Progress{}, err
	}
	progress, err := session.Confirm(a.ctx)
	if err != nil {
		return progress, err
	}
	if progress.Done {
		a.drawMu.Lock()
		if a.draw == session {
			a.draw = nil
		}
		a.drawMu.Unlock()
	}
	return progress, nil
}

// DownloadTemplate returns a signed PDF link or a zip of the PNG pages.
func (a *App) DownloadTemplate(format string) (*handwriting.TemplateDownload, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	download, err := a.services.Trainer.DownloadTemplate(a.ctx, handwriting.TemplateFormat(format))
	if err != nil {
		a.SessionError(trainingErrorCode(err, domain.ErrorCodeTemplate), err.Error())
	}
	return download, err
}

// UploadTemplate stores a filled-in template and returns its object name.
func (a *App) UploadTemplate(fileName string, body []byte) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	name, err := a.services.Trainer.UploadTemplate(a.ctx, fileName, body)
	if err != nil {
		a.SessionError(trainingErrorCode(err, domain.ErrorCodeUpload), err.Error())
	}
	return name, err
}

func (a *App) drawSession() (*handwriting.DrawSession, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	a.drawMu.Lock()
	defer a.drawMu.Unlock()
	if a.draw == nil {
		return nil, errors.New("no drawing training in progress")
	}
	return a.draw, nil
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) trainingCompleted(method string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTrained, map[string]string{"method": method})
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// PartialTranscript emits the running transcript text.
func (a *App) PartialTranscript(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventPartial, map[string]string{"text": text})
}

// TranscriptionComplete emits the finished transcript.
func (a *App) TranscriptionComplete(raw string, transformed string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscription, map[string]string{
		"raw":         raw,
		"transformed": transformed,
	})
}

// SurfaceClosed tells the frontend to hide the recording surface.
func (a *App) SurfaceClosed() {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSurfaceClosed)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func trainingErrorCode(err error, fallback domain.ErrorCode) domain.ErrorCode {
	if errors.Is(err, domain.ErrAuth) {
		return domain.ErrorCodeAuth
	}
	return fallback
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonSurfaceOpened:
		return "Ready to record"
	case domain.SessionReasonRecordingStarted:
		return "Listening..."
	case domain.SessionReasonRecordingRestarted:
		return "Listening..."
	case domain.SessionReasonFinishing:
		return "Processing..."
	case domain.SessionReasonLanguageSwitch:
		return "Switching language..."
	case domain.SessionReasonTranscriptReady:
		return "Transcription complete"
	case domain.SessionReasonNoTranscript:
		return "No speech captured"
	case domain.SessionReasonEngineFailed:
		return "Speech recognition stopped"
	case domain.SessionReasonStartFailed:
		return "Could not start recording"
	case domain.SessionReasonSurfaceClosed:
		return "Recorder closed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeDeviceUnavailable:
		return "Could not access microphone"
	case domain.ErrorCodeEngineInit:
		return "Speech recognition unavailable"
	case domain.ErrorCodeRecognition:
		return "Speech recognition error"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeRules:
		return "Dictation rules failed"
	case domain.ErrorCodeTemplate:
		return "Failed to download template"
	case domain.ErrorCodeUpload:
		return "Failed to upload template"
	case domain.ErrorCodeGeneration:
		return "Failed to generate email"
	case domain.ErrorCodeAuth:
		return "Please sign in to continue"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
