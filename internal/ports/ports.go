package ports

import (
	"context"
	"io"
	"time"

	"inkpost/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate       int
	Channels         int
	InputFormat      string
	InputDevice      string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// RecognitionConfig describes provider-agnostic recognition settings.
type RecognitionConfig struct {
	Language        string
	SampleRate      int
	Channels        int
	Encoding        string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// RecognitionStream is an open connection to the recognition engine.
type RecognitionStream interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.RecognitionEvent
	Wait() error
	Close() error
}

// RecognitionProvider opens recognition streams.
type RecognitionProvider interface {
	Available() bool
	StartStreaming(ctx context.Context, cfg RecognitionConfig) (RecognitionStream, error)
}

// TranscriptRules transforms a finished transcript deterministically.
type TranscriptRules interface {
	Apply(text string) (string, error)
}

// PromptSink receives finished dictation text.
type PromptSink interface {
	AppendTranscription(text string) string
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	PartialTranscript(text string)
	TranscriptionComplete(raw string, transformed string)
	SurfaceClosed()
	SessionError(code domain.ErrorCode, detail string)
}

// StyleStore persists the handwriting style table under a single key.
type StyleStore interface {
	Load(ctx context.Context) (domain.StyleTable, error)
	Replace(ctx context.Context, table domain.StyleTable) error
}

// Auth is the session collaborator.
type Auth interface {
	Session(ctx context.Context) (*domain.AuthSession, error)
	SignIn(ctx context.Context, email, password string) (*domain.AuthSession, error)
	SignUp(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
}

// UploadOptions are passed to ObjectStorage.Upload.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	Upsert       bool
}

// ObjectStorage is the remote bucket collaborator.
type ObjectStorage interface {
	List(ctx context.Context, bucket string) ([]domain.StorageObject, error)
	SignedURL(ctx context.Context, bucket, name string, ttl time.Duration) (string, error)
	Upload(ctx context.Context, bucket, name string, body io.Reader, opts UploadOptions) error
}

// Generator returns raw text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
