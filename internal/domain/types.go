package domain

import "time"

// SessionState models the dictation lifecycle.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateRecording  SessionState = "recording"
	SessionStateProcessing SessionState = "processing"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonSurfaceOpened      SessionStateReason = "surface_opened"
	SessionReasonRecordingStarted   SessionStateReason = "recording_started"
	SessionReasonRecordingRestarted SessionStateReason = "recording_restarted"
	SessionReasonFinishing          SessionStateReason = "finishing"
	SessionReasonLanguageSwitch     SessionStateReason = "language_switch"
	SessionReasonTranscriptReady    SessionStateReason = "transcript_ready"
	SessionReasonNoTranscript       SessionStateReason = "no_transcript"
	SessionReasonEngineFailed       SessionStateReason = "engine_failed"
	SessionReasonStartFailed        SessionStateReason = "start_failed"
	SessionReasonSurfaceClosed      SessionStateReason = "surface_closed"
)

// ErrorCode identifies errors surfaced to the UI as transient notifications.
type ErrorCode string

const (
	ErrorCodeStartup           ErrorCode = "startup"
	ErrorCodeDeviceUnavailable ErrorCode = "device_unavailable"
	ErrorCodeEngineInit        ErrorCode = "engine_init"
	ErrorCodeRecognition       ErrorCode = "recognition"
	ErrorCodeAudioStream       ErrorCode = "audio_stream"
	ErrorCodeAudioStop         ErrorCode = "audio_stop"
	ErrorCodeRules             ErrorCode = "rules"
	ErrorCodeTemplate          ErrorCode = "template"
	ErrorCodeUpload            ErrorCode = "upload"
	ErrorCodeGeneration        ErrorCode = "generation"
	ErrorCodeAuth              ErrorCode = "auth"
)

// RecognitionResult is one alternative reported by the recognition engine.
type RecognitionResult struct {
	IsFinal bool   `json:"isFinal"`
	Text    string `json:"text"`
}

// RecognitionEvent is one message from a recognition stream: either an ordered
// batch of results or an engine error.
type RecognitionEvent struct {
	Results []RecognitionResult
	Err     *RecognitionError
}

// Status summarizes the current recording session.
type Status struct {
	State      SessionState `json:"state"`
	Active     bool         `json:"active"`
	SessionID  string       `json:"sessionId,omitempty"`
	Language   string       `json:"language"`
	Transcript string       `json:"transcript"`
	SurfaceOn  bool         `json:"surfaceOpen"`
	Message    string       `json:"message,omitempty"`
}

// StopResult is returned once a recording has been stopped and settled.
type StopResult struct {
	SessionID       string `json:"sessionId"`
	RawTranscript   string `json:"rawTranscript"`
	FinalTranscript string `json:"finalTranscript"`
}

// ComposedEmail holds the generated or edited email and its styled renderings.
type ComposedEmail struct {
	Subject       string `json:"subject"`
	Content       string `json:"content"`
	StyledSubject string `json:"styledSubject,omitempty"`
	StyledContent string `json:"styledContent,omitempty"`
}

// StyleTable maps a single character to its rendered style fragment.
type StyleTable map[string]string

// AuthSession is the authenticated user session held by the auth collaborator.
type AuthSession struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the session can no longer be used at now.
func (s *AuthSession) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// StorageObject describes an object listed in a remote bucket.
type StorageObject struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updatedAt"`
}
