package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDeviceUnavailable           = errors.New("microphone unavailable")
	ErrUnsupportedPlatform         = fmt.Errorf("%w: no speech recognition engine", ErrDeviceUnavailable)
	ErrEngineInit                  = errors.New("speech recognition engine could not be initialized")
	ErrUnsupportedLanguage         = errors.New("unsupported language")
	ErrTemplateNotFound            = errors.New("template not found in storage")
	ErrUploadFailed                = errors.New("template upload failed")
	ErrMalformedGenerationResponse = errors.New("malformed generation response")
	ErrAuth                        = errors.New("authentication required")
	ErrNoStyleTable                = errors.New("handwriting style table not trained")
)

// Recognition engine error codes.
const (
	RecognitionNoSpeech = "no-speech"
	RecognitionAborted  = "aborted"
	RecognitionNetwork  = "network"
	RecognitionEngine   = "engine"
)

// RecognitionError is a transient fault reported by the recognition engine.
type RecognitionError struct {
	Code    string
	Message string
}

func (e *RecognitionError) Error() string {
	if e.Message == "" {
		return "recognition error: " + e.Code
	}
	return fmt.Sprintf("recognition error: %s: %s", e.Code, e.Message)
}

// Silent reports whether the error is swallowed without notifying the user.
func (e *RecognitionError) Silent() bool {
	return e.Code == RecognitionNoSpeech
}

// Fatal reports whether the error ends the recording session.
func (e *RecognitionError) Fatal() bool {
	return e.Code != RecognitionNoSpeech && e.Code != RecognitionAborted
}
