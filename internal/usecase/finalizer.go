package usecase

import (
	"inkpost/internal/domain"
	"inkpost/internal/ports"
)

type transcriptFinalizer struct {
	rules  ports.TranscriptRules
	prompt ports.PromptSink
	events ports.EventSink
}

func newTranscriptFinalizer(rules ports.TranscriptRules, prompt ports.PromptSink, events ports.EventSink) transcriptFinalizer {
	return transcriptFinalizer{rules: rules, prompt: prompt, events: events}
}

// Finalize applies dictation rules to raw, emits the completion event and
// hands the text to the composer prompt. A rules failure is reported and the
// raw transcript is used unchanged.
func (f transcriptFinalizer) Finalize(sessionID string, raw string) domain.StopResult {
	transformed := raw
	if f.rules != nil {
		out, err := f.rules.Apply(raw)
		if err != nil {
			f.events.SessionError(domain.ErrorCodeRules, err.Error())
		} else {
			transformed = out
		}
	}

	f.events.TranscriptionComplete(raw, transformed)
	if f.prompt != nil {
		f.prompt.AppendTranscription(transformed)
	}

	return domain.StopResult{
		SessionID:       sessionID,
		RawTranscript:   raw,
		FinalTranscript: transformed,
	}
}
