package usecase

import (
	"strings"
	"sync"

	"inkpost/internal/domain"
)

// TranscriptUpdate is the accumulator state after one batch.
type TranscriptUpdate struct {
	Final     string
	Interim   string
	Displayed string
}

// transcriptAccumulator merges recognition batches into a running transcript.
// Final text only grows; interim text is replaced on every batch.
type transcriptAccumulator struct {
	mu      sync.Mutex
	final   strings.Builder
	interim string
}

func newTranscriptAccumulator() *transcriptAccumulator {
	return &transcriptAccumulator{}
}

func (a *transcriptAccumulator) Apply(batch []domain.RecognitionResult) TranscriptUpdate {
	a.mu.Lock()
	defer a.mu.Unlock()

	var interim strings.Builder
	for _, result := range batch {
		if result.IsFinal {
			text := strings.TrimSpace(result.Text)
			if text == "" {
				continue
			}
			a.final.WriteString(text)
			a.final.WriteByte(' ')
			continue
		}
		interim.WriteString(result.Text)
	}
	a.interim = interim.String()

	return a.snapshotLocked()
}

// Final returns the committed text without its trailing separator.
func (a *transcriptAccumulator) Final() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.TrimSpace(a.final.String())
}

func (a *transcriptAccumulator) Displayed() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.final.String() + a.interim
}

func (a *transcriptAccumulator) Snapshot() TranscriptUpdate {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// DropInterim discards the unconfirmed tail, e.g. when an engine generation
// is replaced before its interim text was finalized.
func (a *transcriptAccumulator) DropInterim() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interim = ""
}

func (a *transcriptAccumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.final.Reset()
	a.interim = ""
}

func (a *transcriptAccumulator) snapshotLocked() TranscriptUpdate {
	final := a.final.String()
	return TranscriptUpdate{
		Final:     final,
		Interim:   a.interim,
		Displayed: final + a.interim,
	}
}
