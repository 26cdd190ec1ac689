package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inkpost/internal/domain"
	"inkpost/internal/ports"
)

func TestManagerAcquireUnsupportedPlatform(t *testing.T) {
	t.Parallel()

	m := NewManager(&fakeAudioCapture{}, &fakeProvider{unavailable: true}, Config{}, zerolog.Nop())
	_, err := m.Acquire(context.Background(), "en-US", func(Event) {})
	if !errors.Is(err, domain.ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
	if !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected unsupported platform to be a device error, got %v", err)
	}
}

func TestManagerAcquireEngineInitError(t *testing.T) {
	t.Parallel()

	audio := &fakeAudioCapture{}
	m := NewManager(audio, &fakeProvider{err: errors.New("dial failed")}, Config{}, zerolog.Nop())
	_, err := m.Acquire(context.Background(), "en-US", func(Event) {})
	if !errors.Is(err, domain.ErrEngineInit) {
		t.Fatalf("expected ErrEngineInit, got %v", err)
	}
	if audio.calls != 0 {
		t.Fatalf("microphone should not be opened when the engine fails")
	}
}

func TestManagerAcquireDeviceUnavailableClosesStream(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	m := NewManager(
		&fakeAudioCapture{err: errors.New("permission denied")},
		&fakeProvider{streams: []*fakeStream{stream}},
		Config{},
		zerolog.Nop(),
	)
	_, err := m.Acquire(context.Background(), "en-US", func(Event) {})
	if !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if stream.closeCalls() == 0 {
		t.Fatalf("expected recognition stream to be closed")
	}
}

func TestManagerAcquireConfiguresEngineAndMicrophone(t *testing.T) {
	t.Parallel()

	audio := &fakeAudioCapture{sessions: []*fakeAudioSession{{}}}
	provider := &fakeProvider{streams: []*fakeStream{newFakeStream()}}
	m := NewManager(audio, provider, Config{}, zerolog.Nop())

	h, err := m.Acquire(context.Background(), "fr-FR", func(Event) {})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Release(h) })

	cfg := provider.configs[0]
	if cfg.Language != "fr-FR" || !cfg.Continuous || !cfg.InterimResults || cfg.MaxAlternatives != 1 {
		t.Fatalf("unexpected recognition config: %+v", cfg)
	}
	mic := audio.configs[0]
	if !mic.EchoCancellation || !mic.NoiseSuppression || !mic.AutoGainControl {
		t.Fatalf("expected microphone constraints enabled: %+v", mic)
	}
	if h.Language != "fr-FR" || h.Generation == 0 {
		t.Fatalf("unexpected handles: %+v", h)
	}
}

func TestManagerDispatchesEventsInOrder(t *testing.T) {
	t.Parallel()

	stream := newFakeStream()
	m := NewManager(
		&fakeAudioCapture{sessions: []*fakeAudioSession{{}}},
		&fakeProvider{streams: []*fakeStream{stream}},
		Config{},
		zerolog.Nop(),
	)

	rec := &eventRecorder{}
	h, err := m.Acquire(context.Background(), "en-US", rec.dispatch)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	h.Activate()

	stream.events <- domain.RecognitionEvent{Results: []domain.RecognitionResult{{Text: "hel"}}}
	stream.events <- domain.RecognitionEvent{Err: &domain.RecognitionError{Code: domain.RecognitionNoSpeech}}
	stream.events <- domain.RecognitionEvent{Results: []domain.RecognitionResult{{IsFinal: true, Text: "hello"}}}
	stream.end()

	events := rec.waitFor(t, 3)
	if events[0].Kind != EventResults || events[1].Kind != EventRecognitionError || events[2].Kind != EventResults {
		t.Fatalf("unexpected event order: %v %v %v", events[0].Kind, events[1].Kind, events[2].Kind)
	}
	end := rec.waitFor(t, 4)[3]
	if end.Kind != EventEnd || end.Expected {
		t.Fatalf("expected unexpected end event, got %+v", end)
	}
	for _, event := range rec.snapshot() {
		if event.Generation != h.Generation {
			t.Fatalf("event tagged with wrong generation: %d", event.Generation)
		}
	}

	_ = m.Release(h)
}

func TestManagerReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	audioSession := &fakeAudioSession{}
	stream := newFakeStream()
	m := NewManager(
		&fakeAudioCapture{sessions: []*fakeAudioSession{audioSession}},
		&fakeProvider{streams: []*fakeStream{stream}},
		Config{},
		zerolog.Nop(),
	)

	rec := &eventRecorder{}
	h, err := m.Acquire(context.Background(), "en-US", rec.dispatch)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if err := m.Release(h); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := m.Release(h); err != nil {
		t.Fatalf("second release failed: %v", err)
	}
	if err := m.Release(nil); err != nil {
		t.Fatalf("release of nil handles failed: %v", err)
	}

	if audioSession.stopCount() != 1 {
		t.Fatalf("expected microphone stopped once, got %d", audioSession.stopCount())
	}
	events := rec.snapshot()
	if len(events) == 0 || events[len(events)-1].Kind != EventEnd || !events[len(events)-1].Expected {
		t.Fatalf("expected a final expected end event, got %+v", events)
	}
}

func TestManagerSwitchLanguageReleasesPrevious(t *testing.T) {
	t.Parallel()

	firstAudio := &fakeAudioSession{}
	first := newFakeStream()
	provider := &fakeProvider{streams: []*fakeStream{first, newFakeStream()}}
	m := NewManager(
		&fakeAudioCapture{sessions: []*fakeAudioSession{firstAudio, {}}},
		provider,
		Config{},
		zerolog.Nop(),
	)

	h1, err := m.Acquire(context.Background(), "en-US", func(Event) {})
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	h2, err := m.SwitchLanguage(context.Background(), h1, "fr-FR", func(Event) {})
	if err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Release(h2) })

	if firstAudio.stopCount() != 1 || first.closeSendCalls() == 0 {
		t.Fatalf("expected previous handles released before reacquire")
	}
	if h2.Generation <= h1.Generation || h2.Language != "fr-FR" {
		t.Fatalf("unexpected new handles: %+v", h2)
	}
	if provider.configs[1].Language != "fr-FR" {
		t.Fatalf("expected new engine language fr-FR, got %q", provider.configs[1].Language)
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) dispatch(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) waitFor(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := r.snapshot(); len(events) >= n {
			return events
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events", n)
	return nil
}

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []*fakeAudioSession
	configs  []ports.AudioConfig
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	stopCalls int
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.chunks) {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[f.index])
	f.index++
	return n, nil
}

func (f *fakeAudioSession) Close() error { return nil }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeAudioSession) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeProvider struct {
	mu          sync.Mutex
	streams     []*fakeStream
	configs     []ports.RecognitionConfig
	unavailable bool
	err         error
	calls       int
}

func (f *fakeProvider) Available() bool { return !f.unavailable }

func (f *fakeProvider) StartStreaming(_ context.Context, cfg ports.RecognitionConfig) (ports.RecognitionStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.streams) {
		return nil, errors.New("no stream configured")
	}
	stream := f.streams[f.calls]
	f.calls++
	return stream, nil
}

type fakeStream struct {
	events chan domain.RecognitionEvent

	mu         sync.Mutex
	closed     bool
	closeSends int
	closes     int
	waitErr    error
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan domain.RecognitionEvent, 16)}
}

func (f *fakeStream) SendAudio(_ []byte) error { return nil }

func (f *fakeStream) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeSends++
	f.closeLocked()
	return nil
}

func (f *fakeStream) Events() <-chan domain.RecognitionEvent { return f.events }

func (f *fakeStream) Wait() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waitErr
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.closeLocked()
	return nil
}

func (f *fakeStream) end() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

func (f *fakeStream) closeLocked() {
	if !f.closed {
		close(f.events)
		f.closed = true
	}
}

func (f *fakeStream) closeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeStream) closeSendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeSends
}
