package handwriting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inkpost/internal/domain"
	"inkpost/internal/ports"
	"inkpost/internal/telemetry"
)

var ErrTrainingFinished = errors.New("handwriting training already finished")

const (
	MethodDraw     = "draw"
	MethodTemplate = "template"
)

// CompletionFunc is called once a new style table has been persisted.
type CompletionFunc func(method string)

// Trainer runs the two training methods. Both require a signed-in user.
type Trainer struct {
	auth       ports.Auth
	store      ports.StyleStore
	templates  *TemplateService
	metrics    *telemetry.Metrics
	onComplete CompletionFunc
	now        func() time.Time
	log        zerolog.Logger
}

func NewTrainer(
	auth ports.Auth,
	store ports.StyleStore,
	templates *TemplateService,
	metrics *telemetry.Metrics,
	onComplete CompletionFunc,
	log zerolog.Logger,
) *Trainer {
	return &Trainer{
		auth:       auth,
		store:      store,
		templates:  templates,
		metrics:    metrics,
		onComplete: onComplete,
		now:        time.Now,
		log:        log.With().Str("component", "training").Logger(),
	}
}

// Authorize fails with domain.ErrAuth unless a live session exists.
func (t *Trainer) Authorize(ctx context.Context) error {
	if t.auth == nil {
		return domain.ErrAuth
	}
	session, err := t.auth.Session(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAuth, err)
	}
	if session.Expired(t.now()) {
		return domain.ErrAuth
	}
	return nil
}

// StartDrawing opens a draw-by-character session over Alphabet.
func (t *Trainer) StartDrawing(ctx context.Context, width, height int) (*DrawSession, error) {
	if err := t.Authorize(ctx); err != nil {
		return nil, err
	}
	t.log.Info().Msg("draw training started")
	return &DrawSession{
		trainer: t,
		canvas:  NewCanvas(width, height),
		samples: make(domain.StyleTable, len(Alphabet)),
	}, nil
}

func (t *Trainer) DownloadTemplate(ctx context.Context, format TemplateFormat) (*TemplateDownload, error) {
	if err := t.Authorize(ctx); err != nil {
		return nil, err
	}
	download, err := t.templates.Download(ctx, format)
	if err != nil {
		t.metrics.Template(ctx, "download", "error")
		return nil, err
	}
	t.metrics.Template(ctx, "download", "ok")
	return download, nil
}

// UploadTemplate stores a completed template scan and persists a
// placeholder style table.
func (t *Trainer) UploadTemplate(ctx context.Context, fileName string, body []byte) (string, error) {
	if err := t.Authorize(ctx); err != nil {
		return "", err
	}
	stored, err := t.templates.Upload(ctx, fileName, body)
	if err != nil {
		t.metrics.Template(ctx, "upload", "error")
		return "", err
	}
	t.metrics.Template(ctx, "upload", "ok")

	if err := t.store.Replace(ctx, PlaceholderTable()); err != nil {
		return "", fmt.Errorf("failed to save handwriting style: %w", err)
	}
	t.complete(ctx, MethodTemplate)
	return stored, nil
}

func (t *Trainer) complete(ctx context.Context, method string) {
	t.metrics.TrainingCompleted(ctx, method)
	t.log.Info().Str("method", method).Msg("handwriting training complete")
	if t.onComplete != nil {
		t.onComplete(method)
	}
}

// Progress describes a draw session position.
type Progress struct {
	Index   int    `json:"index"`
	Total   int    `json:"total"`
	Char    string `json:"char"`
	Erasing bool   `json:"erasing"`
	Done    bool   `json:"done"`
}

// DrawSession collects one ink sample per alphabet character, in order.
type DrawSession struct {
	trainer *Trainer

	mu      sync.Mutex
	canvas  *Canvas
	index   int
	samples domain.StyleTable
	drawing bool
	done    bool
}

func (s *DrawSession) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *DrawSession) BeginStroke(x, y float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrTrainingFinished
	}
	s.drawing = true
	s.canvas.MoveTo(s.clamp(x, y))
	return nil
}

func (s *DrawSession) ExtendStroke(x, y float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drawing || s.done {
		return
	}
	s.canvas.LineTo(s.clamp(x, y))
}

// EndStroke finishes the stroke and snapshots the surface as the current
// character's sample.
func (s *DrawSession) EndStroke() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drawing || s.done {
		return "", nil
	}
	s.drawing = false
	s.canvas.Lift()
	return s.snapshotLocked()
}

func (s *DrawSession) SetEraser(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvas.SetEraser(on)
}

// Clear wipes the current character's surface.
func (s *DrawSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvas.Clear()
	s.drawing = false
}

// Confirm records the current character and advances. Confirming the last
// character persists the table and completes training; if persisting fails
// the session stays on the last character so it can be retried.
func (s *DrawSession) Confirm(ctx context.Context) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.progressLocked(), ErrTrainingFinished
	}

	if _, err := s.snapshotLocked(); err != nil {
		return s.progressLocked(), err
	}

	if s.index < len(Alphabet)-1 {
		s.index++
		s.canvas.Clear()
		s.drawing = false
		return s.progressLocked(), nil
	}

	table := make(domain.StyleTable, len(s.samples))
	for char, fragment := range s.samples {
		table[char] = fragment
	}
	if err := s.trainer.store.Replace(ctx, table); err != nil {
		return s.progressLocked(), fmt.Errorf("failed to save handwriting style: %w", err)
	}
	s.done = true
	s.trainer.complete(ctx, MethodDraw)
	return s.progressLocked(), nil
}

func (s *DrawSession) snapshotLocked() (string, error) {
	url, err := s.canvas.DataURL()
	if err != nil {
		return "", fmt.Errorf("failed to snapshot drawing: %w", err)
	}
	s.samples[string(Alphabet[s.index])] = url
	return url, nil
}

func (s *DrawSession) progressLocked() Progress {
	return Progress{
		Index:   s.index,
		Total:   len(Alphabet),
		Char:    string(Alphabet[s.index]),
		Erasing: s.canvas.Erasing(),
		Done:    s.done,
	}
}

func (s *DrawSession) clamp(x, y float32) (float32, float32) {
	b := s.canvas.img.Bounds()
	return clampf(x, 0, float32(b.Dx())), clampf(y, 0, float32(b.Dy()))
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
