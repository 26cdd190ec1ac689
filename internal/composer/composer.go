package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inkpost/internal/domain"
	"inkpost/internal/handwriting"
	"inkpost/internal/ports"
	"inkpost/internal/telemetry"
)

var (
	// ErrStaleResponse is returned for a generation that was superseded by a
	// newer request or by Close. Its result is discarded.
	ErrStaleResponse    = errors.New("generation response superseded")
	ErrClosed           = errors.New("composer closed")
	ErrInvalidEmailType = errors.New("invalid email type")
)

// EmailType is the tone requested from the generator.
type EmailType string

const (
	EmailProfessional EmailType = "professional"
	EmailCasual       EmailType = "casual"
	EmailFormal       EmailType = "formal"
)

func ParseEmailType(value string) (EmailType, error) {
	switch t := EmailType(strings.ToLower(strings.TrimSpace(value))); t {
	case EmailProfessional, EmailCasual, EmailFormal:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEmailType, value)
}

// Snapshot is the composer state shown by the UI.
type Snapshot struct {
	Prompt          string               `json:"prompt"`
	EmailType       EmailType            `json:"emailType"`
	Email           domain.ComposedEmail `json:"email"`
	HandwritingMode bool                 `json:"handwritingMode"`
	NeedsTraining   bool                 `json:"needsTraining"`
	Generating      bool                 `json:"generating"`
}

// Composer holds the prompt and the email being written. Styled renderings
// are only kept while handwriting mode is on and a style table exists.
type Composer struct {
	generator ports.Generator
	store     ports.StyleStore
	metrics   *telemetry.Metrics
	log       zerolog.Logger

	mu          sync.Mutex
	prompt      string
	emailType   EmailType
	email       domain.ComposedEmail
	handwriting bool
	trained     bool
	generation  uint64
	generating  bool
	closed      bool
}

func New(generator ports.Generator, store ports.StyleStore, metrics *telemetry.Metrics, log zerolog.Logger) *Composer {
	return &Composer{
		generator: generator,
		store:     store,
		metrics:   metrics,
		log:       log.With().Str("component", "composer").Logger(),
		emailType: EmailProfessional,
	}
}

// Init reads whether a style table has already been trained.
func (c *Composer) Init(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	_, err := c.store.Load(ctx)
	switch {
	case err == nil:
		c.mu.Lock()
		c.trained = true
		c.mu.Unlock()
		return nil
	case errors.Is(err, domain.ErrNoStyleTable):
		return nil
	default:
		return err
	}
}

// AppendTranscription adds dictated text to the prompt, separated by one
// space, and returns the new prompt.
func (c *Composer) AppendTranscription(text string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return c.prompt
	}
	if strings.TrimSpace(c.prompt) != "" {
		c.prompt = c.prompt + " " + text
	} else {
		c.prompt = text
	}
	return c.prompt
}

func (c *Composer) SetPrompt(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompt = prompt
}

func (c *Composer) SetEmailType(value string) error {
	t, err := ParseEmailType(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emailType = t
	return nil
}

// SetHandwritingMode toggles styled rendering. It reports whether training
// has to happen before anything can be rendered.
func (c *Composer) SetHandwritingMode(ctx context.Context, on bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handwriting = on
	if !on || !c.trained {
		c.clearStyledLocked()
		return on && !c.trained, nil
	}
	return false, c.renderLocked(ctx)
}

// MarkTrained records a completed training and renders the current fields
// if handwriting mode is on.
func (c *Composer) MarkTrained(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trained = true
	if !c.handwriting {
		return nil
	}
	return c.renderLocked(ctx)
}

func (c *Composer) SetSubject(ctx context.Context, subject string) (domain.ComposedEmail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.email.Subject = subject
	err := c.renderLocked(ctx)
	return c.email, err
}

func (c *Composer) SetContent(ctx context.Context, content string) (domain.ComposedEmail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.email.Content = content
	err := c.renderLocked(ctx)
	return c.email, err
}

// Generate asks the generator for an email built from the prompt. A
// malformed response leaves the fields untouched and is not retried.
func (c *Composer) Generate(ctx context.Context) (domain.ComposedEmail, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ComposedEmail{}, ErrClosed
	}
	c.generation++
	token := c.generation
	c.generating = true
	fullPrompt := BuildPrompt(c.prompt, c.emailType)
	c.mu.Unlock()

	started := time.Now()
	raw, genErr := c.generator.Generate(ctx, fullPrompt)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || token != c.generation {
		c.log.Debug().Uint64("generation", token).Msg("discarding superseded generation response")
		c.metrics.Generation(ctx, "stale", time.Since(started))
		return domain.ComposedEmail{}, ErrStaleResponse
	}
	c.generating = false

	if genErr != nil {
		c.metrics.Generation(ctx, "error", time.Since(started))
		return c.email, fmt.Errorf("generate email: %w", genErr)
	}

	subject, content, err := ParseResponse(raw)
	if err != nil {
		c.metrics.Generation(ctx, "malformed", time.Since(started))
		c.log.Warn().Err(err).Msg("malformed generation response")
		return c.email, err
	}

	c.email.Subject = subject
	c.email.Content = content
	c.metrics.Generation(ctx, "ok", time.Since(started))
	return c.email, c.renderLocked(ctx)
}

// Close discards any in-flight generation.
func (c *Composer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.generation++
	c.generating = false
}

func (c *Composer) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Prompt:          c.prompt,
		EmailType:       c.emailType,
		Email:           c.email,
		HandwritingMode: c.handwriting,
		NeedsTraining:   !c.trained,
		Generating:      c.generating,
	}
}

// renderLocked regenerates both styled fields from the current text.
func (c *Composer) renderLocked(ctx context.Context) error {
	if !c.handwriting || !c.trained || c.store == nil {
		c.clearStyledLocked()
		return nil
	}

	table, err := c.store.Load(ctx)
	if errors.Is(err, domain.ErrNoStyleTable) {
		c.trained = false
		c.clearStyledLocked()
		return nil
	}
	if err != nil {
		return fmt.Errorf("load handwriting style: %w", err)
	}

	subject, err := handwriting.Convert(c.email.Subject, table)
	if err != nil {
		return err
	}
	content, err := handwriting.Convert(c.email.Content, table)
	if err != nil {
		return err
	}
	c.email.StyledSubject = subject
	c.email.StyledContent = content
	return nil
}

func (c *Composer) clearStyledLocked() {
	c.email.StyledSubject = ""
	c.email.StyledContent = ""
}

// BuildPrompt appends the generation instruction to the user prompt.
func BuildPrompt(prompt string, emailType EmailType) string {
	return fmt.Sprintf("%s Generate a %s email. Return it in JSON format with 'subject' and 'content' fields.", prompt, emailType)
}

type generatedEmail struct {
	Subject *string `json:"subject"`
	Content *string `json:"content"`
}

// ParseResponse extracts subject and content from a JSON response, with or
// without a surrounding markdown code fence.
func ParseResponse(raw string) (string, string, error) {
	body := stripFence(strings.TrimSpace(raw))

	var parsed generatedEmail
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return "", "", fmt.Errorf("%w: %w", domain.ErrMalformedGenerationResponse, err)
	}
	if parsed.Subject == nil || parsed.Content == nil {
		return "", "", fmt.Errorf("%w: missing subject or content", domain.ErrMalformedGenerationResponse)
	}
	return *parsed.Subject, *parsed.Content, nil
}

func stripFence(body string) string {
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```")
	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		body = body[newline+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
