package composer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inkpost/internal/domain"
)

func TestAppendTranscriptionJoinsWithSingleSpace(t *testing.T) {
	t.Parallel()

	c := New(&fakeGenerator{}, nil, nil, zerolog.Nop())
	if got := c.AppendTranscription("dear team"); got != "dear team" {
		t.Fatalf("unexpected prompt: %q", got)
	}
	if got := c.AppendTranscription("   "); got != "dear team" {
		t.Fatalf("blank transcription should be ignored, got %q", got)
	}
	if got := c.AppendTranscription("ask for a meeting"); got != "dear team ask for a meeting" {
		t.Fatalf("unexpected prompt: %q", got)
	}

	c.SetPrompt("  ")
	if got := c.AppendTranscription("fresh"); got != "fresh" {
		t.Fatalf("whitespace prompt should be replaced, got %q", got)
	}
}

func TestSetEmailTypeValidates(t *testing.T) {
	t.Parallel()

	c := New(&fakeGenerator{}, nil, nil, zerolog.Nop())
	if err := c.SetEmailType("Casual"); err != nil {
		t.Fatalf("set email type failed: %v", err)
	}
	if c.Snapshot().EmailType != EmailCasual {
		t.Fatalf("expected casual email type, got %q", c.Snapshot().EmailType)
	}
	if err := c.SetEmailType("angry"); !errors.Is(err, ErrInvalidEmailType) {
		t.Fatalf("expected ErrInvalidEmailType, got %v", err)
	}
}

func TestGenerateBuildsPromptAndParsesFencedJSON(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{response: "```json\n{\"subject\": \"Meeting\", \"content\": \"Can we meet on Friday?\"}\n```"}
	c := New(gen, nil, nil, zerolog.Nop())
	c.SetPrompt("ask Sam for a meeting")
	if err := c.SetEmailType("formal"); err != nil {
		t.Fatalf("set email type failed: %v", err)
	}

	email, err := c.Generate(context.Background())
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if email.Subject != "Meeting" || email.Content != "Can we meet on Friday?" {
		t.Fatalf("unexpected email: %+v", email)
	}

	want := "ask Sam for a meeting Generate a formal email. Return it in JSON format with 'subject' and 'content' fields."
	if got := gen.lastPrompt(); got != want {
		t.Fatalf("unexpected prompt:\n got %q\nwant %q", got, want)
	}
	if c.Snapshot().Generating {
		t.Fatalf("generating flag should be cleared")
	}
}

func TestGenerateMalformedLeavesFieldsUnchanged(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{response: "Sure! Here is your email: Dear Sam"}
	c := New(gen, nil, nil, zerolog.Nop())
	if _, err := c.SetSubject(context.Background(), "kept subject"); err != nil {
		t.Fatalf("set subject failed: %v", err)
	}

	email, err := c.Generate(context.Background())
	if !errors.Is(err, domain.ErrMalformedGenerationResponse) {
		t.Fatalf("expected ErrMalformedGenerationResponse, got %v", err)
	}
	if email.Subject != "kept subject" || email.Content != "" {
		t.Fatalf("fields should be unchanged, got %+v", email)
	}
	if gen.callCount() != 1 {
		t.Fatalf("malformed response should not be retried, got %d calls", gen.callCount())
	}
}

func TestParseResponseRequiresBothFields(t *testing.T) {
	t.Parallel()

	if _, _, err := ParseResponse(`{"subject": "only"}`); !errors.Is(err, domain.ErrMalformedGenerationResponse) {
		t.Fatalf("expected malformed error for missing content, got %v", err)
	}
	subject, content, err := ParseResponse(`  {"subject": "", "content": "body"}  `)
	if err != nil || subject != "" || content != "body" {
		t.Fatalf("unexpected parse: %q %q %v", subject, content, err)
	}
}

func TestGenerateDiscardsSupersededResponse(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		block:    make(chan struct{}),
		response: `{"subject": "first", "content": "first body"}`,
	}
	c := New(gen, nil, nil, zerolog.Nop())

	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background())
		firstErr <- err
	}()
	gen.waitForCalls(t, 1)

	gen.setResponse(`{"subject": "second", "content": "second body"}`, nil)
	secondErr := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background())
		secondErr <- err
	}()
	gen.waitForCalls(t, 2)
	close(gen.block)

	if err := <-firstErr; err != nil && !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("unexpected first error: %v", err)
	}
	if err := <-secondErr; err != nil {
		t.Fatalf("second generate failed: %v", err)
	}
	if got := c.Snapshot().Email.Subject; got != "second" {
		t.Fatalf("expected newest response to win, got %q", got)
	}
}

func TestGenerateAfterCloseIsDiscarded(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{block: make(chan struct{}), response: `{"subject": "s", "content": "c"}`}
	c := New(gen, nil, nil, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := c.Generate(context.Background())
		done <- err
	}()
	gen.waitForCalls(t, 1)
	c.Close()
	close(gen.block)

	if err := <-done; !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("expected ErrStaleResponse, got %v", err)
	}
	if c.Snapshot().Email.Subject != "" {
		t.Fatalf("closed composer must not apply responses")
	}
	if _, err := c.Generate(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestGenerateErrorKeepsFields(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: errors.New("quota")}
	c := New(gen, nil, nil, zerolog.Nop())
	if _, err := c.SetContent(context.Background(), "draft"); err != nil {
		t.Fatalf("set content failed: %v", err)
	}
	email, err := c.Generate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("expected generator error, got %v", err)
	}
	if email.Content != "draft" {
		t.Fatalf("content should be unchanged, got %q", email.Content)
	}
}

func TestHandwritingModeNeedsTraining(t *testing.T) {
	t.Parallel()

	store := &fakeStyleStore{}
	c := New(&fakeGenerator{}, store, nil, zerolog.Nop())
	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	needsTraining, err := c.SetHandwritingMode(ctx, true)
	if err != nil || !needsTraining {
		t.Fatalf("expected training to be needed, got %v %v", needsTraining, err)
	}
	email, _ := c.SetSubject(ctx, "Hi")
	if email.StyledSubject != "" {
		t.Fatalf("nothing should render before training")
	}

	store.set(domain.StyleTable{"H": "data:image/png;base64,SA==", "i": "data:image/png;base64,aQ==", "a": "data:image/png;base64,YQ=="})
	if err := c.MarkTrained(ctx); err != nil {
		t.Fatalf("mark trained failed: %v", err)
	}
	snap := c.Snapshot()
	if snap.NeedsTraining || !strings.Contains(snap.Email.StyledSubject, "SA==") || !strings.Contains(snap.Email.StyledSubject, "aQ==") {
		t.Fatalf("expected styled subject after training, got %+v", snap)
	}

	email, err = c.SetContent(ctx, "Hey")
	if err != nil {
		t.Fatalf("set content failed: %v", err)
	}
	if strings.Count(email.StyledContent, "<span") != 3 {
		t.Fatalf("expected one span per character, got %q", email.StyledContent)
	}

	if needsTraining, err := c.SetHandwritingMode(ctx, false); err != nil || needsTraining {
		t.Fatalf("turning mode off should not need training: %v %v", needsTraining, err)
	}
	if snap := c.Snapshot(); snap.Email.StyledSubject != "" || snap.Email.StyledContent != "" {
		t.Fatalf("styled renderings should be cleared when mode is off")
	}
}

func TestInitDetectsExistingTable(t *testing.T) {
	t.Parallel()

	store := &fakeStyleStore{table: domain.StyleTable{"a": "data:image/png;base64,YQ=="}}
	c := New(&fakeGenerator{}, store, nil, zerolog.Nop())
	ctx := context.Background()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	needsTraining, err := c.SetHandwritingMode(ctx, true)
	if err != nil || needsTraining {
		t.Fatalf("existing table should not need training: %v %v", needsTraining, err)
	}
}

type fakeGenerator struct {
	block chan struct{}

	mu       sync.Mutex
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	response, err := f.response, f.err
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return response, err
}

func (f *fakeGenerator) setResponse(response string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.response = response
	f.err = err
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeGenerator) waitForCalls(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.callCount() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d generate calls", n)
}

type fakeStyleStore struct {
	mu    sync.Mutex
	table domain.StyleTable
}

func (f *fakeStyleStore) Load(context.Context) (domain.StyleTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.table) == 0 {
		return nil, domain.ErrNoStyleTable
	}
	out := make(domain.StyleTable, len(f.table))
	for k, v := range f.table {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStyleStore) Replace(_ context.Context, table domain.StyleTable) error {
	f.set(table)
	return nil
}

func (f *fakeStyleStore) set(table domain.StyleTable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table = table
}
