package handwriting

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inkpost/internal/domain"
	"inkpost/internal/ports"
)

func TestDownloadPDFMissingTemplate(t *testing.T) {
	t.Parallel()

	storage := &fakeObjectStorage{objects: []string{"MailAI-Template_1.png"}}
	svc := NewTemplateService(storage, nil, TemplateConfig{}, zerolog.Nop())

	_, err := svc.Download(context.Background(), FormatPDF)
	if !errors.Is(err, domain.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
	if storage.signCount() != 0 {
		t.Fatalf("no download link should be created for a missing template")
	}
}

func TestDownloadPDFReturnsSignedURL(t *testing.T) {
	t.Parallel()

	storage := &fakeObjectStorage{objects: []string{"MailAI-Template.pdf"}, baseURL: "https://storage.example"}
	svc := NewTemplateService(storage, nil, TemplateConfig{}, zerolog.Nop())

	download, err := svc.Download(context.Background(), FormatPDF)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if download.URL != "https://storage.example/MailAI-Template.pdf" || download.FileName != "MailAI-Template.pdf" {
		t.Fatalf("unexpected download: %+v", download)
	}
	if storage.lastTTL() != time.Hour {
		t.Fatalf("expected one hour signed link, got %s", storage.lastTTL())
	}
	if storage.lastBucket() != "mailai-hw-tpl(with-helplines&bgchars)" {
		t.Fatalf("unexpected bucket %q", storage.lastBucket())
	}
}

func TestDownloadPNGBuildsArchive(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("png:" + r.URL.Path))
	}))
	t.Cleanup(server.Close)

	storage := &fakeObjectStorage{
		objects: []string{"MailAI-Template.pdf", "MailAI-Template_1.png", "MailAI-Template_2.png"},
		baseURL: server.URL,
	}
	svc := NewTemplateService(storage, server.Client(), TemplateConfig{}, zerolog.Nop())

	download, err := svc.Download(context.Background(), FormatPNG)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if download.FileName != "handwriting-templates.zip" {
		t.Fatalf("unexpected archive name %q", download.FileName)
	}

	zr, err := zip.NewReader(bytes.NewReader(download.Archive), int64(len(download.Archive)))
	if err != nil {
		t.Fatalf("invalid archive: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "MailAI-Template_1.png" {
		t.Fatalf("unexpected archive entries: %d", len(zr.File))
	}
	f, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "png:/MailAI-Template_2.png" {
		t.Fatalf("unexpected entry contents %q", data)
	}
}

func TestUploadTemplateStoresPlaceholderTable(t *testing.T) {
	t.Parallel()

	storage := &fakeObjectStorage{}
	svc := NewTemplateService(storage, nil, TemplateConfig{}, zerolog.Nop())
	svc.now = func() time.Time { return time.UnixMilli(1700000000123) }
	store := &fakeStyleStore{}
	completions := &completionRecorder{}
	trainer := NewTrainer(signedIn(), store, svc, nil, completions.record, zerolog.Nop())

	name, err := trainer.UploadTemplate(context.Background(), "scan.final.PNG", []byte("image"))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if name != "uploaded_template_1700000000123.PNG" {
		t.Fatalf("unexpected object name %q", name)
	}

	upload := storage.lastUpload()
	if upload.bucket != "mailai-hw-uploads" || upload.opts.CacheControl != "3600" || upload.opts.Upsert {
		t.Fatalf("unexpected upload: %+v", upload)
	}
	if upload.opts.ContentType != "image/png" || string(upload.body) != "image" {
		t.Fatalf("unexpected upload payload: %+v", upload)
	}

	tables := store.snapshot()
	if len(tables) != 1 || len(tables[0]) != 62 {
		t.Fatalf("expected placeholder table with 62 entries")
	}
	if got := completions.snapshot(); len(got) != 1 || got[0] != MethodTemplate {
		t.Fatalf("expected template completion, got %v", got)
	}
}

func TestUploadTemplateFailure(t *testing.T) {
	t.Parallel()

	storage := &fakeObjectStorage{uploadErr: errors.New("duplicate")}
	store := &fakeStyleStore{}
	trainer := NewTrainer(signedIn(), store, NewTemplateService(storage, nil, TemplateConfig{}, zerolog.Nop()), nil, nil, zerolog.Nop())

	_, err := trainer.UploadTemplate(context.Background(), "scan.pdf", []byte("%PDF"))
	if !errors.Is(err, domain.ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
	if len(store.snapshot()) != 0 {
		t.Fatalf("style table must not change when the upload fails")
	}
}

func TestUploadNameWithoutExtension(t *testing.T) {
	t.Parallel()

	if got := UploadName("scan", time.UnixMilli(42)); got != "uploaded_template_42" {
		t.Fatalf("unexpected name %q", got)
	}
}

type uploadCall struct {
	bucket string
	name   string
	body   []byte
	opts   ports.UploadOptions
}

type fakeObjectStorage struct {
	mu        sync.Mutex
	objects   []string
	baseURL   string
	uploadErr error
	signs     []signCall
	uploads   []uploadCall
}

type signCall struct {
	bucket string
	name   string
	ttl    time.Duration
}

func (f *fakeObjectStorage) List(_ context.Context, _ string) ([]domain.StorageObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StorageObject, 0, len(f.objects))
	for _, name := range f.objects {
		out = append(out, domain.StorageObject{Name: name})
	}
	return out, nil
}

func (f *fakeObjectStorage) SignedURL(_ context.Context, bucket, name string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signs = append(f.signs, signCall{bucket: bucket, name: name, ttl: ttl})
	return f.baseURL + "/" + name, nil
}

func (f *fakeObjectStorage) Upload(_ context.Context, bucket, name string, body io.Reader, opts ports.UploadOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, uploadCall{bucket: bucket, name: name, body: data, opts: opts})
	return nil
}

func (f *fakeObjectStorage) signCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signs)
}

func (f *fakeObjectStorage) lastTTL() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signs[len(f.signs)-1].ttl
}

func (f *fakeObjectStorage) lastBucket() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signs[len(f.signs)-1].bucket
}

func (f *fakeObjectStorage) lastUpload() uploadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads[len(f.uploads)-1]
}
