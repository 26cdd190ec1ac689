package handwriting

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"inkpost/internal/domain"
	"inkpost/internal/ports"
)

// TemplateFormat selects the printable template.
type TemplateFormat string

const (
	FormatPDF TemplateFormat = "pdf"
	FormatPNG TemplateFormat = "png"
)

// TemplateConfig names the buckets and objects used for template training.
type TemplateConfig struct {
	TemplateBucket string
	UploadBucket   string
	PDFName        string
	PNGNames       []string
	ArchiveName    string
	SignedURLTTL   time.Duration
}

func DefaultTemplateConfig() TemplateConfig {
	return TemplateConfig{
		TemplateBucket: "mailai-hw-tpl(with-helplines&bgchars)",
		UploadBucket:   "mailai-hw-uploads",
		PDFName:        "MailAI-Template.pdf",
		PNGNames:       []string{"MailAI-Template_1.png", "MailAI-Template_2.png"},
		ArchiveName:    "handwriting-templates.zip",
		SignedURLTTL:   time.Hour,
	}
}

// TemplateDownload is either a signed link (PDF) or a zip archive (PNG set).
type TemplateDownload struct {
	Format   TemplateFormat `json:"format"`
	FileName string         `json:"fileName"`
	URL      string         `json:"url,omitempty"`
	Archive  []byte         `json:"archive,omitempty"`
}

// TemplateService talks to remote storage for template training.
type TemplateService struct {
	storage ports.ObjectStorage
	client  *http.Client
	cfg     TemplateConfig
	now     func() time.Time
	log     zerolog.Logger
}

func NewTemplateService(storage ports.ObjectStorage, client *http.Client, cfg TemplateConfig, log zerolog.Logger) *TemplateService {
	defaults := DefaultTemplateConfig()
	if cfg.TemplateBucket == "" {
		cfg.TemplateBucket = defaults.TemplateBucket
	}
	if cfg.UploadBucket == "" {
		cfg.UploadBucket = defaults.UploadBucket
	}
	if cfg.PDFName == "" {
		cfg.PDFName = defaults.PDFName
	}
	if len(cfg.PNGNames) == 0 {
		cfg.PNGNames = defaults.PNGNames
	}
	if cfg.ArchiveName == "" {
		cfg.ArchiveName = defaults.ArchiveName
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaults.SignedURLTTL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TemplateService{
		storage: storage,
		client:  client,
		cfg:     cfg,
		now:     time.Now,
		log:     log.With().Str("component", "templates").Logger(),
	}
}

// Download checks the template bucket for the requested objects before
// signing anything; a missing object yields domain.ErrTemplateNotFound.
func (s *TemplateService) Download(ctx context.Context, format TemplateFormat) (*TemplateDownload, error) {
	var names []string
	switch format {
	case FormatPDF:
		names = []string{s.cfg.PDFName}
	case FormatPNG:
		names = s.cfg.PNGNames
	default:
		return nil, fmt.Errorf("unsupported template format %q", format)
	}

	objects, err := s.storage.List(ctx, s.cfg.TemplateBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	present := make(map[string]bool, len(objects))
	for _, object := range objects {
		present[object.Name] = true
	}
	for _, name := range names {
		if !present[name] {
			return nil, fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, name)
		}
	}

	if format == FormatPDF {
		url, err := s.storage.SignedURL(ctx, s.cfg.TemplateBucket, s.cfg.PDFName, s.cfg.SignedURLTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to sign %s: %w", s.cfg.PDFName, err)
		}
		return &TemplateDownload{Format: FormatPDF, FileName: s.cfg.PDFName, URL: url}, nil
	}

	archive, err := s.archivePNGs(ctx, names)
	if err != nil {
		return nil, err
	}
	return &TemplateDownload{Format: FormatPNG, FileName: s.cfg.ArchiveName, Archive: archive}, nil
}

// archivePNGs zips every template image that could be fetched. Individual
// fetch failures are logged and skipped.
func (s *TemplateService) archivePNGs(ctx context.Context, names []string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	added := 0

	for _, name := range names {
		url, err := s.storage.SignedURL(ctx, s.cfg.TemplateBucket, name, s.cfg.SignedURLTTL)
		if err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("failed to sign template")
			continue
		}
		data, err := s.fetch(ctx, url)
		if err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("failed to fetch template")
			continue
		}
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		added++
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	if added == 0 {
		return nil, fmt.Errorf("%w: no template image could be fetched", domain.ErrTemplateNotFound)
	}
	return buf.Bytes(), nil
}

func (s *TemplateService) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Upload stores a scan as uploaded_template_<unix-ms><ext> and returns the
// stored object name.
func (s *TemplateService) Upload(ctx context.Context, fileName string, body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("%w: empty file", domain.ErrUploadFailed)
	}
	name := UploadName(fileName, s.now())
	opts := ports.UploadOptions{
		ContentType:  contentTypeFor(fileName, body),
		CacheControl: "3600",
		Upsert:       false,
	}
	if err := s.storage.Upload(ctx, s.cfg.UploadBucket, name, bytes.NewReader(body), opts); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}
	s.log.Info().Str("object", name).Int("bytes", len(body)).Msg("template uploaded")
	return name, nil
}

// UploadName builds the stored object name for an uploaded scan.
func UploadName(fileName string, at time.Time) string {
	return fmt.Sprintf("uploaded_template_%d%s", at.UnixMilli(), filepath.Ext(fileName))
}

func contentTypeFor(fileName string, body []byte) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	return http.DetectContentType(body)
}
