package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config controls the Gemini REST client.
type Config struct {
	APIKey     string
	APIBaseURL string
	Model      string
	Timeout    time.Duration
}

// Generator implements ports.Generator with the generateContent endpoint.
type Generator struct {
	cfg    Config
	client *http.Client
}

func NewGenerator(cfg Config, client *http.Client) *Generator {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-pro"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Generator{cfg: cfg, client: client}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate returns the text of the first candidate.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return "", errors.New("GEMINI_API_KEY is not configured")
	}

	body, err := json.Marshal(generateRequest{Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(g.cfg.APIBaseURL, "/") + "/models/" + url.PathEscape(g.cfg.Model) + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr errorResponse
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("gemini returned status %s: %s", resp.Status, apiErr.Error.Message)
		}
		return "", fmt.Errorf("gemini returned status %s", resp.Status)
	}

	var decoded generateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if decoded.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked prompt: %s", decoded.PromptFeedback.BlockReason)
	}
	if len(decoded.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}

	var b strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}
