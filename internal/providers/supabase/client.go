package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config identifies the Supabase project.
type Config struct {
	URL     string
	AnonKey string
	Timeout time.Duration
}

// Client is the shared REST transport for the auth and storage APIs.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient, now: time.Now}
}

// Configured reports whether a project URL and key are set.
func (c *Client) Configured() bool {
	return c.cfg.URL != "" && c.cfg.AnonKey != ""
}

// APIError is a non-2xx response from Supabase.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("supabase returned status %d", e.Status)
	}
	return fmt.Sprintf("supabase returned status %d: %s", e.Status, e.Message)
}

type request struct {
	method  string
	path    string
	token   string
	headers map[string]string
	body    io.Reader
	json    any
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	if !c.Configured() {
		return errors.New("SUPABASE_URL and SUPABASE_ANON_KEY are not configured")
	}

	body := r.body
	contentType := ""
	if r.json != nil {
		encoded, err := json.Marshal(r.json)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.cfg.URL+r.path, body)
	if err != nil {
		return fmt.Errorf("build supabase request: %w", err)
	}
	req.Header.Set("apikey", c.cfg.AnonKey)
	token := r.token
	if token == "" {
		token = c.cfg.AnonKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("supabase request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read supabase response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(payload)}
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode supabase response: %w", err)
	}
	return nil
}

// errorMessage picks the message field used by whichever Supabase service
// answered.
func errorMessage(payload []byte) string {
	var body struct {
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(payload, &body) != nil {
		return strings.TrimSpace(string(payload))
	}
	for _, candidate := range []string{body.ErrorDescription, body.Message, body.Msg, body.Error} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
