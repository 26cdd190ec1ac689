package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateAccumulatesStream(t *testing.T) {
	t.Parallel()

	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte("{\"response\":\"{\\\"subject\\\":\",\"done\":false}\n\n"))
		_, _ = w.Write([]byte("{\"response\":\"\\\"Hi\\\"}\",\"done\":true}\n"))
	}))
	defer server.Close()

	g := NewGenerator(server.URL+"/", "mistral", server.Client())
	out, err := g.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if out != `{"subject":"Hi"}` {
		t.Fatalf("unexpected output: %q", out)
	}
	if got.Model != "mistral" || got.Prompt != "prompt" || !got.Stream || got.Format != "json" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestGenerateStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	g := NewGenerator(server.URL, "", server.Client())
	if _, err := g.Generate(context.Background(), "prompt"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestGenerateChunkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"out of memory"}` + "\n"))
	}))
	defer server.Close()

	g := NewGenerator(server.URL, "", server.Client())
	if _, err := g.Generate(context.Background(), "prompt"); err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("expected chunk error, got %v", err)
	}
}
