package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/minimee-ai/recall/internal/embeddings"
)

func TestNew_Defaults(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if p.baseURL != "http://localhost:11434" {
		t.Errorf("baseURL = %q, want default", p.baseURL)
	}
	if p.model != "nomic-embed-text" {
		t.Errorf("model = %q, want nomic-embed-text", p.model)
	}
}

func TestProvider_Dimension(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"nomic-embed-text", 768},
		{"mxbai-embed-large", 1024},
		{"all-minilm", 384},
		{"something-else", 768},
	}
	for _, tt := range tests {
		p, _ := New(Config{Model: tt.model})
		if got := p.Dimension(); got != tt.want {
			t.Errorf("Dimension(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Prompt != "hello" {
			t.Errorf("prompt = %q, want hello", req.Prompt)
		}
		json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	p, _ := New(Config{BaseURL: srv.URL})
	vec, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("got %d dims, want 3", len(vec))
	}
}

func TestProvider_Embed_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := New(Config{BaseURL: srv.URL})
	_, err := p.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error for server failure")
	}
	if !errors.Is(err, embeddings.ErrUnavailable) {
		t.Errorf("error %v should wrap embeddings.ErrUnavailable", err)
	}
}

func TestProvider_EmbedBatch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float32{float32(calls)}})
	}))
	defer srv.Close()

	p, _ := New(Config{BaseURL: srv.URL})
	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch error: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	if calls != 3 {
		t.Errorf("server saw %d calls, want 3", calls)
	}
}
