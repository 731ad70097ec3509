package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newFakeOllama(t *testing.T, haveModel bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/version":
			json.NewEncoder(w).Encode(map[string]string{"version": "0.5.0"})
		case "/api/show":
			if !haveModel {
				http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{})
		case "/api/embeddings":
			json.NewEncoder(w).Encode(map[string]any{
				"embedding": []float64{0.1, 0.2, 0.3, 0.4},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAvailable(t *testing.T) {
	srv := newFakeOllama(t, true)
	p := New(Config{Endpoint: srv.URL})

	if err := p.Available(context.Background()); err != nil {
		t.Errorf("Expected provider to be available: %v", err)
	}
}

func TestAvailableMissingModel(t *testing.T) {
	srv := newFakeOllama(t, false)
	p := New(Config{Model: "nomic-embed-text", Endpoint: srv.URL})

	err := p.Available(context.Background())
	if err == nil {
		t.Fatal("Expected error for missing model")
	}
	if !strings.Contains(err.Error(), "ollama pull nomic-embed-text") {
		t.Errorf("Expected pull hint in error, got: %v", err)
	}
}

func TestAvailableServerDown(t *testing.T) {
	srv := newFakeOllama(t, true)
	srv.Close()
	p := New(Config{Endpoint: srv.URL})

	if err := p.Available(context.Background()); err == nil {
		t.Error("Expected error when ollama is unreachable")
	}
}

func TestEmbedDetectsDimensions(t *testing.T) {
	srv := newFakeOllama(t, true)
	p := New(Config{Endpoint: srv.URL})

	vecs, err := p.Embed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("Expected 2 embeddings, got %d", len(vecs))
	}
	if len(vecs[0]) != 4 {
		t.Errorf("Expected 4-dim embedding, got %d", len(vecs[0]))
	}
	if p.Dimensions() != 4 {
		t.Errorf("Expected auto-detected dimensions 4, got %d", p.Dimensions())
	}
}
