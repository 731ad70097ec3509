package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateMetric(t *testing.T) {
	tests := []struct {
		metric  string
		wantErr bool
	}{
		{"l2", false},
		{"cosine", false},
		{"ip", true},
		{"", true},
		{"L2", true}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.VectorStore.Metric = tt.metric
			errs := Validate(cfg)

			hasErr := len(errs) > 0
			if hasErr != tt.wantErr {
				t.Errorf("Validate(Metric=%q) hasErr=%v, want %v (errs=%v)", tt.metric, hasErr, tt.wantErr, errs)
			}
		})
	}
}

func TestValidateChunkOverlap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Chunking.ChunkOverlap = cfg.Chunking.ChunkSize
	if errs := Validate(cfg); len(errs) == 0 {
		t.Error("expected error when overlap equals chunk size")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "configtest")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	cfg, warnings, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning about missing config file")
	}
	if cfg.Chunking.ChunkSize != 500 {
		t.Errorf("default chunk size = %d, want 500", cfg.Chunking.ChunkSize)
	}
	if cfg.VectorStore.Metric != "l2" {
		t.Errorf("default metric = %q, want l2", cfg.VectorStore.Metric)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "configtest")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	cfg := DefaultConfig()
	cfg.Search.TopK = 7
	cfg.VectorStore.Metric = "cosine"

	if err := Save(tmpDir, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ".chatrag", "config.yaml")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, _, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Search.TopK != 7 {
		t.Errorf("TopK = %d, want 7", loaded.Search.TopK)
	}
	if loaded.VectorStore.Metric != "cosine" {
		t.Errorf("Metric = %q, want cosine", loaded.VectorStore.Metric)
	}
}

func TestHashChangesWithModel(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	if a.Hash() != b.Hash() {
		t.Error("identical configs should hash equal")
	}
	b.Embedding.Model = "text-embedding-3-small"
	if a.Hash() == b.Hash() {
		t.Error("hash should change when embedding model changes")
	}
}
