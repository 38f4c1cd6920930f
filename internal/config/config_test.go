package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mustLoad(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"EMBEDDING_DIM", "MATCH_THRESHOLD", "CITATION_MAX_ATTEMPTS",
		"RECOGNIZER_TIMEOUT", "FACEWATCH_CONFIG", "WEB_PORT",
	} {
		t.Setenv(key, "")
	}

	cfg := mustLoad(t)

	if cfg.Matching.Dim != 128 {
		t.Errorf("expected default embedding dim 128, got %d", cfg.Matching.Dim)
	}
	if cfg.Matching.Threshold != 0.6 {
		t.Errorf("expected default threshold 0.6, got %v", cfg.Matching.Threshold)
	}
	if cfg.Citation.MaxAttempts != 1000 {
		t.Errorf("expected default max attempts 1000, got %d", cfg.Citation.MaxAttempts)
	}
	if cfg.Recognizer.Timeout != 120*time.Second {
		t.Errorf("expected default recognizer timeout 120s, got %v", cfg.Recognizer.Timeout)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Web.Port)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("FACEWATCH_CONFIG", "")
	t.Setenv("EMBEDDING_DIM", "512")
	t.Setenv("MATCH_THRESHOLD", "0.75")
	t.Setenv("RECOGNIZER_TIMEOUT", "5s")
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com,")

	cfg := mustLoad(t)

	if cfg.Matching.Dim != 512 {
		t.Errorf("expected embedding dim 512, got %d", cfg.Matching.Dim)
	}
	if cfg.Matching.Threshold != 0.75 {
		t.Errorf("expected threshold 0.75, got %v", cfg.Matching.Threshold)
	}
	if cfg.Recognizer.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Recognizer.Timeout)
	}
	if len(cfg.Web.AllowedOrigins) != 2 {
		t.Errorf("expected 2 allowed origins, got %v", cfg.Web.AllowedOrigins)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric dim", "EMBEDDING_DIM", "invalid"},
		{"negative dim", "EMBEDDING_DIM", "-100"},
		{"zero dim", "EMBEDDING_DIM", "0"},
		{"threshold above one", "MATCH_THRESHOLD", "1.5"},
		{"threshold garbage", "MATCH_THRESHOLD", "high"},
		{"bad duration", "RECOGNIZER_TIMEOUT", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FACEWATCH_CONFIG", "")
			t.Setenv(tt.key, tt.value)

			cfg := mustLoad(t)

			if cfg.Matching.Dim != 128 {
				t.Errorf("expected default dim 128, got %d", cfg.Matching.Dim)
			}
			if cfg.Matching.Threshold != 0.6 {
				t.Errorf("expected default threshold 0.6, got %v", cfg.Matching.Threshold)
			}
			if cfg.Recognizer.Timeout != 120*time.Second {
				t.Errorf("expected default timeout, got %v", cfg.Recognizer.Timeout)
			}
		})
	}
}

func TestLoad_PolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `matching:
  dim: 256
  threshold: 0.7
  snapshot_ttl: 5s
  neighbour_index: false
citation:
  max_attempts: 50
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	t.Setenv("FACEWATCH_CONFIG", path)
	t.Setenv("EMBEDDING_DIM", "")
	t.Setenv("MATCH_THRESHOLD", "0.8")
	t.Setenv("CITATION_MAX_ATTEMPTS", "")
	t.Setenv("MATCH_SNAPSHOT_TTL", "")
	t.Setenv("MATCH_NEIGHBOUR_INDEX", "")

	cfg := mustLoad(t)

	if cfg.Matching.Dim != 256 {
		t.Errorf("expected dim from file 256, got %d", cfg.Matching.Dim)
	}
	// env wins over file
	if cfg.Matching.Threshold != 0.8 {
		t.Errorf("expected env threshold 0.8, got %v", cfg.Matching.Threshold)
	}
	if cfg.Matching.SnapshotTTL != 5*time.Second {
		t.Errorf("expected snapshot ttl 5s, got %v", cfg.Matching.SnapshotTTL)
	}
	if cfg.Matching.NeighbourIdx {
		t.Error("expected neighbour index disabled by file")
	}
	if cfg.Citation.MaxAttempts != 50 {
		t.Errorf("expected max attempts 50, got %d", cfg.Citation.MaxAttempts)
	}
}

func TestLoad_PolicyFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("FACEWATCH_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
		if _, err := Load(); err == nil {
			t.Error("expected error for missing policy file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("matching: [unclosed"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		t.Setenv("FACEWATCH_CONFIG", path)
		if _, err := Load(); err == nil {
			t.Error("expected error for invalid yaml")
		}
	})
}
