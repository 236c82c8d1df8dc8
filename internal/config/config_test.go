package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	p := cfg.Pipeline
	if p.TopN != 80 || p.AnalogTopK != 5 || p.SnippetChars != 400 {
		t.Errorf("unexpected analog defaults: %+v", p)
	}
	if p.ContextChars != 700 || p.MaxTokens != 300 || p.Temperature != 0.2 {
		t.Errorf("unexpected generation defaults: %+v", p)
	}
	if p.EmbedChars != 3000 || p.WindowDays != 7 {
		t.Errorf("unexpected embedding/window defaults: %+v", p)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.TopN != 80 {
		t.Errorf("TopN = %d, want 80", cfg.Pipeline.TopN)
	}
	if cfg.Index.Kind != "exact" {
		t.Errorf("Index.Kind = %q, want exact by default", cfg.Index.Kind)
	}
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
db_path: /tmp/other.db
pipeline:
  top_n: 12
  analog_top_k: 3
  over_fetch: 6
  reference_date: "2025-03-10"
provider:
  name: ollama
  model: llama3.2
  timeout: 30s
index:
  kind: hnsw
  seed: 42
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBPath != "/tmp/other.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.Pipeline.TopN != 12 || cfg.Pipeline.AnalogTopK != 3 {
		t.Errorf("pipeline overrides not applied: %+v", cfg.Pipeline)
	}
	// Untouched keys keep their defaults.
	if cfg.Pipeline.SnippetChars != 400 {
		t.Errorf("SnippetChars = %d, want default 400", cfg.Pipeline.SnippetChars)
	}
	if cfg.Provider.Timeout != 30*time.Second {
		t.Errorf("Provider.Timeout = %v, want 30s", cfg.Provider.Timeout)
	}
	if cfg.Index.Kind != "hnsw" || cfg.Index.Seed != 42 {
		t.Errorf("Index = %+v, want hnsw seeded 42", cfg.Index)
	}
	if cfg.Index.EfSearch != 64 {
		t.Errorf("Index.EfSearch = %d, want default 64", cfg.Index.EfSearch)
	}

	want := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if got := cfg.Pipeline.Today(); !got.Equal(want) {
		t.Errorf("Today() = %v, want %v", got, want)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "pipeline:\n  analog_top_k: 20\n  over_fetch: 10\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "over_fetch") {
		t.Errorf("error %q does not name over_fetch", err)
	}
}

func TestAutoPopulateFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("MOODMAP_EMBEDDER", "jina")
	t.Setenv("JINA_API_KEY", "j-key")
	t.Setenv("MOODMAP_DB", "/data/mm.db")

	cfg := DefaultConfig()
	cfg.AutoPopulateFromEnv()

	if cfg.Provider.APIKey != "g-key" {
		t.Errorf("Provider.APIKey = %q, want GOOGLE_API_KEY fallback", cfg.Provider.APIKey)
	}
	if cfg.Embedder.Name != "jina" || cfg.Embedder.APIKey != "j-key" {
		t.Errorf("Embedder = %+v", cfg.Embedder)
	}
	if cfg.Embedder.Model != "" {
		t.Errorf("Embedder.Model = %q, want cleared so the client picks its default", cfg.Embedder.Model)
	}
	if cfg.DBPath != "/data/mm.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultConfig()
	cfg.Pipeline.TopN = 7

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Pipeline.TopN != 7 {
		t.Errorf("TopN = %d after round trip", got.Pipeline.TopN)
	}
}

func TestLoadDotEnvSkipsMissing(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("MOODMAP_TEST_KEY=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MOODMAP_TEST_KEY", "")
	os.Unsetenv("MOODMAP_TEST_KEY")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("MOODMAP_TEST_KEY"); got != "from-file" {
		t.Errorf("MOODMAP_TEST_KEY = %q", got)
	}
}
