package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the persistent application configuration
type Config struct {
	DataDir  string `yaml:"data_dir"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`

	Pipeline Pipeline        `yaml:"pipeline"`
	Provider ServiceSettings `yaml:"provider"`
	Embedder ServiceSettings `yaml:"embedder"`
	Index    IndexSettings   `yaml:"index"`
}

// Pipeline holds the tunables every stage reads. Each stage gets its own
// Options struct built from these values; nothing reads them globally.
type Pipeline struct {
	// ReferenceDate pins "today" (YYYY-MM-DD). Empty means the current UTC date.
	ReferenceDate string `yaml:"reference_date,omitempty"`

	WindowDays    int `yaml:"window_days"`    // trailing window for aggregation and entities
	RetentionDays int `yaml:"retention_days"` // raw events older than this are pruned on ingest

	MaxEventCodes int `yaml:"max_event_codes"`
	MaxSampleURLs int `yaml:"max_sample_urls"`
	TopEntities   int `yaml:"top_entities"`

	EmbedChars int `yaml:"embed_chars"` // topic_doc prefix embedded per record

	TopN         int `yaml:"top_n"`         // cohort size on the latest date
	OverFetch    int `yaml:"over_fetch"`    // neighbours requested before date filtering
	AnalogTopK   int `yaml:"analog_top_k"`  // analogs kept per country
	SnippetChars int `yaml:"snippet_chars"` // analog snippet budget
	SearchJobs   int `yaml:"search_jobs"`   // parallel similarity searches

	ContextChars    int     `yaml:"context_chars"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
	SentimentTokens int     `yaml:"sentiment_tokens"`
	SummaryTokens   int     `yaml:"summary_tokens"`
	GenerateJobs    int     `yaml:"generate_jobs"` // parallel model calls
}

// ServiceSettings describes one external capability (generator or embedder).
type ServiceSettings struct {
	Name     string        `yaml:"name"` // gemini, openai, claude, ollama, jina
	Model    string        `yaml:"model,omitempty"`
	Endpoint string        `yaml:"endpoint,omitempty"`
	APIKey   string        `yaml:"api_key,omitempty"`
	RPM      int           `yaml:"rpm"` // requests per minute, 0 for unlimited
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
}

// IndexSettings selects the similarity index implementation.
type IndexSettings struct {
	Kind     string `yaml:"kind"` // "exact" or "hnsw"
	M        int    `yaml:"m"`
	EfSearch int    `yaml:"ef_search"`
	Seed     int64  `yaml:"seed,omitempty"` // hnsw level RNG, 0 for time-seeded
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:  dataDir,
		DBPath:   filepath.Join(dataDir, "moodmap.db"),
		LogLevel: "info",
		Pipeline: Pipeline{
			WindowDays:      7,
			RetentionDays:   60,
			MaxEventCodes:   20,
			MaxSampleURLs:   30,
			TopEntities:     10,
			EmbedChars:      3000,
			TopN:            80,
			OverFetch:       10,
			AnalogTopK:      5,
			SnippetChars:    400,
			SearchJobs:      8,
			ContextChars:    700,
			Temperature:     0.2,
			MaxTokens:       300,
			SentimentTokens: 300,
			SummaryTokens:   60,
			GenerateJobs:    4,
		},
		Provider: ServiceSettings{
			Name:    "gemini",
			Model:   "gemini-2.0-flash-001",
			RPM:     60,
			Timeout: 120 * time.Second,
			Retries: 3,
		},
		Embedder: ServiceSettings{
			Name:    "gemini",
			Model:   "gemini-embedding-001",
			RPM:     80,
			Timeout: 60 * time.Second,
			Retries: 3,
		},
		Index: IndexSettings{
			Kind:     "exact",
			M:        16,
			EfSearch: 64,
		},
	}
}

// DefaultDataDir returns ~/.moodmap, or .moodmap when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".moodmap"
	}
	return filepath.Join(home, ".moodmap")
}

// ConfigPath returns the default path to the config file
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Load reads config from path (ConfigPath when empty). A missing file yields
// defaults. Environment variables are applied last in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.AutoPopulateFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: load env files: %w", err)
	}
	return nil
}

// Save writes config to disk
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // Restrictive permissions for API keys
}

// AutoPopulateFromEnv fills in keys, endpoints and overrides from environment variables
func (c *Config) AutoPopulateFromEnv() {
	if v := os.Getenv("MOODMAP_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("MOODMAP_PROVIDER"); v != "" {
		c.Provider.Name = v
		c.Provider.Model = ""
	}
	if v := os.Getenv("MOODMAP_EMBEDDER"); v != "" {
		c.Embedder.Name = v
		c.Embedder.Model = ""
	}

	c.Provider.fillFromEnv()
	c.Embedder.fillFromEnv()
}

func (s *ServiceSettings) fillFromEnv() {
	switch s.Name {
	case "gemini":
		if s.APIKey == "" {
			s.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
		}
	case "openai":
		if s.APIKey == "" {
			s.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if v := os.Getenv("OPENAI_BASE_URL"); v != "" && s.Endpoint == "" {
			s.Endpoint = v
		}
	case "claude":
		if s.APIKey == "" {
			s.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	case "jina":
		if s.APIKey == "" {
			s.APIKey = os.Getenv("JINA_API_KEY")
		}
	case "ollama":
		if v := os.Getenv("OLLAMA_HOST"); v != "" && s.Endpoint == "" {
			s.Endpoint = v
		}
	}
}

// Validate rejects settings no stage can run with.
func (c *Config) Validate() error {
	p := c.Pipeline
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(p.WindowDays > 0, "pipeline.window_days must be positive")
	check(p.RetentionDays >= p.WindowDays, "pipeline.retention_days must cover window_days")
	check(p.MaxEventCodes > 0 && p.MaxSampleURLs > 0, "pipeline caps must be positive")
	check(p.TopEntities > 0, "pipeline.top_entities must be positive")
	check(p.EmbedChars > 0, "pipeline.embed_chars must be positive")
	check(p.TopN > 0, "pipeline.top_n must be positive")
	check(p.AnalogTopK > 0, "pipeline.analog_top_k must be positive")
	check(p.OverFetch >= p.AnalogTopK, "pipeline.over_fetch must be >= analog_top_k")
	check(p.SnippetChars > 0 && p.ContextChars > 0, "pipeline character budgets must be positive")
	check(p.Temperature >= 0 && p.Temperature <= 2, "pipeline.temperature must be within [0, 2]")
	check(p.MaxTokens > 0 && p.SentimentTokens > 0 && p.SummaryTokens > 0, "pipeline token budgets must be positive")
	check(p.SearchJobs > 0 && p.GenerateJobs > 0, "pipeline job limits must be positive")
	if p.ReferenceDate != "" {
		_, err := time.Parse("2006-01-02", p.ReferenceDate)
		check(err == nil, "pipeline.reference_date must be YYYY-MM-DD")
	}
	check(c.Index.Kind == "exact" || c.Index.Kind == "hnsw", "index.kind must be exact or hnsw")

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Today resolves the pipeline reference date.
func (p Pipeline) Today() time.Time {
	if p.ReferenceDate != "" {
		if t, err := time.Parse("2006-01-02", p.ReferenceDate); err == nil {
			return t
		}
	}
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
