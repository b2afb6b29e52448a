package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Download.MaxRetries != 3 {
		t.Fatalf("expected max_retries 3, got %d", cfg.Download.MaxRetries)
	}
	if cfg.Download.MinFileSizeBytes != 1024 {
		t.Fatalf("expected min_file_size_bytes 1024, got %d", cfg.Download.MinFileSizeBytes)
	}
	if cfg.Batch.ChunkSize != 200 {
		t.Fatalf("expected chunk_size 200, got %d", cfg.Batch.ChunkSize)
	}
	if got := cfg.DownloadTimeout(); got != 300*time.Second {
		t.Fatalf("expected timeout 300s, got %v", got)
	}
	if got := cfg.ConnectTimeout(); got != 30*time.Second {
		t.Fatalf("expected connect timeout 30s, got %v", got)
	}
	if got := cfg.RetryDelay(); got != time.Second {
		t.Fatalf("expected retry delay 1s, got %v", got)
	}
	if got := cfg.MaxExecution(); got != 5400*time.Second {
		t.Fatalf("expected max execution 5400s, got %v", got)
	}
	if cfg.Run.ContinueOnFailure {
		t.Fatalf("expected continue_on_failure to default to false")
	}
	if got := cfg.EnabledSources(); len(got) != len(SourceNames()) {
		t.Fatalf("expected every source enabled by default, got %v", got)
	}
	for _, name := range []string{SourceQuran, SourceHadith, SourceOJK, SourceSwiftGlobal} {
		if src, _ := cfg.Source(name); !strings.HasPrefix(src.URL, "https://") {
			t.Fatalf("expected a default url for %s, got %q", name, src.URL)
		}
	}
	if src, _ := cfg.Source(SourceAsmaulHusna); len(src.URLs) != 2 {
		t.Fatalf("expected base and enrichment urls for asmaul_husna, got %v", src.URLs)
	}
}

func TestLoadSourceURLsFromEnv(t *testing.T) {
	t.Setenv("IMPORTER_SOURCES_QURAN_URL", "https://mirror.example/quran.json")
	t.Setenv("IMPORTER_SOURCES_ASMAUL_HUSNA_URLS", "https://mirror.example/base.json,https://mirror.example/extra.json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if src, _ := cfg.Source(SourceQuran); src.URL != "https://mirror.example/quran.json" {
		t.Fatalf("expected quran url from env, got %q", src.URL)
	}
	src, _ := cfg.Source(SourceAsmaulHusna)
	want := []string{"https://mirror.example/base.json", "https://mirror.example/extra.json"}
	if strings.Join(src.URLs, " ") != strings.Join(want, " ") {
		t.Fatalf("expected asmaul_husna urls %v, got %v", want, src.URLs)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
download:
  max_retries: 5
  retry_delay_ms: 250
  parallelism: 2
batch:
  chunk_size: 500
run:
  continue_on_failure: true
archive:
  backend: local
  base_dir: /tmp/archive
logging:
  development: false
sources:
  quran:
    url: https://example.com/quran.json
    sha256: abc123
  ojk:
    enabled: false
  asmaul_husna:
    urls:
      - https://example.com/base.json
      - https://example.com/extra.json
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Download.MaxRetries != 5 || cfg.Download.Parallelism != 2 {
		t.Fatalf("expected download overrides to apply: %+v", cfg.Download)
	}
	if cfg.Batch.ChunkSize != 500 {
		t.Fatalf("expected chunk size 500, got %d", cfg.Batch.ChunkSize)
	}
	if !cfg.Run.ContinueOnFailure {
		t.Fatalf("expected continue_on_failure to be true")
	}
	quran, ok := cfg.Source(SourceQuran)
	if !ok || quran.URL != "https://example.com/quran.json" || quran.SHA256 != "abc123" {
		t.Fatalf("expected quran source to be loaded: %+v", quran)
	}
	if !quran.Enabled {
		t.Fatalf("expected quran to stay enabled by default")
	}
	asma, ok := cfg.Source(SourceAsmaulHusna)
	if !ok || len(asma.URLs) != 2 {
		t.Fatalf("expected two asmaul_husna urls: %+v", asma)
	}
	for _, name := range cfg.EnabledSources() {
		if name == SourceOJK {
			t.Fatalf("expected ojk to be disabled")
		}
	}
	if cfg.Logging.Development {
		t.Fatalf("expected logging.development override to false")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Download: DownloadConfig{
			TimeoutSeconds:        10,
			ConnectTimeoutSeconds: 5,
			Parallelism:           1,
		},
		Batch: BatchConfig{ChunkSize: 10},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Enabled = true
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "negative retries",
			cfg: func() Config {
				c := base
				c.Download.MaxRetries = -1
				return c
			}(),
			want: "download.max_retries",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.Download.TimeoutSeconds = 0
				return c
			}(),
			want: "download.timeout_seconds",
		},
		{
			name: "invalid chunk size",
			cfg: func() Config {
				c := base
				c.Batch.ChunkSize = 0
				return c
			}(),
			want: "batch.chunk_size",
		},
		{
			name: "gcs archive missing bucket",
			cfg: func() Config {
				c := base
				c.Archive.Backend = "gcs"
				return c
			}(),
			want: "archive.gcs_bucket",
		},
		{
			name: "unknown archive backend",
			cfg: func() Config {
				c := base
				c.Archive.Backend = "s3"
				return c
			}(),
			want: "archive.backend",
		},
		{
			name: "telegram missing chat",
			cfg: func() Config {
				c := base
				c.Telegram.BotToken = "token"
				return c
			}(),
			want: "telegram.chat_id",
		},
		{
			name: "unknown source",
			cfg: func() Config {
				c := base
				c.Sources = map[string]SourceConfig{"bible": {Enabled: true}}
				return c
			}(),
			want: "unknown source",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
