// Package config loads and validates importer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Source names known to the importer.
const (
	SourceQuran       = "quran"
	SourceHadith      = "hadith"
	SourceOJK         = "ojk"
	SourceSwiftGlobal = "swift_global"
	SourceAsmaulHusna = "asmaul_husna"
)

// Config captures all importer configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig            `mapstructure:"server"`
	Download DownloadConfig          `mapstructure:"download"`
	Batch    BatchConfig             `mapstructure:"batch"`
	Runtime  RuntimeConfig           `mapstructure:"runtime"`
	Run      RunConfig               `mapstructure:"run"`
	DB       DBConfig                `mapstructure:"db"`
	Archive  ArchiveConfig           `mapstructure:"archive"`
	PubSub   PubSubConfig            `mapstructure:"pubsub"`
	Redis    RedisConfig             `mapstructure:"redis"`
	Telegram TelegramConfig          `mapstructure:"telegram"`
	Progress ProgressConfig          `mapstructure:"progress"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Sources  map[string]SourceConfig `mapstructure:"sources"`
}

// ServerConfig controls the optional ops HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
	// APIKey, when set, is required on /v1 routes via X-API-Key.
	APIKey string `mapstructure:"api_key"`
}

// DownloadConfig configures the resilient downloader.
type DownloadConfig struct {
	MaxRetries            int    `mapstructure:"max_retries"`
	TimeoutSeconds        int    `mapstructure:"timeout_seconds"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
	MinFileSizeBytes      int64  `mapstructure:"min_file_size_bytes"`
	RetryDelayMs          int    `mapstructure:"retry_delay_ms"`
	Parallelism           int    `mapstructure:"parallelism"`
	UserAgent             string `mapstructure:"user_agent"`
	TempDir               string `mapstructure:"temp_dir"`
	// RateLimitRPS caps requests per second to one host; zero disables it.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// BatchConfig controls chunked upserts.
type BatchConfig struct {
	ChunkSize     int    `mapstructure:"chunk_size"`
	DeadLetterDir string `mapstructure:"dead_letter_dir"`
}

// RuntimeConfig bounds process resources for a run.
type RuntimeConfig struct {
	MemoryLimitBytes    int64 `mapstructure:"memory_limit_bytes"`
	MaxExecutionSeconds int   `mapstructure:"max_execution_seconds"`
}

// RunConfig governs multi-source runs.
type RunConfig struct {
	ContinueOnFailure bool `mapstructure:"continue_on_failure"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// ArchiveConfig selects where raw payloads are archived after a successful download.
type ArchiveConfig struct {
	// Backend is one of "", "local", "gcs" or "memory". Empty disables archiving.
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// RedisConfig configures the run result log.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	KeyPrefix  string `mapstructure:"key_prefix"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// TelegramConfig configures chat reports of finished runs.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutMs  int `mapstructure:"sink_timeout_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SourceConfig locates the remote payload(s) of one source.
type SourceConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	URL     string   `mapstructure:"url"`
	URLs    []string `mapstructure:"urls"`
	SHA256  string   `mapstructure:"sha256"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMPORTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.timeout_seconds", 300)
	v.SetDefault("download.connect_timeout_seconds", 30)
	v.SetDefault("download.min_file_size_bytes", 1024)
	v.SetDefault("download.retry_delay_ms", 1000)
	v.SetDefault("download.parallelism", 4)
	v.SetDefault("download.user_agent", "dataset-importer/0.1")
	v.SetDefault("download.rate_limit_rps", 0)
	v.SetDefault("download.rate_limit_burst", 4)
	v.SetDefault("batch.chunk_size", 200)
	v.SetDefault("runtime.memory_limit_bytes", int64(1024)<<20)
	v.SetDefault("runtime.max_execution_seconds", 5400)
	v.SetDefault("run.continue_on_failure", false)
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("archive.prefix", "payloads")
	v.SetDefault("redis.key_prefix", "importer:run")
	v.SetDefault("redis.ttl_seconds", 86400)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 100)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_ms", 10000)
	v.SetDefault("logging.development", true)
	for _, name := range SourceNames() {
		v.SetDefault("sources."+name+".enabled", true)
		v.SetDefault("sources."+name+".url", defaultSourceURLs[name])
		v.SetDefault("sources."+name+".sha256", "")
	}
	v.SetDefault("sources."+SourceAsmaulHusna+".urls", defaultAsmaulHusnaURLs)
}

// defaultSourceURLs are the published payloads of each single-document source.
var defaultSourceURLs = map[string]string{
	SourceQuran:       "https://vickyserver.my.id/data/quran/quran_data.json",
	SourceHadith:      "https://vickyserver.my.id/data/hadiths/hadiths_data.json",
	SourceOJK:         "https://vickyserver.my.id/data/ojk/ojk_data.json",
	SourceSwiftGlobal: "https://vickyserver.my.id/data/swift_global/swift_global_data.json",
}

// defaultAsmaulHusnaURLs lists the base document, then the enrichment document.
var defaultAsmaulHusnaURLs = []string{
	"https://islamic-api.vwxyz.id/asmaulhusna",
	"https://raw.githubusercontent.com/KabDeveloper/99-Names-Of-Allah/refs/heads/main/99_Names_Of_Allah.json",
}

// SourceNames returns the known sources in their canonical run order. Quran
// precedes asmaul_husna so verse references can be resolved.
func SourceNames() []string {
	return []string{SourceQuran, SourceHadith, SourceOJK, SourceSwiftGlobal, SourceAsmaulHusna}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("download.max_retries must be >= 0")
	}
	if c.Download.TimeoutSeconds <= 0 {
		return fmt.Errorf("download.timeout_seconds must be > 0")
	}
	if c.Download.ConnectTimeoutSeconds <= 0 {
		return fmt.Errorf("download.connect_timeout_seconds must be > 0")
	}
	if c.Download.MinFileSizeBytes < 0 {
		return fmt.Errorf("download.min_file_size_bytes must be >= 0")
	}
	if c.Download.RetryDelayMs < 0 {
		return fmt.Errorf("download.retry_delay_ms must be >= 0")
	}
	if c.Download.RateLimitRPS < 0 {
		return fmt.Errorf("download.rate_limit_rps must be >= 0")
	}
	if c.Download.Parallelism <= 0 {
		return fmt.Errorf("download.parallelism must be > 0")
	}
	if c.Batch.ChunkSize <= 0 {
		return fmt.Errorf("batch.chunk_size must be > 0")
	}
	if c.Runtime.MaxExecutionSeconds < 0 {
		return fmt.Errorf("runtime.max_execution_seconds must be >= 0")
	}
	switch c.Archive.Backend {
	case "", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set when archive.backend is local")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.backend is gcs")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id must be set when telegram.bot_token is set")
	}
	known := make(map[string]struct{}, len(SourceNames()))
	for _, name := range SourceNames() {
		known[name] = struct{}{}
	}
	for name := range c.Sources {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("unknown source %q", name)
		}
	}
	return nil
}

// EnabledSources lists enabled sources in run order.
func (c Config) EnabledSources() []string {
	var out []string
	for _, name := range SourceNames() {
		src, ok := c.Sources[name]
		if ok && !src.Enabled {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Source returns the configuration of one source.
func (c Config) Source(name string) (SourceConfig, bool) {
	src, ok := c.Sources[name]
	return src, ok
}

// DownloadTimeout converts the per-attempt timeout into a duration.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutSeconds) * time.Second
}

// ConnectTimeout converts the dial timeout into a duration.
func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Download.ConnectTimeoutSeconds) * time.Second
}

// RetryDelay converts the retry base delay into a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.Download.RetryDelayMs) * time.Millisecond
}

// MaxExecution returns the run-level deadline; zero means unbounded.
func (c Config) MaxExecution() time.Duration {
	return time.Duration(c.Runtime.MaxExecutionSeconds) * time.Second
}
