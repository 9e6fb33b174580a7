// Package config handles configuration loading, validation, and management for keytrace.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Capture configures the keyboard listener and event builder.
	Capture CaptureConfig `toml:"capture" json:"capture" yaml:"capture" envPrefix:"CAPTURE_"`

	// Storage configures the SQLite event store.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage" envPrefix:"STORAGE_"`

	// Export configures the JSON Lines sink.
	Export ExportConfig `toml:"export" json:"export" yaml:"export" envPrefix:"EXPORT_"`

	// Stream configures the Redis stream publisher.
	Stream StreamConfig `toml:"stream" json:"stream" yaml:"stream" envPrefix:"STREAM_"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics" envPrefix:"METRICS_"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging" envPrefix:"LOG_"`

	// Daemon configures pid and state files.
	Daemon DaemonConfig `toml:"daemon" json:"daemon" yaml:"daemon" envPrefix:"DAEMON_"`
}

// CaptureConfig configures event capture.
type CaptureConfig struct {
	// Listener selects the hook: "auto" (platform hook) or "simulated".
	Listener string `toml:"listener" json:"listener" yaml:"listener" env:"LISTENER"`

	// BufferSize is the capacity of the queue between hook and builder.
	// Events arriving while it is full are dropped and counted.
	BufferSize int `toml:"buffer_size" json:"buffer_size" yaml:"buffer_size" env:"BUFFER_SIZE"`

	// SessionID overrides the generated session id.
	SessionID string `toml:"session_id" json:"session_id" yaml:"session_id" env:"SESSION_ID"`

	// CrashDir is where crash reports of the capture worker are written.
	CrashDir string `toml:"crash_dir" json:"crash_dir" yaml:"crash_dir" env:"CRASH_DIR"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	// Type is the storage backend type: "sqlite" or "none".
	Type string `toml:"type" json:"type" yaml:"type" env:"TYPE"`

	// Path is the path to the database file.
	Path string `toml:"path" json:"path" yaml:"path" env:"PATH"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms" env:"BUSY_TIMEOUT_MS"`
}

// ExportConfig configures the JSON Lines sink.
type ExportConfig struct {
	// JSONLPath enables the sink when set. Events are appended.
	JSONLPath string `toml:"jsonl_path" json:"jsonl_path" yaml:"jsonl_path" env:"JSONL_PATH"`

	// Validate checks each record against the embedded schema before writing.
	Validate bool `toml:"validate" json:"validate" yaml:"validate" env:"VALIDATE"`
}

// StreamConfig configures the Redis stream publisher.
type StreamConfig struct {
	Enabled  bool   `toml:"enabled" json:"enabled" yaml:"enabled" env:"ENABLED"`
	Addr     string `toml:"addr" json:"addr" yaml:"addr" env:"ADDR"`
	Password string `toml:"password" json:"password" yaml:"password" env:"PASSWORD"`
	DB       int    `toml:"db" json:"db" yaml:"db" env:"DB"`

	// Key is the stream key events are appended to.
	Key string `toml:"key" json:"key" yaml:"key" env:"KEY"`

	// MaxLen caps the stream length (approximate trimming). 0 disables.
	MaxLen int64 `toml:"max_len" json:"max_len" yaml:"max_len" env:"MAX_LEN"`

	// Codec is the payload encoding: "json" or "cbor".
	Codec string `toml:"codec" json:"codec" yaml:"codec" env:"CODEC"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled" env:"ENABLED"`
	Listen  string `toml:"listen" json:"listen" yaml:"listen" env:"LISTEN"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level" env:"LEVEL"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format" env:"FORMAT"`

	// Output is the log destination: "stdout", "stderr", "file", "both".
	Output string `toml:"output" json:"output" yaml:"output" env:"OUTPUT"`

	// FilePath is the path to the log file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path" env:"PATH"`

	MaxSizeMB  int  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int  `toml:"max_backups" json:"max_backups" yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int  `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool `toml:"compress" json:"compress" yaml:"compress" env:"COMPRESS"`
}

// DaemonConfig configures daemon bookkeeping files.
type DaemonConfig struct {
	// Dir holds daemon.pid and daemon.state.
	Dir string `toml:"dir" json:"dir" yaml:"dir" env:"DIR"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()
	return &Config{
		Version: Version,
		Capture: CaptureConfig{
			Listener:   "auto",
			BufferSize: 1024,
			CrashDir:   filepath.Join(dir, "crashes"),
		},
		Storage: StorageConfig{
			Type:          "sqlite",
			Path:          filepath.Join(dir, "keytrace.db"),
			BusyTimeoutMs: 5000,
		},
		Export: ExportConfig{
			Validate: true,
		},
		Stream: StreamConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			Key:     "keytrace:events",
			MaxLen:  100000,
			Codec:   "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "keytrace.log"),
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Daemon: DaemonConfig{
			Dir: dir,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// DataDir returns the base keytrace directory. KEYTRACE_DATA_DIR overrides
// the platform default.
func DataDir() string {
	if envDir := os.Getenv("KEYTRACE_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from path with environment overrides applied and
// validates it. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Daemon.Dir, c.Capture.CrashDir}
	if c.Storage.Type == "sqlite" {
		dirs = append(dirs, filepath.Dir(c.Storage.Path))
	}
	if c.Export.JSONLPath != "" {
		dirs = append(dirs, filepath.Dir(c.Export.JSONLPath))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Save writes the configuration as TOML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode TOML: %w", err)
	}
	return nil
}
