package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"keytrace/internal/logging"
)

func noEnv() []string { return nil }

func TestDefaultConfigValidates(t *testing.T) {
	t.Setenv("KEYTRACE_DATA_DIR", t.TempDir())
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Capture.Listener != "auto" {
		t.Errorf("expected listener auto, got %q", cfg.Capture.Listener)
	}
	if !strings.HasPrefix(cfg.Storage.Path, os.Getenv("KEYTRACE_DATA_DIR")) {
		t.Errorf("storage path should live in data dir: %s", cfg.Storage.Path)
	}
	if cfg.Stream.Enabled || cfg.Metrics.Enabled {
		t.Error("stream and metrics should be off by default")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := NewLoader(path).WithEnviron(noEnv).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Capture.BufferSize != DefaultConfig().Capture.BufferSize {
		t.Errorf("unexpected buffer size %d", cfg.Capture.BufferSize)
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"config.toml", "[capture]\nbuffer_size = 64\n[logging]\nlevel = \"debug\"\n"},
		{"config.json", `{"capture": {"buffer_size": 64}, "logging": {"level": "debug"}}`},
		{"config.yaml", "capture:\n  buffer_size: 64\nlogging:\n  level: debug\n"},
		{"config.conf", "[capture]\nbuffer_size = 64\n[logging]\nlevel = \"debug\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.name)
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			cfg, err := NewLoader(path).WithEnviron(noEnv).Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.Capture.BufferSize != 64 {
				t.Errorf("expected buffer size 64, got %d", cfg.Capture.BufferSize)
			}
			if cfg.Logging.Level != "debug" {
				t.Errorf("expected debug level, got %q", cfg.Logging.Level)
			}
			if cfg.Storage.Type != "sqlite" {
				t.Errorf("unset fields should keep defaults, got storage type %q", cfg.Storage.Type)
			}
		})
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader(path).WithEnviron(noEnv).Load(); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[stream]\naddr = \"redis:6379\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	environ := func() []string {
		return []string{
			"KEYTRACE_LOG_LEVEL=warn",
			"KEYTRACE_CAPTURE_BUFFER_SIZE=32",
			"KEYTRACE_STREAM_ENABLED=true",
			"KEYTRACE_STREAM_CODEC=cbor",
			"KEYTRACE_STORAGE_TYPE=none",
			"UNRELATED=1",
		}
	}

	cfg, err := NewLoader(path).WithEnviron(environ).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level: got %q", cfg.Logging.Level)
	}
	if cfg.Capture.BufferSize != 32 {
		t.Errorf("buffer size: got %d", cfg.Capture.BufferSize)
	}
	if !cfg.Stream.Enabled || cfg.Stream.Codec != "cbor" {
		t.Errorf("stream: got %+v", cfg.Stream)
	}
	if cfg.Stream.Addr != "redis:6379" {
		t.Errorf("file value should survive, got %q", cfg.Stream.Addr)
	}
	if cfg.Storage.Type != "none" {
		t.Errorf("storage type: got %q", cfg.Storage.Type)
	}
}

func TestDotEnvFileLosesToProcessEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	dotenv := "KEYTRACE_LOG_LEVEL=error\nKEYTRACE_CAPTURE_SESSION_ID=fromfile\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(dotenv), 0o600); err != nil {
		t.Fatal(err)
	}

	environ := func() []string { return []string{"KEYTRACE_LOG_LEVEL=debug"} }
	cfg, err := NewLoader(path).WithEnviron(environ).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("process env should win, got %q", cfg.Logging.Level)
	}
	if cfg.Capture.SessionID != "fromfile" {
		t.Errorf("dotenv value missing, got %q", cfg.Capture.SessionID)
	}
}

func TestEnvironmentOverrideTypeError(t *testing.T) {
	environ := func() []string { return []string{"KEYTRACE_CAPTURE_BUFFER_SIZE=lots"} }
	_, err := NewLoader("").WithEnviron(environ).Load()
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capture.Listener = "magic"
	cfg.Capture.BufferSize = 0
	cfg.Storage.Type = "postgres"
	cfg.Stream.Enabled = true
	cfg.Stream.Addr = "no-port"
	cfg.Stream.Codec = "xml"
	cfg.Logging.Level = "loud"
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = ""

	err := ValidateConfig(cfg)
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	for _, want := range []string{
		"capture.listener", "capture.buffer_size", "storage.type",
		"stream.addr", "stream.codec", "logging.level", "logging.file_path",
	} {
		if !fields[want] {
			t.Errorf("missing validation error for %s (got %v)", want, err)
		}
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("errors should be joined: %v", err)
	}
}

func TestLoadFailsValidation(t *testing.T) {
	environ := func() []string { return []string{"KEYTRACE_CAPTURE_LISTENER=bogus"} }
	_, err := NewLoader("").WithEnviron(environ).Load()
	if err == nil || !strings.Contains(err.Error(), "capture.listener") {
		t.Fatalf("expected listener validation error, got %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := DefaultConfig()
	cfg.Export.JSONLPath = "/tmp/events.jsonl"
	cfg.Stream.MaxLen = 42

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := NewLoader(path).WithEnviron(noEnv).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Export.JSONLPath != cfg.Export.JSONLPath || loaded.Stream.MaxLen != 42 {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Daemon.Dir = filepath.Join(dir, "state")
	cfg.Capture.CrashDir = filepath.Join(dir, "crashes")
	cfg.Storage.Path = filepath.Join(dir, "db", "keytrace.db")
	cfg.Export.JSONLPath = filepath.Join(dir, "export", "events.jsonl")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, sub := range []string{"state", "crashes", "db", "export"} {
		if info, err := os.Stat(filepath.Join(dir, sub)); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", sub)
		}
	}
}

func TestLoggingOptions(t *testing.T) {
	l := DefaultConfig().Logging
	l.Level = "warn"
	l.Format = "json"
	l.MaxSizeMB = 7

	opts, err := l.LoggingOptions()
	if err != nil {
		t.Fatalf("LoggingOptions: %v", err)
	}
	if opts.Level != logging.LevelWarn || opts.Format != logging.FormatJSON || opts.MaxSize != 7 {
		t.Errorf("unexpected options: %+v", opts)
	}

	l.Level = "loud"
	if _, err := l.LoggingOptions(); err == nil {
		t.Error("expected level error")
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"info\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path).WithEnviron(noEnv)
	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}
	changed := make(chan *Config, 1)
	l.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer l.Close()

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changed:
		if c.Logging.Level != "debug" {
			t.Errorf("expected reloaded level debug, got %q", c.Logging.Level)
		}
		if l.Config().Logging.Level != "debug" {
			t.Error("loader did not swap config")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatchReportsInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"info\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path).WithEnviron(noEnv)
	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer l.Close()

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-l.Errors():
		if !strings.Contains(err.Error(), "logging.level") {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}
	if l.Config().Logging.Level != "info" {
		t.Error("invalid config must not replace the current one")
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("APPDATA", dir)

	wd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}

	if got := FindConfigFile(); got != "" {
		t.Fatalf("expected no config, got %s", got)
	}
	if err := os.WriteFile("config.yaml", []byte("version: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := FindConfigFile(); got != filepath.Join(".", "config.yaml") {
		t.Errorf("got %s", got)
	}
}
