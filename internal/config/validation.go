package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationErrors) add(field, format string, args ...any) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs.add("version", "unsupported version %d", c.Version)
	}

	switch c.Capture.Listener {
	case "auto", "simulated":
	default:
		errs.add("capture.listener", "must be auto or simulated, got %q", c.Capture.Listener)
	}
	if c.Capture.BufferSize < 1 || c.Capture.BufferSize > 1<<20 {
		errs.add("capture.buffer_size", "must be between 1 and %d", 1<<20)
	}

	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.Path == "" {
			errs.add("storage.path", "required for sqlite storage")
		}
	case "none":
	default:
		errs.add("storage.type", "must be sqlite or none, got %q", c.Storage.Type)
	}
	if c.Storage.BusyTimeoutMs < 0 {
		errs.add("storage.busy_timeout_ms", "must not be negative")
	}

	if c.Stream.Enabled {
		if _, _, err := net.SplitHostPort(c.Stream.Addr); err != nil {
			errs.add("stream.addr", "invalid address: %v", err)
		}
		if c.Stream.Key == "" {
			errs.add("stream.key", "required when stream is enabled")
		}
	}
	switch c.Stream.Codec {
	case "json", "cbor":
	default:
		errs.add("stream.codec", "must be json or cbor, got %q", c.Stream.Codec)
	}
	if c.Stream.MaxLen < 0 {
		errs.add("stream.max_len", "must not be negative")
	}
	if c.Stream.DB < 0 {
		errs.add("stream.db", "must not be negative")
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			errs.add("metrics.listen", "invalid address: %v", err)
		}
	}

	errs = append(errs, validateLogging(&c.Logging)...)

	if c.Daemon.Dir == "" {
		errs.add("daemon.dir", "required")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs.add("logging.level", "unknown level %q", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		errs.add("logging.format", "must be text or json, got %q", l.Format)
	}
	switch strings.ToLower(l.Output) {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs.add("logging.file_path", "required for file output")
		}
	default:
		errs.add("logging.output", "must be stdout, stderr, file or both, got %q", l.Output)
	}
	if l.MaxSizeMB < 0 {
		errs.add("logging.max_size_mb", "must not be negative")
	}
	if l.MaxBackups < 0 {
		errs.add("logging.max_backups", "must not be negative")
	}
	if l.MaxAgeDays < 0 {
		errs.add("logging.max_age_days", "must not be negative")
	}
	return errs
}
