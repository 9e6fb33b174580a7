package logging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limited logs through a token bucket per message so hot paths, such as one
// warning per keystroke, cannot flood the log. Suppressed entries are
// counted and reported with the next entry that gets through.
type Limited struct {
	logger *slog.Logger
	every  time.Duration
	burst  int

	mu       sync.Mutex
	limiters map[string]*limitedEntry
}

type limitedEntry struct {
	limiter    *rate.Limiter
	suppressed atomic.Uint64
}

// NewLimited allows burst entries per message and then one per every.
func NewLimited(logger *slog.Logger, every time.Duration, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		logger:   logger,
		every:    every,
		burst:    burst,
		limiters: make(map[string]*limitedEntry),
	}
}

func (l *Limited) entry(msg string) *limitedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[msg]
	if !ok {
		e = &limitedEntry{limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.limiters[msg] = e
	}
	return e
}

// Log emits msg at level if its bucket has a token.
func (l *Limited) Log(ctx context.Context, level slog.Level, msg string, args ...any) bool {
	if !l.logger.Enabled(ctx, level) {
		return false
	}
	e := l.entry(msg)
	if !e.limiter.Allow() {
		e.suppressed.Add(1)
		return false
	}
	if n := e.suppressed.Swap(0); n > 0 {
		args = append(args, slog.Uint64("suppressed", n))
	}
	l.logger.Log(ctx, level, msg, args...)
	return true
}

// Warn logs at warn level.
func (l *Limited) Warn(msg string, args ...any) bool {
	return l.Log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error logs at error level.
func (l *Limited) Error(msg string, args ...any) bool {
	return l.Log(context.Background(), slog.LevelError, msg, args...)
}

// Suppressed returns how many entries of msg are waiting to be reported.
func (l *Limited) Suppressed(msg string) uint64 {
	return l.entry(msg).suppressed.Load()
}
