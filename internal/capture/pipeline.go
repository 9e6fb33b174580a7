// Package capture runs the keyboard listener, builds events and fans them
// out to sinks.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"keytrace/internal/identity"
	"keytrace/internal/keystroke"
	"keytrace/internal/logging"
	"keytrace/internal/metrics"
	"keytrace/internal/platform"
)

// DefaultBufferSize is the capacity of the queue between hook and builder.
const DefaultBufferSize = 1024

// ErrListenerStopped is returned by Run when the hook ends on its own.
var ErrListenerStopped = errors.New("capture: listener stopped")

// Config configures a Pipeline.
type Config struct {
	// OS resolves focus, layouts and characters. If it also implements
	// platform.Observer it is fed every raw transition.
	OS platform.OS

	Listener keystroke.Listener
	Sinks    []Sink

	// Identity is recorded with the session by SessionSinks.
	Identity identity.Record

	// SessionID overrides the generated session id.
	SessionID string

	// BufferSize bounds the queue between hook and builder. Raw events
	// arriving while it is full are dropped and counted.
	BufferSize int

	Metrics *metrics.Metrics
	Logger  *logging.Logger
	Crash   *logging.CrashHandler

	// Now defaults to time.Now.
	Now func() time.Time
}

// Stats counts what a pipeline has processed.
type Stats struct {
	Received    uint64 `json:"received"`
	Built       uint64 `json:"built"`
	Dropped     uint64 `json:"dropped"`
	BuildErrors uint64 `json:"build_errors"`
	SinkErrors  uint64 `json:"sink_errors"`
	Panics      uint64 `json:"panics"`
}

// Pipeline connects a listener to sinks through a single build worker.
type Pipeline struct {
	cfg      Config
	builder  *keystroke.Builder
	observer platform.Observer
	log      *logging.Logger
	limited  *logging.Limited

	received    atomic.Uint64
	built       atomic.Uint64
	dropped     atomic.Uint64
	buildErrors atomic.Uint64
	sinkErrors  atomic.Uint64
	panics      atomic.Uint64

	running atomic.Bool
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	log = log.WithComponent("capture")

	p := &Pipeline{
		cfg:     cfg,
		log:     log,
		limited: logging.NewLimited(log.Logger, 10*time.Second, 3),
	}
	p.builder = keystroke.NewBuilder(cfg.OS, keystroke.BuilderOptions{
		SessionID:  cfg.SessionID,
		Now:        cfg.Now,
		OnFallback: p.onFallback,
	})
	p.log = p.log.WithSession(p.builder.SessionID())
	if cfg.Crash != nil {
		cfg.Crash.SetSessionID(p.builder.SessionID())
	}
	if obs, ok := cfg.OS.(platform.Observer); ok {
		p.observer = obs
	}
	return p
}

// SessionID returns the id stamped on every event of this run.
func (p *Pipeline) SessionID() string {
	return p.builder.SessionID()
}

// Running reports whether Run is in progress.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:    p.received.Load(),
		Built:       p.built.Load(),
		Dropped:     p.dropped.Load(),
		BuildErrors: p.buildErrors.Load(),
		SinkErrors:  p.sinkErrors.Load(),
		Panics:      p.panics.Load(),
	}
}

func (p *Pipeline) onFallback(resolver string) {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordFallback(resolver)
	}
	p.limited.Log(context.Background(), slog.LevelDebug, "fallback value used", "resolver", resolver)
}

// Run captures until ctx is done or the listener stops. Sessions are begun
// before the hook starts and ended, and sinks closed, after the queue has
// drained.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	if !p.running.CompareAndSwap(false, true) {
		return keystroke.ErrAlreadyRunning
	}
	defer p.running.Store(false)

	defer func() {
		if cerr := p.closeSinks(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := p.beginSessions(ctx); err != nil {
		return err
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.SessionStarted()
		defer p.cfg.Metrics.SessionEnded()
	}
	defer p.endSessions()

	if err := p.cfg.Listener.Start(ctx); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}
	p.log.Info("capture started", "sinks", p.sinkNames(), "buffer", p.cfg.BufferSize)

	queue := make(chan keystroke.RawEvent, p.cfg.BufferSize)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.readLoop(queue)
	}()
	go func() {
		defer wg.Done()
		p.buildLoop(context.WithoutCancel(ctx), queue)
	}()

	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		if err := p.cfg.Listener.Stop(); err != nil {
			p.log.Warn("stop listener", "error", err)
		}
		<-stopped
	case <-stopped:
	}

	if d, ok := p.cfg.Listener.(interface{ Dropped() uint64 }); ok && d.Dropped() > 0 {
		p.log.Warn("listener dropped events", "count", d.Dropped())
		p.dropped.Add(d.Dropped())
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.RecordDropped(d.Dropped())
		}
	}

	stats := p.Stats()
	p.log.Info("capture stopped",
		"received", stats.Received, "built", stats.Built, "dropped", stats.Dropped,
		"build_errors", stats.BuildErrors, "sink_errors", stats.SinkErrors)

	if ctx.Err() == nil {
		return ErrListenerStopped
	}
	return nil
}

// readLoop moves raw events from the hook into the bounded queue without
// ever blocking the hook.
func (p *Pipeline) readLoop(queue chan<- keystroke.RawEvent) {
	defer close(queue)
	for raw := range p.cfg.Listener.Events() {
		p.received.Add(1)
		select {
		case queue <- raw:
		default:
			// Modifier and lock state must still see the transition.
			p.observe(raw)
			n := p.dropped.Add(1)
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.RecordDropped(1)
			}
			p.limited.Warn("capture queue full, dropping event", "dropped_total", n)
		}
	}
}

func (p *Pipeline) buildLoop(ctx context.Context, queue <-chan keystroke.RawEvent) {
	for raw := range queue {
		if p.cfg.Crash != nil {
			if p.cfg.Crash.Recover(map[string]any{"scan_code": raw.ScanCode, "event": raw.Kind.String()}, func() {
				p.handle(ctx, raw)
			}) {
				p.panics.Add(1)
			}
			continue
		}
		p.handle(ctx, raw)
	}
}

func (p *Pipeline) observe(raw keystroke.RawEvent) {
	if p.observer != nil && raw.Kind.Valid() {
		p.observer.ObserveKey(raw.ScanCode, raw.Kind == keystroke.KindDown)
	}
}

func (p *Pipeline) handle(ctx context.Context, raw keystroke.RawEvent) {
	p.observe(raw)

	start := time.Now()
	ev, err := p.builder.Build(raw)
	if err != nil {
		p.buildErrors.Add(1)
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.RecordBuildError(buildErrorReason(err))
		}
		p.limited.Warn("build event failed", "scan_code", raw.ScanCode, "error", err)
		return
	}
	p.built.Add(1)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.RecordBuilt(ev.Kind.String(), time.Since(start))
	}

	for _, sink := range p.cfg.Sinks {
		err := sink.Write(ctx, ev)
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.RecordSinkWrite(sink.Name(), err)
		}
		if err != nil {
			p.sinkErrors.Add(1)
			p.limited.Error("sink write failed", "sink", sink.Name(), "error", err)
		}
	}
}

func buildErrorReason(err error) string {
	switch {
	case errors.Is(err, keystroke.ErrInvalidScanCode):
		return "invalid_scan_code"
	case errors.Is(err, keystroke.ErrKeyboardState):
		return "keyboard_state"
	case errors.Is(err, keystroke.ErrInvalidEventKind):
		return "invalid_event_kind"
	default:
		return "other"
	}
}

func (p *Pipeline) beginSessions(ctx context.Context) error {
	started := p.cfg.Now()
	for _, sink := range p.cfg.Sinks {
		ss, ok := sink.(SessionSink)
		if !ok {
			continue
		}
		if err := ss.BeginSession(ctx, p.SessionID(), p.cfg.Identity, started); err != nil {
			return fmt.Errorf("begin session on %s: %w", sink.Name(), err)
		}
	}
	return nil
}

func (p *Pipeline) endSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ended := p.cfg.Now()
	for _, sink := range p.cfg.Sinks {
		ss, ok := sink.(SessionSink)
		if !ok {
			continue
		}
		if err := ss.EndSession(ctx, p.SessionID(), ended); err != nil {
			p.log.Warn("end session", "sink", sink.Name(), "error", err)
		}
	}
}

func (p *Pipeline) closeSinks() error {
	var errs []error
	for _, sink := range p.cfg.Sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) sinkNames() []string {
	names := make([]string, len(p.cfg.Sinks))
	for i, s := range p.cfg.Sinks {
		names[i] = s.Name()
	}
	return names
}
