// keytrace captures keyboard events with their character, layout and
// focused process, and records them to the configured sinks.
//
//	keytrace [--config PATH] [--log-level LEVEL] [--simulate] [--print]
//
// With --simulate no keyboard hook is installed; each line read from
// standard input is typed as US keystrokes instead.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"keytrace/internal/capture"
	"keytrace/internal/config"
	"keytrace/internal/export"
	"keytrace/internal/health"
	"keytrace/internal/identity"
	"keytrace/internal/keystroke"
	"keytrace/internal/logging"
	"keytrace/internal/metrics"
	"keytrace/internal/platform"
	"keytrace/internal/store"
	"keytrace/internal/stream"
)

var version = "dev"

type options struct {
	configPath string
	logLevel   string
	simulate   bool
	print      bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "keytrace: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("keytrace", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to config file (toml, json or yaml)")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	flagSet.BoolVar(&opts.simulate, "simulate", false, "type lines from stdin instead of hooking the keyboard")
	flagSet.BoolVar(&opts.print, "print", false, "also print every event to stdout")
	showVersion := flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("keytrace", version)
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	path := opts.configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer loader.Close()

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.simulate {
		cfg.Capture.Listener = "simulated"
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logOpts, err := cfg.Logging.LoggingOptions()
	if err != nil {
		return err
	}
	logger, err := logging.New(logOpts)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runDaemon(ctx, cfg, path, loader, logger, opts)
}

func runDaemon(ctx context.Context, cfg *config.Config, path string, loader *config.Loader, logger *logging.Logger, opts options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	daemon := capture.NewDaemonManager(cfg.Daemon.Dir)
	if err := daemon.Acquire(); err != nil {
		return err
	}
	defer daemon.Cleanup()

	stopRequested, err := daemon.StopRequested(ctx)
	if err != nil {
		return err
	}
	go func() {
		select {
		case <-stopRequested:
			logger.Info("stop requested")
			cancel()
		case <-ctx.Done():
		}
	}()

	if path != "" {
		watchConfig(ctx, loader, logger)
	}

	snapshot := identity.Current()
	logger.Info("identity resolved",
		"device_id", snapshot.DeviceID(), "account_id", snapshot.AccountID(), "platform", snapshot.Platform())

	m := metrics.New(true)

	sinks, err := openSinks(ctx, cfg, opts.print)
	if err != nil {
		return err
	}

	listener, err := newListener(cfg)
	if err != nil {
		for _, s := range sinks {
			s.Close()
		}
		return err
	}

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		CrashDir:  cfg.Capture.CrashDir,
		Version:   version,
		Component: "capture",
		Logger:    logger,
	})

	pipeline := capture.New(capture.Config{
		OS:         platform.New(),
		Listener:   listener,
		Sinks:      sinks,
		Identity:   snapshot.Record(),
		SessionID:  cfg.Capture.SessionID,
		BufferSize: cfg.Capture.BufferSize,
		Metrics:    m,
		Logger:     logger,
		Crash:      crash,
	})

	checker := newChecker(sinks, pipeline)
	if cfg.Metrics.Enabled {
		m.Handle("/healthz", checker.HealthHandler())
		m.Handle("/readyz", checker.ReadinessHandler())
		go func() {
			logger.Info("serving metrics", "addr", cfg.Metrics.Listen)
			if err := m.Serve(ctx, cfg.Metrics.Listen); err != nil {
				logger.Error("metrics server", "error", err)
			}
		}()
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	state := &capture.DaemonState{
		PID:        os.Getpid(),
		StartedAt:  time.Now(),
		Version:    version,
		SessionID:  pipeline.SessionID(),
		Identity:   snapshot.Record(),
		ConfigPath: path,
		Sinks:      names,
	}
	go publishState(ctx, daemon, state, pipeline, logger)

	if sim, ok := listener.(*keystroke.SimulatedListener); ok {
		go typeLines(ctx, sim, os.Stdin, logger)
	}

	checker.SetReady(true)
	err = pipeline.Run(ctx)
	checker.SetReady(false)
	if errors.Is(err, capture.ErrListenerStopped) && cfg.Capture.Listener == "simulated" {
		return nil
	}
	return err
}

func openSinks(ctx context.Context, cfg *config.Config, echo bool) ([]capture.Sink, error) {
	var sinks []capture.Sink
	fail := func(err error) ([]capture.Sink, error) {
		for _, s := range sinks {
			s.Close()
		}
		return nil, err
	}

	if cfg.Storage.Type == "sqlite" {
		st, err := store.Open(cfg.Storage.Path,
			store.WithBusyTimeout(time.Duration(cfg.Storage.BusyTimeoutMs)*time.Millisecond))
		if err != nil {
			return fail(fmt.Errorf("open store: %w", err))
		}
		sinks = append(sinks, st)
	}

	if cfg.Export.JSONLPath != "" {
		var validator *export.Validator
		if cfg.Export.Validate {
			v, err := export.NewValidator()
			if err != nil {
				return fail(err)
			}
			validator = v
		}
		fs, err := export.NewFileSink(cfg.Export.JSONLPath, validator)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, fs)
	}

	if cfg.Stream.Enabled {
		codec, err := stream.CodecByName(cfg.Stream.Codec)
		if err != nil {
			return fail(err)
		}
		pub, err := stream.Dial(ctx, cfg.Stream.Addr, cfg.Stream.Password, cfg.Stream.DB, stream.Options{
			Key:    cfg.Stream.Key,
			MaxLen: cfg.Stream.MaxLen,
			Codec:  codec,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, pub)
	}

	if echo {
		sinks = append(sinks, capture.NewWriterSink(os.Stdout))
	}
	if len(sinks) == 0 {
		return nil, errors.New("no sinks configured")
	}
	return sinks, nil
}

// newChecker registers the pipeline and every sink that can be pinged. The
// store is critical; a lost Redis connection only degrades the daemon.
func newChecker(sinks []capture.Sink, p *capture.Pipeline) *health.Checker {
	checker := health.NewChecker()
	checker.RegisterFunc("capture", true, health.FlagCheck(p.Running, "capture pipeline is not running"))
	for _, s := range sinks {
		pinger, ok := s.(interface{ Ping(context.Context) error })
		if !ok {
			continue
		}
		_, isStore := s.(*store.Store)
		checker.RegisterFunc(s.Name(), isStore, health.PingCheck(pinger.Ping))
	}
	return checker
}

func newListener(cfg *config.Config) (keystroke.Listener, error) {
	if cfg.Capture.Listener == "simulated" {
		return keystroke.NewSimulated(), nil
	}
	l := keystroke.New()
	if ok, reason := l.Available(); !ok {
		return nil, fmt.Errorf("keyboard capture unavailable: %s", reason)
	}
	return l, nil
}

// watchConfig applies log level changes without a restart. Other settings
// take effect on the next start.
func watchConfig(ctx context.Context, loader *config.Loader, logger *logging.Logger) {
	loader.OnChange(func(c *config.Config) {
		level, err := logging.ParseLevel(c.Logging.Level)
		if err != nil {
			return
		}
		if level != logger.GetLevel() {
			logger.SetLevel(level)
			logger.Info("log level changed", "level", logging.LevelString(level))
		}
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config hot reload disabled", "error", err)
		return
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-loader.Errors():
				logger.Warn("config reload rejected", "error", err)
			}
		}
	}()
}

func publishState(ctx context.Context, daemon *capture.DaemonManager, state *capture.DaemonState, p *capture.Pipeline, logger *logging.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		state.Stats = p.Stats()
		state.UpdatedAt = time.Now()
		if err := daemon.WriteState(state); err != nil {
			logger.Warn("write daemon state", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// typeLines feeds stdin to the simulated listener and stops it at EOF.
func typeLines(ctx context.Context, sim *keystroke.SimulatedListener, r io.Reader, logger *logging.Logger) {
	for !sim.IsRunning() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		sim.SimulateText(sc.Text())
		sim.SimulateKeystroke("enter", 0x1C)
	}
	// Let the queue drain before the listener closes its channel.
	time.Sleep(100 * time.Millisecond)
	logger.Debug("simulated input finished")
	_ = sim.Stop()
}
