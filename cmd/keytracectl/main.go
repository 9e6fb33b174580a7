// keytracectl inspects and controls a keytrace installation.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"keytrace/internal/capture"
	"keytrace/internal/config"
	"keytrace/internal/export"
	"keytrace/internal/identity"
	"keytrace/internal/keystroke"
	"keytrace/internal/platform"
	"keytrace/internal/store"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "keytracectl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `keytracectl - inspect and control keytrace

Usage:
  keytracectl [--config PATH] <command> [arguments]

Commands:
  identity [--format json|yaml]   Print this machine's device and account identity
  status                          Show whether the capture daemon is running
  stop [--timeout DURATION]       Ask the running daemon to stop
  sessions                        List recorded sessions, newest first
  events <session>                Print the events of a session
  export <session> [file]         Write a session as JSON Lines (stdout if no file)
  validate <file>                 Check a JSON Lines export against its schemas
  schema <key-event-v1|identity-v1>
                                  Print an embedded JSON schema
  translate <scancode> [--layout NAME] [--shift]
                                  Show the character a scan code produces
  config                          Print the effective configuration
  version                         Print version
`)
}

type cli struct {
	cfgPath string
	out     io.Writer
}

func run(args []string, out io.Writer) error {
	c := &cli{out: out}
	flagSet := pflag.NewFlagSet("keytracectl", pflag.ContinueOnError)
	flagSet.StringVarP(&c.cfgPath, "config", "c", "", "path to config file")
	flagSet.SetInterspersed(false)
	flagSet.Usage = usage
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		usage()
		return errors.New("no command given")
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "identity":
		return c.cmdIdentity(cmdArgs)
	case "status":
		return c.cmdStatus()
	case "stop":
		return c.cmdStop(cmdArgs)
	case "sessions":
		return c.cmdSessions()
	case "events":
		return c.cmdEvents(cmdArgs)
	case "export":
		return c.cmdExport(cmdArgs)
	case "validate":
		return c.cmdValidate(cmdArgs)
	case "schema":
		return c.cmdSchema(cmdArgs)
	case "translate":
		return c.cmdTranslate(cmdArgs)
	case "config":
		return c.cmdConfig()
	case "version":
		fmt.Fprintln(c.out, "keytracectl", version)
		return nil
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (c *cli) loadConfig() (*config.Config, error) {
	path := c.cfgPath
	if path == "" {
		path = config.FindConfigFile()
	}
	loader := config.NewLoader(path)
	defer loader.Close()
	return loader.Load()
}

func (c *cli) openStore() (*store.Store, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Type != "sqlite" {
		return nil, fmt.Errorf("storage type %q keeps no event database", cfg.Storage.Type)
	}
	if _, err := os.Stat(cfg.Storage.Path); err != nil {
		return nil, fmt.Errorf("no event database at %s", cfg.Storage.Path)
	}
	return store.Open(cfg.Storage.Path)
}

func (c *cli) cmdIdentity(args []string) error {
	fs := pflag.NewFlagSet("identity", pflag.ContinueOnError)
	format := fs.String("format", "json", "output format: json or yaml")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rec := identity.Current().Record()
	switch *format {
	case "json":
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case "yaml":
		enc := yaml.NewEncoder(c.out)
		defer enc.Close()
		return enc.Encode(rec)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func (c *cli) cmdStatus() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	status := capture.NewDaemonManager(cfg.Daemon.Dir).Status()

	fmt.Fprintln(c.out, "=== keytrace Status ===")
	if !status.Running {
		fmt.Fprintln(c.out, "Daemon:      not running")
		return nil
	}
	fmt.Fprintf(c.out, "Daemon:      running (pid %d)\n", status.PID)
	if status.Uptime > 0 {
		fmt.Fprintf(c.out, "Uptime:      %s\n", status.Uptime.Round(time.Second))
	}
	if st := status.State; st != nil {
		fmt.Fprintf(c.out, "Session:     %s\n", st.SessionID)
		fmt.Fprintf(c.out, "Device:      %s\n", st.Identity.DeviceID)
		fmt.Fprintf(c.out, "Account:     %s\n", st.Identity.AccountID)
		fmt.Fprintf(c.out, "Sinks:       %s\n", strings.Join(st.Sinks, ", "))
		fmt.Fprintf(c.out, "Events:      %d built, %d dropped, %d build errors, %d sink errors\n",
			st.Stats.Built, st.Stats.Dropped, st.Stats.BuildErrors, st.Stats.SinkErrors)
		if !st.UpdatedAt.IsZero() {
			fmt.Fprintf(c.out, "Updated:     %s\n", st.UpdatedAt.Format(time.RFC3339))
		}
	}
	return nil
}

func (c *cli) cmdStop(args []string) error {
	fs := pflag.NewFlagSet("stop", pflag.ContinueOnError)
	timeout := fs.Duration("timeout", 10*time.Second, "how long to wait for the daemon to exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	dm := capture.NewDaemonManager(cfg.Daemon.Dir)
	if !dm.IsRunning() {
		fmt.Fprintln(c.out, "keytrace is not running")
		return nil
	}
	if err := dm.RequestStop(); err != nil {
		return err
	}
	if err := dm.WaitForStop(*timeout); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "keytrace stopped")
	return nil
}

func (c *cli) cmdSessions() error {
	st, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ListSessions(context.Background())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(c.out, "no sessions recorded")
		return nil
	}
	for _, s := range sessions {
		ended := "open"
		if s.EndedNs != nil {
			ended = time.Unix(0, *s.EndedNs).Format(time.RFC3339)
		}
		fmt.Fprintf(c.out, "%s  %s  %-20s  %6d events  %s\n",
			s.SessionID, time.Unix(0, s.StartedNs).Format(time.RFC3339), ended, s.EventCount, s.DeviceID)
	}
	return nil
}

func (c *cli) cmdEvents(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: keytracectl events <session>")
	}
	st, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.SessionEvents(context.Background(), args[0])
	if err != nil {
		return err
	}
	for _, ev := range events {
		fmt.Fprintln(c.out, ev.String())
	}
	return nil
}

func (c *cli) cmdExport(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: keytracectl export <session> [file]")
	}
	st, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	sess, err := st.GetSession(ctx, args[0])
	if err != nil {
		return err
	}
	events, err := st.SessionEvents(ctx, sess.SessionID)
	if err != nil {
		return err
	}

	out := c.out
	if len(args) == 2 {
		f, err := os.OpenFile(args[1], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	w := export.NewWriter(out)
	if err := w.WriteSession(sess.SessionID, sess.Identity(), events); err != nil {
		return err
	}
	if len(args) == 2 {
		fmt.Fprintf(c.out, "wrote %d lines to %s\n", w.Lines(), args[1])
	}
	return nil
}

func (c *cli) cmdValidate(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: keytracectl validate <file>")
	}
	v, err := export.NewValidator()
	if err != nil {
		return err
	}
	report, err := v.ValidateFile(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%d identity records, %d key events\n", report.Identities, report.Events)
	for _, e := range report.Errors {
		fmt.Fprintln(c.out, "  "+e.Error())
	}
	if !report.Valid() {
		return fmt.Errorf("%d invalid lines", len(report.Errors))
	}
	fmt.Fprintln(c.out, "valid")
	return nil
}

func (c *cli) cmdSchema(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: keytracectl schema <%s|%s>", export.SchemaKeyEvent, export.SchemaIdentity)
	}
	data, err := export.SchemaJSON(args[0])
	if err != nil {
		return err
	}
	_, err = c.out.Write(data)
	return err
}

func (c *cli) cmdTranslate(args []string) error {
	fs := pflag.NewFlagSet("translate", pflag.ContinueOnError)
	layout := fs.String("layout", "us", "keyboard layout name (us, de, fr, ...)")
	shift := fs.Bool("shift", false, "hold left shift")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: keytracectl translate <scancode>")
	}
	sc, err := strconv.ParseUint(fs.Arg(0), 0, 32)
	if err != nil {
		return fmt.Errorf("invalid scan code %q: %w", fs.Arg(0), err)
	}

	desktop := platform.NewDesktop(fixedLayout(*layout))
	if *shift {
		desktop.ObserveKey(0x2A, true)
	}
	text, err := keystroke.NewTranslator(desktop).Translate(uint32(sc))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "scan code 0x%02X  key %s  text %q\n", sc, keystroke.KeyName(uint32(sc)), text)
	return nil
}

func (c *cli) cmdConfig() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Stream.Password != "" {
		cfg.Stream.Password = "********"
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

// fixedLayout is a window system with one focused window under a chosen
// layout.
type fixedLayout string

func (fixedLayout) ActiveWindow() (uint64, error)        { return 1, nil }
func (fixedLayout) WindowPID(uint64) (uint32, error)     { return uint32(os.Getpid()), nil }
func (l fixedLayout) LayoutName() (string, error)       { return string(l), nil }
func (fixedLayout) ProcessImage(uint32) (string, error) { return "keytracectl", nil }
