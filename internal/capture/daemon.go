package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"keytrace/internal/identity"
)

// DaemonState is what a running daemon publishes about itself.
type DaemonState struct {
	PID        int             `json:"pid"`
	StartedAt  time.Time       `json:"started_at"`
	Version    string          `json:"version"`
	SessionID  string          `json:"session_id"`
	Identity   identity.Record `json:"identity"`
	ConfigPath string          `json:"config_path,omitempty"`
	Sinks      []string        `json:"sinks,omitempty"`
	Stats      Stats           `json:"stats"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// DaemonStatus represents the daemon status for display.
type DaemonStatus struct {
	Running bool          `json:"running"`
	PID     int           `json:"pid,omitempty"`
	Uptime  time.Duration `json:"uptime,omitempty"`
	State   *DaemonState  `json:"state,omitempty"`
}

// DaemonManager handles pid, state and stop-request files.
type DaemonManager struct {
	dir       string
	pidFile   string
	stateFile string
	stopFile  string
}

// NewDaemonManager creates a daemon manager rooted at dir.
func NewDaemonManager(dir string) *DaemonManager {
	return &DaemonManager{
		dir:       dir,
		pidFile:   filepath.Join(dir, "daemon.pid"),
		stateFile: filepath.Join(dir, "daemon.state"),
		stopFile:  filepath.Join(dir, "daemon.stop"),
	}
}

// IsRunning checks if the daemon is running.
func (m *DaemonManager) IsRunning() bool {
	pid, err := m.ReadPID()
	if err != nil {
		return false
	}
	return isProcessRunning(pid)
}

// ReadPID reads the daemon's PID from the PID file.
func (m *DaemonManager) ReadPID() (int, error) {
	data, err := os.ReadFile(m.pidFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

// Acquire writes the current PID, refusing if another live daemon owns the
// pid file. A stale stop request is cleared.
func (m *DaemonManager) Acquire() error {
	if pid, err := m.ReadPID(); err == nil && pid != os.Getpid() && isProcessRunning(pid) {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("create daemon dir: %w", err)
	}
	_ = os.Remove(m.stopFile)
	return os.WriteFile(m.pidFile, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

// WriteState writes the daemon state atomically.
func (m *DaemonManager) WriteState(state *DaemonState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := m.stateFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, m.stateFile)
}

// ReadState reads the daemon state.
func (m *DaemonManager) ReadState() (*DaemonState, error) {
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		return nil, err
	}
	var state DaemonState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// RequestStop asks the daemon to stop. The request file works on every
// platform; where signals exist the daemon is also sent SIGTERM.
func (m *DaemonManager) RequestStop() error {
	pid, err := m.ReadPID()
	if err != nil {
		return fmt.Errorf("read PID: %w", err)
	}
	if !isProcessRunning(pid) {
		return fmt.Errorf("daemon not running (stale pid %d)", pid)
	}
	if err := os.WriteFile(m.stopFile, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return fmt.Errorf("write stop request: %w", err)
	}
	return signalStop(pid)
}

// StopRequested returns a channel closed when a stop request file appears.
func (m *DaemonManager) StopRequested(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch daemon dir: %w", err)
	}

	ch := make(chan struct{})
	if _, err := os.Stat(m.stopFile); err == nil {
		watcher.Close()
		close(ch)
		return ch, nil
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) == filepath.Base(m.stopFile) && ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					close(ch)
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return ch, nil
}

// WaitForStop waits for the daemon to stop.
func (m *DaemonManager) WaitForStop(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !m.IsRunning() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %v", timeout)
}

// Cleanup removes the pid, state and stop files.
func (m *DaemonManager) Cleanup() {
	for _, f := range []string{m.pidFile, m.stateFile, m.stopFile} {
		_ = os.Remove(f)
	}
}

// Status returns the current daemon status.
func (m *DaemonManager) Status() *DaemonStatus {
	status := &DaemonStatus{}
	if pid, err := m.ReadPID(); err == nil && isProcessRunning(pid) {
		status.Running = true
		status.PID = pid
	}
	if state, err := m.ReadState(); err == nil {
		status.State = state
		if status.Running {
			status.Uptime = time.Since(state.StartedAt)
		}
	}
	return status
}
