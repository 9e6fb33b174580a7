package capture

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemonManagerLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	m := NewDaemonManager(dir)

	assert.False(t, m.IsRunning())
	status := m.Status()
	assert.False(t, status.Running)
	assert.Nil(t, status.State)

	require.NoError(t, m.Acquire())
	pid, err := m.ReadPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, m.IsRunning())

	state := &DaemonState{
		PID:       pid,
		StartedAt: time.Now().Add(-time.Minute),
		Version:   "test",
		SessionID: "abc",
		Identity:  testIdentity,
		Sinks:     []string{"sqlite"},
		Stats:     Stats{Built: 12},
	}
	require.NoError(t, m.WriteState(state))

	status = m.Status()
	require.True(t, status.Running)
	require.NotNil(t, status.State)
	assert.Equal(t, "abc", status.State.SessionID)
	assert.Equal(t, testIdentity, status.State.Identity)
	assert.Equal(t, uint64(12), status.State.Stats.Built)
	assert.GreaterOrEqual(t, status.Uptime, time.Minute)

	m.Cleanup()
	assert.False(t, m.IsRunning())
	_, err = m.ReadState()
	assert.Error(t, err)
}

func TestDaemonManagerStalePID(t *testing.T) {
	dir := t.TempDir()
	m := NewDaemonManager(dir)

	// A pid far above any real pid_max is never alive.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "daemon.pid"), []byte(strconv.Itoa(1<<30)), 0o600))
	assert.False(t, m.IsRunning())
	assert.Error(t, m.RequestStop())

	require.NoError(t, m.Acquire(), "stale pid file is taken over")
}

func TestDaemonManagerInvalidPID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "daemon.pid"), []byte("nope"), 0o600))

	_, err := NewDaemonManager(dir).ReadPID()
	assert.Error(t, err)
}

func TestStopRequested(t *testing.T) {
	dir := t.TempDir()
	m := NewDaemonManager(dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := m.StopRequested(ctx)
	require.NoError(t, err)

	select {
	case <-ch:
		t.Fatal("stop requested before any request")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(m.stopFile, []byte("1"), 0o600))
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("stop request not observed")
	}
}

func TestStopRequestedAlreadyPending(t *testing.T) {
	dir := t.TempDir()
	m := NewDaemonManager(dir)
	require.NoError(t, os.WriteFile(m.stopFile, []byte("1"), 0o600))

	ch, err := m.StopRequested(context.Background())
	require.NoError(t, err)
	select {
	case <-ch:
	default:
		t.Fatal("pending request should be reported immediately")
	}
}
