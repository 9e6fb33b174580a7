// Package keystroke turns low-level keyboard hook events into normalised key
// events: the layout-correct character a key produced, the direction of the
// transition, the keyboard layout in effect and the process that had focus.
//
// Platform support for capture:
// - Windows: WH_KEYBOARD_LL hook installed with SetWindowsHookEx
// - Linux: /dev/input/event* (requires input group or root)
// - Others: unavailable; use SimulatedListener
//
// Resolution of focus, layouts and characters goes through platform.OS so
// every resolver can be exercised against a fake.
package keystroke

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the capacity of a listener's event channel.
const DefaultBufferSize = 256

// Listener delivers raw key transitions from a keyboard hook.
type Listener interface {
	// Start installs the hook. Events flow until Stop or ctx is done.
	Start(ctx context.Context) error

	// Stop removes the hook and closes the event channel.
	Stop() error

	// Events returns the channel raw events are delivered on.
	Events() <-chan RawEvent

	// Available reports whether capture works on this platform with the
	// current permissions, with a human-readable reason.
	Available() (bool, string)
}

// BaseListener provides the channel plumbing shared by platform listeners.
type BaseListener struct {
	mu      sync.RWMutex
	running bool
	closed  bool
	ch      chan RawEvent
	once    sync.Once
	dropped atomic.Uint64
}

func (b *BaseListener) init() {
	b.once.Do(func() {
		b.ch = make(chan RawEvent, DefaultBufferSize)
	})
}

// Events returns the raw event channel.
func (b *BaseListener) Events() <-chan RawEvent {
	b.init()
	return b.ch
}

// Emit queues a raw event. Hooks must not block, so a full channel drops the
// event and counts it.
func (b *BaseListener) Emit(raw RawEvent) bool {
	b.init()
	if raw.Time.IsZero() {
		raw.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.ch <- raw:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Dropped returns how many events were discarded because the channel was full.
func (b *BaseListener) Dropped() uint64 {
	return b.dropped.Load()
}

// CloseEvents closes the event channel. Later Emit calls are ignored.
func (b *BaseListener) CloseEvents() {
	b.init()
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

// SetRunning sets the running state.
func (b *BaseListener) SetRunning(running bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = running
}

// markStopped clears the running state and reports whether this call did
// so. Exactly one of several concurrent Stop calls wins.
func (b *BaseListener) markStopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return false
	}
	b.running = false
	return true
}

// IsRunning returns the running state.
func (b *BaseListener) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// New creates a Listener for the current platform.
func New() Listener {
	return newPlatformListener()
}

// SimulatedListener is a listener for testing that doesn't hook the real
// keyboard.
type SimulatedListener struct {
	BaseListener
	cancel context.CancelFunc
}

// NewSimulated creates a listener for testing.
func NewSimulated() *SimulatedListener {
	return &SimulatedListener{}
}

// Start begins the simulated listener. It stops by itself when ctx is done.
func (s *SimulatedListener) Start(ctx context.Context) error {
	s.init()
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		cancel()
		return ErrAlreadyRunning
	}
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()
	return nil
}

// Stop stops the simulated listener.
func (s *SimulatedListener) Stop() error {
	if !s.markStopped() {
		return nil
	}
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	s.CloseEvents()
	return nil
}

// SimulateKey emits a single transition.
func (s *SimulatedListener) SimulateKey(name string, scanCode uint32, kind EventKind) bool {
	if !s.IsRunning() {
		return false
	}
	return s.Emit(RawEvent{Name: name, Kind: kind, ScanCode: scanCode})
}

// SimulateKeystroke emits a press followed by a release.
func (s *SimulatedListener) SimulateKeystroke(name string, scanCode uint32) {
	s.SimulateKey(name, scanCode, KindDown)
	s.SimulateKey(name, scanCode, KindUp)
}

// SimulateText types each ASCII letter, digit or space of text using US scan
// codes. Other characters are skipped.
func (s *SimulatedListener) SimulateText(text string) int {
	n := 0
	for _, r := range text {
		sc, ok := usScanCodes[r]
		if !ok {
			continue
		}
		s.SimulateKeystroke(KeyName(sc), sc)
		n++
	}
	return n
}

// Available returns true (simulated is always available).
func (s *SimulatedListener) Available() (bool, string) {
	return true, "simulated listener (for testing)"
}
