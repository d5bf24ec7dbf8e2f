package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tripwire/fswatch/internal/event"
	"github.com/tripwire/fswatch/internal/filter"
)

// Sink consumes accepted records. line is the record rendered with
// event.Render; styling it is the sink's business.
type Sink interface {
	Emit(rec event.Record, line string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(rec event.Record, line string) error

// Emit calls f.
func (f SinkFunc) Emit(rec event.Record, line string) error { return f(rec, line) }

// State is the Monitor lifecycle: Idle -> Watching -> Stopped.
type State int32

const (
	// StateIdle is the state before Run establishes the watch set.
	StateIdle State = iota
	// StateWatching is the steady state of the loop.
	StateWatching
	// StateStopped is terminal; every watch has been released.
	StateStopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot of a Monitor, safe to take from any
// goroutine.
type Stats struct {
	State       string    `json:"state"`
	Root        string    `json:"root"`
	Recursive   bool      `json:"recursive"`
	Watches     int       `json:"watches"`
	Emitted     uint64    `json:"events_emitted"`
	Filtered    uint64    `json:"events_filtered"`
	Skipped     uint64    `json:"records_skipped"`
	Overflows   uint64    `json:"queue_overflows"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	LastEventAt time.Time `json:"last_event_at,omitzero"`
}

// Monitor runs the watch loop: it pulls raw records from the Notifier,
// translates them, applies the filter and hands accepted records to the
// Sink, strictly in kernel delivery order.
type Monitor struct {
	root          string
	recursive     bool
	logger        *slog.Logger
	sink          Sink
	newNotifier   func() (Notifier, error)
	moveCacheSize int
	onReady       func() error

	filter  atomic.Pointer[filter.Set]
	started atomic.Bool
	state   atomic.Int32
	ready   chan struct{}

	watches     atomic.Int64
	emitted     atomic.Uint64
	filtered    atomic.Uint64
	skipped     atomic.Uint64
	overflows   atomic.Uint64
	startedAt   atomic.Int64
	lastEventAt atomic.Int64

	// skipLog keeps per-record diagnostics from flooding the log under
	// sustained event pressure.
	skipLog rate.Sometimes
}

// Option is a functional option for Monitor construction.
type Option func(*Monitor)

// WithRecursive watches the whole subtree below root.
func WithRecursive(recursive bool) Option {
	return func(m *Monitor) { m.recursive = recursive }
}

// WithFilter sets the initial event filter. The default preset is used
// otherwise.
func WithFilter(s *filter.Set) Option {
	return func(m *Monitor) {
		if s != nil {
			m.filter.Store(s)
		}
	}
}

// WithSink registers the consumer of accepted records.
func WithSink(s Sink) Option {
	return func(m *Monitor) { m.sink = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithNotifier replaces the inotify factory, which is useful in tests.
func WithNotifier(newNotifier func() (Notifier, error)) Option {
	return func(m *Monitor) { m.newNotifier = newNotifier }
}

// WithMoveCacheSize bounds the number of unpaired move cookies remembered.
func WithMoveCacheSize(n int) Option {
	return func(m *Monitor) { m.moveCacheSize = n }
}

// WithOnReady registers fn to run once the watch set is in place and before
// any record is delivered. An error from fn aborts Run.
func WithOnReady(fn func() error) Option {
	return func(m *Monitor) { m.onReady = fn }
}

// New creates a Monitor for root. Nothing touches the filesystem until Run.
func New(root string, opts ...Option) *Monitor {
	m := &Monitor{
		root:        filepath.Clean(root),
		logger:      slog.Default(),
		sink:        SinkFunc(func(event.Record, string) error { return nil }),
		newNotifier: newInotifyNotifier,
		ready:       make(chan struct{}),
		skipLog:     rate.Sometimes{First: 10, Interval: 10 * time.Second},
	}
	m.filter.Store(filter.Preset(filter.LevelDefault))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newInotifyNotifier() (Notifier, error) {
	in, err := NewInotify()
	if err != nil {
		return nil, err
	}
	return in, nil
}

// Run establishes the watch set and processes records until ctx is
// cancelled (returns nil) or a fatal condition occurs: the kernel stream
// closes, the registry is used after shutdown, or no watch is left because
// the root went away. Startup failures (ErrPathNotFound,
// ErrPathNotReadable) are returned before the monitor enters Watching.
//
// Every watch and the inotify descriptor are released on every return path.
// Run may be called once.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer m.state.Store(int32(StateStopped))

	n, err := m.newNotifier()
	if err != nil {
		return fmt.Errorf("watcher: open notifier: %w", err)
	}
	defer func() {
		if err := n.Close(); err != nil {
			m.logger.Warn("closing notifier failed", slog.Any("error", err))
		}
	}()

	reg, err := NewRegistry(n, m.root, m.recursive, m.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Shutdown(); err != nil {
			m.logger.Warn("releasing watches failed", slog.Any("error", err))
		}
		m.watches.Store(0)
	}()

	tr, err := NewTranslator(reg, m.moveCacheSize, m.logger)
	if err != nil {
		return err
	}

	// Interrupt wakes the blocking Next when ctx is cancelled. The goroutine
	// must be gone before the notifier is closed.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			n.Interrupt()
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	if m.onReady != nil {
		if err := m.onReady(); err != nil {
			return err
		}
	}

	m.watches.Store(int64(reg.Len()))
	m.startedAt.Store(time.Now().UnixNano())
	m.state.Store(int32(StateWatching))
	close(m.ready)

	m.logger.Info("watching",
		slog.String("root", reg.Root()),
		slog.Bool("recursive", m.recursive),
		slog.Int("watches", reg.Len()),
		slog.String("events", m.Filter().String()))

	for {
		if ctx.Err() != nil {
			m.logger.Info("monitor stopped", slog.String("reason", "cancelled"))
			return nil
		}

		raw, err := n.Next()
		if err != nil {
			if errors.Is(err, ErrInterrupted) {
				m.logger.Info("monitor stopped", slog.String("reason", "cancelled"))
				return nil
			}
			m.logger.Error("kernel event stream lost", slog.Any("error", err))
			return err
		}

		if err := tr.Translate(raw, m.deliver); err != nil {
			if errors.Is(err, ErrRegistryClosed) {
				return err
			}
			m.skip(raw, err)
		}

		m.watches.Store(int64(reg.Len()))
		if reg.Len() == 0 {
			m.logger.Error("no watch left; stopping", slog.String("root", reg.Root()))
			return fmt.Errorf("%w: %s", ErrRootRemoved, reg.Root())
		}
	}
}

// deliver applies the filter and hands accepted records to the sink.
func (m *Monitor) deliver(rec event.Record) {
	m.lastEventAt.Store(rec.Timestamp.UnixNano())

	if !m.Filter().Accepts(rec.Kind) {
		m.filtered.Add(1)
		return
	}

	if err := m.sink.Emit(rec, event.Render(rec)); err != nil {
		m.skipLog.Do(func() {
			m.logger.Warn("sink rejected event",
				slog.String("kind", rec.Kind.String()),
				slog.String("path", rec.Path),
				slog.Any("error", err))
		})
		return
	}
	m.emitted.Add(1)
}

// skip accounts for a record that produced a recoverable error.
func (m *Monitor) skip(raw RawEvent, err error) {
	m.skipped.Add(1)
	if errors.Is(err, ErrQueueOverflow) {
		m.overflows.Add(1)
	}
	m.skipLog.Do(func() {
		m.logger.Warn("raw record skipped",
			slog.Int("wd", raw.Wd),
			slog.String("mask", fmt.Sprintf("%#x", raw.Mask)),
			slog.String("name", raw.Name),
			slog.Any("error", err))
	})
}

// Ready returns a channel that is closed once the initial watch set is in
// place. Waiting on it before touching the filesystem avoids races in tests.
func (m *Monitor) Ready() <-chan struct{} { return m.ready }

// State returns the current lifecycle state.
func (m *Monitor) State() State { return State(m.state.Load()) }

// Filter returns the active filter.
func (m *Monitor) Filter() *filter.Set { return m.filter.Load() }

// SetFilter replaces the active filter. It takes effect from the next
// translated record. A nil set is ignored.
func (m *Monitor) SetFilter(s *filter.Set) {
	if s == nil {
		return
	}
	m.filter.Store(s)
	m.logger.Info("event filter updated", slog.String("events", s.String()))
}

// Stats returns a snapshot of the monitor's counters.
func (m *Monitor) Stats() Stats {
	s := Stats{
		State:     m.State().String(),
		Root:      m.root,
		Recursive: m.recursive,
		Watches:   int(m.watches.Load()),
		Emitted:   m.emitted.Load(),
		Filtered:  m.filtered.Load(),
		Skipped:   m.skipped.Load(),
		Overflows: m.overflows.Load(),
	}
	if ns := m.startedAt.Load(); ns != 0 {
		s.StartedAt = time.Unix(0, ns).UTC()
	}
	if ns := m.lastEventAt.Load(); ns != 0 {
		s.LastEventAt = time.Unix(0, ns).UTC()
	}
	return s
}
