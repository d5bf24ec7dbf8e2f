package watcher

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// fakeNotifier is an in-memory Notifier. AddWatch consults the real
// filesystem so registry traversal behaves as it would against the kernel;
// records are fed through the events channel.
type fakeNotifier struct {
	mu      sync.Mutex
	nextWd  int
	watches map[string]int
	removed []int
	fail    map[string]error
	closed  bool

	events    chan RawEvent
	interrupt chan struct{}
	intOnce   sync.Once
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		watches:   make(map[string]int),
		fail:      make(map[string]error),
		events:    make(chan RawEvent, 64),
		interrupt: make(chan struct{}),
	}
}

func (f *fakeNotifier) AddWatch(path string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[path]; ok {
		return -1, err
	}
	if _, err := os.Lstat(path); err != nil {
		return -1, fmt.Errorf("fake: add watch %q: %w", path, err)
	}
	if wd, ok := f.watches[path]; ok {
		return wd, nil
	}
	f.nextWd++
	f.watches[path] = f.nextWd
	return f.nextWd, nil
}

func (f *fakeNotifier) RemoveWatch(wd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, wd)
	for p, w := range f.watches {
		if w == wd {
			delete(f.watches, p)
		}
	}
	return nil
}

func (f *fakeNotifier) Next() (RawEvent, error) {
	select {
	case <-f.interrupt:
		return RawEvent{}, ErrInterrupted
	case ev, ok := <-f.events:
		if !ok {
			return RawEvent{}, ErrKernelStreamClosed
		}
		return ev, nil
	}
}

func (f *fakeNotifier) Interrupt() {
	f.intOnce.Do(func() { close(f.interrupt) })
}

func (f *fakeNotifier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeNotifier) wdOf(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watches[path]
}

func (f *fakeNotifier) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeNotifier) removedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removed)
}

// discardLogger keeps test output clean.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
