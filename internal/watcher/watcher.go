// Package watcher observes a directory (optionally its whole subtree) through
// the Linux inotify facility and turns raw kernel notifications into
// normalized event.Records.
//
// The pieces, leaves first:
//
//	Notifier     the kernel facility: add/remove watches, blocking Next
//	Registry     path <-> watch descriptor bookkeeping, grown and shrunk with the tree
//	Translator   raw record -> zero or more event.Records, driving the Registry
//	Monitor      the single-goroutine loop: Next -> Translate -> filter -> Sink
//
// Only the Monitor goroutine touches the Registry; no locking is involved.
package watcher

import "errors"

var (
	// ErrPathNotFound is returned when the watched root does not exist.
	ErrPathNotFound = errors.New("watcher: path not found")
	// ErrPathNotReadable is returned when a watch cannot be placed on the root
	// for lack of permission.
	ErrPathNotReadable = errors.New("watcher: path not readable")
	// ErrRegistryClosed is returned by Registry operations after Shutdown.
	ErrRegistryClosed = errors.New("watcher: registry closed")
	// ErrKernelStreamClosed is returned by Notifier.Next when the inotify
	// descriptor stops delivering records.
	ErrKernelStreamClosed = errors.New("watcher: kernel event stream closed")
	// ErrInterrupted is returned by Notifier.Next after Interrupt.
	ErrInterrupted = errors.New("watcher: interrupted")
	// ErrUnrecognizedRawFlag is returned by Translate for a record whose mask
	// names no modeled event kind.
	ErrUnrecognizedRawFlag = errors.New("watcher: unrecognized raw flag")
	// ErrQueueOverflow is returned by Translate when the kernel reports that
	// its event queue overflowed and records were lost.
	ErrQueueOverflow = errors.New("watcher: kernel event queue overflowed")
	// ErrRootRemoved is returned by Monitor.Run when no watch is left, e.g.
	// the root itself was deleted or moved away.
	ErrRootRemoved = errors.New("watcher: watched root removed")
	// ErrAlreadyStarted is returned by a second call to Monitor.Run.
	ErrAlreadyStarted = errors.New("watcher: monitor already started")
	// ErrUnsupported is returned by NewInotify on platforms without inotify.
	ErrUnsupported = errors.New("watcher: inotify not supported on this platform")
)

// RawEvent is one undecoded inotify record.
type RawEvent struct {
	// Wd is the watch descriptor the record was delivered for; -1 for queue
	// overflow.
	Wd int
	// Mask is the raw event bitmask.
	Mask uint32
	// Cookie correlates IN_MOVED_FROM/IN_MOVED_TO pairs.
	Cookie uint32
	// Name is the entry name relative to the watched directory, empty for
	// events about the watched path itself.
	Name string
}

// Notifier is the kernel notification primitive the registry and monitor
// depend on. Implementations need not be safe for concurrent use, except
// that Interrupt may be called from any goroutine while Next blocks.
type Notifier interface {
	// AddWatch places a watch on path and returns its descriptor. Adding a
	// path whose inode is already watched returns the existing descriptor.
	AddWatch(path string) (int, error)
	// RemoveWatch releases the watch identified by wd.
	RemoveWatch(wd int) error
	// Next blocks until a record is available. It returns ErrInterrupted
	// after Interrupt and ErrKernelStreamClosed when the stream ends.
	Next() (RawEvent, error)
	// Interrupt wakes a blocked Next.
	Interrupt()
	// Close releases the underlying descriptor.
	Close() error
}
