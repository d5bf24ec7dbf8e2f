// This file provides a stub Inotify for non-Linux platforms. On Linux, the
// real implementation in inotify_linux.go is compiled instead.
//
//go:build !linux

package watcher

// Inotify is the platform stub for non-Linux operating systems. NewInotify
// always fails, so no method is ever reached through a live value.
type Inotify struct{}

// NewInotify always returns ErrUnsupported on non-Linux platforms.
func NewInotify() (*Inotify, error) {
	return nil, ErrUnsupported
}

// AddWatch returns ErrUnsupported.
func (in *Inotify) AddWatch(string) (int, error) { return -1, ErrUnsupported }

// RemoveWatch returns ErrUnsupported.
func (in *Inotify) RemoveWatch(int) error { return ErrUnsupported }

// Next returns ErrUnsupported.
func (in *Inotify) Next() (RawEvent, error) { return RawEvent{}, ErrUnsupported }

// Interrupt is a no-op.
func (in *Inotify) Interrupt() {}

// Close is a no-op.
func (in *Inotify) Close() error { return nil }
