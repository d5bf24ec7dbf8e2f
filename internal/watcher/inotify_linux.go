//go:build linux

package watcher

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/tripwire/fswatch/internal/event"
)

// watchMask subscribes every watch to the full modeled vocabulary. Filtering
// happens after translation, because recursive bookkeeping needs the
// structural events even when the user does not want to see them.
const watchMask = event.RawAllEvents

// readBufferSize holds many records per read(2): each is a 16-byte header
// plus up to NAME_MAX+1 bytes of name.
const readBufferSize = 64 * (unix.SizeofInotifyEvent + unix.NAME_MAX + 1)

// Inotify is the Linux Notifier. It owns one inotify descriptor and a
// self-pipe: Interrupt writes a byte to the pipe, which unblocks the poll(2)
// call in Next.
type Inotify struct {
	fd    int
	pipeR int
	pipeW int

	buf     []byte
	pending []RawEvent

	mu       sync.Mutex
	closed   bool
	stopOnce sync.Once
}

// NewInotify creates an inotify instance. It fails only when the kernel
// refuses a new instance (for example fs.inotify.max_user_instances).
func NewInotify() (*Inotify, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify: init: %w", err)
	}

	var pipeFds [2]int
	if err := unix.Pipe2(pipeFds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("inotify: pipe2: %w", err)
	}

	return &Inotify{
		fd:    fd,
		pipeR: pipeFds[0],
		pipeW: pipeFds[1],
		buf:   make([]byte, readBufferSize),
	}, nil
}

// AddWatch implements Notifier. The returned error wraps the errno, so
// errors.Is(err, fs.ErrNotExist) and errors.Is(err, fs.ErrPermission) work.
func (in *Inotify) AddWatch(path string) (int, error) {
	wd, err := unix.InotifyAddWatch(in.fd, path, watchMask)
	if err != nil {
		return -1, fmt.Errorf("inotify: add watch %q: %w", path, err)
	}
	return wd, nil
}

// RemoveWatch implements Notifier. EINVAL means the kernel already dropped
// the watch, which is not an error for the caller.
func (in *Inotify) RemoveWatch(wd int) error {
	//nolint:gosec // G115: wd is always a small non-negative int from inotify
	if _, err := unix.InotifyRmWatch(in.fd, uint32(wd)); err != nil && !errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("inotify: remove watch %d: %w", wd, err)
	}
	return nil
}

// Next implements Notifier. It blocks in poll(2) with no timeout; absence of
// filesystem activity is not an error.
func (in *Inotify) Next() (RawEvent, error) {
	for len(in.pending) == 0 {
		if err := in.fill(); err != nil {
			return RawEvent{}, err
		}
	}
	ev := in.pending[0]
	in.pending = in.pending[1:]
	return ev, nil
}

// fill waits for the descriptor to become readable and decodes one read(2)
// worth of records into pending. It may return with pending still empty.
func (in *Inotify) fill() error {
	pollFds := []unix.PollFd{
		{Fd: int32(in.fd), Events: unix.POLLIN},
		{Fd: int32(in.pipeR), Events: unix.POLLIN},
	}

	_, err := unix.Poll(pollFds, -1)
	if err != nil {
		if err == unix.EINTR {
			return nil // signal interrupted the syscall; retry
		}
		return fmt.Errorf("%w: poll: %v", ErrKernelStreamClosed, err)
	}

	if pollFds[1].Revents&unix.POLLIN != 0 {
		return ErrInterrupted
	}
	if pollFds[0].Revents&(unix.POLLHUP|unix.POLLNVAL|unix.POLLERR) != 0 {
		return ErrKernelStreamClosed
	}
	if pollFds[0].Revents&unix.POLLIN == 0 {
		return nil
	}

	n, err := unix.Read(in.fd, in.buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("%w: read: %v", ErrKernelStreamClosed, err)
	}
	if n == 0 {
		return ErrKernelStreamClosed
	}

	in.pending = parseEvents(in.buf[:n], in.pending[:0])
	return nil
}

// parseEvents decodes a buffer containing one or more consecutive raw inotify
// records and appends them to dst.
//
// The binary layout of each inotify_event is:
//
//	struct inotify_event {
//	    int32_t  wd;
//	    uint32_t mask;
//	    uint32_t cookie;
//	    uint32_t len;     // length of name, including NUL padding
//	    char     name[];
//	}
func parseEvents(buf []byte, dst []RawEvent) []RawEvent {
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buf); {
		//nolint:gosec // G103: fixed kernel layout, bounds checked above
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		offset += unix.SizeofInotifyEvent

		var name string
		if raw.Len > 0 {
			end := offset + int(raw.Len)
			if end > len(buf) {
				break // truncated record; stop parsing
			}
			nameBytes := buf[offset:end]
			if i := bytes.IndexByte(nameBytes, 0); i >= 0 {
				nameBytes = nameBytes[:i]
			}
			name = string(nameBytes)
			offset = end
		}

		dst = append(dst, RawEvent{
			Wd:     int(raw.Wd),
			Mask:   raw.Mask,
			Cookie: raw.Cookie,
			Name:   name,
		})
	}
	return dst
}

// Interrupt implements Notifier. It is safe to call from any goroutine and
// any number of times; it is a no-op after Close.
func (in *Inotify) Interrupt() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	_, _ = unix.Write(in.pipeW, []byte{0})
}

// Close implements Notifier. Closing the inotify descriptor releases every
// remaining watch. It is idempotent.
func (in *Inotify) Close() error {
	var err error
	in.stopOnce.Do(func() {
		in.mu.Lock()
		in.closed = true
		in.mu.Unlock()

		_ = unix.Close(in.pipeW)
		_ = unix.Close(in.pipeR)
		if cerr := unix.Close(in.fd); cerr != nil {
			err = fmt.Errorf("inotify: close: %w", cerr)
		}
	})
	return err
}
