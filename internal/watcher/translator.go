package watcher

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tripwire/fswatch/internal/event"
)

// defaultMoveCacheSize bounds the number of unpaired IN_MOVED_FROM cookies
// remembered for correlation with a later IN_MOVED_TO.
const defaultMoveCacheSize = 1024

// Translator maps raw inotify records onto event.Records and keeps the
// Registry in step with the directory tree while doing so.
type Translator struct {
	reg    *Registry
	moves  *lru.Cache[uint32, string]
	logger *slog.Logger
	now    func() time.Time
}

// NewTranslator returns a Translator driving reg. moveCacheSize bounds the
// move-cookie cache; zero or negative selects the default.
func NewTranslator(reg *Registry, moveCacheSize int, logger *slog.Logger) (*Translator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if moveCacheSize <= 0 {
		moveCacheSize = defaultMoveCacheSize
	}
	moves, err := lru.New[uint32, string](moveCacheSize)
	if err != nil {
		return nil, fmt.Errorf("watcher: move cache: %w", err)
	}
	return &Translator{
		reg:    reg,
		moves:  moves,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Translate converts raw into zero or more records, handing each to emit in
// kernel flag order.
//
// A directory that appears (Created or MovedTo) is watched before its record
// is emitted, so events inside it are not lost to a missing watch. A
// directory that goes away (Deleted, SelfDeleted, MovedFrom, SelfMoved) is
// unwatched after its record is emitted.
//
// Kernel bookkeeping records (IN_IGNORED) and records for descriptors that
// are no longer registered produce nothing. ErrQueueOverflow and
// ErrUnrecognizedRawFlag are recoverable; ErrRegistryClosed is not.
func (t *Translator) Translate(raw RawEvent, emit func(event.Record)) error {
	if raw.Mask&event.RawQOverflow != 0 {
		return ErrQueueOverflow
	}
	if raw.Mask&event.RawIgnored != 0 {
		t.reg.Forget(raw.Wd)
		return nil
	}
	if raw.Mask&event.RawExclUnlink != 0 {
		return nil
	}

	watchPath, ok := t.reg.PathOf(raw.Wd)
	if !ok {
		t.logger.Debug("record for unregistered watch dropped",
			slog.Int("wd", raw.Wd),
			slog.String("name", raw.Name))
		return nil
	}

	kinds := event.Kinds(raw.Mask)
	if len(kinds) == 0 {
		return fmt.Errorf("%w: mask %#x on %s", ErrUnrecognizedRawFlag, raw.Mask, watchPath)
	}

	path := watchPath
	if raw.Name != "" {
		path = filepath.Join(watchPath, raw.Name)
	}
	now := t.now()

	for _, kind := range kinds {
		rec := event.Record{
			Kind:      kind,
			Target:    event.File,
			Path:      path,
			Timestamp: now,
		}
		if raw.Mask&event.RawIsDir != 0 || (kind.IsSelf() && t.reg.isDirWatch(path)) {
			rec.Target = event.Directory
		}
		t.correlateMove(&rec, raw.Cookie)

		if rec.Target == event.Directory && (kind == event.Created || kind == event.MovedTo) {
			if err := t.reg.OnDirectoryCreated(path); err != nil {
				if errors.Is(err, ErrRegistryClosed) {
					return err
				}
				t.logger.Warn("new directory is not watched; events inside it will be missed",
					slog.String("path", path),
					slog.Any("error", err))
			}
		}

		emit(rec)

		if rec.Target == event.Directory && removesDirectory(kind) {
			if err := t.reg.OnDirectoryRemoved(path); err != nil {
				return err
			}
		}
	}
	return nil
}

// correlateMove records MovedFrom cookies and attaches the source path to
// the matching MovedTo.
func (t *Translator) correlateMove(rec *event.Record, cookie uint32) {
	if cookie == 0 {
		return
	}
	switch rec.Kind {
	case event.MovedFrom:
		rec.Cookie = cookie
		t.moves.Add(cookie, rec.Path)
	case event.MovedTo:
		rec.Cookie = cookie
		if from, ok := t.moves.Get(cookie); ok {
			rec.OldPath = from
			t.moves.Remove(cookie)
		}
	}
}

func removesDirectory(kind event.Kind) bool {
	switch kind {
	case event.Deleted, event.SelfDeleted, event.MovedFrom, event.SelfMoved:
		return true
	default:
		return false
	}
}
