package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwire/fswatch/internal/event"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// newTestTranslator returns a Translator over a fresh registry for root,
// with a frozen clock.
func newTestTranslator(t *testing.T, root string, recursive bool) (*Translator, *Registry, *fakeNotifier) {
	t.Helper()
	n := newFakeNotifier()
	reg, err := NewRegistry(n, root, recursive, discardLogger())
	require.NoError(t, err)
	tr, err := NewTranslator(reg, 0, discardLogger())
	require.NoError(t, err)
	tr.now = func() time.Time { return fixedNow }
	return tr, reg, n
}

// collect translates raw and returns every emitted record.
func collect(t *testing.T, tr *Translator, raw RawEvent) ([]event.Record, error) {
	t.Helper()
	var got []event.Record
	err := tr.Translate(raw, func(rec event.Record) { got = append(got, rec) })
	return got, err
}

func TestTranslate_FileCreated(t *testing.T) {
	root := t.TempDir()
	tr, _, n := newTestTranslator(t, root, false)

	got, err := collect(t, tr, RawEvent{Wd: n.wdOf(root), Mask: event.RawCreate, Name: "a.txt"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, event.Record{
		Kind:      event.Created,
		Target:    event.File,
		Path:      filepath.Join(root, "a.txt"),
		Timestamp: fixedNow,
	}, got[0])
}

func TestTranslate_MultiFlagInKernelOrder(t *testing.T) {
	root := t.TempDir()
	tr, _, n := newTestTranslator(t, root, false)

	got, err := collect(t, tr, RawEvent{
		Wd:   n.wdOf(root),
		Mask: event.RawCloseWrite | event.RawModify | event.RawAttrib,
		Name: "f",
	})
	require.NoError(t, err)

	kinds := make([]event.Kind, 0, len(got))
	for _, r := range got {
		kinds = append(kinds, r.Kind)
		assert.Equal(t, filepath.Join(root, "f"), r.Path)
	}
	assert.Equal(t, []event.Kind{event.Modified, event.MetadataChanged, event.ClosedWrite}, kinds)
}

func TestTranslate_QueueOverflow(t *testing.T) {
	tr, _, _ := newTestTranslator(t, t.TempDir(), false)

	got, err := collect(t, tr, RawEvent{Wd: -1, Mask: event.RawQOverflow})
	require.ErrorIs(t, err, ErrQueueOverflow)
	assert.Empty(t, got)
}

func TestTranslate_IgnoredForgetsWatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	tr, reg, n := newTestTranslator(t, root, true)
	wd := n.wdOf(filepath.Join(root, "sub"))

	got, err := collect(t, tr, RawEvent{Wd: wd, Mask: event.RawIgnored})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, reg.Len())
}

func TestTranslate_UnknownWatchIsDropped(t *testing.T) {
	tr, _, _ := newTestTranslator(t, t.TempDir(), false)

	got, err := collect(t, tr, RawEvent{Wd: 999, Mask: event.RawCreate, Name: "x"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTranslate_UnrecognizedFlag(t *testing.T) {
	root := t.TempDir()
	tr, _, n := newTestTranslator(t, root, false)

	got, err := collect(t, tr, RawEvent{Wd: n.wdOf(root), Mask: event.RawUnmount})
	require.ErrorIs(t, err, ErrUnrecognizedRawFlag)
	assert.Empty(t, got)
}

func TestTranslate_DirectoryCreatedIsWatchedBeforeEmit(t *testing.T) {
	root := t.TempDir()
	tr, reg, n := newTestTranslator(t, root, true)
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	var watchedAtEmit bool
	err := tr.Translate(
		RawEvent{Wd: n.wdOf(root), Mask: event.RawCreate | event.RawIsDir, Name: "sub"},
		func(rec event.Record) {
			assert.Equal(t, event.Created, rec.Kind)
			assert.Equal(t, event.Directory, rec.Target)
			_, watchedAtEmit = reg.PathOf(n.wdOf(sub))
		})
	require.NoError(t, err)
	assert.True(t, watchedAtEmit)
	assert.Equal(t, 2, reg.Len())
}

func TestTranslate_DirectoryCreated_NonRecursive(t *testing.T) {
	root := t.TempDir()
	tr, reg, n := newTestTranslator(t, root, false)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	got, err := collect(t, tr, RawEvent{Wd: n.wdOf(root), Mask: event.RawCreate | event.RawIsDir, Name: "sub"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, event.Directory, got[0].Target)
	assert.Equal(t, 1, reg.Len())
}

func TestTranslate_DirectoryDeletedIsUnwatchedAfterEmit(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "deeper"), 0o755))
	tr, reg, n := newTestTranslator(t, root, true)
	require.Equal(t, 3, reg.Len())

	var lenAtEmit int
	err := tr.Translate(
		RawEvent{Wd: n.wdOf(root), Mask: event.RawDelete | event.RawIsDir, Name: "sub"},
		func(rec event.Record) { lenAtEmit = reg.Len() })
	require.NoError(t, err)

	assert.Equal(t, 3, lenAtEmit)
	assert.Equal(t, []string{root}, reg.Paths())
}

func TestTranslate_SelfDeletedRoot(t *testing.T) {
	root := t.TempDir()
	tr, reg, n := newTestTranslator(t, root, false)

	got, err := collect(t, tr, RawEvent{Wd: n.wdOf(root), Mask: event.RawDeleteSelf})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, event.SelfDeleted, got[0].Kind)
	assert.Equal(t, event.Directory, got[0].Target)
	assert.Equal(t, root, got[0].Path)
	assert.Zero(t, reg.Len())
}

func TestTranslate_SelfEventOnFileRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "single.log")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	tr, _, n := newTestTranslator(t, file, false)

	got, err := collect(t, tr, RawEvent{Wd: n.wdOf(file), Mask: event.RawMoveSelf})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, event.File, got[0].Target)
}

func TestTranslate_MoveCorrelation(t *testing.T) {
	root := t.TempDir()
	tr, _, n := newTestTranslator(t, root, false)
	wd := n.wdOf(root)

	from, err := collect(t, tr, RawEvent{Wd: wd, Mask: event.RawMovedFrom, Cookie: 42, Name: "old"})
	require.NoError(t, err)
	to, err := collect(t, tr, RawEvent{Wd: wd, Mask: event.RawMovedTo, Cookie: 42, Name: "new"})
	require.NoError(t, err)

	require.Len(t, from, 1)
	require.Len(t, to, 1)
	assert.Equal(t, uint32(42), from[0].Cookie)
	assert.Equal(t, filepath.Join(root, "new"), to[0].Path)
	assert.Equal(t, filepath.Join(root, "old"), to[0].OldPath)

	// A MovedTo whose source was outside the watched tree has no OldPath.
	in, err := collect(t, tr, RawEvent{Wd: wd, Mask: event.RawMovedTo, Cookie: 7, Name: "incoming"})
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Empty(t, in[0].OldPath)
	assert.Equal(t, uint32(7), in[0].Cookie)
}

func TestTranslate_AfterShutdown(t *testing.T) {
	root := t.TempDir()
	tr, reg, n := newTestTranslator(t, root, true)
	wd := n.wdOf(root)
	require.NoError(t, reg.Shutdown())

	got, err := collect(t, tr, RawEvent{Wd: wd, Mask: event.RawCreate | event.RawIsDir, Name: "x"})
	require.NoError(t, err, "records for released watches are dropped")
	assert.Empty(t, got)
}
