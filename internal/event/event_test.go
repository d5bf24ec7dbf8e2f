package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwire/fswatch/internal/event"
)

func TestAllKinds_ClosedVocabulary(t *testing.T) {
	kinds := event.AllKinds()
	require.Len(t, kinds, 12)

	seen := make(map[event.Kind]bool)
	for _, k := range kinds {
		assert.True(t, k.Valid(), "kind %v should be valid", k)
		assert.False(t, seen[k], "kind %v listed twice", k)
		seen[k] = true
	}
	assert.False(t, event.Kind(0).Valid())
	assert.False(t, event.Kind(13).Valid())
}

func TestKindOf_TotalOverModeledTags(t *testing.T) {
	tests := []struct {
		tag  uint32
		want event.Kind
	}{
		{event.RawAccess, event.Accessed},
		{event.RawModify, event.Modified},
		{event.RawAttrib, event.MetadataChanged},
		{event.RawCloseWrite, event.ClosedWrite},
		{event.RawCloseNoWrite, event.ClosedNoWrite},
		{event.RawOpen, event.Opened},
		{event.RawMovedFrom, event.MovedFrom},
		{event.RawMovedTo, event.MovedTo},
		{event.RawCreate, event.Created},
		{event.RawDelete, event.Deleted},
		{event.RawDeleteSelf, event.SelfDeleted},
		{event.RawMoveSelf, event.SelfMoved},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			got, ok := event.KindOf(tt.tag)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := event.KindOf(event.RawUnmount)
	assert.False(t, ok, "IN_UNMOUNT is not part of the modeled vocabulary")
}

func TestKinds_KernelFlagOrder(t *testing.T) {
	mask := event.RawCreate | event.RawIsDir | event.RawModify | event.RawAccess
	assert.Equal(t, []event.Kind{event.Accessed, event.Modified, event.Created}, event.Kinds(mask))
	assert.Empty(t, event.Kinds(event.RawIsDir|event.RawIgnored))
}

func TestUnrecognized(t *testing.T) {
	assert.Zero(t, event.Unrecognized(event.RawCreate|event.RawIsDir))
	assert.Equal(t, event.RawUnmount, event.Unrecognized(event.RawUnmount|event.RawIsDir))
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"Created", "created", "IN_CREATE", " in_create "} {
		k, ok := event.ParseKind(name)
		require.True(t, ok, name)
		assert.Equal(t, event.Created, k, name)
	}
	_, ok := event.ParseKind("IN_UNMOUNT")
	assert.False(t, ok)
	_, ok = event.ParseKind("")
	assert.False(t, ok)
}

func TestRender(t *testing.T) {
	tests := []struct {
		rec  event.Record
		want string
	}{
		{event.Record{Kind: event.Created, Target: event.File, Path: "/tmp/x/a.txt"}, "[+] file created: /tmp/x/a.txt"},
		{event.Record{Kind: event.Created, Target: event.Directory, Path: "/tmp/x/sub"}, "[+] directory created: /tmp/x/sub"},
		{event.Record{Kind: event.Deleted, Target: event.File, Path: "/tmp/x/a.txt"}, "[-] file deleted: /tmp/x/a.txt"},
		{event.Record{Kind: event.MetadataChanged, Target: event.File, Path: "/a"}, "[!] file metadata has changed: /a"},
		{event.Record{Kind: event.ClosedWrite, Target: event.File, Path: "/a"}, "[!] file closed /a"},
		{event.Record{Kind: event.SelfDeleted, Target: event.Directory, Path: "/tmp/x"}, "[-] directory monitored deleted: /tmp/x"},
		{event.Record{Kind: event.SelfMoved, Target: event.Directory, Path: "/tmp/x"}, "[+] directory monitored moved: /tmp/x"},
		{event.Record{Kind: event.MovedTo, Target: event.File, Path: "/b"}, "[+] file moved to: /b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, event.Render(tt.rec))
	}
}

func TestKind_Names(t *testing.T) {
	assert.Equal(t, "SelfMoved", event.SelfMoved.String())
	assert.Equal(t, "IN_MOVE_SELF", event.SelfMoved.RawName())
	assert.True(t, event.SelfDeleted.IsSelf())
	assert.False(t, event.Deleted.IsSelf())
	assert.Equal(t, "Kind(42)", event.Kind(42).String())
}
