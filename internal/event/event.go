// Package event defines the normalized filesystem event vocabulary produced by
// the watcher: a closed set of event kinds, the record delivered to sinks, and
// the classification table that maps raw inotify tags onto that vocabulary.
package event

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies a normalized filesystem event. The set is closed; raw kernel
// tags outside it are never mapped to a Kind.
type Kind uint8

const (
	// Accessed indicates a file was read.
	Accessed Kind = iota + 1
	// Modified indicates file content was written.
	Modified
	// MetadataChanged indicates permissions, ownership, timestamps or links changed.
	MetadataChanged
	// ClosedWrite indicates a file opened for writing was closed.
	ClosedWrite
	// ClosedNoWrite indicates a file not opened for writing was closed.
	ClosedNoWrite
	// Opened indicates a file or directory was opened.
	Opened
	// MovedFrom indicates an entry was moved out of a watched directory.
	MovedFrom
	// MovedTo indicates an entry was moved into a watched directory.
	MovedTo
	// Created indicates an entry was created in a watched directory.
	Created
	// Deleted indicates an entry was deleted from a watched directory.
	Deleted
	// SelfDeleted indicates the watched directory itself was deleted.
	SelfDeleted
	// SelfMoved indicates the watched directory itself was moved.
	SelfMoved
)

// Target distinguishes files from directories.
type Target uint8

const (
	// File is any non-directory entry.
	File Target = iota
	// Directory is a directory entry.
	Directory
)

// Noun returns the word used for t in rendered messages.
func (t Target) Noun() string {
	if t == Directory {
		return "directory"
	}
	return "file"
}

// String implements fmt.Stringer.
func (t Target) String() string { return t.Noun() }

// Record is one normalized event. Records are built by the translator and
// handed to consumers by value; nothing downstream mutates them.
type Record struct {
	// Kind is the normalized event kind.
	Kind Kind
	// Target reports whether the subject is a file or a directory.
	Target Target
	// Path is the subject's path: the watched directory joined with the entry
	// name, or the watched directory itself for self events.
	Path string
	// Cookie correlates MovedFrom/MovedTo pairs. Zero for every other kind.
	Cookie uint32
	// OldPath is the MovedFrom path paired with a MovedTo record, when the
	// source was observed. Empty otherwise.
	OldPath string
	// Timestamp is when the record was translated.
	Timestamp time.Time
}

// kindInfo is one row of the classification table.
type kindInfo struct {
	kind     Kind
	raw      uint32
	name     string
	rawName  string
	template string
}

// table lists every Kind in kernel flag order (ascending bit value). The
// templates take the target noun and the path.
var table = [...]kindInfo{
	{Accessed, RawAccess, "Accessed", "IN_ACCESS", "[!] %s accessed: %s"},
	{Modified, RawModify, "Modified", "IN_MODIFY", "[!] %s modified: %s"},
	{MetadataChanged, RawAttrib, "MetadataChanged", "IN_ATTRIB", "[!] %s metadata has changed: %s"},
	{ClosedWrite, RawCloseWrite, "ClosedWrite", "IN_CLOSE_WRITE", "[!] %s closed %s"},
	{ClosedNoWrite, RawCloseNoWrite, "ClosedNoWrite", "IN_CLOSE_NOWRITE", "[!] %s closed %s"},
	{Opened, RawOpen, "Opened", "IN_OPEN", "[!] %s opened: %s"},
	{MovedFrom, RawMovedFrom, "MovedFrom", "IN_MOVED_FROM", "[+] %s moved from: %s"},
	{MovedTo, RawMovedTo, "MovedTo", "IN_MOVED_TO", "[+] %s moved to: %s"},
	{Created, RawCreate, "Created", "IN_CREATE", "[+] %s created: %s"},
	{Deleted, RawDelete, "Deleted", "IN_DELETE", "[-] %s deleted: %s"},
	{SelfDeleted, RawDeleteSelf, "SelfDeleted", "IN_DELETE_SELF", "[-] %s monitored deleted: %s"},
	{SelfMoved, RawMoveSelf, "SelfMoved", "IN_MOVE_SELF", "[+] %s monitored moved: %s"},
}

// info returns the table row for k. Kinds are dense from 1, so the index is
// k-1.
func (k Kind) info() (kindInfo, bool) {
	if k == 0 || int(k) > len(table) {
		return kindInfo{}, false
	}
	return table[k-1], true
}

// Valid reports whether k is one of the modeled kinds.
func (k Kind) Valid() bool {
	_, ok := k.info()
	return ok
}

// String returns the kind name, e.g. "Created".
func (k Kind) String() string {
	if i, ok := k.info(); ok {
		return i.name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// RawName returns the inotify tag the kind is derived from, e.g. "IN_CREATE".
func (k Kind) RawName() string {
	if i, ok := k.info(); ok {
		return i.rawName
	}
	return ""
}

// IsSelf reports whether k refers to the watched path itself rather than an
// entry inside it.
func (k Kind) IsSelf() bool {
	return k == SelfDeleted || k == SelfMoved
}

// AllKinds returns every Kind in kernel flag order.
func AllKinds() []Kind {
	kinds := make([]Kind, len(table))
	for i, row := range table {
		kinds[i] = row.kind
	}
	return kinds
}

// ParseKind resolves a kind by name. Both the kind name ("Created",
// case-insensitive) and the inotify tag ("IN_CREATE") are accepted.
func ParseKind(name string) (Kind, bool) {
	name = strings.TrimSpace(name)
	for _, row := range table {
		if strings.EqualFold(name, row.name) || strings.EqualFold(name, row.rawName) {
			return row.kind, true
		}
	}
	return 0, false
}

// Render formats rec with its kind's message template. It returns plain
// text; styling belongs to the sink.
func Render(rec Record) string {
	i, ok := rec.Kind.info()
	if !ok {
		return fmt.Sprintf("[?] %s event %s: %s", rec.Target.Noun(), rec.Kind, rec.Path)
	}
	return fmt.Sprintf(i.template, rec.Target.Noun(), rec.Path)
}
