// Package filter selects which normalized event kinds reach the sink.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tripwire/fswatch/internal/event"
)

var (
	// ErrEmptySelection is returned by Explicit when no event names are given.
	ErrEmptySelection = errors.New("filter: event selection is empty")
	// ErrInvalidEventName matches every *InvalidEventNameError via errors.Is.
	ErrInvalidEventName = errors.New("filter: invalid event name")
)

// InvalidEventNameError reports a name outside the event vocabulary.
type InvalidEventNameError struct {
	Name string
}

func (e *InvalidEventNameError) Error() string {
	return fmt.Sprintf("filter: invalid event name %q", e.Name)
}

// Is makes errors.Is(err, ErrInvalidEventName) succeed.
func (e *InvalidEventNameError) Is(target error) bool {
	return target == ErrInvalidEventName
}

// Level names a built-in preset.
type Level int

const (
	// LevelDefault reports structural changes only.
	LevelDefault Level = iota
	// LevelVerbose adds content and metadata changes.
	LevelVerbose
	// LevelAll reports every kind.
	LevelAll
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelVerbose:
		return "verbose"
	case LevelAll:
		return "all"
	default:
		return "default"
	}
}

// ParseLevel resolves "default", "verbose" or "all". The empty string is
// LevelDefault.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return LevelDefault, nil
	case "verbose":
		return LevelVerbose, nil
	case "all":
		return LevelAll, nil
	default:
		return LevelDefault, fmt.Errorf("filter: level %q must be one of: default, verbose, all", s)
	}
}

var defaultKinds = []event.Kind{
	event.Created,
	event.Deleted,
	event.SelfDeleted,
	event.MovedFrom,
	event.MovedTo,
	event.SelfMoved,
}

var verboseExtra = []event.Kind{
	event.Modified,
	event.MetadataChanged,
}

// Set is an immutable set of event kinds, stored as a bitset indexed by Kind.
type Set struct {
	bits uint32
}

func newSet(kinds ...event.Kind) *Set {
	s := &Set{}
	for _, k := range kinds {
		s.bits |= 1 << uint(k)
	}
	return s
}

// Preset builds the Set for level. Unknown levels fall back to LevelDefault.
func Preset(level Level) *Set {
	switch level {
	case LevelVerbose:
		return newSet(append(append([]event.Kind{}, defaultKinds...), verboseExtra...)...)
	case LevelAll:
		return newSet(event.AllKinds()...)
	default:
		return newSet(defaultKinds...)
	}
}

// Explicit builds a Set from user-supplied event names, accepting either kind
// names ("Created") or inotify tags ("IN_CREATE"). Duplicates collapse.
func Explicit(names []string) (*Set, error) {
	if len(names) == 0 {
		return nil, ErrEmptySelection
	}
	kinds := make([]event.Kind, 0, len(names))
	for _, name := range names {
		k, ok := event.ParseKind(name)
		if !ok {
			return nil, &InvalidEventNameError{Name: name}
		}
		kinds = append(kinds, k)
	}
	return newSet(kinds...), nil
}

// Accepts reports whether kind is in the set.
func (s *Set) Accepts(kind event.Kind) bool {
	return s != nil && kind.Valid() && s.bits&(1<<uint(kind)) != 0
}

// Kinds returns the members in kernel flag order.
func (s *Set) Kinds() []event.Kind {
	var kinds []event.Kind
	for _, k := range event.AllKinds() {
		if s.Accepts(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Len returns the number of kinds in the set.
func (s *Set) Len() int {
	return len(s.Kinds())
}

// SubsetOf reports whether every kind in s is also in other.
func (s *Set) SubsetOf(other *Set) bool {
	if s == nil {
		return true
	}
	if other == nil {
		return s.bits == 0
	}
	return s.bits&^other.bits == 0
}

// String lists the kind names, comma separated.
func (s *Set) String() string {
	kinds := s.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ",")
}
