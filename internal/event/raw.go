package event

import "math/bits"

// Linux inotify event flag constants (kernel ABI).
// These match the values in <sys/inotify.h>.
const (
	RawAccess       uint32 = 0x1   // IN_ACCESS
	RawModify       uint32 = 0x2   // IN_MODIFY
	RawAttrib       uint32 = 0x4   // IN_ATTRIB
	RawCloseWrite   uint32 = 0x8   // IN_CLOSE_WRITE
	RawCloseNoWrite uint32 = 0x10  // IN_CLOSE_NOWRITE
	RawOpen         uint32 = 0x20  // IN_OPEN
	RawMovedFrom    uint32 = 0x40  // IN_MOVED_FROM
	RawMovedTo      uint32 = 0x80  // IN_MOVED_TO
	RawCreate       uint32 = 0x100 // IN_CREATE
	RawDelete       uint32 = 0x200 // IN_DELETE
	RawDeleteSelf   uint32 = 0x400 // IN_DELETE_SELF
	RawMoveSelf     uint32 = 0x800 // IN_MOVE_SELF

	RawUnmount    uint32 = 0x2000     // IN_UNMOUNT: backing filesystem unmounted
	RawQOverflow  uint32 = 0x4000     // IN_Q_OVERFLOW: event queue overflowed
	RawIgnored    uint32 = 0x8000     // IN_IGNORED: watch removed by the kernel
	RawExclUnlink uint32 = 0x4000000  // IN_EXCL_UNLINK
	RawIsDir      uint32 = 0x40000000 // IN_ISDIR: subject of event is a directory
)

// RawAllEvents is the union of every modeled tag (IN_ALL_EVENTS).
const RawAllEvents = RawAccess | RawModify | RawAttrib | RawCloseWrite | RawCloseNoWrite |
	RawOpen | RawMovedFrom | RawMovedTo | RawCreate | RawDelete | RawDeleteSelf | RawMoveSelf

// rawModifiers are bits that qualify an event rather than name one.
const rawModifiers = RawIsDir | RawExclUnlink

// KindOf maps a single raw inotify tag to its Kind.
func KindOf(tag uint32) (Kind, bool) {
	for _, row := range table {
		if row.raw == tag {
			return row.kind, true
		}
	}
	return 0, false
}

// Kinds returns the Kind of every modeled tag set in mask, lowest bit first,
// which is the order the kernel defines them in.
func Kinds(mask uint32) []Kind {
	var kinds []Kind
	for m := mask & RawAllEvents; m != 0; m &= m - 1 {
		if k, ok := KindOf(uint32(1) << bits.TrailingZeros32(m)); ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Unrecognized returns the bits of mask that neither name a modeled kind nor
// qualify one.
func Unrecognized(mask uint32) uint32 {
	return mask &^ (RawAllEvents | rawModifiers)
}
