package models

import (
	"strconv"
	"strings"
)

// Event bits as delivered by inotify(7). They are declared here instead of
// taken from x/sys/unix so the table model stays portable.
const (
	InAccess       uint32 = 0x00000001
	InModify       uint32 = 0x00000002
	InAttrib       uint32 = 0x00000004
	InCloseWrite   uint32 = 0x00000008
	InCloseNoWrite uint32 = 0x00000010
	InOpen         uint32 = 0x00000020
	InMovedFrom    uint32 = 0x00000040
	InMovedTo      uint32 = 0x00000080
	InCreate       uint32 = 0x00000100
	InDelete       uint32 = 0x00000200
	InDeleteSelf   uint32 = 0x00000400
	InMoveSelf     uint32 = 0x00000800
	InUnmount      uint32 = 0x00002000
	InQOverflow    uint32 = 0x00004000
	InIgnored      uint32 = 0x00008000
	InOnlyDir      uint32 = 0x01000000
	InDontFollow   uint32 = 0x02000000
	InExclUnlink   uint32 = 0x04000000
	InIsDir        uint32 = 0x40000000
	InOneShot      uint32 = 0x80000000

	InClose     = InCloseWrite | InCloseNoWrite
	InMove      = InMovedFrom | InMovedTo
	InAllEvents = InAccess | InModify | InAttrib | InCloseWrite | InCloseNoWrite | InOpen |
		InMovedFrom | InMovedTo | InCreate | InDelete | InDeleteSelf | InMoveSelf
)

// Scheduler flags. They live in Hook.Flags and are never handed to the kernel.
const (
	FlagNoLoop uint32 = 1 << 0
)

// MetaMask is OR-ed into every hook mask, as incron has always done.
const MetaMask = InIgnored

const modifierPrefix = "IN_"

type modifier struct {
	name  string
	value uint32
	flag  bool
}

var modifiers = []modifier{
	{"ACCESS", InAccess, false},
	{"MODIFY", InModify, false},
	{"ATTRIB", InAttrib, false},
	{"CLOSE_WRITE", InCloseWrite, false},
	{"CLOSE_NOWRITE", InCloseNoWrite, false},
	{"OPEN", InOpen, false},
	{"MOVED_FROM", InMovedFrom, false},
	{"MOVED_TO", InMovedTo, false},
	{"CREATE", InCreate, false},
	{"DELETE", InDelete, false},
	{"DELETE_SELF", InDeleteSelf, false},
	{"MOVE_SELF", InMoveSelf, false},
	{"UNMOUNT", InUnmount, false},
	{"Q_OVERFLOW", InQOverflow, false},
	{"IGNORED", InIgnored, false},
	{"ONLYDIR", InOnlyDir, false},
	{"DONT_FOLLOW", InDontFollow, false},
	{"EXCL_UNLINK", InExclUnlink, false},
	{"ISDIR", InIsDir, false},
	{"ONESHOT", InOneShot, false},
	{"CLOSE", InClose, false},
	{"MOVE", InMove, false},
	{"ALL_EVENTS", InAllEvents, false},
	{"NO_LOOP", FlagNoLoop, true},
}

// LookupModifier resolves a table modifier name. The IN_ prefix is optional,
// matching is exact and case-sensitive. isFlag reports whether the value is a
// scheduler flag rather than an event bit.
func LookupModifier(name string) (value uint32, isFlag bool, ok bool) {
	name = strings.TrimPrefix(name, modifierPrefix)
	for _, m := range modifiers {
		if m.name == name {
			return m.value, m.flag, true
		}
	}

	return 0, false, false
}

// MaskNames returns the names of every single event bit set in mask, lowest
// bit first, e.g. ["IN_CREATE", "IN_ISDIR"].
func MaskNames(mask uint32) []string {
	var names []string

	for bit := uint32(1); bit != 0; bit <<= 1 {
		if mask&bit == 0 {
			continue
		}

		for _, m := range modifiers {
			if !m.flag && m.value == bit {
				names = append(names, modifierPrefix+m.name)
				break
			}
		}
	}

	return names
}

// MaskText is the comma separated form of MaskNames.
func MaskText(mask uint32) string {
	return strings.Join(MaskNames(mask), ",")
}

// MaskNumber is the decimal form of mask.
func MaskNumber(mask uint32) string {
	return strconv.FormatUint(uint64(mask), 10)
}
