// Package runlevel describes the fixed mapping between runlevel directory
// names, their single-character keys, and the bitmask used throughout the
// dependency graph to test whether two services share a runlevel.
//
// Two init-script dialects are supported. SUSE-style layouts keep a
// dedicated boot.d for pre-boot scripts and a single rcS.d for single-user
// mode; Debian-style layouts have no boot.d and instead let rcS.d play the
// boot role.
package runlevel

import (
	"os"
	"path/filepath"
)

// Dialect identifies which runlevel directory layout is in effect.
type Dialect int

const (
	// DialectSUSE is the layout with a separate boot.d and rcS.d.
	DialectSUSE Dialect = iota
	// DialectDebian is the layout where rcS.d plays the boot role.
	DialectDebian
)

func (d Dialect) String() string {
	if d == DialectDebian {
		return "debian"
	}
	return "suse"
}

// Level describes one runlevel directory entry.
type Level struct {
	// Directory is the runlevel directory name, relative to the init root
	// (e.g. "rc3.d", "boot.d").
	Directory string
	// Bit is the single bit in the runlevel bitmask this level occupies.
	Bit uint16
	// Key is the single-character runlevel token used in Default-Start /
	// Default-Stop header fields ('0'..'6', 'S', 'B').
	Key byte
	// Boot marks the pre-boot level (boot.d under SUSE, rcS.d under Debian).
	Boot bool
	// Single marks the single-user level (rcS.d under SUSE, where it is
	// distinct from boot.d). Under Debian rcS.d already carries Boot
	// instead, since it plays the boot role there.
	Single bool
}

// Map is the full set of runlevel entries for one dialect.
type Map struct {
	Dialect      Dialect
	Levels       []Level
	UseStopTags  bool // honor Required-Stop/Should-Stop as an independent graph
	HasBootLevel bool // a distinct pre-boot directory exists (SUSE boot.d)
}

// NewMap builds the fixed runlevel table for the given dialect.
func NewMap(dialect Dialect) *Map {
	switch dialect {
	case DialectDebian:
		return &Map{
			Dialect: DialectDebian,
			Levels: []Level{
				{Directory: "rc0.d", Bit: 1 << 0, Key: '0'},
				{Directory: "rc1.d", Bit: 1 << 1, Key: '1'},
				{Directory: "rc2.d", Bit: 1 << 2, Key: '2'},
				{Directory: "rc3.d", Bit: 1 << 3, Key: '3'},
				{Directory: "rc4.d", Bit: 1 << 4, Key: '4'},
				{Directory: "rc5.d", Bit: 1 << 5, Key: '5'},
				{Directory: "rc6.d", Bit: 1 << 6, Key: '6'},
				{Directory: "rcS.d", Bit: 1 << 7, Key: 'S', Boot: true},
			},
			UseStopTags:  true,
			HasBootLevel: false,
		}
	default:
		return &Map{
			Dialect: DialectSUSE,
			Levels: []Level{
				{Directory: "rc0.d", Bit: 1 << 0, Key: '0'},
				{Directory: "rc1.d", Bit: 1 << 1, Key: '1'},
				{Directory: "rc2.d", Bit: 1 << 2, Key: '2'},
				{Directory: "rc3.d", Bit: 1 << 3, Key: '3'},
				{Directory: "rc4.d", Bit: 1 << 4, Key: '4'},
				{Directory: "rc5.d", Bit: 1 << 5, Key: '5'},
				{Directory: "rc6.d", Bit: 1 << 6, Key: '6'},
				{Directory: "rcS.d", Bit: 1 << 7, Key: 'S', Single: true},
				{Directory: "boot.d", Bit: 1 << 8, Key: 'B', Boot: true},
			},
			UseStopTags:  false,
			HasBootLevel: true,
		}
	}
}

// DetectDialect inspects an init root directory and guesses the dialect in
// use: the presence of a boot.d subdirectory signals SUSE, its absence
// signals Debian.
func DetectDialect(initRoot string) Dialect {
	if fi, err := os.Stat(filepath.Join(initRoot, "boot.d")); err == nil && fi.IsDir() {
		return DialectSUSE
	}
	return DialectDebian
}

// ByKey returns the level for a single-character runlevel token.
func (m *Map) ByKey(key byte) (Level, bool) {
	for _, lv := range m.Levels {
		if lv.Key == key {
			return lv, true
		}
	}
	return Level{}, false
}

// ByDirectory returns the level for a runlevel directory name.
func (m *Map) ByDirectory(dir string) (Level, bool) {
	for _, lv := range m.Levels {
		if lv.Directory == dir {
			return lv, true
		}
	}
	return Level{}, false
}

// BootLevel returns the pre-boot level, if this dialect has one.
func (m *Map) BootLevel() (Level, bool) {
	for _, lv := range m.Levels {
		if lv.Boot {
			return lv, true
		}
	}
	return Level{}, false
}

// BootBit returns the bitmask bit of the pre-boot level, or 0 if none.
func (m *Map) BootBit() uint16 {
	lv, ok := m.BootLevel()
	if !ok {
		return 0
	}
	return lv.Bit
}

// AllBit returns the union of every non-boot level's bit, matching LVL_ALL
// from the original (everything but BOOT, single-user included).
func (m *Map) AllBit() uint16 {
	var mask uint16
	for _, lv := range m.Levels {
		if !lv.Boot {
			mask |= lv.Bit
		}
	}
	return mask
}

// SingleBit returns the bitmask bit of the single-user level, or 0 if this
// dialect has none distinct from its boot level.
func (m *Map) SingleBit() uint16 {
	for _, lv := range m.Levels {
		if lv.Single {
			return lv.Bit
		}
	}
	return 0
}

// NormBit returns AllBit with the single-user level excluded, matching
// LVL_NORM from the original: the mask used for .depend.stop, since a
// script's stop-side makefile dependency never needs to run down to
// single-user mode.
func (m *Map) NormBit() uint16 {
	return m.AllBit() &^ m.SingleBit()
}

// FullBit returns the union of every level's bit, boot included.
func (m *Map) FullBit() uint16 {
	var mask uint16
	for _, lv := range m.Levels {
		mask |= lv.Bit
	}
	return mask
}

// KeysToMask converts a set of single-character runlevel tokens (as found in
// a Default-Start/Default-Stop header field) into a bitmask. Unknown keys
// are ignored.
func (m *Map) KeysToMask(keys []byte) uint16 {
	var mask uint16
	for _, k := range keys {
		if lv, ok := m.ByKey(k); ok {
			mask |= lv.Bit
		}
	}
	return mask
}

// MaskToKeys converts a bitmask back to its sorted set of single-character
// tokens, in the table's declaration order.
func (m *Map) MaskToKeys(mask uint16) []byte {
	var keys []byte
	for _, lv := range m.Levels {
		if mask&lv.Bit != 0 {
			keys = append(keys, lv.Key)
		}
	}
	return keys
}
