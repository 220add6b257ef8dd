// Package romtag locates a guest's resident-library descriptor and
// assembles the boot trampoline that drives it through initialization.
package romtag

import (
	"github.com/hotdoglinux/amiganarrator/internal/emulator"
)

// MatchWord is the 16-bit value that opens every resident descriptor.
const MatchWord = 0x4AFC

// Resident-descriptor flag bits (spec.md §3).
const (
	FlagAutoInit   = 0x80
	FlagAfterDOS   = 0x04
	FlagSingleTask = 0x02
	FlagColdStart  = 0x01
)

// 68000 opcodes the host recognizes directly (used by the trampoline
// builder and, via these same constants, by the ABI dispatcher).
const (
	OpJSRDisplacedA6  = 0x4EAE // jsr d16(A6)
	OpJSRAbsoluteLong = 0x4EB9 // jsr abs.L
	OpStop            = 0x4E72
	OpRTS             = 0x4E75
)

// Descriptor is a decoded resident (ROMTag) record.
type Descriptor struct {
	Base        uint32 // RAM address of the match word
	Flags       uint8
	Version     uint8
	Type        uint8
	Priority    uint8
	NamePtr     uint32
	IDStringPtr uint32
	InitPtr     uint32
}

// AutoInit is the decoded (dSize, vectors, structure, initFunction) table
// an AUTOINIT descriptor's InitPtr points at.
type AutoInit struct {
	DataSize      uint32
	VectorTable   uint32
	StructureInit uint32
	InitFunction  uint32
}

// Locate scans RAM at base for the resident match word and decodes the
// descriptor if present. Layout per spec.md §3: match word, match-tag,
// end-skip, flags, version, type, priority, name ptr, id-string ptr,
// init ptr (offsets 0..22 within the tag, per spec.md §6(b)).
func Locate(emu *emulator.Emulator, base uint32) (*Descriptor, bool) {
	if emu.Read16(base) != MatchWord {
		return nil, false
	}
	// offset 2: match-tag (ptr back to base, unused here)
	// offset 6: end-skip (ptr past the resident block, unused here)
	d := &Descriptor{
		Base:        base,
		Flags:       uint8(emu.Read8(base + 10)),
		Version:     uint8(emu.Read8(base + 11)),
		Type:        uint8(emu.Read8(base + 12)),
		Priority:    uint8(emu.Read8(base + 13)),
		NamePtr:     emu.Read32(base + 14),
		IDStringPtr: emu.Read32(base + 18),
		InitPtr:     emu.Read32(base + 22),
	}
	return d, true
}

// Scan walks RAM word-by-word from start, up to limit bytes, looking for
// the first resident descriptor. Hunk loading does not record hunk
// lengths, so callers that don't know an exact descriptor offset bound
// the search with the image size instead.
func Scan(emu *emulator.Emulator, start, limit uint32) (*Descriptor, uint32, bool) {
	for off := uint32(0); off+2 <= limit; off += 2 {
		base := start + off
		if d, ok := Locate(emu, base); ok {
			return d, base, true
		}
	}
	return nil, 0, false
}

// DecodeAutoInit reads the four-field AUTOINIT table pointed to by the
// descriptor's InitPtr.
func DecodeAutoInit(emu *emulator.Emulator, initPtr uint32) AutoInit {
	return AutoInit{
		DataSize:      emu.Read32(initPtr),
		VectorTable:   emu.Read32(initPtr + 4),
		StructureInit: emu.Read32(initPtr + 8),
		InitFunction:  emu.Read32(initPtr + 12),
	}
}

// VectorAt resolves the nth (0-based) entry of an AUTOINIT vector table.
// The table is either a packed array of absolute 32-bit addresses
// terminated by 0xFFFFFFFF, or — when the first 16-bit word is 0xFFFF —
// a sequence of 16-bit offsets relative to the table's own base,
// terminated by 0xFFFF (spec.md §3).
func VectorAt(emu *emulator.Emulator, tableBase uint32, n int) (uint32, bool) {
	if emu.Read16(tableBase) == 0xFFFF {
		off := tableBase + 2
		for i := 0; ; i++ {
			w := emu.Read16(off + uint32(i)*2)
			if w == 0xFFFF {
				return 0, false
			}
			if i == n {
				return tableBase + uint32(int16(w)), true
			}
		}
	}
	for i := 0; ; i++ {
		v := emu.Read32(tableBase + uint32(i)*4)
		if v == 0xFFFFFFFF {
			return 0, false
		}
		if i == n {
			return v, true
		}
	}
}
