package romtag

import "github.com/hotdoglinux/amiganarrator/internal/emulator"

// translatorFallbackOffset is the Translate entry point assumed when a
// translator image carries no resident descriptor (spec.md §4.2's
// documented no-ROMTag path).
const translatorFallbackOffset = 0x134

// emptyVectorTableOffset is scratch space, well past the handful of
// instructions the trampoline itself occupies, holding a one-longword
// 0xFFFFFFFF terminator for the no-ROMTag MakeLibrary fallback.
const emptyVectorTableOffset = 0x200

// assembler is a tiny straight-line 68000 code writer used only to
// synthesize the host's boot trampolines; it never encodes anything a
// disassembler would need to show back to a user.
type assembler struct {
	emu  *emulator.Emulator
	addr uint32
}

func newAssembler(emu *emulator.Emulator, at uint32) *assembler {
	return &assembler{emu: emu, addr: at}
}

func (a *assembler) word(w uint16) {
	a.emu.Write16(a.addr, w)
	a.addr += 2
}

func (a *assembler) long(v uint32) {
	a.emu.Write32(a.addr, v)
	a.addr += 4
}

// moveq writes "moveq #imm,Dn".
func (a *assembler) moveq(n int, imm int8) {
	a.word(0x7000 | uint16(n)<<9 | uint16(uint8(imm)))
}

// moveaLong writes "movea.l #imm32,An".
func (a *assembler) moveaLong(n int, imm uint32) {
	a.word(0x207C | uint16(n)<<9)
	a.long(imm)
}

// moveLong writes "move.l #imm32,Dn" — used in place of moveq whenever
// the immediate may not fit moveq's signed 8-bit range.
func (a *assembler) moveLong(n int, imm uint32) {
	a.word(0x203C | uint16(n)<<9)
	a.long(imm)
}

// jsrAbsLong writes "jsr abs.L" and returns the address of its 4-byte
// operand, so a caller can patch the target in later.
func (a *assembler) jsrAbsLong(target uint32) (operandAddr uint32) {
	a.word(OpJSRAbsoluteLong)
	operandAddr = a.addr
	a.long(target)
	return operandAddr
}

// jsrVector writes "jsr d16(A6)" — the same opcode the ABI dispatcher
// watches for everywhere else — so a trampoline can invoke a host vector
// directly when no guest init code exists to do it (the no-ROMTag path).
func (a *assembler) jsrVector(disp int16) {
	a.word(OpJSRDisplacedA6)
	a.word(uint16(disp))
}

func (a *assembler) stop(imm uint16) {
	a.word(OpStop)
	a.word(imm)
}

// Trampoline is the synthesized bootstrap sequence written at
// TrampolineBase; PatchAddr fields are the absolute-long operands that
// the ABI dispatcher's MakeLibrary/AddTask hooks overwrite once the
// guest reports its real jump-table and task entry points.
type Trampoline struct {
	EntryPC              uint32
	MakeLibraryPatchAddr uint32
	AddTaskPatchAddr     uint32
}

// BuildNarratorTrampoline assembles the narrator boot sequence: run the
// descriptor's init code (or, lacking one, call MakeLibrary directly),
// then the patched library-open call, then the patched task-entry call,
// then stop. MakeLibrary's and AddTask's ABI hooks patch the two jsr
// operands in place once they fire.
func BuildNarratorTrampoline(emu *emulator.Emulator, base uint32, libraryBase, narratorRB, stackPointer uint32, initPtr uint32, hasROMTag bool) Trampoline {
	a := newAssembler(emu, base)
	entry := a.addr

	if hasROMTag {
		a.jsrAbsLong(initPtr)
	} else {
		// No resident descriptor: synthesize an empty vector table in
		// scratch RAM (A0 points at an immediate terminator) and call
		// MakeLibrary's host hook directly, per spec.md §4.2's documented
		// fallback ("MakeLibrary with address 0").
		emptyTable := base + emptyVectorTableOffset
		emu.Write32(emptyTable, 0xFFFFFFFF)
		a.moveaLong(0, emptyTable)
		a.jsrVector(int16(uint16(0xFFAC))) // MakeLibrary
	}

	a.moveq(0, 0)
	a.moveaLong(6, libraryBase)
	a.moveaLong(1, narratorRB)
	makeLibPatch := a.jsrAbsLong(0)

	a.moveaLong(7, stackPointer)
	addTaskPatch := a.jsrAbsLong(0)

	a.stop(0x2700)

	return Trampoline{
		EntryPC:              entry,
		MakeLibraryPatchAddr: makeLibPatch,
		AddTaskPatchAddr:     addTaskPatch,
	}
}

// BuildTranslatorTrampoline assembles the translator sequence: seed the
// input/output buffers and registers, jsr the Translate entry point
// (from the descriptor's AUTOINIT vector table, or the fixed fallback
// offset when there is none), then stop.
func BuildTranslatorTrampoline(emu *emulator.Emulator, base uint32, libraryBase, inputBase, outputBase uint32, inputLen, outputCap uint32, translateVector uint32, hasROMTag bool) Trampoline {
	a := newAssembler(emu, base)
	entry := a.addr

	a.moveaLong(0, inputBase)
	a.moveLong(0, inputLen)
	a.moveaLong(1, outputBase)
	a.moveLong(1, outputCap)
	a.moveaLong(6, libraryBase)

	target := translateVector
	if !hasROMTag {
		target = libraryBase + translatorFallbackOffset
	}
	a.jsrAbsLong(target)

	a.stop(0x2700)

	return Trampoline{EntryPC: entry}
}
