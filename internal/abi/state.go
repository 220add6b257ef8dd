// Package abi implements the ABI dispatcher: it intercepts the guest's
// library jump-table calls and device I/O requests and synthesizes the
// host operating system's observable effects.
package abi

import (
	"io"
	"os"

	"github.com/hotdoglinux/amiganarrator/internal/emulator"
	"github.com/hotdoglinux/amiganarrator/internal/log"
)

// Addrs holds the fixed RAM layout for one guest binary. Values are
// compile-time constants per spec.md §3; concrete numbers are grounded
// in original_source/narrator.c and original_source/translator.c (see
// DESIGN.md).
type Addrs struct {
	ExecBase       uint32
	LibraryBase    uint32
	NarratorRB     uint32
	MsgPort        uint32
	AudioMsgPort   uint32
	AudioChanBase  uint32
	TaskBase       uint32
	TrampolineBase uint32
	StackPointer   uint32
	LibraryName    uint32
	InputBase      uint32
	OutputBase     uint32
	RAMSize        uint32
}

// NarratorAddrs is the 16 MiB narrator address map.
func NarratorAddrs() Addrs {
	return Addrs{
		ExecBase:       0x20000,
		LibraryBase:    0x23000,
		NarratorRB:     0x22000,
		MsgPort:        0x22800,
		AudioMsgPort:   0x22c00,
		AudioChanBase:  0x24000,
		TaskBase:       0x25000,
		TrampolineBase: 0x26000,
		StackPointer:   0x1f000,
		LibraryName:    0x27000,
		InputBase:      0x28000,
		RAMSize:        16 * 1024 * 1024,
	}
}

// TranslatorAddrs is the 1 MiB translator address map.
func TranslatorAddrs() Addrs {
	return Addrs{
		ExecBase:       0x1000,
		LibraryBase:    0x4000,
		InputBase:      0x5000,
		OutputBase:     0x6000,
		StackPointer:   0xf000,
		TrampolineBase: 0x7000,
		RAMSize:        1024 * 1024,
	}
}

// Narrator request block field offsets (70 bytes total), grounded bit-
// exactly in original_source/narrator.c's trailing field-layout comment
// (narrator.c:827-852) and its actual field writes (narrator.c:647-664,
// 700-701), which agree with spec.md §4.3's "A1+14" reply-port rule
// (SPEC_FULL.md §3).
const (
	RBNode            = 0
	RBReplyPort       = 14 // mn_ReplyPort: spec.md §4.3 names this offset directly
	RBLength          = 18
	RBDevice          = 20
	RBUnit            = 24
	RBCommand         = 28
	RBFlags           = 30
	RBError           = 31
	RBRealError       = 32
	RBAllocKey        = 32 // ioa_AllocKey shares io_Actual's slot, ADCMD_ALLOCATE only
	RBIOLength        = 36
	RBIOData          = 40
	RBOffset          = 44
	RBRate            = 48
	RBPitch           = 50
	RBMode            = 52 // UWORD
	RBSex             = 54 // UWORD
	RBChannelMasksPtr = 56 // UBYTE *ch_masks (ULONG pointer)
	RBChannelCount    = 60 // UWORD nm_masks
	RBVolume          = 62 // UWORD
	RBSampleFreq      = 64 // UWORD
)

// Device commands used by BeginIO/DoIO.
const (
	CmdWrite      = 3
	CmdStop       = 9
	CmdStart      = 10
	ADCmdFree     = 32 + 2
	ADCmdAllocate = 32
)

// State is the single owned record threading RAM, allocator state, and
// boot-sequence bookkeeping through the dispatcher (spec.md §9 "Global
// mutable state").
type State struct {
	Emu  *emulator.Emulator
	Addr Addrs
	Log  *log.Logger

	AllocMem    uint32
	AllocSignal int32

	// Patched jsr targets inside the trampoline; MakeLibrary and AddTask
	// fill these in when they fire (spec.md §4.2).
	MakeLibraryPatchAddr uint32
	AddTaskPatchAddr     uint32

	// PendingInput is the phonetic text GetMsg copies into InputBase
	// (narrator) or the text copied to InputBase ahead of running the
	// translator's Translate vector.
	PendingInput string

	Output io.Writer

	// ScriptSource, when non-empty, is JS evaluated by the --script
	// escape hatch (SPEC_FULL.md §6) for otherwise-unhandled vectors.
	ScriptSource string

	seq *sequencer

	// Halted becomes true once a stop opcode or a fatal ABI condition is
	// observed; ExitErr carries the reason for guest-reported/ABI errors.
	Halted  bool
	ExitErr error
}

// NewNarratorState builds a State for the narrator binary.
func NewNarratorState(emu *emulator.Emulator, logger *log.Logger, input string) *State {
	a := NarratorAddrs()
	return &State{
		Emu:         emu,
		Addr:        a,
		Log:         logger,
		AllocMem:    0x100000,
		AllocSignal: 31,
		PendingInput: input,
		Output:      os.Stdout,
		seq:         newSequencer(),
	}
}

// NewTranslatorState builds a State for the translator binary.
func NewTranslatorState(emu *emulator.Emulator, logger *log.Logger, input string) *State {
	a := TranslatorAddrs()
	return &State{
		Emu:          emu,
		Addr:         a,
		Log:          logger,
		AllocMem:     0x100000,
		AllocSignal:  31,
		PendingInput: input,
		Output:       os.Stdout,
		seq:          newSequencer(),
	}
}

// AllocRound rounds size up to the next 4-byte multiple (spec.md §3, §8
// invariant 4: every returned pointer is 4-byte aligned).
func AllocRound(size uint32) uint32 {
	return (size + 3) &^ 3
}
