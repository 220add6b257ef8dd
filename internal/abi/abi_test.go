package abi

import (
	"bytes"
	"testing"

	"github.com/hotdoglinux/amiganarrator/internal/emulator"
	"github.com/hotdoglinux/amiganarrator/internal/log"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	emu, err := emulator.New(1 << 20)
	if err != nil {
		t.Fatalf("new emulator: %v", err)
	}
	t.Cleanup(func() { emu.Close() })
	return NewNarratorState(emu, log.NewNop(), "/HEH4LOW. /")
}

func TestAllocMemMonotonicAndAligned(t *testing.T) {
	s := newTestState(t)

	s.Emu.SetD(0, 10)
	hookAllocMem(s)
	first := s.Emu.D(0)

	s.Emu.SetD(0, 3)
	hookAllocMem(s)
	second := s.Emu.D(0)

	if second <= first {
		t.Errorf("second alloc 0x%x did not advance past first 0x%x", second, first)
	}
	if second%4 != 0 {
		t.Errorf("allocation 0x%x is not 4-byte aligned", second)
	}
}

func TestAllocSignalMonotonicNonIncreasingNeverNegative(t *testing.T) {
	s := newTestState(t)

	prev := int32(-1)
	for i := 0; i < 64; i++ {
		hookAllocSignal(s)
		got := int32(s.Emu.D(0))
		if got < 0 {
			t.Fatalf("AllocSignal returned negative value %d", got)
		}
		if prev >= 0 && got > prev {
			t.Fatalf("AllocSignal increased: prev=%d got=%d", prev, got)
		}
		prev = got
	}
}

func TestMakeLibraryPatchesJumpTarget(t *testing.T) {
	s := newTestState(t)
	s.MakeLibraryPatchAddr = 0x9000

	s.Emu.SetA(0, 0x8000)
	s.Emu.Write32(0x8000, 0xCAFEBABE)
	s.Emu.Write32(0x8004, 0xFFFFFFFF)

	hookMakeLibrary(s)

	if got := s.Emu.Read32(0x9000); got != 0xCAFEBABE {
		t.Errorf("patched MakeLibrary target = 0x%x, want 0xCAFEBABE", got)
	}
	if got := s.Emu.D(0); got != s.Addr.LibraryBase {
		t.Errorf("D0 = 0x%x, want library base 0x%x", got, s.Addr.LibraryBase)
	}
}

func TestAddTaskPatchesJumpTargetWithA2(t *testing.T) {
	s := newTestState(t)
	s.seq.reached = milestoneMakeLibrary
	s.AddTaskPatchAddr = 0x9100
	s.Emu.SetA(2, 0xDEAD0000)

	hookAddTask(s)

	if got := s.Emu.Read32(0x9100); got != 0xDEAD0000 {
		t.Errorf("patched AddTask target = 0x%x, want 0xDEAD0000", got)
	}
}

func TestGetMsgWritesDistinctChannelMaskBytes(t *testing.T) {
	s := newTestState(t)
	s.seq.reached = milestoneWait

	hookGetMsg(s)

	want := []uint8{3, 5, 10, 12}
	for i, w := range want {
		got := s.Emu.Read8(s.Addr.AudioChanBase + uint32(i))
		if got != w {
			t.Errorf("channel mask byte %d = %d, want %d", i, got, w)
		}
	}

	rb := s.Addr.NarratorRB
	if got := s.Emu.Read32(rb + RBChannelMasksPtr); got != s.Addr.AudioChanBase {
		t.Errorf("ch_masks pointer = 0x%x, want audio chan base 0x%x", got, s.Addr.AudioChanBase)
	}
	if got := s.Emu.Read16(rb + RBChannelCount); got != 4 {
		t.Errorf("nm_masks = %d, want 4", got)
	}
}

func TestGetMsgCopiesPendingInputAndFillsRequestBlock(t *testing.T) {
	s := newTestState(t)
	s.seq.reached = milestoneWait

	hookGetMsg(s)

	rb := s.Addr.NarratorRB
	if cmd := s.Emu.Read16(rb + RBCommand); cmd != CmdWrite {
		t.Errorf("io_Command = %d, want CmdWrite", cmd)
	}
	if length := s.Emu.Read32(rb + RBIOLength); int(length) != len(s.PendingInput) {
		t.Errorf("io_Length = %d, want %d", length, len(s.PendingInput))
	}
	got := s.Emu.ReadCString(s.Addr.InputBase, 256)
	if got != s.PendingInput {
		t.Errorf("copied input = %q, want %q", got, s.PendingInput)
	}
	if ret := s.Emu.D(0); ret != rb {
		t.Errorf("GetMsg returned 0x%x, want request block address 0x%x", ret, rb)
	}
}

func TestBeginIOWritesPCMUnlessAllocate(t *testing.T) {
	s := newTestState(t)
	var buf bytes.Buffer
	s.Output = &buf

	data := []byte{1, 2, 3, 4, 5}
	s.Emu.WriteBlock(0x9000, data)
	s.Emu.Write32(0x2000+RBIOLength, uint32(len(data)))
	s.Emu.Write32(0x2000+RBIOData, 0x9000)
	s.Emu.Write16(0x2000+RBCommand, CmdWrite)
	s.Emu.SetA(1, 0x2000)

	hookBeginIO(s)

	if buf.Len() != len(data) || !bytes.Equal(buf.Bytes(), data) {
		t.Errorf("BeginIO output = %v, want %v", buf.Bytes(), data)
	}
}

func TestBeginIOAllocateDoesNotEmitPCM(t *testing.T) {
	s := newTestState(t)
	var buf bytes.Buffer
	s.Output = &buf

	s.Emu.Write16(0x2000+RBCommand, ADCmdAllocate)
	s.Emu.SetA(1, 0x2000)

	hookBeginIO(s)

	if buf.Len() != 0 {
		t.Errorf("expected no PCM output for ADCMD_ALLOCATE, got %d bytes", buf.Len())
	}
	if got := s.Emu.Read32(0x2000 + RBUnit); got != 0x8 {
		t.Errorf("io_Unit = 0x%x, want 0x8", got)
	}
}

func TestReplyMsgAlwaysTerminatesRegardlessOfIOError(t *testing.T) {
	s := newTestState(t)
	s.seq.reached = milestoneGetMsg
	s.Emu.SetA(1, 0x2000)
	s.Emu.Write8(0x2000+RBError, 0)

	stop := hookReplyMsg(s)

	if !stop {
		t.Fatal("expected ReplyMsg to stop emulation")
	}
	if s.ExitErr == nil {
		t.Error("expected ReplyMsg to set ExitErr even when io_Error is zero")
	}
}

func TestSequencerRejectsOutOfOrderMilestones(t *testing.T) {
	seq := newSequencer()
	if err := seq.Advance(milestoneWait); err != nil {
		t.Fatalf("first advance to Wait should succeed: %v", err)
	}
	if err := seq.Advance(milestoneMakeLibrary); err == nil {
		t.Error("expected out-of-order advance to MakeLibrary to fail")
	}
	if err := seq.Advance(milestoneGetMsg); err != nil {
		t.Errorf("forward advance to GetMsg should succeed: %v", err)
	}
}

func TestDispatcherPatchesRTSIntoVectorSlot(t *testing.T) {
	s := newTestState(t)
	d := NewDispatcher(s)

	d.patchReturn(VecAllocMem)

	// This must be the literal address the CPU's own jsr d16(A6) lands on
	// once A6 is reset to exec_base: exec_base + signExtend(disp) ==
	// rtsPatchOffset + arg. No TrampolineBase term belongs here.
	slot := rtsPatchOffset + uint32(uint16(VecAllocMem))
	if got := s.Emu.Read16(slot); got != opRTS {
		t.Errorf("patched slot = 0x%x, want rts (0x%x)", got, opRTS)
	}
}

// TestDispatcherRoundTripsThroughRealJSR drives an actual jsr d16(A6)
// through the emulator rather than checking patchReturn's formula in
// isolation: it confirms the CPU itself resumes at the caller's next
// instruction after the hook fires, proving the patched rts lands exactly
// where Unicorn's own address arithmetic (exec_base + signExtend(disp))
// will look for it.
func TestDispatcherRoundTripsThroughRealJSR(t *testing.T) {
	s := newTestState(t)
	d := NewDispatcher(s)
	d.Install()

	const callSite = 0x9000
	const stackTop = 0x9800

	s.Emu.SetSP(stackTop)
	s.Emu.SetA(6, s.Addr.ExecBase)
	s.Emu.SetD(0, 10)

	// jsr d16(A6) targeting AllocMem's vector slot, followed immediately
	// by a stop instruction that only executes if rts actually returns
	// control here.
	s.Emu.Write16(callSite, opJSRDisplacedA6)
	s.Emu.Write16(callSite+2, VecAllocMem)
	s.Emu.Write16(callSite+4, opStop)
	s.Emu.Write16(callSite+6, 0x2700)

	wantD0 := s.AllocMem

	if err := s.Emu.RunFrom(callSite); err != nil {
		t.Fatalf("RunFrom: %v", err)
	}
	if !s.Halted {
		t.Fatal("expected emulation to reach the stop instruction after the jsr returned")
	}
	if got := s.Emu.D(0); got != wantD0 {
		t.Errorf("D0 = 0x%x, want AllocMem hook's return value 0x%x", got, wantD0)
	}
}

func TestUnhandledVectorWithoutScriptIsFatal(t *testing.T) {
	s := newTestState(t)
	if err := tryScriptFallback(s, 0x1234); err == nil {
		t.Error("expected an error with no script configured")
	}
}
