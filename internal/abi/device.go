package abi

import (
	"github.com/hotdoglinux/amiganarrator/internal/abierr"
	"github.com/hotdoglinux/amiganarrator/internal/log"
)

// Device I/O and message-passing vectors (spec.md §4.3 table).

const (
	VecAddDevice  = 0xFE50
	VecOpenDevice = 0xFE44
	VecPutMsg     = 0xFE92
	VecReplyMsg   = 0xFE86
	VecGetMsg     = 0xFE8C
	VecDoIO       = 0xFE38
	VecWaitIO     = 0xFE26
	VecBeginIO    = 0xFFE2
)

func init() {
	Register(VectorDef{Arg: VecAddDevice, Name: "AddDevice", Category: "device-io", Hook: hookNoop})
	Register(VectorDef{Arg: VecOpenDevice, Name: "OpenDevice", Category: "device-io", Hook: hookOpenDevice})
	Register(VectorDef{Arg: VecPutMsg, Name: "PutMsg", Category: "message", Hook: hookNoop})
	Register(VectorDef{Arg: VecReplyMsg, Name: "ReplyMsg", Category: "message", Hook: hookReplyMsg})
	Register(VectorDef{Arg: VecGetMsg, Name: "GetMsg", Category: "message", Hook: hookGetMsg})
	Register(VectorDef{Arg: VecDoIO, Name: "DoIO", Category: "device-io", Hook: hookDoIO})
	Register(VectorDef{Arg: VecWaitIO, Name: "WaitIO", Category: "device-io", Hook: hookWaitIO})
	Register(VectorDef{Arg: VecBeginIO, Name: "BeginIO", Category: "device-io", Hook: hookBeginIO})
}

// hookOpenDevice writes audio_msg_port into the request block's
// mn_ReplyPort field and reports success.
func hookOpenDevice(s *State) bool {
	rb := s.Emu.A(1)
	s.Emu.Write32(rb+RBReplyPort, s.Addr.AudioMsgPort)
	s.Emu.SetD(0, 0)
	return false
}

// hookReplyMsg is the documented process-termination point (spec.md §6):
// the narrator always exits here, regardless of io_Error, so it is always
// fatal-but-clean (abierr.GuestReported) rather than conditionally fatal.
func hookReplyMsg(s *State) bool {
	rb := s.Emu.A(1)
	ioErr := s.Emu.Read8(rb + RBError)
	if s.Log != nil {
		s.Log.Trace(s.Emu.PC(), "message", "ReplyMsg", log.Hex(uint32(ioErr)))
	}
	if err := s.seq.Advance(milestoneReplyMsg); err != nil {
		s.ExitErr = err
		return true
	}
	s.ExitErr = replyMsgExit(ioErr)
	return true
}

// hookGetMsg fills in the narrator request block with the pending
// phonetic input and default voice parameters, and returns its address.
func hookGetMsg(s *State) bool {
	rb := s.Addr.NarratorRB

	s.Emu.WriteCString(s.Addr.InputBase, s.PendingInput)

	s.Emu.Write16(rb+RBCommand, CmdWrite)
	s.Emu.Write32(rb+RBIOLength, uint32(len(s.PendingInput)))
	s.Emu.Write32(rb+RBIOData, s.Addr.InputBase)

	s.Emu.Write16(rb+RBRate, 150)
	s.Emu.Write16(rb+RBPitch, 110)
	s.Emu.Write16(rb+RBMode, 0)
	s.Emu.Write16(rb+RBSex, 0)
	s.Emu.Write16(rb+RBVolume, 64)
	s.Emu.Write16(rb+RBSampleFreq, 22200)

	// Four distinct channel-mask bytes, one per channel (spec.md §4.3),
	// referenced from the request block via the ch_masks pointer field
	// (original_source/narrator.c:662).
	s.Emu.Write8(s.Addr.AudioChanBase+0, 3)
	s.Emu.Write8(s.Addr.AudioChanBase+1, 5)
	s.Emu.Write8(s.Addr.AudioChanBase+2, 10)
	s.Emu.Write8(s.Addr.AudioChanBase+3, 12)
	s.Emu.Write32(rb+RBChannelMasksPtr, s.Addr.AudioChanBase)
	s.Emu.Write16(rb+RBChannelCount, 4)

	s.Emu.SetD(0, rb)
	if err := s.seq.Advance(milestoneGetMsg); err != nil {
		s.ExitErr = err
		return true
	}
	return false
}

// hookDoIO clears io_Error for ADCMD_FREE; CMD_STOP/CMD_START are no-ops.
func hookDoIO(s *State) bool {
	rb := s.Emu.A(1)
	cmd := s.Emu.Read16(rb + RBCommand)
	if cmd == ADCmdFree {
		s.Emu.Write8(rb+RBError, 0)
	}
	s.Emu.SetD(0, 0)
	return false
}

func hookWaitIO(s *State) bool {
	s.Emu.SetD(0, 0)
	return false
}

// hookBeginIO resolves the io_Command = 3 typo documented in spec.md §9:
// every request is treated as CMD_WRITE (PCM emitted to Output) unless
// io_Command is explicitly ADCMD_ALLOCATE.
func hookBeginIO(s *State) bool {
	rb := s.Emu.A(1)
	cmd := s.Emu.Read16(rb + RBCommand)

	if cmd == ADCmdAllocate {
		s.Emu.Write8(rb+RBError, 0)
		s.Emu.Write32(rb+RBUnit, 0x8)
		s.Emu.Write16(rb+RBAllocKey, 0xAAAA)
		return false
	}

	length := s.Emu.Read32(rb + RBIOLength)
	data := s.Emu.Read32(rb + RBIOData)
	if length > 0 && s.Output != nil {
		pcm := s.Emu.ReadBlock(data, int(length))
		_, _ = s.Output.Write(pcm)
	}
	s.Emu.Write8(rb+RBError, 0)
	return false
}

// replyMsgExit always reports a guest-reported exit: spec.md §6 documents
// ReplyMsg as the narrator's sole, unconditional termination point.
func replyMsgExit(ioErr uint8) error {
	if ioErr != 0 {
		return abierr.Newf(abierr.GuestReported, "narrator reported io_Error=%d at ReplyMsg", ioErr)
	}
	return abierr.New(abierr.GuestReported, "narrator terminated at ReplyMsg")
}
