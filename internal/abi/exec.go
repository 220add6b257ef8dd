package abi

// Task/memory/signal primitive vectors (spec.md §4.3 table).

const (
	VecMakeLibrary = 0xFFAC
	VecAllocMem    = 0xFF3A
	VecFreeMem     = 0xFF2E
	VecAllocSignal = 0xFEB6
	VecFreeSignal  = 0xFEB0
	VecFindTask    = 0xFEDA
	VecAddTask     = 0xFEE6
	VecSetTaskPri  = 0xFED4
	VecWait        = 0xFEC2
	VecSignal      = 0xFEBC
)

func init() {
	Register(VectorDef{Arg: VecMakeLibrary, Name: "MakeLibrary", Category: "task", Hook: hookMakeLibrary})
	Register(VectorDef{Arg: VecAllocMem, Name: "AllocMem", Category: "memory", Hook: hookAllocMem})
	Register(VectorDef{Arg: VecFreeMem, Name: "FreeMem", Category: "memory", Hook: hookNoop})
	Register(VectorDef{Arg: VecAllocSignal, Name: "AllocSignal", Category: "task", Hook: hookAllocSignal})
	Register(VectorDef{Arg: VecFreeSignal, Name: "FreeSignal", Category: "task", Hook: hookNoop})
	Register(VectorDef{Arg: VecFindTask, Name: "FindTask", Category: "task", Hook: hookFindTask})
	Register(VectorDef{Arg: VecAddTask, Name: "AddTask", Category: "task", Hook: hookAddTask})
	Register(VectorDef{Arg: VecSetTaskPri, Name: "SetTaskPri", Category: "task", Hook: hookNoop})
	Register(VectorDef{Arg: VecWait, Name: "Wait", Category: "task", Hook: hookWait})
	Register(VectorDef{Arg: VecSignal, Name: "Signal", Category: "task", Hook: hookNoop})
}

func hookNoop(s *State) bool { return false }

// hookMakeLibrary reads up to eight 32-bit vectors from A0 (0xFFFFFFFF
// terminates early) and stores vector[0] — the library's Open entry
// point — as the trampoline's patched MakeLibrary jsr target.
func hookMakeLibrary(s *State) bool {
	a0 := s.Emu.A(0)
	var vectors [8]uint32
	for i := 0; i < 8; i++ {
		v := s.Emu.Read32(a0 + uint32(i)*4)
		if v == 0xFFFFFFFF {
			break
		}
		vectors[i] = v
	}
	if s.MakeLibraryPatchAddr != 0 {
		s.Emu.Write32(s.MakeLibraryPatchAddr, vectors[0])
	}
	s.Emu.SetD(0, s.Addr.LibraryBase)
	if err := s.seq.Advance(milestoneMakeLibrary); err != nil {
		s.ExitErr = err
		return true
	}
	return false
}

func hookAllocMem(s *State) bool {
	size := s.Emu.D(0)
	ret := s.AllocMem
	s.Emu.SetD(0, ret)
	s.AllocMem += AllocRound(size)
	return false
}

func hookAllocSignal(s *State) bool {
	ret := s.AllocSignal
	if ret < 0 {
		ret = 0
	}
	s.Emu.SetD(0, uint32(ret))
	if s.AllocSignal > 0 {
		s.AllocSignal--
	}
	return false
}

func hookFindTask(s *State) bool {
	s.Emu.SetD(0, s.Addr.TaskBase)
	return false
}

// hookAddTask patches the trampoline's AddTask jsr target with A2 (the
// task's initial PC) and returns task_base in D0.
func hookAddTask(s *State) bool {
	initialPC := s.Emu.A(2)
	if s.AddTaskPatchAddr != 0 {
		s.Emu.Write32(s.AddTaskPatchAddr, initialPC)
	}
	s.Emu.SetD(0, s.Addr.TaskBase)
	if err := s.seq.Advance(milestoneAddTask); err != nil {
		s.ExitErr = err
		return true
	}
	return false
}

// hookWait resets A2 to library_base to force the guest's waiting task
// loop to look at the library base (spec.md §4.3).
func hookWait(s *State) bool {
	s.Emu.SetA(2, s.Addr.LibraryBase)
	if err := s.seq.Advance(milestoneWait); err != nil {
		s.ExitErr = err
		return true
	}
	return false
}
