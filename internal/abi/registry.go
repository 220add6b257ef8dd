package abi

import (
	"sync"

	"github.com/hotdoglinux/amiganarrator/internal/abierr"
	"github.com/hotdoglinux/amiganarrator/internal/emulator"
	"github.com/hotdoglinux/amiganarrator/internal/romtag"
)

// 68000 opcodes the dispatcher recognizes (spec.md §4.3), shared with the
// trampoline builder via internal/romtag.
const (
	opJSRDisplacedA6 = romtag.OpJSRDisplacedA6
	opStop           = romtag.OpStop
	opRTS            = romtag.OpRTS
)

// rtsPatchOffset is the literal absolute address the dispatcher writes
// completed jump-table slots into: 0x10000 + arg (spec.md §4.3, §8
// invariant 6; original_source/narrator.c:532). This is exactly where
// the guest's own `jsr d16(A6)` lands once A6 is reset to the narrator's
// exec_base (0x20000), since 0x20000 + signExtend(disp) == 0x10000 + arg
// for every vector offset in the table — the dispatcher never advances PC
// itself, so the CPU executes the jsr for real and must find a real rts
// already there.
const rtsPatchOffset = 0x10000

// HookFunc implements one ABI vector's observable effect. Returning true
// stops emulation (used by ReplyMsg and the stop-opcode handler).
type HookFunc func(s *State) bool

// VectorDef names one entry of the dispatch table. Category matches one
// of internal/trace's tag strings ("task", "memory", "device-io",
// "message") so DefaultEnricher can classify the resulting event.
type VectorDef struct {
	Arg      uint16
	Name     string
	Category string
	Hook     HookFunc
}

// Registry is a self-registering table of ABI vector handlers, modeled
// on the teacher's stub registry (internal/stubs/registry.go): vector
// packages call Register from init() instead of a central switch.
type Registry struct {
	mu      sync.RWMutex
	vectors map[uint16]*VectorDef
}

// DefaultRegistry is the process-wide registry populated by init()
// functions in exec.go and device.go.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{vectors: make(map[uint16]*VectorDef)}
}

// Register adds a vector definition.
func (r *Registry) Register(def VectorDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectors[def.Arg] = &def
}

func (r *Registry) lookup(arg uint16) (*VectorDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vectors[arg]
	return v, ok
}

// Register adds a vector to the default registry.
func Register(def VectorDef) {
	DefaultRegistry.Register(def)
}

// Dispatcher wires a Registry and a State into the emulator's
// instruction hook.
type Dispatcher struct {
	Registry *Registry
	State    *State
}

// NewDispatcher builds a Dispatcher over the default registry.
func NewDispatcher(s *State) *Dispatcher {
	return &Dispatcher{Registry: DefaultRegistry, State: s}
}

// Install attaches the dispatcher's step function as an instruction hook.
func (d *Dispatcher) Install() {
	d.State.Emu.HookCode(func(emu *emulator.Emulator, addr uint32, size uint32) {
		d.Step(addr)
	})
}

// Step implements spec.md §4.3's tie-break rule: first check for
// jsr d16(A6), then stop, otherwise pass through untouched.
func (d *Dispatcher) Step(pc uint32) {
	if d.State.Halted {
		return
	}
	emu := d.State.Emu

	op := emu.Read16(pc)
	if op == opJSRDisplacedA6 {
		d.dispatchVector(pc)
		return
	}
	if op == opStop {
		d.State.Halted = true
		d.State.Emu.Stop()
		return
	}
}

func (d *Dispatcher) dispatchVector(pc uint32) {
	emu := d.State.Emu
	disp := int16(emu.Read16(pc + 2))
	arg := uint16(disp)

	// Guest code is free to have loaded a different base into A6; reset
	// it to exec_base before dispatch (spec.md §4.3).
	emu.SetA(6, d.State.Addr.ExecBase)

	def, ok := d.Registry.lookup(arg)
	if !ok {
		err := tryScriptFallback(d.State, arg)
		if err != nil {
			d.State.ExitErr = err
			d.State.Halted = true
			d.State.Emu.Stop()
			return
		}
		d.patchReturn(arg)
		return
	}

	stop := def.Hook(d.State)
	if d.State.Log != nil {
		d.State.Log.Trace(pc, def.Category, def.Name, "")
	}

	d.patchReturn(arg)

	if stop || d.State.ExitErr != nil {
		d.State.Halted = true
		d.State.Emu.Stop()
	}
}

// patchReturn writes rts into the jump-table slot so the guest's jsr
// naturally returns (spec.md §4.3, §8 invariant 6). The slot is the
// literal address the CPU's own jsr d16(A6) will land on — not an
// offset from TrampolineBase, which the dispatch path never touches.
func (d *Dispatcher) patchReturn(arg uint16) {
	slot := rtsPatchOffset + uint32(arg)
	d.State.Emu.Write16(slot, opRTS)
}

// unhandledVectorError builds the fatal ABI error spec.md §4.3 requires
// for unhandled jsr d16(A6) arguments.
func unhandledVectorError(arg uint16) error {
	return abierr.Newf(abierr.ABI, "unhandled ABI vector 0x%04x", arg)
}
