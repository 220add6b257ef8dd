package abi

import (
	"strconv"

	"github.com/dop251/goja"
)

// tryScriptFallback is the --script escape hatch (SPEC_FULL.md §6): when
// an unrecognized jsr d16(A6) vector is hit and the caller supplied a
// diagnostic script, the script gets a chance to supply return register
// values before the dispatcher gives up. With no script configured, every
// unhandled vector is fatal, exactly as spec.md §4.3 requires.
func tryScriptFallback(s *State, arg uint16) error {
	if s.ScriptSource == "" {
		return unhandledVectorError(arg)
	}

	vm := goja.New()
	regs := vm.NewObject()
	for i := 0; i < 8; i++ {
		_ = regs.Set(dName(i), int64(s.Emu.D(i)))
	}
	for i := 0; i < 7; i++ {
		_ = regs.Set(aName(i), int64(s.Emu.A(i)))
	}
	_ = vm.Set("regs", regs)
	_ = vm.Set("vector", int64(arg))

	v, err := vm.RunString(s.ScriptSource)
	if err != nil {
		return unhandledVectorError(arg)
	}

	result := v.ToObject(vm)
	if result == nil {
		return unhandledVectorError(arg)
	}
	handled := result.Get("handled")
	if handled == nil || !handled.ToBoolean() {
		return unhandledVectorError(arg)
	}
	if d0 := result.Get("d0"); d0 != nil {
		s.Emu.SetD(0, uint32(d0.ToInteger()))
	}
	return nil
}

func dName(n int) string { return "D" + strconv.Itoa(n) }
func aName(n int) string { return "A" + strconv.Itoa(n) }
