// Package emulator wraps Unicorn Engine for Motorola 68000 emulation.
package emulator

import (
	"encoding/binary"
	"fmt"
	"sync"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

// AddressHookFunc is called when execution reaches a specific address.
// Returning true stops emulation.
type AddressHookFunc func(emu *Emulator) bool

// CodeHookFunc is called before every instruction.
type CodeHookFunc func(emu *Emulator, addr uint32, size uint32)

// Emulator wraps a Unicorn M68K context over a single flat RAM region.
type Emulator struct {
	mu uc.Unicorn

	ramSize uint32

	codeHooks []CodeHookFunc
	addrHooks map[uint32]AddressHookFunc
	hooksMu   sync.RWMutex

	stopped bool

	// OnAddressFault is called whenever a memory access falls outside
	// [0, ramSize). Reads return a zero-filled sentinel; writes are
	// dropped. Never nil after New.
	OnAddressFault func(addr uint32, size uint32, write bool)
}

// New creates an M68K emulator over a ramSize-byte flat address space
// mapped starting at address 0.
func New(ramSize uint32) (*Emulator, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_M68K, uc.MODE_BIG_ENDIAN)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}

	e := &Emulator{
		mu:             mu,
		ramSize:        ramSize,
		addrHooks:      make(map[uint32]AddressHookFunc),
		OnAddressFault: func(uint32, uint32, bool) {},
	}

	if err := mu.MemMap(0, uint64(ramSize)); err != nil {
		mu.Close()
		return nil, fmt.Errorf("map ram (0x%x bytes): %w", ramSize, err)
	}

	if err := e.setupHooks(); err != nil {
		mu.Close()
		return nil, err
	}

	return e, nil
}

func (e *Emulator) setupHooks() error {
	_, err := e.mu.HookAdd(uc.HOOK_CODE, func(_ uc.Unicorn, addr64 uint64, size uint32) {
		if e.stopped {
			e.mu.Stop()
			return
		}
		addr := uint32(addr64)

		e.hooksMu.RLock()
		hook, ok := e.addrHooks[addr]
		e.hooksMu.RUnlock()

		if ok {
			if hook(e) {
				e.Stop()
				return
			}
		}

		for _, h := range e.codeHooks {
			h(e, addr, size)
		}
	}, 1, 0)
	return err
}

// Close releases the underlying Unicorn context.
func (e *Emulator) Close() error {
	return e.mu.Close()
}

// RAMSize returns the size of the flat address space in bytes.
func (e *Emulator) RAMSize() uint32 {
	return e.ramSize
}

func (e *Emulator) inBounds(addr, size uint32) bool {
	if size == 0 {
		return addr <= e.ramSize
	}
	end := uint64(addr) + uint64(size)
	return end <= uint64(e.ramSize)
}

// Read32 reads a big-endian 32-bit longword. Out-of-bounds reads return 0
// and invoke OnAddressFault, never panicking or propagating an error (§3,
// §7 address-space error policy: recoverable, sentinel value, logged).
func (e *Emulator) Read32(addr uint32) uint32 {
	if !e.inBounds(addr, 4) {
		e.OnAddressFault(addr, 4, false)
		return 0
	}
	data, err := e.mu.MemRead(uint64(addr), 4)
	if err != nil {
		e.OnAddressFault(addr, 4, false)
		return 0
	}
	return binary.BigEndian.Uint32(data)
}

// Write32 writes a big-endian 32-bit longword. Out-of-bounds writes are
// dropped silently (after invoking OnAddressFault).
func (e *Emulator) Write32(addr, val uint32) {
	if !e.inBounds(addr, 4) {
		e.OnAddressFault(addr, 4, true)
		return
	}
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, val)
	_ = e.mu.MemWrite(uint64(addr), data)
}

// Read16 reads a big-endian 16-bit word.
func (e *Emulator) Read16(addr uint32) uint16 {
	if !e.inBounds(addr, 2) {
		e.OnAddressFault(addr, 2, false)
		return 0
	}
	data, err := e.mu.MemRead(uint64(addr), 2)
	if err != nil {
		e.OnAddressFault(addr, 2, false)
		return 0
	}
	return binary.BigEndian.Uint16(data)
}

// Write16 writes a big-endian 16-bit word.
func (e *Emulator) Write16(addr uint32, val uint16) {
	if !e.inBounds(addr, 2) {
		e.OnAddressFault(addr, 2, true)
		return
	}
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, val)
	_ = e.mu.MemWrite(uint64(addr), data)
}

// Read8 reads a single byte.
func (e *Emulator) Read8(addr uint32) uint8 {
	if !e.inBounds(addr, 1) {
		e.OnAddressFault(addr, 1, false)
		return 0
	}
	data, err := e.mu.MemRead(uint64(addr), 1)
	if err != nil {
		e.OnAddressFault(addr, 1, false)
		return 0
	}
	return data[0]
}

// Write8 writes a single byte.
func (e *Emulator) Write8(addr uint32, val uint8) {
	if !e.inBounds(addr, 1) {
		e.OnAddressFault(addr, 1, true)
		return
	}
	_ = e.mu.MemWrite(uint64(addr), []byte{val})
}

// ReadBlock reads a byte slice of the given length. Entirely out-of-range
// reads return a zero-filled sentinel, matching the single-access policy.
func (e *Emulator) ReadBlock(addr uint32, length int) []byte {
	if length <= 0 {
		return nil
	}
	if !e.inBounds(addr, uint32(length)) {
		e.OnAddressFault(addr, uint32(length), false)
		return make([]byte, length)
	}
	data, err := e.mu.MemRead(uint64(addr), uint64(length))
	if err != nil {
		e.OnAddressFault(addr, uint32(length), false)
		return make([]byte, length)
	}
	return data
}

// WriteBlock writes a byte slice verbatim.
func (e *Emulator) WriteBlock(addr uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	if !e.inBounds(addr, uint32(len(data))) {
		e.OnAddressFault(addr, uint32(len(data)), true)
		return
	}
	_ = e.mu.MemWrite(uint64(addr), data)
}

// ReadCString reads a NUL-terminated string, never reading past ramSize.
func (e *Emulator) ReadCString(addr uint32, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 4096
	}
	var out []byte
	for i := 0; i < maxLen; i++ {
		a := addr + uint32(i)
		if !e.inBounds(a, 1) {
			break
		}
		b := e.Read8(a)
		if b == 0 {
			break
		}
		out = append(out, b)
	}
	return string(out)
}

// WriteCString writes s followed by a NUL terminator.
func (e *Emulator) WriteCString(addr uint32, s string) {
	e.WriteBlock(addr, append([]byte(s), 0))
}

// D returns data register Dn (0-7).
func (e *Emulator) D(n int) uint32 {
	reg, ok := dataReg(n)
	if !ok {
		return 0
	}
	v, _ := e.mu.RegRead(reg)
	return uint32(v)
}

// SetD sets data register Dn.
func (e *Emulator) SetD(n int, val uint32) {
	if reg, ok := dataReg(n); ok {
		_ = e.mu.RegWrite(reg, uint64(val))
	}
}

// A returns address register An (0-7); A7 is the stack pointer.
func (e *Emulator) A(n int) uint32 {
	reg, ok := addrReg(n)
	if !ok {
		return 0
	}
	v, _ := e.mu.RegRead(reg)
	return uint32(v)
}

// SetA sets address register An.
func (e *Emulator) SetA(n int, val uint32) {
	if reg, ok := addrReg(n); ok {
		_ = e.mu.RegWrite(reg, uint64(val))
	}
}

// PC returns the program counter.
func (e *Emulator) PC() uint32 {
	v, _ := e.mu.RegRead(uc.M68K_REG_PC)
	return uint32(v)
}

// SetPC sets the program counter.
func (e *Emulator) SetPC(val uint32) {
	_ = e.mu.RegWrite(uc.M68K_REG_PC, uint64(val))
}

// SP returns the stack pointer (A7).
func (e *Emulator) SP() uint32 {
	return e.A(7)
}

// SetSP sets the stack pointer (A7).
func (e *Emulator) SetSP(val uint32) {
	e.SetA(7, val)
}

func dataReg(n int) (int, bool) {
	switch n {
	case 0:
		return uc.M68K_REG_D0, true
	case 1:
		return uc.M68K_REG_D1, true
	case 2:
		return uc.M68K_REG_D2, true
	case 3:
		return uc.M68K_REG_D3, true
	case 4:
		return uc.M68K_REG_D4, true
	case 5:
		return uc.M68K_REG_D5, true
	case 6:
		return uc.M68K_REG_D6, true
	case 7:
		return uc.M68K_REG_D7, true
	}
	return 0, false
}

func addrReg(n int) (int, bool) {
	switch n {
	case 0:
		return uc.M68K_REG_A0, true
	case 1:
		return uc.M68K_REG_A1, true
	case 2:
		return uc.M68K_REG_A2, true
	case 3:
		return uc.M68K_REG_A3, true
	case 4:
		return uc.M68K_REG_A4, true
	case 5:
		return uc.M68K_REG_A5, true
	case 6:
		return uc.M68K_REG_A6, true
	case 7:
		return uc.M68K_REG_A7, true
	}
	return 0, false
}

// HookCode registers a hook called before every instruction.
func (e *Emulator) HookCode(fn CodeHookFunc) {
	e.codeHooks = append(e.codeHooks, fn)
}

// HookAddress registers a hook for one specific address.
func (e *Emulator) HookAddress(addr uint32, fn AddressHookFunc) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.addrHooks[addr] = fn
}

// RunFrom starts emulation at the given PC and runs until Stop is called
// or the CPU halts (stop opcode).
func (e *Emulator) RunFrom(start uint32) error {
	e.stopped = false
	return e.mu.Start(uint64(start), 0)
}

// Stop halts emulation at the next instruction boundary.
func (e *Emulator) Stop() {
	e.stopped = true
	e.mu.Stop()
}
