package emulator

import "testing"

func TestReadWrite32RoundTrip(t *testing.T) {
	e, err := New(0x1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	e.Write32(0x10, 0xdeadbeef)
	if got := e.Read32(0x10); got != 0xdeadbeef {
		t.Errorf("Read32 = 0x%x, want 0xdeadbeef", got)
	}
}

func TestOutOfBoundsReadReturnsSentinel(t *testing.T) {
	e, err := New(0x1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	var faulted bool
	e.OnAddressFault = func(addr, size uint32, write bool) {
		faulted = true
	}

	if got := e.Read32(0xFFFFFFF0); got != 0 {
		t.Errorf("out-of-bounds Read32 = 0x%x, want 0", got)
	}
	if !faulted {
		t.Error("expected OnAddressFault to be invoked for OOB read")
	}
}

func TestOutOfBoundsWriteIsDropped(t *testing.T) {
	e, err := New(0x1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	var faulted bool
	e.OnAddressFault = func(addr, size uint32, write bool) {
		faulted = true
	}

	e.Write32(0x2000, 0x12345678) // beyond ramSize
	if !faulted {
		t.Error("expected OnAddressFault to be invoked for OOB write")
	}
}

func TestRegisterAccessors(t *testing.T) {
	e, err := New(0x1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	e.SetD(0, 42)
	if got := e.D(0); got != 42 {
		t.Errorf("D(0) = %d, want 42", got)
	}

	e.SetA(6, 0x23000)
	if got := e.A(6); got != 0x23000 {
		t.Errorf("A(6) = 0x%x, want 0x23000", got)
	}

	e.SetSP(0x1f000)
	if got := e.SP(); got != 0x1f000 {
		t.Errorf("SP() = 0x%x, want 0x1f000", got)
	}
}

func TestCStringRoundTrip(t *testing.T) {
	e, err := New(0x1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	e.WriteCString(0x100, "narrator.device")
	if got := e.ReadCString(0x100, 64); got != "narrator.device" {
		t.Errorf("ReadCString = %q, want %q", got, "narrator.device")
	}
}
