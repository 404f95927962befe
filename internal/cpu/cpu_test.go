package cpu

import (
	"testing"

	"github.com/mwilloughby/gbcore/internal/bus"
)

func newCPUWithROM(code []byte) *CPU {
	rom := make([]byte, 0x8000)
	copy(rom, code)
	b, err := bus.New(rom)
	if err != nil {
		panic(err)
	}
	return New(b)
}

func TestCPU_NopAndPC(t *testing.T) {
	c := newCPUWithROM([]byte{0x00})
	if cycles := c.Step(); cycles != 4 {
		t.Fatalf("NOP cycles got %d want 4", cycles)
	}
	if c.PC != 1 {
		t.Fatalf("PC after NOP got %#04x want 0x0001", c.PC)
	}
}

func TestCPU_LD_A_d8_And_XOR_A(t *testing.T) {
	c := newCPUWithROM([]byte{0x3E, 0x12, 0xAF})
	c.Step()
	if c.A != 0x12 {
		t.Fatalf("A after LD got %02x want 12", c.A)
	}
	c.Step()
	if c.A != 0x00 {
		t.Fatalf("A after XOR got %02x want 00", c.A)
	}
	if c.F&0x80 == 0 {
		t.Fatalf("Z flag not set after XOR A")
	}
}

func TestCPU_LD_r_HL(t *testing.T) {
	// LD HL,C000; LD (HL),0x42; LD B,(HL)  -- exercises the previously-gap'd
	// 0x46-style LD r,(HL) encoding.
	prog := []byte{0x21, 0x00, 0xC0, 0x36, 0x42, 0x46}
	c := newCPUWithROM(prog)
	c.Step()
	c.Step()
	c.Step()
	if c.B != 0x42 {
		t.Fatalf("LD B,(HL) got %02x want 42", c.B)
	}
}

func TestCPU_LD_a16_A_and_LD_A_a16(t *testing.T) {
	prog := []byte{0x3E, 0x77, 0xEA, 0x00, 0xC0, 0x3E, 0x00, 0xFA, 0x00, 0xC0}
	c := newCPUWithROM(prog)
	c.Step()
	c.Step()
	if a := c.bus.Read(0xC000); a != 0x77 {
		t.Fatalf("WRAM at C000 got %02x want 77", a)
	}
	c.Step()
	c.Step()
	if c.A != 0x77 {
		t.Fatalf("A after LD A,(C000) got %02x want 77", c.A)
	}
}

func TestCPU_JP_and_JR(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0xC3
	rom[0x0001] = 0x10
	rom[0x0002] = 0x00
	rom[0x0010] = 0x18
	rom[0x0011] = 0xFE
	b, _ := bus.New(rom)
	c := New(b)
	cycles := c.Step()
	if cycles != 16 || c.PC != 0x0010 {
		t.Fatalf("JP cycles=%d PC=%#04x want cycles=16 PC=0x0010", cycles, c.PC)
	}
	pcBefore := c.PC
	c.Step()
	if c.PC != pcBefore {
		t.Fatalf("JR -2 PC got %#04x want %#04x", c.PC, pcBefore)
	}
}

func TestCPU_INC_B_Flags(t *testing.T) {
	c := newCPUWithROM([]byte{0x04, 0x04})
	c.B = 0x0F
	c.F = 0x10
	c.Step()
	if c.B != 0x10 {
		t.Fatalf("INC B result got %02x want 10", c.B)
	}
	if c.F&0x20 == 0 {
		t.Fatalf("INC B should set H flag")
	}
	if c.F&0x10 == 0 {
		t.Fatalf("INC B should preserve C flag")
	}
	c.B = 0xFF
	c.Step()
	if c.B != 0x00 || c.F&0x80 == 0 {
		t.Fatalf("INC B to 0 should set Z flag, B=%02x, F=%02x", c.B, c.F)
	}
}

func TestCPU_CALL_RET(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0xCD
	rom[0x0001] = 0x05
	rom[0x0002] = 0x00
	rom[0x0005] = 0xC9
	b, _ := bus.New(rom)
	c := New(b)
	c.Step()
	if c.PC != 0x0005 {
		t.Fatalf("PC after CALL got %04x want 0005", c.PC)
	}
	retCycles := c.Step()
	if c.PC != 0x0003 || retCycles != 16 {
		t.Fatalf("RET did not return to 0003; PC=%04x cyc=%d", c.PC, retCycles)
	}
}

func TestCPU_PushPopAF_MasksLowNibble(t *testing.T) {
	c := newCPUWithROM([]byte{0xF5, 0xF1}) // PUSH AF; POP AF
	c.A = 0x12
	c.F = 0xFF // low nibble must never be settable
	c.Step()
	c.F = 0x00
	c.A = 0x00
	c.Step()
	if c.A != 0x12 {
		t.Fatalf("A after POP AF got %02x want 12", c.A)
	}
	if c.F&0x0F != 0 {
		t.Fatalf("F after POP AF got %02x, low nibble must be zero", c.F)
	}
}

func TestCPU_SWAP_IsSelfInverse(t *testing.T) {
	c := newCPUWithROM([]byte{0xCB, 0x37, 0xCB, 0x37}) // SWAP A, SWAP A
	c.A = 0xA5
	c.Step()
	if c.A != 0x5A {
		t.Fatalf("SWAP A got %02x want 5A", c.A)
	}
	c.Step()
	if c.A != 0xA5 {
		t.Fatalf("SWAP(SWAP(v)) got %02x want original A5", c.A)
	}
}

func TestCPU_DAA_RoundTripsBCDAddition(t *testing.T) {
	// LD A,0x45; ADD A,0x38 (binary 0x7D); DAA -> should read as BCD 83.
	c := newCPUWithROM([]byte{0x3E, 0x45, 0xC6, 0x38, 0x27})
	c.Step()
	c.Step()
	c.Step()
	if c.A != 0x83 {
		t.Fatalf("DAA result got %#02x want 0x83", c.A)
	}
}

func TestCPU_UnknownOpcodeEntersDiagnosticHalt(t *testing.T) {
	c := newCPUWithROM([]byte{0xD3}) // forbidden opcode
	c.Step()
	if !c.DiagnosticHalt() {
		t.Fatalf("expected diagnostic halt after forbidden opcode")
	}
	if c.Err() == nil {
		t.Fatalf("expected a non-nil UnknownOpcode error")
	}
	pcBefore := c.PC
	c.Step()
	if c.PC != pcBefore {
		t.Fatalf("diagnostic halt must never fetch again, PC moved from %#04x to %#04x", pcBefore, c.PC)
	}
}
