// Package cpu implements the SM83 instruction set: the 256 base and 256
// CB-prefixed opcodes, register/flag state, and the interrupt dispatch,
// HALT, and EI-delay semantics documented in SPEC_FULL.md §4.4.
package cpu

import (
	"fmt"
	"log/slog"

	"github.com/mwilloughby/gbcore/internal/addr"
	"github.com/mwilloughby/gbcore/internal/bus"
)

// UnknownOpcode is raised (as a permanent diagnostic halt, not a panic) when
// the CPU fetches one of the forbidden/undefined SM83 opcodes.
type UnknownOpcode struct {
	Opcode byte
	PC     uint16
	Prefix bool
}

func (e *UnknownOpcode) Error() string {
	if e.Prefix {
		return fmt.Sprintf("unknown opcode CB %#02x at PC %#04x", e.Opcode, e.PC)
	}
	return fmt.Sprintf("unknown opcode %#02x at PC %#04x", e.Opcode, e.PC)
}

const (
	flagZ byte = 1 << 7
	flagN byte = 1 << 6
	flagH byte = 1 << 5
	flagC byte = 1 << 4
)

// dispatch tracks the in-progress interrupt-dispatch state machine: five
// machine-cycle steps (two idle, push PC high, push PC low + cancel check,
// vector select), never collapsed into a single atomic jump so that each
// step's 4 T-cycles and the mid-dispatch cancel are independently callable.
type dispatch struct {
	step      int // 0 = idle, 1..5 = in progress
	pending   byte
	cancelled bool
}

// CPU implements the SM83 core: registers, flags, interrupt dispatch, HALT,
// and EI-delay state, driving reads/writes through the Bus.
type CPU struct {
	A, F byte
	B, C byte
	D, E byte
	H, L byte

	SP uint16
	PC uint16

	IME      bool
	eiPending bool
	eiArmed   bool

	halted bool
	haltBug bool

	diagnosticHalt bool
	lastErr        error

	dispatch dispatch

	bus *bus.Bus
	log *slog.Logger
}

// New creates a CPU wired to the given bus, with PC at zero (suitable for
// boot-ROM execution; call ResetNoBoot for a post-boot register state).
func New(b *bus.Bus) *CPU {
	return &CPU{bus: b, SP: 0xFFFE, PC: 0x0000, log: slog.Default()}
}

func (c *CPU) SetPC(pc uint16)          { c.PC = pc }
func (c *CPU) Bus() *bus.Bus            { return c.bus }
func (c *CPU) SetLogger(l *slog.Logger) { c.log = l }

// Halted reports whether the CPU is asleep waiting for an interrupt.
func (c *CPU) Halted() bool { return c.halted }

// DiagnosticHalt reports whether the CPU hit an UnknownOpcode and will
// never fetch again; Err returns that error.
func (c *CPU) DiagnosticHalt() bool { return c.diagnosticHalt }
func (c *CPU) Err() error           { return c.lastErr }

// ResetNoBoot sets registers to the documented DMG post-boot state, for
// running cartridges without a boot ROM image.
func (c *CPU) ResetNoBoot() {
	c.A, c.F = 0x01, 0xB0
	c.B, c.C = 0x00, 0x13
	c.D, c.E = 0x00, 0xD8
	c.H, c.L = 0x01, 0x4D
	c.SP = 0xFFFE
	c.IME = false
	c.halted = false
	c.haltBug = false
	c.eiPending = false
	c.eiArmed = false
}

func (c *CPU) setZNHC(z, n, h, carry bool) {
	var f byte
	if z {
		f |= flagZ
	}
	if n {
		f |= flagN
	}
	if h {
		f |= flagH
	}
	if carry {
		f |= flagC
	}
	c.F = f
}

func (c *CPU) add8(a, b byte) (res byte, z, n, h, cy bool) {
	r := uint16(a) + uint16(b)
	res = byte(r)
	z = res == 0
	h = ((a & 0x0F) + (b & 0x0F)) > 0x0F
	cy = r > 0xFF
	return
}

func (c *CPU) adc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	r := uint16(a) + uint16(b) + uint16(ci)
	res = byte(r)
	z = res == 0
	h = ((a & 0x0F) + (b & 0x0F) + ci) > 0x0F
	cy = r > 0xFF
	return
}

func (c *CPU) sub8(a, b byte) (res byte, z, n, h, cy bool) {
	r := int16(a) - int16(b)
	res = byte(r)
	z = res == 0
	n = true
	h = (a & 0x0F) < (b & 0x0F)
	cy = int16(a) < int16(b)
	return
}

func (c *CPU) sbc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	r := int16(a) - int16(b) - int16(ci)
	res = byte(r)
	z = res == 0
	n = true
	h = (a & 0x0F) < ((b & 0x0F) + ci)
	cy = int16(a) < int16(b)+int16(ci)
	return
}

func (c *CPU) and8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a & b
	z = res == 0
	h = true
	return
}

func (c *CPU) xor8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a ^ b
	z = res == 0
	return
}

func (c *CPU) or8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a | b
	z = res == 0
	return
}

func (c *CPU) cp8(a, b byte) (z, n, h, cy bool) {
	_, z, n, h, cy = c.sub8(a, b)
	return
}

func (c *CPU) read8(a uint16) byte     { return c.bus.Read(a) }
func (c *CPU) write8(a uint16, v byte) { c.bus.Write(a, v) }

func (c *CPU) fetch8() byte {
	v := c.read8(c.PC)
	c.PC++
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch8())
	hi := uint16(c.fetch8())
	return lo | (hi << 8)
}

func (c *CPU) read16(a uint16) uint16 {
	lo := uint16(c.read8(a))
	hi := uint16(c.read8(a + 1))
	return lo | (hi << 8)
}

func (c *CPU) write16(a uint16, v uint16) {
	c.write8(a, byte(v))
	c.write8(a+1, byte(v>>8))
}

func (c *CPU) getAF() uint16  { return uint16(c.A)<<8 | uint16(c.F&0xF0) }
func (c *CPU) setAF(v uint16) { c.A = byte(v >> 8); c.F = byte(v) & 0xF0 }
func (c *CPU) getBC() uint16  { return uint16(c.B)<<8 | uint16(c.C) }
func (c *CPU) setBC(v uint16) { c.B = byte(v >> 8); c.C = byte(v) }
func (c *CPU) getDE() uint16  { return uint16(c.D)<<8 | uint16(c.E) }
func (c *CPU) setDE(v uint16) { c.D = byte(v >> 8); c.E = byte(v) }
func (c *CPU) getHL() uint16  { return uint16(c.H)<<8 | uint16(c.L) }
func (c *CPU) setHL(v uint16) { c.H = byte(v >> 8); c.L = byte(v) }

func (c *CPU) push16(v uint16) {
	c.SP -= 2
	c.write16(c.SP, v)
}

func (c *CPU) pop16() uint16 {
	v := c.read16(c.SP)
	c.SP += 2
	return v
}

// getReg and setReg are a pointer-free accessor pair for one of the eight
// 3-bit register codes used throughout the opcode table; index 6 means (HL).
func (c *CPU) getReg(idx byte) byte {
	switch idx {
	case 0:
		return c.B
	case 1:
		return c.C
	case 2:
		return c.D
	case 3:
		return c.E
	case 4:
		return c.H
	case 5:
		return c.L
	case 6:
		return c.read8(c.getHL())
	default:
		return c.A
	}
}

func (c *CPU) setReg(idx byte, v byte) {
	switch idx {
	case 0:
		c.B = v
	case 1:
		c.C = v
	case 2:
		c.D = v
	case 3:
		c.E = v
	case 4:
		c.H = v
	case 5:
		c.L = v
	case 6:
		c.write8(c.getHL(), v)
	default:
		c.A = v
	}
}

// Step advances the CPU by one interrupt-dispatch step, HALT tick, or full
// instruction, and ticks the bus (and through it the Timer, DMA, and PPU)
// by the number of T-cycles consumed.
func (c *CPU) Step() (cycles int) {
	defer func() {
		if c.bus != nil && cycles > 0 {
			c.bus.Tick(cycles)
		}
	}()

	if c.diagnosticHalt {
		cycles = 4
		return
	}

	if c.dispatch.step > 0 {
		cycles = c.advanceDispatch()
		return
	}

	ie, ifr := c.bus.IE(), c.bus.IF()
	fired := ie&ifr&0x1F != 0

	if c.IME && fired {
		c.dispatch.pending = ie & ifr & 0x1F
		c.dispatch.step = 1
		c.dispatch.cancelled = false
		c.IME = false
		c.halted = false
		cycles = c.advanceDispatch()
		return
	}

	if c.halted {
		if fired {
			c.halted = false
		} else {
			cycles = 4
			return
		}
	}

	var op byte
	if c.haltBug {
		op = c.read8(c.PC)
		c.haltBug = false
	} else {
		op = c.fetch8()
	}

	cycles = c.execute(op)

	if c.eiArmed {
		c.IME = true
		c.eiArmed = false
	}
	if c.eiPending {
		c.eiArmed = true
		c.eiPending = false
	}
	return
}

// advanceDispatch runs one of the five interrupt-dispatch machine cycles.
func (c *CPU) advanceDispatch() int {
	switch c.dispatch.step {
	case 1, 2:
		c.dispatch.step++
		return 4
	case 3:
		c.SP--
		c.write8(c.SP, byte(c.PC>>8))
		c.dispatch.step = 4
		return 4
	case 4:
		c.SP--
		c.write8(c.SP, byte(c.PC))
		if c.bus.IE()&c.bus.IF()&0x1F == 0 {
			c.dispatch.cancelled = true
		}
		c.dispatch.step = 5
		return 4
	default: // 5
		c.dispatch.step = 0
		if c.dispatch.cancelled {
			c.PC = 0x0000
			return 4
		}
		bit := lowestSetBit(c.dispatch.pending)
		c.bus.ClearIF(addr.Interrupt(1 << bit))
		c.PC = addr.Vector(bit)
		return 4
	}
}

func lowestSetBit(v byte) int {
	for i := 0; i < 5; i++ {
		if v&(1<<uint(i)) != 0 {
			return i
		}
	}
	return 0
}

func (c *CPU) raiseUnknownOpcode(op byte, prefix bool) int {
	c.lastErr = &UnknownOpcode{Opcode: op, PC: c.PC - 1, Prefix: prefix}
	c.diagnosticHalt = true
	c.log.Error("unknown opcode, entering diagnostic halt", "err", c.lastErr)
	return 4
}
