// Package bus implements the DMG memory map: address-range dispatch to the
// cartridge, VRAM/OAM (via the PPU), WRAM, HRAM, IE, and I/O registers,
// plus the joypad, serial debug, and OAM DMA special cases documented in
// SPEC_FULL.md §4.1.
package bus

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mwilloughby/gbcore/internal/addr"
	"github.com/mwilloughby/gbcore/internal/apu"
	"github.com/mwilloughby/gbcore/internal/cart"
	"github.com/mwilloughby/gbcore/internal/dma"
	"github.com/mwilloughby/gbcore/internal/ppu"
	"github.com/mwilloughby/gbcore/internal/timer"
)

const (
	JoypRight  = 1 << 0
	JoypLeft   = 1 << 1
	JoypUp     = 1 << 2
	JoypDown   = 1 << 3
	JoypA      = 1 << 4
	JoypB      = 1 << 5
	JoypSelect = 1 << 6
	JoypStart  = 1 << 7
)

// Bus wires the whole CPU-visible address space together.
type Bus struct {
	cart cart.Cartridge
	ppu  *ppu.PPU
	apu  *apu.APU
	tm   *timer.Timer
	dma  dma.DMA

	wram [0x2000]byte
	hram [0x7F]byte

	ie    byte
	ifReg byte

	joypSelect byte
	joypad     byte // bitmask of pressed buttons, 1 = pressed
	joypLower4 byte

	sb byte
	sc byte
	sw io.Writer

	dmaReg byte

	bootROM     []byte
	bootEnabled bool

	log *slog.Logger
}

func New(rom []byte) (*Bus, error) {
	c, err := cart.NewCartridge(rom)
	if err != nil {
		return nil, err
	}
	return NewWithCartridge(c), nil
}

func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c, sw: os.Stdout, log: slog.Default()}
	b.ppu = ppu.New(b)
	b.apu = apu.New()
	b.tm = timer.New()
	b.joypSelect = 0x30 // both select lines deselected -> JOYP low nibble reads 0x0F
	b.joypLower4 = 0x0F
	b.dmaReg = 0xFF
	return b
}

func (b *Bus) PPU() *ppu.PPU   { return b.ppu }
func (b *Bus) Cart() cart.Cartridge { return b.cart }
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }
func (b *Bus) SetLogger(l *slog.Logger)    { b.log = l }
// SetStopped forwards the STOP instruction's effect to the Timer (see
// DESIGN.md Open Question 3: STOP freezes only the Timer in this build).
func (b *Bus) SetStopped(s bool) { b.tm.SetStopped(s) }

func (b *Bus) SetBootROM(rom []byte) {
	b.bootROM = rom
	b.bootEnabled = len(rom) > 0
}

// RequestInterrupt implements ppu.IRQRequester; the PPU calls this directly.
func (b *Bus) RequestInterrupt(i addr.Interrupt) {
	b.ifReg |= byte(i)
}

// Read dispatches a CPU-visible read.
func (b *Bus) Read(a uint16) byte {
	switch {
	case a < 0x8000:
		if b.bootEnabled && a < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[a]
		}
		return b.cart.Read(a)
	case a <= 0x9FFF:
		return b.ppu.CPURead(a)
	case a <= 0xBFFF:
		return b.cart.Read(a)
	case a <= 0xDFFF:
		return b.wram[a-0xC000]
	case a <= 0xFDFF:
		return b.wram[a-0xE000]
	case a <= 0xFE9F:
		if b.dma.Active() {
			return 0xFF
		}
		return b.ppu.CPURead(a)
	case a <= 0xFEFF:
		return 0xFF
	case a == addr.IF:
		return b.ifReg | 0xE0
	case a == addr.JOYP:
		return b.readJoyp()
	case a == addr.SB:
		return b.sb
	case a == addr.SC:
		return b.sc | 0x7E
	case a == addr.DIV:
		return b.tm.DIV()
	case a == addr.TIMA:
		return b.tm.TIMA()
	case a == addr.TMA:
		return b.tm.TMA()
	case a == addr.TAC:
		return b.tm.TAC()
	case a >= addr.NR10 && a <= addr.NR52:
		return b.apu.Read(a)
	case a >= addr.WaveRAMStart && a <= addr.WaveRAMEnd:
		return b.apu.Read(a)
	case a >= addr.LCDC && a <= addr.WX:
		if a == addr.DMA {
			return b.dmaReg
		}
		return b.ppu.ReadRegister(a)
	case a >= 0xFF80 && a <= 0xFFFE:
		return b.hram[a-0xFF80]
	case a == addr.IE:
		return b.ie
	default:
		return 0xFF
	}
}

// Write dispatches a CPU-visible write.
func (b *Bus) Write(a uint16, v byte) {
	switch {
	case a < 0x8000:
		b.cart.Write(a, v)
	case a <= 0x9FFF:
		b.ppu.CPUWrite(a, v)
	case a <= 0xBFFF:
		b.cart.Write(a, v)
	case a <= 0xDFFF:
		b.wram[a-0xC000] = v
	case a <= 0xFDFF:
		b.wram[a-0xE000] = v
	case a <= 0xFE9F:
		if b.dma.Active() {
			return
		}
		b.ppu.CPUWrite(a, v)
	case a <= 0xFEFF:
		// unusable region, writes ignored
	case a == addr.IF:
		b.ifReg = v & 0x1F
	case a == addr.JOYP:
		b.joypSelect = v & 0x30
		b.updateJoypadLatch()
	case a == addr.SB:
		b.sb = v
	case a == addr.SC:
		b.sc = v
		if v == 0x81 {
			b.completeSerialTransfer()
		}
	case a == addr.DIV:
		b.tm.ResetDIV()
	case a == addr.TIMA:
		b.tm.WriteTIMA(v)
	case a == addr.TMA:
		b.tm.WriteTMA(v)
	case a == addr.TAC:
		b.tm.WriteTAC(v & 0x07)
	case a == addr.DMA:
		b.dmaReg = v
		b.dma.Start(v)
	case a >= addr.NR10 && a <= addr.NR52:
		b.apu.Write(a, v)
	case a >= addr.WaveRAMStart && a <= addr.WaveRAMEnd:
		b.apu.Write(a, v)
	case a >= addr.LCDC && a <= addr.WX:
		b.ppu.WriteRegister(a, v)
	case a >= 0xFF80 && a <= 0xFFFE:
		b.hram[a-0xFF80] = v
	case a == addr.IE:
		b.ie = v
	}
}

func (b *Bus) completeSerialTransfer() {
	fmt.Fprintf(b.sw, "%c", b.sb)
	b.RequestInterrupt(addr.Serial)
}

// Tick advances every bus-owned peripheral by tCycles T-cycles: the timer
// per T-cycle (for accurate falling-edge detection), the DMA engine and PPU
// matching the CPU's own cycle accounting (one DMA byte per machine cycle,
// i.e. every 4th T-cycle).
func (b *Bus) Tick(tCycles int) {
	for i := 0; i < tCycles; i++ {
		b.tm.Tick(1)
		if b.tm.TakeIRQ() {
			b.RequestInterrupt(addr.Timer)
		}
		if i%4 == 0 {
			b.dma.Tick(b, b.ppu)
		}
	}
	b.ppu.Tick(tCycles)
}

// IF/IE accessors used by the CPU's interrupt dispatch state machine.
func (b *Bus) IE() byte  { return b.ie }
func (b *Bus) IF() byte  { return b.ifReg | 0xE0 }
func (b *Bus) ClearIF(i addr.Interrupt) { b.ifReg &^= byte(i) }

func (b *Bus) readJoyp() byte {
	low := byte(0x0F)
	if b.joypSelect&0x10 == 0 { // direction keys selected
		low = b.directionBits()
	} else if b.joypSelect&0x20 == 0 { // action keys selected
		low = b.actionBits()
	}
	return 0xC0 | b.joypSelect | low
}

func (b *Bus) directionBits() byte {
	v := byte(0x0F)
	if b.joypad&JoypRight != 0 {
		v &^= 0x01
	}
	if b.joypad&JoypLeft != 0 {
		v &^= 0x02
	}
	if b.joypad&JoypUp != 0 {
		v &^= 0x04
	}
	if b.joypad&JoypDown != 0 {
		v &^= 0x08
	}
	return v
}

func (b *Bus) actionBits() byte {
	v := byte(0x0F)
	if b.joypad&JoypA != 0 {
		v &^= 0x01
	}
	if b.joypad&JoypB != 0 {
		v &^= 0x02
	}
	if b.joypad&JoypSelect != 0 {
		v &^= 0x04
	}
	if b.joypad&JoypStart != 0 {
		v &^= 0x08
	}
	return v
}

// SetJoypadState replaces the pressed-button bitmask and raises the joypad
// IRQ on any newly-selected bit transitioning from unpressed to pressed
// (the real hardware interrupt is a falling edge on any of the four
// currently-selected input lines).
func (b *Bus) SetJoypadState(mask byte) {
	b.joypad = mask
	b.updateJoypadLatch()
}

// updateJoypadLatch requests the joypad IRQ on a falling edge (a selected
// line reading 1 before and 0 after) of the synthesized low nibble.
func (b *Bus) updateJoypadLatch() {
	newLow := b.readJoyp() & 0x0F
	if b.joypLower4&^newLow != 0 {
		b.RequestInterrupt(addr.Joypad)
	}
	b.joypLower4 = newLow
}
