// Package ppu implements the DMG pixel-processing unit: the OAM-search /
// drawing / HBlank / VBlank mode state machine, per-scanline background,
// window and sprite compositing, and the ARGB framebuffer the host reads.
package ppu

import (
	"github.com/mwilloughby/gbcore/internal/addr"
	"github.com/mwilloughby/gbcore/internal/bit"
)

const (
	ModeHBlank = 0
	ModeVBlank = 1
	ModeOAM    = 2
	ModeDraw   = 3

	ScreenW = 160
	ScreenH = 144

	oamSearchCycles = 80
	lineCycles      = 456
)

// IRQRequester is the subset of the bus the PPU uses to raise interrupts.
type IRQRequester interface {
	RequestInterrupt(bit addr.Interrupt)
}

type sprite struct {
	y, x, tile, attr byte
	oamIndex         int
}

// PPU owns VRAM, OAM, the LCD control/status registers, and the output
// framebuffer. It reaches the rest of the system only via req.
type PPU struct {
	vram [0x2000]byte
	oam  [0xA0]byte

	lcdc, stat          byte
	scy, scx            byte
	ly, lyc             byte
	bgp, obp0, obp1     byte
	wy, wx              byte

	mode      byte
	modeClock int
	drawLen   int

	windowLine          int
	windowDrawnThisLine bool

	prevCoincidence bool

	frameBuffer [ScreenH][ScreenW]uint32
	bgIndexLine [ScreenW]byte
	frameReady  bool

	visibleSprites []sprite

	req IRQRequester
}

func New(req IRQRequester) *PPU {
	p := &PPU{req: req}
	p.Reset()
	return p
}

// Reset applies DMG power-on register values (spec §6).
func (p *PPU) Reset() {
	p.lcdc = 0x91
	p.stat = 0x81
	p.scy, p.scx = 0, 0
	p.ly = 0x91
	p.lyc = 0
	p.bgp = 0xFC
	p.obp0, p.obp1 = 0xFF, 0xFF
	p.wy, p.wx = 0, 0
	// STAT's power-on value (0x81) already encodes mode 1 (VBlank) in its
	// low two bits, and LY=0x91 sits within the VBlank line range; mirror
	// that directly rather than re-deriving it through enterVBlank (which
	// would spuriously request an IRQ and mark a frame ready at reset).
	p.mode = ModeVBlank
	p.modeClock = 0
	p.windowLine = 0
	p.frameReady = false
	p.prevCoincidence = false
}

// CPURead returns a VRAM or OAM byte, applying mode-based blocking.
func (p *PPU) CPURead(a uint16) byte {
	switch {
	case a >= 0x8000 && a <= 0x9FFF:
		if p.mode == ModeDraw {
			return 0xFF
		}
		return p.vram[a-0x8000]
	case a >= 0xFE00 && a <= 0xFE9F:
		if p.mode == ModeOAM || p.mode == ModeDraw {
			return 0xFF
		}
		return p.oam[a-0xFE00]
	}
	return 0xFF
}

func (p *PPU) CPUWrite(a uint16, v byte) {
	switch {
	case a >= 0x8000 && a <= 0x9FFF:
		if p.mode == ModeDraw {
			return
		}
		p.vram[a-0x8000] = v
	case a >= 0xFE00 && a <= 0xFE9F:
		if p.mode == ModeOAM || p.mode == ModeDraw {
			return
		}
		p.oam[a-0xFE00] = v
	}
}

// WriteOAM is used by the DMA engine: it bypasses mode blocking, since the
// DMA engine is itself the active blocker of OAM during a transfer.
func (p *PPU) WriteOAM(index int, v byte) {
	if index >= 0 && index < len(p.oam) {
		p.oam[index] = v
	}
}

// FrameReady reports whether a freshly rendered frame is waiting, and
// clears the flag (the host "consumes" it).
func (p *PPU) FrameReady() bool {
	r := p.frameReady
	p.frameReady = false
	return r
}

func (p *PPU) Framebuffer() *[ScreenH][ScreenW]uint32 { return &p.frameBuffer }

func (p *PPU) lcdOn() bool { return bit.IsSet(7, p.lcdc) }

// Tick advances the PPU by tCycles T-cycles.
func (p *PPU) Tick(tCycles int) {
	if !p.lcdOn() {
		return
	}
	for i := 0; i < tCycles; i++ {
		p.tickOne()
	}
}

func (p *PPU) tickOne() {
	p.modeClock++

	switch p.mode {
	case ModeOAM:
		if p.modeClock >= oamSearchCycles {
			p.modeClock -= oamSearchCycles
			p.enterDraw()
		}
	case ModeDraw:
		if p.modeClock >= p.drawLen {
			p.modeClock -= p.drawLen
			p.renderScanline()
			p.enterHBlank()
		}
	case ModeHBlank:
		if p.modeClock >= lineCycles-oamSearchCycles-p.drawLen {
			p.modeClock = 0
			p.advanceLine()
		}
	case ModeVBlank:
		if p.modeClock >= lineCycles {
			p.modeClock = 0
			p.advanceLine()
		}
	}
}

func (p *PPU) setMode(m byte) {
	p.stat = (p.stat &^ 0x03) | m
	p.mode = m
	p.updateCoincidence()
}

func (p *PPU) enterDraw() {
	p.setMode(ModeDraw)
	p.scanSprites()
	p.windowDrawnThisLine = p.windowVisibleThisLine()
	penalty := int(p.scx&7) + 6*len(p.visibleSprites)
	if p.windowDrawnThisLine {
		penalty += 6
	}
	p.drawLen = 172 + penalty
}

func (p *PPU) enterHBlank() {
	p.setMode(ModeHBlank)
	if bit.IsSet(3, p.stat) {
		p.requestSTAT()
	}
}

func (p *PPU) enterOAM() {
	p.setMode(ModeOAM)
	if bit.IsSet(5, p.stat) {
		p.requestSTAT()
	}
}

func (p *PPU) enterVBlank() {
	p.setMode(ModeVBlank)
	p.req.RequestInterrupt(addr.VBlank)
	if bit.IsSet(4, p.stat) {
		p.requestSTAT()
	}
	p.frameReady = true
}

// advanceLine runs at the end of every scanline's last mode (HBlank for
// visible lines, VBlank's own 456-cycle line for LY 144..153).
func (p *PPU) advanceLine() {
	if p.windowDrawnThisLine {
		p.windowLine++
	}

	p.ly++
	if p.ly == 144 {
		p.enterVBlank()
	} else if p.ly > 153 {
		p.ly = 0
		p.windowLine = 0
		p.enterOAM()
	} else if p.mode == ModeVBlank {
		// still within VBlank, nothing else to do this line
	} else {
		p.enterOAM()
	}
	p.updateCoincidence()
}

func (p *PPU) updateCoincidence() {
	coincidence := p.ly == p.lyc
	p.stat = bit.SetTo(2, p.stat, coincidence)
	if coincidence && !p.prevCoincidence && bit.IsSet(6, p.stat) {
		p.requestSTAT()
	}
	p.prevCoincidence = coincidence
}

func (p *PPU) requestSTAT() {
	p.req.RequestInterrupt(addr.STATInt)
}

func (p *PPU) windowVisibleThisLine() bool {
	return bit.IsSet(5, p.lcdc) && bit.IsSet(0, p.lcdc) && p.ly >= p.wy && int(p.wx)-7 < ScreenW
}
