package ppu

// ReadRegister and WriteRegister expose the LCD registers (0xFF40-0xFF4B)
// the Bus forwards from its own I/O dispatch; the PPU owns this state per
// the ownership model in SPEC_FULL.md §3.
func (p *PPU) ReadRegister(a uint16) byte {
	switch a {
	case 0xFF40:
		return p.lcdc
	case 0xFF41:
		return p.stat | 0x80
	case 0xFF42:
		return p.scy
	case 0xFF43:
		return p.scx
	case 0xFF44:
		return p.ly
	case 0xFF45:
		return p.lyc
	case 0xFF47:
		return p.bgp
	case 0xFF48:
		return p.obp0
	case 0xFF49:
		return p.obp1
	case 0xFF4A:
		return p.wy
	case 0xFF4B:
		return p.wx
	}
	return 0xFF
}

func (p *PPU) WriteRegister(a uint16, v byte) {
	switch a {
	case 0xFF40:
		wasOn := p.lcdOn()
		p.lcdc = v
		if wasOn && !p.lcdOn() {
			p.disableLCD()
		} else if !wasOn && p.lcdOn() {
			p.enableLCD()
		}
	case 0xFF41:
		p.stat = (p.stat & 0x07) | (v & 0x78)
	case 0xFF42:
		p.scy = v
	case 0xFF43:
		p.scx = v
	case 0xFF45:
		p.lyc = v
		p.updateCoincidence()
	case 0xFF47:
		p.bgp = v
	case 0xFF48:
		p.obp0 = v
	case 0xFF49:
		p.obp1 = v
	case 0xFF4A:
		p.wy = v
	case 0xFF4B:
		p.wx = v
	// 0xFF44 (LY) is read-only on real hardware.
	}
}

func (p *PPU) disableLCD() {
	p.ly = 0
	p.modeClock = 0
	p.mode = ModeHBlank
	p.setMode(ModeHBlank)
	p.windowLine = 0
}

func (p *PPU) enableLCD() {
	p.modeClock = 0
	p.enterOAM()
}
