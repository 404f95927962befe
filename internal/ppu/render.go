package ppu

import "github.com/mwilloughby/gbcore/internal/bit"

// dmgPalette maps a 2-bit shade to a fixed 32-bit ARGB DMG-green value,
// lightest to darkest.
var dmgPalette = [4]uint32{
	0xFF9BBC0F,
	0xFF8BAC0F,
	0xFF306230,
	0xFF0F380F,
}

// scanSprites finds up to ten OAM entries visible on the current LY, sorted
// by X ascending (stable on OAM index), which is priority order: renderSprites
// walks this slice front to back.
func (p *PPU) scanSprites() {
	p.visibleSprites = p.visibleSprites[:0]
	if !bit.IsSet(1, p.lcdc) {
		return
	}
	h := 8
	if bit.IsSet(2, p.lcdc) {
		h = 16
	}
	ly := int(p.ly)
	for i := 0; i < 40 && len(p.visibleSprites) < 10; i++ {
		base := i * 4
		y := int(p.oam[base]) - 16
		if ly < y || ly >= y+h {
			continue
		}
		p.visibleSprites = append(p.visibleSprites, sprite{
			y:        p.oam[base],
			x:        p.oam[base+1],
			tile:     p.oam[base+2],
			attr:     p.oam[base+3],
			oamIndex: i,
		})
	}
	// stable sort by X ascending; OAM index order (already ascending from
	// the scan above) breaks ties.
	for i := 1; i < len(p.visibleSprites); i++ {
		for j := i; j > 0 && p.visibleSprites[j].x < p.visibleSprites[j-1].x; j-- {
			p.visibleSprites[j], p.visibleSprites[j-1] = p.visibleSprites[j-1], p.visibleSprites[j]
		}
	}
}

// renderScanline composes background, window, and sprites for the current
// LY into a 2-bit-color scratch line, then maps through palettes into the
// ARGB framebuffer row.
func (p *PPU) renderScanline() {
	ly := int(p.ly)
	if ly < 0 || ly >= ScreenH {
		return
	}

	var objColor [ScreenW]byte // 0 = no sprite has claimed this pixel yet
	var objPalette [ScreenW]byte

	p.renderBackground(ly)
	if p.windowDrawnThisLine {
		p.renderWindow(ly)
	}
	if bit.IsSet(1, p.lcdc) {
		p.renderSprites(ly, &objColor, &objPalette)
	}

	for x := 0; x < ScreenW; x++ {
		var colorIdx byte
		var palette byte
		if objColor[x] != 0 {
			colorIdx = objColor[x]
			palette = objPalette[x]
		} else {
			colorIdx = p.bgIndexLine[x]
			palette = 0 // BGP
		}
		shade := p.shadeFor(colorIdx, palette)
		p.frameBuffer[ly][x] = dmgPalette[shade]
	}
}

// renderBackground fills p.bgIndexLine with 2-bit BG color indices, or all
// zero if the BG/window master enable (LCDC bit 0) is clear.
func (p *PPU) renderBackground(ly int) {
	if !bit.IsSet(0, p.lcdc) {
		for x := range p.bgIndexLine {
			p.bgIndexLine[x] = 0
		}
		return
	}
	mapBase := uint16(0x9800)
	if bit.IsSet(3, p.lcdc) {
		mapBase = 0x9C00
	}
	bgY := int(p.scy) + ly
	for x := 0; x < ScreenW; x++ {
		bgX := (int(p.scx) + x) & 0xFF
		by := bgY & 0xFF
		tileRow := (by / 8) * 32
		tileCol := bgX / 8
		tileIdx := p.vram[mapBase-0x8000+uint16(tileRow+tileCol)]
		tileAddr := p.tileDataAddr(tileIdx)
		rowInTile := by & 7
		lo := p.vram[tileAddr+uint16(rowInTile)*2-0x8000]
		hi := p.vram[tileAddr+uint16(rowInTile)*2+1-0x8000]
		bitIdx := uint(7 - (bgX & 7))
		color := (bit.Value(bitIdx, hi) << 1) | bit.Value(bitIdx, lo)
		p.bgIndexLine[x] = color
	}
}

func (p *PPU) renderWindow(ly int) {
	mapBase := uint16(0x9800)
	if bit.IsSet(6, p.lcdc) {
		mapBase = 0x9C00
	}
	winStartX := int(p.wx) - 7
	winLine := p.windowLine
	for x := 0; x < ScreenW; x++ {
		if x < winStartX {
			continue
		}
		wx := x - winStartX
		tileRow := (winLine / 8) * 32
		tileCol := wx / 8
		tileIdx := p.vram[mapBase-0x8000+uint16(tileRow+tileCol)]
		tileAddr := p.tileDataAddr(tileIdx)
		rowInTile := winLine & 7
		lo := p.vram[tileAddr+uint16(rowInTile)*2-0x8000]
		hi := p.vram[tileAddr+uint16(rowInTile)*2+1-0x8000]
		bitIdx := uint(7 - (wx & 7))
		color := (bit.Value(bitIdx, hi) << 1) | bit.Value(bitIdx, lo)
		p.bgIndexLine[x] = color
	}
}

// renderSprites draws visibleSprites (already ordered highest-priority
// first: ascending X, ties broken by ascending OAM index) onto outColor.
// Each sprite pixel runs two independent, sequential skip checks: first
// OBJ-to-BG priority against the *background* color already in
// p.bgIndexLine, then first-wins against any sprite that has already
// claimed this pixel. A pixel skipped by the priority check does not count
// as claimed, so a lower-priority sprite considered afterward can still win
// it — an opaque, non-priority sprite is never hidden by the background and
// loses a pixel only to a higher-priority sprite that has claimed it.
func (p *PPU) renderSprites(ly int, outColor, outPalette *[ScreenW]byte) {
	h := 8
	if bit.IsSet(2, p.lcdc) {
		h = 16
	}
	for i := 0; i < len(p.visibleSprites); i++ {
		s := p.visibleSprites[i]
		yFlip := bit.IsSet(6, s.attr)
		xFlip := bit.IsSet(5, s.attr)
		spriteTop := int(s.y) - 16
		row := ly - spriteTop
		if yFlip {
			row = h - 1 - row
		}
		tile := s.tile
		if h == 16 {
			tile &^= 0x01
			if row >= 8 {
				tile |= 0x01
				row -= 8
			}
		}
		tileAddr := 0x8000 + uint16(tile)*16
		lo := p.vram[tileAddr+uint16(row)*2-0x8000]
		hi := p.vram[tileAddr+uint16(row)*2+1-0x8000]

		bgPriority := bit.IsSet(7, s.attr)
		palette := bit.Value(4, s.attr) + 1 // 1=OBP0, 2=OBP1 (0 is reserved for BGP)

		spriteLeft := int(s.x) - 8
		for px := 0; px < 8; px++ {
			screenX := spriteLeft + px
			if screenX < 0 || screenX >= ScreenW {
				continue
			}
			srcBit := px
			if !xFlip {
				srcBit = 7 - px
			}
			color := (bit.Value(uint(srcBit), hi) << 1) | bit.Value(uint(srcBit), lo)
			if color == 0 {
				continue // transparent
			}
			if bgPriority && p.bgIndexLine[screenX] != 0 {
				continue // BG wins; this sprite does not claim the pixel
			}
			if outColor[screenX] != 0 {
				continue // a higher-priority sprite already claimed it
			}
			outColor[screenX] = color
			outPalette[screenX] = palette
		}
	}
}

func (p *PPU) tileDataAddr(tileIdx byte) uint16 {
	if bit.IsSet(4, p.lcdc) {
		return 0x8000 + uint16(tileIdx)*16
	}
	return uint16(0x9000 + int(int8(tileIdx))*16)
}

func (p *PPU) shadeFor(colorIdx, palette byte) byte {
	var reg byte
	switch palette {
	case 1:
		reg = p.obp0
	case 2:
		reg = p.obp1
	default:
		reg = p.bgp
	}
	shift := uint(colorIdx) * 2
	return (reg >> shift) & 0x03
}
