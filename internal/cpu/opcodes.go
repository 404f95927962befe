package cpu

// execute decodes and runs one base (non-CB) opcode, returning the number
// of T-cycles it consumed.
func (c *CPU) execute(op byte) int {
	// LD r,r' / LD r,(HL) / LD (HL),r, covering the whole 0x40-0x7F block
	// except 0x76 (HALT, which would otherwise decode as LD (HL),(HL)).
	if op >= 0x40 && op <= 0x7F && op != 0x76 {
		d := (op >> 3) & 7
		s := op & 7
		c.setReg(d, c.getReg(s))
		if d == 6 || s == 6 {
			return 8
		}
		return 4
	}

	// ADD/ADC/SUB/SBC/AND/XOR/OR/CP A,r / A,(HL) over 0x80-0xBF.
	if op >= 0x80 && op <= 0xBF {
		group := (op >> 3) & 7
		src := c.getReg(op & 7)
		cycles := 4
		if op&7 == 6 {
			cycles = 8
		}
		c.aluOp(group, src)
		return cycles
	}

	switch op {
	case 0x00: // NOP
		return 4
	case 0x10: // STOP
		c.fetch8() // STOP is followed by an ignored padding byte
		c.bus.SetStopped(true)
		return 4

	// LD r,d8
	case 0x06:
		c.B = c.fetch8()
		return 8
	case 0x0E:
		c.C = c.fetch8()
		return 8
	case 0x16:
		c.D = c.fetch8()
		return 8
	case 0x1E:
		c.E = c.fetch8()
		return 8
	case 0x26:
		c.H = c.fetch8()
		return 8
	case 0x2E:
		c.L = c.fetch8()
		return 8
	case 0x3E:
		c.A = c.fetch8()
		return 8

	// 16-bit loads
	case 0x01:
		c.setBC(c.fetch16())
		return 12
	case 0x11:
		c.setDE(c.fetch16())
		return 12
	case 0x21:
		c.setHL(c.fetch16())
		return 12
	case 0x31:
		c.SP = c.fetch16()
		return 12
	case 0x08: // LD (a16),SP
		a := c.fetch16()
		c.write16(a, c.SP)
		return 20

	case 0x36: // LD (HL),d8
		c.write8(c.getHL(), c.fetch8())
		return 12

	case 0x02:
		c.write8(c.getBC(), c.A)
		return 8
	case 0x12:
		c.write8(c.getDE(), c.A)
		return 8
	case 0x0A:
		c.A = c.read8(c.getBC())
		return 8
	case 0x1A:
		c.A = c.read8(c.getDE())
		return 8

	case 0x22: // LD (HL+),A
		hl := c.getHL()
		c.write8(hl, c.A)
		c.setHL(hl + 1)
		return 8
	case 0x2A: // LD A,(HL+)
		hl := c.getHL()
		c.A = c.read8(hl)
		c.setHL(hl + 1)
		return 8
	case 0x32: // LD (HL-),A
		hl := c.getHL()
		c.write8(hl, c.A)
		c.setHL(hl - 1)
		return 8
	case 0x3A: // LD A,(HL-)
		hl := c.getHL()
		c.A = c.read8(hl)
		c.setHL(hl - 1)
		return 8

	case 0xE0: // LDH (a8),A
		n := uint16(c.fetch8())
		c.write8(0xFF00+n, c.A)
		return 12
	case 0xF0: // LDH A,(a8)
		n := uint16(c.fetch8())
		c.A = c.read8(0xFF00 + n)
		return 12
	case 0xE2: // LD (C),A
		c.write8(0xFF00+uint16(c.C), c.A)
		return 8
	case 0xF2: // LD A,(C)
		c.A = c.read8(0xFF00 + uint16(c.C))
		return 8
	case 0xEA: // LD (a16),A
		a := c.fetch16()
		c.write8(a, c.A)
		return 16
	case 0xFA: // LD A,(a16)
		a := c.fetch16()
		c.A = c.read8(a)
		return 16

	case 0x07: // RLCA
		cv := (c.A >> 7) & 1
		c.A = (c.A << 1) | cv
		c.setZNHC(false, false, false, cv == 1)
		return 4
	case 0x0F: // RRCA
		cv := c.A & 1
		c.A = (c.A >> 1) | (cv << 7)
		c.setZNHC(false, false, false, cv == 1)
		return 4
	case 0x17: // RLA
		cv := (c.A >> 7) & 1
		var cin byte
		if c.F&flagC != 0 {
			cin = 1
		}
		c.A = (c.A << 1) | cin
		c.setZNHC(false, false, false, cv == 1)
		return 4
	case 0x1F: // RRA
		cv := c.A & 1
		var cin byte
		if c.F&flagC != 0 {
			cin = 1
		}
		c.A = (c.A >> 1) | (cin << 7)
		c.setZNHC(false, false, false, cv == 1)
		return 4
	case 0x27: // DAA
		a := c.A
		cf := c.F&flagC != 0
		if c.F&flagN == 0 {
			if cf || a > 0x99 {
				a += 0x60
				cf = true
			}
			if c.F&flagH != 0 || (a&0x0F) > 9 {
				a += 0x06
			}
		} else {
			if cf {
				a -= 0x60
			}
			if c.F&flagH != 0 {
				a -= 0x06
			}
		}
		c.A = a
		c.setZNHC(c.A == 0, c.F&flagN != 0, false, cf)
		return 4
	case 0x2F: // CPL
		c.A = ^c.A
		c.F = (c.F & (flagZ | flagC)) | flagN | flagH
		return 4
	case 0x37: // SCF
		c.F = (c.F & flagZ) | flagC
		return 4
	case 0x3F: // CCF
		newC := c.F&flagC == 0
		c.setZNHC(c.F&flagZ != 0, false, false, newC)
		return 4

	// INC/DEC r
	case 0x04, 0x0C, 0x14, 0x1C, 0x24, 0x2C, 0x3C:
		idx := (op >> 3) & 7
		old := c.getReg(idx)
		c.setReg(idx, old+1)
		c.setZNHC(old+1 == 0, false, old&0x0F == 0x0F, c.F&flagC != 0)
		return 4
	case 0x34: // INC (HL)
		a := c.getHL()
		old := c.read8(a)
		v := old + 1
		c.write8(a, v)
		c.setZNHC(v == 0, false, old&0x0F == 0x0F, c.F&flagC != 0)
		return 12
	case 0x05, 0x0D, 0x15, 0x1D, 0x25, 0x2D, 0x3D:
		idx := (op >> 3) & 7
		old := c.getReg(idx)
		c.setReg(idx, old-1)
		c.setZNHC(old-1 == 0, true, old&0x0F == 0x00, c.F&flagC != 0)
		return 4
	case 0x35: // DEC (HL)
		a := c.getHL()
		old := c.read8(a)
		v := old - 1
		c.write8(a, v)
		c.setZNHC(v == 0, true, old&0x0F == 0x00, c.F&flagC != 0)
		return 12

	// ALU A,d8
	case 0xC6, 0xCE, 0xD6, 0xDE, 0xE6, 0xEE, 0xF6, 0xFE:
		group := (op >> 3) & 7
		c.aluOp(group, c.fetch8())
		return 8

	case 0xC3: // JP a16
		c.PC = c.fetch16()
		return 16
	case 0xE9: // JP (HL)
		c.PC = c.getHL()
		return 4
	case 0x18: // JR r8
		off := int8(c.fetch8())
		c.PC = uint16(int32(c.PC) + int32(off))
		return 12
	case 0x20, 0x28, 0x30, 0x38: // JR cc,r8
		off := int8(c.fetch8())
		if c.condition(op) {
			c.PC = uint16(int32(c.PC) + int32(off))
			return 12
		}
		return 8
	case 0xC2, 0xCA, 0xD2, 0xDA: // JP cc,a16
		a := c.fetch16()
		if c.condition(op) {
			c.PC = a
			return 16
		}
		return 12

	case 0xCD: // CALL a16
		a := c.fetch16()
		c.push16(c.PC)
		c.PC = a
		return 24
	case 0xC4, 0xCC, 0xD4, 0xDC: // CALL cc,a16
		a := c.fetch16()
		if c.condition(op) {
			c.push16(c.PC)
			c.PC = a
			return 24
		}
		return 12
	case 0xC9: // RET
		c.PC = c.pop16()
		return 16
	case 0xD9: // RETI
		c.PC = c.pop16()
		c.IME = true
		return 16
	case 0xC0, 0xC8, 0xD0, 0xD8: // RET cc
		if c.condition(op) {
			c.PC = c.pop16()
			return 20
		}
		return 8

	case 0xC7, 0xCF, 0xD7, 0xDF, 0xE7, 0xEF, 0xF7, 0xFF: // RST t
		c.push16(c.PC)
		c.PC = uint16(op & 0x38)
		return 16

	case 0x03:
		c.setBC(c.getBC() + 1)
		return 8
	case 0x13:
		c.setDE(c.getDE() + 1)
		return 8
	case 0x23:
		c.setHL(c.getHL() + 1)
		return 8
	case 0x33:
		c.SP++
		return 8
	case 0x0B:
		c.setBC(c.getBC() - 1)
		return 8
	case 0x1B:
		c.setDE(c.getDE() - 1)
		return 8
	case 0x2B:
		c.setHL(c.getHL() - 1)
		return 8
	case 0x3B:
		c.SP--
		return 8

	case 0x09, 0x19, 0x29, 0x39: // ADD HL,rr
		hl := c.getHL()
		var rr uint16
		switch op {
		case 0x09:
			rr = c.getBC()
		case 0x19:
			rr = c.getDE()
		case 0x29:
			rr = c.getHL()
		case 0x39:
			rr = c.SP
		}
		r := uint32(hl) + uint32(rr)
		h := (hl&0x0FFF)+(rr&0x0FFF) > 0x0FFF
		c.setHL(uint16(r))
		c.setZNHC(c.F&flagZ != 0, false, h, r > 0xFFFF)
		return 8

	case 0xF8: // LD HL,SP+r8
		off := int8(c.fetch8())
		low := byte(c.SP)
		_, _, _, h, cy := c.add8(low, byte(off))
		c.setHL(uint16(int32(int16(c.SP)) + int32(off)))
		c.setZNHC(false, false, h, cy)
		return 12
	case 0xF9: // LD SP,HL
		c.SP = c.getHL()
		return 8
	case 0xE8: // ADD SP,r8
		off := int8(c.fetch8())
		low := byte(c.SP)
		_, _, _, h, cy := c.add8(low, byte(off))
		c.SP = uint16(int32(int16(c.SP)) + int32(off))
		c.setZNHC(false, false, h, cy)
		return 16

	case 0xF3: // DI
		c.IME = false
		c.eiPending = false
		c.eiArmed = false
		return 4
	case 0xFB: // EI
		c.eiPending = true
		return 4

	case 0xCB:
		cb := c.fetch8()
		return c.executeCB(cb)

	case 0xF5:
		c.push16(c.getAF())
		return 16
	case 0xC5:
		c.push16(c.getBC())
		return 16
	case 0xD5:
		c.push16(c.getDE())
		return 16
	case 0xE5:
		c.push16(c.getHL())
		return 16
	case 0xF1: // POP AF masks away the unused low nibble of F
		c.setAF(c.pop16())
		return 12
	case 0xC1:
		c.setBC(c.pop16())
		return 12
	case 0xD1:
		c.setDE(c.pop16())
		return 12
	case 0xE1:
		c.setHL(c.pop16())
		return 12

	case 0x76: // HALT
		fired := c.bus.IE()&c.bus.IF()&0x1F != 0
		if !c.IME && fired {
			c.haltBug = true
		} else {
			c.halted = true
		}
		return 4

	case 0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4, 0xFC, 0xFD:
		return c.raiseUnknownOpcode(op, false)

	default:
		return c.raiseUnknownOpcode(op, false)
	}
}

// aluOp applies one of the eight ALU-group operations (ADD, ADC, SUB, SBC,
// AND, XOR, OR, CP, selected by the opcode's bits 3-5) of A with src.
func (c *CPU) aluOp(group byte, src byte) {
	var r byte
	var z, n, h, cy bool
	switch group {
	case 0:
		r, z, n, h, cy = c.add8(c.A, src)
	case 1:
		r, z, n, h, cy = c.adc8(c.A, src, c.F&flagC != 0)
	case 2:
		r, z, n, h, cy = c.sub8(c.A, src)
	case 3:
		r, z, n, h, cy = c.sbc8(c.A, src, c.F&flagC != 0)
	case 4:
		r, z, n, h, cy = c.and8(c.A, src)
	case 5:
		r, z, n, h, cy = c.xor8(c.A, src)
	case 6:
		r, z, n, h, cy = c.or8(c.A, src)
	case 7:
		z, n, h, cy = c.cp8(c.A, src)
		c.setZNHC(z, n, h, cy)
		return
	}
	c.A = r
	c.setZNHC(z, n, h, cy)
}

// condition evaluates the cc field (bits 3-4) of a JR/JP/CALL/RET cc opcode.
func (c *CPU) condition(op byte) bool {
	switch (op >> 3) & 3 {
	case 0:
		return c.F&flagZ == 0
	case 1:
		return c.F&flagZ != 0
	case 2:
		return c.F&flagC == 0
	default:
		return c.F&flagC != 0
	}
}
