package cpu

// executeCB decodes and runs one CB-prefixed opcode: the rotate/shift/swap
// group, BIT, RES, and SET, each parameterized by a 3-bit register code
// (0-5 = B,C,D,E,H,L; 6 = (HL); 7 = A) and, for BIT/RES/SET, a bit index.
func (c *CPU) executeCB(cb byte) int {
	reg := cb & 7
	group := (cb >> 6) & 3
	y := (cb >> 3) & 7

	cycles := 8
	if reg == 6 {
		cycles = 16
	}

	switch group {
	case 0: // rotate/shift/swap
		v := c.getReg(reg)
		var cv byte
		switch y {
		case 0: // RLC
			cv = (v >> 7) & 1
			v = (v << 1) | cv
		case 1: // RRC
			cv = v & 1
			v = (v >> 1) | (cv << 7)
		case 2: // RL
			cv = (v >> 7) & 1
			var cin byte
			if c.F&flagC != 0 {
				cin = 1
			}
			v = (v << 1) | cin
		case 3: // RR
			cv = v & 1
			var cin byte
			if c.F&flagC != 0 {
				cin = 1
			}
			v = (v >> 1) | (cin << 7)
		case 4: // SLA
			cv = (v >> 7) & 1
			v <<= 1
		case 5: // SRA
			cv = v & 1
			v = (v >> 1) | (v & 0x80)
		case 6: // SWAP
			v = (v << 4) | (v >> 4)
			cv = 0
		case 7: // SRL
			cv = v & 1
			v >>= 1
		}
		c.setReg(reg, v)
		if y == 6 { // SWAP clears carry unconditionally
			c.setZNHC(v == 0, false, false, false)
		} else {
			c.setZNHC(v == 0, false, false, cv == 1)
		}
		return cycles

	case 1: // BIT y,r — Z set if bit clear, N=0, H=1, C unchanged
		v := c.getReg(reg)
		bit := (v >> y) & 1
		c.F = (c.F & flagC) | flagH
		if bit == 0 {
			c.F |= flagZ
		}
		if reg == 6 {
			return 12
		}
		return cycles

	case 2: // RES y,r
		v := c.getReg(reg)
		c.setReg(reg, v&^(1<<y))
		return cycles

	default: // 3: SET y,r
		v := c.getReg(reg)
		c.setReg(reg, v|(1<<y))
		return cycles
	}
}
