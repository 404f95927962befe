package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mwilloughby/gbcore/internal/addr"
	"github.com/mwilloughby/gbcore/internal/bus"
)

func newCPUAtVBlank() (*CPU, *bus.Bus) {
	rom := make([]byte, 0x8000)
	b, _ := bus.New(rom)
	c := New(b)
	c.SP = 0xFFFE
	c.IME = true
	b.Write(0xFFFF, byte(addr.VBlank))
	b.Write(0xFF0F, byte(addr.VBlank))
	return c, b
}

func TestInterruptDispatch(t *testing.T) {
	t.Run("takes exactly five four-cycle steps", func(t *testing.T) {
		c, _ := newCPUAtVBlank()
		c.PC = 0x0150

		total := 0
		for i := 0; i < 5; i++ {
			cyc := c.Step()
			assert.Equal(t, 4, cyc, "dispatch step %d", i)
			total += cyc
		}
		assert.Equal(t, 20, total)
		assert.Equal(t, addr.Vector(0), c.PC)
		assert.False(t, c.IME, "IME should be cleared during dispatch")
	})

	t.Run("pushes the return address", func(t *testing.T) {
		c, b := newCPUAtVBlank()
		c.PC = 0x0234
		for i := 0; i < 5; i++ {
			c.Step()
		}
		ret := uint16(b.Read(0xFFFC)) | uint16(b.Read(0xFFFD))<<8
		assert.Equal(t, uint16(0x0234), ret)
	})

	t.Run("clears the serviced IF bit", func(t *testing.T) {
		c, b := newCPUAtVBlank()
		for i := 0; i < 5; i++ {
			c.Step()
		}
		assert.Zero(t, b.Read(0xFF0F)&byte(addr.VBlank))
	})

	t.Run("cancels and jumps to 0x0000 if the cause disappears mid-dispatch", func(t *testing.T) {
		c, b := newCPUAtVBlank()
		c.PC = 0x0300
		// idle, idle, push-high consume steps 1-3; clearing IE here means the
		// step-4 re-sample (push-low) observes nothing pending and cancels.
		c.Step()
		c.Step()
		c.Step()
		b.Write(0xFFFF, 0x00)
		c.Step() // step 4: re-sample, cancel
		c.Step() // step 5: cancelled dispatch selects 0x0000
		assert.Equal(t, uint16(0x0000), c.PC)
	})

	t.Run("does not trigger without IME", func(t *testing.T) {
		c, _ := newCPUAtVBlank()
		c.IME = false
		c.PC = 0x0100
		c.Step() // fetches/executes the NOP at 0x0100 instead of dispatching
		assert.Equal(t, uint16(0x0101), c.PC)
	})
}

func TestCPU_EIDelayEnablesAfterFollowingInstruction(t *testing.T) {
	// EI; NOP; NOP -- interrupts must not fire until after the first NOP (the
	// instruction following EI); the dispatch then replaces the second NOP.
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0xFB
	rom[0x0001] = 0x00
	rom[0x0002] = 0x00
	b, _ := bus.New(rom)
	b.Write(0xFFFF, byte(addr.VBlank))
	b.Write(0xFF0F, byte(addr.VBlank))
	c := New(b)

	c.Step() // EI
	assert.False(t, c.IME, "IME must not be enabled immediately after EI")

	c.Step() // NOP following EI
	assert.True(t, c.IME, "IME should be enabled once the instruction following EI completes")

	// This step's entry sees IME true and the pending VBlank interrupt, so
	// it dispatches instead of fetching the NOP at 0x0002.
	c.Step()
	assert.NotEqual(t, uint16(0x0003), c.PC)
	assert.NotZero(t, c.dispatch.step, "expected an interrupt dispatch in progress")
}

func TestCPU_HaltWakesOnPendingInterruptWithoutIME(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0x76 // HALT
	rom[0x0001] = 0x00 // NOP
	b, _ := bus.New(rom)
	c := New(b)
	c.IME = false

	c.Step()
	assert.True(t, c.Halted(), "expected CPU to halt when no interrupt pending")

	b.Write(0xFFFF, byte(addr.Timer))
	b.Write(0xFF0F, byte(addr.Timer))
	c.Step()
	assert.False(t, c.Halted(), "expected CPU to wake once IE&IF becomes non-zero")
	assert.Equal(t, uint16(0x0002), c.PC)
}

func TestCPU_HaltBugRepeatsNextByte(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0x76 // HALT
	rom[0x0001] = 0x3C // INC A
	b, _ := bus.New(rom)
	b.Write(0xFFFF, byte(addr.Timer))
	b.Write(0xFF0F, byte(addr.Timer))
	c := New(b)
	c.IME = false

	c.Step() // HALT with IME=0 and a pending interrupt -> halt bug, not halted
	assert.False(t, c.Halted())

	c.Step() // first execution of INC A; the opcode fetch does not advance PC
	assert.Equal(t, byte(1), c.A)
	assert.Equal(t, uint16(0x0001), c.PC)

	c.Step() // INC A executes a second time; this fetch advances PC normally
	assert.Equal(t, byte(2), c.A)
	assert.Equal(t, uint16(0x0002), c.PC)
}
