// Package emu wires cpu/bus/ppu/cart into the outer run loop a host (or a
// headless CLI) drives one frame at a time.
package emu

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mwilloughby/gbcore/internal/bus"
	"github.com/mwilloughby/gbcore/internal/cart"
	"github.com/mwilloughby/gbcore/internal/cpu"
	"github.com/mwilloughby/gbcore/internal/ppu"
)

// Buttons is the eight-button DMG joypad state for one frame.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.Right {
		m |= bus.JoypRight
	}
	if b.Left {
		m |= bus.JoypLeft
	}
	if b.Up {
		m |= bus.JoypUp
	}
	if b.Down {
		m |= bus.JoypDown
	}
	if b.A {
		m |= bus.JoypA
	}
	if b.B {
		m |= bus.JoypB
	}
	if b.Select {
		m |= bus.JoypSelect
	}
	if b.Start {
		m |= bus.JoypStart
	}
	return m
}

// Machine owns one cartridge's worth of emulator state: the CPU, the bus
// (and everything it wires together), and the bookkeeping needed to load and
// persist a ROM.
type Machine struct {
	cfg     Config
	bus     *bus.Bus
	cpu     *cpu.CPU
	bootROM []byte
	romPath string
	log     *slog.Logger

	maxStepsPerFrame int
}

func New(cfg Config) *Machine {
	log := slog.Default()
	if cfg.Trace {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return &Machine{cfg: cfg, log: log, maxStepsPerFrame: 1 << 20}
}

func (m *Machine) SetLogger(l *slog.Logger) { m.log = l }

// SetBootROM stages a boot ROM image to be used by the next LoadCartridge
// (or LoadROMFromFile) call.
func (m *Machine) SetBootROM(rom []byte) {
	m.bootROM = rom
	if m.bus != nil {
		m.bus.SetBootROM(rom)
	}
}

// LoadCartridge resets the Machine onto a freshly parsed cartridge. boot, if
// non-empty, overrides any previously staged boot ROM for this load only.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	b, err := bus.New(rom)
	if err != nil {
		return err
	}
	if m.log != nil {
		b.SetLogger(m.log)
	}

	effectiveBoot := boot
	if len(effectiveBoot) == 0 {
		effectiveBoot = m.bootROM
	}

	c := cpu.New(b)
	if len(effectiveBoot) >= 0x100 {
		b.SetBootROM(effectiveBoot)
		c.SP = 0xFFFE
		c.PC = 0x0000
		c.IME = false
	} else {
		c.ResetNoBoot()
		c.SetPC(0x0100)
		applyPostBootIODefaults(b)
	}
	if m.log != nil {
		c.SetLogger(m.log)
	}

	m.bus = b
	m.cpu = c
	return nil
}

// applyPostBootIODefaults mirrors the values the real boot ROM leaves behind
// in I/O registers when no boot ROM is provided, matching cmd/cpurunner's
// no-bootrom defaults.
func applyPostBootIODefaults(b *bus.Bus) {
	b.Write(0xFF00, 0xCF)
	b.Write(0xFF05, 0x00)
	b.Write(0xFF06, 0x00)
	b.Write(0xFF07, 0x00)
	b.Write(0xFF40, 0x91)
	b.Write(0xFF42, 0x00)
	b.Write(0xFF43, 0x00)
	b.Write(0xFF45, 0x00)
	b.Write(0xFF47, 0xFC)
	b.Write(0xFF48, 0xFF)
	b.Write(0xFF49, 0xFF)
	b.Write(0xFF4A, 0x00)
	b.Write(0xFF4B, 0x00)
	b.Write(0xFFFF, 0x00)
}

// LoadROMFromFile reads a .gb file and loads it through LoadCartridge,
// remembering the path for ROMPath()/battery sidecar derivation.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &cart.RomLoadFailure{Reason: err.Error()}
	}
	if err := m.LoadCartridge(data, nil); err != nil {
		return err
	}
	if abs, err := filepath.Abs(path); err == nil {
		m.romPath = abs
	} else {
		m.romPath = path
	}
	return nil
}

func (m *Machine) ROMPath() string { return m.romPath }

// SetSerialWriter redirects the serial port's byte stream (used by
// cmd/cpurunner and test-ROM harnesses to capture "Passed"/"Failed" output).
func (m *Machine) SetSerialWriter(w io.Writer) {
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// LoadBattery restores battery-backed cart RAM, if the loaded cartridge
// supports it. Reports whether anything was loaded.
func (m *Machine) LoadBattery(data []byte) bool {
	if m.bus == nil {
		return false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok || !bb.HasBattery() {
		return false
	}
	bb.LoadRAM(data)
	return true
}

// SaveBattery returns the cartridge's battery-backed RAM, if any.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m.bus == nil {
		return nil, false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok || !bb.HasBattery() {
		return nil, false
	}
	return bb.SaveRAM(), true
}

// SavePath returns the conventional .sav sidecar path for the loaded ROM, or
// "" if no ROM with a .gb extension was loaded from a file.
func (m *Machine) SavePath() string {
	if m.romPath == "" || !strings.HasSuffix(strings.ToLower(m.romPath), ".gb") {
		return ""
	}
	return strings.TrimSuffix(m.romPath, ".gb") + ".sav"
}

// SetButtons replaces the pressed-button state for the joypad; takes effect
// on the bus immediately (real hardware latches on JOYP reads/selects, which
// the bus already models).
func (m *Machine) SetButtons(b Buttons) {
	if m.bus == nil {
		return
	}
	m.bus.SetJoypadState(b.mask())
}

// StepFrame runs the CPU (and, transitively, the Timer/DMA/PPU it ticks on
// every Step) until the PPU reports a freshly rendered frame, or until a
// generous step budget is exhausted (LCD-off ROMs never raise frame-ready;
// without the budget a disabled LCD would spin StepFrame forever).
func (m *Machine) StepFrame() {
	if m.bus == nil || m.cpu == nil {
		return
	}
	ppu := m.bus.PPU()
	for i := 0; i < m.maxStepsPerFrame; i++ {
		m.cpu.Step()
		if ppu.FrameReady() {
			return
		}
	}
}

// Framebuffer returns the last rendered frame as tightly packed RGBA8888,
// row-major, matching the byte layout image/png and ebiten both expect.
func (m *Machine) Framebuffer() []byte {
	out := make([]byte, ppu.ScreenW*ppu.ScreenH*4)
	if m.bus == nil {
		return out
	}
	fb := m.bus.PPU().Framebuffer()
	i := 0
	for y := 0; y < ppu.ScreenH; y++ {
		for x := 0; x < ppu.ScreenW; x++ {
			argb := fb[y][x]
			out[i+0] = byte(argb >> 16) // R
			out[i+1] = byte(argb >> 8)  // G
			out[i+2] = byte(argb)       // B
			out[i+3] = byte(argb >> 24) // A
			i += 4
		}
	}
	return out
}
