// Package cart implements the cartridge/mapper side of the memory map: header
// parsing and the pluggable ROM/RAM banking contract the Bus writes through.
package cart

import "fmt"

// Cartridge is the minimal interface the Bus needs for ROM/RAM banking.
// Addresses are CPU addresses; implementations decide what 0x0000-0x7FFF and
// 0xA000-0xBFFF mean for their banking scheme.
type Cartridge interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)
}

// BatteryBacked is implemented by cartridges whose external RAM should be
// persisted across runs (a battery-backed save, not a save-state: only the
// cart RAM contents round-trip, never CPU/PPU/Timer state).
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
	HasBattery() bool
}

// RomLoadFailure is returned when a ROM cannot be loaded: too small to hold a
// header, or carrying a cartridge-type byte this build does not support.
type RomLoadFailure struct {
	Reason string
}

func (e *RomLoadFailure) Error() string {
	return fmt.Sprintf("rom load failure: %s", e.Reason)
}

func newLoadFailure(format string, args ...any) error {
	return &RomLoadFailure{Reason: fmt.Sprintf(format, args...)}
}

// hasBattery reports whether a cart-type byte denotes a battery-backed variant
// among the cartridge types this build recognizes.
func hasBattery(cartType byte) bool {
	switch cartType {
	case 0x03: // MBC1+RAM+BATTERY
		return true
	default:
		return false
	}
}

// NewCartridge parses the ROM header and picks an implementation. Only
// NoMBC (0x00) and MBC1 (0x01/0x02/0x03) are supported; any other
// cartridge-type byte is a RomLoadFailure (see DESIGN.md Open Question 4 —
// the source spec leaves MBC types beyond MBC1 unresolved, so this build
// does not guess at them).
func NewCartridge(rom []byte) (Cartridge, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, newLoadFailure("%v", err)
	}
	switch h.CartType {
	case 0x00:
		return NewROMOnly(rom), nil
	case 0x01, 0x02, 0x03:
		return NewMBC1(rom, h.RAMSizeBytes, hasBattery(h.CartType)), nil
	default:
		return nil, newLoadFailure("unsupported cartridge type 0x%02X (%s)", h.CartType, h.CartTypeStr)
	}
}
