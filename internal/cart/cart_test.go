package cart

import "testing"

func romWithType(cartType byte) []byte {
	rom := make([]byte, 0x8000)
	rom[0x0147] = cartType
	rom[0x0148] = 0x00
	rom[0x0149] = 0x00
	return rom
}

func TestNewCartridge_NoMBC(t *testing.T) {
	c, err := NewCartridge(romWithType(0x00))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.(*ROMOnly); !ok {
		t.Fatalf("expected *ROMOnly, got %T", c)
	}
}

func TestNewCartridge_MBC1(t *testing.T) {
	c, err := NewCartridge(romWithType(0x01))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.(*MBC1); !ok {
		t.Fatalf("expected *MBC1, got %T", c)
	}
}

func TestNewCartridge_UnsupportedTypeFails(t *testing.T) {
	_, err := NewCartridge(romWithType(0x13)) // MBC3+RAM+BATTERY
	if err == nil {
		t.Fatalf("expected RomLoadFailure for unsupported cart type")
	}
	if _, ok := err.(*RomLoadFailure); !ok {
		t.Fatalf("expected *RomLoadFailure, got %T", err)
	}
}

func TestNewCartridge_TooSmallFails(t *testing.T) {
	_, err := NewCartridge([]byte{0x00, 0x01})
	if err == nil {
		t.Fatalf("expected RomLoadFailure for truncated ROM")
	}
}
