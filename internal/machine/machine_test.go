package machine

import (
	"os"
	"path/filepath"
	"testing"
)

// minimalROM builds a ROM-only cartridge image large enough for a valid
// header; the header checksum need not validate for LoadCartridge to
// succeed, only ParseHeader's size check.
func minimalROM(title string) []byte {
	rom := make([]byte, 32*1024)
	copy(rom[0x0134:0x0144], title)
	rom[0x0147] = 0x00 // ROM ONLY
	rom[0x0148] = 0x00 // 32KiB
	rom[0x0149] = 0x00 // no RAM
	return rom
}

func TestMachine_LoadCartridgeWiresBusAndCPU(t *testing.T) {
	m := New()
	if err := m.LoadCartridge(minimalROM("HELLO"), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if m.ROMTitle() != "HELLO" {
		t.Fatalf("ROMTitle got %q want HELLO", m.ROMTitle())
	}
	if m.Bus() == nil || m.CPU() == nil {
		t.Fatalf("expected Bus/CPU to be wired after LoadCartridge")
	}
}

func TestMachine_StepFrameFillsFramebuffer(t *testing.T) {
	m := New()
	if err := m.LoadCartridge(minimalROM("TEST"), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.Bus().PPU().CPUWrite(0xFF40, 0x80) // LCD on

	m.StepFrame()

	fb := m.Framebuffer()
	if len(fb) != 160*144*4 {
		t.Fatalf("framebuffer size got %d want %d", len(fb), 160*144*4)
	}
	for i := 3; i < len(fb); i += 4 {
		if fb[i] != 0xFF {
			t.Fatalf("pixel %d not written by StepFrame (alpha %02X)", i/4, fb[i])
		}
	}
}

func TestMachine_SetButtonsReachesJoypad(t *testing.T) {
	m := New()
	if err := m.LoadCartridge(minimalROM("TEST"), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.Bus().Write(0xFF00, 0x20) // select D-Pad

	m.SetButtons(Buttons{Right: true})
	if got := m.Bus().Read(0xFF00) & 0x0F; got&0x01 != 0 {
		t.Fatalf("Right bit not reflected in JOYP: got %04b", got)
	}
}

func TestMachine_SaveAndLoadStateRoundTrip(t *testing.T) {
	m := New()
	if err := m.LoadCartridge(minimalROM("TEST"), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	m.Bus().Write(0xC000, 0xAB)
	path := filepath.Join(t.TempDir(), "state.sav")

	if err := m.SaveStateToFile(path); err != nil {
		t.Fatalf("SaveStateToFile: %v", err)
	}

	m2 := New()
	if err := m2.LoadCartridge(minimalROM("TEST"), nil); err != nil {
		t.Fatalf("LoadCartridge: %v", err)
	}
	if err := m2.LoadStateFromFile(path); err != nil {
		t.Fatalf("LoadStateFromFile: %v", err)
	}
	if got := m2.Bus().Read(0xC000); got != 0xAB {
		t.Fatalf("WRAM not restored: got %02X want AB", got)
	}
}

func TestMachine_LoadROMFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.gb")
	if err := os.WriteFile(path, minimalROM("FROMFILE"), 0o644); err != nil {
		t.Fatalf("write test ROM: %v", err)
	}
	m := New()
	if err := m.LoadROMFromFile(path); err != nil {
		t.Fatalf("LoadROMFromFile: %v", err)
	}
	if m.ROMTitle() != "FROMFILE" {
		t.Fatalf("ROMTitle got %q want FROMFILE", m.ROMTitle())
	}
}
