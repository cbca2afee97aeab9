package ppu

import (
	"testing"

	"github.com/wrenvale/gbcore/internal/interrupt"
)

func TestPPU_VRAMWriteBlockedDuringPixelTransfer(t *testing.T) {
	p := New(&interrupt.Bus{})
	p.mode = ModePixelTransfer
	p.CPUWrite(0x8000, 0x11)
	if got := p.readVRAMInternal(0x8000); got != 0 {
		t.Fatalf("VRAM write should be dropped during PixelTransfer, got %02X", got)
	}

	p.mode = ModeHBlank
	p.CPUWrite(0x8000, 0x11)
	if got := p.readVRAMInternal(0x8000); got != 0x11 {
		t.Fatalf("VRAM write should land during HBlank, got %02X", got)
	}
}

func TestPPU_OAMReadBlockedDuringScanAndTransfer(t *testing.T) {
	p := New(&interrupt.Bus{})
	p.oam[0] = 0x22

	p.mode = ModeOAMScan
	if got := p.CPURead(0xFE00); got != 0xFF {
		t.Fatalf("OAM read during OAMScan got %02X want FF", got)
	}
	p.mode = ModePixelTransfer
	if got := p.CPURead(0xFE00); got != 0xFF {
		t.Fatalf("OAM read during PixelTransfer got %02X want FF", got)
	}
	p.mode = ModeHBlank
	if got := p.CPURead(0xFE00); got != 0x22 {
		t.Fatalf("OAM read during HBlank got %02X want 22", got)
	}
}

func TestPPU_WriteLYResetsLineAndEntersOAMScan(t *testing.T) {
	p := New(&interrupt.Bus{})
	p.ly = 77
	p.dot = 300
	p.mode = ModeHBlank

	p.CPUWrite(0xFF44, 0x99)

	if p.LY() != 0 {
		t.Fatalf("LY not reset: got %d", p.LY())
	}
	if p.Mode() != ModeOAMScan {
		t.Fatalf("mode after LY write got %v want OAMScan", p.Mode())
	}
}

func TestPPU_LYCFlagTracksEquality(t *testing.T) {
	p := New(&interrupt.Bus{})
	p.CPUWrite(0xFF45, 5) // LYC=5
	p.ly = 5
	p.updateLYC()
	if p.CPURead(0xFF41)&(1<<2) == 0 {
		t.Fatalf("expected LYC==LY coincidence flag set")
	}
	p.ly = 6
	p.updateLYC()
	if p.CPURead(0xFF41)&(1<<2) != 0 {
		t.Fatalf("did not expect coincidence flag when LY != LYC")
	}
}

func TestPPU_WriteOAMBypassesModeLockout(t *testing.T) {
	p := New(&interrupt.Bus{})
	p.mode = ModePixelTransfer
	p.WriteOAM(0x10, 0x5A)
	if p.oam[0x10] != 0x5A {
		t.Fatalf("WriteOAM should bypass the CPU lockout, got %02X", p.oam[0x10])
	}
}

func TestPPU_SaveAndLoadState(t *testing.T) {
	p := New(&interrupt.Bus{})
	p.CPUWrite(0xFF47, 0xE4) // BGP
	p.CPUWrite(0xFF42, 7)    // SCY
	p.oam[3] = 0x9B

	s := p.SaveState()

	p2 := New(&interrupt.Bus{})
	p2.LoadState(s)
	if got := p2.CPURead(0xFF47); got != 0xE4 {
		t.Fatalf("BGP not restored: got %02X", got)
	}
	if got := p2.CPURead(0xFF42); got != 7 {
		t.Fatalf("SCY not restored: got %02X", got)
	}
	if p2.oam[3] != 0x9B {
		t.Fatalf("OAM not restored: got %02X", p2.oam[3])
	}
}
