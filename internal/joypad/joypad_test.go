package joypad

import (
	"testing"

	"github.com/wrenvale/gbcore/internal/interrupt"
)

func TestJoypad_DPadSelection(t *testing.T) {
	irq := &interrupt.Bus{}
	j := New(irq)

	j.WriteSelect(0x20) // P14=0 selects D-Pad, P15=1
	j.SetPressed(Right | Up)

	if got := j.Read() & 0x0F; got != 0x0A { // Right+Up cleared: 1010b
		t.Fatalf("D-Pad read got %04b want 1010", got)
	}
}

func TestJoypad_ButtonSelection(t *testing.T) {
	irq := &interrupt.Bus{}
	j := New(irq)

	j.WriteSelect(0x10) // P15=0 selects Buttons
	j.SetPressed(A | Start)

	if got := j.Read() & 0x0F; got != 0x06 { // A+Start cleared: 0110b
		t.Fatalf("Buttons read got %04b want 0110", got)
	}
}

func TestJoypad_FallingEdgeRequestsInterrupt(t *testing.T) {
	irq := &interrupt.Bus{}
	irq.SetIE(0xFF)
	j := New(irq)
	j.WriteSelect(0x20) // D-Pad selected, nothing pressed

	j.SetPressed(Down) // 1->0 transition on bit3
	if irq.IF()&(1<<interrupt.Joypad) == 0 {
		t.Fatalf("expected Joypad IRQ requested on button press")
	}
}

func TestJoypad_NoEdgeWhenRowUnselected(t *testing.T) {
	irq := &interrupt.Bus{}
	irq.SetIE(0xFF)
	j := New(irq)
	j.WriteSelect(0x30) // both rows deselected

	j.SetPressed(A | Right)
	if irq.IF()&(1<<interrupt.Joypad) != 0 {
		t.Fatalf("did not expect Joypad IRQ while both rows deselected")
	}
}

func TestJoypad_SaveAndLoadState(t *testing.T) {
	irq := &interrupt.Bus{}
	j := New(irq)
	j.WriteSelect(0x10)
	j.SetPressed(B)

	s := j.SaveState()

	j2 := New(irq)
	j2.LoadState(s)
	if got := j2.Read(); got != j.Read() {
		t.Fatalf("state not restored: got %02X want %02X", got, j.Read())
	}
}
