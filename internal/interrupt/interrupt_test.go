package interrupt

import "testing"

func TestBus_RequestAndPending(t *testing.T) {
	var b Bus
	if b.Pending() {
		t.Fatalf("expected no pending interrupt on a fresh bus")
	}

	b.Request(Timer)
	if b.Pending() {
		t.Fatalf("did not expect Pending true before IE is set")
	}

	b.SetIE(1 << Timer)
	if !b.Pending() {
		t.Fatalf("expected Pending true once IE enables the requested bit")
	}
}

func TestBus_IFTopBitsAlwaysSet(t *testing.T) {
	var b Bus
	b.SetIF(0x1F)
	if got := b.IF(); got != 0xFF {
		t.Fatalf("IF readback got %02X want FF", got)
	}
	b.SetIF(0x00)
	if got := b.IF(); got != 0xE0 {
		t.Fatalf("IF readback got %02X want E0", got)
	}
}

func TestBus_ClearSingleBit(t *testing.T) {
	var b Bus
	b.Request(VBlank)
	b.Request(Timer)
	b.Clear(VBlank)
	if b.IF()&(1<<VBlank) != 0 {
		t.Fatalf("VBlank bit not cleared")
	}
	if b.IF()&(1<<Timer) == 0 {
		t.Fatalf("Timer bit unexpectedly cleared")
	}
}

func TestBus_LowestPriority(t *testing.T) {
	var b Bus
	b.SetIE(0xFF)
	b.Request(Joypad)
	b.Request(STAT)

	bit, ok := b.Lowest()
	if !ok || bit != STAT {
		t.Fatalf("Lowest got bit=%d ok=%v want STAT", bit, ok)
	}
}

func TestBus_SaveAndLoadState(t *testing.T) {
	var b Bus
	b.SetIE(0x1B)
	b.Request(Serial)

	s := b.SaveState()

	var b2 Bus
	b2.LoadState(s)
	if b2.IE() != b.IE() || b2.IF() != b.IF() {
		t.Fatalf("state not restored: IE=%02X IF=%02X want IE=%02X IF=%02X", b2.IE(), b2.IF(), b.IE(), b.IF())
	}
}
