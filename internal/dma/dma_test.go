package dma

import "testing"

type fakeBus struct{ mem [0x10000]byte }

func (f *fakeBus) Read(addr uint16) byte { return f.mem[addr] }

type fakeOAM struct{ oam [0xA0]byte }

func (f *fakeOAM) WriteOAM(offset byte, v byte) { f.oam[offset] = v }

func TestDMA_StartDelayThenCopies(t *testing.T) {
	var d DMA
	var src fakeBus
	var dst fakeOAM
	for i := 0; i < 0xA0; i++ {
		src.mem[0xC000+uint16(i)] = byte(i + 1)
	}

	d.Trigger(0xC0)
	if !d.Running() {
		// Trigger only arms; running starts on the next Tick.
	}

	d.Tick(&src, &dst) // consumes the one-cycle start delay
	if !d.Running() {
		t.Fatalf("expected transfer running after start delay")
	}
	if dst.oam[0] != 0 {
		t.Fatalf("no byte should be copied during the start-delay cycle")
	}

	for i := 0; i < 0xA0; i++ {
		d.Tick(&src, &dst)
	}
	if d.Running() {
		t.Fatalf("expected transfer to finish after 160 copy cycles")
	}
	for i := 0; i < 0xA0; i++ {
		if dst.oam[i] != byte(i+1) {
			t.Fatalf("OAM[%02X] got %02X want %02X", i, dst.oam[i], byte(i+1))
		}
	}
}

func TestDMA_LastByteTracksMostRecentCopy(t *testing.T) {
	var d DMA
	var src fakeBus
	var dst fakeOAM
	src.mem[0xC000] = 0x42

	d.Trigger(0xC0)
	d.Tick(&src, &dst) // start delay
	d.Tick(&src, &dst) // copies offset 0
	if got := d.LastByte(); got != 0x42 {
		t.Fatalf("LastByte got %02X want 42", got)
	}
}

func TestDMA_SaveAndLoadState(t *testing.T) {
	var d DMA
	var src fakeBus
	var dst fakeOAM
	d.Trigger(0xD0)
	d.Tick(&src, &dst)
	d.Tick(&src, &dst)

	s := d.SaveState()

	var d2 DMA
	d2.LoadState(s)
	if d2.SourcePage() != d.SourcePage() || d2.Running() != d.Running() || d2.LastByte() != d.LastByte() {
		t.Fatalf("state not restored: got %+v", d2)
	}
}
