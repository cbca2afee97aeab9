package timer

import (
	"testing"

	"github.com/wrenvale/gbcore/internal/interrupt"
)

func TestTimer_DIVWriteFallingEdgeIncrementsTIMA(t *testing.T) {
	irq := &interrupt.Bus{}
	tm := New(irq)
	tm.WriteTAC(0x05) // enabled, select bit3
	tm.tima = 0x10
	tm.counter = 0x0008 // bit3=1
	tm.sampleEdge()     // establish prevBit=true without mutating tima
	if !tm.bit() {
		t.Fatalf("expected timer input bit true")
	}
	tm.WriteDIV() // counter->0, bit3 falls 1->0
	if tm.tima != 0x11 {
		t.Fatalf("TIMA not incremented on DIV falling edge: got %02X want 11", tm.tima)
	}
}

func TestTimer_TACChangeFallingEdgeIncrementsTIMA(t *testing.T) {
	irq := &interrupt.Bus{}
	tm := New(irq)
	tm.counter = 0x0008 // bit3=1
	tm.WriteTAC(0x05)   // enable + select bit3 -> samples true, no edge yet
	tm.tima = 0x20
	if !tm.bit() {
		t.Fatalf("expected bit3 selected and high")
	}
	tm.WriteTAC(0x06) // switch to bit5, which is 0 -> falling edge
	if tm.tima != 0x21 {
		t.Fatalf("TIMA not incremented on TAC falling edge: got %02X want 21", tm.tima)
	}
}

func TestTimer_OverflowReloadTimingAndCancellation(t *testing.T) {
	irq := &interrupt.Bus{}
	irq.SetIE(0xFF)
	tm := New(irq)
	tm.WriteTAC(0x05)
	tm.WriteTMA(0xAB)
	tm.tima = 0xFF
	tm.counter = 0x000F // bit3=1; next Tick -> 0x0010, bit3=0 (falling)
	tm.sampleEdge()     // establish prevBit=true without mutating tima

	tm.Tick() // falling edge overflows TIMA to 0, arms a 4-cycle reload
	if tm.tima != 0x00 {
		t.Fatalf("after overflow, TIMA got %02X want 00", tm.tima)
	}
	if irq.IF()&(1<<interrupt.Timer) != 0 {
		t.Fatalf("timer IRQ requested before reload delay elapsed")
	}

	for i := 0; i < 3; i++ {
		tm.Tick()
		if tm.tima != 0x00 {
			t.Fatalf("during delay cycle %d, TIMA got %02X want 00", i, tm.tima)
		}
	}
	tm.Tick() // 4th cycle after overflow: reload from TMA, request IRQ
	if tm.tima != 0xAB {
		t.Fatalf("after delay, TIMA got %02X want AB", tm.tima)
	}
	if irq.IF()&(1<<interrupt.Timer) == 0 {
		t.Fatalf("timer IRQ not requested on reload")
	}

	// Writing TIMA during the pending delay cancels the reload.
	irq.SetIF(0)
	tm.WriteTMA(0x55)
	tm.tima = 0xFF
	tm.counter = 0x000F
	tm.sampleEdge()
	tm.Tick() // overflow -> pending reload armed
	tm.WriteTIMA(0x77)
	for i := 0; i < 8; i++ {
		tm.Tick()
	}
	if tm.tima != 0x77 {
		t.Fatalf("TIMA write during delay not retained: got %02X want 77", tm.tima)
	}
	if irq.IF()&(1<<interrupt.Timer) != 0 {
		t.Fatalf("timer IRQ requested despite reload cancellation")
	}
}
