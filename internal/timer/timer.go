// Package timer implements the DIV/TIMA/TMA/TAC timer block: a 16-bit
// free-running divider, falling-edge TIMA increment, and the 4 T-cycle
// overflow-to-reload delay.
package timer

import "github.com/wrenvale/gbcore/internal/interrupt"

// selectBit maps a TAC clock-select value to the divider bit it watches.
var selectBit = [4]uint{9, 3, 5, 7}

// Timer owns the 16-bit system counter and the TIMA/TMA/TAC registers.
type Timer struct {
	counter uint16 // DIV is the upper 8 bits of this
	tima    byte
	tma     byte
	tac     byte // low 3 bits meaningful: bit2 enable, bits1-0 select

	prevBit  bool // last-sampled TAC-multiplexed bit, for edge detection
	overflow int  // 4-cycle overflow-pending counter; 0 means idle

	irq *interrupt.Bus
}

// New creates a Timer that raises the Timer interrupt through irq.
func New(irq *interrupt.Bus) *Timer {
	return &Timer{irq: irq}
}

// DIV returns the memory-mapped divider register (upper byte of counter).
func (t *Timer) DIV() byte { return byte(t.counter >> 8) }

// WriteDIV zeros the entire 16-bit counter. This can itself cause a
// falling edge on the currently-selected bit and hence a spurious TIMA
// increment — the "DIV write quirk".
func (t *Timer) WriteDIV() {
	t.counter = 0
	t.sampleEdge()
}

func (t *Timer) TIMA() byte       { return t.tima }
func (t *Timer) WriteTIMA(v byte) { t.tima = v; t.overflow = 0 }
func (t *Timer) TMA() byte        { return t.tma }
func (t *Timer) WriteTMA(v byte)  { t.tma = v }
func (t *Timer) TAC() byte        { return 0xF8 | (t.tac & 0x07) }

// WriteTAC stores the low 3 bits. Like a DIV write, changing the enable or
// select can itself trigger a falling edge.
func (t *Timer) WriteTAC(v byte) {
	t.tac = v & 0x07
	t.sampleEdge()
}

func (t *Timer) bit() bool {
	if t.tac&0x04 == 0 {
		return false
	}
	b := selectBit[t.tac&0x03]
	return (t.counter>>b)&1 != 0
}

// sampleEdge re-samples the TAC-multiplexed bit against the last-recorded
// value and ticks TIMA on a 1->0 transition, without advancing the
// counter. Used by DIV/TAC writes, which can produce a falling edge
// outside of the normal per-T-cycle increment.
func (t *Timer) sampleEdge() {
	cur := t.bit()
	if t.prevBit && !cur {
		t.incrementTIMA()
	}
	t.prevBit = cur
}

// Tick advances the timer by one T-cycle: increment the counter, sample the
// falling edge after incrementing (so a counter reset in this same tick can
// produce a spurious increment), then service any pending overflow reload.
func (t *Timer) Tick() {
	t.counter++
	cur := t.bit()
	falling := t.prevBit && !cur
	t.prevBit = cur

	if falling {
		t.incrementTIMA()
	} else if t.overflow > 0 {
		t.overflow--
		if t.overflow == 0 {
			t.tima = t.tma
			t.irq.Request(interrupt.Timer)
		}
	}
}

func (t *Timer) incrementTIMA() {
	if t.tima == 0xFF {
		t.tima = 0
		t.overflow = 4
		return
	}
	t.tima++
}

// State is the gob-serializable snapshot for save states.
type State struct {
	Counter  uint16
	TIMA     byte
	TMA      byte
	TAC      byte
	PrevBit  bool
	Overflow int
}

func (t *Timer) SaveState() State {
	return State{t.counter, t.tima, t.tma, t.tac, t.prevBit, t.overflow}
}

func (t *Timer) LoadState(s State) {
	t.counter, t.tima, t.tma, t.tac = s.Counter, s.TIMA, s.TMA, s.TAC
	t.prevBit, t.overflow = s.PrevBit, s.Overflow
}
