// Package joypad implements the P1/JOYP button matrix and the falling-edge
// Joypad interrupt request. Button changes are not debounced: every change
// passed to SetPressed is visible on the next P1 read.
package joypad

import "github.com/wrenvale/gbcore/internal/interrupt"

// Button bitmasks for SetPressed. Set bits mean "currently held".
const (
	Right = 1 << iota
	Left
	Up
	Down
	A
	B
	Select
	Start
)

// Joypad tracks the host's button state and the two selectable 4-bit
// rows (D-Pad, Buttons) that P1 multiplexes onto bits 0-3.
type Joypad struct {
	selectBits byte // bits 5-4 as last written to P1
	pressed    byte // 8-bit host-side mask, see the button constants
	prevLower4 byte // previous active-low reading, for edge detection

	irq *interrupt.Bus
}

// New constructs a Joypad wired to the shared interrupt bus.
func New(irq *interrupt.Bus) *Joypad {
	return &Joypad{prevLower4: 0x0F, irq: irq}
}

// WriteSelect handles a CPU write to P1 bits 5-4 (the only writable bits).
func (j *Joypad) WriteSelect(v byte) {
	j.selectBits = v & 0x30
	j.recompute()
}

// Read returns the full P1 byte: bits 7-6 always 1, bits 5-4 the last
// selection, bits 3-0 the active-low state of the selected row(s).
func (j *Joypad) Read() byte {
	return 0xC0 | j.selectBits | j.lower4()
}

// SetPressed replaces the host-side pressed-button mask (bits per the
// Right/Left/.../Start constants; set = held down).
func (j *Joypad) SetPressed(mask byte) {
	j.pressed = mask
	j.recompute()
}

func (j *Joypad) lower4() byte {
	lo := byte(0x0F)
	if j.selectBits&0x10 == 0 { // P14 low selects D-Pad
		if j.pressed&Right != 0 {
			lo &^= 0x01
		}
		if j.pressed&Left != 0 {
			lo &^= 0x02
		}
		if j.pressed&Up != 0 {
			lo &^= 0x04
		}
		if j.pressed&Down != 0 {
			lo &^= 0x08
		}
	}
	if j.selectBits&0x20 == 0 { // P15 low selects Buttons
		if j.pressed&A != 0 {
			lo &^= 0x01
		}
		if j.pressed&B != 0 {
			lo &^= 0x02
		}
		if j.pressed&Select != 0 {
			lo &^= 0x04
		}
		if j.pressed&Start != 0 {
			lo &^= 0x08
		}
	}
	return lo
}

// recompute re-derives the active-low lower nibble and requests the
// Joypad interrupt on any 1->0 transition (a button press, or a
// selection change that newly exposes an already-held button).
func (j *Joypad) recompute() {
	cur := j.lower4()
	falling := j.prevLower4 &^ cur
	if falling != 0 {
		j.irq.Request(interrupt.Joypad)
	}
	j.prevLower4 = cur
}

// State is the gob-serializable snapshot for save states.
type State struct {
	SelectBits byte
	Pressed    byte
	PrevLower4 byte
}

func (j *Joypad) SaveState() State {
	return State{j.selectBits, j.pressed, j.prevLower4}
}

func (j *Joypad) LoadState(s State) {
	j.selectBits, j.pressed, j.prevLower4 = s.SelectBits, s.Pressed, s.PrevLower4
}
