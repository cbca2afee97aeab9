// Package machine composes the CPU, bus and cartridge into the top-level
// driver: it owns the T-cycle loop, the pixel-sink wiring, and the
// save-state/battery file format.
package machine

import (
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"

	"github.com/wrenvale/gbcore/internal/bus"
	"github.com/wrenvale/gbcore/internal/cart"
	"github.com/wrenvale/gbcore/internal/cpu"
	"github.com/wrenvale/gbcore/internal/ppu"
)

const (
	screenW = 160
	screenH = 144
)

// Buttons is the host-independent input snapshot passed to SetButtons.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.Right {
		m |= bus.JoypRight
	}
	if b.Left {
		m |= bus.JoypLeft
	}
	if b.Up {
		m |= bus.JoypUp
	}
	if b.Down {
		m |= bus.JoypDown
	}
	if b.A {
		m |= bus.JoypA
	}
	if b.B {
		m |= bus.JoypB
	}
	if b.Select {
		m |= bus.JoypSelectBtn
	}
	if b.Start {
		m |= bus.JoypStart
	}
	return m
}

// frameSink is the PixelSink the Machine attaches to the PPU: it fills an
// RGBA framebuffer and flips a flag every VBlank that StepFrame polls.
type frameSink struct {
	fb    []byte
	x, y  int
	ready bool
}

func newFrameSink() *frameSink {
	return &frameSink{fb: make([]byte, screenW*screenH*4)}
}

func (s *frameSink) PushPixel(r, g, b, a byte) {
	if s.y >= screenH {
		return
	}
	i := (s.y*screenW + s.x) * 4
	s.fb[i], s.fb[i+1], s.fb[i+2], s.fb[i+3] = r, g, b, a
	s.x++
	if s.x >= screenW {
		s.x = 0
		s.y++
	}
}

func (s *frameSink) PresentFrame() {
	s.x, s.y = 0, 0
	s.ready = true
}

var _ ppu.PixelSink = (*frameSink)(nil)

// Machine is the emulator core: cartridge + bus + CPU, stepped one frame
// at a time.
type Machine struct {
	bus  *bus.Bus
	cpu  *cpu.CPU
	sink *frameSink

	romPath  string
	romTitle string

	log *slog.Logger
}

// New constructs an unloaded Machine. Call LoadCartridge before stepping.
func New() *Machine {
	return &Machine{log: slog.Default().With("component", "machine")}
}

// LoadCartridge parses rom, wires a fresh bus/CPU pair, and optionally
// maps a DMG boot ROM at 0x0000-0x00FF until it self-disables.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	hdr, err := cart.ParseHeader(rom)
	if err != nil {
		return fmt.Errorf("parse cartridge header: %w", err)
	}
	c := cart.NewCartridge(rom)
	b := bus.NewWithCartridge(c)
	sink := newFrameSink()
	b.PPU().SetSink(sink)

	m.bus = b
	m.cpu = cpu.New(b, b.IRQ())
	m.sink = sink
	m.romTitle = hdr.Title

	if len(boot) > 0 {
		b.SetBootROM(boot)
	} else {
		m.cpu.ResetNoBoot()
	}
	return nil
}

// LoadROMFromFile loads a cartridge image from disk.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(data, nil); err != nil {
		return err
	}
	m.romPath = path
	if bat, ok := m.bus.Cart().(cart.BatteryBacked); ok {
		if sav, err := os.ReadFile(path[:len(path)-len(ext(path))] + ".sav"); err == nil {
			bat.LoadRAM(sav)
		}
	}
	return nil
}

func ext(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

// ResetNoBoot resets to the typical DMG post-boot register state, used
// when no boot ROM is mapped.
func (m *Machine) ResetNoBoot() { m.cpu.ResetNoBoot() }

// ROMPath returns the path LoadROMFromFile or SetROMPath recorded, or ""
// if none.
func (m *Machine) ROMPath() string { return m.romPath }

// SetROMPath records the path a cartridge was loaded from, for callers
// that loaded the ROM bytes themselves (e.g. to log the header first).
func (m *Machine) SetROMPath(path string) { m.romPath = path }

// LoadBatteryFile restores the cartridge's battery-backed RAM from path,
// if the cartridge supports it. A missing file is not an error.
func (m *Machine) LoadBatteryFile(path string) error {
	bat, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	bat.LoadRAM(data)
	return nil
}

// ROMTitle returns the cartridge header's title field.
func (m *Machine) ROMTitle() string { return m.romTitle }

// SetButtons updates the pressed-button mask for the next CPU-visible JOYP read.
func (m *Machine) SetButtons(b Buttons) {
	if m.bus != nil {
		m.bus.SetJoypadState(b.mask())
	}
}

// Framebuffer returns the RGBA 160x144 pixel buffer, updated once per
// presented frame.
func (m *Machine) Framebuffer() []byte { return m.sink.fb }

// StepFrame runs the machine until one frame has been presented (spec
// §4.5's VBlank boundary), then returns.
func (m *Machine) StepFrame() {
	m.sink.ready = false
	for !m.sink.ready {
		m.stepMCycle()
	}
}

// stepMCycle advances every clock domain by one CPU M-cycle: PPU/timer/APU
// tick 4 times (one per T-cycle), CPU and DMA tick once.
func (m *Machine) stepMCycle() {
	for i := 0; i < 4; i++ {
		m.bus.TickT()
	}
	m.bus.TickDMA()
	m.cpu.Tick()
}

// Bus exposes the internal bus for tools/tests/debug UIs.
func (m *Machine) Bus() *bus.Bus { return m.bus }

// CPU exposes the internal CPU for tools/tests/debug UIs.
func (m *Machine) CPU() *cpu.CPU { return m.cpu }

// --- Save states and battery ---

const saveStateVersion = 1

type saveStateEnvelope struct {
	Version int
	PC      uint16
	Bus     []byte
	CPU     cpu.State
}

// SaveStateToFile writes a versioned gob snapshot of the bus and CPU to path.
func (m *Machine) SaveStateToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	env := saveStateEnvelope{
		Version: saveStateVersion,
		PC:      m.cpu.PC,
		Bus:     m.bus.SaveState(),
		CPU:     m.cpu.SaveState(),
	}
	return gob.NewEncoder(f).Encode(env)
}

// LoadStateFromFile restores a snapshot written by SaveStateToFile.
func (m *Machine) LoadStateFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var env saveStateEnvelope
	if err := gob.NewDecoder(f).Decode(&env); err != nil {
		return err
	}
	if env.Version != saveStateVersion {
		return fmt.Errorf("save state version %d unsupported (want %d)", env.Version, saveStateVersion)
	}
	m.bus.LoadState(env.Bus)
	m.cpu.LoadState(env.CPU)
	return nil
}

// SaveBattery writes the cartridge's battery-backed RAM, if any, to path.
func (m *Machine) SaveBattery(path string) error {
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil
	}
	return os.WriteFile(path, bb.SaveRAM(), 0o644)
}

// APUPullStereo drains up to max stereo frames from the APU's ring buffer,
// returned as interleaved L/R int16 samples (up to 2*max values).
func (m *Machine) APUPullStereo(max int) []int16 { return m.bus.APU().PullStereo(max) }
