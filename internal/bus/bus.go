package bus

import (
	"bytes"
	"encoding/gob"
	"io"
	"log/slog"

	"github.com/wrenvale/gbcore/internal/apu"
	"github.com/wrenvale/gbcore/internal/cart"
	"github.com/wrenvale/gbcore/internal/dma"
	"github.com/wrenvale/gbcore/internal/interrupt"
	"github.com/wrenvale/gbcore/internal/joypad"
	"github.com/wrenvale/gbcore/internal/ppu"
	"github.com/wrenvale/gbcore/internal/timer"
)

// SampleRate is the stereo sample rate the APU mixes at; the host audio
// sink (internal/host) pulls frames at this rate.
const SampleRate = 48000

// Bus wires CPU-visible address space to the cartridge, WRAM, HRAM, and
// the IO-mapped components (PPU, timer, joypad, DMA, interrupt bus).
// Serial is kept as a pair of stub registers; link-cable timing is out of
// scope.
type Bus struct {
	cart cart.Cartridge

	// Work RAM (WRAM) 8 KiB at 0xC000-0xDFFF; Echo 0xE000-0xFDFF mirrors C000-DDFF.
	wram [0x2000]byte

	// High RAM (HRAM) 0xFF80-0xFFFE (127 bytes)
	hram [0x7F]byte

	ppu    *ppu.PPU
	timer  *timer.Timer
	joypad *joypad.Joypad
	dma    *dma.DMA
	irq    *interrupt.Bus
	apu    *apu.APU

	// Serial
	sb byte      // FF01 data
	sc byte      // FF02 control (bit7 start, bit0 clock source; completed immediately)
	sw io.Writer // optional sink for serial output

	// Boot ROM support
	bootROM     []byte
	bootEnabled bool

	log *slog.Logger
}

// New constructs a Bus with a ROM-only cartridge for convenience.
func New(rom []byte) *Bus {
	return NewWithCartridge(cart.NewCartridge(rom))
}

// NewWithCartridge wires a provided cartridge implementation, along with a
// freshly constructed interrupt bus, timer, joypad and DMA engine.
func NewWithCartridge(c cart.Cartridge) *Bus {
	irq := &interrupt.Bus{}
	b := &Bus{
		cart:   c,
		irq:    irq,
		timer:  timer.New(irq),
		joypad: joypad.New(irq),
		dma:    &dma.DMA{},
		ppu:    ppu.New(irq),
		apu:    apu.New(SampleRate),
		log:    slog.Default().With("component", "bus"),
	}
	return b
}

// PPU returns the internal PPU for rendering/debug helpers.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// IRQ returns the shared interrupt bus, so the CPU can be constructed
// against the same instance.
func (b *Bus) IRQ() *interrupt.Bus { return b.irq }

// Timer returns the internal timer, for the machine driver's per-T-cycle loop.
func (b *Bus) Timer() *timer.Timer { return b.timer }

// DMA returns the internal OAM DMA engine, for the machine driver's
// per-M-cycle loop.
func (b *Bus) DMA() *dma.DMA { return b.dma }

// Joypad returns the internal joypad controller.
func (b *Bus) Joypad() *joypad.Joypad { return b.joypad }

// APU returns the internal audio unit.
func (b *Bus) APU() *apu.APU { return b.apu }

// Cart returns the underlying cartridge for optional battery operations.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// Read services a CPU-initiated read, applying the OAM DMA bus lockout:
// while a transfer is running, any address below 0xFF80 reads back the
// most recently copied byte instead of its real contents (spec §4.4).
func (b *Bus) Read(addr uint16) byte {
	if b.dma.Running() && addr < 0xFF80 {
		return b.dma.LastByte()
	}
	return b.rawRead(addr)
}

// rawRead is the full memory dispatch, used both by Read (once the DMA
// lockout has been checked) and by the DMA engine's own source reads,
// which are not subject to the lockout.
func (b *Bus) rawRead(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		return b.wram[mirror-0xC000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return b.ppu.CPURead(addr)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFF00:
		return b.joypad.Read()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr == 0xFF04:
		return b.timer.DIV()
	case addr == 0xFF05:
		return b.timer.TIMA()
	case addr == 0xFF06:
		return b.timer.TMA()
	case addr == 0xFF07:
		return b.timer.TAC()
	case addr == 0xFF0F:
		return b.irq.IF()
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return b.dma.SourcePage()
	case addr >= 0xFF10 && addr <= 0xFF26, addr >= 0xFF30 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr == 0xFF50:
		return 0xFF
	case addr == 0xFFFF:
		return b.irq.IE()
	default:
		b.log.Debug("read from unmapped address", "addr", addr)
		return 0xFF
	}
}

// Write services a CPU-initiated write, applying the same DMA lockout as
// Read: writes below 0xFF80 are dropped while a transfer is running.
func (b *Bus) Write(addr uint16, value byte) {
	if b.dma.Running() && addr < 0xFF80 {
		return
	}

	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		mirror := addr - 0x2000
		if mirror >= 0xC000 && mirror <= 0xDDFF {
			b.wram[mirror-0xC000] = value
		}
	case addr >= 0xFE00 && addr <= 0xFE9F:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFF00:
		b.joypad.WriteSelect(value)
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if b.sc&0x80 != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.irq.Request(interrupt.Serial)
			b.sc &^= 0x80
		}
	case addr == 0xFF04:
		b.timer.WriteDIV()
	case addr == 0xFF05:
		b.timer.WriteTIMA(value)
	case addr == 0xFF06:
		b.timer.WriteTMA(value)
	case addr == 0xFF07:
		b.timer.WriteTAC(value)
	case addr == 0xFF0F:
		b.irq.SetIF(value)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.dma.Trigger(value)
	case addr >= 0xFF10 && addr <= 0xFF26, addr >= 0xFF30 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr == 0xFF50:
		if value != 0x00 {
			b.bootEnabled = false
		}
	case addr == 0xFFFF:
		b.irq.SetIE(value)
	default:
		b.log.Debug("write to unmapped address", "addr", addr, "value", value)
	}
}

// dmaBusReader adapts Bus.rawRead to dma.BusReader, so the DMA engine's
// own source reads bypass the CPU-facing lockout it itself causes.
type dmaBusReader struct{ b *Bus }

func (r dmaBusReader) Read(addr uint16) byte { return r.b.rawRead(addr) }

// TickDMA advances the OAM DMA engine by one M-cycle.
func (b *Bus) TickDMA() {
	b.dma.Tick(dmaBusReader{b}, b.ppu)
}

// TickT advances every T-cycle-granular component (timer, PPU, APU) by one
// T-cycle. The machine driver calls this 4 times per CPU M-cycle, and
// TickDMA once per M-cycle, mirroring the real hardware's clock domains.
func (b *Bus) TickT() {
	b.timer.Tick()
	b.ppu.Tick()
	b.apu.Tick(1)
}

// Joypad button bitmasks, re-exported for callers that only import bus.
const (
	JoypRight     = joypad.Right
	JoypLeft      = joypad.Left
	JoypUp        = joypad.Up
	JoypDown      = joypad.Down
	JoypA         = joypad.A
	JoypB         = joypad.B
	JoypSelectBtn = joypad.Select
	JoypStart     = joypad.Start
)

// SetJoypadState sets which buttons are currently pressed (bits per the
// Joyp* constants above; set bits mean pressed).
func (b *Bus) SetJoypadState(mask byte) { b.joypad.SetPressed(mask) }

// SetSerialWriter sets a sink that receives bytes written via the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

// SetBootROM loads a DMG boot ROM to be mapped at 0x0000-0x00FF until disabled via 0xFF50 write.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = nil
	b.bootEnabled = false
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	}
}

// --- Save/Load state ---

type busState struct {
	WRAM      [0x2000]byte
	HRAM      [0x7F]byte
	SB, SC    byte
	BootEn    bool
	IRQ       interrupt.State
	Timer     timer.State
	Joypad    joypad.State
	DMA       dma.State
}

func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := busState{
		WRAM: b.wram, HRAM: b.hram,
		SB: b.sb, SC: b.sc, BootEn: b.bootEnabled,
		IRQ: b.irq.SaveState(), Timer: b.timer.SaveState(),
		Joypad: b.joypad.SaveState(), DMA: b.dma.SaveState(),
	}
	_ = enc.Encode(s)

	ppuState := b.ppu.SaveState()
	_ = enc.Encode(ppuState)

	apuState := b.apu.SaveState()
	_ = enc.Encode(apuState)

	var cartState []byte
	if bb, ok := b.cart.(interface{ SaveState() []byte }); ok {
		cartState = bb.SaveState()
	}
	_ = enc.Encode(cartState)

	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var s busState
	if err := dec.Decode(&s); err != nil {
		return
	}
	b.wram, b.hram = s.WRAM, s.HRAM
	b.sb, b.sc, b.bootEnabled = s.SB, s.SC, s.BootEn
	b.irq.LoadState(s.IRQ)
	b.timer.LoadState(s.Timer)
	b.joypad.LoadState(s.Joypad)
	b.dma.LoadState(s.DMA)

	var ppuState []byte
	if err := dec.Decode(&ppuState); err == nil {
		b.ppu.LoadState(ppuState)
	}

	var apuState []byte
	if err := dec.Decode(&apuState); err == nil {
		b.apu.LoadState(apuState)
	}

	var cartState []byte
	if err := dec.Decode(&cartState); err == nil {
		if bb, ok := b.cart.(interface{ LoadState([]byte) }); ok {
			bb.LoadState(cartState)
		}
	}
}
