// Package ppu implements the scanline renderer: mode FSM, OAM scan, the
// half-speed pixel fetcher, and the bounded BG/sprite pixel FIFOs.
package ppu

import (
	"bytes"
	"encoding/gob"

	"github.com/wrenvale/gbcore/internal/interrupt"
)

// Mode is one of the four PPU modes; its value matches the low 2 bits of
// STAT.
type Mode byte

const (
	ModeHBlank        Mode = 0
	ModeVBlank        Mode = 1
	ModeOAMScan       Mode = 2
	ModePixelTransfer Mode = 3
)

// PixelSink is the host's push-pixel/present-frame port (spec §6). The PPU
// never blocks on it; a nil sink silently discards pixels, which is useful
// for headless CPU-only conformance runs.
type PixelSink interface {
	PushPixel(r, g, b, a byte)
	PresentFrame()
}

// PPU owns VRAM, OAM, the LCD control/status registers, and the
// fetcher/FIFO pipeline that turns them into pixels.
type PPU struct {
	vram [0x2000]byte // 0x8000-0x9FFF
	oam  [0xA0]byte   // 0xFE00-0xFE9F

	lcdc, stat         byte
	scy, scx           byte
	ly, lyc            byte
	bgp, obp0, obp1    byte
	wy, wx             byte

	mode Mode
	dot  int // 0..455 within the current scanline

	sprites         []oamEntry
	consumedSprites []bool

	bgFifo, spFifo pixelFIFO
	fetch          fetcher

	scxDiscard   int
	pushedPixels int

	statSignalPrev bool

	irq  *interrupt.Bus
	sink PixelSink
}

// New constructs a PPU wired to the shared interrupt bus. The pixel sink
// can be attached later via SetSink; until then pixels are discarded.
func New(irq *interrupt.Bus) *PPU {
	return &PPU{irq: irq, sprites: make([]oamEntry, 0, maxSprites), consumedSprites: make([]bool, 0, maxSprites)}
}

// SetSink attaches the host pixel sink.
func (p *PPU) SetSink(sink PixelSink) { p.sink = sink }

// Mode reports the current PPU mode.
func (p *PPU) Mode() Mode { return p.mode }

// LY reports the current scanline.
func (p *PPU) LY() byte { return p.ly }

func (p *PPU) LCDEnabled() bool { return p.lcdc&0x80 != 0 }

// readVRAMInternal is the fetcher's own VRAM access: unlike CPURead, the
// PPU may always read its own memory regardless of mode.
func (p *PPU) readVRAMInternal(addr uint16) byte {
	if addr >= 0x8000 && addr <= 0x9FFF {
		return p.vram[addr-0x8000]
	}
	return 0xFF
}

// CPURead services CPU reads of VRAM, OAM and the LCD I/O registers,
// honoring the mode-gated access invariants (spec §3): VRAM reads 0xFF
// during PixelTransfer; OAM reads 0xFF during OAMScan and PixelTransfer.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.mode == ModePixelTransfer {
			return 0xFF
		}
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if p.mode == ModeOAMScan || p.mode == ModePixelTransfer {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// CPUWrite services CPU writes to VRAM, OAM and the LCD I/O registers,
// with the same mode-gated lockout as CPURead.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.mode == ModePixelTransfer {
			return
		}
		p.vram[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if p.mode == ModeOAMScan || p.mode == ModePixelTransfer {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if prev&0x80 != 0 && value&0x80 == 0 {
			p.ly, p.dot = 0, 0
			p.setMode(ModeHBlank)
		} else if prev&0x80 == 0 && value&0x80 != 0 {
			// Enabling the display resets the scanline clock to the start
			// of OAMScan on line 0 (spec §5 ordering guarantee).
			p.ly, p.dot = 0, 0
			p.beginOAMScan()
		}
		p.updateLYC()
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		// Writing any value to LY resets the scanline counter, restarting
		// the current frame's line from OAMScan on line 0.
		p.ly, p.dot = 0, 0
		p.beginOAMScan()
		p.updateLYC()
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

// WriteOAM is the narrow port the DMA engine uses to land copied bytes
// directly, bypassing the CPU-facing mode lockout (DMA owns the bus while
// it runs).
func (p *PPU) WriteOAM(offset byte, v byte) {
	p.oam[offset] = v
}

func (p *PPU) setMode(m Mode) {
	p.mode = m
	p.stat = (p.stat &^ 0x03) | byte(m)
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
	} else {
		p.stat &^= 1 << 2
	}
}

// statSignal is the OR of every STAT interrupt source currently enabled
// and true (spec §4.5): LYC==LY gated by bit 6, mode-2 entry gated by bit
// 5, mode-1 gated by bit 4, mode-0 gated by bit 3.
func (p *PPU) statSignal() bool {
	if p.stat&0x04 != 0 && p.stat&0x40 != 0 {
		return true
	}
	switch p.mode {
	case ModeOAMScan:
		return p.stat&0x20 != 0
	case ModeVBlank:
		return p.stat&0x10 != 0
	case ModeHBlank:
		return p.stat&0x08 != 0
	}
	return false
}

func (p *PPU) beginOAMScan() {
	p.setMode(ModeOAMScan)
	p.sprites = p.sprites[:0]
	p.consumedSprites = p.consumedSprites[:0]
}

func (p *PPU) beginPixelTransfer() {
	p.setMode(ModePixelTransfer)
	p.resetFetcher()
	for range p.sprites {
		p.consumedSprites = append(p.consumedSprites, false)
	}
	p.scxDiscard = int(p.scx % 8)
	p.pushedPixels = 0
}

// Tick advances the PPU by one T-cycle. A disabled LCD simply does not
// advance the scanline clock.
func (p *PPU) Tick() {
	if !p.LCDEnabled() {
		return
	}

	prevSignal := p.statSignal()
	enteredVBlank := false

	switch p.mode {
	case ModeOAMScan:
		p.stepOAMScan()
		if p.dot+1 >= 80 {
			p.beginPixelTransfer()
		}
	case ModePixelTransfer:
		if p.stepPixelTransfer() {
			p.setMode(ModeHBlank)
		}
	case ModeHBlank, ModeVBlank:
		// idle: nothing to do until the scanline clock rolls over
	}

	p.dot++
	if p.dot >= 456 {
		p.dot = 0
		p.ly++
		switch {
		case p.ly == 144:
			p.setMode(ModeVBlank)
			enteredVBlank = true
		case p.ly > 153:
			p.ly = 0
			p.beginOAMScan()
		default:
			if p.mode != ModeVBlank {
				p.beginOAMScan()
			}
		}
		p.updateLYC()
	}

	curSignal := p.statSignal()
	if !prevSignal && curSignal {
		p.irq.Request(interrupt.STAT)
	}
	if enteredVBlank {
		p.irq.Request(interrupt.VBlank)
		if p.sink != nil {
			p.sink.PresentFrame()
		}
	}
}

// Registers exposes palette/scroll registers for renderer/debug helpers.
func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }
func (p *PPU) STAT() byte { return 0x80 | (p.stat & 0x7F) }

// State is the gob-serializable snapshot used by save states. The FIFOs
// and fetcher scratch are intentionally not persisted: in practice saves
// and loads happen between Machine.StepFrame calls, which return at VBlank
// entry, and beginPixelTransfer rebuilds both at the next visible line.
type State struct {
	VRAM                       [0x2000]byte
	OAM                        [0xA0]byte
	LCDC, STAT                 byte
	SCY, SCX                   byte
	LY, LYC                    byte
	BGP, OBP0, OBP1            byte
	WY, WX                     byte
	Mode                       Mode
	Dot                        int
}

func (p *PPU) SaveState() []byte {
	var buf bytes.Buffer
	s := State{
		VRAM: p.vram, OAM: p.oam,
		LCDC: p.lcdc, STAT: p.stat,
		SCY: p.scy, SCX: p.scx,
		LY: p.ly, LYC: p.lyc,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
		WY: p.wy, WX: p.wx,
		Mode: p.mode, Dot: p.dot,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (p *PPU) LoadState(data []byte) {
	var s State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	p.vram, p.oam = s.VRAM, s.OAM
	p.lcdc, p.stat = s.LCDC, s.STAT
	p.scy, p.scx = s.SCY, s.SCX
	p.ly, p.lyc = s.LY, s.LYC
	p.bgp, p.obp0, p.obp1 = s.BGP, s.OBP0, s.OBP1
	p.wy, p.wx = s.WY, s.WX
	p.mode, p.dot = s.Mode, s.Dot
}
