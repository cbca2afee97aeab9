package ppu

// fetchState is one of the fetcher's 8 phases (spec §4.5): a BG phase
// cycling FetchBGNo -> FetchBGLow -> FetchBGHigh -> PushBG, diverted to a
// sprite phase (FetchSpriteNo -> FetchSpriteLow -> FetchSpriteHigh ->
// PushSprite -> FetchBGNo) whenever a due sprite is encountered.
type fetchState int

const (
	FetchBGNo fetchState = iota
	FetchBGLow
	FetchBGHigh
	PushBG
	FetchSpriteNo
	FetchSpriteLow
	FetchSpriteHigh
	PushSprite
)

// fetcher holds the half-speed pixel fetcher's scratch state for the
// current scanline.
type fetcher struct {
	state fetchState
	half  bool // toggles every T-cycle; the state only advances on true

	fetcherX byte // BG tile-column counter, advances one per pushed BG tile
	windowed bool // true once the window layer has been entered this line

	tileID  byte
	lowByte byte
	hiByte  byte

	// sprite sub-fetch scratch
	spriteIdx  int // index into ppu.sprites currently being fetched
	spriteLow  byte
	spriteHigh byte
}

func (p *PPU) resetFetcher() {
	p.fetch = fetcher{state: FetchBGNo}
	p.bgFifo.Clear()
	p.spFifo.Clear()
}

// bgTileMapAddr computes the tile-map index address for the current
// fetcher position, per spec §4.5's tile-address computation.
func (p *PPU) bgTileMapAddr(useWindow bool) uint16 {
	var base uint16
	if useWindow {
		if p.lcdc&0x40 != 0 {
			base = 0x9C00
		} else {
			base = 0x9800
		}
		x := uint16(p.fetch.fetcherX) - uint16((p.wx-7)/8)
		y := uint16(p.ly-p.wy) / 8
		return base + (y&31)*32 + (x & 31)
	}
	if p.lcdc&0x08 != 0 {
		base = 0x9C00
	} else {
		base = 0x9800
	}
	x := (uint16(p.scx)/8 + uint16(p.fetch.fetcherX)) & 31
	y := (uint16(p.ly) + uint16(p.scy)) % 256 / 8
	return base + y*32 + x
}

// fetchWindowActive reports whether the fetcher should pull from the
// window layer at the current position (spec §4.5: LCDC bit 5 and
// WY<=LY and WX<=fetcher_x).
func (p *PPU) fetchWindowActive() bool {
	if p.lcdc&0x20 == 0 {
		return false
	}
	if p.wy > p.ly {
		return false
	}
	return p.wx <= 7+8*p.fetch.fetcherX
}

// tileDataAddr resolves the tile-data base address for a BG/window tile
// ID, honoring LCDC bit 4's signed/unsigned addressing split (spec §9's
// open-question resolution: always signed when bit 4 is clear).
func tileDataAddr(lcdc byte, id byte) uint16 {
	if lcdc&0x10 != 0 {
		return 0x8000 + uint16(id)*16
	}
	return uint16(int32(0x9000) + int32(int8(id))*16)
}

// stepFetcher advances the fetcher FSM by one T-cycle. Each phase only
// acts every other call (half speed); PushBG additionally blocks — stays
// on PushBG without advancing — while the BG FIFO is still non-empty.
func (p *PPU) stepFetcher() {
	wasWindowed := p.fetch.windowed
	p.fetch.windowed = p.fetchWindowActive()
	if p.fetch.windowed && !wasWindowed {
		// Entering the window layer restarts the fetch at FetchBGNo and
		// discards whatever BG pixels the FIFO still held from the
		// background fetch in progress. fetcherX keeps counting screen tile
		// columns: bgTileMapAddr subtracts (WX-7)/8 from it to get the
		// window tile column, and fetchWindowActive compares WX against it.
		p.fetch.state = FetchBGNo
		p.bgFifo.Clear()
	}
	p.maybeStartSpriteFetch()

	p.fetch.half = !p.fetch.half
	if !p.fetch.half {
		return
	}

	switch p.fetch.state {
	case FetchBGNo:
		addr := p.bgTileMapAddr(p.fetch.windowed)
		p.fetch.tileID = p.readVRAMInternal(addr)
		p.fetch.state = FetchBGLow
	case FetchBGLow:
		row := p.bgRow()
		addr := tileDataAddr(p.lcdc, p.fetch.tileID) + uint16(row)*2
		p.fetch.lowByte = p.readVRAMInternal(addr)
		p.fetch.state = FetchBGHigh
	case FetchBGHigh:
		row := p.bgRow()
		addr := tileDataAddr(p.lcdc, p.fetch.tileID) + uint16(row)*2 + 1
		p.fetch.hiByte = p.readVRAMInternal(addr)
		p.fetch.state = PushBG
	case PushBG:
		if p.bgFifo.Len() > 0 {
			return // blocked: FIFO still has pixels from the previous tile
		}
		for i := 0; i < 8; i++ {
			bit := 7 - byte(i)
			ci := ((p.fetch.hiByte>>bit)&1)<<1 | ((p.fetch.lowByte >> bit) & 1)
			p.bgFifo.Push(pixel{color: ci, valid: true})
		}
		p.fetch.fetcherX++
		p.fetch.state = FetchBGNo

	case FetchSpriteNo:
		s := p.sprites[p.fetch.spriteIdx]
		p.fetch.tileID = s.Tile
		if p.spriteHeight() == 16 {
			p.fetch.tileID &^= 1
		}
		p.fetch.state = FetchSpriteLow
	case FetchSpriteLow:
		addr := p.spriteRowAddr(p.fetch.spriteIdx, p.fetch.tileID)
		p.fetch.spriteLow = p.readVRAMInternal(addr)
		p.fetch.state = FetchSpriteHigh
	case FetchSpriteHigh:
		addr := p.spriteRowAddr(p.fetch.spriteIdx, p.fetch.tileID) + 1
		p.fetch.spriteHigh = p.readVRAMInternal(addr)
		p.fetch.state = PushSprite
	case PushSprite:
		s := p.sprites[p.fetch.spriteIdx]
		xflip := s.Flags&0x20 != 0
		palette := byte(0)
		if s.Flags&0x10 != 0 {
			palette = 1
		}
		bgPrio := s.Flags&0x80 != 0
		var row [8]pixel
		for i := 0; i < 8; i++ {
			bit := byte(i)
			if !xflip {
				bit = 7 - byte(i)
			}
			ci := ((p.fetch.spriteHigh>>bit)&1)<<1 | ((p.fetch.spriteLow >> bit) & 1)
			row[i] = pixel{color: ci, paletteTag: palette, bgPriority: bgPrio, valid: ci != 0}
		}
		p.spFifo.MergeSprite(row)
		p.consumedSprites[p.fetch.spriteIdx] = true
		p.fetch.state = FetchBGNo
	}
}

// bgRow returns the row-within-tile (0..7) for the current fetch, honoring
// window vs. BG vertical position per spec §4.5.
func (p *PPU) bgRow() byte {
	if p.fetch.windowed {
		return (p.ly - p.wy) % 8
	}
	return byte((uint16(p.ly) + uint16(p.scy)) % 8)
}

func (p *PPU) spriteHeight() int {
	if p.lcdc&0x04 != 0 {
		return 16
	}
	return 8
}

func (p *PPU) spriteRowAddr(idx int, tileID byte) uint16 {
	s := p.sprites[idx]
	h := p.spriteHeight()
	row := int(p.ly) + 16 - int(s.Y)
	if s.Flags&0x40 != 0 { // y-flip
		row = h - 1 - row
	}
	return 0x8000 + uint16(tileID)*16 + uint16(row%16)*2
}

// maybeStartSpriteFetch diverts the fetcher to a due, unconsumed sprite.
// Sprites are fetched in ascending X order (ties broken by OAM order,
// already preserved in p.sprites) to approximate DMG's X-then-OAM
// priority rule through the FIFO's first-fetched-wins merge.
func (p *PPU) maybeStartSpriteFetch() {
	if p.lcdc&0x02 == 0 { // sprites disabled
		return
	}
	if p.fetch.state != FetchBGNo && p.fetch.state != FetchBGLow &&
		p.fetch.state != FetchBGHigh && p.fetch.state != PushBG {
		return // already mid sprite-fetch
	}
	best := -1
	for i, s := range p.sprites {
		if p.consumedSprites[i] {
			continue
		}
		if int(s.X) > p.pushedPixels+8 {
			continue
		}
		if best == -1 || s.X < p.sprites[best].X {
			best = i
		}
	}
	if best == -1 {
		return
	}
	p.fetch.spriteIdx = best
	p.fetch.state = FetchSpriteNo
	p.fetch.half = false
}
