package ppu

// oamEntry is the four-byte OAM sprite descriptor: y, x, tile-id, flags.
type oamEntry struct {
	Y, X, Tile, Flags byte
}

const maxSprites = 10

// stepOAMScan runs one dot of the 80-dot OAM scan: one entry is examined
// every 2 dots (40 entries total). A candidate is retained if LY+16 falls
// within the sprite's vertical extent and fewer than 10 are already
// retained; order is OAM scan order.
func (p *PPU) stepOAMScan() {
	if p.dot%2 != 0 {
		return
	}
	idx := p.dot / 2
	if idx >= 40 {
		return
	}
	base := idx * 4
	y := p.oam[base]
	x := p.oam[base+1]
	tile := p.oam[base+2]
	flags := p.oam[base+3]

	if len(p.sprites) >= maxSprites {
		return
	}
	h := p.spriteHeight()
	top := int(y)
	ly16 := int(p.ly) + 16
	if ly16 >= top && ly16 < top+h {
		p.sprites = append(p.sprites, oamEntry{Y: y, X: x, Tile: tile, Flags: flags})
	}
}

// stepPixelTransfer advances the fetcher/FIFO pipeline by one dot and
// attempts to pop+output one composed pixel. Returns true once 160
// pixels have been pushed for this scanline.
func (p *PPU) stepPixelTransfer() bool {
	p.stepFetcher()

	if p.bgFifo.Len() == 0 {
		return false
	}
	// A sprite fetch in progress holds up popping, same as real hardware
	// stalling the FIFO while the fetcher is diverted.
	if p.fetch.state == FetchSpriteNo || p.fetch.state == FetchSpriteLow ||
		p.fetch.state == FetchSpriteHigh || p.fetch.state == PushSprite {
		return false
	}

	bg, _ := p.bgFifo.Pop()
	sp, _ := p.spFifo.Pop()

	if p.scxDiscard > 0 {
		p.scxDiscard--
		return false
	}

	p.pushComposite(bg, sp)
	p.pushedPixels++
	return p.pushedPixels >= 160
}

// pushComposite resolves one merged BG+sprite pixel against LCDC/palettes
// and writes it to the host pixel sink (spec §4.5 "Pixel composition").
func (p *PPU) pushComposite(bg, sp pixel) {
	bgColor := bg.color
	if p.lcdc&0x01 == 0 {
		bgColor = 0
	}

	useSprite := p.lcdc&0x02 != 0 && sp.valid && sp.color != 0 &&
		(!sp.bgPriority || bgColor == 0)

	var idx byte
	var palette byte
	if useSprite {
		idx = sp.color
		if sp.paletteTag == 0 {
			palette = p.obp0
		} else {
			palette = p.obp1
		}
	} else {
		idx = bgColor
		palette = p.bgp
	}

	shade := (palette >> (idx * 2)) & 0x03
	if p.sink != nil {
		r, g, b := shadeColor(shade)
		p.sink.PushPixel(r, g, b, 0xFF)
	}
}

// shadeColor maps a 2-bit DMG shade to an RGB triple using the classic
// four-tone green-tinted palette.
func shadeColor(shade byte) (r, g, b byte) {
	switch shade {
	case 0:
		return 0xE0, 0xF8, 0xD0
	case 1:
		return 0x88, 0xC0, 0x70
	case 2:
		return 0x34, 0x68, 0x56
	default:
		return 0x08, 0x18, 0x20
	}
}
