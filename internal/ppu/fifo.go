package ppu

// pixel is the {color2, palette-tag, bg-priority} triple the spec describes
// for both the BG and sprite FIFOs.
type pixel struct {
	color      byte // 2-bit color index
	paletteTag byte // BG: always 0 (BGP). Sprite: 0=OBP0, 1=OBP1.
	bgPriority bool // sprite OAM attribute bit 7 ("behind BG colors 1-3")
	valid      bool // sprite FIFO slots start empty; BG FIFO never holds invalid entries
}

// pixelFIFO is a bounded ring buffer, capacity 16, matching the hardware
// pixel FIFO depth named throughout the spec.
type pixelFIFO struct {
	buf        [16]pixel
	head, size int
}

func (q *pixelFIFO) Len() int { return q.size }

func (q *pixelFIFO) Clear() { q.head, q.size = 0, 0 }

// Push appends one entry at the tail. Returns false if the FIFO is full,
// which callers must never hit in practice (fetches are gated on having
// room), but is checked rather than trusted.
func (q *pixelFIFO) Push(p pixel) bool {
	if q.size == len(q.buf) {
		return false
	}
	idx := (q.head + q.size) % len(q.buf)
	q.buf[idx] = p
	q.size++
	return true
}

func (q *pixelFIFO) Pop() (pixel, bool) {
	if q.size == 0 {
		return pixel{}, false
	}
	p := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return p, true
}

// MergeSprite overlays 8 freshly-fetched sprite pixels onto the tail of the
// FIFO, starting a new entry for any position beyond the current size but
// never replacing an already-populated (valid) slot — OAM-order sprites
// win ties over later, lower-priority ones that happen to overlap.
func (q *pixelFIFO) MergeSprite(pixels [8]pixel) {
	for i, p := range pixels {
		if !p.valid {
			continue
		}
		if i < q.size {
			idx := (q.head + i) % len(q.buf)
			if !q.buf[idx].valid {
				q.buf[idx] = p
			}
			continue
		}
		// Extend the FIFO up to the needed length, padding any gap with
		// empty (transparent, invalid) sprite entries.
		for q.size <= i && q.size < len(q.buf) {
			idx := (q.head + q.size) % len(q.buf)
			q.buf[idx] = pixel{}
			q.size++
		}
		idx := (q.head + i) % len(q.buf)
		if i < len(q.buf) {
			q.buf[idx] = p
		}
	}
}
