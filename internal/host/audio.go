package host

import "github.com/wrenvale/gbcore/internal/machine"

// pcmStream adapts the machine's stereo int16 ring buffer to an io.Reader,
// the shape ebitengine/oto/v3 players read from.
type pcmStream struct {
	m     *machine.Machine
	muted bool
}

func (s *pcmStream) Read(p []byte) (int, error) {
	if len(p) < 4 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	if s.muted {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	want := len(p) / 4
	frames := s.m.APUPullStereo(want)
	n := 0
	for _, v := range frames {
		lo, hi := byte(v), byte(v>>8)
		p[n], p[n+1] = lo, hi
		n += 2
	}
	for ; n < len(p); n++ {
		p[n] = 0
	}
	return len(p), nil
}
