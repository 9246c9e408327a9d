package audio

import "sync/atomic"

// Gate is the shared capture flag read by the capture callback and the
// segmenter and flipped by the assistant loop. While the gate is closed
// (assistant processing or speaking) incoming frames are discarded and
// the segmenter clears any partial buffer, so the assistant never hears
// its own voice.
type Gate struct {
	open atomic.Bool
}

// NewGate returns a gate in the given initial state.
func NewGate(open bool) *Gate {
	g := &Gate{}
	g.open.Store(open)
	return g
}

// Open enables capture.
func (g *Gate) Open() { g.open.Store(true) }

// Close disables capture.
func (g *Gate) Close() { g.open.Store(false) }

// IsOpen reports whether capture is enabled.
func (g *Gate) IsOpen() bool { return g.open.Load() }
