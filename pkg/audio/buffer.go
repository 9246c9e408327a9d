package audio

import "sync"

// FrameBuffer accumulates captured frames between segmentation boundaries.
// The capture callback appends from the audio driver goroutine while the
// segmenter inspects and drains from its polling goroutine, so every
// method takes the internal lock. Frames are stored in append order and
// are not copied; callers must hand over ownership on Append.
type FrameBuffer struct {
	mu      sync.Mutex
	frames  []Frame
	samples int
}

// NewFrameBuffer returns an empty buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Append adds a frame to the end of the buffer.
func (b *FrameBuffer) Append(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, f)
	b.samples += len(f)
}

// Len returns the number of buffered frames.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Samples returns the total sample count across all buffered frames.
func (b *FrameBuffer) Samples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples
}

// Tail returns the most recently appended frame, or false when the buffer
// is empty. The frame is returned without copying; callers must not
// mutate it.
func (b *FrameBuffer) Tail() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return nil, false
	}
	return b.frames[len(b.frames)-1], true
}

// Drain concatenates every buffered frame into one contiguous sample
// slice, clears the buffer, and returns the samples. Returns nil when the
// buffer is empty.
func (b *FrameBuffer) Drain() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.samples == 0 {
		b.frames = nil
		return nil
	}
	out := make([]float32, 0, b.samples)
	for _, f := range b.frames {
		out = append(out, f...)
	}
	b.frames = nil
	b.samples = 0
	return out
}

// Clear discards all buffered frames.
func (b *FrameBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
	b.samples = 0
}
