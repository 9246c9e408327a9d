// Package mock provides in-memory mock implementations of the
// [audio.Platform], [audio.InputStream], and [audio.OutputStream]
// interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	platform := &mock.Platform{}
//	in, err := platform.OpenInput(audio.InputConfig{SampleRate: 16000, FrameSize: 3200}, cb)
//	in.Start()
//	platform.Inputs[0].Feed(make(audio.Frame, 3200))
package mock

import (
	"sync"

	"github.com/MrWong99/auricle/pkg/audio"
)

// ─── InputStream ──────────────────────────────────────────────────────────────

// InputStream is a mock implementation of [audio.InputStream]. Frames are
// injected with [InputStream.Feed] and delivered to the callback captured
// at open time, but only while the stream is started.
type InputStream struct {
	mu sync.Mutex

	// Config holds the configuration passed to OpenInput.
	Config audio.InputConfig

	// Callback is the frame callback passed to OpenInput.
	Callback func(audio.Frame)

	// StartError, StopError and CloseError are returned by the
	// corresponding methods.
	StartError error
	StopError  error
	CloseError error

	// CallCountStart, CallCountStop and CallCountClose record invocations.
	CallCountStart int
	CallCountStop  int
	CallCountClose int

	started bool
	closed  bool
}

// Start implements [audio.InputStream].
func (s *InputStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartError != nil {
		return s.StartError
	}
	s.started = true
	return nil
}

// Stop implements [audio.InputStream].
func (s *InputStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	if s.StopError != nil {
		return s.StopError
	}
	s.started = false
	return nil
}

// Close implements [audio.InputStream].
func (s *InputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.started = false
	s.closed = true
	return s.CloseError
}

// Started reports whether the stream is currently capturing.
func (s *InputStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.closed
}

// Feed delivers a frame to the captured callback, simulating the driver's
// capture goroutine. Frames fed while the stream is stopped or closed are
// dropped, matching real driver behavior.
func (s *InputStream) Feed(f audio.Frame) {
	s.mu.Lock()
	cb := s.Callback
	deliver := s.started && !s.closed
	s.mu.Unlock()
	if deliver && cb != nil {
		cb(f)
	}
}

// ─── OutputStream ─────────────────────────────────────────────────────────────

// OutputStream is a mock implementation of [audio.OutputStream]. It
// records every sample written so tests can assert on playback content.
type OutputStream struct {
	mu sync.Mutex

	// SampleRate holds the rate passed to OpenOutput.
	SampleRate int

	// WriteError is returned by Write. When WriteErrorAfter is positive,
	// Write succeeds that many times before failing.
	WriteError      error
	WriteErrorAfter int

	// CloseError is returned by Close.
	CloseError error

	// Written accumulates all successfully written samples in order.
	Written []float32

	// WriteLens records the length of each successful write.
	WriteLens []int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Write implements [audio.OutputStream]. Records the samples unless an
// injected error fires.
func (s *OutputStream) Write(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteError != nil {
		if s.WriteErrorAfter <= 0 {
			return s.WriteError
		}
		s.WriteErrorAfter--
	}
	s.Written = append(s.Written, samples...)
	s.WriteLens = append(s.WriteLens, len(samples))
	return nil
}

// Close implements [audio.OutputStream].
func (s *OutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// WrittenSamples returns a copy of all samples written so far.
func (s *OutputStream) WrittenSamples() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float32, len(s.Written))
	copy(out, s.Written)
	return out
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [audio.Platform]. Opened streams
// are appended to Inputs and Outputs so tests can reach them.
type Platform struct {
	mu sync.Mutex

	// OpenInputError and OpenOutputError are returned by the
	// corresponding methods instead of a stream.
	OpenInputError  error
	OpenOutputError error

	// OutputWriteError, when set, is copied onto every opened
	// OutputStream as its WriteError.
	OutputWriteError error

	// DevicesResult is returned by Devices.
	DevicesResult []audio.Device

	// DevicesError is returned by Devices.
	DevicesError error

	// Inputs records every stream handed out by OpenInput.
	Inputs []*InputStream

	// Outputs records every stream handed out by OpenOutput.
	Outputs []*OutputStream

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// OpenInput implements [audio.Platform].
func (p *Platform) OpenInput(cfg audio.InputConfig, cb func(audio.Frame)) (audio.InputStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OpenInputError != nil {
		return nil, p.OpenInputError
	}
	in := &InputStream{Config: cfg, Callback: cb}
	p.Inputs = append(p.Inputs, in)
	return in, nil
}

// OpenOutput implements [audio.Platform].
func (p *Platform) OpenOutput(sampleRate int) (audio.OutputStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OpenOutputError != nil {
		return nil, p.OpenOutputError
	}
	out := &OutputStream{SampleRate: sampleRate, WriteError: p.OutputWriteError}
	p.Outputs = append(p.Outputs, out)
	return out, nil
}

// Devices implements [audio.Platform]. Returns DevicesResult / DevicesError.
func (p *Platform) Devices() ([]audio.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DevicesResult, p.DevicesError
}

// Close implements [audio.Platform].
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountClose++
	return nil
}

var (
	_ audio.Platform     = (*Platform)(nil)
	_ audio.InputStream  = (*InputStream)(nil)
	_ audio.OutputStream = (*OutputStream)(nil)
)
