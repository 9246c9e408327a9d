// Package portaudio implements [audio.Platform] on top of the PortAudio
// host library via the github.com/gordonklaus/portaudio bindings.
//
// The capture stream reads fixed-size blocks from the device on an
// internal goroutine and hands each block to the frame callback. Playback
// streams are blocking: Write paces the caller to real time, which is what
// the sentence-by-sentence synthesis pipeline relies on.
package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/auricle/pkg/audio"
)

// outputBlockSize is the number of samples per playback write block.
const outputBlockSize = 1024

// Platform wraps an initialized PortAudio host instance.
type Platform struct {
	mu     sync.Mutex
	closed bool
}

var _ audio.Platform = (*Platform)(nil)

// New initializes the PortAudio host layer. The caller owns the returned
// platform and must Close it to release the host.
func New() (*Platform, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Platform{}, nil
}

// Close implements [audio.Platform].
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}

// Devices implements [audio.Platform].
func (p *Platform) Devices() ([]audio.Device, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	defIn, _ := portaudio.DefaultInputDevice()
	defOut, _ := portaudio.DefaultOutputDevice()

	out := make([]audio.Device, 0, len(devs))
	for i, d := range devs {
		out = append(out, audio.Device{
			ID:                i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			DefaultInput:      defIn != nil && d == defIn,
			DefaultOutput:     defOut != nil && d == defOut,
		})
	}
	return out, nil
}

// OpenInput implements [audio.Platform].
func (p *Platform) OpenInput(cfg audio.InputConfig, cb func(audio.Frame)) (audio.InputStream, error) {
	if cfg.SampleRate <= 0 || cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("portaudio: invalid input config: rate=%d frameSize=%d", cfg.SampleRate, cfg.FrameSize)
	}
	if cb == nil {
		return nil, errors.New("portaudio: nil frame callback")
	}

	buf := make([]float32, cfg.FrameSize)
	var (
		stream *portaudio.Stream
		err    error
	)
	if cfg.Device == "" {
		stream, err = portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), len(buf), buf)
	} else {
		dev, derr := findInputDevice(cfg.Device)
		if derr != nil {
			return nil, derr
		}
		params := portaudio.HighLatencyParameters(dev, nil)
		params.Input.Channels = 1
		params.SampleRate = float64(cfg.SampleRate)
		params.FramesPerBuffer = len(buf)
		stream, err = portaudio.OpenStream(params, buf)
	}
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input stream: %w", err)
	}
	return &inputStream{stream: stream, buf: buf, cb: cb}, nil
}

// OpenOutput implements [audio.Platform].
func (p *Platform) OpenOutput(sampleRate int) (audio.OutputStream, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("portaudio: invalid output sample rate %d", sampleRate)
	}
	buf := make([]float32, outputBlockSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("portaudio: start output stream: %w", err)
	}
	return &outputStream{stream: stream, buf: buf}, nil
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	want := strings.ToLower(name)
	for _, d := range devs {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("portaudio: no input device matching %q", name)
}

// ─── Input stream ─────────────────────────────────────────────────────────────

type inputStream struct {
	stream *portaudio.Stream
	buf    []float32
	cb     func(audio.Frame)

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

var _ audio.InputStream = (*inputStream)(nil)

// Start implements [audio.InputStream]. Starting an already running
// stream is a no-op.
func (s *inputStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("portaudio: input stream closed")
	}
	if s.stop != nil {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start input stream: %w", err)
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.pump(s.stop, s.done)
	return nil
}

// pump reads blocks from the device until the stream is stopped, copying
// each block into a fresh frame before invoking the callback. The shared
// read buffer is reused by the driver on the next Read.
func (s *inputStream) pump(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				// Expected when the process stalls briefly; the driver
				// recovers on the next read.
				slog.Debug("portaudio: input overflow, frame dropped")
				continue
			}
			select {
			case <-stop:
			default:
				slog.Error("portaudio: input stream read failed", "error", err)
			}
			return
		}
		frame := make(audio.Frame, len(s.buf))
		copy(frame, s.buf)
		s.cb(frame)
	}
}

// Stop implements [audio.InputStream].
func (s *inputStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *inputStream) stopLocked() error {
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	// Stopping the stream unblocks a pump stuck in Read.
	err := s.stream.Stop()
	<-s.done
	s.stop, s.done = nil, nil
	if err != nil {
		return fmt.Errorf("portaudio: stop input stream: %w", err)
	}
	return nil
}

// Close implements [audio.InputStream].
func (s *inputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	stopErr := s.stopLocked()
	var closeErr error
	if err := s.stream.Close(); err != nil {
		closeErr = fmt.Errorf("portaudio: close input stream: %w", err)
	}
	return errors.Join(stopErr, closeErr)
}

// ─── Output stream ────────────────────────────────────────────────────────────

type outputStream struct {
	stream *portaudio.Stream
	buf    []float32

	mu     sync.Mutex
	carry  []float32
	closed bool
}

var _ audio.OutputStream = (*outputStream)(nil)

// Write implements [audio.OutputStream]. Samples that do not fill a whole
// device block are carried over to the next write.
func (o *outputStream) Write(samples []float32) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.New("portaudio: output stream closed")
	}

	data := samples
	if len(o.carry) > 0 {
		data = append(o.carry, samples...)
	}
	for len(data) >= len(o.buf) {
		copy(o.buf, data[:len(o.buf)])
		data = data[len(o.buf):]
		if err := o.stream.Write(); err != nil {
			if errors.Is(err, portaudio.OutputUnderflowed) {
				// Audible glitch at worst; keep playing.
				slog.Debug("portaudio: output underflow")
				continue
			}
			return fmt.Errorf("portaudio: write output stream: %w", err)
		}
	}
	o.carry = append(o.carry[:0], data...)
	return nil
}

// Close implements [audio.OutputStream]. Flushes the carried remainder
// zero-padded, then lets the driver play out its queue before releasing
// the device.
func (o *outputStream) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true

	if len(o.carry) > 0 {
		for i := range o.buf {
			o.buf[i] = 0
		}
		copy(o.buf, o.carry)
		o.carry = nil
		if err := o.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			slog.Debug("portaudio: tail flush failed", "error", err)
		}
	}

	var stopErr, closeErr error
	if err := o.stream.Stop(); err != nil {
		stopErr = fmt.Errorf("portaudio: stop output stream: %w", err)
	}
	if err := o.stream.Close(); err != nil {
		closeErr = fmt.Errorf("portaudio: close output stream: %w", err)
	}
	return errors.Join(stopErr, closeErr)
}
