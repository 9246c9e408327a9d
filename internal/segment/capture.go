package segment

import (
	"fmt"

	"github.com/MrWong99/auricle/pkg/audio"
)

// Capture owns the microphone input stream and feeds frames into the
// shared buffer while the gate is open. Frames arriving with the gate
// closed are dropped at the source, which keeps the assistant's own
// speech out of the buffer entirely rather than relying on the segmenter
// alone to discard it.
type Capture struct {
	stream audio.InputStream
}

// OpenCapture opens the mono input stream described by cfg on the given
// platform. The stream is opened but not started; call [Capture.Start]
// once the pipeline is ready to consume frames.
func OpenCapture(platform audio.Platform, cfg Config, device string, buffer *audio.FrameBuffer, gate *audio.Gate) (*Capture, error) {
	cfg = cfg.withDefaults()
	in, err := platform.OpenInput(audio.InputConfig{
		SampleRate: cfg.SampleRate,
		FrameSize:  cfg.samplesFor(cfg.FrameInterval),
		Device:     device,
	}, func(f audio.Frame) {
		if gate.IsOpen() {
			buffer.Append(f)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("segment: open capture stream: %w", err)
	}
	return &Capture{stream: in}, nil
}

// Start begins delivering frames.
func (c *Capture) Start() error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("segment: start capture: %w", err)
	}
	return nil
}

// Close stops and releases the input stream.
func (c *Capture) Close() error {
	if err := c.stream.Close(); err != nil {
		return fmt.Errorf("segment: close capture: %w", err)
	}
	return nil
}
