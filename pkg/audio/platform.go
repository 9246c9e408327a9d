// Package audio defines the interfaces and types for local audio device
// access and stream management within Auricle.
//
// The two primary abstractions are:
//
//   - [Platform] — opens capture and playback streams on the host's sound
//     hardware and enumerates the available devices.
//   - [InputStream] / [OutputStream] — active device streams.
//
// Implementations of these interfaces are provided by driver-specific
// adapter packages (audio/portaudio for real hardware, audio/mock for
// tests). The interfaces are intentionally narrow to keep the assistant
// loop decoupled from driver details.
//
// This package lives under pkg/ because external code (alternative driver
// adapters) is expected to implement [Platform].
package audio

// Device describes one sound device known to the host audio layer.
type Device struct {
	// ID is the driver-specific device index.
	ID int

	// Name is the human-readable device name reported by the driver.
	Name string

	// MaxInputChannels and MaxOutputChannels report the channel capacity
	// in each direction; zero means the device cannot serve that
	// direction.
	MaxInputChannels  int
	MaxOutputChannels int

	// DefaultSampleRate is the device's preferred rate in Hz.
	DefaultSampleRate float64

	// DefaultInput and DefaultOutput mark the host's default devices.
	DefaultInput  bool
	DefaultOutput bool
}

// InputConfig describes the single capture stream the assistant opens.
type InputConfig struct {
	// SampleRate in Hz for the capture stream.
	SampleRate int

	// FrameSize is the number of samples delivered per callback frame.
	FrameSize int

	// Device selects the capture device by case-insensitive substring
	// match against device names. Empty selects the host default.
	Device string
}

// InputStream is an open capture stream. Frames are delivered through the
// callback passed to [Platform.OpenInput]; the stream only produces data
// between Start and Stop.
type InputStream interface {
	// Start begins capture. Safe to call again after Stop.
	Start() error

	// Stop pauses capture without releasing the device.
	Stop() error

	// Close releases the device. The stream cannot be restarted.
	Close() error
}

// OutputStream is an open playback stream accepting mono float32 samples.
//
// Write blocks until the driver has consumed the samples, which paces the
// producer to real time. Close drains any samples still queued in the
// driver before releasing the device.
type OutputStream interface {
	Write(samples []float32) error
	Close() error
}

// Platform is the entry point for a host audio layer. Implementations
// wrap driver-specific SDKs and expose uniform stream handles.
//
// Implementations must be safe for concurrent use: the assistant opens
// one long-lived input stream at startup and a fresh output stream for
// every spoken response, possibly while capture is running.
type Platform interface {
	// OpenInput opens the mono capture stream described by cfg. The
	// callback is invoked from the driver's capture goroutine with a
	// freshly allocated [Frame] per block; it must return promptly and
	// must not retain references into driver memory (it never receives
	// any).
	OpenInput(cfg InputConfig, cb func(Frame)) (InputStream, error)

	// OpenOutput opens a mono playback stream at the given sample rate.
	// Playback rates vary per synthesis response, so a new stream is
	// opened for each one.
	OpenOutput(sampleRate int) (OutputStream, error)

	// Devices enumerates the sound devices currently visible to the host
	// audio layer.
	Devices() ([]Device, error)

	// Close releases the host audio layer. All streams must be closed
	// first. Safe to call more than once.
	Close() error
}
