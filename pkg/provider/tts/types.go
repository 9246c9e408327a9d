package tts

import "time"

// Chunk is one slice of synthesised audio: mono float32 samples in [-1, 1]
// at SampleRate. Chunks of one response all share the same rate.
type Chunk struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the play time of the chunk.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// VoiceProfile describes one entry of a provider's voice catalogue.
type VoiceProfile struct {
	ID       string            // identifier the provider expects in synthesis requests
	Name     string            // display name
	Provider string            // backend the voice came from
	Metadata map[string]string // extra catalogue attributes, such as category or accent
}
