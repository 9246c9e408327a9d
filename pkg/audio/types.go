package audio

import "time"

// Frame is a single fixed-duration slice of mono float32 samples captured
// from the input device. Frames are the atomic unit of audio transport:
// the capture callback copies driver memory into a Frame and appends it to
// a [FrameBuffer]; the segmenter consumes Frames and concatenates them
// into utterances. A Frame is never mutated after capture.
type Frame []float32

// Duration returns the play time of the frame at the given sample rate.
func (f Frame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f)) * time.Second / time.Duration(sampleRate)
}

// Utterance is one segmented span of speech: the concatenated samples of
// every frame accumulated between two segmentation boundaries, bounded by
// trailing silence or the maximum-duration cutoff. Utterances are immutable
// and consumed exactly once by the transcription stage.
type Utterance struct {
	// Samples is the flattened mono float32 sample data.
	Samples []float32

	// SampleRate in Hz (16000 for the default pipeline).
	SampleRate int
}

// Duration returns the play time of the utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}
