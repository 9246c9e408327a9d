package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Sample format conversion between the pipeline's native mono float32
// representation and the 16-bit little-endian PCM that speech providers
// exchange on the wire. Capture and playback stay in float32 end to end;
// conversion happens only at provider boundaries.

// PCM16Bytes encodes float32 samples as 16-bit signed little-endian PCM.
// Samples outside [-1, 1] are clamped.
func PCM16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(clampUnit(s) * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// SamplesFromPCM16 decodes 16-bit signed little-endian PCM into float32
// samples in [-1, 1). The byte length must be even.
func SamplesFromPCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: pcm16 data has odd length %d", len(pcm))
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / (math.MaxInt16 + 1)
	}
	return out, nil
}

// SamplesFromInts converts integer PCM samples of the given bit depth, as
// produced by WAV decoders, into float32.
func SamplesFromInts(data []int, bitDepth int) ([]float32, error) {
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("audio: unsupported bit depth %d", bitDepth)
	}
	scale := float32(int64(1) << (bitDepth - 1))
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / scale
	}
	return out, nil
}

// Resample converts mono float32 samples from srcRate to dstRate using
// linear interpolation. If the rates match (or are invalid), the input is
// returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range out {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = float32(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

func clampUnit(s float32) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	default:
		return float64(s)
	}
}
