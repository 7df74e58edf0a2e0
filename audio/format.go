// SPDX-License-Identifier: EPL-2.0

package audio

import "fmt"

// Encoding identifies the binary layout of interleaved PCM samples.
type Encoding int

const (
	// EncodingUnset is the zero value, meaning the encoding has not been
	// decided yet.
	EncodingUnset Encoding = iota
	// EncodingPCM16 is 16-bit signed little-endian integer samples.
	EncodingPCM16
	// EncodingPCM24 is 24-bit signed little-endian integer samples.
	EncodingPCM24
	// EncodingPCM32 is 32-bit signed little-endian integer samples.
	EncodingPCM32
	// EncodingFloat32 is 32-bit IEEE 754 little-endian float samples in
	// the nominal range [-1, 1].
	EncodingFloat32
)

// BytesPerSample returns the width of one sample, or 0 for EncodingUnset.
func (e Encoding) BytesPerSample() int {
	switch e {
	case EncodingPCM16:
		return 2
	case EncodingPCM24:
		return 3
	case EncodingPCM32, EncodingFloat32:
		return 4
	default:
		return 0
	}
}

func (e Encoding) String() string {
	switch e {
	case EncodingUnset:
		return "unset"
	case EncodingPCM16:
		return "pcm16"
	case EncodingPCM24:
		return "pcm24"
	case EncodingPCM32:
		return "pcm32"
	case EncodingFloat32:
		return "float32"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Format describes a raw interleaved PCM stream. The zero value of every
// field means "unset"; a partially set Format can be completed from another
// one with Merge.
type Format struct {
	// SampleRate in Hz, or 0 when unset.
	SampleRate int
	// ChannelCount holds the number of interleaved channels, or 0 when
	// unset.
	ChannelCount int
	// Encoding of each sample.
	Encoding Encoding
}

// IsSet reports whether every field carries a value.
func (f Format) IsSet() bool {
	return f.SampleRate != 0 && f.ChannelCount != 0 && f.Encoding != EncodingUnset
}

// Merge returns f with every unset field filled in from fallback. Fields
// already set in f win.
func (f Format) Merge(fallback Format) Format {
	out := f
	if out.SampleRate == 0 {
		out.SampleRate = fallback.SampleRate
	}

	if out.ChannelCount == 0 {
		out.ChannelCount = fallback.ChannelCount
	}

	if out.Encoding == EncodingUnset {
		out.Encoding = fallback.Encoding
	}

	return out
}

// BytesPerFrame returns the size of one frame (one sample per channel).
func (f Format) BytesPerFrame() int {
	return f.Encoding.BytesPerSample() * f.ChannelCount
}

// FramesForDuration converts a duration in microseconds to a whole number
// of frames at the format's sample rate, truncating any fractional frame.
func (f Format) FramesForDuration(durationUs int64) int64 {
	return durationUs * int64(f.SampleRate) / 1_000_000
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz %dch %s", f.SampleRate, f.ChannelCount, f.Encoding)
}
