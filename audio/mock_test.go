package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

// Helpers for building and inspecting interleaved PCM byte buffers in
// mixer and graph tests. Sample slices are flat: frame after frame, one
// value per channel.

func floatBytes(samples ...float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}

	return out
}

func pcm16Bytes(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}

	return out
}

func floatSamples(t *testing.T, data []byte) []float32 {
	t.Helper()

	if len(data)%4 != 0 {
		t.Fatalf("float buffer has %d bytes, not a multiple of 4", len(data))
	}

	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}

	return out
}

func pcm16Samples(t *testing.T, data []byte) []int16 {
	t.Helper()

	if len(data)%2 != 0 {
		t.Fatalf("pcm16 buffer has %d bytes, not a multiple of 2", len(data))
	}

	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}

	return out
}

// expandFrames repeats each frame's sample once per channel, so a per-frame
// value list becomes a full interleaved sample list.
func expandFrames(channels int, frames ...float32) []float32 {
	out := make([]float32, 0, len(frames)*channels)
	for _, v := range frames {
		for range channels {
			out = append(out, v)
		}
	}

	return out
}

// sampleTolerance mirrors the spacing of 16-bit PCM so float comparisons
// survive the int16 round trip.
const sampleTolerance = 1.0 / 32767.0

func assertSamplesEqual(t *testing.T, got, want []float32) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("got %d samples (%v), want %d (%v)", len(got), got, len(want), want)
	}

	for i := range want {
		diff := float64(got[i] - want[i])
		if diff < -sampleTolerance || diff > sampleTolerance {
			t.Fatalf("sample %d = %v, want %v (got %v, want %v)", i, got[i], want[i], got, want)
		}
	}
}
