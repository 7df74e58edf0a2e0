// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"encoding/binary"
	"math"

	"github.com/mediafoundry/avexport/audio"
	"github.com/mediafoundry/avexport/utils"
)

// MockPCMSource is a test helper that generates interleaved PCM chunks for
// feeding graphs and mixers. Sample values come from a waveform function.
type MockPCMSource struct {
	format      audio.Format
	totalFrames int // Total frames to generate
	generated   int // Frames generated so far
	waveform    func(frame int, channel int) float32
}

// NewMockPCMSource creates a new mock PCM source.
// totalFrames is the total number of frames to generate.
// waveform generates sample values given frame index and channel.
func NewMockPCMSource(format audio.Format, totalFrames int, waveform func(frame int, channel int) float32) *MockPCMSource {
	return &MockPCMSource{
		format:      format,
		totalFrames: totalFrames,
		generated:   0,
		waveform:    waveform,
	}
}

// NewSilentPCMSource creates a mock source that generates silence.
func NewSilentPCMSource(format audio.Format, totalFrames int) *MockPCMSource {
	return NewMockPCMSource(format, totalFrames, func(frame int, channel int) float32 {
		return 0.0
	})
}

// NewSinePCMSource creates a mock source that generates a sine wave.
func NewSinePCMSource(format audio.Format, totalFrames int, frequency float64) *MockPCMSource {
	return NewMockPCMSource(format, totalFrames, func(frame int, channel int) float32 {
		t := float64(frame) / float64(format.SampleRate)
		return float32(math.Sin(2 * math.Pi * frequency * t))
	})
}

// NewConstantPCMSource creates a mock source with a constant sample value.
func NewConstantPCMSource(format audio.Format, totalFrames int, value float32) *MockPCMSource {
	return NewMockPCMSource(format, totalFrames, func(frame int, channel int) float32 {
		return value
	})
}

// Format returns the format of the generated chunks.
func (m *MockPCMSource) Format() audio.Format { return m.format }

// TotalFrames returns how many frames the source generates in total.
func (m *MockPCMSource) TotalFrames() int { return m.totalFrames }

// Reset rewinds the source so it can be read again.
func (m *MockPCMSource) Reset() {
	m.generated = 0
}

// ReadChunk returns the next chunk of at most maxFrames encoded frames, or
// nil when the source is exhausted.
func (m *MockPCMSource) ReadChunk(maxFrames int) []byte {
	if m.generated >= m.totalFrames {
		return nil
	}

	framesToWrite := min(maxFrames, m.totalFrames-m.generated)
	channels := m.format.ChannelCount
	out := make([]byte, framesToWrite*m.format.BytesPerFrame())

	for frame := range framesToWrite {
		frameIndex := m.generated + frame

		for ch := range channels {
			value := m.waveform(frameIndex, ch)
			sampleOffset := (frame*channels + ch) * m.format.Encoding.BytesPerSample()

			switch m.format.Encoding {
			case audio.EncodingPCM16:
				binary.LittleEndian.PutUint16(out[sampleOffset:], uint16(utils.Float32ToInt16(value)))
			case audio.EncodingFloat32:
				binary.LittleEndian.PutUint32(out[sampleOffset:], math.Float32bits(value))
			}
		}
	}

	m.generated += framesToWrite

	return out
}
