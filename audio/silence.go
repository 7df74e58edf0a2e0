// SPDX-License-Identifier: EPL-2.0

package audio

import "fmt"

// silenceChunkFrames caps how much silence a single GetBuffer call emits.
const silenceChunkFrames = 1024

// SilentAudioGenerator produces zero-filled PCM for a fixed format. Silence
// is requested by duration and drained in chunks of at most 1024 frames, so
// long gaps never require large allocations.
type SilentAudioGenerator struct {
	format         Format
	chunk          []byte
	remainingBytes int64
}

// NewSilentAudioGenerator returns a generator emitting silence in the given
// format, which must be fully set.
func NewSilentAudioGenerator(format Format) (*SilentAudioGenerator, error) {
	if !format.IsSet() {
		return nil, fmt.Errorf("%w: silence format must be fully set, got %s", ErrInvalidArgument, format)
	}

	return &SilentAudioGenerator{
		format: format,
		chunk:  make([]byte, silenceChunkFrames*format.BytesPerFrame()),
	}, nil
}

// Format returns the format of the emitted silence.
func (g *SilentAudioGenerator) Format() Format {
	return g.format
}

// AddSilence schedules durationUs of silence for output. The duration is
// converted to a whole frame count by truncation.
func (g *SilentAudioGenerator) AddSilence(durationUs int64) error {
	if durationUs < 0 {
		return fmt.Errorf("%w: negative silence duration %d", ErrInvalidArgument, durationUs)
	}

	g.remainingBytes += g.format.FramesForDuration(durationUs) * int64(g.format.BytesPerFrame())

	return nil
}

// GetBuffer returns the next chunk of pending silence, at most 1024 frames,
// or nil when nothing is pending. The returned slice is reused across calls
// and must not be modified.
func (g *SilentAudioGenerator) GetBuffer() []byte {
	if g.remainingBytes == 0 {
		return nil
	}

	n := min(g.remainingBytes, int64(len(g.chunk)))
	g.remainingBytes -= n

	return g.chunk[:n]
}

// HasRemaining reports whether silence is still pending.
func (g *SilentAudioGenerator) HasRemaining() bool {
	return g.remainingBytes > 0
}

// Flush drops any pending silence.
func (g *SilentAudioGenerator) Flush() {
	g.remainingBytes = 0
}
