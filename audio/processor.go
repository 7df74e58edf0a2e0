// SPDX-License-Identifier: EPL-2.0

package audio

import "fmt"

// Processor transforms interleaved float32 audio inside a graph input's
// processing chain. Configure announces the incoming format and returns
// the format the processor emits, letting processors change the channel
// layout but never the sample rate.
type Processor interface {
	// Configure fixes the input format, which always uses
	// EncodingFloat32, and returns the emitted format. It is called
	// again whenever the incoming format changes.
	Configure(input Format) (Format, error)

	// Process transforms one chunk of whole frames. The returned slice
	// may alias an internal buffer that is only valid until the next
	// call.
	Process(src []float32) []float32
}

// GainProcessor scales every sample by a fixed non-negative gain.
type GainProcessor struct {
	gain float32
	out  []float32
}

var _ Processor = (*GainProcessor)(nil)

// NewGainProcessor returns a processor applying the given gain. A gain of 1
// passes audio through unchanged, 0 silences it.
func NewGainProcessor(gain float32) (*GainProcessor, error) {
	if gain < 0 {
		return nil, fmt.Errorf("%w: gain must be non-negative, got %v", ErrInvalidArgument, gain)
	}

	return &GainProcessor{gain: gain}, nil
}

func (p *GainProcessor) Configure(input Format) (Format, error) {
	if input.Encoding != EncodingFloat32 {
		return Format{}, fmt.Errorf("%w: gain expects float32 frames, got %s", ErrInvalidArgument, input.Encoding)
	}

	return input, nil
}

func (p *GainProcessor) Process(src []float32) []float32 {
	if p.gain == 1 {
		return src
	}

	if cap(p.out) < len(src) {
		p.out = make([]float32, len(src))
	}

	p.out = p.out[:len(src)]
	for i, s := range src {
		p.out[i] = s * p.gain
	}

	return p.out
}

// ChannelMixingProcessor reshapes the channel layout of a stream with a
// ChannelMixingMatrix, for example stereo to mono.
type ChannelMixingProcessor struct {
	matrix ChannelMixingMatrix
	rate   int
	out    []float32
}

var _ Processor = (*ChannelMixingProcessor)(nil)

// NewChannelMixingProcessor returns a processor applying the given matrix.
func NewChannelMixingProcessor(matrix ChannelMixingMatrix) *ChannelMixingProcessor {
	return &ChannelMixingProcessor{matrix: matrix}
}

func (p *ChannelMixingProcessor) Configure(input Format) (Format, error) {
	if input.Encoding != EncodingFloat32 {
		return Format{}, fmt.Errorf("%w: channel mixing expects float32 frames, got %s", ErrInvalidArgument, input.Encoding)
	}

	if input.ChannelCount != p.matrix.InputChannels() {
		return Format{}, fmt.Errorf(
			"%w: matrix consumes %d channels, stream has %d",
			ErrUnhandledFormat, p.matrix.InputChannels(), input.ChannelCount)
	}

	p.rate = input.SampleRate

	return Format{
		SampleRate:   input.SampleRate,
		ChannelCount: p.matrix.OutputChannels(),
		Encoding:     EncodingFloat32,
	}, nil
}

func (p *ChannelMixingProcessor) Process(src []float32) []float32 {
	if p.matrix.IsIdentity() {
		return src
	}

	inChannels := p.matrix.InputChannels()
	outChannels := p.matrix.OutputChannels()
	frames := len(src) / inChannels

	if cap(p.out) < frames*outChannels {
		p.out = make([]float32, frames*outChannels)
	}

	p.out = p.out[:frames*outChannels]
	clear(p.out)

	for frame := range frames {
		for in := range inChannels {
			sample := src[frame*inChannels+in]

			for out := range outChannels {
				p.out[frame*outChannels+out] += sample * p.matrix.Coefficient(in, out)
			}
		}
	}

	return p.out
}
