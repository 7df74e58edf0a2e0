// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/mediafoundry/avexport/utils"
)

// MixingAlgorithm accumulates encoded source frames into a float32 mix
// buffer through a channel mixing matrix. Implementations are selected per
// source encoding by NewMixingAlgorithm and stay fixed for the lifetime of
// the source.
type MixingAlgorithm interface {
	// Mix reads len(dst)/outputChannels complete frames from src, scales
	// each input channel by the matrix coefficients and adds the result
	// onto dst. src must hold at least that many frames; dst is never
	// cleared, mixing always accumulates.
	Mix(src []byte, matrix ChannelMixingMatrix, dst []float32)
}

// NewMixingAlgorithm selects the strategy for feeding sourceFormat input
// into a float32 accumulation buffer laid out as mixingFormat. The mixing
// format must use EncodingFloat32; source encodings other than PCM16 and
// float32 fail with ErrUnhandledFormat.
func NewMixingAlgorithm(sourceFormat, mixingFormat Format) (MixingAlgorithm, error) {
	if mixingFormat.Encoding != EncodingFloat32 {
		return nil, fmt.Errorf(
			"%w: mixing buffers must be float32, got %s", ErrInvalidArgument, mixingFormat.Encoding)
	}

	if sourceFormat.SampleRate != mixingFormat.SampleRate {
		return nil, fmt.Errorf(
			"%w: source rate %d does not match mixing rate %d",
			ErrUnhandledFormat, sourceFormat.SampleRate, mixingFormat.SampleRate)
	}

	switch sourceFormat.Encoding {
	case EncodingPCM16:
		return pcm16MixingAlgorithm{
			inputChannels:  sourceFormat.ChannelCount,
			outputChannels: mixingFormat.ChannelCount,
		}, nil
	case EncodingFloat32:
		return float32MixingAlgorithm{
			inputChannels:  sourceFormat.ChannelCount,
			outputChannels: mixingFormat.ChannelCount,
		}, nil
	default:
		return nil, fmt.Errorf(
			"%w: no mixing algorithm for %s input", ErrUnhandledFormat, sourceFormat.Encoding)
	}
}

type pcm16MixingAlgorithm struct {
	inputChannels  int
	outputChannels int
}

func (a pcm16MixingAlgorithm) Mix(src []byte, matrix ChannelMixingMatrix, dst []float32) {
	frames := len(dst) / a.outputChannels

	for frame := range frames {
		frameStart := frame * a.inputChannels * 2

		for in := range a.inputChannels {
			raw := binary.LittleEndian.Uint16(src[frameStart+in*2:])
			sample := utils.Int16ToFloat32(int16(raw))

			for out := range a.outputChannels {
				dst[frame*a.outputChannels+out] += sample * matrix.Coefficient(in, out)
			}
		}
	}
}

type float32MixingAlgorithm struct {
	inputChannels  int
	outputChannels int
}

func (a float32MixingAlgorithm) Mix(src []byte, matrix ChannelMixingMatrix, dst []float32) {
	frames := len(dst) / a.outputChannels

	for frame := range frames {
		frameStart := frame * a.inputChannels * 4

		for in := range a.inputChannels {
			bits := binary.LittleEndian.Uint32(src[frameStart+in*4:])
			sample := math.Float32frombits(bits)

			for out := range a.outputChannels {
				dst[frame*a.outputChannels+out] += sample * matrix.Coefficient(in, out)
			}
		}
	}
}

// encodeMixedSamples serializes accumulated float32 samples into dst using
// the given output encoding. Float output is clamped to [-1, 1]; PCM16
// output is clamped and truncated toward zero.
func encodeMixedSamples(samples []float32, enc Encoding, dst []byte) {
	switch enc {
	case EncodingPCM16:
		for i, s := range samples {
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(utils.Float32ToInt16(s)))
		}
	case EncodingFloat32:
		for i, s := range samples {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(utils.ClampFloat32(s)))
		}
	}
}

// decodeToFloat deserializes len(dst) encoded samples from src into float32
// values. Only the mixable encodings are supported.
func decodeToFloat(src []byte, enc Encoding, dst []float32) {
	switch enc {
	case EncodingPCM16:
		for i := range dst {
			dst[i] = utils.Int16ToFloat32(int16(binary.LittleEndian.Uint16(src[i*2:])))
		}
	case EncodingFloat32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	}
}
