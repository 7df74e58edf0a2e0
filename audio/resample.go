// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"

	"github.com/mediafoundry/avexport/utils"
)

// resampleFilterAlpha is the coefficient of the one-pole low-pass run
// ahead of decimation. A proper FIR filter would reject aliasing better;
// this matches the quality/cost trade-off of the rest of the package.
const resampleFilterAlpha = 0.5

// ResamplePCM converts an interleaved PCM stream to a new sample rate
// using Catmull-Rom cubic interpolation, preserving channel count and
// encoding. Downsampling first runs a one-pole low-pass over the stream
// to tame aliasing. The stream is converted in one call; the returned
// format is the input format at targetRate.
func ResamplePCM(data []byte, format Format, targetRate int) ([]byte, Format, error) {
	if !format.IsSet() {
		return nil, Format{}, fmt.Errorf("%w: input format must be fully set, got %s", ErrInvalidArgument, format)
	}

	if format.Encoding != EncodingPCM16 && format.Encoding != EncodingFloat32 {
		return nil, Format{}, fmt.Errorf("%w: cannot resample %s input", ErrUnhandledFormat, format.Encoding)
	}

	if targetRate <= 0 {
		return nil, Format{}, fmt.Errorf("%w: target rate must be positive, got %d", ErrInvalidArgument, targetRate)
	}

	bpf := format.BytesPerFrame()
	if len(data)%bpf != 0 {
		return nil, Format{}, fmt.Errorf("%w: %d bytes is not a whole number of %d byte frames",
			ErrInvalidArgument, len(data), bpf)
	}

	outFormat := format
	outFormat.SampleRate = targetRate

	if targetRate == format.SampleRate || len(data) == 0 {
		out := make([]byte, len(data))
		copy(out, data)

		return out, outFormat, nil
	}

	channels := format.ChannelCount
	inFrames := len(data) / bpf

	samples := make([]float32, inFrames*channels)
	decodeToFloat(data, format.Encoding, samples)

	// ratio is how many source frames one output frame advances.
	ratio := float64(format.SampleRate) / float64(targetRate)

	if ratio > 1 {
		lowPassInPlace(samples, channels)
	}

	outFrames := int(int64(inFrames) * int64(targetRate) / int64(format.SampleRate))
	out := make([]float32, outFrames*channels)

	// frameAt clamps at both edges, duplicating the first and last frame
	// for the interpolation window.
	frameAt := func(frame, channel int) float32 {
		if frame < 0 {
			frame = 0
		}

		if frame >= inFrames {
			frame = inFrames - 1
		}

		return samples[frame*channels+channel]
	}

	pos := 0.0
	for f := range outFrames {
		i := int(pos)
		x := float32(pos - float64(i))

		for c := range channels {
			out[f*channels+c] = utils.CubicInterpolate(
				frameAt(i-1, c), frameAt(i, c), frameAt(i+1, c), frameAt(i+2, c), x)
		}

		pos += ratio
	}

	outBytes := make([]byte, outFrames*bpf)
	encodeMixedSamples(out, format.Encoding, outBytes)

	return outBytes, outFormat, nil
}

// lowPassInPlace runs a per-channel one-pole low-pass over interleaved
// samples. The filter state is seeded with the first frame to avoid a
// warm-up transient.
func lowPassInPlace(samples []float32, channels int) {
	frames := len(samples) / channels

	state := make([]float32, channels)
	copy(state, samples[:channels])

	for f := range frames {
		for c := range channels {
			i := f*channels + c
			state[c] = resampleFilterAlpha*samples[i] + (1-resampleFilterAlpha)*state[c]
			samples[i] = state[c]
		}
	}
}
