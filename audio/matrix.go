// SPDX-License-Identifier: EPL-2.0

package audio

import "fmt"

// ChannelMixingMatrix maps input channels onto output channels. Each
// coefficient scales the contribution of one input channel to one output
// channel. The matrix is immutable; derived matrices are built with ScaleBy.
type ChannelMixingMatrix struct {
	inputChannels  int
	outputChannels int

	// coefficients is row-major: the factor for input channel i feeding
	// output channel o lives at i*outputChannels+o.
	coefficients []float32
}

// NewChannelMixingMatrix builds a matrix from explicit coefficients. The
// slice must hold inputChannels*outputChannels non-negative values in
// row-major order.
func NewChannelMixingMatrix(inputChannels, outputChannels int, coefficients []float32) (ChannelMixingMatrix, error) {
	if inputChannels <= 0 || outputChannels <= 0 {
		return ChannelMixingMatrix{}, fmt.Errorf(
			"%w: channel counts must be positive, got %dx%d",
			ErrInvalidArgument, inputChannels, outputChannels)
	}

	if len(coefficients) != inputChannels*outputChannels {
		return ChannelMixingMatrix{}, fmt.Errorf(
			"%w: want %d coefficients for %dx%d matrix, got %d",
			ErrInvalidArgument, inputChannels*outputChannels, inputChannels, outputChannels, len(coefficients))
	}

	for i, c := range coefficients {
		if c < 0 {
			return ChannelMixingMatrix{}, fmt.Errorf(
				"%w: coefficient %d is negative (%v)", ErrInvalidArgument, i, c)
		}
	}

	m := ChannelMixingMatrix{
		inputChannels:  inputChannels,
		outputChannels: outputChannels,
		coefficients:   make([]float32, len(coefficients)),
	}
	copy(m.coefficients, coefficients)

	return m, nil
}

// DefaultChannelMixingMatrix returns the built-in matrix for a channel
// pair: identity for equal counts, mono duplicated to both stereo channels
// for 1 to 2, and both stereo channels averaged for 2 to 1. Any other pair
// fails with ErrUnhandledFormat.
func DefaultChannelMixingMatrix(inputChannels, outputChannels int) (ChannelMixingMatrix, error) {
	if inputChannels <= 0 || outputChannels <= 0 {
		return ChannelMixingMatrix{}, fmt.Errorf(
			"%w: channel counts must be positive, got %dx%d",
			ErrInvalidArgument, inputChannels, outputChannels)
	}

	switch {
	case inputChannels == outputChannels:
		coefficients := make([]float32, inputChannels*outputChannels)
		for ch := range inputChannels {
			coefficients[ch*outputChannels+ch] = 1
		}

		return NewChannelMixingMatrix(inputChannels, outputChannels, coefficients)
	case inputChannels == 1 && outputChannels == 2:
		return NewChannelMixingMatrix(1, 2, []float32{1, 1})
	case inputChannels == 2 && outputChannels == 1:
		return NewChannelMixingMatrix(2, 1, []float32{0.5, 0.5})
	default:
		return ChannelMixingMatrix{}, fmt.Errorf(
			"%w: no default mixing matrix for %d to %d channels",
			ErrUnhandledFormat, inputChannels, outputChannels)
	}
}

// InputChannels returns the number of input channels the matrix consumes.
func (m ChannelMixingMatrix) InputChannels() int { return m.inputChannels }

// OutputChannels returns the number of output channels the matrix produces.
func (m ChannelMixingMatrix) OutputChannels() int { return m.outputChannels }

// Coefficient returns the factor applied to inputChannel when it feeds
// outputChannel.
func (m ChannelMixingMatrix) Coefficient(inputChannel, outputChannel int) float32 {
	return m.coefficients[inputChannel*m.outputChannels+outputChannel]
}

// IsZero reports whether every coefficient is zero, silencing the source.
func (m ChannelMixingMatrix) IsZero() bool {
	for _, c := range m.coefficients {
		if c != 0 {
			return false
		}
	}

	return true
}

// IsSquare reports whether input and output channel counts match.
func (m ChannelMixingMatrix) IsSquare() bool {
	return m.inputChannels == m.outputChannels
}

// IsDiagonal reports whether the matrix is square with all off-diagonal
// coefficients zero, meaning channels only scale and never blend.
func (m ChannelMixingMatrix) IsDiagonal() bool {
	if !m.IsSquare() {
		return false
	}

	for in := range m.inputChannels {
		for out := range m.outputChannels {
			if in != out && m.Coefficient(in, out) != 0 {
				return false
			}
		}
	}

	return true
}

// IsIdentity reports whether the matrix passes every channel through
// unchanged.
func (m ChannelMixingMatrix) IsIdentity() bool {
	if !m.IsDiagonal() {
		return false
	}

	for ch := range m.inputChannels {
		if m.Coefficient(ch, ch) != 1 {
			return false
		}
	}

	return true
}

// ScaleBy returns a copy of the matrix with every coefficient multiplied
// by scale. The scale must be non-negative.
func (m ChannelMixingMatrix) ScaleBy(scale float32) ChannelMixingMatrix {
	scaled := ChannelMixingMatrix{
		inputChannels:  m.inputChannels,
		outputChannels: m.outputChannels,
		coefficients:   make([]float32, len(m.coefficients)),
	}

	for i, c := range m.coefficients {
		scaled.coefficients[i] = c * scale
	}

	return scaled
}
