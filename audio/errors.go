// SPDX-License-Identifier: EPL-2.0

package audio

import "errors"

var (
	// ErrUnhandledFormat indicates an audio format the component has no
	// strategy for, such as an encoding without a mixing algorithm or a
	// channel pair without a default mixing matrix.
	ErrUnhandledFormat = errors.New("unhandled audio format")

	// ErrInvalidState indicates an operation issued while the component
	// cannot honor it, such as queueing input before Configure.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument indicates a caller-supplied value that is out of
	// range or malformed, such as a negative timestamp.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSourceNotFound indicates a source identifier with no registered
	// source behind it.
	ErrSourceNotFound = errors.New("source not found")

	// ErrInvalidDstSize indicates a destination buffer whose length is not
	// a whole number of frames for the output channel count.
	ErrInvalidDstSize = errors.New("dst size must be multiple of channels")
)
