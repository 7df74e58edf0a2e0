// SPDX-License-Identifier: EPL-2.0

package mux

import "errors"

var (
	// ErrUnsupportedFormat indicates a track format the muxer or its
	// container writer cannot carry, such as an unknown MIME type.
	ErrUnsupportedFormat = errors.New("unsupported track format")

	// ErrInvalidState indicates an operation issued in the wrong phase of
	// the muxing lifecycle, such as appending to a muxer that never ran a
	// partial pass.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument indicates a caller-supplied value the muxer
	// cannot accept, such as an append format that contradicts the
	// original track.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrWriterNotFound indicates a container name with no registered
	// writer factory behind it.
	ErrWriterNotFound = errors.New("writer not found")
)
