// SPDX-License-Identifier: EPL-2.0

package slowmo

import "errors"

var (
	// ErrInvalidArgument indicates a caller-supplied value that is out of
	// range or malformed, such as a negative timestamp or an overlapping
	// segment list.
	ErrInvalidArgument = errors.New("invalid argument")
)
