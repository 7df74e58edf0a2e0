// SPDX-License-Identifier: EPL-2.0

package audio

// SourceID identifies a source registered with a Mixer. Identifiers are
// unique for the lifetime of the mixer and never reused, even after the
// source is removed.
type SourceID int

// Mixer combines any number of PCM sources into a single output stream.
// Sources join and leave at frame-accurate positions derived from their
// start times, and the mixer emits output as soon as every active source
// has delivered the corresponding frames.
//
// Mixers are single-threaded: all methods must be called from the same
// goroutine. Backpressure is poll based. QueueInput reports how much of a
// buffer was consumed and GetOutput returns empty output when the mixer is
// waiting for slower sources.
type Mixer interface {
	// Configure prepares the mixer to produce outputFormat, buffering
	// bufferSizeMs of audio ahead of the output position. startTimeUs
	// anchors the first output frame on the shared media timeline.
	// Configure must be called exactly once before any other method and
	// again only after Reset.
	Configure(outputFormat Format, bufferSizeMs int, startTimeUs int64) error

	// SupportsSourceFormat reports whether AddSource would accept the
	// format. It returns false before Configure.
	SupportsSourceFormat(format Format) bool

	// AddSource registers a source whose first frame lies at startTimeUs
	// on the output timeline. The source's sample rate must match the
	// output rate; its channel count must have a default mixing matrix
	// onto the output layout.
	AddSource(format Format, startTimeUs int64) (SourceID, error)

	// HasSource reports whether the identifier belongs to a currently
	// registered source.
	HasSource(id SourceID) bool

	// SetSourceVolume scales all frames of the source queued from now
	// on. The volume must be non-negative.
	SetSourceVolume(id SourceID, volume float32) error

	// RemoveSource unregisters a source. Frames it already contributed
	// remain in the mix.
	RemoveSource(id SourceID) error

	// QueueInput mixes as many whole frames of input as currently fit
	// and returns the unconsumed tail. The caller re-queues the
	// remainder after draining output.
	QueueInput(id SourceID, input []byte) ([]byte, error)

	// GetOutput returns the next run of fully mixed frames, or an empty
	// slice when the mixer is waiting for input.
	GetOutput() ([]byte, error)

	// SetEndTimeUs caps the output timeline. Frames at or beyond the end
	// time are neither accepted nor emitted. It may be called at any
	// point after Configure, including after the mixer already ended.
	SetEndTimeUs(timeUs int64) error

	// IsEnded reports whether the mixer can produce no further output in
	// its current state.
	IsEnded() bool

	// Flush discards all buffered audio and rewinds the mixer and every
	// registered source to their configured start positions. Any end
	// time is cleared.
	Flush()

	// Reset returns the mixer to the unconfigured state, dropping all
	// sources.
	Reset()
}
