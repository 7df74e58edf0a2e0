// SPDX-License-Identifier: EPL-2.0

package mux

import "time"

// DefaultMaxDelayBetweenSamples is the stall threshold reported by the
// writers in this package.
const DefaultMaxDelayBetweenSamples = 10 * time.Second

// SampleFlags annotates an encoded sample passed to a Writer.
type SampleFlags uint32

const (
	// SampleKeyFrame marks the sample as independently decodable.
	SampleKeyFrame SampleFlags = 1 << iota
)

// IsKeyFrame reports whether SampleKeyFrame is set.
func (f SampleFlags) IsKeyFrame() bool {
	return f&SampleKeyFrame != 0
}

// Metadata is a container-level entry attached to the output before any
// sample is written. Writers ignore entries they cannot represent.
type Metadata interface {
	isMetadata()
}

// OrientationMetadata asks the container to present video rotated
// clockwise by Degrees. Valid values are 0, 90, 180 and 270.
type OrientationMetadata struct {
	Degrees int
}

func (OrientationMetadata) isMetadata() {}

// StringMetadata is a free-form key/value entry, such as a writing
// application tag.
type StringMetadata struct {
	Key   string
	Value string
}

func (StringMetadata) isMetadata() {}

// Writer is the contract between MuxerWrapper and a concrete container
// writer. The wrapper assumes nothing about the container beyond these
// operations. Implementations are single-threaded, like everything else
// in this package.
type Writer interface {
	// AddTrack declares a track and returns its index. Every track must
	// be added before the first sample is written.
	AddTrack(format TrackFormat) (int, error)

	// WriteSampleData appends one encoded sample to the track at
	// trackIndex. The payload must not be retained after the call
	// returns. Timestamps are microseconds and must not decrease within
	// a track.
	WriteSampleData(trackIndex int, data []byte, ptsUs int64, flags SampleFlags) error

	// AddMetadata attaches a container-level metadata entry. It must be
	// called before the first sample is written.
	AddMetadata(entry Metadata) error

	// Release finishes the output and frees resources. When
	// forCancellation is true the output is abandoned and may be left
	// unreadable.
	Release(forCancellation bool) error

	// MaxDelayBetweenSamples is the longest gap the writer expects
	// between consecutive samples before an external watchdog should
	// treat the stream as stalled.
	MaxDelayBetweenSamples() time.Duration
}

// EventKind discriminates the lifecycle events a MuxerWrapper reports.
type EventKind int

const (
	// EventTrackEnded fires when one track has received its final
	// sample.
	EventTrackEnded EventKind = iota + 1

	// EventEnded fires when every declared track has ended and the
	// output is complete.
	EventEnded

	// EventError fires when the underlying writer fails after samples
	// were accepted.
	EventError
)

// Event carries the details of one lifecycle notification. Fields are
// populated according to Kind.
type Event struct {
	Kind EventKind

	// TrackType, Format, AverageBitrate and SampleCount describe the
	// finished track for EventTrackEnded. AverageBitrate is bits per
	// second, or -1 when the track was too short to measure.
	TrackType      TrackType
	Format         TrackFormat
	AverageBitrate int64
	SampleCount    int

	// DurationMs and BytesWritten describe the finished output for
	// EventEnded. BytesWritten counts sample payload bytes across all
	// tracks.
	DurationMs   int64
	BytesWritten int64

	// Err is set for EventError.
	Err error
}

// EventFunc receives lifecycle events from a MuxerWrapper. A nil
// EventFunc disables reporting.
type EventFunc func(Event)
