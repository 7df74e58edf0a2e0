// SPDX-License-Identifier: EPL-2.0

package slowmo

import (
	"fmt"
	"sort"
)

// nominalFrameRate is the playback rate slow motion captures are timed
// against. A capture at a higher rate plays sped up by
// captureRate/nominalFrameRate outside of its slow motion segments.
const nominalFrameRate = 30

// Segment marks a stretch of the capture that plays slowed down.
type Segment struct {
	StartTimeMs int64
	EndTimeMs   int64

	// SpeedDivisor divides the playback speed inside the segment.
	SpeedDivisor int
}

// SlowMotionData is the speed-segment metadata embedded in a slow
// motion capture. Segments are ordered by start time and must not
// overlap; a segment may start exactly where the previous one ends.
type SlowMotionData struct {
	Segments []Segment
}

type speedChange struct {
	timeUs int64
	speed  float64
}

// SegmentSpeedProvider resolves the playback speed for any capture
// timestamp. Outside of every segment the base speed applies, inside a
// segment the base speed divided by the segment's divisor.
type SegmentSpeedProvider struct {
	baseSpeed float64
	changes   []speedChange
}

// NewSegmentSpeedProvider builds a provider from slow motion metadata.
// captureFrameRate is the recording rate in frames per second; zero
// means unrecorded and leaves the base speed at 1.
func NewSegmentSpeedProvider(data SlowMotionData, captureFrameRate float64) (*SegmentSpeedProvider, error) {
	if captureFrameRate < 0 {
		return nil, fmt.Errorf("%w: negative capture frame rate %g", ErrInvalidArgument, captureFrameRate)
	}

	baseSpeed := 1.0
	if captureFrameRate > 0 {
		baseSpeed = captureFrameRate / nominalFrameRate
	}

	if err := validateSegments(data.Segments); err != nil {
		return nil, err
	}

	p := &SegmentSpeedProvider{baseSpeed: baseSpeed}

	for i, seg := range data.Segments {
		p.changes = append(p.changes, speedChange{
			timeUs: seg.StartTimeMs * 1000,
			speed:  baseSpeed / float64(seg.SpeedDivisor),
		})

		// A segment end falls back to the base speed unless the next
		// segment starts right there.
		if i+1 < len(data.Segments) && data.Segments[i+1].StartTimeMs == seg.EndTimeMs {
			continue
		}

		p.changes = append(p.changes, speedChange{
			timeUs: seg.EndTimeMs * 1000,
			speed:  baseSpeed,
		})
	}

	return p, nil
}

func validateSegments(segments []Segment) error {
	prevEndMs := int64(0)

	for i, seg := range segments {
		if seg.SpeedDivisor < 1 {
			return fmt.Errorf("%w: segment %d speed divisor %d, need at least 1", ErrInvalidArgument, i, seg.SpeedDivisor)
		}

		if seg.StartTimeMs < 0 || seg.EndTimeMs <= seg.StartTimeMs {
			return fmt.Errorf("%w: segment %d spans %dms to %dms", ErrInvalidArgument, i, seg.StartTimeMs, seg.EndTimeMs)
		}

		if seg.StartTimeMs < prevEndMs {
			return fmt.Errorf("%w: segment %d starts at %dms before the previous one ends at %dms",
				ErrInvalidArgument, i, seg.StartTimeMs, prevEndMs)
		}

		prevEndMs = seg.EndTimeMs
	}

	return nil
}

// BaseSpeed returns the speed applied outside of every segment.
func (p *SegmentSpeedProvider) BaseSpeed() float64 {
	return p.baseSpeed
}

// GetSpeed returns the speed applicable at timeUs.
func (p *SegmentSpeedProvider) GetSpeed(timeUs int64) (float64, error) {
	if timeUs < 0 {
		return 0, fmt.Errorf("%w: negative time %dus", ErrInvalidArgument, timeUs)
	}

	if i := p.floorIndex(timeUs); i >= 0 {
		return p.changes[i].speed, nil
	}

	return p.baseSpeed, nil
}

// NextSpeedChangeTimeUs returns the first time strictly after timeUs at
// which the speed changes, or false when the speed stays constant from
// timeUs on.
func (p *SegmentSpeedProvider) NextSpeedChangeTimeUs(timeUs int64) (int64, bool) {
	i := sort.Search(len(p.changes), func(i int) bool {
		return p.changes[i].timeUs > timeUs
	})

	if i == len(p.changes) {
		return 0, false
	}

	return p.changes[i].timeUs, true
}

// floorIndex returns the index of the last change at or before timeUs,
// or -1 when timeUs precedes every change.
func (p *SegmentSpeedProvider) floorIndex(timeUs int64) int {
	return sort.Search(len(p.changes), func(i int) bool {
		return p.changes[i].timeUs > timeUs
	}) - 1
}
