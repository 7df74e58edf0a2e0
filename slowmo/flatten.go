// SPDX-License-Identifier: EPL-2.0

package slowmo

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// FlattenerConfig carries the construction inputs of NewFlattener.
type FlattenerConfig struct {
	// Data is the slow motion metadata of the capture.
	Data SlowMotionData

	// CaptureFrameRate is the recording rate in frames per second. Zero
	// means unrecorded and disables the base speed-up.
	CaptureFrameRate float64

	// TemporalLayerCount is how many SVC temporal layers the capture
	// carries. Layers are numbered from zero; each layer doubles the
	// frame rate of the layers below it.
	TemporalLayerCount int

	// Logger receives lifecycle events. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Flattener bakes the slow motion effect of a capture into plain video:
// it decides per frame whether the frame survives the speed change at
// its position and where the surviving frame lands on the output
// timeline. Frames must be offered in presentation order.
type Flattener struct {
	provider *SegmentSpeedProvider
	maxLayer int
}

// NewFlattener returns a flattener for one capture.
func NewFlattener(cfg FlattenerConfig) (*Flattener, error) {
	if cfg.TemporalLayerCount < 1 {
		return nil, fmt.Errorf("%w: temporal layer count %d, need at least 1", ErrInvalidArgument, cfg.TemporalLayerCount)
	}

	provider, err := NewSegmentSpeedProvider(cfg.Data, cfg.CaptureFrameRate)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	f := &Flattener{
		provider: provider,
		maxLayer: cfg.TemporalLayerCount - 1,
	}

	log.Info("slow motion flattening configured",
		zap.Int("segments", len(cfg.Data.Segments)),
		zap.Float64("baseSpeed", provider.BaseSpeed()),
		zap.Int("maxLayer", f.maxLayer))

	return f, nil
}

// ProcessCurrentFrame reports whether a frame at the given temporal
// layer survives the speed applicable at timeUs. Dropping a temporal
// layer halves the frame rate, so a speed-up of 2^n costs the top n
// layers; at speeds of 1 and below every layer is kept.
func (f *Flattener) ProcessCurrentFrame(layer int, timeUs int64) (bool, error) {
	if layer < 0 {
		return false, fmt.Errorf("%w: negative temporal layer %d", ErrInvalidArgument, layer)
	}

	speed, err := f.provider.GetSpeed(timeUs)
	if err != nil {
		return false, err
	}

	return layer <= f.maxLayerFor(speed), nil
}

// GetCurrentFrameOutputTimeUs maps a capture timestamp onto the output
// timeline by integrating the elapsed time over the speed of every span
// since the start of the stream. Output times are monotonically
// non-decreasing for non-decreasing inputs, including across segment
// boundaries.
func (f *Flattener) GetCurrentFrameOutputTimeUs(inputTimeUs int64) (int64, error) {
	if inputTimeUs < 0 {
		return 0, fmt.Errorf("%w: negative time %dus", ErrInvalidArgument, inputTimeUs)
	}

	outputUs := 0.0
	spanStartUs := int64(0)

	for _, change := range f.provider.changes {
		if change.timeUs >= inputTimeUs {
			break
		}

		speed, err := f.provider.GetSpeed(spanStartUs)
		if err != nil {
			return 0, err
		}

		outputUs += float64(change.timeUs-spanStartUs) / speed
		spanStartUs = change.timeUs
	}

	speed, err := f.provider.GetSpeed(spanStartUs)
	if err != nil {
		return 0, err
	}

	outputUs += float64(inputTimeUs-spanStartUs) / speed

	return int64(outputUs), nil
}

// maxLayerFor returns the highest temporal layer kept at the given
// speed. The base layer always survives, even when the speed asks for
// fewer frames than the layering can drop.
func (f *Flattener) maxLayerFor(speed float64) int {
	if speed <= 1 {
		return f.maxLayer
	}

	dropped := int(math.Round(math.Log2(speed)))
	if dropped >= f.maxLayer {
		return 0
	}

	return f.maxLayer - dropped
}
