// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"math"
)

// DefaultMixer is the reference Mixer implementation. It accumulates all
// sources into two float32 windows that leapfrog along the output timeline,
// each bufferSizeMs long, so input may run up to one full buffer ahead of
// the emitted position without unbounded memory.
type DefaultMixer struct {
	// outputSilenceWithNoSources keeps the mixer producing zero frames
	// while no sources are registered instead of ending the stream.
	outputSilenceWithNoSources bool

	configured       bool
	outputFormat     Format
	mixingFormat     Format
	bufferSizeFrames int64
	startFrame       int64

	// windows[0] always contains the output position.
	windows [2]mixWindow

	// outputPosition is the absolute frame index of the next frame to
	// emit. endPosition caps the timeline; it stays math.MaxInt64 until
	// SetEndTimeUs is called.
	outputPosition int64
	endPosition    int64

	// maxRemovedPosition tracks how far removed sources had advanced, so
	// their already mixed frames still drain after removal.
	maxRemovedPosition int64

	sources      map[SourceID]*mixerSource
	nextSourceID SourceID
}

type mixWindow struct {
	start int64
	data  []float32
}

type mixerSource struct {
	format     Format
	algorithm  MixingAlgorithm
	baseMatrix ChannelMixingMatrix
	matrix     ChannelMixingMatrix
	startFrame int64
	position   int64
}

var _ Mixer = (*DefaultMixer)(nil)

// NewDefaultMixer returns an unconfigured mixer. When
// outputSilenceWithNoSources is set, the mixer emits silence while no
// sources are registered and never reports ended on its own.
func NewDefaultMixer(outputSilenceWithNoSources bool) *DefaultMixer {
	return &DefaultMixer{outputSilenceWithNoSources: outputSilenceWithNoSources}
}

func (m *DefaultMixer) Configure(outputFormat Format, bufferSizeMs int, startTimeUs int64) error {
	if m.configured {
		return fmt.Errorf("%w: mixer already configured", ErrInvalidState)
	}

	if !outputFormat.IsSet() {
		return fmt.Errorf("%w: output format must be fully set, got %s", ErrInvalidArgument, outputFormat)
	}

	if outputFormat.Encoding != EncodingPCM16 && outputFormat.Encoding != EncodingFloat32 {
		return fmt.Errorf("%w: cannot mix to %s output", ErrUnhandledFormat, outputFormat.Encoding)
	}

	if bufferSizeMs <= 0 {
		return fmt.Errorf("%w: buffer size must be positive, got %dms", ErrInvalidArgument, bufferSizeMs)
	}

	m.outputFormat = outputFormat
	m.mixingFormat = Format{
		SampleRate:   outputFormat.SampleRate,
		ChannelCount: outputFormat.ChannelCount,
		Encoding:     EncodingFloat32,
	}
	m.bufferSizeFrames = int64(bufferSizeMs) * int64(outputFormat.SampleRate) / 1000
	m.startFrame = outputFormat.FramesForDuration(startTimeUs)
	m.sources = make(map[SourceID]*mixerSource)
	m.configured = true

	m.resetTimeline()

	return nil
}

// resetTimeline rewinds positions and window contents to the configured
// start without touching source registrations.
func (m *DefaultMixer) resetTimeline() {
	windowLen := int(m.bufferSizeFrames) * m.outputFormat.ChannelCount

	for i := range m.windows {
		m.windows[i].start = m.startFrame + int64(i)*m.bufferSizeFrames
		if len(m.windows[i].data) != windowLen {
			m.windows[i].data = make([]float32, windowLen)
		} else {
			clear(m.windows[i].data)
		}
	}

	m.outputPosition = m.startFrame
	m.endPosition = math.MaxInt64
	m.maxRemovedPosition = m.startFrame
}

func (m *DefaultMixer) SupportsSourceFormat(format Format) bool {
	if !m.configured {
		return false
	}

	if _, err := NewMixingAlgorithm(format, m.mixingFormat); err != nil {
		return false
	}

	_, err := DefaultChannelMixingMatrix(format.ChannelCount, m.outputFormat.ChannelCount)

	return err == nil
}

func (m *DefaultMixer) AddSource(format Format, startTimeUs int64) (SourceID, error) {
	if !m.configured {
		return 0, fmt.Errorf("%w: mixer not configured", ErrInvalidState)
	}

	algorithm, err := NewMixingAlgorithm(format, m.mixingFormat)
	if err != nil {
		return 0, err
	}

	matrix, err := DefaultChannelMixingMatrix(format.ChannelCount, m.outputFormat.ChannelCount)
	if err != nil {
		return 0, err
	}

	id := m.nextSourceID
	m.nextSourceID++

	startFrame := m.outputFormat.FramesForDuration(startTimeUs)
	m.sources[id] = &mixerSource{
		format:     format,
		algorithm:  algorithm,
		baseMatrix: matrix,
		matrix:     matrix,
		startFrame: startFrame,
		position:   startFrame,
	}

	return id, nil
}

func (m *DefaultMixer) HasSource(id SourceID) bool {
	_, ok := m.sources[id]
	return ok
}

func (m *DefaultMixer) SetSourceVolume(id SourceID, volume float32) error {
	if volume < 0 {
		return fmt.Errorf("%w: volume must be non-negative, got %v", ErrInvalidArgument, volume)
	}

	source, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrSourceNotFound, id)
	}

	source.matrix = source.baseMatrix.ScaleBy(volume)

	return nil
}

func (m *DefaultMixer) RemoveSource(id SourceID) error {
	source, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrSourceNotFound, id)
	}

	m.maxRemovedPosition = max(m.maxRemovedPosition, source.position)
	delete(m.sources, id)

	return nil
}

// inputLimit is the first frame no source may deliver yet: input may run at
// most one buffer ahead of the output position and never past the end.
func (m *DefaultMixer) inputLimit() int64 {
	return min(m.endPosition, m.outputPosition+m.bufferSizeFrames)
}

func (m *DefaultMixer) QueueInput(id SourceID, input []byte) ([]byte, error) {
	if !m.configured {
		return input, fmt.Errorf("%w: mixer not configured", ErrInvalidState)
	}

	source, ok := m.sources[id]
	if !ok {
		return input, fmt.Errorf("%w: id %d", ErrSourceNotFound, id)
	}

	bytesPerFrame := source.format.BytesPerFrame()
	framesAvailable := int64(len(input) / bytesPerFrame)

	limit := m.inputLimit()
	if source.position >= limit || framesAvailable == 0 {
		return input, nil
	}

	newPosition := min(source.position+framesAvailable, limit)
	consumedFrames := newPosition - source.position

	// Frames that lie before the output position were already emitted
	// and are consumed without mixing.
	offset := 0
	position := source.position

	if position < m.outputPosition {
		skipped := min(newPosition, m.outputPosition) - position
		offset = int(skipped) * bytesPerFrame
		position += skipped
	}

	for i := range m.windows {
		window := &m.windows[i]

		lo := max(position, window.start)
		hi := min(newPosition, window.start+m.bufferSizeFrames)
		if lo >= hi {
			continue
		}

		srcStart := offset + int(lo-position)*bytesPerFrame
		channels := m.outputFormat.ChannelCount
		dst := window.data[(lo-window.start)*int64(channels) : (hi-window.start)*int64(channels)]

		source.algorithm.Mix(input[srcStart:], source.matrix, dst)
	}

	source.position = newPosition

	return input[int(consumedFrames)*bytesPerFrame:], nil
}

func (m *DefaultMixer) GetOutput() ([]byte, error) {
	if !m.configured {
		return nil, fmt.Errorf("%w: mixer not configured", ErrInvalidState)
	}

	limit := int64(math.MaxInt64)

	switch {
	case len(m.sources) > 0:
		for _, source := range m.sources {
			limit = min(limit, source.position)
		}
	case m.outputSilenceWithNoSources:
		// Keep emitting zero frames up to the window boundary.
	default:
		limit = m.maxRemovedPosition
	}

	window := &m.windows[0]
	limit = min(limit, m.endPosition, window.start+m.bufferSizeFrames)

	if limit <= m.outputPosition {
		return nil, nil
	}

	channels := m.outputFormat.ChannelCount
	samples := window.data[(m.outputPosition-window.start)*int64(channels) : (limit-window.start)*int64(channels)]

	out := make([]byte, len(samples)*m.outputFormat.Encoding.BytesPerSample())
	encodeMixedSamples(samples, m.outputFormat.Encoding, out)

	m.outputPosition = limit

	if m.outputPosition == window.start+m.bufferSizeFrames {
		// The window is fully emitted: recycle it past its sibling.
		clear(window.data)
		window.start += 2 * m.bufferSizeFrames
		m.windows[0], m.windows[1] = m.windows[1], m.windows[0]
	}

	return out, nil
}

func (m *DefaultMixer) SetEndTimeUs(timeUs int64) error {
	if !m.configured {
		return fmt.Errorf("%w: mixer not configured", ErrInvalidState)
	}

	m.endPosition = m.outputFormat.FramesForDuration(timeUs)

	return nil
}

// IsEnded is a pure function of the mixer's positions, so raising the end
// time after the mixer ended brings it back to life.
func (m *DefaultMixer) IsEnded() bool {
	if !m.configured {
		return false
	}

	if m.outputPosition >= m.endPosition {
		return true
	}

	return !m.outputSilenceWithNoSources &&
		len(m.sources) == 0 &&
		m.outputPosition >= m.maxRemovedPosition
}

func (m *DefaultMixer) Flush() {
	if !m.configured {
		return
	}

	m.resetTimeline()

	for _, source := range m.sources {
		source.position = source.startFrame
	}
}

func (m *DefaultMixer) Reset() {
	m.configured = false
	m.outputFormat = Format{}
	m.mixingFormat = Format{}
	m.bufferSizeFrames = 0
	m.startFrame = 0
	m.windows = [2]mixWindow{}
	m.outputPosition = 0
	m.endPosition = 0
	m.maxRemovedPosition = 0
	m.sources = nil
	m.nextSourceID = 0
}
