// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"

	"go.uber.org/zap"
)

// defaultGraphBufferSizeMs is how much audio the graph's mixer buffers
// ahead of the emitted position.
const defaultGraphBufferSizeMs = 500

// GraphConfig carries the optional knobs of NewGraph. The zero value is
// usable.
type GraphConfig struct {
	// Mixer overrides the mixer implementation. Defaults to a
	// DefaultMixer that ends once all sources are drained.
	Mixer Mixer

	// BufferSizeMs sets the mixer's buffer length. Defaults to 500ms.
	BufferSizeMs int

	// Effects run on the mixed stream before it leaves the graph.
	Effects []Processor

	// Logger receives lifecycle events. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Graph mixes any number of registered inputs into a single PCM stream.
// The first registered input decides the mixing format; every further
// input is converted to it. All methods must be called from the same
// goroutine.
//
// The graph is driven by polling: feed each input through its loan
// protocol, then call GetOutput until it returns no data, and repeat until
// IsEnded.
type Graph struct {
	log          *zap.Logger
	mixer        Mixer
	bufferSizeMs int
	effects      []Processor

	inputs       map[SourceID]*graphInputEntry
	mixFormat    Format
	outputFormat Format
	post         *pcmConverter
	configured   bool

	// startTimeUs anchors the mix; pendingStartTimeUs replaces it on the
	// next Flush so a seek can restart the graph mid-timeline.
	startTimeUs        int64
	pendingStartTimeUs int64

	blocked bool
}

type graphInputEntry struct {
	input *GraphInput

	// pending holds converted bytes the mixer has not accepted yet.
	pending  []byte
	finished bool
}

// NewGraph returns an empty graph.
func NewGraph(cfg GraphConfig) *Graph {
	mixer := cfg.Mixer
	if mixer == nil {
		mixer = NewDefaultMixer(false)
	}

	bufferSizeMs := cfg.BufferSizeMs
	if bufferSizeMs <= 0 {
		bufferSizeMs = defaultGraphBufferSizeMs
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Graph{
		log:          log,
		mixer:        mixer,
		bufferSizeMs: bufferSizeMs,
		effects:      cfg.Effects,
		inputs:       make(map[SourceID]*graphInputEntry),
	}
}

// RegisterInput adds a stream to the mix. The first input configures the
// mixer with its output format; later inputs must share its sample rate.
// The returned GraphInput is the feeding side of the stream.
func (g *Graph) RegisterInput(format Format, processors ...Processor) (*GraphInput, error) {
	var requested Format
	if g.configured {
		requested = g.mixFormat
	}

	in, err := NewGraphInput(requested, format, processors...)
	if err != nil {
		return nil, fmt.Errorf("register input: %w", err)
	}

	if !g.configured {
		if err := g.configure(in.OutputFormat()); err != nil {
			return nil, err
		}
	}

	id, err := g.mixer.AddSource(in.OutputFormat(), g.startTimeUs)
	if err != nil {
		return nil, fmt.Errorf("register input: %w", err)
	}

	if g.blocked {
		in.BlockInput()
	}

	g.inputs[id] = &graphInputEntry{input: in}

	g.log.Info("audio graph input registered",
		zap.Int("source", int(id)),
		zap.Stringer("format", in.OutputFormat()))

	return in, nil
}

func (g *Graph) configure(mixFormat Format) error {
	if err := g.mixer.Configure(mixFormat, g.bufferSizeMs, g.startTimeUs); err != nil {
		return fmt.Errorf("configure mixer: %w", err)
	}

	g.mixFormat = mixFormat
	g.outputFormat = mixFormat

	if len(g.effects) > 0 {
		post, err := newPCMConverter(mixFormat, Format{}, g.effects)
		if err != nil {
			return fmt.Errorf("configure effects: %w", err)
		}

		g.post = post
		g.outputFormat = post.outputFormat
	}

	g.configured = true

	g.log.Info("audio graph configured",
		zap.Stringer("mixFormat", mixFormat),
		zap.Stringer("outputFormat", g.outputFormat),
		zap.Int("bufferSizeMs", g.bufferSizeMs))

	return nil
}

// OutputFormat returns the format GetOutput emits. It is the zero Format
// until the first input is registered.
func (g *Graph) OutputFormat() Format {
	return g.outputFormat
}

// GetOutput moves as much audio as possible from the inputs through the
// mixer and returns the next run of mixed frames, or an empty slice when
// the graph is waiting for input. The returned data is only valid until
// the next GetOutput call.
func (g *Graph) GetOutput() ([]byte, error) {
	if !g.configured {
		return nil, nil
	}

	if err := g.feedMixer(); err != nil {
		return nil, err
	}

	out, err := g.mixer.GetOutput()
	if err != nil {
		return nil, fmt.Errorf("mixer output: %w", err)
	}

	if g.post != nil && len(out) > 0 {
		out = g.post.convert(out)
	}

	return out, nil
}

// feedMixer drains every input into the mixer until the mixer stops
// accepting or the inputs run dry. Data stamped before the graph's start
// time is trimmed here, which realigns re-fed streams after a seek.
func (g *Graph) feedMixer() error {
	for id, entry := range g.inputs {
		if entry.finished {
			continue
		}

		for {
			if len(entry.pending) == 0 {
				buf := entry.input.GetOutput()

				if len(buf.Data) == 0 {
					if entry.input.IsEnded() {
						if err := g.mixer.RemoveSource(id); err != nil {
							return fmt.Errorf("remove source %d: %w", id, err)
						}

						entry.finished = true

						g.log.Info("audio graph input finished", zap.Int("source", int(id)))
					}

					break
				}

				entry.pending = g.trimBeforeStart(buf, entry.input.OutputFormat())
				if len(entry.pending) == 0 {
					continue
				}
			}

			remaining, err := g.mixer.QueueInput(id, entry.pending)
			if err != nil {
				return fmt.Errorf("queue source %d: %w", id, err)
			}

			noProgress := len(remaining) == len(entry.pending)
			entry.pending = remaining

			if noProgress || len(entry.pending) > 0 {
				break
			}
		}
	}

	return nil
}

// trimBeforeStart drops the leading frames of a chunk that fall before the
// graph's start time.
func (g *Graph) trimBeforeStart(buf Buffer, format Format) []byte {
	if buf.TimeUs >= g.startTimeUs {
		return buf.Data
	}

	dropFrames := format.FramesForDuration(g.startTimeUs - buf.TimeUs)
	dropBytes := int(dropFrames) * format.BytesPerFrame()

	if dropBytes >= len(buf.Data) {
		return nil
	}

	return buf.Data[dropBytes:]
}

// IsEnded reports whether every input has drained and the mixer emitted
// its last frame.
func (g *Graph) IsEnded() bool {
	return g.configured && g.mixer.IsEnded()
}

// BlockInput stops every input from handing out buffers, pausing the
// producers feeding the graph. Inputs registered while blocked start out
// blocked.
func (g *Graph) BlockInput() {
	g.blocked = true

	for _, entry := range g.inputs {
		entry.input.BlockInput()
	}
}

// UnblockInput lifts BlockInput on every input.
func (g *Graph) UnblockInput() {
	g.blocked = false

	for _, entry := range g.inputs {
		entry.input.UnblockInput()
	}
}

// SetPendingStartTimeUs records where the timeline restarts on the next
// Flush. Data stamped before this time will be dropped when the inputs are
// re-fed.
func (g *Graph) SetPendingStartTimeUs(timeUs int64) error {
	if timeUs < 0 {
		return fmt.Errorf("%w: negative start time %d", ErrInvalidArgument, timeUs)
	}

	g.pendingStartTimeUs = timeUs

	return nil
}

// Flush discards all in-flight audio and re-anchors the graph at the
// pending start time. Inputs stay registered; their producers re-feed data
// from the new position.
func (g *Graph) Flush() error {
	g.startTimeUs = g.pendingStartTimeUs

	if !g.configured {
		return nil
	}

	g.mixer.Reset()
	if err := g.mixer.Configure(g.mixFormat, g.bufferSizeMs, g.startTimeUs); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	rebuilt := make(map[SourceID]*graphInputEntry, len(g.inputs))

	for _, entry := range g.inputs {
		entry.input.Flush()
		entry.pending = nil
		entry.finished = false

		id, err := g.mixer.AddSource(entry.input.OutputFormat(), g.startTimeUs)
		if err != nil {
			return fmt.Errorf("flush: %w", err)
		}

		rebuilt[id] = entry
	}

	g.inputs = rebuilt

	g.log.Info("audio graph flushed", zap.Int64("startTimeUs", g.startTimeUs))

	return nil
}

// Reset returns the graph to its initial empty state, dropping every
// input.
func (g *Graph) Reset() {
	g.mixer.Reset()
	g.inputs = make(map[SourceID]*graphInputEntry)
	g.mixFormat = Format{}
	g.outputFormat = Format{}
	g.post = nil
	g.configured = false
	g.startTimeUs = 0
	g.pendingStartTimeUs = 0
	g.blocked = false

	g.log.Info("audio graph reset")
}
