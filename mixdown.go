package avexport

import (
	"errors"
	"fmt"

	"github.com/mediafoundry/avexport/audio"
)

// mixChunkBytes is how much of a source is moved per loaned buffer while
// driving the graph.
const mixChunkBytes = 4096

// maxIdleRounds bounds how many consecutive polling rounds may pass without
// any announcement, queued byte or emitted byte before MixSources gives up.
// A healthy graph settles its pending item changes within a round or two.
const maxIdleRounds = 3

// MixSource describes one stream entering an offline mix.
type MixSource struct {
	// Format describes the layout of Data. Required.
	Format audio.Format

	// Data holds the stream's interleaved PCM, a whole number of frames.
	Data []byte

	// StartTimeUs delays the stream's first frame on the mix timeline. The
	// gap before it is synthesized as silence. Must not be negative.
	StartTimeUs int64

	// Processors run on this stream alone, before it reaches the mixer.
	Processors []audio.Processor
}

// MixSources is a high-level convenience function that mixes any number of
// PCM streams into a single stream, driving an audio graph to completion in
// memory.
//
// This function creates and drives a processing pipeline:
//  1. Registers every source on a new audio.Graph; the first source decides
//     the mixing sample rate and channel count
//  2. Resamples later sources whose rate differs from the mixing rate
//  3. Announces a leading silence item for sources with a start offset
//  4. Feeds each source's bytes through the graph's buffer loan protocol
//  5. Polls the graph for mixed output until every source has drained
//
// Parameters:
//   - sources: The streams to mix. At least one is required, and each
//     source's Data must hold a whole number of frames of its Format.
//   - cfg: Graph options (mixer, buffer length, shared effects, logger).
//     The zero value is usable.
//
// Returns:
//   - []byte: The mixed interleaved PCM stream
//   - audio.Format: The format of the mixed stream
//   - error: Any error from registration, feeding or mixing
//
// Note: This is a convenience function for offline mixing of decoded
// streams that fit in memory. For streaming input, per-item sequencing or
// seeking, use audio.NewGraph and its GraphInput loan protocol directly.
//
// Example:
//
//	music := avexport.MixSource{Format: fmt48k, Data: musicPCM}
//	voice := avexport.MixSource{Format: fmt44k, Data: voicePCM, StartTimeUs: 2_000_000}
//	mixed, out, err := avexport.MixSources([]avexport.MixSource{music, voice}, audio.GraphConfig{})
//	if err != nil {
//	    panic(err)
//	}
//	// mixed now contains both streams at fmt48k, voice entering at 2s
func MixSources(sources []MixSource, cfg audio.GraphConfig) ([]byte, audio.Format, error) {
	if len(sources) == 0 {
		return nil, audio.Format{}, fmt.Errorf("%w: no sources", audio.ErrInvalidArgument)
	}

	graph := audio.NewGraph(cfg)
	feeds := make([]*mixFeed, 0, len(sources))

	for i, src := range sources {
		if src.StartTimeUs < 0 {
			return nil, audio.Format{}, fmt.Errorf("%w: source %d starts at %dus",
				audio.ErrInvalidArgument, i, src.StartTimeUs)
		}

		if bpf := src.Format.BytesPerFrame(); bpf > 0 && len(src.Data)%bpf != 0 {
			return nil, audio.Format{}, fmt.Errorf("%w: source %d holds %d bytes, not whole %d byte frames",
				audio.ErrInvalidArgument, i, len(src.Data), bpf)
		}

		if mixRate := graph.OutputFormat().SampleRate; mixRate != 0 &&
			src.Format.IsSet() && src.Format.SampleRate != mixRate {
			resampled, format, err := audio.ResamplePCM(src.Data, src.Format, mixRate)
			if err != nil {
				return nil, audio.Format{}, fmt.Errorf("source %d: %w", i, err)
			}

			src.Data, src.Format = resampled, format
		}

		in, err := graph.RegisterInput(src.Format, src.Processors...)
		if err != nil {
			return nil, audio.Format{}, fmt.Errorf("source %d: %w", i, err)
		}

		feed := &mixFeed{input: in, source: src}

		if src.StartTimeUs > 0 {
			// The stream's item is announced later, once the silence has
			// started draining and the pending slot is free again.
			err = in.OnMediaItemChanged(src.StartTimeUs, nil, false)
		} else {
			err = feed.announce()
		}

		if err != nil {
			return nil, audio.Format{}, fmt.Errorf("source %d: %w", i, err)
		}

		feeds = append(feeds, feed)
	}

	var (
		mixed []byte
		idle  int
	)

	for !graph.IsEnded() {
		progress := false

		for i, feed := range feeds {
			moved, err := feed.pump()
			if err != nil {
				return nil, audio.Format{}, fmt.Errorf("source %d: %w", i, err)
			}

			if moved {
				progress = true
			}
		}

		chunk, err := graph.GetOutput()
		if err != nil {
			return nil, audio.Format{}, err
		}

		if len(chunk) > 0 {
			mixed = append(mixed, chunk...)
			progress = true
		}

		if progress {
			idle = 0
			continue
		}

		if idle++; idle >= maxIdleRounds {
			return nil, audio.Format{}, fmt.Errorf("%w: mix stalled after %d bytes",
				audio.ErrInvalidState, len(mixed))
		}
	}

	return mixed, graph.OutputFormat(), nil
}

// mixFeed tracks how far one source has been pushed into its graph input.
type mixFeed struct {
	input  *audio.GraphInput
	source MixSource

	offset    int
	announced bool
	closed    bool
}

// announce declares the source's data as the input's final media item.
func (f *mixFeed) announce() error {
	frames := int64(len(f.source.Data)) / int64(f.source.Format.BytesPerFrame())
	durationUs := frames * 1_000_000 / int64(f.source.Format.SampleRate)

	if err := f.input.OnMediaItemChanged(durationUs, &f.source.Format, true); err != nil {
		return err
	}

	f.announced = true

	return nil
}

// pump moves the next run of source bytes into the input and reports whether
// anything moved this round.
func (f *mixFeed) pump() (bool, error) {
	if f.closed {
		return false, nil
	}

	if !f.announced {
		err := f.announce()
		if errors.Is(err, audio.ErrInvalidState) {
			// The leading silence item has not started draining yet.
			return false, nil
		}

		return err == nil, err
	}

	buf := f.input.GetInputBuffer()
	if buf == nil {
		return false, nil
	}

	bpf := f.source.Format.BytesPerFrame()

	n := len(f.source.Data) - f.offset
	if n > mixChunkBytes {
		n = mixChunkBytes - mixChunkBytes%bpf
	}

	buf.Data = append(buf.Data, f.source.Data[f.offset:f.offset+n]...)
	buf.TimeUs = f.source.StartTimeUs +
		int64(f.offset/bpf)*1_000_000/int64(f.source.Format.SampleRate)

	f.offset += n

	if f.offset == len(f.source.Data) {
		buf.EndOfStream = true
		f.closed = true
	}

	if err := f.input.QueueInputBuffer(); err != nil {
		return false, err
	}

	return true, nil
}
