// SPDX-License-Identifier: EPL-2.0

package mux

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"go.uber.org/zap"
)

const (
	videoTimescale = 90_000

	// fmp4PartDurationUs is how much of a track is buffered before a
	// part is written out.
	fmp4PartDurationUs = 1_000_000
)

// FMP4Writer muxes H.264, H.265, AAC and Opus tracks into a fragmented
// MP4. The init segment is written when the first sample arrives and
// each track's samples are grouped into parts of about one second, so
// the output stays valid after every part boundary. That makes the
// container a natural fit for a partial pass that is appended to later.
type FMP4Writer struct {
	dst io.WriteSeeker
	log *zap.Logger

	tracks  []*fmp4Track
	seq     uint32
	started bool

	released bool
}

type fmp4Track struct {
	id        int
	format    TrackFormat
	timescale uint32
	init      *fmp4.InitTrack
	pending   []fmp4Sample
}

type fmp4Sample struct {
	ptsUs    int64
	keyFrame bool
	payload  []byte
}

// NewFMP4Writer returns a writer that muxes into dst.
func NewFMP4Writer(dst io.WriteSeeker) (*FMP4Writer, error) {
	return NewFMP4WriterWithLogger(dst, nil)
}

// NewFMP4WriterWithLogger is NewFMP4Writer with part-level diagnostics
// on log. A nil log disables them.
func NewFMP4WriterWithLogger(dst io.WriteSeeker, log *zap.Logger) (*FMP4Writer, error) {
	if dst == nil {
		return nil, fmt.Errorf("%w: destination is required", ErrInvalidArgument)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FMP4Writer{dst: dst, log: log, seq: 1}, nil
}

// AddTrack declares a track. H.264 expects SPS and PPS in
// InitializationData, H.265 expects VPS, SPS and PPS, AAC expects an
// AudioSpecificConfig or none (one is derived from the sample rate and
// channel count). Start codes on parameter sets are tolerated.
func (w *FMP4Writer) AddTrack(format TrackFormat) (int, error) {
	if w.started {
		return 0, fmt.Errorf("%w: tracks are fixed after the first sample", ErrInvalidState)
	}

	id := len(w.tracks) + 1
	track := &fmp4Track{id: id, format: format}

	switch format.MimeType {
	case MimeVideoH264:
		if len(format.InitializationData) < 2 {
			return 0, fmt.Errorf("%w: h264 initialization data must carry SPS and PPS", ErrInvalidArgument)
		}
		sps := trimStartCode(format.InitializationData[0])
		pps := trimStartCode(format.InitializationData[1])
		var parsed h264.SPS
		if err := parsed.Unmarshal(sps); err != nil {
			return 0, fmt.Errorf("%w: parse h264 SPS: %v", ErrInvalidArgument, err)
		}
		track.timescale = videoTimescale
		track.init = &fmp4.InitTrack{
			ID:        id,
			TimeScale: videoTimescale,
			Codec:     &mp4.CodecH264{SPS: sps, PPS: pps},
		}

	case MimeVideoH265:
		if len(format.InitializationData) < 3 {
			return 0, fmt.Errorf("%w: h265 initialization data must carry VPS, SPS and PPS", ErrInvalidArgument)
		}
		vps := trimStartCode(format.InitializationData[0])
		sps := trimStartCode(format.InitializationData[1])
		pps := trimStartCode(format.InitializationData[2])
		var parsed h265.SPS
		if err := parsed.Unmarshal(sps); err != nil {
			return 0, fmt.Errorf("%w: parse h265 SPS: %v", ErrInvalidArgument, err)
		}
		track.timescale = videoTimescale
		track.init = &fmp4.InitTrack{
			ID:        id,
			TimeScale: videoTimescale,
			Codec:     &mp4.CodecH265{VPS: vps, SPS: sps, PPS: pps},
		}

	case MimeAudioAAC:
		conf := mpeg4audio.AudioSpecificConfig{
			Type:         2, // AAC-LC
			SampleRate:   format.SampleRate,
			ChannelCount: format.ChannelCount,
		}
		if len(format.InitializationData) > 0 {
			if err := conf.Unmarshal(format.InitializationData[0]); err != nil {
				return 0, fmt.Errorf("%w: parse AudioSpecificConfig: %v", ErrInvalidArgument, err)
			}
		}
		if format.SampleRate <= 0 {
			return 0, fmt.Errorf("%w: aac sample rate must be positive, got %d", ErrInvalidArgument, format.SampleRate)
		}
		track.timescale = uint32(format.SampleRate)
		track.init = &fmp4.InitTrack{
			ID:        id,
			TimeScale: uint32(format.SampleRate),
			Codec:     &mp4.CodecMPEG4Audio{Config: conf},
		}

	case MimeAudioOpus:
		rate := format.SampleRate
		if rate <= 0 {
			rate = 48_000
		}
		track.timescale = uint32(rate)
		track.init = &fmp4.InitTrack{
			ID:        id,
			TimeScale: uint32(rate),
			Codec:     &mp4.CodecOpus{ChannelCount: format.ChannelCount},
		}

	default:
		return 0, fmt.Errorf("%w: fmp4 cannot carry %q", ErrUnsupportedFormat, format.MimeType)
	}

	w.tracks = append(w.tracks, track)
	return id - 1, nil
}

// WriteSampleData appends one encoded sample. The first call writes the
// init segment for all declared tracks. Annex-B framed video payloads
// are rewritten with length prefixes and ADTS headers are stripped from
// AAC payloads.
func (w *FMP4Writer) WriteSampleData(trackIndex int, data []byte, ptsUs int64, flags SampleFlags) error {
	if w.released {
		return fmt.Errorf("%w: writer released", ErrInvalidState)
	}
	if trackIndex < 0 || trackIndex >= len(w.tracks) {
		return fmt.Errorf("%w: track index %d of %d", ErrInvalidArgument, trackIndex, len(w.tracks))
	}
	if ptsUs < 0 {
		return fmt.Errorf("%w: negative timestamp %d", ErrInvalidArgument, ptsUs)
	}
	if !w.started {
		if err := w.writeInit(); err != nil {
			return err
		}
	}

	track := w.tracks[trackIndex]
	payload := data
	switch track.format.MimeType {
	case MimeVideoH264, MimeVideoH265:
		payload = annexBToLengthPrefixed(payload)
	case MimeAudioAAC:
		payload = stripADTSHeader(payload)
	}
	// The payload is buffered until the part is flushed, so it must not
	// alias the caller's buffer.
	track.pending = append(track.pending, fmp4Sample{
		ptsUs:    ptsUs,
		keyFrame: flags.IsKeyFrame(),
		payload:  append([]byte(nil), payload...),
	})

	if ptsUs-track.pending[0].ptsUs >= fmp4PartDurationUs {
		return w.flushTrack(track)
	}
	return nil
}

// AddMetadata is accepted before the first sample. The fragmented MP4
// layout written here represents none of the supported entries, so they
// are dropped.
func (w *FMP4Writer) AddMetadata(Metadata) error {
	if w.started {
		return fmt.Errorf("%w: metadata is fixed after the first sample", ErrInvalidState)
	}
	return nil
}

// Release flushes the remaining samples of every track. For
// cancellation the buffered samples are discarded instead.
func (w *FMP4Writer) Release(forCancellation bool) error {
	if w.released {
		return nil
	}
	w.released = true
	if forCancellation {
		w.tracks = nil
		return nil
	}
	if !w.started && len(w.tracks) > 0 {
		if err := w.writeInit(); err != nil {
			return err
		}
	}
	for _, track := range w.tracks {
		if err := w.flushTrack(track); err != nil {
			return err
		}
	}
	return nil
}

// MaxDelayBetweenSamples returns DefaultMaxDelayBetweenSamples.
func (w *FMP4Writer) MaxDelayBetweenSamples() time.Duration {
	return DefaultMaxDelayBetweenSamples
}

func (w *FMP4Writer) writeInit() error {
	init := fmp4.Init{Tracks: make([]*fmp4.InitTrack, 0, len(w.tracks))}
	for _, track := range w.tracks {
		init.Tracks = append(init.Tracks, track.init)
	}
	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return fmt.Errorf("marshal init segment: %w", err)
	}
	if _, err := w.dst.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write init segment: %w", err)
	}
	w.log.Debug("init segment written",
		zap.Int("tracks", len(w.tracks)),
		zap.Int("bytes", len(buf.Bytes())))
	w.started = true
	return nil
}

func (w *FMP4Writer) flushTrack(track *fmp4Track) error {
	if len(track.pending) == 0 {
		return nil
	}
	part := fmp4.Part{
		SequenceNumber: w.seq,
		Tracks: []*fmp4.PartTrack{{
			ID:       track.id,
			BaseTime: scaleTimestamp(track.pending[0].ptsUs, track.timescale),
			Samples:  track.buildSamples(),
		}},
	}
	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return fmt.Errorf("marshal part %d: %w", w.seq, err)
	}
	if _, err := w.dst.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write part %d: %w", w.seq, err)
	}
	w.log.Debug("part written",
		zap.Uint32("sequence", w.seq),
		zap.Int("track", track.id),
		zap.Int("samples", len(track.pending)),
		zap.Int("bytes", len(buf.Bytes())))
	w.seq++
	track.pending = track.pending[:0]
	return nil
}

func (t *fmp4Track) buildSamples() []*fmp4.Sample {
	samples := make([]*fmp4.Sample, len(t.pending))
	for i, p := range t.pending {
		durationUs := t.defaultSampleDurationUs()
		if i+1 < len(t.pending) {
			durationUs = t.pending[i+1].ptsUs - p.ptsUs
		}
		samples[i] = &fmp4.Sample{
			Duration:        uint32(scaleTimestamp(durationUs, t.timescale)),
			IsNonSyncSample: !p.keyFrame,
			Payload:         p.payload,
		}
	}
	return samples
}

// defaultSampleDurationUs is used for the last sample of a part, whose
// successor is not known yet.
func (t *fmp4Track) defaultSampleDurationUs() int64 {
	switch t.format.MimeType {
	case MimeAudioAAC:
		return 1024 * 1_000_000 / int64(t.format.SampleRate)
	case MimeAudioOpus:
		return 20_000
	}
	if t.format.FrameRate > 0 {
		return int64(1_000_000 / t.format.FrameRate)
	}
	return 33_333
}

// scaleTimestamp converts microseconds to ticks of the track timescale.
func scaleTimestamp(us int64, timescale uint32) uint64 {
	return uint64(us) * uint64(timescale) / 1_000_000
}

// annexBToLengthPrefixed rewrites Annex-B framed NAL units with the
// four byte big-endian length prefixes MP4 requires. Payloads without a
// leading start code pass through unchanged.
func annexBToLengthPrefixed(data []byte) []byte {
	first, size := nextStartCode(data, 0)
	if first != 0 {
		return data
	}
	out := make([]byte, 0, len(data)+8)
	start := size
	for start < len(data) {
		pos, n := nextStartCode(data, start)
		end := pos
		if pos < 0 {
			end = len(data)
		}
		nal := data[start:end]
		out = binary.BigEndian.AppendUint32(out, uint32(len(nal)))
		out = append(out, nal...)
		if pos < 0 {
			break
		}
		start = pos + n
	}
	return out
}

// nextStartCode returns the offset and length of the first three or
// four byte start code at or after from, or (-1, 0) when there is none.
func nextStartCode(data []byte, from int) (int, int) {
	for i := from; i+3 <= len(data); i++ {
		if data[i] != 0 || data[i+1] != 0 {
			continue
		}
		if data[i+2] == 1 {
			return i, 3
		}
		if i+4 <= len(data) && data[i+2] == 0 && data[i+3] == 1 {
			return i, 4
		}
	}
	return -1, 0
}

// stripADTSHeader drops a leading ADTS header from an AAC frame. Frames
// without the 0xFFF sync word pass through unchanged.
func stripADTSHeader(data []byte) []byte {
	if len(data) < 7 || data[0] != 0xFF || data[1]&0xF0 != 0xF0 {
		return data
	}
	headerLen := 7
	if data[1]&0x01 == 0 {
		// Protection absent bit clear, a CRC follows the header.
		headerLen = 9
	}
	if len(data) < headerLen {
		return data
	}
	return data[headerLen:]
}
