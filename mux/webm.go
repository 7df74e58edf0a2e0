// SPDX-License-Identifier: EPL-2.0

package mux

import (
	"fmt"
	"io"
	"time"

	"github.com/at-wat/ebml-go/webm"
	"go.uber.org/multierr"
)

const (
	webmTrackTypeVideo = 1
	webmTrackTypeAudio = 2
)

// WebMWriter muxes VP8, VP9, AV1, Opus and Vorbis tracks into a WebM
// container in a single pass. The container structure is written lazily
// when the first sample arrives, so every track must be added before
// that.
type WebMWriter struct {
	dst     io.WriteSeeker
	entries []webm.TrackEntry
	writers []webm.BlockWriteCloser

	started  bool
	released bool
}

// NewWebMWriter returns a writer that muxes into dst.
func NewWebMWriter(dst io.WriteSeeker) (*WebMWriter, error) {
	if dst == nil {
		return nil, fmt.Errorf("%w: destination is required", ErrInvalidArgument)
	}
	return &WebMWriter{dst: dst}, nil
}

// AddTrack declares a track. Vorbis tracks expect the three codec
// header packets in InitializationData; Opus tracks expect the OpusHead
// packet.
func (w *WebMWriter) AddTrack(format TrackFormat) (int, error) {
	if w.started {
		return 0, fmt.Errorf("%w: tracks are fixed after the first sample", ErrInvalidState)
	}
	codecID, err := webmCodecID(format.MimeType)
	if err != nil {
		return 0, err
	}

	number := uint64(len(w.entries) + 1)
	entry := webm.TrackEntry{
		TrackNumber:  number,
		TrackUID:     number,
		CodecID:      codecID,
		CodecPrivate: webmCodecPrivate(format.InitializationData),
	}
	switch format.TrackType() {
	case TrackTypeVideo:
		entry.Name = "Video"
		entry.TrackType = webmTrackTypeVideo
		entry.Video = &webm.Video{
			PixelWidth:  uint64(format.Width),
			PixelHeight: uint64(format.Height),
		}
		if format.FrameRate > 0 {
			entry.DefaultDuration = uint64(1e9 / format.FrameRate)
		}
	case TrackTypeAudio:
		entry.Name = "Audio"
		entry.TrackType = webmTrackTypeAudio
		entry.Audio = &webm.Audio{
			SamplingFrequency: float64(format.SampleRate),
			Channels:          uint64(format.ChannelCount),
		}
	}

	w.entries = append(w.entries, entry)
	return int(number) - 1, nil
}

// WriteSampleData appends one encoded sample. The first call writes the
// container header for all declared tracks. Block timestamps are in
// milliseconds, truncated from ptsUs.
func (w *WebMWriter) WriteSampleData(trackIndex int, data []byte, ptsUs int64, flags SampleFlags) error {
	if w.released {
		return fmt.Errorf("%w: writer released", ErrInvalidState)
	}
	if trackIndex < 0 || trackIndex >= len(w.entries) {
		return fmt.Errorf("%w: track index %d of %d", ErrInvalidArgument, trackIndex, len(w.entries))
	}
	if !w.started {
		writers, err := webm.NewSimpleBlockWriter(nopWriteCloser{w.dst}, w.entries)
		if err != nil {
			return fmt.Errorf("start webm: %w", err)
		}
		w.writers = writers
		w.started = true
	}
	if _, err := w.writers[trackIndex].Write(flags.IsKeyFrame(), ptsUs/1000, data); err != nil {
		return fmt.Errorf("write block: %w", err)
	}
	return nil
}

// AddMetadata is accepted before the first sample. WebM represents none
// of the supported entries, so they are dropped.
func (w *WebMWriter) AddMetadata(Metadata) error {
	if w.started {
		return fmt.Errorf("%w: metadata is fixed after the first sample", ErrInvalidState)
	}
	return nil
}

// Release finalises the container by closing every track writer.
func (w *WebMWriter) Release(forCancellation bool) error {
	if w.released {
		return nil
	}
	w.released = true
	var err error
	for _, bw := range w.writers {
		err = multierr.Append(err, bw.Close())
	}
	w.writers = nil
	if forCancellation {
		return nil
	}
	return err
}

// MaxDelayBetweenSamples returns DefaultMaxDelayBetweenSamples.
func (w *WebMWriter) MaxDelayBetweenSamples() time.Duration {
	return DefaultMaxDelayBetweenSamples
}

func webmCodecID(mimeType string) (string, error) {
	switch mimeType {
	case MimeVideoVP8:
		return "V_VP8", nil
	case MimeVideoVP9:
		return "V_VP9", nil
	case MimeVideoAV1:
		return "V_AV1", nil
	case MimeAudioOpus:
		return "A_OPUS", nil
	case MimeAudioVorbis:
		return "A_VORBIS", nil
	}
	return "", fmt.Errorf("%w: webm cannot carry %q", ErrUnsupportedFormat, mimeType)
}

// webmCodecPrivate builds the CodecPrivate payload. A single packet is
// stored as is; multiple packets are joined with Xiph lacing, which is
// how Vorbis stores its three header packets.
func webmCodecPrivate(packets [][]byte) []byte {
	switch len(packets) {
	case 0:
		return nil
	case 1:
		return packets[0]
	}
	out := []byte{byte(len(packets) - 1)}
	for _, p := range packets[:len(packets)-1] {
		n := len(p)
		for n >= 255 {
			out = append(out, 255)
			n -= 255
		}
		out = append(out, byte(n))
	}
	for _, p := range packets {
		out = append(out, p...)
	}
	return out
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
