// SPDX-License-Identifier: EPL-2.0

package mux

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVWriter writes a single 16-bit PCM audio track to a WAV file.
// Timestamps are ignored; WAV is a plain sample stream and samples are
// laid out in the order they arrive.
type WAVWriter struct {
	dst io.WriteSeeker
	enc *wav.Encoder
	buf *goaudio.IntBuffer

	meta     *wav.Metadata
	wrote    bool
	released bool
}

// NewWAVWriter returns a writer that muxes into dst.
func NewWAVWriter(dst io.WriteSeeker) (*WAVWriter, error) {
	if dst == nil {
		return nil, fmt.Errorf("%w: destination is required", ErrInvalidArgument)
	}
	return &WAVWriter{dst: dst}, nil
}

// AddTrack declares the single audio track. Only MimeAudioRaw with
// 16-bit little-endian samples is representable.
func (w *WAVWriter) AddTrack(format TrackFormat) (int, error) {
	if w.enc != nil {
		return 0, fmt.Errorf("%w: wav holds a single track", ErrInvalidState)
	}
	if format.MimeType != MimeAudioRaw {
		return 0, fmt.Errorf("%w: wav cannot carry %q", ErrUnsupportedFormat, format.MimeType)
	}
	if format.SampleRate <= 0 || format.ChannelCount <= 0 {
		return 0, fmt.Errorf("%w: sample rate and channel count must be positive, got %dHz %dch",
			ErrInvalidArgument, format.SampleRate, format.ChannelCount)
	}
	w.enc = wav.NewEncoder(w.dst, format.SampleRate, 16, format.ChannelCount, 1)
	w.buf = &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: format.ChannelCount,
			SampleRate:  format.SampleRate,
		},
		SourceBitDepth: 16,
	}
	return 0, nil
}

// WriteSampleData appends interleaved 16-bit little-endian samples.
func (w *WAVWriter) WriteSampleData(trackIndex int, data []byte, ptsUs int64, flags SampleFlags) error {
	if w.released {
		return fmt.Errorf("%w: writer released", ErrInvalidState)
	}
	if w.enc == nil || trackIndex != 0 {
		return fmt.Errorf("%w: track index %d", ErrInvalidArgument, trackIndex)
	}
	if len(data)%2 != 0 {
		return fmt.Errorf("%w: odd byte count %d for 16-bit samples", ErrInvalidArgument, len(data))
	}

	n := len(data) / 2
	if cap(w.buf.Data) < n {
		w.buf.Data = make([]int, n)
	}
	w.buf.Data = w.buf.Data[:n]
	for i := range n {
		w.buf.Data[i] = int(int16(binary.LittleEndian.Uint16(data[2*i:])))
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("write pcm: %w", err)
	}
	w.wrote = true
	return nil
}

// AddMetadata maps string entries onto the WAV LIST-INFO chunk. Keys
// "title", "artist", "software" and "comment" are represented; other
// entries are dropped.
func (w *WAVWriter) AddMetadata(entry Metadata) error {
	if w.wrote {
		return fmt.Errorf("%w: metadata is fixed after the first sample", ErrInvalidState)
	}
	tag, ok := entry.(StringMetadata)
	if !ok {
		return nil
	}
	if w.meta == nil {
		w.meta = &wav.Metadata{}
	}
	switch tag.Key {
	case "title":
		w.meta.Title = tag.Value
	case "artist":
		w.meta.Artist = tag.Value
	case "software":
		w.meta.Software = tag.Value
	case "comment":
		w.meta.Comments = tag.Value
	}
	return nil
}

// Release finalises the WAV header. For cancellation the file is left
// as it is, with an unpatched header.
func (w *WAVWriter) Release(forCancellation bool) error {
	if w.released {
		return nil
	}
	w.released = true
	if w.enc == nil || forCancellation {
		return nil
	}
	w.enc.Metadata = w.meta
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}

// MaxDelayBetweenSamples returns DefaultMaxDelayBetweenSamples.
func (w *WAVWriter) MaxDelayBetweenSamples() time.Duration {
	return DefaultMaxDelayBetweenSamples
}
