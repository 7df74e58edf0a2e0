// SPDX-License-Identifier: EPL-2.0

package mux

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRawFormat() TrackFormat {
	return TrackFormat{MimeType: MimeAudioRaw, SampleRate: 8000, ChannelCount: 2}
}

func pcmBytes(samples ...int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func TestNewWAVWriter_RequiresDestination(t *testing.T) {
	t.Parallel()

	_, err := NewWAVWriter(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestWAVWriter_AddTrack_Validation(t *testing.T) {
	t.Parallel()

	t.Run("pcm_only", func(t *testing.T) {
		t.Parallel()
		w, err := NewWAVWriter(&seekablebuffer.Buffer{})
		require.NoError(t, err)
		_, err = w.AddTrack(testAudioFormat())
		assert.ErrorIs(t, err, ErrUnsupportedFormat, "aac has no wav mapping")
	})

	t.Run("positive_rate_and_channels", func(t *testing.T) {
		t.Parallel()
		w, err := NewWAVWriter(&seekablebuffer.Buffer{})
		require.NoError(t, err)
		_, err = w.AddTrack(TrackFormat{MimeType: MimeAudioRaw, SampleRate: 8000})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("single_track", func(t *testing.T) {
		t.Parallel()
		w, err := NewWAVWriter(&seekablebuffer.Buffer{})
		require.NoError(t, err)
		_, err = w.AddTrack(testRawFormat())
		require.NoError(t, err)
		_, err = w.AddTrack(testRawFormat())
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestWAVWriter_RoundTrip(t *testing.T) {
	t.Parallel()

	var buf seekablebuffer.Buffer
	w, err := NewWAVWriter(&buf)
	require.NoError(t, err)

	idx, err := w.AddTrack(testRawFormat())
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	require.NoError(t, w.AddMetadata(StringMetadata{Key: "title", Value: "clip"}))
	require.NoError(t, w.AddMetadata(StringMetadata{Key: "software", Value: "avexport"}))
	require.NoError(t, w.AddMetadata(OrientationMetadata{Degrees: 90}), "non string entries are dropped")

	require.NoError(t, w.WriteSampleData(0, pcmBytes(100, -100, 32767, -32768), 0, 0))
	require.NoError(t, w.WriteSampleData(0, pcmBytes(0, 1), 250_000, 0))
	require.NoError(t, w.Release(false))

	d := wav.NewDecoder(bytes.NewReader(buf.Bytes()))
	require.True(t, d.IsValidFile())
	assert.Equal(t, uint32(8000), d.SampleRate)
	assert.Equal(t, uint16(2), d.NumChans)
	assert.Equal(t, uint16(16), d.BitDepth)

	pcm, err := d.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, []int{100, -100, 32767, -32768, 0, 1}, pcm.Data)

	d.ReadMetadata()
	require.NotNil(t, d.Metadata)
	assert.Equal(t, "clip", d.Metadata.Title)
	assert.Equal(t, "avexport", d.Metadata.Software)
}

func TestWAVWriter_WriteSampleData_Validation(t *testing.T) {
	t.Parallel()

	w, err := NewWAVWriter(&seekablebuffer.Buffer{})
	require.NoError(t, err)

	assert.ErrorIs(t, w.WriteSampleData(0, pcmBytes(1), 0, 0), ErrInvalidArgument, "no track yet")

	_, err = w.AddTrack(testRawFormat())
	require.NoError(t, err)

	assert.ErrorIs(t, w.WriteSampleData(1, pcmBytes(1), 0, 0), ErrInvalidArgument)
	assert.ErrorIs(t, w.WriteSampleData(0, []byte{0x01}, 0, 0), ErrInvalidArgument, "odd byte count")

	require.NoError(t, w.Release(false))
	assert.ErrorIs(t, w.WriteSampleData(0, pcmBytes(1), 0, 0), ErrInvalidState)
}

func TestWAVWriter_MetadataLockedAfterFirstSample(t *testing.T) {
	t.Parallel()

	w, err := NewWAVWriter(&seekablebuffer.Buffer{})
	require.NoError(t, err)
	_, err = w.AddTrack(testRawFormat())
	require.NoError(t, err)

	require.NoError(t, w.WriteSampleData(0, pcmBytes(1, 2), 0, 0))
	assert.ErrorIs(t, w.AddMetadata(StringMetadata{Key: "title", Value: "clip"}), ErrInvalidState)
}

func TestWAVWriter_ReleaseForCancellation(t *testing.T) {
	t.Parallel()

	w, err := NewWAVWriter(&seekablebuffer.Buffer{})
	require.NoError(t, err)
	_, err = w.AddTrack(testRawFormat())
	require.NoError(t, err)
	require.NoError(t, w.WriteSampleData(0, pcmBytes(1, 2), 0, 0))

	assert.NoError(t, w.Release(true))
	assert.NoError(t, w.Release(true), "release is idempotent")
}
