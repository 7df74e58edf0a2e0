// SPDX-License-Identifier: EPL-2.0

package avexport_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/mediafoundry/avexport"
	"github.com/mediafoundry/avexport/audio"
)

// pcm16Bytes interleaves samples as little-endian 16-bit PCM.
func pcm16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}

	return out
}

// int16Samples decodes little-endian 16-bit PCM back into samples.
func int16Samples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}

	return out
}

func float32Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}

	return out
}

func float32Samples(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}

	return out
}

func mono8k() audio.Format {
	return audio.Format{SampleRate: 8000, ChannelCount: 1, Encoding: audio.EncodingPCM16}
}

func TestMixSources_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sources []avexport.MixSource
		wantErr error
	}{
		{
			name:    "no sources",
			sources: nil,
			wantErr: audio.ErrInvalidArgument,
		},
		{
			name: "negative start time",
			sources: []avexport.MixSource{
				{Format: mono8k(), Data: pcm16Bytes([]int16{1}), StartTimeUs: -1},
			},
			wantErr: audio.ErrInvalidArgument,
		},
		{
			name: "partial frame",
			sources: []avexport.MixSource{
				{Format: mono8k(), Data: []byte{1, 2, 3}},
			},
			wantErr: audio.ErrInvalidArgument,
		},
		{
			name: "unset format",
			sources: []avexport.MixSource{
				{Format: audio.Format{SampleRate: 8000}, Data: nil},
			},
			wantErr: audio.ErrInvalidArgument,
		},
		{
			name: "no default matrix for channel pair",
			sources: []avexport.MixSource{
				{Format: mono8k(), Data: pcm16Bytes([]int16{1})},
				{
					Format: audio.Format{SampleRate: 8000, ChannelCount: 3, Encoding: audio.EncodingPCM16},
					Data:   pcm16Bytes([]int16{1, 1, 1}),
				},
			},
			wantErr: audio.ErrUnhandledFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := avexport.MixSources(tt.sources, audio.GraphConfig{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("MixSources() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMixSources_SingleSourceRoundTrip(t *testing.T) {
	t.Parallel()

	samples := make([]int16, 600)
	for i := range samples {
		samples[i] = int16(i*50 - 15000)
	}

	data := pcm16Bytes(samples)

	mixed, format, err := avexport.MixSources(
		[]avexport.MixSource{{Format: mono8k(), Data: data}}, audio.GraphConfig{})
	if err != nil {
		t.Fatalf("MixSources() error: %v", err)
	}

	if format != mono8k() {
		t.Errorf("output format = %s, want %s", format, mono8k())
	}

	if !bytes.Equal(mixed, data) {
		t.Errorf("single source mix altered the stream: got %d bytes, want %d identical bytes",
			len(mixed), len(data))
	}
}

func TestMixSources_SumsSources(t *testing.T) {
	t.Parallel()

	mixed, _, err := avexport.MixSources([]avexport.MixSource{
		{Format: mono8k(), Data: pcm16Bytes([]int16{100, 200, 300})},
		{Format: mono8k(), Data: pcm16Bytes([]int16{1000, 1000, 1000})},
	}, audio.GraphConfig{})
	if err != nil {
		t.Fatalf("MixSources() error: %v", err)
	}

	want := []int16{1100, 1200, 1300}
	if got := int16Samples(mixed); !slicesEqual(got, want) {
		t.Errorf("mixed samples = %v, want %v", got, want)
	}
}

func TestMixSources_SaturatesInsteadOfWrapping(t *testing.T) {
	t.Parallel()

	mixed, _, err := avexport.MixSources([]avexport.MixSource{
		{Format: mono8k(), Data: pcm16Bytes([]int16{30000, -30000})},
		{Format: mono8k(), Data: pcm16Bytes([]int16{30000, -30000})},
	}, audio.GraphConfig{})
	if err != nil {
		t.Fatalf("MixSources() error: %v", err)
	}

	want := []int16{32767, -32768}
	if got := int16Samples(mixed); !slicesEqual(got, want) {
		t.Errorf("mixed samples = %v, want %v", got, want)
	}
}

func TestMixSources_MixIsAsLongAsLatestSource(t *testing.T) {
	t.Parallel()

	mixed, _, err := avexport.MixSources([]avexport.MixSource{
		{Format: mono8k(), Data: pcm16Bytes([]int16{100, 100})},
		{Format: mono8k(), Data: pcm16Bytes([]int16{1000, 1000, 1000, 1000, 1000})},
	}, audio.GraphConfig{})
	if err != nil {
		t.Fatalf("MixSources() error: %v", err)
	}

	want := []int16{1100, 1100, 1000, 1000, 1000}
	if got := int16Samples(mixed); !slicesEqual(got, want) {
		t.Errorf("mixed samples = %v, want %v", got, want)
	}
}

func TestMixSources_StartOffsetInsertsSilence(t *testing.T) {
	t.Parallel()

	mixed, _, err := avexport.MixSources([]avexport.MixSource{
		{Format: mono8k(), Data: pcm16Bytes([]int16{100, -100, 100, -100})},
		{Format: mono8k(), Data: pcm16Bytes([]int16{1000, 1000}), StartTimeUs: 1000},
	}, audio.GraphConfig{})
	if err != nil {
		t.Fatalf("MixSources() error: %v", err)
	}

	// 1000us at 8kHz is 8 frames of leading silence before the two data
	// frames, overlapping the first source's four frames.
	want := []int16{100, -100, 100, -100, 0, 0, 0, 0, 1000, 1000}
	if got := int16Samples(mixed); !slicesEqual(got, want) {
		t.Errorf("mixed samples = %v, want %v", got, want)
	}
}

func TestMixSources_ResamplesMismatchedRates(t *testing.T) {
	t.Parallel()

	// The second source runs at double the mixing rate and is resampled
	// down before it enters the graph. Constant signals survive the
	// resampler exactly, so the sums stay exact too.
	wide := audio.Format{SampleRate: 16000, ChannelCount: 1, Encoding: audio.EncodingPCM16}

	high := make([]int16, 32)
	for i := range high {
		high[i] = 8192
	}

	low := make([]int16, 16)
	for i := range low {
		low[i] = 8192
	}

	mixed, format, err := avexport.MixSources([]avexport.MixSource{
		{Format: mono8k(), Data: pcm16Bytes(low)},
		{Format: wide, Data: pcm16Bytes(high)},
	}, audio.GraphConfig{})
	if err != nil {
		t.Fatalf("MixSources() error: %v", err)
	}

	if format.SampleRate != 8000 {
		t.Fatalf("output rate = %d, want 8000", format.SampleRate)
	}

	got := int16Samples(mixed)
	if len(got) != 16 {
		t.Fatalf("mixed %d frames, want 16", len(got))
	}

	for i, s := range got {
		if s != 16384 {
			t.Fatalf("got[%d] = %d, want 16384", i, s)
		}
	}
}

func TestMixSources_StereoSourceIntoMonoMix(t *testing.T) {
	t.Parallel()

	stereo := audio.Format{SampleRate: 8000, ChannelCount: 2, Encoding: audio.EncodingPCM16}

	mixed, format, err := avexport.MixSources([]avexport.MixSource{
		{Format: mono8k(), Data: pcm16Bytes([]int16{100, 100, 100, 100})},
		{Format: stereo, Data: pcm16Bytes([]int16{1000, 3000, 1000, 3000})},
	}, audio.GraphConfig{})
	if err != nil {
		t.Fatalf("MixSources() error: %v", err)
	}

	if format.ChannelCount != 1 {
		t.Fatalf("output channels = %d, want 1", format.ChannelCount)
	}

	// The stereo frames average to 2000 on the mono mix bus.
	want := []int16{2100, 2100, 100, 100}
	if got := int16Samples(mixed); !slicesEqual(got, want) {
		t.Errorf("mixed samples = %v, want %v", got, want)
	}
}

func TestMixSources_PerSourceProcessors(t *testing.T) {
	t.Parallel()

	duck, err := audio.NewGainProcessor(0.5)
	if err != nil {
		t.Fatalf("NewGainProcessor() error: %v", err)
	}

	mixed, _, err := avexport.MixSources([]avexport.MixSource{
		{
			Format:     mono8k(),
			Data:       pcm16Bytes([]int16{10000, 10000}),
			Processors: []audio.Processor{duck},
		},
		{Format: mono8k(), Data: pcm16Bytes([]int16{100, 100})},
	}, audio.GraphConfig{})
	if err != nil {
		t.Fatalf("MixSources() error: %v", err)
	}

	want := []int16{5100, 5100}
	if got := int16Samples(mixed); !slicesEqual(got, want) {
		t.Errorf("mixed samples = %v, want %v", got, want)
	}
}

func TestMixSources_GraphEffectsRunOnTheMix(t *testing.T) {
	t.Parallel()

	boost, err := audio.NewGainProcessor(2)
	if err != nil {
		t.Fatalf("NewGainProcessor() error: %v", err)
	}

	mixed, _, err := avexport.MixSources([]avexport.MixSource{
		{Format: mono8k(), Data: pcm16Bytes([]int16{1000})},
		{Format: mono8k(), Data: pcm16Bytes([]int16{2000})},
	}, audio.GraphConfig{Effects: []audio.Processor{boost}})
	if err != nil {
		t.Fatalf("MixSources() error: %v", err)
	}

	want := []int16{6000}
	if got := int16Samples(mixed); !slicesEqual(got, want) {
		t.Errorf("mixed samples = %v, want %v", got, want)
	}
}

func TestMixSources_ManyChunks(t *testing.T) {
	t.Parallel()

	// 6000 frames is both bigger than one feed chunk and bigger than the
	// mixer's 500ms window, so the drive loop has to run several rounds.
	samples := make([]int16, 6000)
	for i := range samples {
		samples[i] = int16(i%3000*10 - 15000)
	}

	data := pcm16Bytes(samples)

	mixed, _, err := avexport.MixSources(
		[]avexport.MixSource{{Format: mono8k(), Data: data}}, audio.GraphConfig{})
	if err != nil {
		t.Fatalf("MixSources() error: %v", err)
	}

	if !bytes.Equal(mixed, data) {
		t.Errorf("mix altered the stream: got %d bytes, want %d identical bytes", len(mixed), len(data))
	}
}

func TestMixSources_EmptySourceContributesNothing(t *testing.T) {
	t.Parallel()

	mixed, _, err := avexport.MixSources([]avexport.MixSource{
		{Format: mono8k(), Data: nil},
		{Format: mono8k(), Data: pcm16Bytes([]int16{5, 6})},
	}, audio.GraphConfig{})
	if err != nil {
		t.Fatalf("MixSources() error: %v", err)
	}

	want := []int16{5, 6}
	if got := int16Samples(mixed); !slicesEqual(got, want) {
		t.Errorf("mixed samples = %v, want %v", got, want)
	}
}

func TestMixSources_FloatMixFormat(t *testing.T) {
	t.Parallel()

	floatMono := audio.Format{SampleRate: 8000, ChannelCount: 1, Encoding: audio.EncodingFloat32}

	mixed, format, err := avexport.MixSources([]avexport.MixSource{
		{Format: floatMono, Data: float32Bytes([]float32{0.25, -0.25})},
		{Format: mono8k(), Data: pcm16Bytes([]int16{8192, 8192})},
	}, audio.GraphConfig{})
	if err != nil {
		t.Fatalf("MixSources() error: %v", err)
	}

	// The first source fixes the mix encoding.
	if format.Encoding != audio.EncodingFloat32 {
		t.Fatalf("output encoding = %s, want float32", format.Encoding)
	}

	// 8192/32768 is exactly 0.25.
	want := []float32{0.5, 0}
	if got := float32Samples(mixed); !slicesEqualFloat(got, want) {
		t.Errorf("mixed samples = %v, want %v", got, want)
	}
}

func slicesEqual(got, want []int16) bool {
	if len(got) != len(want) {
		return false
	}

	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}

	return true
}

func slicesEqualFloat(got, want []float32) bool {
	if len(got) != len(want) {
		return false
	}

	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}

	return true
}
