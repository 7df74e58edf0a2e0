// SPDX-License-Identifier: EPL-2.0

package mux

import (
	"bytes"
	"fmt"
	"strings"
)

// MIME types accepted by the writers in this package. The names follow
// the conventions used by mobile media frameworks so that formats coming
// out of a hardware codec can be passed through unchanged.
const (
	MimeVideoH264 = "video/avc"
	MimeVideoH265 = "video/hevc"
	MimeVideoVP8  = "video/x-vnd.on2.vp8"
	MimeVideoVP9  = "video/x-vnd.on2.vp9"
	MimeVideoAV1  = "video/av01"

	MimeAudioAAC    = "audio/mp4a-latm"
	MimeAudioOpus   = "audio/opus"
	MimeAudioVorbis = "audio/vorbis"
	MimeAudioRaw    = "audio/raw"
)

// TrackType classifies a track by the major class of its MIME type.
type TrackType int

const (
	TrackTypeUnknown TrackType = iota
	TrackTypeAudio
	TrackTypeVideo
)

// String returns a short lower-case name for the track type.
func (t TrackType) String() string {
	switch t {
	case TrackTypeAudio:
		return "audio"
	case TrackTypeVideo:
		return "video"
	}
	return "unknown"
}

// TrackFormat describes one elementary stream handed to a Writer.
// Video formats populate Width, Height, FrameRate and RotationDegrees;
// audio formats populate SampleRate and ChannelCount.
type TrackFormat struct {
	// MimeType identifies the codec, one of the Mime constants.
	MimeType string

	// Width and Height are the coded frame dimensions in pixels.
	Width  int
	Height int

	// FrameRate is the nominal frame rate in frames per second, or zero
	// when unknown.
	FrameRate float64

	// RotationDegrees is the clockwise rotation to apply at presentation
	// time. Valid values are 0, 90, 180 and 270.
	RotationDegrees int

	// SampleRate is the audio sample rate in Hertz.
	SampleRate int

	// ChannelCount is the number of audio channels.
	ChannelCount int

	// InitializationData carries codec specific configuration, such as
	// SPS and PPS NAL units for H.264 or the AudioSpecificConfig for AAC.
	// Entries may include a leading Annex-B start code.
	InitializationData [][]byte
}

// TrackType reports whether the format describes an audio or a video
// stream, derived from the MIME type prefix.
func (f TrackFormat) TrackType() TrackType {
	switch {
	case strings.HasPrefix(f.MimeType, "audio/"):
		return TrackTypeAudio
	case strings.HasPrefix(f.MimeType, "video/"):
		return TrackTypeVideo
	}
	return TrackTypeUnknown
}

// String returns a short description of the format for log output.
func (f TrackFormat) String() string {
	switch f.TrackType() {
	case TrackTypeVideo:
		return fmt.Sprintf("%s %dx%d", f.MimeType, f.Width, f.Height)
	case TrackTypeAudio:
		return fmt.Sprintf("%s %dHz %dch", f.MimeType, f.SampleRate, f.ChannelCount)
	}
	if f.MimeType == "" {
		return "unset"
	}
	return f.MimeType
}

// HasCompatibleInitializationData reports whether a stream that was set
// up with the receiver's initialization data can continue with samples
// described by next. Byte equality always qualifies. H.264 streams are
// additionally allowed to differ in the level indication of the sequence
// parameter set.
func (f TrackFormat) HasCompatibleInitializationData(next TrackFormat) bool {
	if f.MimeType == "" || f.MimeType != next.MimeType {
		return false
	}
	if initializationDataEqual(f.InitializationData, next.InitializationData) {
		return true
	}
	if f.MimeType != MimeVideoH264 {
		return false
	}
	if len(f.InitializationData) == 0 || len(f.InitializationData) != len(next.InitializationData) {
		return false
	}

	// The sequence parameter set starts with the NAL header, profile and
	// constraint bytes; the level sits at index 3.
	sps := trimStartCode(f.InitializationData[0])
	nextSPS := trimStartCode(next.InitializationData[0])
	if len(sps) < 4 || len(sps) != len(nextSPS) {
		return false
	}
	for i := range sps {
		if i != 3 && sps[i] != nextSPS[i] {
			return false
		}
	}
	for i := 1; i < len(f.InitializationData); i++ {
		if !bytes.Equal(f.InitializationData[i], next.InitializationData[i]) {
			return false
		}
	}
	return true
}

func initializationDataEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// trimStartCode drops a leading four byte Annex-B start code, if present.
func trimStartCode(nal []byte) []byte {
	if bytes.HasPrefix(nal, annexBStartCode) {
		return nal[len(annexBStartCode):]
	}
	return nal
}
