// SPDX-License-Identifier: EPL-2.0

package mux

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Mode selects the write lifecycle of a MuxerWrapper.
type Mode int

const (
	// ModeDefault writes the whole output in a single pass.
	ModeDefault Mode = iota

	// ModeMuxPartial writes up to a caller-chosen checkpoint, after
	// which ChangeToAppendMode resumes writing into the same output.
	ModeMuxPartial

	// ModeMuxPartialVideo is ModeMuxPartial restricted to a single
	// video track.
	ModeMuxPartialVideo
)

// String returns a short lower-case name for the mode.
func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeMuxPartial:
		return "mux_partial"
	case ModeMuxPartialVideo:
		return "mux_partial_video"
	}
	return "unknown"
}

// ReleaseReason tells Release why the wrapper is being shut down.
type ReleaseReason int

const (
	// ReleaseCompleted finalises the output normally.
	ReleaseCompleted ReleaseReason = iota

	// ReleaseCancelled abandons the output on caller request.
	ReleaseCancelled

	// ReleaseError abandons the output after a failure elsewhere.
	ReleaseError
)

// String returns a short lower-case name for the reason.
func (r ReleaseReason) String() string {
	switch r {
	case ReleaseCompleted:
		return "completed"
	case ReleaseCancelled:
		return "cancelled"
	case ReleaseError:
		return "error"
	}
	return "unknown"
}

// maxTrackWriteAheadUs bounds how far one track may run ahead of the
// least advanced active track before WriteSample asks the caller to
// retry. Keeps the container interleaved for progressive playback.
const maxTrackWriteAheadUs = 500_000

// WrapperConfig configures a MuxerWrapper.
type WrapperConfig struct {
	// Writer is the concrete container writer. Required.
	Writer Writer

	// Mode selects the write lifecycle. The zero value is ModeDefault.
	Mode Mode

	// DropSamplesBeforeFirstVideoSample makes WriteSample reject audio
	// until the first video timestamp is known, and silently drop audio
	// timestamped before it afterwards. Keeps audio and video aligned
	// when the video stream starts late.
	DropSamplesBeforeFirstVideoSample bool

	// Events receives lifecycle notifications. Optional.
	Events EventFunc

	// Logger records lifecycle transitions. Defaults to a no-op logger.
	Logger *zap.Logger
}

type trackState struct {
	index        int
	format       TrackFormat
	declared     bool
	ended        bool
	sampleCount  int
	bytesWritten int64
	firstPtsUs   int64
	lastPtsUs    int64
}

func (t *trackState) averageBitrate() int64 {
	durationUs := t.lastPtsUs - t.firstPtsUs
	if t.bytesWritten <= 0 || durationUs <= 0 {
		return -1
	}
	return t.bytesWritten * 8 * 1_000_000 / durationUs
}

// MuxerWrapper drives a container Writer through its lifecycle: declare
// tracks, interleave samples, end tracks, release. It owns all of its
// state and is single-threaded.
//
// In a partial mode the wrapper can hand the output over to a second
// pass: end every track, Release with ReleaseCompleted (which keeps the
// underlying writer open), call ChangeToAppendMode, then re-declare the
// track count and formats and continue writing.
type MuxerWrapper struct {
	writer Writer
	mode   Mode
	events EventFunc
	log    *zap.Logger

	dropSamplesBeforeFirstVideoSample bool

	trackCount int
	tracks     map[TrackType]*trackState

	additionalRotationDegrees int
	appending                 bool
	released                  bool

	firstVideoPtsUs int64
	maxEndedPtsUs   int64
	endedReported   bool
	lastWriteTime   time.Time
}

// NewMuxerWrapper returns a wrapper around cfg.Writer in cfg.Mode.
func NewMuxerWrapper(cfg WrapperConfig) (*MuxerWrapper, error) {
	if cfg.Writer == nil {
		return nil, fmt.Errorf("%w: writer is required", ErrInvalidArgument)
	}
	if cfg.Mode < ModeDefault || cfg.Mode > ModeMuxPartialVideo {
		return nil, fmt.Errorf("%w: unknown mode %d", ErrInvalidArgument, cfg.Mode)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &MuxerWrapper{
		writer:                            cfg.Writer,
		mode:                              cfg.Mode,
		events:                            cfg.Events,
		log:                               log,
		dropSamplesBeforeFirstVideoSample: cfg.DropSamplesBeforeFirstVideoSample,
		tracks:                            make(map[TrackType]*trackState),
		firstVideoPtsUs:                   -1,
	}, nil
}

// SetTrackCount fixes the number of tracks for the current lifecycle.
// It must be called before any format is added. ModeMuxPartialVideo
// permits exactly one track. After ChangeToAppendMode the same count
// must be declared again.
func (w *MuxerWrapper) SetTrackCount(n int) error {
	if w.released {
		return fmt.Errorf("%w: wrapper released", ErrInvalidState)
	}
	if w.declaredCount() > 0 {
		return fmt.Errorf("%w: track count cannot change after formats are added", ErrInvalidState)
	}
	if n <= 0 {
		return fmt.Errorf("%w: track count must be positive, got %d", ErrInvalidArgument, n)
	}
	if w.mode == ModeMuxPartialVideo && n != 1 {
		return fmt.Errorf("%w: mode %s permits exactly 1 track, got %d", ErrInvalidArgument, w.mode, n)
	}
	if w.appending && n != len(w.tracks) {
		return fmt.Errorf("%w: append pass must re-declare %d tracks, got %d", ErrInvalidArgument, len(w.tracks), n)
	}
	w.trackCount = n
	return nil
}

// AddTrackFormat declares the format of one track. The track count must
// be set first. In an append pass the format must be compatible with
// the format used before the append transition.
func (w *MuxerWrapper) AddTrackFormat(format TrackFormat) error {
	if w.released {
		return fmt.Errorf("%w: wrapper released", ErrInvalidState)
	}
	if w.trackCount == 0 {
		return fmt.Errorf("%w: track count must be set before formats are added", ErrInvalidState)
	}
	typ := format.TrackType()
	if typ == TrackTypeUnknown {
		return fmt.Errorf("%w: mime type %q", ErrUnsupportedFormat, format.MimeType)
	}
	if w.mode == ModeMuxPartialVideo && typ != TrackTypeVideo {
		return fmt.Errorf("%w: mode %s accepts only video tracks, got %s", ErrInvalidArgument, w.mode, typ)
	}

	if w.appending {
		track, ok := w.tracks[typ]
		if !ok {
			return fmt.Errorf("%w: no %s track from the partial pass", ErrInvalidArgument, typ)
		}
		if track.declared {
			return fmt.Errorf("%w: %s format already declared", ErrInvalidState, typ)
		}
		if err := appendCompatible(track.format, format); err != nil {
			return err
		}
		track.declared = true
	} else {
		if _, ok := w.tracks[typ]; ok {
			return fmt.Errorf("%w: %s track already added", ErrInvalidState, typ)
		}
		if len(w.tracks) == w.trackCount {
			return fmt.Errorf("%w: all %d tracks already added", ErrInvalidState, w.trackCount)
		}
		index, err := w.writer.AddTrack(format)
		if err != nil {
			return fmt.Errorf("add track: %w", err)
		}
		w.tracks[typ] = &trackState{
			index:      index,
			format:     format,
			declared:   true,
			firstPtsUs: -1,
		}
	}

	w.log.Debug("track format added",
		zap.Stringer("type", typ),
		zap.Stringer("format", format),
		zap.Bool("append", w.appending))

	if w.declaredCount() == w.trackCount && !w.appending && w.additionalRotationDegrees != 0 {
		entry := OrientationMetadata{Degrees: w.additionalRotationDegrees}
		if err := w.writer.AddMetadata(entry); err != nil {
			return fmt.Errorf("add orientation metadata: %w", err)
		}
	}
	return nil
}

// SetAdditionalRotationDegrees sets the clockwise rotation forwarded to
// the container. It may change freely until the first format is added;
// afterwards only the same value may be set again.
func (w *MuxerWrapper) SetAdditionalRotationDegrees(degrees int) error {
	switch degrees {
	case 0, 90, 180, 270:
	default:
		return fmt.Errorf("%w: rotation must be 0, 90, 180 or 270, got %d", ErrInvalidArgument, degrees)
	}
	if len(w.tracks) > 0 && degrees != w.additionalRotationDegrees {
		return fmt.Errorf("%w: rotation locked at %d after tracks were added", ErrInvalidState, w.additionalRotationDegrees)
	}
	w.additionalRotationDegrees = degrees
	return nil
}

// WriteSample hands one encoded sample to the container. It reports
// false without error when the sample cannot be accepted yet: formats
// are still missing, the track would run more than 500ms ahead of the
// least advanced track, or audio arrives before the first video
// timestamp is known. The caller retries later with the same sample.
//
// With DropSamplesBeforeFirstVideoSample set, audio timestamped before
// the first video sample is reported as accepted but never written.
func (w *MuxerWrapper) WriteSample(trackType TrackType, data []byte, keyFrame bool, ptsUs int64) (bool, error) {
	if w.released {
		return false, fmt.Errorf("%w: wrapper released", ErrInvalidState)
	}
	track, ok := w.tracks[trackType]
	if !ok {
		return false, fmt.Errorf("%w: no %s track", ErrInvalidState, trackType)
	}
	if track.ended {
		return false, fmt.Errorf("%w: %s track already ended", ErrInvalidState, trackType)
	}
	if !w.canWrite(trackType, ptsUs) {
		return false, nil
	}
	if w.dropSamplesBeforeFirstVideoSample && trackType == TrackTypeAudio && ptsUs < w.firstVideoPtsUs {
		return true, nil
	}

	var flags SampleFlags
	if keyFrame {
		flags |= SampleKeyFrame
	}
	if err := w.writer.WriteSampleData(track.index, data, ptsUs, flags); err != nil {
		err = fmt.Errorf("write sample: %w", err)
		w.dispatch(Event{Kind: EventError, TrackType: trackType, Err: err})
		return false, err
	}

	if trackType == TrackTypeVideo && w.firstVideoPtsUs < 0 {
		w.firstVideoPtsUs = ptsUs
	}
	if track.firstPtsUs < 0 {
		track.firstPtsUs = ptsUs
	}
	track.lastPtsUs = max(track.lastPtsUs, ptsUs)
	track.sampleCount++
	track.bytesWritten += int64(len(data))
	w.lastWriteTime = time.Now()
	return true, nil
}

func (w *MuxerWrapper) canWrite(trackType TrackType, ptsUs int64) bool {
	if w.dropSamplesBeforeFirstVideoSample && trackType == TrackTypeAudio && w.firstVideoPtsUs < 0 {
		return false
	}
	if w.trackCount == 0 || w.declaredCount() < w.trackCount {
		return false
	}
	minPtsUs := int64(-1)
	active := 0
	for typ, track := range w.tracks {
		if track.ended || typ == trackType {
			continue
		}
		if minPtsUs < 0 || track.lastPtsUs < minPtsUs {
			minPtsUs = track.lastPtsUs
		}
		active++
	}
	if active == 0 {
		return true
	}
	return ptsUs-minPtsUs <= maxTrackWriteAheadUs
}

// EndTrack marks a track complete and reports EventTrackEnded. Once
// every declared track has ended, EventEnded follows and IsEnded turns
// true. Ending an already ended track is a no-op.
func (w *MuxerWrapper) EndTrack(trackType TrackType) error {
	if w.released {
		return fmt.Errorf("%w: wrapper released", ErrInvalidState)
	}
	track, ok := w.tracks[trackType]
	if !ok {
		return fmt.Errorf("%w: no %s track", ErrInvalidState, trackType)
	}
	if track.ended {
		return nil
	}
	track.ended = true
	w.maxEndedPtsUs = max(w.maxEndedPtsUs, track.lastPtsUs)

	w.log.Debug("track ended",
		zap.Stringer("type", trackType),
		zap.Int("samples", track.sampleCount),
		zap.Int64("bytes", track.bytesWritten))
	w.dispatch(Event{
		Kind:           EventTrackEnded,
		TrackType:      trackType,
		Format:         track.format,
		AverageBitrate: track.averageBitrate(),
		SampleCount:    track.sampleCount,
	})

	if w.IsEnded() && !w.endedReported {
		w.endedReported = true
		var total int64
		for _, t := range w.tracks {
			total += t.bytesWritten
		}
		w.log.Info("muxing ended",
			zap.Int64("durationMs", w.maxEndedPtsUs/1000),
			zap.Int64("bytes", total))
		w.dispatch(Event{
			Kind:         EventEnded,
			DurationMs:   w.maxEndedPtsUs / 1000,
			BytesWritten: total,
		})
	}
	return nil
}

// IsEnded reports whether every declared track has ended. It turns
// false again when ChangeToAppendMode starts a new cycle.
func (w *MuxerWrapper) IsEnded() bool {
	if w.trackCount == 0 || len(w.tracks) != w.trackCount {
		return false
	}
	for _, track := range w.tracks {
		if !track.ended {
			return false
		}
	}
	return true
}

// ChangeToAppendMode starts the append pass after a completed partial
// pass. Track formats survive the transition; the track count and the
// per-track ended state are cleared so the caller re-declares them.
// Only available from a partial mode with every track ended.
func (w *MuxerWrapper) ChangeToAppendMode() error {
	if w.released {
		return fmt.Errorf("%w: wrapper released", ErrInvalidState)
	}
	if w.mode == ModeDefault {
		return fmt.Errorf("%w: append is only reachable from a partial mode", ErrInvalidState)
	}
	if w.appending {
		return fmt.Errorf("%w: already in append mode", ErrInvalidState)
	}
	if !w.IsEnded() {
		return fmt.Errorf("%w: tracks still active", ErrInvalidState)
	}
	w.appending = true
	w.trackCount = 0
	w.endedReported = false
	for _, track := range w.tracks {
		track.declared = false
		track.ended = false
	}
	w.log.Info("switched to append mode", zap.Stringer("mode", w.mode))
	return nil
}

// Release shuts the wrapper down. With ReleaseCompleted in a partial
// mode before the append transition the underlying writer stays open
// for the append pass and the wrapper remains usable. In every other
// case the writer is released, for cancellation unless the reason is
// ReleaseCompleted.
func (w *MuxerWrapper) Release(reason ReleaseReason) error {
	if w.released {
		return nil
	}
	if reason == ReleaseCompleted && w.mode != ModeDefault && !w.appending {
		w.log.Info("partial pass complete, writer kept open", zap.Stringer("mode", w.mode))
		return nil
	}
	w.released = true
	forCancellation := reason != ReleaseCompleted
	w.log.Info("releasing writer",
		zap.Stringer("reason", reason),
		zap.Bool("forCancellation", forCancellation))
	if err := w.writer.Release(forCancellation); err != nil {
		return fmt.Errorf("release writer: %w", err)
	}
	return nil
}

// MaxDelayBetweenSamples surfaces the writer's stall threshold for an
// external watchdog. The wrapper itself spawns no timer.
func (w *MuxerWrapper) MaxDelayBetweenSamples() time.Duration {
	return w.writer.MaxDelayBetweenSamples()
}

// LastWriteTime returns the wall-clock time of the most recently
// written sample, for a watchdog to compare against
// MaxDelayBetweenSamples. The zero time means nothing was written yet.
func (w *MuxerWrapper) LastWriteTime() time.Time {
	return w.lastWriteTime
}

func (w *MuxerWrapper) declaredCount() int {
	n := 0
	for _, track := range w.tracks {
		if track.declared {
			n++
		}
	}
	return n
}

func (w *MuxerWrapper) dispatch(event Event) {
	if w.events != nil {
		w.events(event)
	}
}

func appendCompatible(prev, next TrackFormat) error {
	if next.MimeType != prev.MimeType || next.Width != prev.Width || next.Height != prev.Height ||
		next.SampleRate != prev.SampleRate || next.ChannelCount != prev.ChannelCount {
		return fmt.Errorf("%w: append format %s does not match %s", ErrInvalidArgument, next, prev)
	}
	if !prev.HasCompatibleInitializationData(next) {
		return fmt.Errorf("%w: append initialization data for %s is incompatible", ErrInvalidArgument, next.MimeType)
	}
	return nil
}
