// SPDX-License-Identifier: EPL-2.0

// Package mux drives container writers for encoded media tracks.
//
// The package separates lifecycle from layout:
//   - Writer is the container contract: declare tracks, write samples,
//     attach metadata, release
//   - WebMWriter, FMP4Writer and WAVWriter are the concrete containers
//   - MuxerWrapper runs the lifecycle above any Writer: track
//     declaration, sample interleaving, end-of-track accounting and the
//     partial/append two-pass flow
//   - Registry maps container names to writer factories
//
// # Lifecycle
//
// A wrapper is driven in a fixed order: declare the track count, add
// one format per track, then write samples until every track is ended:
//
//	writer, _ := mux.NewFMP4Writer(dst)
//	w, _ := mux.NewMuxerWrapper(mux.WrapperConfig{Writer: writer})
//	_ = w.SetTrackCount(2)
//	_ = w.AddTrackFormat(videoFormat)
//	_ = w.AddTrackFormat(audioFormat)
//	ok, _ := w.WriteSample(mux.TrackTypeVideo, sample, true, 0)
//	_ = w.EndTrack(mux.TrackTypeVideo)
//
// WriteSample reports false, without error, whenever the sample cannot
// be accepted yet: formats are still missing, or the track would run
// more than half a second ahead of the least advanced track. The caller
// keeps the sample and retries after feeding the other tracks.
//
// # Partial and append passes
//
// In ModeMuxPartial or ModeMuxPartialVideo the wrapper writes up to a
// checkpoint: end every track, then Release with ReleaseCompleted. That
// keeps the underlying writer open. ChangeToAppendMode starts the
// second pass; the track count and formats are declared again (formats
// must be compatible with the first pass) and writing continues into
// the same output.
//
// # Events
//
// Lifecycle notifications are delivered through a single EventFunc:
// EventTrackEnded per finished track with its average bitrate and
// sample count, EventEnded once the whole output is complete, and
// EventError when the underlying writer fails.
//
// # Concurrency
//
// Everything in this package is single-threaded; a wrapper and its
// writer must be driven from one goroutine. Registry is the exception
// and may be shared.
package mux
