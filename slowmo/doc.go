// SPDX-License-Identifier: EPL-2.0

// Package slowmo flattens variable-speed captures into plain video.
//
// Slow motion cameras record at a high frame rate and embed metadata
// naming the stretches that should play slowed down. Flattening bakes
// that effect into an ordinary constant-rate stream by dropping the
// frames a sped-up stretch has no room for and restamping the frames
// that survive.
//
// # Speed model
//
// A capture at captureFrameRate plays at captureFrameRate/30 outside of
// every segment, and at that base speed divided by the segment's
// SpeedDivisor inside one. SegmentSpeedProvider resolves the speed for
// any timestamp:
//
//	provider, _ := slowmo.NewSegmentSpeedProvider(data, 240)
//	speed, _ := provider.GetSpeed(timeUs)
//
// # Frame dropping
//
// Captures carry SVC temporal layers; dropping the top layer halves the
// frame rate without decoding artifacts. Flattener keeps a frame when
// its layer fits the speed at its position, and maps kept frames onto
// the output timeline by integrating elapsed time over speed:
//
//	f, _ := slowmo.NewFlattener(slowmo.FlattenerConfig{
//		Data:               data,
//		CaptureFrameRate:   240,
//		TemporalLayerCount: 4,
//	})
//	keep, _ := f.ProcessCurrentFrame(layer, timeUs)
//	outUs, _ := f.GetCurrentFrameOutputTimeUs(timeUs)
//
// # Concurrency
//
// All types in this package are single-threaded; a flattener processes
// one capture and is discarded.
package slowmo
