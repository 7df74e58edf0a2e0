// SPDX-License-Identifier: EPL-2.0

// Package audio provides frame-accurate PCM mixing primitives.
//
// This package contains the building blocks for combining several PCM
// streams into one:
//   - Mixer interface and DefaultMixer for sample-accurate mixing
//   - ChannelMixingMatrix for channel layout conversion
//   - Graph and GraphInput for driving whole multi-stream compositions
//   - SilentAudioGenerator for synthesizing gaps
//
// # Formats
//
// Streams are described by Format: sample rate, channel count and sample
// encoding. The zero value of each field means "unset", and partially set
// formats are completed with Merge:
//
//	want := audio.Format{ChannelCount: 2}
//	got := want.Merge(decoded) // stereo, rest from the decoded stream
//
// Mixing accumulates in float32. PCM16 and float32 streams can enter and
// leave the mix; PCM24 and PCM32 are declared but have no mixing strategy
// and are rejected with ErrUnhandledFormat.
//
// # Mixing
//
// A Mixer is configured once with its output format, buffer length and
// start time. Sources are added with their own start times, feed input
// with QueueInput and the mixed stream is drained with GetOutput:
//
//	mixer := audio.NewDefaultMixer(false)
//	_ = mixer.Configure(format, 500, 0)
//	id, _ := mixer.AddSource(format, 0)
//	rest, _ := mixer.QueueInput(id, pcm)
//	out, _ := mixer.GetOutput()
//
// The mixer only emits frames every active source has delivered, so output
// pauses while a source lags and resumes when it catches up. Sources that
// start later than the output position contribute silence until their
// start; frames queued behind the output position are dropped.
//
// # Timeline
//
// Positions are measured in frames on a shared timeline anchored at the
// configured start time. Durations convert to frame counts by truncation.
// SetEndTimeUs caps the timeline, and because the ended check is a pure
// function of positions, raising the end time revives an ended mixer.
//
// # Graphs
//
// Graph wires mixer, format conversion and per-input effect processors
// together. Producers loan input buffers from a GraphInput, fill them with
// decoded PCM and commit them; the graph converts each stream to the mix
// format, feeds the mixer and emits mixed PCM:
//
//	graph := audio.NewGraph(audio.GraphConfig{})
//	input, _ := graph.RegisterInput(decodedFormat)
//	// feed input, then drain:
//	out, _ := graph.GetOutput()
//
// Items without audio are announced with a nil format and synthesized as
// silence. After a seek, SetPendingStartTimeUs plus Flush re-anchors the
// timeline and drops re-fed data stamped before the new start.
//
// # Concurrency
//
// All types in this package are single-threaded. Every method of a mixer,
// graph or graph input must be called from the same goroutine;
// backpressure is communicated through return values instead of blocking.
package audio
