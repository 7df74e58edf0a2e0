// SPDX-License-Identifier: EPL-2.0

// Package avexport provides offline audio mixing and media muxing building
// blocks for Go applications.
//
// This package offers a polling audio graph that mixes any number of PCM
// streams, a muxer layer that interleaves encoded tracks into common
// containers, and helpers for flattening slow-motion recordings. It is
// designed for export pipelines that run faster than real time.
//
// # Packages
//
// The module is split into three subpackages:
//   - audio: PCM formats, converters, processors and the mixing graph
//   - mux: container writers (fragmented MP4, WebM, WAV) and the
//     interleaving muxer wrapper
//   - slowmo: segment speed maps and slow-motion flattening
//
// # Quick Start
//
// The simplest way to mix streams is MixSources:
//
//	music := avexport.MixSource{Format: musicFormat, Data: musicPCM}
//	voice := avexport.MixSource{
//		Format:      voiceFormat,
//		Data:        voicePCM,
//		StartTimeUs: 2_000_000,
//	}
//
//	mixed, format, _ := avexport.MixSources(
//		[]avexport.MixSource{music, voice}, audio.GraphConfig{})
//
//	// mixed is now one interleaved PCM stream in format
//
// # Audio Graph
//
// For streaming input or per-item sequencing, drive the graph directly:
//
//	graph := audio.NewGraph(audio.GraphConfig{})
//	input, _ := graph.RegisterInput(decodedFormat)
//	input.OnMediaItemChanged(durationUs, &decodedFormat, true)
//
//	// feed decoded buffers through the loan protocol
//	buf := input.GetInputBuffer()
//	buf.Data = append(buf.Data, pcm...)
//	input.QueueInputBuffer()
//
//	// collect the mix
//	for !graph.IsEnded() {
//		chunk, _ := graph.GetOutput()
//		// ...
//	}
//
// # Muxing
//
// Encoded tracks are written through a MuxerWrapper, which owns sample
// interleaving, track readiness and end-of-stream accounting:
//
//	registry := mux.NewDefaultRegistry()
//	writer, _ := registry.NewWriter("fmp4", dst)
//	wrapper, _ := mux.NewMuxerWrapper(mux.WrapperConfig{Writer: writer})
//
//	wrapper.SetTrackCount(2)
//	wrapper.AddTrackFormat(videoFormat)
//	wrapper.AddTrackFormat(audioFormat)
//
//	accepted, _ := wrapper.WriteSample(mux.TrackTypeVideo, sample, keyFrame, ptsUs)
//
// # Slow Motion
//
// Recordings that carry segment speed metadata are flattened with the
// slowmo package, which decides which frames survive and where they land
// on the output timeline:
//
//	flattener, _ := slowmo.NewFlattener(slowmo.FlattenerConfig{
//		Data:               metadata,
//		CaptureFrameRate:   240,
//		TemporalLayerCount: 4,
//	})
//
//	keep, _ := flattener.ProcessCurrentFrame(layer, timeUs)
//	outUs, _ := flattener.GetCurrentFrameOutputTimeUs(timeUs)
//
// See the individual subpackages for more detailed documentation.
package avexport
