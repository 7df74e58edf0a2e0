// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
)

// inputBufferCount fixes the pool size of every graph input. A producer
// that outruns the graph simply sees GetInputBuffer return nil until
// output is drained.
const inputBufferCount = 10

// Buffer carries one chunk of interleaved PCM between a producer and the
// graph. TimeUs stamps the first frame on the media timeline. A buffer with
// EndOfStream set closes the current item; it may still carry final data.
type Buffer struct {
	Data        []byte
	TimeUs      int64
	EndOfStream bool
}

// itemChange is a queued OnMediaItemChanged call, applied once the current
// item has fully drained. A nil converter marks a silence item.
type itemChange struct {
	durationUs int64
	conv       *pcmConverter
	isLast     bool
}

// GraphInput adapts one decoded stream to the format an AudioGraph mixes
// in. It converts encodings and channel layouts, runs the item's effect
// processors, and synthesizes silence for items that carry no audio.
//
// Input follows a loan protocol: GetInputBuffer hands out a pooled buffer,
// the producer fills it and commits it with QueueInputBuffer. Items are
// announced with OnMediaItemChanged before their first buffer, including
// the first item.
type GraphInput struct {
	requestedFormat Format
	outputFormat    Format
	userProcessors  []Processor

	free   []*Buffer
	queued []*Buffer
	loaned *Buffer

	conv    *pcmConverter
	silence *SilentAudioGenerator
	pending *itemChange

	itemActive     bool
	itemIsSilence  bool
	itemIsLast     bool
	itemDurationUs int64
	eosReceived    bool

	blocked bool
	ended   bool

	nextOutputTimeUs int64
}

// NewGraphInput builds an input that emits requestedFormat, with unset
// fields inherited from what the processor chain makes of
// firstInputFormat. The first item's pipeline must be expressible:
// matching sample rates, mixable encodings and a channel pair covered by a
// default matrix once the processors have run.
func NewGraphInput(requestedFormat, firstInputFormat Format, processors ...Processor) (*GraphInput, error) {
	if !firstInputFormat.IsSet() {
		return nil, fmt.Errorf("%w: input format must be fully set, got %s", ErrInvalidArgument, firstInputFormat)
	}

	conv, err := newPCMConverter(firstInputFormat, requestedFormat, processors)
	if err != nil {
		return nil, err
	}

	in := &GraphInput{
		requestedFormat: requestedFormat,
		outputFormat:    conv.outputFormat,
		userProcessors:  processors,
		free:            make([]*Buffer, 0, inputBufferCount),
	}

	for range inputBufferCount {
		in.free = append(in.free, &Buffer{})
	}

	return in, nil
}

// OutputFormat returns the format of every chunk GetOutput emits.
func (in *GraphInput) OutputFormat() Format {
	return in.outputFormat
}

// OnMediaItemChanged announces the next item of the sequence. A nil
// decodedFormat synthesizes durationUs of silence instead of consuming
// input. The change takes effect once the current item has drained; only
// one change may be pending at a time.
func (in *GraphInput) OnMediaItemChanged(durationUs int64, decodedFormat *Format, isLast bool) error {
	if in.ended {
		return fmt.Errorf("%w: input already ended", ErrInvalidState)
	}

	if in.pending != nil {
		return fmt.Errorf("%w: previous item change still pending", ErrInvalidState)
	}

	if decodedFormat == nil {
		if durationUs < 0 {
			return fmt.Errorf("%w: negative silence duration %d", ErrInvalidArgument, durationUs)
		}

		in.pending = &itemChange{durationUs: durationUs, isLast: isLast}

		return nil
	}

	conv, err := newPCMConverter(*decodedFormat, in.outputFormat, in.userProcessors)
	if err != nil {
		return err
	}

	in.pending = &itemChange{durationUs: durationUs, conv: conv, isLast: isLast}

	return nil
}

// GetInputBuffer loans a pooled buffer to fill, or nil when the input
// cannot accept data right now: input blocked, an item change pending, a
// silence item playing or the pool exhausted. Repeated calls without
// QueueInputBuffer return the same buffer.
func (in *GraphInput) GetInputBuffer() *Buffer {
	if in.blocked || in.ended || in.pending != nil {
		return nil
	}

	if !in.itemActive || in.itemIsSilence || in.eosReceived {
		return nil
	}

	if in.loaned != nil {
		return in.loaned
	}

	if len(in.free) == 0 {
		return nil
	}

	b := in.free[len(in.free)-1]
	in.free = in.free[:len(in.free)-1]

	b.Data = b.Data[:0]
	b.TimeUs = 0
	b.EndOfStream = false
	in.loaned = b

	return b
}

// QueueInputBuffer commits the buffer returned by the last GetInputBuffer.
// The data must hold whole frames of the current item's format.
func (in *GraphInput) QueueInputBuffer() error {
	if in.loaned == nil {
		return fmt.Errorf("%w: no input buffer pending", ErrInvalidState)
	}

	if bpf := in.conv.inputFormat.BytesPerFrame(); len(in.loaned.Data)%bpf != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of %d byte frames",
			ErrInvalidArgument, len(in.loaned.Data), bpf)
	}

	in.queued = append(in.queued, in.loaned)
	in.loaned = nil

	return nil
}

// GetOutput returns the next chunk in the input's output format, or an
// empty buffer when no data is ready. Pending item changes are applied here
// once the previous item has drained. The returned data is reused and only
// valid until the next GetOutput call.
func (in *GraphInput) GetOutput() Buffer {
	if !in.hasDataToOutput() && in.itemDone() {
		if in.itemActive {
			in.itemActive = false
			in.silence = nil
			in.conv = nil

			if in.itemIsLast {
				in.ended = true
			}
		}

		if !in.ended && in.pending != nil {
			in.applyPendingChange()
		}
	}

	if in.itemIsSilence && in.silence != nil {
		data := in.silence.GetBuffer()
		if len(data) == 0 {
			return Buffer{}
		}

		buf := Buffer{Data: data, TimeUs: in.nextOutputTimeUs}
		in.advanceOutputTime(len(data))

		return buf
	}

	for len(in.queued) > 0 {
		b := in.queued[0]

		if len(b.Data) > 0 {
			out := in.conv.convert(b.Data)
			timeUs := b.TimeUs

			if b.EndOfStream {
				// Keep the marker queued so the next call closes the item.
				b.Data = b.Data[:0]
			} else {
				in.queued = in.queued[1:]
				in.free = append(in.free, b)
			}

			in.nextOutputTimeUs = timeUs
			in.advanceOutputTime(len(out))

			return Buffer{Data: out, TimeUs: timeUs}
		}

		in.queued = in.queued[1:]
		in.free = append(in.free, b)

		if b.EndOfStream {
			in.eosReceived = true
			break
		}
	}

	return Buffer{}
}

// IsEnded reports whether the last item has fully drained.
func (in *GraphInput) IsEnded() bool {
	return in.ended
}

// BlockInput makes GetInputBuffer return nil until UnblockInput, without
// touching data already queued.
func (in *GraphInput) BlockInput() {
	in.blocked = true
}

// UnblockInput lifts BlockInput.
func (in *GraphInput) UnblockInput() {
	in.blocked = false
}

// Flush drops all queued and pending audio of the current item. The item
// itself and any pending item change survive, so a producer can re-feed
// data from a new position. A silence item restarts from its full
// duration.
func (in *GraphInput) Flush() {
	in.free = append(in.free, in.queued...)
	in.queued = in.queued[:0]

	if in.silence != nil {
		in.silence.Flush()
		_ = in.silence.AddSilence(in.itemDurationUs)
	}

	in.eosReceived = false
	in.ended = false
	in.nextOutputTimeUs = 0
}

func (in *GraphInput) hasDataToOutput() bool {
	if in.itemIsSilence {
		return in.silence != nil && in.silence.HasRemaining()
	}

	return len(in.queued) > 0
}

// itemDone reports whether the current item has nothing left to emit.
func (in *GraphInput) itemDone() bool {
	if !in.itemActive {
		return true
	}

	if in.itemIsSilence {
		return !in.silence.HasRemaining()
	}

	return in.eosReceived && len(in.queued) == 0
}

func (in *GraphInput) applyPendingChange() {
	change := in.pending
	in.pending = nil

	in.itemActive = true
	in.itemIsLast = change.isLast
	in.itemDurationUs = change.durationUs
	in.eosReceived = false

	if change.conv == nil {
		in.itemIsSilence = true
		in.conv = nil

		// The output format was validated at construction, so the
		// generator cannot fail here.
		g, err := NewSilentAudioGenerator(in.outputFormat)
		if err != nil {
			return
		}

		in.silence = g
		_ = g.AddSilence(change.durationUs)

		return
	}

	in.itemIsSilence = false
	in.silence = nil
	in.conv = change.conv
}

func (in *GraphInput) advanceOutputTime(outputBytes int) {
	frames := int64(outputBytes / in.outputFormat.BytesPerFrame())
	in.nextOutputTimeUs += frames * 1_000_000 / int64(in.outputFormat.SampleRate)
}

// pcmConverter rewrites chunks from one PCM format to another through the
// float32 processor chain. When formats match and no processors are
// configured it degrades to a plain copy.
type pcmConverter struct {
	inputFormat  Format
	outputFormat Format
	passthrough  bool
	chain        []Processor

	floatBuf []float32
	outBuf   []byte
}

// newPCMConverter configures the processor chain for input and negotiates
// the final format: fields set in requested win, the rest comes from what
// the chain emits. Sample rate changes have no strategy and fail with
// ErrUnhandledFormat.
func newPCMConverter(input, requested Format, userProcessors []Processor) (*pcmConverter, error) {
	if input.Encoding != EncodingPCM16 && input.Encoding != EncodingFloat32 {
		return nil, fmt.Errorf("%w: cannot convert %s input", ErrUnhandledFormat, input.Encoding)
	}

	c := &pcmConverter{inputFormat: input}

	current := Format{
		SampleRate:   input.SampleRate,
		ChannelCount: input.ChannelCount,
		Encoding:     EncodingFloat32,
	}

	for _, p := range userProcessors {
		next, err := p.Configure(current)
		if err != nil {
			return nil, err
		}

		c.chain = append(c.chain, p)
		current = next
	}

	output := requested.Merge(Format{
		SampleRate:   current.SampleRate,
		ChannelCount: current.ChannelCount,
		Encoding:     input.Encoding,
	})

	if output.Encoding != EncodingPCM16 && output.Encoding != EncodingFloat32 {
		return nil, fmt.Errorf("%w: cannot convert to %s output", ErrUnhandledFormat, output.Encoding)
	}

	if input.SampleRate != output.SampleRate || current.SampleRate != output.SampleRate {
		return nil, fmt.Errorf(
			"%w: cannot resample %d Hz input to %d Hz", ErrUnhandledFormat, input.SampleRate, output.SampleRate)
	}

	c.outputFormat = output

	if len(c.chain) == 0 && input == output {
		c.passthrough = true
		return c, nil
	}

	if current.ChannelCount != output.ChannelCount {
		matrix, err := DefaultChannelMixingMatrix(current.ChannelCount, output.ChannelCount)
		if err != nil {
			return nil, err
		}

		remix := NewChannelMixingProcessor(matrix)

		next, err := remix.Configure(current)
		if err != nil {
			return nil, err
		}

		c.chain = append(c.chain, remix)
		current = next
	}

	return c, nil
}

// convert rewrites src and returns a slice of the converter's internal
// buffer, valid until the next call.
func (c *pcmConverter) convert(src []byte) []byte {
	if c.passthrough {
		c.outBuf = append(c.outBuf[:0], src...)
		return c.outBuf
	}

	samples := len(src) / c.inputFormat.BytesPerFrame() * c.inputFormat.ChannelCount

	if cap(c.floatBuf) < samples {
		c.floatBuf = make([]float32, samples)
	}

	current := c.floatBuf[:samples]
	decodeToFloat(src, c.inputFormat.Encoding, current)

	for _, p := range c.chain {
		current = p.Process(current)
	}

	outBytes := len(current) * c.outputFormat.Encoding.BytesPerSample()

	if cap(c.outBuf) < outBytes {
		c.outBuf = make([]byte, outBytes)
	}

	c.outBuf = c.outBuf[:outBytes]
	encodeMixedSamples(current, c.outputFormat.Encoding, c.outBuf)

	return c.outBuf
}
