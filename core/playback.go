package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/events"
)

// DecodePolicy decides what happens when a synthesized speech chunk
// fails to decode.
type DecodePolicy int

const (
	// DecodePolicySkip drops the chunk, reports it, and keeps playing.
	DecodePolicySkip DecodePolicy = iota
	// DecodePolicyAbort fails the turn on the first undecodable chunk.
	DecodePolicyAbort
)

func (p DecodePolicy) String() string {
	switch p {
	case DecodePolicySkip:
		return "skip"
	case DecodePolicyAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// SpeechDecoder turns one synthesized chunk into playable PCM. A failing
// chunk must leave the decoder usable for the next one.
type SpeechDecoder interface {
	Decode(chunk []byte) ([]byte, error)
	Encoding() audio.EncodingInfo
}

// decodeResult is the outcome of decoding one speech chunk: pcm on
// success, or the reason the chunk has to be skipped.
type decodeResult struct {
	pcm  []byte
	skip error
}

func decodeOk(pcm []byte) decodeResult {
	return decodeResult{pcm: pcm}
}

func decodeSkip(reason error) decodeResult {
	return decodeResult{skip: reason}
}

func (r decodeResult) skipped() bool {
	return r.skip != nil
}

// passthroughDecoder serves synthesis clients that already produce the
// output encoding.
type passthroughDecoder struct {
	encoding audio.EncodingInfo
}

func (d passthroughDecoder) Decode(chunk []byte) ([]byte, error) {
	return chunk, nil
}

func (d passthroughDecoder) Encoding() audio.EncodingInfo {
	return d.encoding
}

// playbackSink is the playback half of a turn. Synthesized chunks are
// ingested as they arrive (decoded per chunk, with an explicit result
// each), buffered, and drained to the output device by play.
type playbackSink struct {
	decoder SpeechDecoder
	policy  DecodePolicy
	buffer  *audioBuffer
	output  *audioOutput
	emit    eventEmitter
	metrics *metricsRecorder

	// onAbort fires once when the abort policy decides a decode failure
	// ends the turn.
	onAbort func(error)
	// onStarted fires once when the first chunk reaches the device.
	onStarted func()
	aborted   atomic.Bool

	// chunkIndex is confined to the generator's callback goroutine.
	chunkIndex int
}

func newPlaybackSink(decoder SpeechDecoder, policy DecodePolicy, buffer *audioBuffer, output *audioOutput, emit eventEmitter, metrics *metricsRecorder, onAbort func(error), onStarted func()) *playbackSink {
	if decoder == nil {
		decoder = passthroughDecoder{encoding: output.EncodingInfo()}
	}
	if onAbort == nil {
		onAbort = func(error) {}
	}
	if onStarted == nil {
		onStarted = func() {}
	}

	return &playbackSink{
		decoder:   decoder,
		policy:    policy,
		buffer:    buffer,
		output:    output,
		emit:      emit,
		metrics:   metrics,
		onAbort:   onAbort,
		onStarted: onStarted,
	}
}

// Ingest decodes one synthesized chunk and buffers it for playback. A
// chunk that fails to decode is skipped or, under the abort policy, ends
// the turn; either way later chunks are unaffected by earlier failures.
func (s *playbackSink) Ingest(chunk []byte) {
	if s.aborted.Load() {
		return
	}

	s.metrics.stampFirstAudio()
	s.emit(events.NewAssistantSpeechFrame(chunk))

	index := s.chunkIndex
	s.chunkIndex++

	result := s.decode(chunk)
	if result.skipped() {
		s.metrics.addSkippedChunk()
		s.emit(events.NewAssistantSpeechChunkSkipped(index, result.skip.Error()))
		logger.Warn("Skipping undecodable speech chunk", "chunk", index, "error", result.skip)

		if s.policy == DecodePolicyAbort && s.aborted.CompareAndSwap(false, true) {
			s.onAbort(decodeError(StagePlayback, fmt.Errorf("speech chunk %d failed to decode: %w", index, result.skip)))
		}
		return
	}

	s.buffer.AddAudio(result.pcm)
}

func (s *playbackSink) decode(chunk []byte) decodeResult {
	pcm, err := s.decoder.Decode(chunk)
	if err != nil {
		return decodeSkip(err)
	}
	return decodeOk(pcm)
}

// IngestMark records a sentence boundary arriving from the generator.
func (s *playbackSink) IngestMark(transcript string) {
	s.emit(events.NewAssistantSpeechMarkGenerated(transcript))
	s.buffer.Mark(transcript)
}

// Finish marks the end of synthesis; play returns once everything
// buffered so far was confirmed played.
func (s *playbackSink) Finish() {
	s.emit(events.NewAssistantSpeechFinal())
	s.buffer.AllAudioLoaded()
}

// play drains the buffer to the output device until playback completes,
// the context ends, or the turn is cancelled. It is the body of the
// turn's playback worker.
func (s *playbackSink) play(ctx context.Context, cancelled func() bool) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.buffer.Stop()
		case <-done:
		}
	}()

	_, span := tracer.Start(ctx, "passing speech to audio output")
	defer span.End()

	started := false
bufferReadingLoop:
	for item := range s.buffer.Audio {
		if item.isMark() {
			span.AddEvent("received mark", trace.WithAttributes(attribute.String("mark", item.mark)))
			s.playMark(span, item.mark)
			continue
		}

		if cancelled() {
			s.output.Clear()
			break bufferReadingLoop
		}

		if !started {
			started = true
			s.metrics.stampPlaybackStarted()
			s.emit(events.NewAssistantPlaybackStarted())
			s.onStarted()
		}

		if err := s.output.SendAudio(item.audio); err != nil {
			span.RecordError(err)
			logger.Warn("Failed to send audio to output", "error", err)
			continue
		}
		s.emit(events.NewAssistantPlaybackFrame(item.audio))
	}

	s.metrics.stampPlaybackEnded()
	if started {
		s.emit(events.NewAssistantPlaybackEnded(s.buffer.SpokenTranscript()))
	}
	s.output.Clear()

	return nil
}

func (s *playbackSink) playMark(span trace.Span, mark string) {
	s.output.Mark(mark, func(mark string) {
		transcript, ok := s.buffer.ConfirmMark(mark)
		if !ok {
			return
		}
		span.AddEvent("mark played", trace.WithAttributes(attribute.String("mark", mark)))
		if transcript == "" {
			return
		}
		s.emit(events.NewAssistantPlaybackMarkPlayed(mark, transcript))
		s.emit(events.NewAssistantPlaybackTranscriptSegment(transcript))
		s.emit(events.NewAssistantPlaybackTranscriptUpdated(s.buffer.SpokenTranscript()))
	})
}
