package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/events"
	"github.com/koscakluka/voicepipe/core/speechtotext"
)

// speechToText wraps the configured transcription client and owns the
// per-utterance stream lifecycle: streams are single-use, so each capture
// opens a fresh one and lets it drain to its final transcript.
type speechToText struct {
	// client stores the configured speech-to-text implementation.
	client SpeechToText

	emitEvent eventEmitter

	mu     sync.Mutex
	stream speechtotext.Stream
}

// utteranceCallbacks carries the coordinator hooks for one utterance.
// The typed event stream is separate and always emitted.
type utteranceCallbacks struct {
	// onFinal receives the utterance's final transcript, exactly once per
	// drained stream.
	onFinal func(transcript string)
	// onSpeechStarted and onSpeechEnded receive the recognizer's
	// voice-activity signals, which drive turn boundaries in
	// always-listening mode.
	onSpeechStarted func()
	onSpeechEnded   func()
	// onError receives stream failures, which happen off the caller's
	// goroutine.
	onError func(error)
}

func newSpeechToText(client SpeechToText) *speechToText {
	return &speechToText{
		client:    client,
		emitEvent: noopEventEmitter,
	}
}

func (s *speechToText) set(client SpeechToText) {
	if s != nil {
		s.client = client
	}
}

func (s *speechToText) isConfigured() bool {
	return s != nil && s.client != nil && !isNilClient(s.client)
}

// isTranscribing reports whether an utterance stream is currently open.
func (s *speechToText) isTranscribing() bool {
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

func (s *speechToText) SetEventEmitter(emitEvent eventEmitter) {
	if s != nil {
		if emitEvent != nil {
			s.emitEvent = emitEvent
		} else {
			s.emitEvent = noopEventEmitter
		}
	}
}

// StartUtterance opens a transcription stream for one utterance and
// pumps its events until it drains. An utterance already in flight is
// aborted first.
func (s *speechToText) StartUtterance(ctx context.Context, encodingInfo audio.EncodingInfo, callbacks utteranceCallbacks) error {
	if !s.isConfigured() {
		return nil
	}

	if callbacks.onFinal == nil {
		callbacks.onFinal = func(string) {}
	}
	if callbacks.onSpeechStarted == nil {
		callbacks.onSpeechStarted = func() {}
	}
	if callbacks.onSpeechEnded == nil {
		callbacks.onSpeechEnded = func() {}
	}
	if callbacks.onError == nil {
		callbacks.onError = func(error) {}
	}

	stream, err := s.client.StartStream(ctx,
		speechtotext.WithEncodingInfo(encodingInfo),
		speechtotext.WithSpeechStartedCallback(func() {
			s.emitEvent(events.NewUserSpeechStarted())
			callbacks.onSpeechStarted()
		}),
		speechtotext.WithSpeechEndedCallback(func() {
			s.emitEvent(events.NewUserSpeechEnded())
			callbacks.onSpeechEnded()
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to start transcribing: %w", err)
	}

	s.mu.Lock()
	previous := s.stream
	s.stream = stream
	s.mu.Unlock()
	if previous != nil {
		if err := previous.Close(); err != nil {
			logger.Warn("Failed to close previous transcription stream", "error", err)
		}
	}

	go s.pumpEvents(ctx, stream, callbacks)

	return nil
}

// pumpEvents forwards stream events as typed events and surfaces the
// final transcript. It runs until the stream drains, fails, or the
// context is cancelled.
func (s *speechToText) pumpEvents(ctx context.Context, stream speechtotext.Stream, callbacks utteranceCallbacks) {
	defer s.release(stream)

	for event, err := range stream.Events(ctx) {
		if err != nil {
			callbacks.onError(connectionError(StageTranscription, fmt.Errorf("transcription stream failed: %w", err)))
			return
		}

		switch event.Type {
		case speechtotext.EventTypePartial:
			s.emitEvent(events.NewUserTranscriptInterimUpdated(event.Transcript, event.Seq))
		case speechtotext.EventTypeFinal:
			s.emitEvent(events.NewUserTranscriptFinal(event.Transcript, event.Seq))
			callbacks.onFinal(event.Transcript)
		}
	}
}

// Feed hands a captured frame to the live stream. Frames arriving with no
// stream open are dropped.
func (s *speechToText) Feed(frame audio.Frame) error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	return stream.Feed(frame)
}

// FinishUtterance signals the end of audio and lets the recognizer
// drain. The final transcript arrives through the utterance's onFinal.
func (s *speechToText) FinishUtterance() error {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("failed to finish utterance: %w", err)
	}
	return nil
}

// Abort tears down the live stream without draining; no final transcript
// will arrive.
func (s *speechToText) Abort() error {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to abort transcription stream: %w", err)
	}
	return nil
}

func (s *speechToText) Close() error {
	return s.Abort()
}

// release clears the stream slot once its pump ends, unless a newer
// stream already took it.
func (s *speechToText) release(stream speechtotext.Stream) {
	s.mu.Lock()
	if s.stream == stream {
		s.stream = nil
	}
	s.mu.Unlock()
}
