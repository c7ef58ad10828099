package speechtotext

import (
	"context"

	"github.com/koscakluka/voicepipe/core/audio"
)

// EventType tags transcription events.
type EventType string

const (
	// EventTypePartial is an in-progress hypothesis; later events supersede
	// it.
	EventTypePartial EventType = "partial"
	// EventTypeFinal is a completed transcript. A drained stream ends with
	// exactly one final event.
	EventTypeFinal EventType = "final"
)

// Event is a single transcription result. Seq increases strictly with
// every event emitted by one stream, partials and finals sharing the same
// counter.
type Event struct {
	Type       EventType
	Transcript string
	Seq        uint64
}

// Stream is one live transcription session. It is not restartable; to
// transcribe again open a new stream.
type Stream interface {
	// Feed hands a captured frame to the recognizer. The frame's payload is
	// transferred; the caller must not reuse it.
	Feed(frame audio.Frame) error
	// Stop signals the end of audio. The stream drains whatever the
	// recognizer still holds and terminates its event iterator with a final
	// event.
	Stop() error
	// Events returns a lazy iterator over the stream's events. The iterator
	// ends when the stream is drained, closed, or the context is cancelled.
	Events(ctx context.Context) func(func(Event, error) bool)
	// Close tears the stream down immediately, without draining.
	Close() error
}

type StreamOptions struct {
	EncodingInfo audio.EncodingInfo

	SpeechStartedCallback func()
	SpeechEndedCallback   func()
}

type StreamOption func(*StreamOptions)

func WithEncodingInfo(encodingInfo audio.EncodingInfo) StreamOption {
	return func(o *StreamOptions) {
		o.EncodingInfo = encodingInfo
	}
}

// WithSpeechStartedCallback registers a callback for the recognizer's
// voice-activity start signal, ahead of any transcript.
func WithSpeechStartedCallback(callback func()) StreamOption {
	return func(o *StreamOptions) {
		o.SpeechStartedCallback = callback
	}
}

func WithSpeechEndedCallback(callback func()) StreamOption {
	return func(o *StreamOptions) {
		o.SpeechEndedCallback = callback
	}
}
