package whisper

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/speechtotext"
)

type eventOrError struct {
	event speechtotext.Event
	err   error
}

type transcriptionStream struct {
	transcribe func(ctx context.Context, wav []byte) (string, error)
	encoding   audio.EncodingInfo

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pcm     bytes.Buffer
	stopped bool

	// events is closed once the drain finishes.
	events chan eventOrError
	closed chan struct{}

	stopOnce  sync.Once
	closeOnce sync.Once
}

func newTranscriptionStream(
	ctx context.Context,
	transcribe func(ctx context.Context, wav []byte) (string, error),
	options speechtotext.StreamOptions,
) *transcriptionStream {
	ctx, cancel := context.WithCancel(ctx)
	return &transcriptionStream{
		transcribe: transcribe,
		encoding:   options.EncodingInfo,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan eventOrError, 1),
		closed:     make(chan struct{}),
	}
}

// Feed appends one captured frame to the pending recording.
func (s *transcriptionStream) Feed(frame audio.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("transcription stream is stopped")
	}

	s.pcm.Write(frame.Data)
	return nil
}

// Stop seals the recording and transcribes it in one request; the result
// becomes the stream's single final event.
func (s *transcriptionStream) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		pcm := append([]byte(nil), s.pcm.Bytes()...)
		s.mu.Unlock()

		go s.drain(pcm)
	})
	return nil
}

func (s *transcriptionStream) drain(pcm []byte) {
	defer close(s.events)

	if len(pcm) == 0 {
		s.emit(speechtotext.Event{Type: speechtotext.EventTypeFinal, Seq: 1})
		return
	}

	transcript, err := s.transcribe(s.ctx, encodeWAV(pcm, s.encoding))
	if err != nil {
		s.emitError(err)
		return
	}

	s.emit(speechtotext.Event{
		Type:       speechtotext.EventTypeFinal,
		Transcript: strings.TrimSpace(transcript),
		Seq:        1,
	})
}

func (s *transcriptionStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
	})
	return nil
}

// Events yields the stream's single final event once Stop has drained
// the recording through the service.
func (s *transcriptionStream) Events(ctx context.Context) func(func(speechtotext.Event, error) bool) {
	return func(yield func(speechtotext.Event, error) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			case eventOrErr, ok := <-s.events:
				if !ok {
					return
				}
				if eventOrErr.err != nil {
					if !yield(speechtotext.Event{}, eventOrErr.err) {
						return
					}
					continue
				}
				if !yield(eventOrErr.event, nil) {
					return
				}
			}
		}
	}
}

func (s *transcriptionStream) emit(event speechtotext.Event) {
	select {
	case s.events <- eventOrError{event: event}:
	case <-s.closed:
	}
}

func (s *transcriptionStream) emitError(err error) {
	select {
	case s.events <- eventOrError{err: err}:
	case <-s.closed:
	}
}
