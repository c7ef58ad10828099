package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/speechtotext"
	"github.com/koscakluka/voicepipe/internal/utils"
)

// transcriptionEventQueueCapacity bounds how far the read loop may run
// ahead of the event consumer.
const transcriptionEventQueueCapacity = 32

type eventOrError struct {
	event speechtotext.Event
	err   error
}

type transcriptionStream struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	encoding audio.EncodingInfo
	lastMsg  lastMessageClock

	speechStartedCallback func()
	speechEndedCallback   func()

	// events is closed by the read loop once the connection is done.
	events chan eventOrError
	closed chan struct{}

	stopOnce  sync.Once
	closeOnce sync.Once
	stopped   bool
	stoppedMu sync.Mutex

	// read-loop state, touched only by readAndProcessMessages
	seq                   uint64
	accumulatedTranscript string
	unendedSegment        bool
	finalEmitted          bool
}

func newTranscriptionStream(conn *websocket.Conn, options speechtotext.StreamOptions) *transcriptionStream {
	stream := &transcriptionStream{
		conn:                  conn,
		encoding:              options.EncodingInfo,
		speechStartedCallback: options.SpeechStartedCallback,
		speechEndedCallback:   options.SpeechEndedCallback,
		events:                make(chan eventOrError, transcriptionEventQueueCapacity),
		closed:                make(chan struct{}),
	}
	stream.lastMsg.touch()
	return stream
}

// Feed writes one captured frame to the recognizer.
func (s *transcriptionStream) Feed(frame audio.Frame) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("transcription stream is closed")
	}

	s.lastMsg.touch()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// Stop asks the recognizer to flush whatever audio it still holds. The
// read loop keeps running until the service finishes the drain and closes
// the connection, which terminates the event iterator.
func (s *transcriptionStream) Stop() error {
	s.stoppedMu.Lock()
	s.stopped = true
	s.stoppedMu.Unlock()

	var err error
	s.stopOnce.Do(func() {
		s.connMu.Lock()
		defer s.connMu.Unlock()

		if s.conn == nil {
			return
		}
		if writeErr := s.conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)}); writeErr != nil {
			err = fmt.Errorf("failed to close deepgram stream through websocket: %w", writeErr)
		}
	})
	return err
}

func (s *transcriptionStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.connMu.Lock()
		defer s.connMu.Unlock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
	})
	return nil
}

// Events drains the stream's event queue. The iterator ends when the
// stream is drained or closed, or the context is cancelled.
func (s *transcriptionStream) Events(ctx context.Context) func(func(speechtotext.Event, error) bool) {
	return func(yield func(speechtotext.Event, error) bool) {
		for {
			select {
			case <-ctx.Done():
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

func (s *transcriptionStream) emit(eventType speechtotext.EventType, transcript string) {
	s.seq++
	select {
	case s.events <- eventOrError{event: speechtotext.Event{
		Type:       eventType,
		Transcript: transcript,
		Seq:        s.seq,
	}}:
	case <-s.closed:
	}
}

func (s *transcriptionStream) emitError(err error) {
	select {
	case s.events <- eventOrError{err: err}:
	case <-s.closed:
	}
}

func (s *transcriptionStream) wasStopped() bool {
	s.stoppedMu.Lock()
	defer s.stoppedMu.Unlock()
	return s.stopped
}

func (s *transcriptionStream) readAndProcessMessages(ctx context.Context) {
	defer close(s.events)

	silenceCtx, silenceCancel := context.WithCancel(ctx)
	defer silenceCancel()

	go s.generateSilence(silenceCtx, s.encoding)

	conn := s.conn
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			normalClose := websocket.IsCloseError(err, websocket.CloseNormalClosure)
			if !normalClose {
				log.Println("Failed to read deepgram websocket message", err)
			}

			if s.wasStopped() {
				// Drained: whatever accumulated becomes the terminal final
				// event, empty or not, so a stopped stream always ends on
				// one.
				if transcript := strings.TrimSpace(s.accumulatedTranscript); transcript != "" || !s.finalEmitted {
					s.accumulatedTranscript = ""
					s.finalEmitted = true
					s.emit(speechtotext.EventTypeFinal, transcript)
				}
			} else if !normalClose {
				s.emitError(fmt.Errorf("transcription connection lost: %w", err))
			}

			s.connMu.Lock()
			s.conn = nil
			s.connMu.Unlock()
			conn.Close()
			return
		}
		if msgType != websocket.BinaryMessage {
			s.processMessage(msg)
		}
	}
}

// processMessage runs on the read-loop goroutine; events stay in arrival
// order and the accumulated transcript needs no locking.
func (s *transcriptionStream) processMessage(msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	err := json.Unmarshal(msg, &parsedMsg)
	if err != nil {
		log.Println("Failed to unmarshal deepgram message", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			log.Println("Failed to unmarshal deepgram message", err)
			return
		}
		if msgResp.IsFinal {
			if len(msgResp.Channel.Alternatives) > 0 {
				transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
				if len(transcript) > 0 {
					s.accumulatedTranscript += " " + transcript
					s.emit(speechtotext.EventTypePartial, strings.TrimSpace(s.accumulatedTranscript))
				}
			}
			if msgResp.SpeechFinal {
				s.onSpeechEnded()
			}
		} else if len(msgResp.Channel.Alternatives) > 0 {
			transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
			if len(transcript) > 0 {
				s.emit(speechtotext.EventTypePartial,
					strings.TrimSpace(s.accumulatedTranscript+" "+transcript))
			}
		}

	case api.TypeUtteranceEndResponse:
		var msgResp api.UtteranceEndResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			log.Println("Failed to unmarshal deepgram message", err)
			return
		}

		if s.unendedSegment {
			s.onSpeechEnded()
		}

	case api.TypeSpeechStartedResponse:
		var msgResp api.SpeechStartedResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			log.Println("Failed to unmarshal deepgram message", err)
			return
		}

		s.unendedSegment = true
		if s.speechStartedCallback != nil {
			s.speechStartedCallback()
		}
	}
}

func (s *transcriptionStream) onSpeechEnded() {
	s.unendedSegment = false
	fullTranscript := strings.TrimSpace(s.accumulatedTranscript)
	s.accumulatedTranscript = ""
	if len(fullTranscript) > 0 {
		s.finalEmitted = true
		s.emit(speechtotext.EventTypeFinal, fullTranscript)
	}
	if s.speechEndedCallback != nil {
		s.speechEndedCallback()
	}
}

func (s *transcriptionStream) sendKeepAlive() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return
	}
	if err := s.conn.WriteJSON(
		struct {
			Type string `json:"type"`
		}{
			Type: "KeepAlive",
		}); err != nil {
		log.Println("Failed to write to deepgram client", err)
	}
}

func (s *transcriptionStream) sendSilence(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return nil
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// generateSilence keeps the recognizer from timing out while no audio is
// being fed: after 50 ms of quiet it streams silence frames, after a
// second of that it falls back to KeepAlive messages every 5 s.
func (s *transcriptionStream) generateSilence(ctx context.Context, encoding audio.EncodingInfo) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const durationMs = 50
	const milisecondsPerSecond = 1000
	ticker := time.NewTicker(durationMs * time.Millisecond)

	chunk := make([]byte, encoding.SampleRate*encoding.Format.ByteSize()*durationMs/milisecondsPerSecond)
	for i := range chunk {
		chunk[i] = encoding.SilenceValue()
	}

	var state = silenceGeneratorStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return
		case <-s.closed:
			ticker.Stop()
			return
		case <-ticker.C:
			switch state {
			case silenceGeneratorStateWaiting:
				if s.lastMsg.sinceLast().Milliseconds() > 50 {
					state = silenceGeneratorStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
					continue
				}

			case silenceGeneratorStateSilence:
				if s.lastMsg.sinceLast().Milliseconds() < 50 {
					state = silenceGeneratorStateWaiting
					firstSilenceTime = nil
					continue
				}
				if time.Since(*firstSilenceTime).Milliseconds() >= 1000 {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					firstSilenceTime = nil
					continue
				}

				if err := s.sendSilence(chunk); err != nil {
					log.Println("Sending silence audio error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if s.lastMsg.sinceLast().Milliseconds() < 50 {
					state = silenceGeneratorStateWaiting
					continue
				}

				if time.Since(*lastKeepAliveTime).Seconds() >= 5 {
					lastKeepAliveTime = utils.Ptr(time.Now())
					s.sendKeepAlive()
				}
			}
		}
	}
}
