package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/voicepipe/core/texttospeech"
)

type speechGenerator struct {
	ws *websocket.Conn
	mu sync.Mutex

	// textBuffer holds the text segments between marks; the head segment
	// is the one currently being synthesized.
	textBuffer   []string
	textBufferMu sync.Mutex

	options texttospeech.TextToSpeechOptions

	textComplete atomic.Bool
	cancelled    atomic.Bool
	closed       atomic.Bool

	report texttospeech.SpeechEndedReport
}

// NewSpeechGenerator opens a speak websocket scoped to one response worth
// of speech and starts its read loop.
func (c *TextToSpeechClient) NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	generator := &speechGenerator{
		options: texttospeech.TextToSpeechOptions{
			SpeechAudioCallback: func([]byte) {},
			SpeechMarkCallback:  func(string) {},
			SpeechEndedCallback: func(texttospeech.SpeechEndedReport) {},
			ErrorCallback:       func(error) {},
			EncodingInfo:        c.encoding,
		},
	}

	for _, opt := range opts {
		opt(&generator.options)
	}

	var err error
	if generator.ws, err = c.connectWebsocket(generator.options.EncodingInfo); err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	go generator.processIncomingMessages(ctx)

	return generator, nil
}

func (r *speechGenerator) processIncomingMessages(_ context.Context) {
	for {
		msgType, msg, err := r.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("Websocket read error: %v", err)
				if !r.closed.Load() && !r.cancelled.Load() {
					r.options.ErrorCallback(fmt.Errorf("speech generation connection lost: %w", err))
				}
			}
			_ = r.Close()
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(msg) > 0 {
				r.options.SpeechAudioCallback(msg)
			}
		case websocket.TextMessage:
			var parsedMsg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				log.Printf("Failed to unmarshal deepgram message: %v", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				r.handleFlushed()
			case "Warning":
				log.Printf("Deepgram warning: %s", msg)
			}
		}
	}
}

// handleFlushed confirms that everything up to the oldest pending mark
// has been synthesized: report the mark, then put the next buffered
// segment on the wire.
func (r *speechGenerator) handleFlushed() {
	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()

	if len(r.textBuffer) > 0 {
		r.options.SpeechMarkCallback(r.textBuffer[0])
		r.textBuffer = r.textBuffer[1:]
	}

	if len(r.textBuffer) == 0 && r.textComplete.Load() {
		r.options.SpeechEndedCallback(r.report)
		_ = r.Close()
		return
	}

	if len(r.textBuffer) > 0 && r.textBuffer[0] != "" {
		if err := r.sendWebsocketMessage(sendTextMsg(r.textBuffer[0])); err != nil {
			log.Printf("Failed to speak deepgram text: %v", err)
		}
	}
	if len(r.textBuffer) > 1 || (len(r.textBuffer) == 1 && r.textComplete.Load()) {
		if err := r.sendWebsocketMessage(flushMsg); err != nil {
			log.Printf("Failed to flush deepgram buffer: %v", err)
		}
	}
}

func (r *speechGenerator) SendText(text string) error {
	if r.closed.Load() {
		return fmt.Errorf("speech generator closed")
	} else if r.cancelled.Load() {
		return fmt.Errorf("speech generator cancelled")
	} else if r.textComplete.Load() {
		return fmt.Errorf("speech generator text already completed")
	}

	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()

	if len(r.textBuffer) == 0 {
		r.textBuffer = append(r.textBuffer, "")
	}

	if len(r.textBuffer) == 1 {
		if err := r.sendWebsocketMessage(sendTextMsg(text)); err != nil {
			return fmt.Errorf("failed to send websocket send text message: %w", err)
		}
	}
	r.textBuffer[len(r.textBuffer)-1] += text
	return nil
}

func (r *speechGenerator) Mark() error {
	if r.closed.Load() {
		return fmt.Errorf("speech generator closed")
	} else if r.cancelled.Load() {
		return fmt.Errorf("speech generator cancelled")
	} else if r.textComplete.Load() {
		return fmt.Errorf("speech generator text already completed")
	}

	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()

	if len(r.textBuffer) == 1 {
		if err := r.sendWebsocketMessage(flushMsg); err != nil {
			return fmt.Errorf("failed to send websocket flush message: %w", err)
		}
	}

	// NOTE: For some reason deepgram sometimes drops text that is passed after
	// a flush unless there is some kind of break. This allows us to send the
	// text after we get the flush confirmation
	r.textBuffer = append(r.textBuffer, "")

	return nil
}

func (r *speechGenerator) EndOfText() error {
	if r.closed.Load() {
		return fmt.Errorf("speech generator closed")
	} else if r.cancelled.Load() {
		return fmt.Errorf("speech generator cancelled")
	}
	if !r.textComplete.CompareAndSwap(false, true) {
		return nil
	}

	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()

	if len(r.textBuffer) == 0 {
		r.options.SpeechEndedCallback(r.report)
		_ = r.Close()
	} else if len(r.textBuffer) == 1 && r.textBuffer[0] == "" {
		r.textBuffer = r.textBuffer[1:]
		r.options.SpeechEndedCallback(r.report)
		_ = r.Close()
	} else if len(r.textBuffer) == 1 {
		// trailing text without a mark: flush so the confirmation can
		// finish the generation
		if err := r.sendWebsocketMessage(flushMsg); err != nil {
			return fmt.Errorf("failed to send websocket flush message: %w", err)
		}
	}

	return nil
}

func (r *speechGenerator) Cancel() error {
	if r.closed.Load() {
		return fmt.Errorf("speech generator closed")
	}
	if !r.cancelled.CompareAndSwap(false, true) {
		return nil
	}

	if err := r.sendWebsocketMessage(clearMsg); err != nil {
		_ = r.Close()
		return fmt.Errorf("failed to send websocket clear message: %w", err)
	}

	return r.Close()
}

func (r *speechGenerator) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.ws == nil {
			return nil
		}
		return r.ws.WriteJSON(closeMsg)
	}()
	if err != nil {
		if agressiveCloseErr := r.ws.Close(); agressiveCloseErr != nil {
			return fmt.Errorf("failed to close websocket: %w", errors.Join(err, agressiveCloseErr))
		}
	}
	return nil
}

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	sendTextMsg = func(text string) speakMessage {
		return speakMessage{Type: "Speak", Text: text}
	}
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

func (r *speechGenerator) sendWebsocketMessage(msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return fmt.Errorf("websocket connection closed")
	} else if r.ws == nil {
		return fmt.Errorf("websocket connection closed")
	}

	if err := r.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
