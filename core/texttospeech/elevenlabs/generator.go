package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
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

	// textBuffer holds the text segments between marks, kept only so mark
	// callbacks can report what was spoken; all text goes on the wire as
	// soon as it is sent.
	textBuffer   []string
	textBufferMu sync.Mutex

	options texttospeech.TextToSpeechOptions

	textComplete atomic.Bool
	cancelled    atomic.Bool
	closed       atomic.Bool

	report texttospeech.SpeechEndedReport
}

// NewSpeechGenerator opens a stream-input websocket scoped to one
// response worth of speech and starts its read loop.
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

	if err := generator.sendWebsocketMessage(streamInitMessage{
		Text: " ",
		VoiceSettings: voiceSettings{
			Stability:       defaultStability,
			SimilarityBoost: defaultSimilarityBoost,
		},
		APIKey: c.apiKey,
	}); err != nil {
		generator.ws.Close()
		return nil, fmt.Errorf("failed to initialize stream: %w", err)
	}

	go generator.processIncomingMessages(ctx)

	return generator, nil
}

func (r *speechGenerator) processIncomingMessages(_ context.Context) {
	for {
		_, msg, err := r.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) &&
				!r.closed.Load() && !r.cancelled.Load() {
				log.Printf("Websocket read error: %v", err)
				r.options.ErrorCallback(fmt.Errorf("speech generation connection lost: %w", err))
			}
			_ = r.Close()
			return
		}

		var response streamResponse
		if err := json.Unmarshal(msg, &response); err != nil {
			log.Printf("Failed to unmarshal elevenlabs message: %v", err)
			continue
		}

		if response.Audio != "" {
			payload, err := base64.StdEncoding.DecodeString(response.Audio)
			if err != nil {
				log.Printf("Failed to decode elevenlabs audio payload: %v", err)
				continue
			}
			if len(payload) > 0 {
				r.options.SpeechAudioCallback(payload)
			}
		}

		if response.IsFinal != nil && *response.IsFinal {
			r.finishGeneration()
			return
		}
	}
}

// finishGeneration runs once the service reports the terminal payload:
// every pending mark confirms in order, then the generation is reported
// ended.
func (r *speechGenerator) finishGeneration() {
	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()

	for _, segment := range r.textBuffer {
		r.options.SpeechMarkCallback(segment)
	}
	r.textBuffer = nil

	r.options.SpeechEndedCallback(r.report)
	_ = r.Close()
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

	if err := r.sendWebsocketMessage(streamTextMessage{
		Text:                 text,
		TryTriggerGeneration: true,
	}); err != nil {
		return fmt.Errorf("failed to send websocket send text message: %w", err)
	}
	r.textBuffer[len(r.textBuffer)-1] += text
	return nil
}

// Mark segments the text for the mark callback. The service reports no
// per-flush confirmations, so marks confirm together, still in order,
// when generation finishes.
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

	if err := r.sendWebsocketMessage(streamEndMessage{}); err != nil {
		return fmt.Errorf("failed to send websocket end of text message: %w", err)
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

	// there is no clear protocol on this socket; dropping the connection
	// is what stops generation
	return r.Close()
}

func (r *speechGenerator) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ws == nil {
		return nil
	}
	if err := r.ws.Close(); err != nil {
		return fmt.Errorf("failed to close websocket: %w", err)
	}
	return nil
}

type streamInitMessage struct {
	Text          string        `json:"text"`
	VoiceSettings voiceSettings `json:"voice_settings"`
	APIKey        string        `json:"xi_api_key"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type streamTextMessage struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation"`
}

type streamEndMessage struct {
	Text string `json:"text"`
}

type streamResponse struct {
	Audio   string `json:"audio"`
	IsFinal *bool  `json:"isFinal"`
}

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
