// Package elevenlabs streams speech through the ElevenLabs stream-input
// websocket. Text is sent incrementally with eager generation enabled and
// audio arrives as base64 payloads in the selected output format,
// compressed or raw.
package elevenlabs

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/voicepipe/core/audio"
)

const (
	streamHost = "api.elevenlabs.io"

	apiKeyEnv    = "ELEVENLABS_API_KEY"
	defaultVoice = "21m00Tcm4TlvDq8ikWAM"
	defaultModel = "eleven_turbo_v2_5"

	defaultStability       = 0.5
	defaultSimilarityBoost = 0.8
)

var ErrAPIKeyNotFound = errors.New("elevenlabs api key not found")

type TextToSpeechClient struct {
	apiKey   string
	voice    string
	model    string
	encoding audio.EncodingInfo
}

type TextToSpeechClientOption func(*TextToSpeechClient)

func WithAPIKey(apiKey string) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) { c.apiKey = apiKey }
}

// WithVoice sets the voice identifier given by the service.
func WithVoice(voice string) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) { c.voice = voice }
}

func WithModel(model string) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) { c.model = model }
}

// WithEncodingInfo sets the default output encoding for generators
// opened by this client. Opus output trades decode robustness for
// bandwidth; raw linear16 avoids decoding entirely.
func WithEncodingInfo(encoding audio.EncodingInfo) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) { c.encoding = encoding }
}

// NewTextToSpeechClient resolves the credential eagerly, an explicit
// option first and the environment second, so a missing key fails here
// rather than on the first generator.
func NewTextToSpeechClient(opts ...TextToSpeechClientOption) (*TextToSpeechClient, error) {
	client := TextToSpeechClient{
		voice:    defaultVoice,
		model:    defaultModel,
		encoding: audio.EncodingInfo{SampleRate: 16000, Channels: 1, Format: audio.EncodingLinear16},
	}
	for _, opt := range opts {
		opt(&client)
	}

	if _, err := convertEncoding(client.encoding); err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	if client.apiKey == "" {
		apiKey, ok := os.LookupEnv(apiKeyEnv)
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("failed to configure elevenlabs text-to-speech client: %w", ErrAPIKeyNotFound)
		}
		client.apiKey = apiKey
	}

	return &client, nil
}

// EncodingInfo reports the output encoding generators produce by
// default.
func (c *TextToSpeechClient) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}

// convertEncoding maps an encoding to the service's output_format
// identifier.
func convertEncoding(encoding audio.EncodingInfo) (string, error) {
	switch encoding.Format {
	case audio.EncodingLinear16:
		switch encoding.SampleRate {
		case 16000, 22050, 24000, 44100:
			return fmt.Sprintf("pcm_%d", encoding.SampleRate), nil
		}
		return "", fmt.Errorf("unsupported sample rate for pcm output")
	case audio.EncodingMulaw:
		if encoding.SampleRate != 8000 {
			return "", fmt.Errorf("unsupported sample rate for ulaw output")
		}
		return "ulaw_8000", nil
	case audio.EncodingOpus:
		if encoding.SampleRate != 48000 {
			return "", fmt.Errorf("unsupported sample rate for opus output")
		}
		return "opus_48000_64", nil
	}
	return "", fmt.Errorf("unsupported encoding")
}

func (c *TextToSpeechClient) connectWebsocket(encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	outputFormat, err := convertEncoding(encodingInfo)
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	urlValues := url.Values{}
	urlValues.Set("model_id", c.model)
	urlValues.Set("output_format", outputFormat)

	conn, _, err := websocket.DefaultDialer.Dial(
		(&url.URL{
			Scheme: "wss",
			Host:   streamHost,
			Path:   fmt.Sprintf("/v1/text-to-speech/%s/stream-input", c.voice),
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"xi-api-key": {c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to elevenlabs: %w", err)
	}

	return conn, nil
}
