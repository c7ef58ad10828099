package deepgram

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/voicepipe/core/audio"
)

const (
	speakHost = "api.deepgram.com"
	speakPath = "/v1/speak"

	apiKeyEnv = "DEEPGRAM_API_KEY"
)

var ErrAPIKeyNotFound = errors.New("deepgram api key not found")

type TextToSpeechClient struct {
	apiKey   string
	voice    deepgramVoice
	encoding audio.EncodingInfo
}

type TextToSpeechClientOption func(*TextToSpeechClient)

func WithAPIKey(apiKey string) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) { c.apiKey = apiKey }
}

func WithVoice(voice deepgramVoice) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) { c.voice = voice }
}

// WithEncodingInfo sets the default output encoding for generators
// opened by this client.
func WithEncodingInfo(encoding audio.EncodingInfo) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) { c.encoding = encoding }
}

// NewTextToSpeechClient resolves the credential eagerly, an explicit
// option first and the environment second, so a missing key fails here
// rather than on the first generator.
func NewTextToSpeechClient(opts ...TextToSpeechClientOption) (*TextToSpeechClient, error) {
	client := TextToSpeechClient{
		voice:    defaultVoice,
		encoding: audio.EncodingInfo{SampleRate: 48000, Channels: 1, Format: audio.EncodingLinear16},
	}
	for _, opt := range opts {
		opt(&client)
	}

	if !slices.Contains(GetAvailableVoices(), client.voice) {
		return nil, fmt.Errorf("invalid voice")
	}

	if client.apiKey == "" {
		apiKey, ok := os.LookupEnv(apiKeyEnv)
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("failed to configure deepgram text-to-speech client: %w", ErrAPIKeyNotFound)
		}
		client.apiKey = apiKey
	}

	return &client, nil
}

func (c *TextToSpeechClient) SetVoice(voice deepgramVoice) {
	if slices.Contains(GetAvailableVoices(), voice) {
		c.voice = voice
	}
}

// EncodingInfo reports the output encoding generators produce by
// default.
func (c *TextToSpeechClient) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}

func (c *TextToSpeechClient) connectWebsocket(encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	urlValues := url.Values{}
	urlValues.Set("encoding", encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	urlValues.Set("model", string(c.voice))
	urlValues.Set("container", "none")

	conn, _, err := websocket.DefaultDialer.Dial(
		(&url.URL{
			Scheme: "wss",
			Host:   speakHost, Path: speakPath,
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}
