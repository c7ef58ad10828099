package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/speechtotext"
)

const (
	listenURL = "wss://api.deepgram.com/v1/listen"

	apiKeyEnv       = "DEEPGRAM_API_KEY"
	defaultModel    = "nova-3"
	defaultLanguage = "en-US"
)

var ErrAPIKeyNotFound = errors.New("deepgram api key not found")

type TranscriptionClient struct {
	apiKey   string
	model    string
	language string
}

type TranscriptionClientOption func(*TranscriptionClient)

func WithAPIKey(apiKey string) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.apiKey = apiKey }
}

func WithModel(model string) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.model = model }
}

func WithLanguage(language string) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.language = language }
}

// NewTranscriptionClient resolves the credential eagerly, an explicit
// option first and the environment second, so a missing key fails here
// rather than on the first stream.
func NewTranscriptionClient(opts ...TranscriptionClientOption) (*TranscriptionClient, error) {
	client := TranscriptionClient{model: defaultModel, language: defaultLanguage}
	for _, opt := range opts {
		opt(&client)
	}

	if client.apiKey == "" {
		apiKey, ok := os.LookupEnv(apiKeyEnv)
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("failed to configure deepgram transcription client: %w", ErrAPIKeyNotFound)
		}
		client.apiKey = apiKey
	}

	return &client, nil
}

// StartStream opens a live transcription session over the listen
// websocket and starts its read loop. The stream stays open until Stop
// drains it, Close tears it down, or the connection drops.
func (c *TranscriptionClient) StartStream(ctx context.Context, opts ...speechtotext.StreamOption) (speechtotext.Stream, error) {
	options := speechtotext.StreamOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	conn, err := c.connectWebsocket(connectionOptions{
		sampleRate: encoding.SampleRate,
		encoding:   encoding.Format.Name(),

		detectSpeechStart: options.SpeechStartedCallback != nil ||
			options.SpeechEndedCallback != nil,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	stream := newTranscriptionStream(conn, options)
	go stream.readAndProcessMessages(ctx)

	return stream, nil
}

type connectionOptions struct {
	sampleRate int
	encoding   string

	detectSpeechStart bool
}

func (c *TranscriptionClient) connectWebsocket(options connectionOptions) (*websocket.Conn, error) {
	listenUrl, _ := url.Parse(listenURL)
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", options.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", c.model)
	queryParams.Set("language", c.language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("interim_results", "true")
	queryParams.Set("endpointing", "300")
	if options.detectSpeechStart {
		queryParams.Set("vad_events", "true")
	}

	listenUrl.RawQuery = queryParams.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(listenUrl.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, err
}

// lastMessageClock tracks when audio was last written to the connection,
// shared between the writers and the silence generator.
type lastMessageClock struct {
	ts atomic.Int64
}

func (c *lastMessageClock) touch() {
	c.ts.Store(time.Now().UnixNano())
}

func (c *lastMessageClock) sinceLast() time.Duration {
	return time.Since(time.Unix(0, c.ts.Load()))
}
