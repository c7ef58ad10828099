// Package whisper transcribes through an OpenAI-compatible batch audio
// endpoint. A stream accumulates fed frames and performs a single
// transcription request when stopped, so it satisfies the same contract
// as the live providers at the cost of latency.
package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/speechtotext"
	openai "github.com/sashabaranov/go-openai"
)

const apiKeyEnv = "OPENAI_API_KEY"

var ErrAPIKeyNotFound = errors.New("openai api key not found")

type TranscriptionClient struct {
	client *openai.Client

	apiKey   string
	model    string
	language string
	prompt   string
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

// WithPrompt biases recognition with a context phrase, e.g. the
// assistant's last utterance.
func WithPrompt(prompt string) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.prompt = prompt }
}

// NewTranscriptionClient resolves the credential eagerly, an explicit
// option first and the environment second, so a missing key fails here
// rather than on the first stream.
func NewTranscriptionClient(opts ...TranscriptionClientOption) (*TranscriptionClient, error) {
	client := TranscriptionClient{model: openai.Whisper1}
	for _, opt := range opts {
		opt(&client)
	}

	if client.apiKey == "" {
		apiKey, ok := os.LookupEnv(apiKeyEnv)
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("failed to configure whisper transcription client: %w", ErrAPIKeyNotFound)
		}
		client.apiKey = apiKey
	}

	client.client = openai.NewClient(client.apiKey)
	return &client, nil
}

// StartStream opens an accumulating transcription session. Nothing is
// sent to the service until the stream is stopped.
func (c *TranscriptionClient) StartStream(ctx context.Context, opts ...speechtotext.StreamOption) (speechtotext.Stream, error) {
	options := speechtotext.StreamOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}

	if options.EncodingInfo.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("invalid encoding: batch transcription requires linear16")
	}

	return newTranscriptionStream(ctx, c.transcribeAudio, options), nil
}

func (c *TranscriptionClient) transcribeAudio(ctx context.Context, wav []byte) (string, error) {
	response, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: c.language,
		Prompt:   c.prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return response.Text, nil
}
