package groq

import (
	"errors"
	"fmt"
	"os"

	"github.com/koscakluka/voicepipe/core/llms"
)

const (
	url = "https://api.groq.com/openai/v1/chat/completions"

	endMessage  = "[DONE]"
	chunkPrefix = "data:"

	apiKeyEnv    = "GROQ_API_KEY"
	defaultModel = "llama-3.3-70b-versatile"
)

var ErrAPIKeyNotFound = errors.New("groq api key not found")

type Client struct {
	apiKey string
	model  string
	tools  []llms.Tool
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithTools sets base tools offered on every prompt, in addition to any
// passed per call.
func WithTools(tools ...llms.Tool) ClientOption {
	return func(c *Client) { c.tools = append(c.tools, tools...) }
}

// NewClient resolves the credential eagerly, an explicit option first and
// the environment second, so a missing key fails here rather than on the
// first request.
func NewClient(opts ...ClientOption) (*Client, error) {
	client := Client{model: defaultModel}
	for _, opt := range opts {
		opt(&client)
	}

	if client.apiKey == "" {
		apiKey, ok := os.LookupEnv(apiKeyEnv)
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("failed to configure groq client: %w", ErrAPIKeyNotFound)
		}
		client.apiKey = apiKey
	}

	return &client, nil
}
