package anthropic

import (
	"errors"
	"fmt"
	"os"

	"github.com/koscakluka/voicepipe/core/llms"
)

const (
	url = "https://api.anthropic.com/v1/messages"

	eventPrefix = "event:"
	chunkPrefix = "data:"

	// anthropicVersion is the messages API revision sent with every
	// request.
	anthropicVersion = "2023-06-01"

	apiKeyEnv    = "ANTHROPIC_API_KEY"
	defaultModel = "claude-haiku-4-5"

	// defaultMaxTokens caps responses when the caller does not; the API
	// rejects requests without a cap.
	defaultMaxTokens = 1000
)

var ErrAPIKeyNotFound = errors.New("anthropic api key not found")

type Client struct {
	apiKey    string
	model     string
	maxTokens int
	tools     []llms.Tool
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithMaxTokens(maxTokens int) ClientOption {
	return func(c *Client) { c.maxTokens = maxTokens }
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
	client := Client{model: defaultModel, maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(&client)
	}

	if client.apiKey == "" {
		apiKey, ok := os.LookupEnv(apiKeyEnv)
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("failed to configure anthropic client: %w", ErrAPIKeyNotFound)
		}
		client.apiKey = apiKey
	}

	return &client, nil
}
