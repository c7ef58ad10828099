package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strings"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/voicepipe/core/llms"
	"github.com/koscakluka/voicepipe/internal/utils"
)

// Prompt sends a prompt and blocks until the full response is assembled,
// executing any requested tools and feeding their results back until the
// model stops calling tools. The optional stream callback still receives
// content incrementally as it arrives. Cancelling ctx aborts the
// in-flight request and ends the stream.
func (c *Client) Prompt(
	ctx context.Context,
	prompt string,
	opts ...llms.PromptOption,
) (*llms.Response, error) {
	options := llms.PromptOptions{Tools: slices.Clone(c.tools)}
	for _, opt := range opts {
		opt(&options)
	}

	messages := toMessages(options.Instructions, options.Turns)
	messages = append(messages, message{
		Role:    messageRoleUser,
		Content: prompt,
	})

	var toolChoice *string
	var tools []Tool
	if options.Tools != nil {
		toolChoice = utils.Ptr("auto")
		if options.ForcedToolsCall {
			toolChoice = utils.Ptr("required")
		}
		copier.Copy(&tools, options.Tools)
	}

	var maxTokens *int
	if options.MaxTokens > 0 {
		maxTokens = &options.MaxTokens
	}

	result := llms.Response{}

	for {
		reqBody := requestBody{
			Model:       c.model,
			Messages:    messages,
			Stream:      true,
			Tools:       tools,
			ToolChoice:  toolChoice,
			MaxTokens:   maxTokens,
			Temperature: options.Temperature,
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("error marshalling JSON: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("error creating HTTP request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		client := &http.Client{}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("error sending request: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		}

		toolCalls := []toolCall{}
		var response strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))

			if len(chunk) == 0 {
				continue
			}

			if chunk == endMessage {
				break
			}

			var responseBody streamingResponseBody
			err := json.Unmarshal([]byte(chunk), &responseBody)
			if err != nil {
				log.Println("Error unmarshalling JSON:", err)
				continue
			}
			if len(responseBody.Choices) == 0 {
				continue
			}
			if len(responseBody.Choices[0].Delta.ToolCalls) > 0 {
				toolCalls = append(toolCalls, responseBody.Choices[0].Delta.ToolCalls...)
			}

			content := responseBody.Choices[0].Delta.Content
			response.WriteString(content)
			if options.Stream != nil && content != "" {
				options.Stream(content)
			}
		}

		if err := scanner.Err(); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				resp.Body.Close()
				return nil, ctxErr
			}
			log.Println("Error reading streamed response:", err)
		}
		if err := resp.Body.Close(); err != nil {
			log.Println("Error closing response body:", err)
		}

		messages = append(messages, message{
			Role:      messageRoleAssistant,
			Content:   response.String(),
			ToolCalls: toolCalls,
		})
		result.Content += response.String()

		if len(toolCalls) == 0 {
			return &result, nil
		}

		for _, tCall := range toolCalls {
			executed := llms.ToolCall{
				ID:        tCall.ID,
				Name:      tCall.Function.Name,
				Arguments: tCall.Function.Arguments,
			}
			for _, tool := range options.Tools {
				if tool.Function.Name != tCall.Function.Name {
					continue
				}
				resp, err := tool.Execute(tCall.Function.Arguments)
				if err != nil {
					log.Println("Error executing tool:", err)
				}
				executed.Response = resp
				messages = append(messages, message{
					ToolCallID: tCall.ID,
					Role:       messageRoleTool,
					Content:    resp,
				})
			}
			result.ToolCalls = append(result.ToolCalls, executed)
		}

		// A forced choice binds the first round only; keeping it would
		// never let the model produce the closing message.
		if toolChoice != nil {
			toolChoice = utils.Ptr("auto")
		}
	}
}

type requestBody struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Stream      bool      `json:"stream"`
	ToolChoice  *string   `json:"tool_choice,omitempty"`
	Tools       []Tool    `json:"tools,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// Tool is the chat-completions wire form of a tool definition.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters,omitempty"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Role         string     `json:"role,omitempty"`
			Content      string     `json:"content,omitempty"`
			ToolCalls    []toolCall `json:"tool_calls,omitempty"`
			Reasoning    string     `json:"reasoning,omitempty"`
			Channel      string     `json:"channel,omitempty"`
			FinishReason *string    `json:"finish_reason,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		QueueTime               float64 `json:"queue_time"`
		PromptTokens            int     `json:"prompt_tokens"`
		PromptTime              float64 `json:"prompt_time"`
		CompletionTokens        int     `json:"completion_tokens"`
		CompletionTime          float64 `json:"completion_time"`
		TotalTokens             int     `json:"total_tokens"`
		TotalTime               float64 `json:"total_time"`
		CompletionTokensDetails *struct {
			ReasoningTokens int `json:"reasoning_tokens"`
		}
	} `json:"usage"`
}
