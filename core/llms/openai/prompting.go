package openai

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

	input := toInput(options.Instructions, options.Turns)
	input = append(input, inputItem{
		Type:    itemTypeMessage,
		Role:    messageRoleUser,
		Content: prompt,
	})

	var toolChoice *string
	var tools []tool
	if options.Tools != nil {
		toolChoice = utils.Ptr("auto")
		if options.ForcedToolsCall {
			toolChoice = utils.Ptr("required")
		}
		tools = toTools(options.Tools)
	}

	var maxOutputTokens *int
	if options.MaxTokens > 0 {
		maxOutputTokens = &options.MaxTokens
	}

	result := llms.Response{}

	for {
		reqBody := requestBody{
			Model:           c.model,
			Input:           input,
			Stream:          true,
			Tools:           tools,
			ToolChoice:      toolChoice,
			MaxOutputTokens: maxOutputTokens,
			Temperature:     options.Temperature,
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

		toolCalls := []streamingBodyOutputItemDoneItemFunctionCall{}
		var response strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))

			if len(line) == 0 {
				continue
			}

			// Everything of interest arrives as an event/data line pair;
			// stray data lines are skipped.
			if !strings.HasPrefix(line, eventPrefix) {
				continue
			}
			event := strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))

			scanner.Scan()
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))

			switch streamingEventType(event) {
			case streamingEventResponseOutputTextDelta:
				var responseBody streamingBodyResponseTextDelta
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					log.Println("Error unmarshalling JSON:", err)
					continue
				}
				response.WriteString(responseBody.Delta)
				if options.Stream != nil && responseBody.Delta != "" {
					options.Stream(responseBody.Delta)
				}

			case streamingEventResponseOutputItemDone:
				var responseBody streamingBodyOutputItemDone[streamingBodyOutputItemDoneItem]
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					log.Println("Error unmarshalling JSON:", err)
					continue
				}
				if responseBody.Item.Type != "function_call" {
					continue
				}
				var call streamingBodyOutputItemDone[streamingBodyOutputItemDoneItemFunctionCall]
				if err := json.Unmarshal([]byte(chunk), &call); err != nil {
					log.Println("Error unmarshalling JSON:", err)
					continue
				}
				toolCalls = append(toolCalls, call.Item)
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

		if response.Len() > 0 {
			input = append(input, inputItem{
				Type:    itemTypeMessage,
				Role:    messageRoleAssistant,
				Content: response.String(),
			})
		}
		result.Content += response.String()

		if len(toolCalls) == 0 {
			return &result, nil
		}

		for _, call := range toolCalls {
			input = append(input, inputItem{
				Type:      itemTypeFunctionCall,
				CallID:    call.CallID,
				Name:      call.Name,
				Arguments: call.Arguments,
				Status:    "completed",
			})
			executed := llms.ToolCall{
				ID:        call.CallID,
				Name:      call.Name,
				Arguments: call.Arguments,
			}
			for _, tool := range options.Tools {
				if tool.Function.Name != call.Name {
					continue
				}
				resp, err := tool.Execute(call.Arguments)
				if err != nil {
					log.Println("Error executing tool:", err)
				}
				executed.Response = resp
				input = append(input, inputItem{
					Type:   itemTypeFunctionCallOutput,
					CallID: call.CallID,
					Output: resp,
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
	Model           string      `json:"model"`
	Input           []inputItem `json:"input"`
	Stream          bool        `json:"stream"`
	ToolChoice      *string     `json:"tool_choice,omitempty"`
	Tools           []tool      `json:"tools,omitempty"`
	MaxOutputTokens *int        `json:"max_output_tokens,omitempty"`
	Temperature     *float64    `json:"temperature,omitempty"`
}

// tool is the Responses API wire form of a tool definition. Unlike the
// chat-completions shape, the function fields sit directly on the tool.
type tool struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters,omitempty"`
}

func toTools(tools []llms.Tool) []tool {
	wire := make([]tool, 0, len(tools))
	for _, t := range tools {
		wire = append(wire, tool{
			Type:        t.Type,
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return wire
}
