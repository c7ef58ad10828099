package anthropic

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/koscakluka/voicepipe/core/llms"
)

// Prompt sends a prompt and blocks until the full response is assembled,
// executing any requested tools and feeding their results back until the
// model stops calling tools. The optional stream callback still receives
// content incrementally as it arrives.
func (c *Client) Prompt(
	ctx context.Context,
	prompt string,
	opts ...llms.PromptOption,
) (*llms.Response, error) {
	options := llms.PromptOptions{Tools: slices.Clone(c.tools), MaxTokens: c.maxTokens}
	for _, opt := range opts {
		opt(&options)
	}

	messages := toMessages(options.Turns)
	messages = append(messages, message{
		Role:    messageRoleUser,
		Content: []contentBlock{{Type: contentTypeText, Text: prompt}},
	})

	maxTokens := options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	result := llms.Response{}

	forcedToolsCall := options.ForcedToolsCall
	for {
		stream := Stream{
			apiKey:          c.apiKey,
			model:           c.model,
			system:          options.Instructions,
			tools:           toTools(options.Tools),
			forcedToolsCall: forcedToolsCall,
			messages:        messages,
			maxTokens:       maxTokens,
			temperature:     options.Temperature,
		}
		// A forced choice binds the first round only; keeping it would
		// never let the model produce the closing message.
		forcedToolsCall = false

		var response strings.Builder
		toolCalls := []llms.ToolCall{}
		var usage *llms.Usage
		var streamErr error
		for chunk, err := range stream.Chunks(ctx) {
			if err != nil {
				streamErr = err
				break
			}

			switch chunk := chunk.(type) {
			case llms.StreamContentChunk:
				content := chunk.Content()
				response.WriteString(content)
				if options.Stream != nil && content != "" {
					options.Stream(content)
				}

			case llms.StreamToolCallChunk:
				toolCalls = append(toolCalls, chunk.ToolCall())

			case llms.StreamUsageChunk:
				chunkUsage := chunk.Usage()
				usage = &chunkUsage
			}
		}
		if streamErr != nil {
			return nil, fmt.Errorf("failed to stream response: %w", streamErr)
		}

		result.Content += response.String()
		if usage != nil {
			result.Usage = usage
		}

		if len(toolCalls) == 0 {
			return &result, nil
		}

		assistantBlocks := []contentBlock{}
		if response.Len() > 0 {
			assistantBlocks = append(assistantBlocks, contentBlock{
				Type: contentTypeText,
				Text: response.String(),
			})
		}
		resultBlocks := []contentBlock{}
		for _, tCall := range toolCalls {
			executed := tCall
			for _, tool := range options.Tools {
				if tool.Function.Name != tCall.Name {
					continue
				}
				resp, err := tool.Execute(tCall.Arguments)
				if err != nil {
					log.Println("Error executing tool:", err)
				}
				executed.Response = resp
			}
			result.ToolCalls = append(result.ToolCalls, executed)

			assistantBlocks = append(assistantBlocks, contentBlock{
				Type:  contentTypeToolUse,
				ID:    executed.ID,
				Name:  executed.Name,
				Input: []byte(executed.Arguments),
			})
			resultBlocks = append(resultBlocks, contentBlock{
				Type:      contentTypeToolResult,
				ToolUseID: executed.ID,
				Content:   executed.Response,
			})
		}

		messages = append(messages,
			message{Role: messageRoleAssistant, Content: assistantBlocks},
			message{Role: messageRoleUser, Content: resultBlocks},
		)
	}
}
