package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/koscakluka/voicepipe/core/llms"
)

type message struct {
	Role    messageRole    `json:"role"`
	Content []contentBlock `json:"content"`
}

type messageRole string

const (
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

type contentBlock struct {
	Type string `json:"type"`

	// text blocks
	Text string `json:"text,omitempty"`

	// tool_use blocks
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result blocks
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

const (
	contentTypeText       = "text"
	contentTypeToolUse    = "tool_use"
	contentTypeToolResult = "tool_result"
)

// toMessages rebuilds the conversation in the messages API shape: the
// system prompt travels in its own request field, tool results come back
// as user-role tool_result blocks referencing the assistant's tool_use.
func toMessages(turns []llms.Turn) []message {
	messages := []message{}
	for _, turn := range turns {
		if turn.Prompt != "" {
			messages = append(messages, message{
				Role:    messageRoleUser,
				Content: []contentBlock{{Type: contentTypeText, Text: turn.Prompt}},
			})
		}

		assistantBlocks := []contentBlock{}
		resultBlocks := []contentBlock{}
		for _, toolCall := range turn.ToolCalls {
			arguments := toolCall.Arguments
			if strings.TrimSpace(arguments) == "" {
				arguments = "{}"
			}
			assistantBlocks = append(assistantBlocks, contentBlock{
				Type:  contentTypeToolUse,
				ID:    toolCall.ID,
				Name:  toolCall.Name,
				Input: json.RawMessage(arguments),
			})
			if toolCall.Response != "" {
				resultBlocks = append(resultBlocks, contentBlock{
					Type:      contentTypeToolResult,
					ToolUseID: toolCall.ID,
					Content:   toolCall.Response,
				})
			}
		}
		if content := turn.AssistantContent(); content != "" {
			assistantBlocks = append(assistantBlocks, contentBlock{
				Type: contentTypeText,
				Text: content,
			})
		}

		if len(assistantBlocks) > 0 {
			messages = append(messages, message{
				Role:    messageRoleAssistant,
				Content: assistantBlocks,
			})
		}
		if len(resultBlocks) > 0 {
			messages = append(messages, message{
				Role:    messageRoleUser,
				Content: resultBlocks,
			})
		}
	}
	return messages
}

type tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

func toTools(tools []llms.Tool) []tool {
	if len(tools) == 0 {
		return nil
	}

	wireTools := make([]tool, 0, len(tools))
	for _, t := range tools {
		inputSchema := t.Function.Parameters
		if inputSchema == nil {
			// input_schema is mandatory, tools without parameters get an
			// empty object schema.
			inputSchema = &jsonschema.Schema{Type: "object"}
		}
		wireTools = append(wireTools, tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: inputSchema,
		})
	}
	return wireTools
}
