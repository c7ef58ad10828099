package groq

import (
	"github.com/koscakluka/voicepipe/core/llms"
)

type message struct {
	Role       messageRole `json:"role"`
	Content    string      `json:"content"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCall  `json:"tool_calls,omitempty"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
	messageRoleTool      messageRole = "tool"
)

type toolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func toMessages(instructions string, turns []llms.Turn) []message {
	messages := []message{}
	for _, msg := range llms.ToMessages(instructions, turns) {
		wireMessage := message{
			Role:       messageRole(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tCall := range msg.ToolCalls {
			wireMessage.ToolCalls = append(wireMessage.ToolCalls, toolCall{
				ID:   tCall.ID,
				Type: "function",
				Function: toolCallFunction{
					Name:      tCall.Name,
					Arguments: tCall.Arguments,
				},
			})
		}
		messages = append(messages, wireMessage)
	}
	return messages
}
