package openai

import "github.com/koscakluka/voicepipe/core/llms"

// inputItem is one entry in the Responses API input array. Type selects
// the variant; the remaining fields apply per variant.
type inputItem struct {
	Type itemType `json:"type"`

	Role    messageRole `json:"role,omitempty"`
	Content string      `json:"content,omitempty"`

	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
	Status    string `json:"status,omitempty"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleDeveloper messageRole = "developer"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

type itemType string

const (
	itemTypeMessage            itemType = "message"
	itemTypeFunctionCall       itemType = "function_call"
	itemTypeFunctionCallOutput itemType = "function_call_output"
)

// toInput flattens conversation turns into Responses API input items.
// Tool calls become standalone function_call items followed by their
// function_call_output results rather than riding on an assistant
// message, and instructions go in as a developer message.
func toInput(instructions string, turns []llms.Turn) []inputItem {
	input := []inputItem{}
	for _, msg := range llms.ToMessages(instructions, turns) {
		switch msg.Role {
		case llms.RoleSystem:
			input = append(input, inputItem{
				Type:    itemTypeMessage,
				Role:    messageRoleDeveloper,
				Content: msg.Content,
			})

		case llms.RoleUser:
			input = append(input, inputItem{
				Type:    itemTypeMessage,
				Role:    messageRoleUser,
				Content: msg.Content,
			})

		case llms.RoleAssistant:
			for _, toolCall := range msg.ToolCalls {
				input = append(input, inputItem{
					Type:      itemTypeFunctionCall,
					CallID:    toolCall.ID,
					Name:      toolCall.Name,
					Arguments: toolCall.Arguments,
					Status:    "completed",
				})
			}
			if msg.Content != "" {
				input = append(input, inputItem{
					Type:    itemTypeMessage,
					Role:    messageRoleAssistant,
					Content: msg.Content,
				})
			}

		case llms.RoleTool:
			input = append(input, inputItem{
				Type:   itemTypeFunctionCallOutput,
				CallID: msg.ToolCallID,
				Output: msg.Content,
			})
		}
	}
	return input
}
