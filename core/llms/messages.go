package llms

// Turn is a single exchange in the conversation: the prompt that
// initiated it and the assistant's part.
type Turn struct {
	ID string

	// Prompt is what initiated the turn: the user's transcribed utterance
	// or an injected text prompt.
	Prompt string

	// Response is the full generated response text.
	Response string
	// Spoken is the portion of Response that was audibly played. It lags
	// Response while speaking and stays shorter when the turn is cancelled
	// mid-playback.
	Spoken string

	ToolCalls []ToolCall

	// Cancelled marks a turn whose response was cut short, so providers
	// should represent the assistant part by what was actually delivered.
	Cancelled bool
}

// AssistantContent is the assistant text a provider should put on the
// wire for this turn when rebuilding history.
func (t Turn) AssistantContent() string {
	if t.Cancelled && t.Spoken != "" {
		return t.Spoken
	}
	return t.Response
}

func (t Turn) HasAssistantPart() bool {
	return t.Response != "" || t.Spoken != "" || len(t.ToolCalls) > 0
}

// Response is the fully assembled result of one generation request.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *Usage
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
	Response  string
}

// Message is the flat role-based form providers translate Turns into.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToMessages flattens conversation turns into role-based messages, with
// tool calls and their results interleaved the way chat-completions style
// providers expect them.
func ToMessages(instructions string, turns []Turn) []Message {
	var messages []Message
	if instructions != "" {
		messages = append(messages, Message{
			Role:    RoleSystem,
			Content: instructions,
		})
	}

	for _, turn := range turns {
		if turn.Prompt != "" {
			messages = append(messages, Message{
				Role:    RoleUser,
				Content: turn.Prompt,
			})
		}

		if len(turn.ToolCalls) > 0 {
			msg := Message{Role: RoleAssistant}
			responseMsgs := []Message{}
			for _, toolCall := range turn.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, ToolCall{
					ID:        toolCall.ID,
					Name:      toolCall.Name,
					Arguments: toolCall.Arguments,
				})
				if toolCall.Response != "" {
					responseMsgs = append(responseMsgs, Message{
						Role:       RoleTool,
						Content:    toolCall.Response,
						ToolCallID: toolCall.ID,
					})
				}
			}
			messages = append(messages, msg)
			messages = append(messages, responseMsgs...)
		}

		if content := turn.AssistantContent(); content != "" {
			messages = append(messages, Message{
				Role:    RoleAssistant,
				Content: content,
			})
		}
	}
	return messages
}
