package events

const (
	// KindToolCallStarted identifies tool call execution start.
	KindToolCallStarted Kind = "tool_call.started"
	// KindToolCallCompleted identifies successful tool call completion.
	KindToolCallCompleted Kind = "tool_call.completed"
	// KindToolCallFailed identifies tool call failure.
	KindToolCallFailed Kind = "tool_call.failed"
)

// ToolCallStarted marks start of tool execution. The generation client
// drives execution with the tool's name and serialized arguments only, so
// there is no provider call id to carry.
type ToolCallStarted struct {
	Base
	Name      string
	Arguments string
}

// NewToolCallStarted creates a tool call started event.
func NewToolCallStarted(name, arguments string) ToolCallStarted {
	return ToolCallStarted{Base: NewBase(KindToolCallStarted), Name: name, Arguments: arguments}
}

// ToolCallCompleted marks successful tool execution.
type ToolCallCompleted struct {
	Base
	Name     string
	Response string
}

// NewToolCallCompleted creates a tool call completed event.
func NewToolCallCompleted(name, response string) ToolCallCompleted {
	return ToolCallCompleted{Base: NewBase(KindToolCallCompleted), Name: name, Response: response}
}

// ToolCallFailed marks failed tool execution.
type ToolCallFailed struct {
	Base
	Name  string
	Error string
}

// NewToolCallFailed creates a tool call failed event.
func NewToolCallFailed(name, err string) ToolCallFailed {
	return ToolCallFailed{Base: NewBase(KindToolCallFailed), Name: name, Error: err}
}
