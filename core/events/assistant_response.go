package events

const (
	// KindAssistantResponseStarted identifies response generation start.
	KindAssistantResponseStarted Kind = "assistant_response.started"
	// KindAssistantResponseSegment identifies streamed assistant response text.
	KindAssistantResponseSegment Kind = "assistant_response.segment"
	// KindAssistantResponseFinal identifies assistant response stream completion.
	KindAssistantResponseFinal Kind = "assistant_response.final"
)

// AssistantResponseStarted marks the start of assistant response generation.
type AssistantResponseStarted struct{ Base }

// NewAssistantResponseStarted creates an assistant response started event.
func NewAssistantResponseStarted() AssistantResponseStarted {
	return AssistantResponseStarted{Base: NewBase(KindAssistantResponseStarted)}
}

// AssistantResponseSegment carries a streamed assistant response text segment.
type AssistantResponseSegment struct {
	Base
	Segment string
}

// NewAssistantResponseSegment creates an assistant response segment event.
func NewAssistantResponseSegment(segment string) AssistantResponseSegment {
	return AssistantResponseSegment{Base: NewBase(KindAssistantResponseSegment), Segment: segment}
}

// AssistantResponseFinal marks assistant response stream completion and
// carries the assembled response content.
type AssistantResponseFinal struct {
	Base
	Content string
}

// NewAssistantResponseFinal creates an assistant response final event.
func NewAssistantResponseFinal(content string) AssistantResponseFinal {
	return AssistantResponseFinal{Base: NewBase(KindAssistantResponseFinal), Content: content}
}
