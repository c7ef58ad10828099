package llms

import "context"

// Stream is a lazy sequence of response chunks. Chunks performs the
// request on first pull; the iterator ends after the provider's explicit
// end-of-stream marker or an error.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamRoleChunk interface {
	StreamChunk
	Role() string
}

type StreamReasoningChunk interface {
	StreamChunk
	Reasoning() string
	Channel() string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

type StreamToolCallChunk interface {
	StreamChunk
	ToolCall() ToolCall
}

type StreamUsageChunk interface {
	StreamChunk
	Usage() Usage
}

type Usage struct {
	// InputTokens represents the number of input tokens.
	InputTokens int
	// InputTokensDetails represents a detailed breakdown of the input tokens.
	InputTokensDetails *InputTokensDetails
	// OutputTokens represents the number of output tokens.
	OutputTokens int
	// OutputTokensDetails represents a detailed breakdown of the output tokens.
	OutputTokensDetails *OutputTokensDetails
	// TotalTokens represents the total number of tokens used.
	TotalTokens int

	// QueueTime represents the time it took to queue the request.
	//
	// Note: This might be just an approximation.
	QueueTime float64
	// InputProcessingTime represents the time it took to process the input.
	//
	// Note: This might be just an approximation.
	InputProcessingTime float64
	// OutputProcessingTime represents the time it took to process the output.
	//
	// Note: This might be just an approximation.
	OutputProcessingTime float64
	// TotalTime represents the total time it took to complete the request.
	//
	// Note: This might be just an approximation.
	TotalTime float64
}

// InputTokensDetails represents a detailed breakdown of the input tokens.
type InputTokensDetails struct {
	// CachedTokens represents the number of tokens that were retrieved from the
	// cache.
	CachedTokens int
}

// OutputTokensDetails represents a detailed breakdown of the output tokens.
type OutputTokensDetails struct {
	// ReasoningTokens represents the number of reasoning tokens.
	ReasoningTokens int
}
