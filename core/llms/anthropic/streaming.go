package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/koscakluka/voicepipe/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func (c *Client) PromptWithStream(
	_ context.Context,
	prompt *string,
	opts ...llms.PromptOption,
) llms.Stream {
	options := llms.PromptOptions{Tools: slices.Clone(c.tools), MaxTokens: c.maxTokens}
	for _, opt := range opts {
		opt(&options)
	}

	messages := toMessages(options.Turns)
	if prompt != nil {
		messages = append(messages, message{
			Role:    messageRoleUser,
			Content: []contentBlock{{Type: contentTypeText, Text: *prompt}},
		})
	}

	return &Stream{
		apiKey:          c.apiKey,
		model:           c.model,
		system:          options.Instructions,
		tools:           toTools(options.Tools),
		forcedToolsCall: options.ForcedToolsCall,
		messages:        messages,
		maxTokens:       options.MaxTokens,
		temperature:     options.Temperature,
	}
}

type Stream struct {
	apiKey string

	model           string
	system          string
	tools           []tool
	forcedToolsCall bool
	messages        []message
	maxTokens       int
	temperature     *float64
}

type streamingEventType string

const (
	streamingEventMessageStart      streamingEventType = "message_start"
	streamingEventContentBlockStart streamingEventType = "content_block_start"
	streamingEventContentBlockDelta streamingEventType = "content_block_delta"
	streamingEventContentBlockStop  streamingEventType = "content_block_stop"
	streamingEventMessageDelta      streamingEventType = "message_delta"
	streamingEventMessageStop       streamingEventType = "message_stop"
	streamingEventPing              streamingEventType = "ping"
	streamingEventError             streamingEventType = "error"
)

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.model))
		var toolNames []string
		for _, tool := range s.tools {
			toolNames = append(toolNames, tool.Name)
		}
		span.SetAttributes(attribute.StringSlice("request.available_tools", toolNames))

		var choice *toolChoice
		if s.tools != nil {
			choice = &toolChoice{Type: "auto"}
			if s.forcedToolsCall {
				choice = &toolChoice{Type: "any"}
			}
		}

		maxTokens := s.maxTokens
		if maxTokens <= 0 {
			maxTokens = defaultMaxTokens
		}

		reqBody := streamingRequestBody{
			Model:       s.model,
			System:      s.system,
			Messages:    s.messages,
			MaxTokens:   maxTokens,
			Stream:      true,
			Tools:       s.tools,
			ToolChoice:  choice,
			Temperature: s.temperature,
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			err = fmt.Errorf("error marshalling JSON: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", s.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)

		span.SetAttributes(attribute.String("request.url", req.URL.String()))
		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)}
		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := client.Do(req)
		if err != nil {
			err = fmt.Errorf("error sending request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err != nil {
				err = fmt.Errorf("error reading error body: %w", err)
				span.RecordError(err)
				span.SetAttributes(attribute.String("error", err.Error()))
			} else {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}

			err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		var toolCallNames []string
		defer func() {
			span.SetAttributes(attribute.StringSlice("response.tool_calls", toolCallNames))
		}()

		usage := llms.Usage{}
		var finishReason *string
		pendingToolCalls := map[int]*pendingToolCall{}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			setRequestToFirstTokenTime(span)

			if len(line) == 0 {
				continue
			}

			if !strings.HasPrefix(line, eventPrefix) {
				continue
			}

			event := strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))

			scanner.Scan()
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))

			switch streamingEventType(event) {
			case streamingEventPing:

			case streamingEventMessageStart:
				var responseBody streamingBodyMessageStart
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					if !yield(nil, fmt.Errorf("error unmarshalling JSON: %w", err)) {
						return
					}
					continue
				}
				usage.InputTokens = responseBody.Message.Usage.InputTokens
				if !yield(StreamRoleChunk{role: responseBody.Message.Role}, nil) {
					return
				}

			case streamingEventContentBlockStart:
				var responseBody streamingBodyContentBlockStart
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					if !yield(nil, fmt.Errorf("error unmarshalling JSON: %w", err)) {
						return
					}
					continue
				}
				if responseBody.ContentBlock.Type == contentTypeToolUse {
					pendingToolCalls[responseBody.Index] = &pendingToolCall{
						id:   responseBody.ContentBlock.ID,
						name: responseBody.ContentBlock.Name,
					}
				}

			case streamingEventContentBlockDelta:
				var responseBody streamingBodyContentBlockDelta
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					if !yield(nil, fmt.Errorf("error unmarshalling JSON: %w", err)) {
						return
					}
					continue
				}
				switch responseBody.Delta.Type {
				case "text_delta":
					if !yield(StreamContentChunk{content: responseBody.Delta.Text}, nil) {
						return
					}
				case "thinking_delta":
					if !yield(StreamReasoningChunk{reasoning: responseBody.Delta.Thinking}, nil) {
						return
					}
				case "input_json_delta":
					if pending, ok := pendingToolCalls[responseBody.Index]; ok {
						pending.arguments.WriteString(responseBody.Delta.PartialJSON)
					}
				}

			case streamingEventContentBlockStop:
				var responseBody streamingBodyContentBlockStop
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					if !yield(nil, fmt.Errorf("error unmarshalling JSON: %w", err)) {
						return
					}
					continue
				}
				pending, ok := pendingToolCalls[responseBody.Index]
				if !ok {
					continue
				}
				delete(pendingToolCalls, responseBody.Index)
				toolCallNames = append(toolCallNames, pending.name)
				arguments := pending.arguments.String()
				if arguments == "" {
					arguments = "{}"
				}
				if !yield(StreamToolCallChunk{
					toolCall: llms.ToolCall{
						ID:        pending.id,
						Name:      pending.name,
						Arguments: arguments,
					},
				}, nil) {
					return
				}

			case streamingEventMessageDelta:
				var responseBody streamingBodyMessageDelta
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					if !yield(nil, fmt.Errorf("error unmarshalling JSON: %w", err)) {
						return
					}
					continue
				}
				if responseBody.Delta.StopReason != nil {
					finishReason = responseBody.Delta.StopReason
				}
				usage.OutputTokens = responseBody.Usage.OutputTokens

			case streamingEventMessageStop:
				usage.TotalTokens = usage.InputTokens + usage.OutputTokens
				span.SetAttributes(attribute.Int("usage.input", usage.InputTokens))
				span.SetAttributes(attribute.Int("usage.output", usage.OutputTokens))
				span.SetAttributes(attribute.Int("usage.total", usage.TotalTokens))
				if !yield(StreamUsageChunk{finishReason: finishReason, usage: usage}, nil) {
					return
				}
				return

			case streamingEventError:
				var responseBody streamingBodyError
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					if !yield(nil, fmt.Errorf("error unmarshalling JSON: %w", err)) {
						return
					}
					continue
				}
				err := fmt.Errorf("stream error (%s): %s", responseBody.Error.Type, responseBody.Error.Message)
				span.RecordError(err)
				if !yield(nil, err) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("error reading streamed response: %w", err))
			return
		}
	}
}

type pendingToolCall struct {
	id        string
	name      string
	arguments strings.Builder
}

type streamingRequestBody struct {
	Model       string      `json:"model"`
	System      string      `json:"system,omitempty"`
	Messages    []message   `json:"messages"`
	MaxTokens   int         `json:"max_tokens"`
	Stream      bool        `json:"stream"`
	Tools       []tool      `json:"tools,omitempty"`
	ToolChoice  *toolChoice `json:"tool_choice,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
}

type toolChoice struct {
	Type string `json:"type"`
}

type streamingBodyMessageStart struct {
	Type    string `json:"type"`
	Message struct {
		ID    string `json:"id"`
		Role  string `json:"role"`
		Model string `json:"model"`
		Usage usage  `json:"usage"`
	} `json:"message"`
}

type streamingBodyContentBlockStart struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
}

type streamingBodyContentBlockDelta struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
}

type streamingBodyContentBlockStop struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type streamingBodyMessageDelta struct {
	Type  string `json:"type"`
	Delta struct {
		StopReason   *string `json:"stop_reason"`
		StopSequence *string `json:"stop_sequence"`
	} `json:"delta"`
	Usage usage `json:"usage"`
}

type streamingBodyError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type StreamRoleChunk struct {
	finishReason *string
	role         string
}

func (s StreamRoleChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamRoleChunk) Role() string {
	return s.role
}

type StreamReasoningChunk struct {
	finishReason *string
	reasoning    string
}

func (s StreamReasoningChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamReasoningChunk) Reasoning() string {
	return s.reasoning
}

func (s StreamReasoningChunk) Channel() string {
	return "thinking"
}

type StreamContentChunk struct {
	finishReason *string
	content      string
}

func (s StreamContentChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamContentChunk) Content() string {
	return s.content
}

type StreamToolCallChunk struct {
	finishReason *string
	toolCall     llms.ToolCall
}

func (s StreamToolCallChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamToolCallChunk) ToolCall() llms.ToolCall {
	return s.toolCall
}

type StreamUsageChunk struct {
	finishReason *string
	usage        llms.Usage
}

func (s StreamUsageChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamUsageChunk) Usage() llms.Usage {
	return s.usage
}
