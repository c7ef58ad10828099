package openai

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
	"github.com/koscakluka/voicepipe/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func (c *Client) PromptWithStream(
	_ context.Context,
	prompt *string,
	opts ...llms.PromptOption,
) llms.Stream {
	options := llms.PromptOptions{Tools: slices.Clone(c.tools)}
	for _, opt := range opts {
		opt(&options)
	}

	input := toInput(options.Instructions, options.Turns)
	if prompt != nil {
		input = append(input, inputItem{
			Type:    itemTypeMessage,
			Role:    messageRoleUser,
			Content: *prompt,
		})
	}

	var tools []tool
	if options.Tools != nil {
		tools = toTools(options.Tools)
	}

	return &Stream{
		apiKey:          c.apiKey,
		model:           c.model,
		tools:           tools,
		forcedToolsCall: options.ForcedToolsCall,
		input:           input,
		maxTokens:       options.MaxTokens,
		temperature:     options.Temperature,
	}
}

type Stream struct {
	apiKey string

	model           string
	tools           []tool
	forcedToolsCall bool
	input           []inputItem
	maxTokens       int
	temperature     *float64
}

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

		var toolChoice *string
		if s.tools != nil {
			toolChoice = utils.Ptr("auto")
			if s.forcedToolsCall {
				toolChoice = utils.Ptr("required")
			}
		}

		var maxOutputTokens *int
		if s.maxTokens > 0 {
			maxOutputTokens = &s.maxTokens
		}

		reqBody := requestBody{
			Model:           s.model,
			Input:           s.input,
			Stream:          true,
			Tools:           s.tools,
			ToolChoice:      toolChoice,
			MaxOutputTokens: maxOutputTokens,
			Temperature:     s.temperature,
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
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

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

		var calledTools []string
		defer func() {
			span.SetAttributes(attribute.StringSlice("response.tool_calls", calledTools))
		}()

		usage := llms.Usage{}
		lapTime := time.Now()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
			setRequestToFirstTokenTime(span)

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
			case streamingEventResponseCreated, streamingEventResponseQueued:
				lapTime = time.Now()

			case streamingEventResponseInProgress:
				usage.QueueTime = time.Since(lapTime).Seconds()
				lapTime = time.Now()

			case streamingEventResponseOutputItemAdded:
				usage.InputProcessingTime = time.Since(lapTime).Seconds()
				lapTime = time.Now()

			case streamingEventResponseOutputTextDelta:
				var responseBody streamingBodyResponseTextDelta
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					err = fmt.Errorf("error unmarshalling JSON: %w", err)
					span.RecordError(err)
					if !yield(nil, err) {
						return
					}
					continue
				}
				if !yield(StreamContentChunk{content: responseBody.Delta}, nil) {
					return
				}

			case streamingEventResponseReasoningTextDelta,
				streamingEventResponseReasoningSummaryTextDelta:
				var responseBody streamingBodyResponseTextDelta
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					err = fmt.Errorf("error unmarshalling JSON: %w", err)
					span.RecordError(err)
					if !yield(nil, err) {
						return
					}
					continue
				}
				if !yield(StreamReasoningChunk{reasoning: responseBody.Delta}, nil) {
					return
				}

			case streamingEventResponseOutputItemDone:
				var responseBody streamingBodyOutputItemDone[streamingBodyOutputItemDoneItem]
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					err = fmt.Errorf("error unmarshalling JSON: %w", err)
					span.RecordError(err)
					if !yield(nil, err) {
						return
					}
					continue
				}
				if responseBody.Item.Type != "function_call" {
					continue
				}
				var call streamingBodyOutputItemDone[streamingBodyOutputItemDoneItemFunctionCall]
				if err := json.Unmarshal([]byte(chunk), &call); err != nil {
					err = fmt.Errorf("error unmarshalling JSON: %w", err)
					span.RecordError(err)
					if !yield(nil, err) {
						return
					}
					continue
				}
				calledTools = append(calledTools, call.Item.Name)
				if !yield(StreamToolCallChunk{
					toolCall: llms.ToolCall{
						ID:        call.Item.CallID,
						Name:      call.Item.Name,
						Arguments: call.Item.Arguments,
					},
				}, nil) {
					return
				}

			case streamingEventResponseCompleted:
				usage.OutputProcessingTime = time.Since(lapTime).Seconds()
				usage.TotalTime = usage.QueueTime + usage.InputProcessingTime + usage.OutputProcessingTime

				var responseBody streamingBodyResponseCompleted
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					err = fmt.Errorf("error unmarshalling JSON: %w", err)
					span.RecordError(err)
					if !yield(StreamUsageChunk{usage: usage}, nil) {
						return
					}
					if !yield(nil, err) {
						return
					}
					continue
				}

				if responseBody.Response.Usage != nil {
					usage.InputTokens = responseBody.Response.Usage.InputTokens
					usage.OutputTokens = responseBody.Response.Usage.OutputTokens
					usage.TotalTokens = responseBody.Response.Usage.TotalTokens

					span.SetAttributes(attribute.Int("usage.input", usage.InputTokens))
					span.SetAttributes(attribute.Int("usage.output", usage.OutputTokens))
					span.SetAttributes(attribute.Int("usage.total", usage.TotalTokens))

					if details := responseBody.Response.Usage.InputTokensDetails; details != nil {
						usage.InputTokensDetails = &llms.InputTokensDetails{
							CachedTokens: details.CachedTokens,
						}
					}
					if details := responseBody.Response.Usage.OutputTokensDetails; details != nil {
						span.SetAttributes(attribute.Int("usage.reasoning", details.ReasoningTokens))
						usage.OutputTokensDetails = &llms.OutputTokensDetails{
							ReasoningTokens: details.ReasoningTokens,
						}
					}
				}

				if !yield(StreamUsageChunk{usage: usage}, nil) {
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

type streamingEventType string

const (
	streamingEventResponseOutputTextDelta           streamingEventType = "response.output_text.delta"
	streamingEventResponseOutputItemAdded           streamingEventType = "response.output_item.added"
	streamingEventResponseOutputItemDone            streamingEventType = "response.output_item.done"
	streamingEventResponseReasoningTextDelta        streamingEventType = "response.reasoning_text.delta"
	streamingEventResponseReasoningSummaryTextDelta streamingEventType = "response.reasoning_summary_text.delta"
	streamingEventResponseCreated                   streamingEventType = "response.created"
	streamingEventResponseQueued                    streamingEventType = "response.queued"
	streamingEventResponseInProgress                streamingEventType = "response.in_progress"
	streamingEventResponseCompleted                 streamingEventType = "response.completed"
)

type streamingBodyResponseTextDelta struct {
	Delta string `json:"delta"`
}

type streamingBodyOutputItemDone[T any] struct {
	Item T `json:"item"`
}

type streamingBodyOutputItemDoneItem struct {
	Type string `json:"type"`
}

type streamingBodyOutputItemDoneItemFunctionCall struct {
	Arguments string `json:"arguments"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
}

// streamingBodyResponseCompleted is emitted when the model response is
// complete.
type streamingBodyResponseCompleted struct {
	Response struct {
		Usage *responseBodyUsage `json:"usage"`
	} `json:"response"`
}

type responseBodyUsage struct {
	InputTokens        int `json:"input_tokens"`
	InputTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"input_tokens_details"`
	OutputTokens        int `json:"output_tokens"`
	OutputTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"output_tokens_details"`
	TotalTokens int `json:"total_tokens"`
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
	channel      string
}

func (s StreamReasoningChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamReasoningChunk) Reasoning() string {
	return s.reasoning
}

func (s StreamReasoningChunk) Channel() string {
	return s.channel
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
