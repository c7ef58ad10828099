package pipeline

import (
	"context"
	"fmt"

	"github.com/koscakluka/voicepipe/core/events"
	"github.com/koscakluka/voicepipe/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// llm wraps the configured generation client together with everything a
// prompt needs beyond the trigger itself: the system prompt, the
// effective tool list and the event bridge reporting tool activity.
// Providers run their own tool rounds mid-prompt, so there is no call
// loop here; tools are observed instead.
type llm struct {
	client LLM

	systemPrompt string
	tools        []llms.Tool

	emitEvent eventEmitter
}

func newLLM() llm {
	return llm{emitEvent: noopEventEmitter}
}

func (runtime *llm) set(client LLM) {
	if runtime == nil {
		return
	}

	runtime.client = client
}

func (runtime *llm) setSystemPrompt(prompt string) {
	if runtime == nil {
		return
	}

	runtime.systemPrompt = prompt
}

func (runtime *llm) setTools(tools ...llms.Tool) {
	if runtime == nil {
		return
	}

	runtime.tools = append([]llms.Tool(nil), tools...)
}

func (runtime *llm) appendTools(tools ...llms.Tool) {
	if runtime == nil || len(tools) == 0 {
		return
	}

	runtime.tools = append(runtime.tools, tools...)
}

func (runtime *llm) setEventEmitter(emitEvent eventEmitter) {
	if runtime == nil || emitEvent == nil {
		return
	}

	runtime.emitEvent = emitEvent
}

func (runtime *llm) isConfigured() bool {
	return runtime != nil && !isNilClient(runtime.client)
}

func (runtime *llm) availableTools() []llms.Tool {
	if runtime == nil {
		return nil
	}

	tools := make([]llms.Tool, len(runtime.tools))
	copy(tools, runtime.tools)
	return tools
}

func (runtime *llm) snapshot() llm {
	if runtime == nil {
		return newLLM()
	}

	snapshot := llm{
		client:       runtime.client,
		systemPrompt: runtime.systemPrompt,
		emitEvent:    runtime.emitEvent,
	}
	if len(runtime.tools) > 0 {
		snapshot.tools = make([]llms.Tool, len(runtime.tools))
		copy(snapshot.tools, runtime.tools)
	}

	return snapshot
}

// observedTools returns copies of the tool list whose executions surface
// as tool_call events. Providers execute tools inside their own prompt
// loop, so observation is attached to the tools themselves.
func (runtime *llm) observedTools() []llms.Tool {
	if runtime == nil || len(runtime.tools) == 0 {
		return nil
	}

	observed := make([]llms.Tool, len(runtime.tools))
	for i, tool := range runtime.tools {
		observed[i] = tool.Observed(
			func(name, arguments string) {
				runtime.emitEvent(events.NewToolCallStarted(name, arguments))
			},
			func(name, response string, err error) {
				if err != nil {
					runtime.emitEvent(events.NewToolCallFailed(name, err.Error()))
					return
				}
				runtime.emitEvent(events.NewToolCallCompleted(name, response))
			},
		)
	}
	return observed
}

// generate runs one generation round-trip for the given prompt,
// streaming content to onChunk in arrival order. Once cancelled reports
// true no further chunks are forwarded and any prompt failure is treated
// as part of the orderly wind-down rather than an error.
func (runtime *llm) generate(
	ctx context.Context,
	prompt string,
	history []llms.Turn,
	onChunk func(string),
	cancelled func() bool,
) (*llms.Response, error) {
	if !runtime.isConfigured() {
		return nil, configurationError(StageGeneration, ErrLLMNotConfigured)
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	span := trace.SpanFromContext(ctx)

	runtime.emitEvent(events.NewAssistantResponseStarted())
	response, err := runtime.client.Prompt(ctx, prompt,
		llms.WithSystemPrompt(runtime.systemPrompt),
		llms.WithTurns(history...),
		llms.WithTools(runtime.observedTools()...),
		llms.WithStream(func(chunk string) {
			if cancelled() {
				return
			}

			runtime.emitEvent(events.NewAssistantResponseSegment(chunk))
			if onChunk != nil {
				onChunk(chunk)
			}
		}),
	)
	if err != nil {
		if cancelled() || ctx.Err() != nil {
			return nil, nil
		}
		err = fmt.Errorf("failed to prompt llm: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, connectionError(StageGeneration, err)
	}

	runtime.emitEvent(events.NewAssistantResponseFinal(response.Content))
	return response, nil
}

// callTool forces a round against the named tool: the model is made to
// call it and the provider executes it mid-prompt. The framing text the
// model produces around the call is discarded; the tool's effect and its
// events are the point.
func (runtime *llm) callTool(ctx context.Context, name string, prompt string, history []llms.Turn) error {
	if !runtime.isConfigured() {
		return configurationError(StageGeneration, ErrLLMNotConfigured)
	}

	ctx, span := tracer.Start(ctx, "call tool with prompt")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	var forced *llms.Tool
	observed := runtime.observedTools()
	for i := range observed {
		if observed[i].Function.Name == name {
			forced = &observed[i]
			break
		}
	}
	if forced == nil {
		err := fmt.Errorf("tool not found: %s", name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if _, err := runtime.client.Prompt(ctx, prompt,
		llms.WithSystemPrompt(runtime.systemPrompt),
		llms.WithTurns(history...),
		llms.WithForcedTools(*forced),
	); err != nil {
		err = fmt.Errorf("failed to prompt llm: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return connectionError(StageGeneration, err)
	}

	return nil
}
