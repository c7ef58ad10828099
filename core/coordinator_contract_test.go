package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/llms"
)

// historyRecordingLLMStub answers every prompt with a fixed response and
// remembers the conversation turns passed alongside the latest prompt.
type historyRecordingLLMStub struct {
	response string

	mu    sync.Mutex
	turns []llms.Turn
}

func (c *historyRecordingLLMStub) Prompt(ctx context.Context, prompt string, opts ...llms.PromptOption) (*llms.Response, error) {
	options := llms.PromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	c.mu.Lock()
	c.turns = append([]llms.Turn(nil), options.Turns...)
	c.mu.Unlock()

	if options.Stream != nil {
		options.Stream(c.response)
	}
	return &llms.Response{Content: c.response}, nil
}

func (c *historyRecordingLLMStub) turnsSeen() []llms.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llms.Turn(nil), c.turns...)
}

func TestNewCoordinatorRejectsUnknownDecodePolicy(t *testing.T) {
	_, err := NewCoordinator(WithDecodePolicy(DecodePolicy(42)))
	if err == nil {
		t.Fatalf("expected an unknown decode policy to be rejected")
	}
	if !IsConfigurationError(err) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
	if stage, ok := ErrorStage(err); !ok || stage != StagePlayback {
		t.Fatalf("expected stage %q, got %q", StagePlayback, stage)
	}
}

func TestNewCoordinatorRejectsNegativePrebuffer(t *testing.T) {
	_, err := NewCoordinator(WithPlaybackPrebuffer(-1))
	if err == nil {
		t.Fatalf("expected a negative prebuffer to be rejected")
	}
	if !IsConfigurationError(err) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestNewCoordinatorRequiresDecoderForCompressedSynthesis(t *testing.T) {
	opus := audio.EncodingInfo{SampleRate: 48000, Channels: 1, Format: audio.EncodingOpus}

	_, err := NewCoordinator(WithSynthesisEncoding(opus))
	if err == nil {
		t.Fatalf("expected a compressed synthesis encoding without a decoder to be rejected")
	}
	if !IsConfigurationError(err) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
	if stage, ok := ErrorStage(err); !ok || stage != StageSynthesis {
		t.Fatalf("expected stage %q, got %q", StageSynthesis, stage)
	}

	if _, err := NewCoordinator(
		WithSynthesisEncoding(opus),
		WithSpeechDecoder(prefixFailingDecoder{}),
	); err != nil {
		t.Fatalf("expected the same encoding to pass with a decoder, got %v", err)
	}
}

func TestRunTurnProcessesPromptWithoutRunningLoop(t *testing.T) {
	coordinator, err := NewCoordinator(WithLLM(promptLLMStub{response: "Hello back."}))
	if err != nil {
		t.Fatalf("expected the coordinator to build, got %v", err)
	}

	result, err := coordinator.RunTurn(context.Background(), NewPromptTrigger("Hello"))
	if err != nil {
		t.Fatalf("expected the turn to complete, got %v", err)
	}
	if result.Response != "Hello back." {
		t.Fatalf("expected the generated response, got %q", result.Response)
	}

	history := coordinator.Conversation().History
	if len(history) != 1 || history[0].Prompt != "Hello" || history[0].Response != "Hello back." {
		t.Fatalf("expected the turn recorded in history, got %v", history)
	}
}

func TestRunTurnFeedsHistoryIntoFollowUpTurns(t *testing.T) {
	client := &historyRecordingLLMStub{response: "Second answer."}
	coordinator, err := NewCoordinator(WithLLM(client))
	if err != nil {
		t.Fatalf("expected the coordinator to build, got %v", err)
	}

	if _, err := coordinator.RunTurn(context.Background(), NewPromptTrigger("First question")); err != nil {
		t.Fatalf("expected the first turn to complete, got %v", err)
	}
	if _, err := coordinator.RunTurn(context.Background(), NewPromptTrigger("Second question")); err != nil {
		t.Fatalf("expected the second turn to complete, got %v", err)
	}

	turns := client.turnsSeen()
	if len(turns) != 1 || turns[0].Prompt != "First question" {
		t.Fatalf("expected the second prompt to carry the first turn, got %v", turns)
	}
}

func TestCallToolWithoutLLMFails(t *testing.T) {
	coordinator, err := NewCoordinator()
	if err != nil {
		t.Fatalf("expected the coordinator to build, got %v", err)
	}

	err = coordinator.CallTool(context.Background(), "anything", "do it")
	if !errors.Is(err, ErrLLMNotConfigured) {
		t.Fatalf("expected ErrLLMNotConfigured, got %v", err)
	}
	if !IsConfigurationError(err) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestStartCaptureWithoutSpeechToTextFails(t *testing.T) {
	coordinator, err := NewCoordinator()
	if err != nil {
		t.Fatalf("expected the coordinator to build, got %v", err)
	}

	err = coordinator.StartCapture()
	if !errors.Is(err, ErrSpeechToTextNotConfigured) {
		t.Fatalf("expected ErrSpeechToTextNotConfigured, got %v", err)
	}
	if stage, ok := ErrorStage(err); !ok || stage != StageTranscription {
		t.Fatalf("expected stage %q, got %q", StageTranscription, stage)
	}
}

func TestStateStartsIdle(t *testing.T) {
	coordinator, err := NewCoordinator()
	if err != nil {
		t.Fatalf("expected the coordinator to build, got %v", err)
	}

	if state := coordinator.State(); state != TurnStateIdle {
		t.Fatalf("expected state %v, got %v", TurnStateIdle, state)
	}
}
