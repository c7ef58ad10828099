package openai

import (
	"testing"

	"github.com/koscakluka/voicepipe/core/llms"
)

func TestToInput_DoesNotTruncateHistoryAfterToolCalls(t *testing.T) {
	turns := []llms.Turn{
		{
			Prompt: "first prompt",
			ToolCalls: []llms.ToolCall{
				{
					ID:        "tool_1",
					Name:      "lookup_weather",
					Arguments: `{"city":"Prague"}`,
					Response:  `{"temp":21}`,
				},
			},
			Response: "It is 21C in Prague.",
		},
		{
			Prompt:   "second prompt",
			Response: "What else can I help with?",
		},
	}

	input := toInput("", turns)

	if len(input) != 6 {
		t.Fatalf("expected 6 input items, got %d", len(input))
	}

	if input[0].Type != itemTypeMessage || input[0].Role != messageRoleUser || input[0].Content != "first prompt" {
		t.Fatalf("unexpected first item: %+v", input[0])
	}

	if input[1].Type != itemTypeFunctionCall || input[1].CallID != "tool_1" || input[1].Name != "lookup_weather" {
		t.Fatalf("unexpected function call item: %+v", input[1])
	}

	if input[2].Type != itemTypeFunctionCallOutput || input[2].CallID != "tool_1" || input[2].Output != `{"temp":21}` {
		t.Fatalf("unexpected function call output item: %+v", input[2])
	}

	if input[3].Type != itemTypeMessage || input[3].Role != messageRoleAssistant || input[3].Content != "It is 21C in Prague." {
		t.Fatalf("unexpected assistant item after tool call: %+v", input[3])
	}

	if input[4].Type != itemTypeMessage || input[4].Role != messageRoleUser || input[4].Content != "second prompt" {
		t.Fatalf("history truncated before second turn: %+v", input[4])
	}

	if input[5].Type != itemTypeMessage || input[5].Role != messageRoleAssistant || input[5].Content != "What else can I help with?" {
		t.Fatalf("unexpected final assistant item: %+v", input[5])
	}
}

func TestToInput_PlacesInstructionsAsDeveloperMessage(t *testing.T) {
	input := toInput("speak briefly", []llms.Turn{{Prompt: "hi", Response: "hello"}})

	if len(input) != 3 {
		t.Fatalf("expected 3 input items, got %d", len(input))
	}
	if input[0].Type != itemTypeMessage || input[0].Role != messageRoleDeveloper || input[0].Content != "speak briefly" {
		t.Fatalf("unexpected instructions item: %+v", input[0])
	}
}

func TestToInput_RepresentsCancelledTurnBySpokenText(t *testing.T) {
	turns := []llms.Turn{
		{
			Prompt:    "tell me a story",
			Response:  "Once upon a time there was a very long story",
			Spoken:    "Once upon a time",
			Cancelled: true,
		},
	}

	input := toInput("", turns)

	if len(input) != 2 {
		t.Fatalf("expected 2 input items, got %d", len(input))
	}
	if input[1].Role != messageRoleAssistant || input[1].Content != "Once upon a time" {
		t.Fatalf("cancelled turn should carry spoken text only: %+v", input[1])
	}
}
