package llms

import (
	"reflect"
	"testing"
)

func TestToMessagesFlattensTurnsInOrder(t *testing.T) {
	turns := []Turn{
		{Prompt: "What's the weather?", Response: "Sunny all day."},
		{Prompt: "And tomorrow?", Response: "Rain in the morning."},
	}

	messages := ToMessages("You are a weather assistant.", turns)

	expected := []Message{
		{Role: RoleSystem, Content: "You are a weather assistant."},
		{Role: RoleUser, Content: "What's the weather?"},
		{Role: RoleAssistant, Content: "Sunny all day."},
		{Role: RoleUser, Content: "And tomorrow?"},
		{Role: RoleAssistant, Content: "Rain in the morning."},
	}
	if !reflect.DeepEqual(messages, expected) {
		t.Fatalf("expected %v, got %v", expected, messages)
	}
}

func TestToMessagesSkipsEmptyInstructions(t *testing.T) {
	messages := ToMessages("", []Turn{{Prompt: "Hello", Response: "Hi."}})

	if len(messages) != 2 || messages[0].Role != RoleUser {
		t.Fatalf("expected no system message, got %v", messages)
	}
}

func TestToMessagesInterleavesToolCalls(t *testing.T) {
	turns := []Turn{{
		Prompt: "Turn on the lights",
		ToolCalls: []ToolCall{
			{ID: "call-1", Name: "lights", Arguments: `{"state":"on"}`, Response: "done"},
		},
		Response: "The lights are on.",
	}}

	messages := ToMessages("", turns)

	if len(messages) != 4 {
		t.Fatalf("expected four messages, got %v", messages)
	}
	if messages[0].Role != RoleUser {
		t.Fatalf("expected the prompt first, got %v", messages[0])
	}
	call := messages[1]
	if call.Role != RoleAssistant || len(call.ToolCalls) != 1 {
		t.Fatalf("expected the assistant tool call, got %v", call)
	}
	if call.ToolCalls[0].ID != "call-1" || call.ToolCalls[0].Arguments != `{"state":"on"}` {
		t.Fatalf("unexpected tool call payload: %+v", call.ToolCalls[0])
	}
	if call.ToolCalls[0].Response != "" {
		t.Fatalf("expected the call message without the result, got %+v", call.ToolCalls[0])
	}
	result := messages[2]
	if result.Role != RoleTool || result.Content != "done" || result.ToolCallID != "call-1" {
		t.Fatalf("expected the tool result, got %v", result)
	}
	if messages[3].Role != RoleAssistant || messages[3].Content != "The lights are on." {
		t.Fatalf("expected the closing assistant message, got %v", messages[3])
	}
}

func TestToMessagesOmitsUnansweredToolResults(t *testing.T) {
	turns := []Turn{{
		Prompt:    "Do it",
		ToolCalls: []ToolCall{{ID: "call-1", Name: "lights", Arguments: "{}"}},
	}}

	messages := ToMessages("", turns)

	if len(messages) != 2 {
		t.Fatalf("expected no tool result message, got %v", messages)
	}
}

func TestAssistantContentPrefersSpokenForCancelledTurns(t *testing.T) {
	turn := Turn{
		Response:  "One. Two. Three.",
		Spoken:    "One. Two.",
		Cancelled: true,
	}
	if got := turn.AssistantContent(); got != "One. Two." {
		t.Fatalf("expected the spoken prefix, got %q", got)
	}

	turn.Cancelled = false
	if got := turn.AssistantContent(); got != "One. Two. Three." {
		t.Fatalf("expected the full response, got %q", got)
	}

	cancelledBeforeSpeech := Turn{Response: "One.", Cancelled: true}
	if got := cancelledBeforeSpeech.AssistantContent(); got != "One." {
		t.Fatalf("expected the response when nothing was spoken, got %q", got)
	}
}

func TestHasAssistantPart(t *testing.T) {
	if (Turn{Prompt: "Hello"}).HasAssistantPart() {
		t.Fatalf("expected a prompt-only turn to have no assistant part")
	}
	if !(Turn{Response: "Hi."}).HasAssistantPart() {
		t.Fatalf("expected a response to count")
	}
	if !(Turn{Spoken: "Hi."}).HasAssistantPart() {
		t.Fatalf("expected spoken text to count")
	}
	if !(Turn{ToolCalls: []ToolCall{{ID: "call-1"}}}).HasAssistantPart() {
		t.Fatalf("expected tool calls to count")
	}
}
