package pipeline

import (
	"errors"
	"testing"

	"github.com/koscakluka/voicepipe/core/llms"
)

func TestFinaliseTurnAppendsHistoryAndClearsActiveSlot(t *testing.T) {
	conversation := newConversation(nil)
	turn := newActiveTurn(NewPromptTrigger("hello"), turnConfig{})

	if err := conversation.startNewTurn(turn); err != nil {
		t.Fatalf("expected the turn to take the active slot, got %v", err)
	}
	if active := conversation.ActiveTurn(); active == nil || active.Prompt != "hello" {
		t.Fatalf("expected an active turn view for the running turn")
	}

	finalised := llms.Turn{ID: turn.id, Prompt: "hello", Response: "hi"}
	if err := conversation.finaliseTurn(finalised); err != nil {
		t.Fatalf("expected a matching turn to finalise cleanly, got %v", err)
	}

	history := conversation.History()
	if len(history) != 1 || history[0].Response != "hi" {
		t.Fatalf("expected the finished turn in history, got %v", history)
	}
	if conversation.ActiveTurn() != nil {
		t.Fatalf("expected the active slot to be cleared")
	}
}

func TestStartNewTurnRefusesSecondActiveTurn(t *testing.T) {
	conversation := newConversation(nil)

	if err := conversation.startNewTurn(newActiveTurn(NewPromptTrigger("one"), turnConfig{})); err != nil {
		t.Fatalf("expected the first turn to start, got %v", err)
	}
	if err := conversation.startNewTurn(newActiveTurn(NewPromptTrigger("two"), turnConfig{})); err == nil {
		t.Fatalf("expected a second active turn to be refused")
	}
}

func TestFinaliseTurnRecordsHistoryEvenWhenSlotIsMissing(t *testing.T) {
	conversation := newConversation(nil)

	err := conversation.finaliseTurn(llms.Turn{ID: "orphan", Prompt: "lost"})
	if !errors.Is(err, ErrActiveTurnMissing) {
		t.Fatalf("expected ErrActiveTurnMissing, got %v", err)
	}

	history := conversation.History()
	if len(history) != 1 || history[0].ID != "orphan" {
		t.Fatalf("expected the orphaned turn to still be recorded, got %v", history)
	}
}

func TestFinaliseTurnRecordsHistoryOnIDMismatch(t *testing.T) {
	conversation := newConversation(nil)
	turn := newActiveTurn(NewPromptTrigger("hello"), turnConfig{})
	if err := conversation.startNewTurn(turn); err != nil {
		t.Fatalf("expected the turn to start, got %v", err)
	}

	err := conversation.finaliseTurn(llms.Turn{ID: "someone-else", Prompt: "stray"})
	if !errors.Is(err, ErrActiveTurnIDMismatch) {
		t.Fatalf("expected ErrActiveTurnIDMismatch, got %v", err)
	}

	if len(conversation.History()) != 1 {
		t.Fatalf("expected the mismatched turn to still be recorded")
	}
	if conversation.currentTurn() != turn {
		t.Fatalf("expected the active slot to keep the running turn")
	}
}

func TestSnapshotDetachesFromLiveState(t *testing.T) {
	conversation := newConversation(nil)
	turn := newActiveTurn(NewPromptTrigger("hello"), turnConfig{})
	conversation.startNewTurn(turn)
	conversation.finaliseTurn(llms.Turn{
		ID:        turn.id,
		Prompt:    "hello",
		Response:  "hi",
		ToolCalls: []llms.ToolCall{{ID: "tool_1", Name: "lookup"}},
	})

	snapshot := conversation.Snapshot()
	snapshot.History[0].Response = "tampered"
	snapshot.History[0].ToolCalls[0].Name = "tampered"

	history := conversation.History()
	if history[0].Response != "hi" {
		t.Fatalf("expected the live history response untouched, got %q", history[0].Response)
	}
	if history[0].ToolCalls[0].Name != "lookup" {
		t.Fatalf("expected the live tool call untouched, got %q", history[0].ToolCalls[0].Name)
	}
}

func TestSnapshotIncludesActiveTurnView(t *testing.T) {
	conversation := newConversation(nil)
	turn := newActiveTurn(NewPromptTrigger("in flight"), turnConfig{})
	conversation.startNewTurn(turn)

	snapshot := conversation.Snapshot()
	if snapshot.ActiveTurn == nil || snapshot.ActiveTurn.Prompt != "in flight" {
		t.Fatalf("expected the active turn in the snapshot, got %v", snapshot.ActiveTurn)
	}
	if len(snapshot.History) != 0 {
		t.Fatalf("expected no history yet, got %v", snapshot.History)
	}
}

func TestSnapshotCarriesAvailableTools(t *testing.T) {
	tools := []llms.Tool{llms.NewTool("lookup", "looks things up", nil,
		func(struct{}) (string, error) { return "found", nil },
	)}
	conversation := newConversation(func() []llms.Tool { return tools })

	snapshot := conversation.Snapshot()
	if len(snapshot.AvailableTools) != 1 || snapshot.AvailableTools[0].Function.Name != "lookup" {
		t.Fatalf("expected the available tools in the snapshot, got %v", snapshot.AvailableTools)
	}
}
