package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/voicepipe/core/llms"
)

var (
	ErrActiveTurnIDMismatch = errors.New("active turn finalisation failed: turn IDs do not match")
	ErrActiveTurnMissing    = errors.New("active turn finalisation failed: active turn missing")
)

// conversation tracks finished turns and at most one running turn. The
// running turn enters the history once it finalises, cancelled or not.
type conversation struct {
	mu sync.RWMutex

	turns      []llms.Turn
	activeTurn *activeTurn

	availableTools func() []llms.Tool
}

func newConversation(availableTools func() []llms.Tool) conversation {
	return conversation{availableTools: availableTools}
}

// Conversation is a point-in-time view of conversation state. History
// and ActiveTurn are detached copies; mutating them does not touch the
// live conversation.
type Conversation struct {
	History        []llms.Turn
	ActiveTurn     *llms.Turn
	AvailableTools []llms.Tool
}

func (c *conversation) Snapshot() Conversation {
	c.mu.RLock()

	var history []llms.Turn
	copier.CopyWithOption(&history, c.turns, copier.Option{DeepCopy: true})

	var active *llms.Turn
	if c.activeTurn != nil {
		snapshot := c.activeTurn.view()
		active = &snapshot
	}

	availableTools := c.availableTools
	c.mu.RUnlock()

	var tools []llms.Tool
	if availableTools != nil {
		tools = availableTools()
	}

	return Conversation{History: history, ActiveTurn: active, AvailableTools: tools}
}

// History returns the finished turns, oldest first.
func (c *conversation) History() []llms.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var history []llms.Turn
	copier.CopyWithOption(&history, c.turns, copier.Option{DeepCopy: true})
	return history
}

func (c *conversation) ActiveTurn() *llms.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.activeTurn == nil {
		return nil
	}

	snapshot := c.activeTurn.view()
	return &snapshot
}

func (c *conversation) AvailableTools() []llms.Tool {
	c.mu.RLock()
	availableTools := c.availableTools
	c.mu.RUnlock()
	if availableTools == nil {
		return nil
	}

	return availableTools()
}

// promptHistory returns the turns a new generation should see, without
// deep-copying them. Callers must not mutate the result.
func (c *conversation) promptHistory() []llms.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	history := make([]llms.Turn, len(c.turns))
	copy(history, c.turns)
	return history
}

func (c *conversation) startNewTurn(turn *activeTurn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeTurn != nil {
		return fmt.Errorf("active turn already set")
	}

	c.activeTurn = turn
	return nil
}

// finaliseTurn appends the finished turn to the history and clears the
// active slot. The turn is recorded even when the slot does not match,
// so history never silently drops a turn.
func (c *conversation) finaliseTurn(finalisedTurn llms.Turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeTurn == nil {
		c.turns = append(c.turns, finalisedTurn)
		return ErrActiveTurnMissing
	}

	if c.activeTurn.id != finalisedTurn.ID {
		c.turns = append(c.turns, finalisedTurn)
		return ErrActiveTurnIDMismatch
	}

	c.turns = append(c.turns, finalisedTurn)
	c.activeTurn = nil
	return nil
}

func (c *conversation) currentTurn() *activeTurn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.activeTurn
}

func (c *conversation) dropActiveTurn(turn *activeTurn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeTurn == turn {
		c.activeTurn = nil
	}
}
