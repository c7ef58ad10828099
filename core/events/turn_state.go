package events

const (
	// KindTurnStarted identifies a turn leaving the queue and starting.
	KindTurnStarted Kind = "turn_state.started"
	// KindTurnStateChanged identifies a turn lifecycle state transition.
	KindTurnStateChanged Kind = "turn_state.changed"
	// KindTurnCompleted identifies normal turn completion.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnFailed identifies turn failure.
	KindTurnFailed Kind = "turn_state.failed"
	// KindTurnCancelled identifies turn cancellation.
	KindTurnCancelled Kind = "turn_state.cancelled"
)

// TurnStarted marks a turn leaving the queue and starting to execute.
type TurnStarted struct {
	Base
	ID     string
	Prompt string
}

// NewTurnStarted creates a turn started event.
func NewTurnStarted(id, prompt string) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted), ID: id, Prompt: prompt}
}

// TurnStateChanged marks a turn lifecycle state transition. State is the
// string form of the pipeline's turn state.
type TurnStateChanged struct {
	Base
	State string
}

// NewTurnStateChanged creates a turn state changed event.
func NewTurnStateChanged(state string) TurnStateChanged {
	return TurnStateChanged{Base: NewBase(KindTurnStateChanged), State: state}
}

// TurnCompleted marks normal completion of a turn.
type TurnCompleted struct {
	Base
	ID string
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(id string) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted), ID: id}
}

// TurnFailed marks a failed turn. Stage names the pipeline stage the
// failure came from.
type TurnFailed struct {
	Base
	ID     string
	Stage  string
	Reason string
}

// NewTurnFailed creates a turn failed event.
func NewTurnFailed(id, stage, reason string) TurnFailed {
	return TurnFailed{Base: NewBase(KindTurnFailed), ID: id, Stage: stage, Reason: reason}
}

// TurnCancelled marks cancellation of the current turn.
type TurnCancelled struct{ Base }

// NewTurnCancelled creates a turn cancelled event.
func NewTurnCancelled() TurnCancelled {
	return TurnCancelled{Base: NewBase(KindTurnCancelled)}
}
