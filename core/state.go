package pipeline

// TurnState is the lifecycle state of a turn. A turn moves forward
// through the states in order, skipping the ones its trigger does not
// need, and can drop to TurnStateAborted from any of them.
type TurnState int

const (
	// TurnStateIdle means no turn work is in flight.
	TurnStateIdle TurnState = iota
	// TurnStateCapturing means user audio is being captured.
	TurnStateCapturing
	// TurnStateTranscribing means captured audio is being transcribed.
	TurnStateTranscribing
	// TurnStateGenerating means the response text is being generated.
	TurnStateGenerating
	// TurnStateSpeaking means response speech is being synthesized or
	// played.
	TurnStateSpeaking
	// TurnStateAborted means the turn was cancelled before completing.
	TurnStateAborted
)

func (s TurnState) String() string {
	switch s {
	case TurnStateIdle:
		return "idle"
	case TurnStateCapturing:
		return "capturing"
	case TurnStateTranscribing:
		return "transcribing"
	case TurnStateGenerating:
		return "generating"
	case TurnStateSpeaking:
		return "speaking"
	case TurnStateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
