package events

const (
	// KindAssistantPlaybackStarted identifies playback start for the current response.
	KindAssistantPlaybackStarted Kind = "assistant_playback.started"
	// KindAssistantPlaybackFrame identifies decoded audio handed to the output device.
	KindAssistantPlaybackFrame Kind = "assistant_playback.frame"
	// KindAssistantPlaybackMarkPlayed identifies confirmation that an output mark was played.
	KindAssistantPlaybackMarkPlayed Kind = "assistant_playback.mark_played"
	// KindAssistantPlaybackTranscriptUpdated identifies mutable spoken-transcript snapshots.
	KindAssistantPlaybackTranscriptUpdated Kind = "assistant_playback.transcript_updated"
	// KindAssistantPlaybackTranscriptSegment identifies append-only spoken-transcript segments.
	KindAssistantPlaybackTranscriptSegment Kind = "assistant_playback.transcript_segment"
	// KindAssistantPlaybackPaused identifies a playback pause.
	KindAssistantPlaybackPaused Kind = "assistant_playback.paused"
	// KindAssistantPlaybackResumed identifies playback resuming after a pause.
	KindAssistantPlaybackResumed Kind = "assistant_playback.resumed"
	// KindAssistantPlaybackEnded identifies the playback completion milestone.
	KindAssistantPlaybackEnded Kind = "assistant_playback.ended"
)

// AssistantPlaybackStarted marks the start of assistant playback.
type AssistantPlaybackStarted struct{ Base }

// NewAssistantPlaybackStarted creates an assistant playback started event.
func NewAssistantPlaybackStarted() AssistantPlaybackStarted {
	return AssistantPlaybackStarted{Base: NewBase(KindAssistantPlaybackStarted)}
}

// AssistantPlaybackFrame carries decoded audio as it is handed to the
// output device.
type AssistantPlaybackFrame struct {
	Base
	Audio []byte
}

// NewAssistantPlaybackFrame creates an assistant playback frame event.
func NewAssistantPlaybackFrame(audio []byte) AssistantPlaybackFrame {
	return AssistantPlaybackFrame{Base: NewBase(KindAssistantPlaybackFrame), Audio: audio}
}

// AssistantPlaybackMarkPlayed marks confirmation that a playback mark was played.
type AssistantPlaybackMarkPlayed struct {
	Base
	Mark       string
	Transcript string
}

// NewAssistantPlaybackMarkPlayed creates an assistant playback mark played event.
func NewAssistantPlaybackMarkPlayed(mark, transcript string) AssistantPlaybackMarkPlayed {
	return AssistantPlaybackMarkPlayed{Base: NewBase(KindAssistantPlaybackMarkPlayed), Mark: mark, Transcript: transcript}
}

// AssistantPlaybackTranscriptUpdated carries the current spoken-transcript snapshot.
type AssistantPlaybackTranscriptUpdated struct {
	Base
	Transcript string
}

// NewAssistantPlaybackTranscriptUpdated creates a playback transcript updated event.
func NewAssistantPlaybackTranscriptUpdated(transcript string) AssistantPlaybackTranscriptUpdated {
	return AssistantPlaybackTranscriptUpdated{Base: NewBase(KindAssistantPlaybackTranscriptUpdated), Transcript: transcript}
}

// AssistantPlaybackTranscriptSegment carries an append-only spoken-transcript segment.
type AssistantPlaybackTranscriptSegment struct {
	Base
	Segment string
}

// NewAssistantPlaybackTranscriptSegment creates a playback transcript segment event.
func NewAssistantPlaybackTranscriptSegment(segment string) AssistantPlaybackTranscriptSegment {
	return AssistantPlaybackTranscriptSegment{Base: NewBase(KindAssistantPlaybackTranscriptSegment), Segment: segment}
}

// AssistantPlaybackPaused marks a playback pause.
type AssistantPlaybackPaused struct{ Base }

// NewAssistantPlaybackPaused creates an assistant playback paused event.
func NewAssistantPlaybackPaused() AssistantPlaybackPaused {
	return AssistantPlaybackPaused{Base: NewBase(KindAssistantPlaybackPaused)}
}

// AssistantPlaybackResumed marks playback resuming after a pause.
type AssistantPlaybackResumed struct{ Base }

// NewAssistantPlaybackResumed creates an assistant playback resumed event.
func NewAssistantPlaybackResumed() AssistantPlaybackResumed {
	return AssistantPlaybackResumed{Base: NewBase(KindAssistantPlaybackResumed)}
}

// AssistantPlaybackEnded marks the end of assistant playback.
type AssistantPlaybackEnded struct {
	Base
	Transcript string
}

// NewAssistantPlaybackEnded creates an assistant playback ended event.
func NewAssistantPlaybackEnded(transcript string) AssistantPlaybackEnded {
	return AssistantPlaybackEnded{Base: NewBase(KindAssistantPlaybackEnded), Transcript: transcript}
}
