package events

import "testing"

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected Kind
	}{
		{name: "user audio frame", event: NewUserAudioFrame([]byte{1}), expected: KindUserAudioFrame},
		{name: "user speech started", event: NewUserSpeechStarted(), expected: KindUserSpeechStarted},
		{name: "user speech ended", event: NewUserSpeechEnded(), expected: KindUserSpeechEnded},
		{name: "user interim updated", event: NewUserTranscriptInterimUpdated("text", 1), expected: KindUserTranscriptInterimUpdated},
		{name: "user transcript final", event: NewUserTranscriptFinal("text", 2), expected: KindUserTranscriptFinal},
		{name: "assistant response started", event: NewAssistantResponseStarted(), expected: KindAssistantResponseStarted},
		{name: "assistant response segment", event: NewAssistantResponseSegment("seg"), expected: KindAssistantResponseSegment},
		{name: "assistant response final", event: NewAssistantResponseFinal("text"), expected: KindAssistantResponseFinal},
		{name: "tool call started", event: NewToolCallStarted("tool", "{}"), expected: KindToolCallStarted},
		{name: "tool call completed", event: NewToolCallCompleted("tool", "ok"), expected: KindToolCallCompleted},
		{name: "tool call failed", event: NewToolCallFailed("tool", "boom"), expected: KindToolCallFailed},
		{name: "assistant speech frame", event: NewAssistantSpeechFrame([]byte{1}), expected: KindAssistantSpeechFrame},
		{name: "assistant speech mark generated", event: NewAssistantSpeechMarkGenerated("mark"), expected: KindAssistantSpeechMarkGenerated},
		{name: "assistant speech chunk skipped", event: NewAssistantSpeechChunkSkipped(3, "malformed packet"), expected: KindAssistantSpeechChunkSkipped},
		{name: "assistant speech final", event: NewAssistantSpeechFinal(), expected: KindAssistantSpeechFinal},
		{name: "assistant playback started", event: NewAssistantPlaybackStarted(), expected: KindAssistantPlaybackStarted},
		{name: "assistant playback frame", event: NewAssistantPlaybackFrame([]byte{1}), expected: KindAssistantPlaybackFrame},
		{name: "assistant playback mark played", event: NewAssistantPlaybackMarkPlayed("id", "text"), expected: KindAssistantPlaybackMarkPlayed},
		{name: "assistant playback transcript updated", event: NewAssistantPlaybackTranscriptUpdated("text"), expected: KindAssistantPlaybackTranscriptUpdated},
		{name: "assistant playback transcript segment", event: NewAssistantPlaybackTranscriptSegment("seg"), expected: KindAssistantPlaybackTranscriptSegment},
		{name: "assistant playback paused", event: NewAssistantPlaybackPaused(), expected: KindAssistantPlaybackPaused},
		{name: "assistant playback resumed", event: NewAssistantPlaybackResumed(), expected: KindAssistantPlaybackResumed},
		{name: "assistant playback ended", event: NewAssistantPlaybackEnded("text"), expected: KindAssistantPlaybackEnded},
		{name: "turn started", event: NewTurnStarted("id", "prompt"), expected: KindTurnStarted},
		{name: "turn state changed", event: NewTurnStateChanged("generating"), expected: KindTurnStateChanged},
		{name: "turn completed", event: NewTurnCompleted("id"), expected: KindTurnCompleted},
		{name: "turn failed", event: NewTurnFailed("id", "synthesis", "connection lost"), expected: KindTurnFailed},
		{name: "turn cancelled", event: NewTurnCancelled(), expected: KindTurnCancelled},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.Timestamp().IsZero() {
				t.Fatalf("expected constructor to stamp the event")
			}
		})
	}
}

func TestKindNamespace(t *testing.T) {
	if got := KindUserTranscriptFinal.Namespace(); got != "user_input" {
		t.Fatalf("expected namespace %q, got %q", "user_input", got)
	}
	if got := KindAssistantSpeechChunkSkipped.Namespace(); got != "assistant_speech" {
		t.Fatalf("expected namespace %q, got %q", "assistant_speech", got)
	}
	if got := Kind("unscoped").Namespace(); got != "unscoped" {
		t.Fatalf("expected unscoped kind to be its own namespace, got %q", got)
	}
}

func TestUserSpeechStartedAndEndedKindsAreDistinct(t *testing.T) {
	started := NewUserSpeechStarted()
	ended := NewUserSpeechEnded()

	if started.Kind() == ended.Kind() {
		t.Fatalf("expected speech started and speech ended kinds to differ, both were %q", started.Kind())
	}
}
