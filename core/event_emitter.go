package pipeline

import "github.com/koscakluka/voicepipe/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

// newCallbackEventEmitter bridges the typed event stream to the
// configured run callbacks. The catch-all event callback sees every
// event, before its focused counterpart.
func newCallbackEventEmitter(opts RunOptions) eventEmitter {
	return func(event events.Event) {
		if opts.onEvent != nil {
			opts.onEvent(event)
		}

		switch typedEvent := event.(type) {
		case events.UserAudioFrame:
			if opts.onInputAudio != nil {
				opts.onInputAudio(typedEvent.Audio)
			}
		case events.UserSpeechStarted:
			if opts.onSpeakingStateChanged != nil {
				opts.onSpeakingStateChanged(true)
			}
		case events.UserSpeechEnded:
			if opts.onSpeakingStateChanged != nil {
				opts.onSpeakingStateChanged(false)
			}
		case events.UserTranscriptInterimUpdated:
			if opts.onInterimTranscription != nil {
				opts.onInterimTranscription(typedEvent.Transcript)
			}
		case events.UserTranscriptFinal:
			if opts.onTranscription != nil {
				opts.onTranscription(typedEvent.Transcript)
			}
		case events.AssistantResponseSegment:
			if opts.onResponse != nil {
				opts.onResponse(typedEvent.Segment)
			}
		case events.AssistantResponseFinal:
			if opts.onResponseEnd != nil {
				opts.onResponseEnd(typedEvent.Content)
			}
		case events.AssistantSpeechFrame:
			if opts.onAudio != nil {
				opts.onAudio(typedEvent.Audio)
			}
		case events.AssistantSpeechChunkSkipped:
			if opts.onChunkSkipped != nil {
				opts.onChunkSkipped(typedEvent.Index, typedEvent.Reason)
			}
		case events.AssistantPlaybackEnded:
			if opts.onAudioEnded != nil {
				opts.onAudioEnded(typedEvent.Transcript)
			}
		case events.AssistantPlaybackTranscriptUpdated:
			if opts.onSpokenText != nil {
				opts.onSpokenText(typedEvent.Transcript)
			}
		case events.AssistantPlaybackTranscriptSegment:
			if opts.onSpokenTextDelta != nil {
				opts.onSpokenTextDelta(typedEvent.Segment)
			}
		case events.TurnCancelled:
			if opts.onCancellation != nil {
				opts.onCancellation()
			}
		}
	}
}
