package pipeline

import (
	"context"

	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/events"
	"github.com/koscakluka/voicepipe/core/llms"
	"github.com/koscakluka/voicepipe/core/speechtotext"
	"github.com/koscakluka/voicepipe/core/texttospeech"
)

type CoordinatorOption func(*Coordinator)

// LLM generates the assistant's response for a prompt. Implementations
// stream content through the prompt options and execute requested tools
// before returning.
type LLM interface {
	Prompt(ctx context.Context, prompt string, opts ...llms.PromptOption) (*llms.Response, error)
}

func WithLLM(client LLM) CoordinatorOption {
	return func(c *Coordinator) { c.llm.set(client) }
}

// SpeechToText opens live transcription streams. One stream carries one
// utterance.
type SpeechToText interface {
	StartStream(ctx context.Context, opts ...speechtotext.StreamOption) (speechtotext.Stream, error)
}

func WithSpeechToTextClient(client SpeechToText) CoordinatorOption {
	return func(c *Coordinator) { c.speechToText.set(client) }
}

// TextToSpeechClient opens speech generators that synthesize streamed
// text into audio.
type TextToSpeechClient interface {
	NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error)
}

func WithTextToSpeechClient(client TextToSpeechClient) CoordinatorOption {
	return func(c *Coordinator) {
		c.textToSpeech.set(client)
		c.IsSpeaking = true
		c.textToSpeech.Unmute()
	}
}

// AudioInput streams captured audio frames from a device or another
// source.
type AudioInput interface {
	EncodingInfo() audio.EncodingInfo
	Stream(ctx context.Context, onFrame func(frame audio.Frame)) error
	Close()
}

// AudioInputControllable is an input whose capture can be started and
// stopped explicitly, which push-to-talk needs.
type AudioInputControllable interface {
	StartCapture(ctx context.Context, onFrame func(frame audio.Frame)) error
	StopCapture() error
}

func WithAudioInput(client AudioInput) CoordinatorOption {
	return func(c *Coordinator) { c.audioInput.Set(client) }
}

// AudioOutput plays assistant audio on a device or forwards it to
// another sink.
type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
}

// AudioOutputMarker is an output that confirms playback progress through
// mark callbacks.
type AudioOutputMarker interface {
	Mark(mark string, callback func(mark string)) error
}

// AudioOutputAwaiter is an output that can only block until buffered
// audio drains.
type AudioOutputAwaiter interface {
	AwaitMark() error
}

func WithAudioOutput(client AudioOutput) CoordinatorOption {
	return func(c *Coordinator) { c.audioOutput.Set(client) }
}

func WithTools(tools ...llms.Tool) CoordinatorOption {
	return func(c *Coordinator) { c.llm.setTools(tools...) }
}

// WithPipelineTools exposes the pipeline's own controls to the model, so
// the user can ask it to stop listening or stop speaking.
func WithPipelineTools() CoordinatorOption {
	return func(c *Coordinator) { c.llm.appendTools(pipelineTools(c)...) }
}

func WithSystemPrompt(prompt string) CoordinatorOption {
	return func(c *Coordinator) { c.llm.setSystemPrompt(prompt) }
}

// WithSpeechDecoder decodes synthesized chunks before they are buffered
// for playback, for synthesis encodings the output device cannot play
// directly.
func WithSpeechDecoder(decoder SpeechDecoder) CoordinatorOption {
	return func(c *Coordinator) { c.decoder = decoder }
}

// WithDecodePolicy sets how a turn reacts to a speech chunk that fails
// to decode. The default is [DecodePolicySkip].
func WithDecodePolicy(policy DecodePolicy) CoordinatorOption {
	return func(c *Coordinator) { c.decodePolicy = policy }
}

// WithSynthesisEncoding requests a specific encoding from the speech
// generator instead of the output device's native one. Compressed
// encodings need a matching decoder configured through
// [WithSpeechDecoder].
func WithSynthesisEncoding(encodingInfo audio.EncodingInfo) CoordinatorOption {
	return func(c *Coordinator) { c.synthesisEncoding = encodingInfo }
}

// WithPlaybackPrebuffer delays playback until the given amount of audio
// is buffered, trading first-audio latency for fewer mid-sentence gaps.
func WithPlaybackPrebuffer(bytes int) CoordinatorOption {
	return func(c *Coordinator) { c.prebufferBytes = bytes }
}

// WithAlwaysListening starts capture as soon as the pipeline runs and
// keeps it open, with utterance boundaries driven by voice activity
// instead of capture controls.
func WithAlwaysListening() CoordinatorOption {
	return func(c *Coordinator) { c.alwaysListening = true }
}

type RunOptions struct {
	onEvent func(event events.Event)

	onInputAudio           func(audio []byte)
	onSpeakingStateChanged func(isSpeaking bool)
	onInterimTranscription func(transcript string)
	onTranscription        func(transcript string)
	onResponse             func(response string)
	onResponseEnd          func(response string)
	onAudio                func(audio []byte)
	onChunkSkipped         func(index int, reason string)
	onAudioEnded           func(transcript string)
	onSpokenText           func(spokenText string)
	onSpokenTextDelta      func(spokenTextDelta string)
	onCancellation         func()

	onTurnState   func(state TurnState)
	onTurnMetrics func(metrics TurnMetrics)
	onError       func(err error)
}

type RunOption func(*RunOptions)

// WithEventCallback registers a callback for every event the pipeline
// emits, in emission order. The typed callbacks below are projections of
// this stream.
func WithEventCallback(callback func(event events.Event)) RunOption {
	return func(o *RunOptions) {
		o.onEvent = callback
	}
}

// WithInputAudioCallback registers a callback for raw captured audio
// chunks.
//
// The provided slice is passed through as-is, not copied. The
// callback runs inline on the capture path and should not block.
func WithInputAudioCallback(callback func(audio []byte)) RunOption {
	return func(o *RunOptions) {
		o.onInputAudio = callback
	}
}

// WithSpeakingStateChangedCallback registers a callback for
// voice-activity updates produced by the configured speech-to-text
// client.
func WithSpeakingStateChangedCallback(callback func(isSpeaking bool)) RunOption {
	return func(o *RunOptions) {
		o.onSpeakingStateChanged = callback
	}
}

// WithInterimTranscriptionCallback registers a callback for interim
// transcriptions produced by the configured speech-to-text client.
// Later interim transcripts supersede earlier ones.
func WithInterimTranscriptionCallback(callback func(transcript string)) RunOption {
	return func(o *RunOptions) {
		o.onInterimTranscription = callback
	}
}

// WithTranscriptionCallback registers a callback for final
// transcriptions produced by the configured speech-to-text client.
//
// Prompts submitted through [Coordinator.SendPrompt] do not trigger this
// callback.
func WithTranscriptionCallback(callback func(transcript string)) RunOption {
	return func(o *RunOptions) {
		o.onTranscription = callback
	}
}

func WithResponseCallback(callback func(response string)) RunOption {
	return func(o *RunOptions) {
		o.onResponse = callback
	}
}

func WithResponseEndCallback(callback func(response string)) RunOption {
	return func(o *RunOptions) {
		o.onResponseEnd = callback
	}
}

func WithAudioCallback(callback func(audio []byte)) RunOption {
	return func(o *RunOptions) {
		o.onAudio = callback
	}
}

// WithChunkSkippedCallback registers a callback for synthesized chunks
// dropped because they failed to decode, with their position in the
// turn's chunk sequence.
func WithChunkSkippedCallback(callback func(index int, reason string)) RunOption {
	return func(o *RunOptions) {
		o.onChunkSkipped = callback
	}
}

func WithAudioEndedCallback(callback func(transcript string)) RunOption {
	return func(o *RunOptions) {
		o.onAudioEnded = callback
	}
}

// WithSpokenTextCallback registers a callback for spoken-text progress
// updates.
//
// The callback receives mark-confirmed text plus a best-effort
// approximation of the current in-flight segment while audio is playing.
func WithSpokenTextCallback(callback func(spokenText string)) RunOption {
	return func(o *RunOptions) {
		o.onSpokenText = callback
	}
}

// WithSpokenTextDeltaCallback registers a callback for spoken-text
// deltas.
//
// The callback receives append-only incremental transcript segments. If
// playback progress regresses, no replacement segment is emitted.
func WithSpokenTextDeltaCallback(callback func(spokenTextDelta string)) RunOption {
	return func(o *RunOptions) {
		o.onSpokenTextDelta = callback
	}
}

func WithCancellationCallback(callback func()) RunOption {
	return func(o *RunOptions) {
		o.onCancellation = callback
	}
}

// WithTurnStateCallback registers a callback for turn lifecycle state
// transitions.
func WithTurnStateCallback(callback func(state TurnState)) RunOption {
	return func(o *RunOptions) {
		o.onTurnState = callback
	}
}

// WithTurnMetricsCallback registers a callback that receives each turn's
// latency milestones once the turn finishes.
func WithTurnMetricsCallback(callback func(metrics TurnMetrics)) RunOption {
	return func(o *RunOptions) {
		o.onTurnMetrics = callback
	}
}

// WithErrorCallback registers a callback for pipeline failures that
// happen outside a running turn, like capture errors.
func WithErrorCallback(callback func(err error)) RunOption {
	return func(o *RunOptions) {
		o.onError = callback
	}
}
