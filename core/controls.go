package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/voicepipe/core/audio"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartCapture opens push-to-talk capture: a transcription stream is
// started and captured frames feed it until [Coordinator.StopCapture].
func (c *Coordinator) StartCapture() error {
	if !c.speechToText.isConfigured() {
		return configurationError(StageTranscription, ErrSpeechToTextNotConfigured)
	}

	c.IsCapturing = true
	if c.audioInput.IsAlwaysListening() {
		return nil
	}

	c.setCaptureState(TurnStateCapturing)
	if err := c.beginUtterance(c.baseContext); err != nil {
		return err
	}
	return c.audioInput.RequestCapture(c.baseContext)
}

// StopCapture closes the capture gate and lets the utterance drain; the
// final transcript arrives asynchronously and triggers a turn.
func (c *Coordinator) StopCapture() error {
	c.IsCapturing = false
	if c.audioInput.IsAlwaysListening() {
		return nil
	}

	errs := c.audioInput.ReleaseCapture(c.baseContext)
	if c.speechToText.isTranscribing() {
		c.setCaptureState(TurnStateTranscribing)
		if err := c.speechToText.FinishUtterance(); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// SendPrompt queues a typed prompt as a turn trigger, bypassing capture
// and transcription.
func (c *Coordinator) SendPrompt(prompt string) {
	c.queue.Ingest(NewPromptTrigger(prompt))
}

// SendAudio feeds one audio chunk straight into the live transcription
// stream, for callers that capture audio themselves. Chunks sent with no
// stream open are dropped.
func (c *Coordinator) SendAudio(audioData []byte) error {
	return c.speechToText.Feed(audio.NewFrame(audioData, c.audioInput.EncodingInfo()))
}

// CancelTurn cancels the active turn, if any. Queued triggers are kept.
func (c *Coordinator) CancelTurn() {
	if turn := c.conversation.currentTurn(); turn != nil {
		turn.Cancel()
	}
}

// Pause suspends playback of the active turn without cancelling it;
// generation and synthesis keep buffering.
func (c *Coordinator) Pause() {
	if turn := c.conversation.currentTurn(); turn != nil {
		turn.Pause()
	}
}

// Resume continues playback, re-sending the audio estimated to have been
// in the device buffer when it was cleared.
func (c *Coordinator) Resume() {
	if turn := c.conversation.currentTurn(); turn != nil {
		turn.Resume()
	}
}

// SetSpeaking mutes or unmutes synthesized speech. Muting silences the
// active turn's remaining audio; its response text still completes.
func (c *Coordinator) SetSpeaking(isSpeaking bool) {
	c.IsSpeaking = isSpeaking
	if isSpeaking {
		c.textToSpeech.Unmute()
		return
	}

	c.textToSpeech.Mute()
	if turn := c.conversation.currentTurn(); turn != nil {
		turn.StopSpeaking()
	}
}

func (c *Coordinator) IsAlwaysListening() bool { return c.audioInput.IsAlwaysListening() }

func (c *Coordinator) SetAlwaysListening(isAlwaysListening bool) {
	var err error
	if isAlwaysListening {
		err = c.EnableAlwaysListening(c.baseContext)
	} else {
		err = c.DisableAlwaysListening(c.baseContext)
	}

	if err != nil {
		recordedErr := fmt.Errorf("failed to set always listening to %t: %w", isAlwaysListening, err)
		span := trace.SpanFromContext(c.baseContext)
		span.RecordError(recordedErr)
		span.SetStatus(codes.Error, recordedErr.Error())
	}
}

// EnableAlwaysListening keeps capture running continuously, with
// utterance boundaries driven by voice activity instead of capture
// controls.
func (c *Coordinator) EnableAlwaysListening(ctx context.Context) error {
	if !c.speechToText.isConfigured() {
		return configurationError(StageTranscription, ErrSpeechToTextNotConfigured)
	}

	if err := c.audioInput.EnableAlwaysListening(ctx); err != nil {
		return err
	}
	if !c.speechToText.isTranscribing() {
		return c.beginUtterance(ctx)
	}
	return nil
}

func (c *Coordinator) DisableAlwaysListening(ctx context.Context) error {
	if err := c.audioInput.DisableAlwaysListening(ctx); err != nil {
		return err
	}
	if !c.IsCapturing {
		return c.speechToText.Abort()
	}
	return nil
}

// CallTool makes the model call the named tool, with the prompt as its
// only instruction. The call runs outside the turn loop and leaves no
// trace in the conversation history.
func (c *Coordinator) CallTool(ctx context.Context, name string, prompt string) error {
	runtimeLLM := c.llm.snapshot()
	return runtimeLLM.callTool(ctx, name, prompt, c.conversation.promptHistory())
}
