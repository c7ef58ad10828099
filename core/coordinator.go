package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/events"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Coordinator owns the pipeline: capture, transcription, response
// generation, speech synthesis and playback, with turns running one at a
// time in trigger order.
type Coordinator struct {
	// IsCapturing mirrors whether push-to-talk capture was requested.
	IsCapturing bool
	// IsSpeaking mirrors whether synthesized speech is audible.
	IsSpeaking bool

	conversation conversation

	llm          llm
	speechToText *speechToText
	textToSpeech *textToSpeech
	audioInput   *audioInput
	audioOutput  *audioOutput

	decoder           SpeechDecoder
	decodePolicy      DecodePolicy
	synthesisEncoding audio.EncodingInfo
	prebufferBytes    int
	alwaysListening   bool

	queue *turnQueue

	stateMu sync.Mutex
	state   TurnState

	runOptions RunOptions
	emitEvent  eventEmitter

	baseContext context.Context
	running     atomic.Bool
	closing     atomic.Bool
	closeOnce   sync.Once
	closed      chan struct{}
}

// NewCoordinator builds a coordinator from the given options. It fails
// on configurations that no turn could run with, like a compressed
// synthesis encoding without a decoder.
func NewCoordinator(opts ...CoordinatorOption) (*Coordinator, error) {
	c := &Coordinator{
		llm:          newLLM(),
		decodePolicy: DecodePolicySkip,
		queue:        newTurnQueue(),
		state:        TurnStateIdle,
		emitEvent:    noopEventEmitter,
		baseContext:  context.Background(),
		closed:       make(chan struct{}),
	}

	c.speechToText = newSpeechToText(nil)
	c.textToSpeech = newTextToSpeech(nil, true)
	c.audioOutput = newAudioOutput(nil)
	c.audioInput = newAudioInput(nil,
		func(frame audio.Frame) {
			c.emitEvent(events.NewUserAudioFrame(frame.Data))
			if err := c.speechToText.Feed(frame); err != nil {
				logger.Warn("Failed to feed captured frame to transcription", "error", err)
			}
		},
		func(err error) { c.reportError(err) },
	)
	c.conversation = newConversation(c.llm.availableTools)

	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Coordinator) validate() error {
	switch c.decodePolicy {
	case DecodePolicySkip, DecodePolicyAbort:
	default:
		return configurationError(StagePlayback, fmt.Errorf("unknown decode policy: %v", c.decodePolicy))
	}

	if c.prebufferBytes < 0 {
		return configurationError(StagePlayback, fmt.Errorf("negative playback prebuffer: %d", c.prebufferBytes))
	}

	if c.synthesisEncoding.Format.IsCompressed() && c.decoder == nil {
		return configurationError(StageSynthesis, fmt.Errorf("synthesis encoding %q requires a speech decoder", c.synthesisEncoding.Format))
	}

	return nil
}

// Run starts the pipeline and blocks until ctx ends or [Coordinator.Close]
// is called. Triggers raised while a turn is running queue up and run in
// order, one at a time.
//
// Run may be called at most once per coordinator.
func (c *Coordinator) Run(ctx context.Context, opts ...RunOption) error {
	if c.isClosed() {
		log.Println("Warning: coordinator already closed, skipping Run")
		return fmt.Errorf("coordinator already closed")
	}
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("coordinator is already running")
	}

	c.runOptions = RunOptions{}
	for _, opt := range opts {
		opt(&c.runOptions)
	}

	c.baseContext = ctx
	c.emitEvent = newCallbackEventEmitter(c.runOptions)
	c.llm.setEventEmitter(c.emitEvent)
	c.speechToText.SetEventEmitter(c.emitEvent)

	c.queue.StartLoop(ctx, c.runQueuedTurn)

	if c.alwaysListening {
		c.SetAlwaysListening(true)
	}

	select {
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	case <-c.closed:
		return nil
	}
}

// RunTurn runs a single turn to completion outside the queued loop,
// returning how it ended. A cancelled turn reports state
// [TurnStateAborted] with a nil error.
func (c *Coordinator) RunTurn(ctx context.Context, trigger Trigger) (*TurnResult, error) {
	return c.startTurn(ctx, trigger)
}

func (c *Coordinator) runQueuedTurn(ctx context.Context, trigger Trigger) error {
	_, err := c.startTurn(ctx, trigger)
	if err != nil {
		c.reportError(err)
	}
	return err
}

func (c *Coordinator) startTurn(ctx context.Context, trigger Trigger) (*TurnResult, error) {
	turn := newActiveTurn(trigger, turnConfig{
		llm:          c.llm.snapshot(),
		textToSpeech: c.textToSpeech.Snapshot(),
		audioOutput:  c.audioOutput.Snapshot(),

		decoder:           c.decoder,
		decodePolicy:      c.decodePolicy,
		synthesisEncoding: c.synthesisEncoding,
		prebufferBytes:    c.prebufferBytes,

		history: c.conversation.promptHistory(),

		emitEvent: c.emitEvent,
		onState:   c.setState,
	})

	if err := c.conversation.startNewTurn(turn); err != nil {
		return nil, err
	}

	result, err := turn.Run(ctx)

	if finaliseErr := c.conversation.finaliseTurn(result.turn()); finaliseErr != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(finaliseErr)
	}

	if result.State == TurnStateAborted {
		c.setState(TurnStateAborted)
	}
	c.setState(TurnStateIdle)

	if c.runOptions.onTurnMetrics != nil {
		c.runOptions.onTurnMetrics(result.Metrics)
	}

	return result, err
}

// Conversation returns a point-in-time snapshot of conversation state.
func (c *Coordinator) Conversation() Conversation {
	return c.conversation.Snapshot()
}

// State returns the current turn lifecycle state.
func (c *Coordinator) State() TurnState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	return c.state
}

func (c *Coordinator) setState(next TurnState) {
	c.stateMu.Lock()
	if c.state == next {
		c.stateMu.Unlock()
		return
	}
	c.state = next
	c.stateMu.Unlock()

	c.emitEvent(events.NewTurnStateChanged(next.String()))
	if c.runOptions.onTurnState != nil {
		c.runOptions.onTurnState(next)
	}
}

// setCaptureState applies capture-side transitions only while no turn is
// running, so voice activity cannot clobber a turn's state.
func (c *Coordinator) setCaptureState(next TurnState) {
	c.stateMu.Lock()
	current := c.state
	c.stateMu.Unlock()

	switch current {
	case TurnStateIdle, TurnStateCapturing, TurnStateTranscribing:
		c.setState(next)
	}
}

// beginUtterance opens a transcription stream fed by captured frames.
// The stream stays open across utterances in always-listening mode and
// drains after FinishUtterance in push-to-talk.
func (c *Coordinator) beginUtterance(ctx context.Context) error {
	return c.speechToText.StartUtterance(ctx, c.audioInput.EncodingInfo(), utteranceCallbacks{
		onFinal: c.handleFinalTranscript,
		onSpeechStarted: func() {
			c.setCaptureState(TurnStateCapturing)
		},
		onSpeechEnded: func() {
			c.setCaptureState(TurnStateTranscribing)
		},
		onError: c.reportError,
	})
}

func (c *Coordinator) handleFinalTranscript(transcript string) {
	if strings.TrimSpace(transcript) == "" {
		c.setCaptureState(TurnStateIdle)
		return
	}

	c.queue.Ingest(NewTranscribedPromptTrigger(transcript))
}

// reportError surfaces failures that have no caller to return to.
func (c *Coordinator) reportError(err error) {
	if err == nil {
		return
	}

	logger.Warn("Pipeline failure", "error", err)
	if c.runOptions.onError != nil {
		c.runOptions.onError(err)
	}
}

func (c *Coordinator) isClosed() bool {
	return c.closing.Load()
}

// Close tears the pipeline down: queued triggers are dropped, the active
// turn is cancelled, and capture and transcription are released. Close
// returns once the turn loop has drained.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() {
		c.closing.Store(true)

		c.queue.Stop()
		c.queue.Clear()

		if turn := c.conversation.currentTurn(); turn != nil {
			turn.Cancel()
		}

		if err := c.audioInput.Close(); err != nil {
			recordedErr := fmt.Errorf("failed to close audio input: %w", err)
			span := trace.SpanFromContext(c.baseContext)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
		}

		if err := c.speechToText.Close(); err != nil {
			recordedErr := fmt.Errorf("failed to close speech-to-text client: %w", err)
			span := trace.SpanFromContext(c.baseContext)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
		}

		c.queue.AwaitDone()
		close(c.closed)
	})
}
