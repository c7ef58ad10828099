package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/events"
	"github.com/koscakluka/voicepipe/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Trigger is what starts a turn: a finalized transcript from the
// transcription stream, or a prompt injected directly.
type Trigger struct {
	Prompt        string
	IsTranscribed bool
	Timestamp     time.Time
}

func (t Trigger) String() string { return t.Prompt }

func NewPromptTrigger(prompt string) Trigger {
	return Trigger{
		Prompt:    prompt,
		Timestamp: time.Now(),
	}
}

func NewTranscribedPromptTrigger(prompt string) Trigger {
	return Trigger{
		Prompt:        prompt,
		IsTranscribed: true,
		Timestamp:     time.Now(),
	}
}

// TurnResult reports how one turn ended. A cancelled turn is not an
// error: it ends with state [TurnStateAborted] and a nil error, with
// Spoken holding what was audibly delivered before the cut.
type TurnResult struct {
	ID     string
	Prompt string
	// Response is the full generated text, or the portion generated
	// before cancellation.
	Response string
	// Spoken is the mark-confirmed part of Response that reached the
	// listener.
	Spoken    string
	ToolCalls []llms.ToolCall
	State     TurnState
	Metrics   TurnMetrics
}

func (r *TurnResult) turn() llms.Turn {
	return llms.Turn{
		ID:        r.ID,
		Prompt:    r.Prompt,
		Response:  r.Response,
		Spoken:    r.Spoken,
		ToolCalls: r.ToolCalls,
		Cancelled: r.State == TurnStateAborted,
	}
}

// turnConfig carries the per-turn snapshots of everything the coordinator
// has configured. All fields are owned by the turn for its lifetime.
type turnConfig struct {
	llm          llm
	textToSpeech *textToSpeech
	audioOutput  *audioOutput

	decoder           SpeechDecoder
	decodePolicy      DecodePolicy
	synthesisEncoding audio.EncodingInfo
	prebufferBytes    int

	history []llms.Turn

	emitEvent eventEmitter
	onState   func(TurnState)
}

// activeTurn drives one trigger through generation, synthesis and
// playback. The three workers overlap: generation feeds the text buffer,
// the text worker streams sentences to the speech generator, and the
// playback worker drains synthesized audio to the device.
type activeTurn struct {
	id      string
	trigger Trigger

	ctxMu  sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc

	llm     llm
	history []llms.Turn

	textBuffer   *textBuffer
	textToSpeech *textToSpeech
	audioBuffer  *audioBuffer
	audioOutput  *audioOutput
	sink         *playbackSink

	synthesisEncoding audio.EncodingInfo

	emitEvent eventEmitter
	metrics   *metricsRecorder
	onState   func(TurnState)

	// response is written by the generation worker and read after the
	// workers join.
	response *llms.Response

	errMu     sync.Mutex
	workerErr error

	cancelled atomic.Bool
	finalised bool
}

func newActiveTurn(trigger Trigger, config turnConfig) *activeTurn {
	if config.emitEvent == nil {
		config.emitEvent = noopEventEmitter
	}
	if config.onState == nil {
		config.onState = func(TurnState) {}
	}
	if config.audioOutput == nil {
		config.audioOutput = newAudioOutput(nil)
	}
	if config.textToSpeech == nil {
		config.textToSpeech = newTextToSpeech(nil, false)
	}

	synthesisEncoding := config.synthesisEncoding
	if synthesisEncoding.IsZero() {
		synthesisEncoding = config.audioOutput.EncodingInfo()
	}
	bufferEncoding := config.audioOutput.EncodingInfo()
	if config.decoder != nil {
		bufferEncoding = config.decoder.Encoding()
	}

	turn := &activeTurn{
		id:      uuid.NewString(),
		trigger: trigger,

		llm:     config.llm,
		history: config.history,

		textBuffer:   newTextBuffer(),
		textToSpeech: config.textToSpeech,
		audioBuffer:  newAudioBuffer(bufferEncoding, config.prebufferBytes),
		audioOutput:  config.audioOutput,

		synthesisEncoding: synthesisEncoding,

		emitEvent: config.emitEvent,
		metrics:   newMetricsRecorder(),
		onState:   config.onState,
	}
	turn.metrics.seed(trigger.Timestamp)
	turn.llm.setEventEmitter(config.emitEvent)

	turn.sink = newPlaybackSink(
		config.decoder,
		config.decodePolicy,
		turn.audioBuffer,
		turn.audioOutput,
		config.emitEvent,
		turn.metrics,
		func(err error) { turn.fail(err) },
		func() { turn.onState(TurnStateSpeaking) },
	)

	return turn
}

// Run executes the turn's three workers and blocks until all of them
// finish. Worker failures are joined; a cancelled turn returns a nil
// error with state [TurnStateAborted].
func (t *activeTurn) Run(ctx context.Context) (*TurnResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	t.setContext(ctx, cancel)

	t.emitEvent(events.NewTurnStarted(t.id, t.trigger.Prompt))
	t.onState(TurnStateGenerating)

	wg := &sync.WaitGroup{}
	run := func(worker workerRun) {
		defer wg.Done()
		if err := worker(ctx); err != nil {
			t.fail(err)
		}
	}

	wg.Add(3)
	go run(panicSafeNamedWorker("llm generation", t.generateResponse))
	go run(panicSafeNamedWorker("response text processing", t.processResponseText))
	go run(panicSafeNamedWorker("speech processing", t.processSpeech))

	wg.Wait()

	finaliseErr := func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("active turn finalise panicked: %v", recovered)
			}
		}()

		t.Finalise()
		return nil
	}()
	if finaliseErr != nil {
		t.addErr(finaliseErr)
	}

	t.metrics.record(ctx)

	err := t.takeErr()
	result := t.result(err != nil)
	switch {
	case err != nil:
		stage := StageGeneration
		if failedStage, ok := ErrorStage(err); ok {
			stage = failedStage
		}
		t.emitEvent(events.NewTurnFailed(t.id, string(stage), err.Error()))
		return result, fmt.Errorf("one or more active turn processes failed: %w", err)
	case t.IsCancelled():
		return result, nil
	default:
		t.emitEvent(events.NewTurnCompleted(t.id))
		return result, nil
	}
}

func (t *activeTurn) generateResponse(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "generate response")
	defer span.End()

	response, err := t.llm.generate(ctx, t.trigger.Prompt, t.history,
		func(chunk string) {
			t.metrics.stampFirstToken()
			t.textBuffer.AddChunk(chunk)
		},
		t.IsCancelled,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if response != nil {
		t.response = response
		var toolCalls []string
		for _, toolCall := range response.ToolCalls {
			toolCalls = append(toolCalls, toolCall.Name)
		}
		span.SetAttributes(attribute.StringSlice("assistant_turn.tool_calls", toolCalls))
	}

	t.metrics.stampGenerationEnded()
	t.textBuffer.Complete()
	return nil
}

func (t *activeTurn) processResponseText(ctx context.Context) error {
	done := withContextCancelHook(ctx, t.textBuffer.Clear)
	defer close(done)

	_, span := tracer.Start(ctx, "passing text to tts")
	defer span.End()

	if err := t.textToSpeech.init(ctx, t.synthesisEncoding, speechCallbacks{
		onAudio: t.sink.Ingest,
		onMark:  t.sink.IngestMark,
		onEnded: t.sink.Finish,
		onError: func(err error) {
			t.fail(connectionError(StageSynthesis, err))
		},
	}); err != nil {
		err = connectionError(StageSynthesis, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	splitter := sentenceSplitter{}
textLoop:
	for chunk := range t.textBuffer.Chunks {
		if t.IsCancelled() {
			break textLoop
		}

		for _, sentence := range splitter.Push(chunk) {
			if err := t.sendSentence(sentence); err != nil {
				span.RecordError(err)
			}
		}
	}

	if remainder := splitter.Flush(); remainder != "" && !t.IsCancelled() {
		if err := t.sendSentence(remainder); err != nil {
			span.RecordError(err)
		}
	}

	if err := t.textToSpeech.EndOfText(); err != nil {
		span.RecordError(fmt.Errorf("failed to end of text to tts: %w", err))
	}

	return nil
}

// sendSentence streams one sentence to the speech generator and marks
// its boundary, so synthesized audio comes back segmented the same way
// the text went in.
func (t *activeTurn) sendSentence(sentence string) error {
	if err := t.textToSpeech.SendText(sentence + " "); err != nil {
		return err
	}
	if err := t.textToSpeech.Mark(); err != nil {
		return err
	}
	return nil
}

func (t *activeTurn) processSpeech(ctx context.Context) error {
	if !t.textToSpeech.waitUntilInitialized(ctx) {
		return nil
	}

	return t.sink.play(ctx, func() bool {
		return t.IsCancelled() || t.textToSpeech.IsMuted()
	})
}

// Cancel cuts the turn short: buffered text and audio are dropped, open
// generator streams are told to stop, and the turn context is cancelled
// so in-flight requests close promptly.
func (t *activeTurn) Cancel() {
	if !t.cancelled.CompareAndSwap(false, true) {
		return
	}

	t.textBuffer.Clear()
	if err := t.textToSpeech.Cancel(); err != nil {
		span := trace.SpanFromContext(t.Ctx())
		span.RecordError(fmt.Errorf("failed to cancel tts resources while cancelling active turn: %w", err))
	}
	t.audioBuffer.Stop()
	t.audioOutput.Clear()
	t.cancelContext()

	t.emitEvent(events.NewTurnCancelled())
}

func (t *activeTurn) IsCancelled() bool {
	return t.cancelled.Load()
}

func (t *activeTurn) Pause() {
	t.audioBuffer.Pause()
	t.audioOutput.Clear()
	t.emitEvent(events.NewAssistantPlaybackPaused())
}

func (t *activeTurn) Resume() {
	t.audioBuffer.Resume()
	t.emitEvent(events.NewAssistantPlaybackResumed())
}

// StopSpeaking mutes the rest of the turn's speech without cancelling
// it; generation and the textual response continue.
func (t *activeTurn) StopSpeaking() {
	t.textToSpeech.Mute()
	t.audioBuffer.Stop()
	t.audioOutput.Clear()
}

func (t *activeTurn) Finalise() {
	if t.finalised {
		return
	}
	t.finalised = true

	if err := t.textToSpeech.Close(); err != nil {
		err = fmt.Errorf("failed to close tts resources while finalising active turn: %w", err)
		span := trace.SpanFromContext(t.Ctx())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// fail records an error raised by a worker or an async callback and
// tears the turn down; the collected error is reported by Run. Errors
// arriving after the turn was cancelled are part of the wind-down and
// are dropped, because cancellation is not an error.
func (t *activeTurn) fail(err error) {
	if err == nil || t.IsCancelled() {
		return
	}

	t.addErr(err)
	t.cancelContext()
}

func (t *activeTurn) addErr(err error) {
	t.errMu.Lock()
	t.workerErr = errors.Join(t.workerErr, err)
	t.errMu.Unlock()
}

func (t *activeTurn) takeErr() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.workerErr
}

// view is a point-in-time look at the still-running turn. Response and
// Spoken grow as generation and playback progress.
func (t *activeTurn) view() llms.Turn {
	return llms.Turn{
		ID:        t.id,
		Prompt:    t.trigger.Prompt,
		Response:  t.textBuffer.String(),
		Spoken:    t.audioBuffer.ApproximateSpokenTranscript(time.Now()),
		Cancelled: t.IsCancelled(),
	}
}

func (t *activeTurn) result(failed bool) *TurnResult {
	state := TurnStateIdle
	if failed || t.IsCancelled() {
		state = TurnStateAborted
	}

	response := t.textBuffer.String()
	var toolCalls []llms.ToolCall
	if t.response != nil {
		response = t.response.Content
		toolCalls = t.response.ToolCalls
	}

	return &TurnResult{
		ID:        t.id,
		Prompt:    t.trigger.Prompt,
		Response:  response,
		Spoken:    t.audioBuffer.SpokenTranscript(),
		ToolCalls: toolCalls,
		State:     state,
		Metrics:   t.metrics.snapshot(),
	}
}

func (t *activeTurn) setContext(ctx context.Context, cancel context.CancelFunc) {
	t.ctxMu.Lock()
	t.ctx = ctx
	t.cancel = cancel
	t.ctxMu.Unlock()
}

func (t *activeTurn) Ctx() context.Context {
	t.ctxMu.RLock()
	defer t.ctxMu.RUnlock()

	if t.ctx == nil {
		return context.Background()
	}
	return t.ctx
}

func (t *activeTurn) cancelContext() {
	t.ctxMu.RLock()
	cancel := t.cancel
	t.ctxMu.RUnlock()

	if cancel != nil {
		cancel()
	}
}
