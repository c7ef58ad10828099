package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/events"
	"github.com/koscakluka/voicepipe/core/llms"
	"github.com/koscakluka/voicepipe/core/texttospeech"
)

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) emit(event events.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *eventRecorder) count(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, event := range r.events {
		if event.Kind() == kind {
			count++
		}
	}
	return count
}

func (r *eventRecorder) first(kind events.Kind) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, event := range r.events {
		if event.Kind() == kind {
			return event, true
		}
	}
	return nil, false
}

// promptLLMStub answers every prompt with a fixed response, streamed as a
// single chunk.
type promptLLMStub struct {
	response string
}

func (s promptLLMStub) Prompt(_ context.Context, _ string, opts ...llms.PromptOption) (*llms.Response, error) {
	options := llms.PromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if options.Stream != nil {
		options.Stream(s.response)
	}
	return &llms.Response{Content: s.response}, nil
}

// blockingLLMStub streams one chunk and then hangs until its context is
// cancelled, reporting the error it returned with.
type blockingLLMStub struct {
	chunk    string
	returned chan error
}

func newBlockingLLMStub(chunk string) *blockingLLMStub {
	return &blockingLLMStub{chunk: chunk, returned: make(chan error, 1)}
}

func (s *blockingLLMStub) Prompt(ctx context.Context, _ string, opts ...llms.PromptOption) (*llms.Response, error) {
	options := llms.PromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if options.Stream != nil {
		options.Stream(s.chunk)
	}

	<-ctx.Done()
	select {
	case s.returned <- ctx.Err():
	default:
	}
	return nil, ctx.Err()
}

type failingLLMStub struct {
	err error
}

func (s failingLLMStub) Prompt(context.Context, string, ...llms.PromptOption) (*llms.Response, error) {
	return nil, s.err
}

// echoSpeechClientStub synthesizes each sentence into its own bytes, so
// playback order and transcripts can be asserted exactly.
type echoSpeechClientStub struct {
	mu         sync.Mutex
	generators []*echoSpeechGenerator
}

func (c *echoSpeechClientStub) NewSpeechGenerator(_ context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	options := texttospeech.TextToSpeechOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	generator := &echoSpeechGenerator{options: options}
	c.mu.Lock()
	c.generators = append(c.generators, generator)
	c.mu.Unlock()
	return generator, nil
}

func (c *echoSpeechClientStub) generatorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.generators)
}

type echoSpeechGenerator struct {
	options texttospeech.TextToSpeechOptions

	mu          sync.Mutex
	sinceMark   string
	cancelCalls int
	closeCalls  int
}

func (g *echoSpeechGenerator) SendText(text string) error {
	g.mu.Lock()
	g.sinceMark += text
	g.mu.Unlock()

	if g.options.SpeechAudioCallback != nil {
		g.options.SpeechAudioCallback([]byte(text))
	}
	return nil
}

func (g *echoSpeechGenerator) Mark() error {
	g.mu.Lock()
	transcript := strings.TrimSpace(g.sinceMark)
	g.sinceMark = ""
	g.mu.Unlock()

	if g.options.SpeechMarkCallback != nil {
		g.options.SpeechMarkCallback(transcript)
	}
	return nil
}

func (g *echoSpeechGenerator) EndOfText() error {
	if g.options.SpeechEndedCallback != nil {
		g.options.SpeechEndedCallback(texttospeech.SpeechEndedReport{})
	}
	return nil
}

func (g *echoSpeechGenerator) Cancel() error {
	g.mu.Lock()
	g.cancelCalls++
	g.mu.Unlock()
	return nil
}

func (g *echoSpeechGenerator) Close() error {
	g.mu.Lock()
	g.closeCalls++
	g.mu.Unlock()
	return nil
}

// prefixFailingDecoder rejects chunks starting with failPrefix and passes
// everything else through unchanged.
type prefixFailingDecoder struct {
	failPrefix string
}

func (d prefixFailingDecoder) Decode(chunk []byte) ([]byte, error) {
	if strings.HasPrefix(string(chunk), d.failPrefix) {
		return nil, fmt.Errorf("malformed chunk")
	}
	return chunk, nil
}

func (d prefixFailingDecoder) Encoding() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

type stateRecorder struct {
	mu     sync.Mutex
	states []TurnState
}

func (r *stateRecorder) record(state TurnState) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
}

func (r *stateRecorder) seen(state TurnState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, seen := range r.states {
		if seen == state {
			return true
		}
	}
	return false
}

func newTestLLM(client LLM) llm {
	runtime := newLLM()
	runtime.set(client)
	return runtime
}

func TestTurnStreamsSentencesThroughPlaybackInOrder(t *testing.T) {
	recorder := &eventRecorder{}
	states := &stateRecorder{}
	speechClient := &echoSpeechClientStub{}
	output := &markingOutputStub{}

	turn := newActiveTurn(NewPromptTrigger("tell me a story"), turnConfig{
		llm:          newTestLLM(promptLLMStub{response: "One. Two. Three."}),
		textToSpeech: newTextToSpeech(speechClient, false),
		audioOutput:  newAudioOutput(output),
		emitEvent:    recorder.emit,
		onState:      states.record,
	})

	result, err := turn.Run(context.Background())
	if err != nil {
		t.Fatalf("expected turn to complete, got %v", err)
	}

	if result.State != TurnStateIdle {
		t.Fatalf("expected state %v, got %v", TurnStateIdle, result.State)
	}
	if result.Response != "One. Two. Three." {
		t.Fatalf("expected full response, got %q", result.Response)
	}
	if result.Spoken != "One. Two. Three." {
		t.Fatalf("expected full spoken transcript, got %q", result.Spoken)
	}

	played := output.sentAudio()
	expected := []string{"One. ", "Two. ", "Three. "}
	if len(played) != len(expected) {
		t.Fatalf("expected %d played chunks, got %d", len(expected), len(played))
	}
	for i, chunk := range played {
		if string(chunk) != expected[i] {
			t.Fatalf("expected chunk %d to be %q, got %q", i, expected[i], chunk)
		}
	}

	if !states.seen(TurnStateGenerating) || !states.seen(TurnStateSpeaking) {
		t.Fatalf("expected generating and speaking states, got %v", states.states)
	}
	if recorder.count(events.KindTurnCompleted) != 1 {
		t.Fatalf("expected exactly one turn completed event")
	}
	if recorder.count(events.KindAssistantPlaybackMarkPlayed) != 3 {
		t.Fatalf("expected three mark played events, got %d", recorder.count(events.KindAssistantPlaybackMarkPlayed))
	}
	if recorder.count(events.KindTurnFailed) != 0 {
		t.Fatalf("did not expect a turn failed event")
	}
}

func TestCancelDuringGenerationAbortsQuietly(t *testing.T) {
	recorder := &eventRecorder{}
	client := newBlockingLLMStub("Partial")

	turn := newActiveTurn(NewPromptTrigger("keep going"), turnConfig{
		llm:       newTestLLM(client),
		emitEvent: recorder.emit,
	})

	results := make(chan *TurnResult, 1)
	errs := make(chan error, 1)
	go func() {
		result, err := turn.Run(context.Background())
		results <- result
		errs <- err
	}()

	waitForCondition(t, 2*time.Second, "first generated chunk", func() bool {
		return turn.textBuffer.String() != ""
	})
	turn.Cancel()

	var result *TurnResult
	select {
	case result = <-results:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for cancelled turn to finish")
	}
	if err := <-errs; err != nil {
		t.Fatalf("expected cancellation to end without error, got %v", err)
	}

	if result.State != TurnStateAborted {
		t.Fatalf("expected state %v, got %v", TurnStateAborted, result.State)
	}
	if result.Response != "Partial" {
		t.Fatalf("expected partial response to be kept, got %q", result.Response)
	}

	select {
	case err := <-client.returned:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected generation stream to close with context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for generation stream to close")
	}

	if recorder.count(events.KindTurnCancelled) != 1 {
		t.Fatalf("expected exactly one turn cancelled event")
	}
	if recorder.count(events.KindTurnCompleted) != 0 || recorder.count(events.KindTurnFailed) != 0 {
		t.Fatalf("cancellation should emit neither completion nor failure")
	}
}

func TestTurnSkipsUndecodableChunkAndContinues(t *testing.T) {
	recorder := &eventRecorder{}
	output := &markingOutputStub{}

	turn := newActiveTurn(NewPromptTrigger("go"), turnConfig{
		llm:          newTestLLM(promptLLMStub{response: "Alpha. Beta. Gamma."}),
		textToSpeech: newTextToSpeech(&echoSpeechClientStub{}, false),
		audioOutput:  newAudioOutput(output),
		decoder:      prefixFailingDecoder{failPrefix: "Beta"},
		decodePolicy: DecodePolicySkip,
		emitEvent:    recorder.emit,
	})

	result, err := turn.Run(context.Background())
	if err != nil {
		t.Fatalf("expected skip policy to keep the turn alive, got %v", err)
	}
	if result.State != TurnStateIdle {
		t.Fatalf("expected state %v, got %v", TurnStateIdle, result.State)
	}

	played := output.sentAudio()
	expected := []string{"Alpha. ", "Gamma. "}
	if len(played) != len(expected) {
		t.Fatalf("expected %d played chunks, got %d", len(expected), len(played))
	}
	for i, chunk := range played {
		if string(chunk) != expected[i] {
			t.Fatalf("expected chunk %d to be %q, got %q", i, expected[i], chunk)
		}
	}

	event, found := recorder.first(events.KindAssistantSpeechChunkSkipped)
	if !found {
		t.Fatalf("expected a chunk skipped event")
	}
	if skipped := event.(events.AssistantSpeechChunkSkipped); skipped.Index != 1 {
		t.Fatalf("expected chunk 1 to be skipped, got %d", skipped.Index)
	}
	if result.Metrics.SkippedChunks != 1 {
		t.Fatalf("expected one skipped chunk in metrics, got %d", result.Metrics.SkippedChunks)
	}
}

func TestTurnAbortsOnUndecodableChunkUnderAbortPolicy(t *testing.T) {
	recorder := &eventRecorder{}

	turn := newActiveTurn(NewPromptTrigger("go"), turnConfig{
		llm:          newTestLLM(promptLLMStub{response: "Alpha. Beta. Gamma."}),
		textToSpeech: newTextToSpeech(&echoSpeechClientStub{}, false),
		audioOutput:  newAudioOutput(&markingOutputStub{}),
		decoder:      prefixFailingDecoder{failPrefix: "Beta"},
		decodePolicy: DecodePolicyAbort,
		emitEvent:    recorder.emit,
	})

	result, err := turn.Run(context.Background())
	if err == nil {
		t.Fatalf("expected abort policy to fail the turn")
	}
	if !IsDecodeError(err) {
		t.Fatalf("expected a decode error, got %v", err)
	}
	if stage, ok := ErrorStage(err); !ok || stage != StagePlayback {
		t.Fatalf("expected failure in stage %q, got %q", StagePlayback, stage)
	}
	if result.State != TurnStateAborted {
		t.Fatalf("expected state %v, got %v", TurnStateAborted, result.State)
	}

	event, found := recorder.first(events.KindTurnFailed)
	if !found {
		t.Fatalf("expected a turn failed event")
	}
	if failed := event.(events.TurnFailed); failed.Stage != string(StagePlayback) {
		t.Fatalf("expected failed stage %q, got %q", StagePlayback, failed.Stage)
	}
}

func TestTurnCompletesTextOnlyWithoutSpeechClients(t *testing.T) {
	recorder := &eventRecorder{}

	turn := newActiveTurn(NewPromptTrigger("hello"), turnConfig{
		llm:       newTestLLM(promptLLMStub{response: "Just text."}),
		emitEvent: recorder.emit,
	})

	result, err := turn.Run(context.Background())
	if err != nil {
		t.Fatalf("expected text-only turn to complete, got %v", err)
	}
	if result.State != TurnStateIdle {
		t.Fatalf("expected state %v, got %v", TurnStateIdle, result.State)
	}
	if result.Response != "Just text." {
		t.Fatalf("expected response %q, got %q", "Just text.", result.Response)
	}
	if result.Spoken != "" {
		t.Fatalf("expected nothing spoken, got %q", result.Spoken)
	}
	if recorder.count(events.KindTurnCompleted) != 1 {
		t.Fatalf("expected exactly one turn completed event")
	}
}

func TestTurnFailsWithoutGenerationClient(t *testing.T) {
	recorder := &eventRecorder{}

	turn := newActiveTurn(NewPromptTrigger("hello"), turnConfig{
		llm:       newLLM(),
		emitEvent: recorder.emit,
	})

	result, err := turn.Run(context.Background())
	if err == nil {
		t.Fatalf("expected turn without a generation client to fail")
	}
	if !errors.Is(err, ErrLLMNotConfigured) {
		t.Fatalf("expected ErrLLMNotConfigured, got %v", err)
	}
	if !IsConfigurationError(err) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
	if stage, ok := ErrorStage(err); !ok || stage != StageGeneration {
		t.Fatalf("expected failure in stage %q, got %q", StageGeneration, stage)
	}
	if result.State != TurnStateAborted {
		t.Fatalf("expected state %v, got %v", TurnStateAborted, result.State)
	}
}

func TestTurnWrapsGenerationFailure(t *testing.T) {
	turn := newActiveTurn(NewPromptTrigger("hello"), turnConfig{
		llm: newTestLLM(failingLLMStub{err: fmt.Errorf("upstream unavailable")}),
	})

	result, err := turn.Run(context.Background())
	if err == nil {
		t.Fatalf("expected generation failure to fail the turn")
	}
	if !IsConnectionError(err) {
		t.Fatalf("expected a connection error, got %v", err)
	}
	if stage, ok := ErrorStage(err); !ok || stage != StageGeneration {
		t.Fatalf("expected failure in stage %q, got %q", StageGeneration, stage)
	}
	if result.State != TurnStateAborted {
		t.Fatalf("expected state %v, got %v", TurnStateAborted, result.State)
	}
}

func TestStopSpeakingKeepsResponseText(t *testing.T) {
	output := &markingOutputStub{}
	speech := newTextToSpeech(&echoSpeechClientStub{}, false)
	speech.Mute()

	turn := newActiveTurn(NewPromptTrigger("hello"), turnConfig{
		llm:          newTestLLM(promptLLMStub{response: "Silent but complete."}),
		textToSpeech: speech,
		audioOutput:  newAudioOutput(output),
	})

	result, err := turn.Run(context.Background())
	if err != nil {
		t.Fatalf("expected muted turn to complete, got %v", err)
	}
	if result.State != TurnStateIdle {
		t.Fatalf("expected state %v, got %v", TurnStateIdle, result.State)
	}
	if result.Response != "Silent but complete." {
		t.Fatalf("expected full response, got %q", result.Response)
	}
	if len(output.sentAudio()) != 0 {
		t.Fatalf("expected no audio to reach the output while muted, got %d chunks", len(output.sentAudio()))
	}
}
