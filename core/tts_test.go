package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/texttospeech"
)

// generatorClientStub hands out speechGeneratorStub generators and keeps
// them around for inspection.
type generatorClientStub struct {
	newErr  error
	sendErr error

	mu         sync.Mutex
	generators []*speechGeneratorStub
}

func (c *generatorClientStub) NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	if c.newErr != nil {
		return nil, c.newErr
	}

	options := texttospeech.TextToSpeechOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	generator := &speechGeneratorStub{options: options, sendErr: c.sendErr}
	c.mu.Lock()
	c.generators = append(c.generators, generator)
	c.mu.Unlock()
	return generator, nil
}

func (c *generatorClientStub) generatorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.generators)
}

func (c *generatorClientStub) generator(index int) *speechGeneratorStub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generators[index]
}

// speechGeneratorStub records generator traffic.
type speechGeneratorStub struct {
	options texttospeech.TextToSpeechOptions
	sendErr error

	mu          sync.Mutex
	texts       []string
	markCalls   int
	endCalls    int
	cancelCalls int
	closeCalls  int
}

func (s *speechGeneratorStub) SendText(text string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *speechGeneratorStub) Mark() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCalls++
	return nil
}

func (s *speechGeneratorStub) EndOfText() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endCalls++
	return nil
}

func (s *speechGeneratorStub) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelCalls++
	return nil
}

func (s *speechGeneratorStub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

func (s *speechGeneratorStub) sentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func (s *speechGeneratorStub) markCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markCalls
}

func (s *speechGeneratorStub) endCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endCalls
}

func (s *speechGeneratorStub) cancelCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCalls
}

func (s *speechGeneratorStub) closeCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

func TestInitOpensGeneratorAndWiresCallbacks(t *testing.T) {
	client := &generatorClientStub{}
	speech := newTextToSpeech(client, false)
	audioChunks := make(chan []byte, 1)

	err := speech.init(context.Background(), audio.GetDefaultEncodingInfo(), speechCallbacks{
		onAudio: func(chunk []byte) {
			select {
			case audioChunks <- chunk:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("expected init to succeed, got %v", err)
	}
	if !speech.waitUntilInitialized(context.Background()) {
		t.Fatalf("expected a live generator after init")
	}
	if count := client.generatorCount(); count != 1 {
		t.Fatalf("expected one generator, got %d", count)
	}

	options := client.generator(0).options
	if options.EncodingInfo != audio.GetDefaultEncodingInfo() {
		t.Fatalf("expected the requested encoding, got %+v", options.EncodingInfo)
	}
	if options.SpeechAudioCallback == nil {
		t.Fatalf("expected the audio callback to be wired")
	}
	options.SpeechAudioCallback([]byte("pcm"))
	select {
	case chunk := <-audioChunks:
		if !bytes.Equal(chunk, []byte("pcm")) {
			t.Fatalf("expected the synthesized chunk, got %q", chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the synthesized chunk")
	}

	if err := speech.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
}

func TestInitRunsOnce(t *testing.T) {
	client := &generatorClientStub{}
	speech := newTextToSpeech(client, false)

	if err := speech.init(context.Background(), audio.GetDefaultEncodingInfo(), speechCallbacks{}); err != nil {
		t.Fatalf("expected init to succeed, got %v", err)
	}
	if err := speech.init(context.Background(), audio.GetDefaultEncodingInfo(), speechCallbacks{}); err != nil {
		t.Fatalf("expected a repeated init to no-op, got %v", err)
	}
	if count := client.generatorCount(); count != 1 {
		t.Fatalf("expected a single generator, got %d", count)
	}
}

func TestGeneratorTrafficRoutesAfterInit(t *testing.T) {
	client := &generatorClientStub{}
	speech := newTextToSpeech(client, false)
	if err := speech.init(context.Background(), audio.GetDefaultEncodingInfo(), speechCallbacks{}); err != nil {
		t.Fatalf("expected init to succeed, got %v", err)
	}

	if err := speech.SendText("Hello "); err != nil {
		t.Fatalf("expected text to be sent, got %v", err)
	}
	if err := speech.Mark(); err != nil {
		t.Fatalf("expected the mark to be sent, got %v", err)
	}
	if err := speech.EndOfText(); err != nil {
		t.Fatalf("expected end of text to be sent, got %v", err)
	}
	if err := speech.Cancel(); err != nil {
		t.Fatalf("expected the cancel to be sent, got %v", err)
	}

	generator := client.generator(0)
	if texts := generator.sentTexts(); len(texts) != 1 || texts[0] != "Hello " {
		t.Fatalf("expected the sent text recorded, got %v", texts)
	}
	if count := generator.markCallCount(); count != 1 {
		t.Fatalf("expected one mark, got %d", count)
	}
	if count := generator.endCallCount(); count != 1 {
		t.Fatalf("expected one end of text, got %d", count)
	}
	if count := generator.cancelCallCount(); count != 1 {
		t.Fatalf("expected one cancel, got %d", count)
	}
}

func TestGeneratorTrafficBeforeInitIsDropped(t *testing.T) {
	client := &generatorClientStub{}
	speech := newTextToSpeech(client, false)

	if err := speech.SendText("too early"); err != nil {
		t.Fatalf("expected text before init to be dropped, got %v", err)
	}
	if err := speech.Mark(); err != nil {
		t.Fatalf("expected a mark before init to be dropped, got %v", err)
	}
	if count := client.generatorCount(); count != 0 {
		t.Fatalf("expected no generator, got %d", count)
	}
}

func TestInitWithoutClientLeavesFacadeDisconnected(t *testing.T) {
	speech := newTextToSpeech(nil, false)

	if err := speech.init(context.Background(), audio.GetDefaultEncodingInfo(), speechCallbacks{}); err != nil {
		t.Fatalf("expected init without a client to no-op, got %v", err)
	}
	if speech.waitUntilInitialized(context.Background()) {
		t.Fatalf("expected no generator without a client")
	}
}

func TestInitFailureSurfaces(t *testing.T) {
	newErr := errors.New("quota exhausted")
	speech := newTextToSpeech(&generatorClientStub{newErr: newErr}, false)

	err := speech.init(context.Background(), audio.GetDefaultEncodingInfo(), speechCallbacks{})
	if !errors.Is(err, newErr) {
		t.Fatalf("expected the client failure to be preserved, got %v", err)
	}
	if speech.waitUntilInitialized(context.Background()) {
		t.Fatalf("expected no generator after a failed init")
	}
}

func TestSendTextWrapsGeneratorFailure(t *testing.T) {
	sendErr := errors.New("socket closed")
	speech := newTextToSpeech(&generatorClientStub{sendErr: sendErr}, false)
	if err := speech.init(context.Background(), audio.GetDefaultEncodingInfo(), speechCallbacks{}); err != nil {
		t.Fatalf("expected init to succeed, got %v", err)
	}

	if err := speech.SendText("Hello "); !errors.Is(err, sendErr) {
		t.Fatalf("expected the generator failure to be preserved, got %v", err)
	}
}

func TestCloseBeforeInitPreventsGeneratorCreation(t *testing.T) {
	client := &generatorClientStub{}
	speech := newTextToSpeech(client, false)

	if err := speech.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
	if err := speech.init(context.Background(), audio.GetDefaultEncodingInfo(), speechCallbacks{}); err != nil {
		t.Fatalf("expected init after close to no-op, got %v", err)
	}
	if speech.waitUntilInitialized(context.Background()) {
		t.Fatalf("expected no generator after close")
	}
	if count := client.generatorCount(); count != 0 {
		t.Fatalf("expected no generator to be created, got %d", count)
	}
}

func TestCloseAfterInitClosesGenerator(t *testing.T) {
	client := &generatorClientStub{}
	speech := newTextToSpeech(client, false)
	if err := speech.init(context.Background(), audio.GetDefaultEncodingInfo(), speechCallbacks{}); err != nil {
		t.Fatalf("expected init to succeed, got %v", err)
	}

	if err := speech.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
	if count := client.generator(0).closeCallCount(); count != 1 {
		t.Fatalf("expected the generator closed once, got %d", count)
	}

	if err := speech.Close(); err != nil {
		t.Fatalf("expected a repeated close to no-op, got %v", err)
	}
	if count := client.generator(0).closeCallCount(); count != 1 {
		t.Fatalf("expected no further closes, got %d", count)
	}

	if err := speech.SendText("after close"); err != nil {
		t.Fatalf("expected text after close to be dropped, got %v", err)
	}
	if texts := client.generator(0).sentTexts(); len(texts) != 0 {
		t.Fatalf("expected no text to reach the closed generator, got %v", texts)
	}
}

func TestWaitUntilInitializedHonorsContext(t *testing.T) {
	speech := newTextToSpeech(&generatorClientStub{}, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if speech.waitUntilInitialized(ctx) {
		t.Fatalf("expected the wait to give up with the context")
	}
}

func TestSnapshotCreatesIndependentLifecycles(t *testing.T) {
	client := &generatorClientStub{}
	template := newTextToSpeech(client, false)

	first := template.Snapshot()
	if err := first.init(context.Background(), audio.GetDefaultEncodingInfo(), speechCallbacks{}); err != nil {
		t.Fatalf("expected the first snapshot to init, got %v", err)
	}
	second := template.Snapshot()
	if err := second.init(context.Background(), audio.GetDefaultEncodingInfo(), speechCallbacks{}); err != nil {
		t.Fatalf("expected the second snapshot to init, got %v", err)
	}
	if count := client.generatorCount(); count != 2 {
		t.Fatalf("expected one generator per snapshot, got %d", count)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("expected the first snapshot to close, got %v", err)
	}
	if count := client.generator(0).closeCallCount(); count != 1 {
		t.Fatalf("expected the first generator closed, got %d", count)
	}
	if count := client.generator(1).closeCallCount(); count != 0 {
		t.Fatalf("expected the second generator untouched, got %d closes", count)
	}

	if err := second.Close(); err != nil {
		t.Fatalf("expected the second snapshot to close, got %v", err)
	}
}

func TestSnapshotInheritsMuting(t *testing.T) {
	template := newTextToSpeech(&generatorClientStub{}, true)

	muted := template.Snapshot()
	if !muted.IsMuted() {
		t.Fatalf("expected the snapshot to inherit muting")
	}

	template.Unmute()
	unmuted := template.Snapshot()
	if unmuted.IsMuted() {
		t.Fatalf("expected the snapshot to inherit the unmuted state")
	}
	if !muted.IsMuted() {
		t.Fatalf("expected the earlier snapshot to keep its own flag")
	}
}
