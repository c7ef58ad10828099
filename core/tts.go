package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/voicepipe/core/audio"
	"github.com/koscakluka/voicepipe/core/texttospeech"
)

// textToSpeech wraps one turn's speech generator. The coordinator keeps a
// template facade holding the configured client; each turn snapshots it,
// initializes its own generator lazily, and closes it with the turn.
type textToSpeech struct {
	// client stores the configured synthesis client.
	client TextToSpeechClient

	// initialized closes when init completes so workers can safely proceed.
	initialized chan struct{}
	// initOnce ensures per-turn initialization is executed once.
	initOnce sync.Once
	// initErr stores the one-time initialization result.
	initErr error

	clientMu sync.RWMutex
	// generator is the live speech generator once init succeeds.
	generator texttospeech.SpeechGenerator

	// connected reports whether a generator was initialized.
	connected atomic.Bool
	// closeStarted makes Close idempotent under concurrent shutdown paths.
	closeStarted atomic.Bool

	// isMuted reports whether speech synthesis is disabled for new turns.
	isMuted atomic.Bool
}

// speechCallbacks carries the per-turn sinks for generator output.
type speechCallbacks struct {
	// onAudio receives every synthesized chunk, still in the generator's
	// wire encoding.
	onAudio func([]byte)
	// onMark receives each confirmed mark's transcript segment.
	onMark func(string)
	// onEnded fires when the generator finished producing speech.
	onEnded func()
	// onError receives generator failures, which happen off the caller's
	// goroutine.
	onError func(error)
}

func newTextToSpeech(client TextToSpeechClient, isMuted bool) *textToSpeech {
	textToSpeech := textToSpeech{
		initialized: make(chan struct{}),
	}
	textToSpeech.isMuted.Store(isMuted)
	textToSpeech.set(client)
	return &textToSpeech
}

func (t *textToSpeech) set(client TextToSpeechClient) {
	if t == nil {
		return
	}
	if isNilClient(client) {
		t.client = nil
		return
	}
	t.client = client
}

func (t *textToSpeech) isConfigured() bool {
	return t != nil && t.client != nil
}

// Snapshot returns a fresh per-turn facade over the same client, with its
// own initialization and shutdown lifecycle.
func (t *textToSpeech) Snapshot() *textToSpeech {
	if t == nil {
		return t
	}

	return newTextToSpeech(t.client, t.isMuted.Load())
}

// init opens the turn's speech generator and wires its callbacks. Closing
// the facade concurrently with init is safe: whichever side loses the
// race closes the freshly created generator.
func (t *textToSpeech) init(ctx context.Context, encodingInfo audio.EncodingInfo, callbacks speechCallbacks) error {
	if t == nil {
		return nil
	}

	t.initOnce.Do(func() {
		defer close(t.initialized)
		t.connected.Store(false)
		if t.closeStarted.Load() || t.client == nil {
			return
		}

		ttsOptions := []texttospeech.TextToSpeechOption{
			texttospeech.WithEncodingInfo(encodingInfo),
		}
		if callbacks.onAudio != nil {
			ttsOptions = append(ttsOptions, texttospeech.WithSpeechAudioCallback(callbacks.onAudio))
		}
		if callbacks.onMark != nil {
			ttsOptions = append(ttsOptions, texttospeech.WithSpeechMarkCallback(callbacks.onMark))
		}
		if callbacks.onEnded != nil {
			ttsOptions = append(ttsOptions, texttospeech.WithSpeechEndedCallback(func(texttospeech.SpeechEndedReport) {
				callbacks.onEnded()
			}))
		}
		if callbacks.onError != nil {
			ttsOptions = append(ttsOptions, texttospeech.WithErrorCallback(callbacks.onError))
		}

		generator, err := t.client.NewSpeechGenerator(ctx, ttsOptions...)
		if err != nil {
			t.initErr = fmt.Errorf("failed to create speech generator: %w", err)
			return
		}
		if t.closeStarted.Load() {
			_ = generator.Close()
			return
		}
		t.clientMu.Lock()
		if t.closeStarted.Load() {
			t.clientMu.Unlock()
			_ = generator.Close()
			return
		}
		t.generator = generator
		t.clientMu.Unlock()
		t.connected.Store(true)
	})

	return t.initErr
}

// waitUntilInitialized blocks until init finished or the context ends,
// reporting whether a generator is live.
func (t *textToSpeech) waitUntilInitialized(ctx context.Context) bool {
	if t != nil && t.initialized != nil {
		select {
		case <-t.initialized:
			return t.connected.Load()
		case <-ctx.Done():
			return false
		}
	}
	return false
}

func (t *textToSpeech) Close() error {
	if t == nil {
		return nil
	}

	if !t.closeStarted.CompareAndSwap(false, true) {
		return nil
	}

	t.clientMu.Lock()
	generator := t.generator
	t.generator = nil
	t.connected.Store(false)
	t.clientMu.Unlock()

	if generator == nil {
		return nil
	}

	if err := generator.Close(); err != nil {
		return fmt.Errorf("failed to close speech generator: %w", err)
	}

	return nil
}

func (t *textToSpeech) SendText(text string) error {
	generator := t.liveGenerator()
	if generator == nil {
		return nil
	}

	if err := generator.SendText(text); err != nil {
		return fmt.Errorf("failed to send text to tts: %w", err)
	}
	return nil
}

func (t *textToSpeech) Mark() error {
	generator := t.liveGenerator()
	if generator == nil {
		return nil
	}

	if err := generator.Mark(); err != nil {
		return fmt.Errorf("failed to send mark to tts: %w", err)
	}
	return nil
}

func (t *textToSpeech) EndOfText() error {
	generator := t.liveGenerator()
	if generator == nil {
		return nil
	}

	if err := generator.EndOfText(); err != nil {
		return fmt.Errorf("failed to send end of text to tts: %w", err)
	}
	return nil
}

func (t *textToSpeech) Cancel() error {
	generator := t.liveGenerator()
	if generator == nil {
		return nil
	}

	if err := generator.Cancel(); err != nil {
		return fmt.Errorf("failed to cancel tts: %w", err)
	}
	return nil
}

func (t *textToSpeech) liveGenerator() texttospeech.SpeechGenerator {
	if t == nil {
		return nil
	}

	t.clientMu.RLock()
	defer t.clientMu.RUnlock()
	return t.generator
}

func (t *textToSpeech) IsMuted() bool { return t != nil && t.isMuted.Load() }

func (t *textToSpeech) Mute() {
	if t != nil {
		t.isMuted.Store(true)
	}
}

func (t *textToSpeech) Unmute() {
	if t != nil {
		t.isMuted.Store(false)
	}
}
