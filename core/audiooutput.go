package pipeline

import (
	"reflect"

	"github.com/koscakluka/voicepipe/core/audio"
)

// audioOutput normalizes output clients with different mark support
// behind one facade used by turn playback.
//
// The facade is lightweight: it caches typed capabilities derived from
// the client so per-turn code can route without repeated type assertions.
//
// A turn should use a Snapshot() so later runtime reconfiguration does
// not change behavior mid-turn.
type audioOutput struct {
	// base stores the configured output client regardless of its mark
	// capability.
	base AudioOutput
	// marker is set when the client confirms marks through callbacks.
	marker AudioOutputMarker
	// awaiter is set when the client only exposes a blocking drain wait.
	awaiter AudioOutputAwaiter
}

// newAudioOutput builds a facade and applies Set immediately so typed
// capabilities are computed once at construction.
func newAudioOutput(client AudioOutput) *audioOutput {
	audioOutput := audioOutput{}
	audioOutput.Set(client)
	return &audioOutput
}

// Set replaces the configured output client and recomputes its mark
// capabilities. Nil and typed-nil clients are treated as unconfigured.
func (a *audioOutput) Set(client AudioOutput) {
	if a == nil {
		return
	}

	a.base = nil
	a.marker = nil
	a.awaiter = nil

	if isNilClient(client) {
		return
	}
	a.base = client

	if marker, ok := client.(AudioOutputMarker); ok {
		a.marker = marker
		return
	}
	if awaiter, ok := client.(AudioOutputAwaiter); ok {
		a.awaiter = awaiter
	}
}

func (a *audioOutput) isConfigured() bool {
	if a == nil {
		return false
	}

	return a.base != nil
}

// Snapshot returns a per-turn copy of the facade state. The copy keeps
// the same underlying client instance while freezing capability routing
// for the lifetime of the turn.
func (a *audioOutput) Snapshot() *audioOutput {
	if a == nil {
		return a
	}

	return newAudioOutput(a.base)
}

// SendAudio forwards a chunk to the configured output client. Without a
// client configured, the chunk is dropped.
func (a *audioOutput) SendAudio(audio []byte) error {
	if a == nil || a.base == nil {
		return nil
	}
	return a.base.SendAudio(audio)
}

// Mark coordinates transcript marks with output playback.
//
// Marker clients handle the callback themselves. For awaiter clients the
// blocking drain wait is bridged to a callback so turn logic can stay
// callback-driven. Without output configured, the callback is invoked
// immediately so turn state can continue progressing.
func (a *audioOutput) Mark(mark string, callback func(string)) {
	if a != nil && a.marker != nil {
		if err := a.marker.Mark(mark, callback); err != nil {
			logger.Warn("Failed to place output mark, confirming directly", "error", err)
			callback(mark)
		}
		return
	}

	if a != nil && a.awaiter != nil {
		// The drain wait blocks until everything sent so far has played.
		// Run it off the playback worker so marks do not stall audio.
		go func() {
			if err := a.awaiter.AwaitMark(); err != nil {
				logger.Warn("Failed to await output mark", "error", err)
			}
			callback(mark)
		}()
		return
	}

	callback(mark)
}

// Clear flushes buffered output on the configured client. Without a
// client configured, this is a no-op.
func (a *audioOutput) Clear() {
	if a == nil || a.base == nil {
		return
	}
	a.base.ClearBuffer()
}

// EncodingInfo returns the active output encoding metadata, falling back
// to the project default when no client is configured.
func (a *audioOutput) EncodingInfo() audio.EncodingInfo {
	if a == nil || a.base == nil {
		return audio.GetDefaultEncodingInfo()
	}
	return a.base.EncodingInfo()
}

// isNilClient detects nil and typed-nil interface values so facades can
// avoid storing unusable interface wrappers as configured clients.
func isNilClient(client any) bool {
	if client == nil {
		return true
	}

	v := reflect.ValueOf(client)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
