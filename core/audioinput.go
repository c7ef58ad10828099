package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/koscakluka/voicepipe/core/audio"
)

// audioInput wraps the configured capture client and gates its frames by
// the capture policy: push-to-talk by default, continuously when
// always-listening is enabled.
type audioInput struct {
	// base stores the configured input client used for streaming audio.
	base AudioInput
	// captureControls is set when the input client supports explicit
	// capture start/stop.
	captureControls AudioInputControllable

	// connected reports whether a concrete input client is currently configured.
	connected atomic.Bool
	// isCapturing reports whether the input client is currently capturing audio.
	isCapturing atomic.Bool

	// alwaysCapture keeps capture running continuously, with turn
	// boundaries driven by voice activity instead of capture controls.
	alwaysCapture atomic.Bool
	// shouldCapture reports whether capture was explicitly requested.
	shouldCapture atomic.Bool

	// onFrame receives every captured frame that passes the capture gate.
	onFrame func(frame audio.Frame)
	// onError receives capture failures, which happen off the caller's
	// goroutine.
	onError func(error)
}

func newAudioInput(client AudioInput, onFrame func(audio.Frame), onError func(error)) *audioInput {
	if onFrame == nil {
		onFrame = func(audio.Frame) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	audioInput := audioInput{onFrame: onFrame, onError: onError}
	audioInput.Set(client)
	return &audioInput
}

func (a *audioInput) Set(client AudioInput) {
	if a == nil {
		return
	}

	a.base = client
	a.captureControls = nil
	a.connected.Store(false)
	a.isCapturing.Store(false)

	if isNilClient(client) {
		a.base = nil
		return
	}

	a.connected.Store(true)
	if controls, ok := client.(AudioInputControllable); ok {
		a.captureControls = controls
	}
}

func (a *audioInput) IsConfigured() bool            { return a != nil && a.connected.Load() }
func (a *audioInput) SupportsCaptureControls() bool { return a != nil && a.captureControls != nil }
func (a *audioInput) IsAlwaysListening() bool       { return a != nil && a.alwaysCapture.Load() }
func (a *audioInput) IsCapturing() bool             { return a != nil && a.isCapturing.Load() }
func (a *audioInput) ShouldCapture() bool           { return a != nil && a.shouldCapture.Load() }

func (a *audioInput) EnableAlwaysListening(ctx context.Context) error {
	if a == nil {
		return nil
	}

	a.alwaysCapture.Store(true)
	return a.Capture(ctx)
}

func (a *audioInput) DisableAlwaysListening(context.Context) error {
	if a == nil {
		return nil
	}

	a.alwaysCapture.Store(false)
	return a.StopCapture()
}

// RequestCapture opens the capture gate and starts the device if it is
// not already running.
func (a *audioInput) RequestCapture(ctx context.Context) error {
	if a == nil {
		return nil
	}

	a.shouldCapture.Store(true)
	return a.Capture(ctx)
}

// ReleaseCapture closes the capture gate and stops the device unless
// always-listening keeps it open.
func (a *audioInput) ReleaseCapture(context.Context) error {
	if a == nil {
		return nil
	}

	a.shouldCapture.Store(false)
	return a.StopCapture()
}

// Capture starts the input client if the capture policy asks for audio.
// Clients whose Stream blocks are run on their own goroutine; failures
// there surface through the error callback.
func (a *audioInput) Capture(ctx context.Context) error {
	if a == nil {
		return nil
	}

	if !a.isCapturing.CompareAndSwap(false, true) {
		return nil
	}

	if a.SupportsCaptureControls() {
		if a.IsAlwaysListening() || a.ShouldCapture() {
			go func() {
				if err := a.captureControls.StartCapture(ctx, a.onAudio); err != nil {
					a.isCapturing.Store(false)
					a.onError(connectionError(StageTranscription, err))
				}
			}()
			return nil
		}

		a.isCapturing.Store(false)
		return nil
	}

	if a.base != nil {
		go func() {
			if err := a.base.Stream(ctx, a.onAudio); err != nil {
				a.isCapturing.Store(false)
				a.onError(connectionError(StageTranscription, err))
			}
		}()
		return nil
	}

	a.isCapturing.Store(false)
	return nil
}

func (a *audioInput) StopCapture() error {
	if a.SupportsCaptureControls() {
		if a.IsAlwaysListening() || a.ShouldCapture() {
			return nil
		}

		if err := a.captureControls.StopCapture(); err != nil {
			return err
		}
		a.isCapturing.Store(false)
		return nil
	}

	return nil
}

func (a *audioInput) Close() error {
	var errs error
	if a.base != nil && a.IsConfigured() {
		if a.captureControls != nil {
			if err := a.captureControls.StopCapture(); err != nil {
				errs = errors.Join(errs, err)
			}
		}

		a.base.Close()
	}
	a.isCapturing.Store(false)

	return errs
}

func (a *audioInput) EncodingInfo() audio.EncodingInfo {
	if a == nil || a.base == nil {
		return audio.GetDefaultEncodingInfo()
	}

	return a.base.EncodingInfo()
}

// onAudio drops frames that arrive while the capture gate is closed,
// which happens with clients that cannot stop their device stream.
func (a *audioInput) onAudio(frame audio.Frame) {
	if !a.IsAlwaysListening() && !a.ShouldCapture() {
		return
	}

	a.onFrame(frame)
}
