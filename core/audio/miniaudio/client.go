package miniaudio

import (
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/voicepipe/core/audio"
)

type clientOptions struct {
	captureEncoding  audio.EncodingInfo
	playbackEncoding audio.EncodingInfo
}

type ClientOption func(*clientOptions)

func WithCaptureEncoding(encoding audio.EncodingInfo) ClientOption {
	return func(o *clientOptions) { o.captureEncoding = encoding }
}

func WithPlaybackEncoding(encoding audio.EncodingInfo) ClientOption {
	return func(o *clientOptions) { o.playbackEncoding = encoding }
}

// Client owns the miniaudio context and the capture and playback devices
// bound to it. The devices are exposed as separate sub-clients because
// they run at independent encodings (a 16kHz microphone feed and a 48kHz
// synthesis feed is the common pairing).
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	capture  CaptureClient
	playback PlaybackClient
}

func NewClient(opts ...ClientOption) (*Client, error) {
	options := clientOptions{
		captureEncoding: audio.GetDefaultEncodingInfo(),
		playbackEncoding: audio.EncodingInfo{
			SampleRate: 48000,
			Channels:   1,
			Format:     audio.EncodingLinear16,
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}

	client := Client{audioContext: audioCtx}

	if err := client.playback.init(audioCtx, options.playbackEncoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.playback.start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	if err := client.capture.init(audioCtx, options.captureEncoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

func (c *Client) Capture() *CaptureClient {
	return &c.capture
}

func (c *Client) Playback() *PlaybackClient {
	return &c.playback
}

func (c *Client) Close() {
	_ = c.capture.uninit()
	_ = c.playback.uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}
