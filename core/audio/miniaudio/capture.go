package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/voicepipe/core/audio"
)

// CaptureClient drives the microphone device and hands captured frames to
// a single listener. Frames are copied out of the device buffer so the
// listener owns them outright.
type CaptureClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig
	encoding     audio.EncodingInfo

	onFrame func(frame audio.Frame)

	mu sync.Mutex
}

func (c *CaptureClient) init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if encoding.Format != audio.EncodingLinear16 {
		return fmt.Errorf("unsupported capture format %q", encoding.Format.Name())
	}

	format := malgo.FormatS16
	channels := encoding.ChannelCount()
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.encoding = encoding
	c.config = malgo.DefaultDeviceConfig(malgo.Capture)
	c.config.SampleRate = uint32(encoding.SampleRate)
	c.config.Capture.Format = format
	c.config.Capture.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PerformanceProfile = malgo.LowLatency
	c.config.PeriodSizeInFrames = 480
	c.config.Periods = 3

	c.audioContext = audioContext

	var err error
	c.device, err = malgo.InitDevice(c.audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			if c.onFrame != nil {
				// The device reuses pInput between callbacks, so the
				// handed-off frame gets its own copy.
				data := make([]byte, n)
				copy(data, pInput)
				c.onFrame(audio.NewFrame(data, c.encoding))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

func (c *CaptureClient) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}

// Stream starts capture and keeps feeding frames until the device is
// stopped or closed.
func (c *CaptureClient) Stream(_ context.Context, onFrame func(frame audio.Frame)) error {
	return c.start(onFrame)
}

func (c *CaptureClient) StartCapture(_ context.Context, onFrame func(frame audio.Frame)) error {
	return c.start(onFrame)
}

func (c *CaptureClient) StopCapture() error {
	return c.stop()
}

func (c *CaptureClient) Close() {
	_ = c.uninit()
}

func (c *CaptureClient) start(onFrame func(frame audio.Frame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	c.onFrame = onFrame
	return nil
}

func (c *CaptureClient) stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if !c.device.IsStarted() {
		return nil
	}

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}

	c.onFrame = nil
	return nil
}

func (c *CaptureClient) uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}

	c.onFrame = nil
	return nil
}
