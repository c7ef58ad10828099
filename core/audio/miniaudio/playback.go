package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/voicepipe/core/audio"
)

// PlaybackClient feeds buffered PCM to the output device. Marks are
// positions in the buffered audio whose callbacks fire once the device
// has consumed everything queued before them.
type PlaybackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig
	encoding     audio.EncodingInfo

	leftoverAudio []byte
	marks         []playbackMark

	mu      sync.Mutex
	audioMu sync.Mutex
	marksMu sync.Mutex
}

func (c *PlaybackClient) init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if encoding.Format != audio.EncodingLinear16 {
		return fmt.Errorf("unsupported playback format %q", encoding.Format.Name())
	}

	format := malgo.FormatS16
	channels := encoding.ChannelCount()
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.encoding = encoding
	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = uint32(encoding.SampleRate)
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = uint32(encoding.SampleRate / 10) // ~100ms of audio
	c.config.Periods = 4

	c.audioContext = audioContext

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return err
	}

	return nil
}

func (c *PlaybackClient) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}

func (c *PlaybackClient) SendAudio(audio []byte) error {
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if !c.device.IsStarted() {
		return fmt.Errorf("device not started")
	}

	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.leftoverAudio = append(c.leftoverAudio, audio...)
	return nil
}

func (c *PlaybackClient) ClearBuffer() {
	c.audioMu.Lock()
	c.marksMu.Lock()
	defer c.audioMu.Unlock()
	defer c.marksMu.Unlock()
	c.leftoverAudio = make([]byte, 0)
	c.marks = nil
}

func (c *PlaybackClient) Mark(mark string, callback func(string)) error {
	c.audioMu.Lock()
	position := len(c.leftoverAudio)
	c.audioMu.Unlock()

	c.marksMu.Lock()
	defer c.marksMu.Unlock()
	c.marks = append(c.marks, playbackMark{
		name:     mark,
		position: position,
		callback: callback,
	})
	return nil
}

// AwaitMark blocks until everything queued so far has been played.
func (c *PlaybackClient) AwaitMark() error {
	wg := sync.WaitGroup{}
	wg.Add(1)
	if err := c.Mark("", func(string) { wg.Done() }); err != nil {
		return err
	}
	wg.Wait()
	return nil
}

func (c *PlaybackClient) Close() {
	_ = c.uninit()
}

func (c *PlaybackClient) start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (c *PlaybackClient) stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	c.ClearBuffer()
	return nil
}

func (c *PlaybackClient) uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.device.Uninit()
	c.device = nil

	return nil
}

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func (c *PlaybackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame
		c.processMarks(need)

		c.audioMu.Lock()
		defer c.audioMu.Unlock()

		if len(c.leftoverAudio) == 0 {
			return
		}

		if len(c.leftoverAudio) < need {
			_ = copy(pOutput, c.leftoverAudio)
			c.leftoverAudio = nil
			return
		}

		_ = copy(pOutput, c.leftoverAudio[:need])
		c.leftoverAudio = c.leftoverAudio[need:]
	}
}

func (c *PlaybackClient) processMarks(until int) {
	c.marksMu.Lock()
	passedMarks := 0
	for i, mark := range c.marks {
		if mark.position >= until {
			c.marks[i].position -= until
		} else {
			passedMarks++
		}
	}
	if passedMarks == 0 {
		c.marksMu.Unlock()
		return
	}

	toCall := c.marks[:passedMarks]
	c.marks = c.marks[passedMarks:]
	c.marksMu.Unlock()

	go func() {
		for _, mark := range toCall {
			mark.callback(mark.name)
		}
	}()
}
