// Package portaudio is an alternative audio backend for hosts where
// miniaudio is unavailable. Capture runs as a blocking read loop rather
// than a device callback.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/voicepipe/core/audio"
)

type Client struct {
	bufferSize    int
	encoding      audio.EncodingInfo
	stream        *portaudio.Stream
	leftoverAudio []byte

	in  []int16
	out []int16
}

type clientOptions struct {
	encoding audio.EncodingInfo
}

type ClientOption func(*clientOptions)

func WithEncoding(encoding audio.EncodingInfo) ClientOption {
	return func(o *clientOptions) { o.encoding = encoding }
}

func NewClient(bufferSize int, opts ...ClientOption) (*Client, error) {
	options := clientOptions{encoding: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.encoding.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported format %q", options.encoding.Format.Name())
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	channels := options.encoding.ChannelCount()
	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(
		channels, channels, float64(options.encoding.SampleRate), bufferSize, in, out,
	)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		encoding:   options.encoding,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

func (c *Client) Stream(ctx context.Context, onFrame func(frame audio.Frame)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.stream.Read(); err != nil {
				log.Printf("Warning: failed to read from portaudio stream: %v", err)
				continue
			}

			audioBuffer := bytes.Buffer{}
			_ = binary.Write(&audioBuffer, binary.LittleEndian, c.in)
			onFrame(audio.NewFrame(audioBuffer.Bytes(), c.encoding))
		}
	}
}

func (c *Client) Close() {
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}

func (c *Client) SendAudio(audio []byte) error {
	bufferSize := c.bufferSize * 2

	audio = append(c.leftoverAudio, audio...)
	for i := range len(audio)/bufferSize + 1 {
		if (i+1)*bufferSize > len(audio) {
			c.leftoverAudio = make([]byte, len(audio)-i*bufferSize)
			copy(c.leftoverAudio, audio[i*bufferSize:])
			break
		}

		_ = binary.Read(bytes.NewBuffer(audio[i*bufferSize:(i+1)*bufferSize]), binary.LittleEndian, c.out)
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to portaudio stream: %w", err)
		}
	}

	return nil
}

func (c *Client) ClearBuffer() {
	c.leftoverAudio = make([]byte, 0)
}

// AwaitMark drains whatever is buffered to the device before returning.
func (c *Client) AwaitMark() error {
	bufferSize := c.bufferSize * 2

	audio := c.leftoverAudio
	c.leftoverAudio = make([]byte, 0)
	for i := range len(audio)/bufferSize + 1 {
		if (i+1)*bufferSize > len(audio) {
			break
		}

		_ = binary.Read(bytes.NewBuffer(audio[i*bufferSize:(i+1)*bufferSize]), binary.LittleEndian, c.out)
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to portaudio stream: %w", err)
		}
	}
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}
