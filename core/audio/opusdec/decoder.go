// Package opusdec decodes opus packets into linear16 PCM so compressed
// synthesis streams can be fed to raw audio outputs.
package opusdec

import (
	"encoding/binary"
	"fmt"

	"github.com/koscakluka/voicepipe/core/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxFrameSamples covers the longest opus frame (120ms) at 48kHz.
const maxFrameSamples = 5760

type Decoder struct {
	decoder  *opus.Decoder
	encoding audio.EncodingInfo
	pcm      []int16
}

func NewDecoder(encoding audio.EncodingInfo) (*Decoder, error) {
	if encoding.SampleRate == 0 {
		encoding.SampleRate = audio.DefaultSampleRate
	}

	decoder, err := opus.NewDecoder(encoding.SampleRate, encoding.ChannelCount())
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &Decoder{
		decoder:  decoder,
		encoding: encoding,
		pcm:      make([]int16, maxFrameSamples*encoding.ChannelCount()),
	}, nil
}

// Decode decodes a single opus packet into little-endian linear16 bytes.
// A failure leaves the decoder usable for the next packet.
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	if len(packet) == 0 {
		return nil, fmt.Errorf("empty opus packet")
	}

	samplesPerChannel, err := d.decoder.Decode(packet, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("failed to decode opus packet: %w", err)
	}

	samples := d.pcm[:samplesPerChannel*d.encoding.ChannelCount()]
	decoded := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(decoded[i*2:], uint16(sample))
	}
	return decoded, nil
}

// Encoding reports the PCM encoding that Decode produces.
func (d *Decoder) Encoding() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: d.encoding.SampleRate,
		Channels:   d.encoding.ChannelCount(),
		Format:     audio.EncodingLinear16,
	}
}
