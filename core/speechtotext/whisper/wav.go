package whisper

import (
	"bytes"
	"encoding/binary"

	"github.com/koscakluka/voicepipe/core/audio"
)

const wavHeaderSize = 44

// encodeWAV wraps raw linear16 samples in a canonical PCM WAV container,
// which the transcription endpoint requires for format detection.
func encodeWAV(pcm []byte, encoding audio.EncodingInfo) []byte {
	const (
		pcmFormat      = 1
		bitsPerSample  = 16
		bytesPerSample = bitsPerSample / 8
	)

	channels := encoding.ChannelCount()
	blockAlign := channels * bytesPerSample
	byteRate := encoding.SampleRate * blockAlign

	buffer := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	buffer.WriteString("RIFF")
	binary.Write(buffer, binary.LittleEndian, uint32(36+len(pcm)))
	buffer.WriteString("WAVE")

	buffer.WriteString("fmt ")
	binary.Write(buffer, binary.LittleEndian, uint32(16))
	binary.Write(buffer, binary.LittleEndian, uint16(pcmFormat))
	binary.Write(buffer, binary.LittleEndian, uint16(channels))
	binary.Write(buffer, binary.LittleEndian, uint32(encoding.SampleRate))
	binary.Write(buffer, binary.LittleEndian, uint32(byteRate))
	binary.Write(buffer, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buffer, binary.LittleEndian, uint16(bitsPerSample))

	buffer.WriteString("data")
	binary.Write(buffer, binary.LittleEndian, uint32(len(pcm)))
	buffer.Write(pcm)

	return buffer.Bytes()
}
