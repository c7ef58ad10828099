package audio

import "time"

// Frame is a fixed-duration slice of captured audio. Ownership of Data
// transfers with the frame: producers must not retain or reuse the slice
// after handing the frame off.
type Frame struct {
	Data     []byte
	Encoding EncodingInfo
}

func NewFrame(data []byte, encoding EncodingInfo) Frame {
	return Frame{Data: data, Encoding: encoding}
}

func (f Frame) IsZero() bool {
	return len(f.Data) == 0
}

func (f Frame) Samples() int {
	byteSize := f.Encoding.Format.ByteSize()
	if byteSize <= 0 {
		return 0
	}
	return len(f.Data) / byteSize / f.Encoding.ChannelCount()
}

func (f Frame) Duration() time.Duration {
	if f.Encoding.SampleRate <= 0 {
		return 0
	}
	samples := f.Samples()
	if samples == 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(f.Encoding.SampleRate)
}
