package audio

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		Format:     encodingFormat(DefaultFormat),
	}
}

type EncodingInfo struct {
	SampleRate int
	Channels   int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) ChannelCount() int {
	if e.Channels == 0 {
		return DefaultChannels
	}
	return e.Channels
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

// BytesPerSecond is only meaningful for fixed-size sample formats; it
// returns 0 for compressed formats like opus.
func (e EncodingInfo) BytesPerSecond() int {
	byteSize := e.Format.ByteSize()
	if byteSize <= 0 {
		return 0
	}
	return e.SampleRate * e.ChannelCount() * byteSize
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	case EncodingOpus:
		// Compressed packets have no fixed sample size.
		return -1
	}
	return -1
}

func (e encodingFormat) IsCompressed() bool {
	return e == EncodingOpus
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
	EncodingOpus     encodingFormat = "opus"
)
