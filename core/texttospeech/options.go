package texttospeech

import "github.com/koscakluka/voicepipe/core/audio"

type TextToSpeechOptions struct {
	// SpeechAudioCallback is called with every audio payload the client
	// produces, as raw encoded bytes exactly as received; decoding is the
	// consumer's concern.
	SpeechAudioCallback func(audio []byte)
	// SpeechMarkCallback is called once per mark with the text spoken up to
	// it.
	SpeechMarkCallback func(string)
	// SpeechEndedCallback is called when the client has finished producing
	// speech and provides a report of the speech generation
	SpeechEndedCallback func(SpeechEndedReport)
	// ErrorCallback is called when the client encounters an error, this
	// usually means the speech generator has been cancelled
	ErrorCallback func(error)

	EncodingInfo audio.EncodingInfo
}

type TextToSpeechOption func(*TextToSpeechOptions)

func WithSpeechAudioCallback(callback func([]byte)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		o.SpeechAudioCallback = callback
	}
}

func WithSpeechMarkCallback(callback func(string)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		o.SpeechMarkCallback = callback
	}
}

// WithSpeechEndedCallback sets the callback for when the client has
// finished producing all required speech
func WithSpeechEndedCallback(callback func(SpeechEndedReport)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.SpeechEndedCallback = callback }
}

func WithErrorCallback(callback func(error)) TextToSpeechOption {
	return func(o *TextToSpeechOptions) { o.ErrorCallback = callback }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TextToSpeechOption {
	return func(o *TextToSpeechOptions) {
		if encodingInfo.IsZero() {
			return
		}

		o.EncodingInfo = encodingInfo
	}
}

// SpeechGenerator synthesizes one response worth of speech from
// incrementally streamed text.
type SpeechGenerator interface {
	// SendText sends text to [SpeechGenerator]. It is guaranteed that the
	// speech will be generated in the order text is sent.
	//
	// SendText will error if EndOfText, Cancel or Close has been called.
	SendText(string) error
	// Mark marks the current point in the text. It is guaranteed that the mark
	// will be returned after the text sent up to the mark has been generated.
	// There is no guarantee that the mark will be returned exactly at the point
	// where it was marked.
	//
	// Mark will error if EndOfText, Cancel or Close has been called.
	Mark() error
	// EndOfText sends a signal to the [SpeechGenerator] that no more text will
	// be sent. After EndOfText is called, [SpeechGenerator] will Close after
	// all the speech has been generated.
	//
	// EndOfText will error if Cancel or Close has been called.
	// Repeated calls to EndOfText are ignored.
	EndOfText() error
	// Cancel immediately cancels the further speech generation. It also closes
	// [SpeechGenerator].
	//
	// This will error if Close has been called.
	// Repeated calls to Cancel are ignored.
	Cancel() error
	// Close immediately closes the [SpeechGenerator]. It is guaranteed that no
	// more speech will be generated after this call.
	//
	// Repeated calls to Close are ignored.
	Close() error
}

type SpeechEndedReport struct{}
