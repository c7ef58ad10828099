package events

const (
	// KindUserAudioFrame identifies raw audio captured from user input.
	KindUserAudioFrame Kind = "user_input.audio_frame"
	// KindUserSpeechStarted identifies start of user speech activity.
	KindUserSpeechStarted Kind = "user_input.speech_started"
	// KindUserSpeechEnded identifies end of user speech activity.
	KindUserSpeechEnded Kind = "user_input.speech_ended"
	// KindUserTranscriptInterimUpdated identifies mutable interim full transcript updates.
	KindUserTranscriptInterimUpdated Kind = "user_input.transcript_interim_updated"
	// KindUserTranscriptFinal identifies the final transcript for the utterance.
	KindUserTranscriptFinal Kind = "user_input.transcript_final"
)

// UserAudioFrame carries a user input audio frame.
type UserAudioFrame struct {
	Base
	Audio []byte
}

// NewUserAudioFrame creates a user input audio frame event.
func NewUserAudioFrame(audio []byte) UserAudioFrame {
	return UserAudioFrame{Base: NewBase(KindUserAudioFrame), Audio: audio}
}

// UserSpeechStarted marks when user speech activity starts.
type UserSpeechStarted struct{ Base }

// NewUserSpeechStarted creates a user speech started event.
func NewUserSpeechStarted() UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted)}
}

// UserSpeechEnded marks when user speech activity ends.
type UserSpeechEnded struct{ Base }

// NewUserSpeechEnded creates a user speech ended event.
func NewUserSpeechEnded() UserSpeechEnded {
	return UserSpeechEnded{Base: NewBase(KindUserSpeechEnded)}
}

// UserTranscriptInterimUpdated carries a mutable full transcript snapshot.
// Seq increases strictly across all transcript events of one utterance.
type UserTranscriptInterimUpdated struct {
	Base
	Transcript string
	Seq        uint64
}

// NewUserTranscriptInterimUpdated creates an interim transcript snapshot update event.
func NewUserTranscriptInterimUpdated(transcript string, seq uint64) UserTranscriptInterimUpdated {
	return UserTranscriptInterimUpdated{Base: NewBase(KindUserTranscriptInterimUpdated), Transcript: transcript, Seq: seq}
}

// UserTranscriptFinal carries the final transcript for the utterance. Its
// Seq is the terminal value of the utterance's transcript sequence.
type UserTranscriptFinal struct {
	Base
	Transcript string
	Seq        uint64
}

// NewUserTranscriptFinal creates a final transcript event.
func NewUserTranscriptFinal(transcript string, seq uint64) UserTranscriptFinal {
	return UserTranscriptFinal{Base: NewBase(KindUserTranscriptFinal), Transcript: transcript, Seq: seq}
}
