package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the pipeline stage an error came from.
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageGeneration    Stage = "generation"
	StageSynthesis     Stage = "synthesis"
	StagePlayback      Stage = "playback"
)

// ErrorType classifies pipeline errors by what has to change for a retry
// to make sense: the wiring, the network, or the payload.
type ErrorType string

const (
	// ErrorTypeConfiguration covers errors that no retry will fix, like
	// missing credentials or invalid options.
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeConnection covers transport failures against a provider.
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeDecode covers malformed payloads, like speech chunks that
	// fail to decode.
	ErrorTypeDecode ErrorType = "decode"
)

// Error is the pipeline's error envelope. Cancellation is not an error
// and is never wrapped in one; a cancelled turn reports an aborted state
// with a nil error instead.
type Error struct {
	Type  ErrorType
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s stage: %s error", e.Stage, e.Type)
	}
	return fmt.Sprintf("%s stage: %s error: %v", e.Stage, e.Type, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrLLMNotConfigured is returned when a turn needs response generation
// but no generation client was configured.
var ErrLLMNotConfigured = errors.New("no response generation client configured")

// ErrSpeechToTextNotConfigured is returned when capture is requested but
// no transcription client was configured.
var ErrSpeechToTextNotConfigured = errors.New("no transcription client configured")

func configurationError(stage Stage, err error) *Error {
	return &Error{Type: ErrorTypeConfiguration, Stage: stage, Err: err}
}

func connectionError(stage Stage, err error) *Error {
	return &Error{Type: ErrorTypeConnection, Stage: stage, Err: err}
}

func decodeError(stage Stage, err error) *Error {
	return &Error{Type: ErrorTypeDecode, Stage: stage, Err: err}
}

// IsConfigurationError reports whether err is a pipeline configuration
// error anywhere in its chain.
func IsConfigurationError(err error) bool {
	var pipelineErr *Error
	return errors.As(err, &pipelineErr) && pipelineErr.Type == ErrorTypeConfiguration
}

// IsConnectionError reports whether err is a pipeline connection error
// anywhere in its chain.
func IsConnectionError(err error) bool {
	var pipelineErr *Error
	return errors.As(err, &pipelineErr) && pipelineErr.Type == ErrorTypeConnection
}

// IsDecodeError reports whether err is a pipeline decode error anywhere
// in its chain.
func IsDecodeError(err error) bool {
	var pipelineErr *Error
	return errors.As(err, &pipelineErr) && pipelineErr.Type == ErrorTypeDecode
}

// ErrorStage extracts the stage a pipeline error came from. It reports
// false when err carries no pipeline error.
func ErrorStage(err error) (Stage, bool) {
	var pipelineErr *Error
	if !errors.As(err, &pipelineErr) {
		return "", false
	}
	return pipelineErr.Stage, true
}
