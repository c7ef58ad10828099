package elevenlabs

import (
	"errors"
	"strings"
	"testing"

	"github.com/koscakluka/voicepipe/core/audio"
)

func TestNewTextToSpeechClientPrefersExplicitKey(t *testing.T) {
	t.Setenv(apiKeyEnv, "from-env")

	client, err := NewTextToSpeechClient(WithAPIKey("explicit"), WithVoice("custom-voice"))
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}
	if client.apiKey != "explicit" {
		t.Fatalf("expected explicit key to win, got %q", client.apiKey)
	}
	if client.voice != "custom-voice" {
		t.Fatalf("expected selected voice, got %q", client.voice)
	}
	if client.model != defaultModel {
		t.Fatalf("expected default model %q, got %q", defaultModel, client.model)
	}
}

func TestNewTextToSpeechClientFallsBackToEnvironment(t *testing.T) {
	t.Setenv(apiKeyEnv, "from-env")

	client, err := NewTextToSpeechClient()
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}
	if client.apiKey != "from-env" {
		t.Fatalf("expected environment key, got %q", client.apiKey)
	}
}

func TestNewTextToSpeechClientFailsWithoutCredential(t *testing.T) {
	t.Setenv(apiKeyEnv, "")

	if _, err := NewTextToSpeechClient(); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Fatalf("expected ErrAPIKeyNotFound, got %v", err)
	}
}

func TestNewTextToSpeechClientValidatesOutputEncoding(t *testing.T) {
	t.Setenv(apiKeyEnv, "from-env")

	cases := []struct {
		name     string
		encoding audio.EncodingInfo
		wantErr  bool
	}{
		{
			name:     "pcm at a supported rate",
			encoding: audio.EncodingInfo{SampleRate: 24000, Channels: 1, Format: audio.EncodingLinear16},
		},
		{
			name:     "opus at 48k",
			encoding: audio.EncodingInfo{SampleRate: 48000, Channels: 1, Format: audio.EncodingOpus},
		},
		{
			name:     "pcm at an unsupported rate",
			encoding: audio.EncodingInfo{SampleRate: 8000, Channels: 1, Format: audio.EncodingLinear16},
			wantErr:  true,
		},
		{
			name:     "opus at an unsupported rate",
			encoding: audio.EncodingInfo{SampleRate: 24000, Channels: 1, Format: audio.EncodingOpus},
			wantErr:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTextToSpeechClient(WithEncodingInfo(tc.encoding))
			if tc.wantErr {
				if err == nil || !strings.Contains(err.Error(), "invalid encoding") {
					t.Fatalf("expected invalid encoding error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected encoding to be accepted, got %v", err)
			}
		})
	}
}
