package groq

import (
	"errors"
	"testing"
)

func TestNewClientPrefersExplicitKey(t *testing.T) {
	t.Setenv(apiKeyEnv, "from-env")

	client, err := NewClient(WithAPIKey("explicit"))
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}
	if client.apiKey != "explicit" {
		t.Fatalf("expected explicit key to win, got %q", client.apiKey)
	}
}

func TestNewClientFallsBackToEnvironment(t *testing.T) {
	t.Setenv(apiKeyEnv, "from-env")

	client, err := NewClient()
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}
	if client.apiKey != "from-env" {
		t.Fatalf("expected environment key, got %q", client.apiKey)
	}
	if client.model != defaultModel {
		t.Fatalf("expected default model %q, got %q", defaultModel, client.model)
	}
}

func TestNewClientFailsWithoutCredential(t *testing.T) {
	t.Setenv(apiKeyEnv, "")

	if _, err := NewClient(); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Fatalf("expected ErrAPIKeyNotFound, got %v", err)
	}
}
