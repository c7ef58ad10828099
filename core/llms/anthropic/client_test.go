package anthropic

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
	if client.maxTokens != defaultMaxTokens {
		t.Fatalf("expected default max tokens %d, got %d", defaultMaxTokens, client.maxTokens)
	}
}

func TestNewClientFallsBackToEnvironment(t *testing.T) {
	t.Setenv(apiKeyEnv, "from-env")

	client, err := NewClient(WithMaxTokens(256))
	if err != nil {
		t.Fatalf("expected client, got error: %v", err)
	}
	if client.apiKey != "from-env" {
		t.Fatalf("expected environment key, got %q", client.apiKey)
	}
	if client.maxTokens != 256 {
		t.Fatalf("expected overridden max tokens, got %d", client.maxTokens)
	}
}

func TestNewClientFailsWithoutCredential(t *testing.T) {
	t.Setenv(apiKeyEnv, "")

	if _, err := NewClient(); !errors.Is(err, ErrAPIKeyNotFound) {
		t.Fatalf("expected ErrAPIKeyNotFound, got %v", err)
	}
}
