package llms

// PromptOptions carries everything a provider needs beyond the prompt
// itself. Providers read what they support and ignore the rest.
type PromptOptions struct {
	Instructions    string
	Turns           []Turn
	Tools           []Tool
	ForcedToolsCall bool
	MaxTokens       int
	Temperature     *float64
	Stream          func(string)
}

type PromptOption func(*PromptOptions)

// WithSystemPrompt sets the system prompt.
// Repeating this option will overwrite the previous system prompt.
func WithSystemPrompt(prompt string) PromptOption {
	return func(opts *PromptOptions) {
		opts.Instructions = prompt
	}
}

// WithTurns adds conversation history to the prompt.
// Repeating this option will sequentially add more turns.
func WithTurns(turns ...Turn) PromptOption {
	return func(opts *PromptOptions) {
		opts.Turns = append(opts.Turns, turns...)
	}
}

// WithTools adds tools to the prompt.
func WithTools(tools ...Tool) PromptOption {
	return func(opts *PromptOptions) {
		opts.Tools = append(opts.Tools, tools...)
	}
}

// WithForcedTools adds tools and forces the model to call one. Note that
// any available tool can be called, not just the ones passed here.
func WithForcedTools(tools ...Tool) PromptOption {
	return func(opts *PromptOptions) {
		opts.Tools = append(opts.Tools, tools...)
		opts.ForcedToolsCall = true
	}
}

// WithMaxTokens caps the response length. Providers that require a cap
// fall back to their own default when this is unset.
func WithMaxTokens(maxTokens int) PromptOption {
	return func(opts *PromptOptions) {
		opts.MaxTokens = maxTokens
	}
}

// WithTemperature sets the sampling temperature. Zero is meaningful, so
// the unset state is distinguished by never calling this option.
func WithTemperature(temperature float64) PromptOption {
	return func(opts *PromptOptions) {
		opts.Temperature = &temperature
	}
}

// WithStream sets a callback invoked with each content chunk as it
// arrives, for providers whose non-streamed surface still reads a
// streaming response underneath.
func WithStream(stream func(string)) PromptOption {
	return func(opts *PromptOptions) {
		opts.Stream = stream
	}
}
