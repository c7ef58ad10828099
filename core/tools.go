package pipeline

import (
	"github.com/koscakluka/voicepipe/core/llms"
)

// pipelineTools are the built-in tools that let the model steer the
// pipeline itself: toggling always-on capture and muting its own speech.
func pipelineTools(c *Coordinator) []llms.Tool {
	return []llms.Tool{
		llms.NewTool("listening_control", "Turn on or off sound capture, might be referred to as 'listening'",
			map[string]llms.ParameterBase{
				"is_listening": {Type: "boolean", Description: "Whether to listen or not"},
			},
			func(parameters struct {
				IsListening bool `json:"is_listening"`
			}) (string, error) {
				c.SetAlwaysListening(parameters.IsListening)
				return "Success. Respond with a very short phrase", nil
			}),
		llms.NewTool("speaking_control", "Turn off assistant's speaking ability. Might be referred to as 'muting'",
			map[string]llms.ParameterBase{
				"is_speaking": {Type: "boolean", Description: "Whether to speak or not"},
			},
			func(parameters struct {
				IsSpeaking bool `json:"is_speaking"`
			}) (string, error) {
				c.SetSpeaking(parameters.IsSpeaking)
				return "Success. Respond with a very short phrase", nil
			}),
	}
}
