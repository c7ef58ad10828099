package llms

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
)

// Tool is a function the model may call during generation. The wire
// encoding matches the chat-completions tool shape; providers with a
// different shape translate from these fields.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`

	execute func(arguments string) (string, error)
}

type ToolFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// ParameterBase describes a single tool parameter.
type ParameterBase struct {
	Type        string
	Description string
}

// NewTool builds a function tool. The parameters map is reflected into a
// JSON schema object; execute receives the model's arguments unmarshalled
// into T.
func NewTool[T any](
	name string,
	description string,
	parameters map[string]ParameterBase,
	execute func(parameters T) (string, error),
) Tool {
	names := make([]string, 0, len(parameters))
	for parameterName := range parameters {
		names = append(names, parameterName)
	}
	sort.Strings(names)

	properties := jsonschema.NewProperties()
	for _, parameterName := range names {
		parameter := parameters[parameterName]
		properties.Set(parameterName, &jsonschema.Schema{
			Type:        parameter.Type,
			Description: parameter.Description,
		})
	}

	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters: &jsonschema.Schema{
				Type:       "object",
				Properties: properties,
				Required:   names,
			},
		},
		execute: func(arguments string) (string, error) {
			if strings.TrimSpace(arguments) == "" {
				arguments = "{}"
			}

			var typedParameters T
			if err := json.Unmarshal([]byte(arguments), &typedParameters); err != nil {
				return "", fmt.Errorf("failed to unmarshal tool arguments: %w", err)
			}
			return execute(typedParameters)
		},
	}
}

// Execute runs the tool against raw JSON arguments from the model.
func (t Tool) Execute(arguments string) (string, error) {
	if t.execute == nil {
		return "", fmt.Errorf("tool %q has no executor", t.Function.Name)
	}
	return t.execute(arguments)
}

// Observed returns a copy of the tool whose executor reports to started
// before running and to finished after. Providers execute tools
// mid-prompt, so this is how callers watch tool activity without owning
// the call loop. Either hook may be nil.
func (t Tool) Observed(
	started func(name, arguments string),
	finished func(name, response string, err error),
) Tool {
	observed := t
	observed.execute = func(arguments string) (string, error) {
		if started != nil {
			started(t.Function.Name, arguments)
		}
		response, err := t.Execute(arguments)
		if finished != nil {
			finished(t.Function.Name, response, err)
		}
		return response, err
	}
	return observed
}
