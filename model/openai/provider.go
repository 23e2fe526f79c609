package openai

import (
	"github.com/hupe1980/toolmesh/model"
)

// DefaultLocalBaseURL is the OpenAI-compatible endpoint of a local Ollama server.
const DefaultLocalBaseURL = "http://localhost:11434/v1"

// FromProvider is the model.Constructor of the openai kind.
func FromProvider(p model.Provider) (model.Model, error) {
	return NewModel(func(o *Options) {
		o.Model = p.Name
		o.APIKey = p.APIKey
		o.BaseURL = p.BaseURL
		if p.Temperature != nil {
			o.Temperature = *p.Temperature
		}
	}), nil
}

// LocalFromProvider is the model.Constructor of the local kind. It talks to
// an OpenAI-compatible server, Ollama by default.
func LocalFromProvider(p model.Provider) (model.Model, error) {
	return NewModel(func(o *Options) {
		o.Model = p.Name
		o.Provider = string(model.KindLocal)
		o.BaseURL = p.BaseURL
		if o.BaseURL == "" {
			o.BaseURL = DefaultLocalBaseURL
		}
		o.APIKey = p.APIKey
		if o.APIKey == "" {
			o.APIKey = "ollama" // local servers ignore the key but the client requires one
		}
		if p.Temperature != nil {
			o.Temperature = *p.Temperature
		}
	}), nil
}
