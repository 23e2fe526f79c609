// Package openai provides model.Model on top of the OpenAI Chat Completions
// API, including streaming and tool calling. The same adapter serves local
// OpenAI-compatible endpoints (Ollama, vLLM) through a custom base URL, and
// Embedder exposes the embeddings endpoint for retrieval.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/toolmesh/core"
	"github.com/hupe1980/toolmesh/model"
)

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	// BaseURL points the client at an OpenAI-compatible server.
	BaseURL string
	// Provider is reported by Info; "local" for OpenAI-compatible servers.
	Provider string
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         model.DefaultTemperature,
		MaxCompletionTokens: 4096,
		Provider:            string(model.KindOpenAI),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var reqOpts []option.RequestOption
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(reqOpts...)

	return &Model{client: &client, opts: opts}
}

// clientOptions builds request options for the API key and base URL, skipping empty values.
func clientOptions(apiKey, baseURL string) []option.RequestOption {
	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}

	return reqOpts
}

// Generate runs one chat completion. Streaming requests emit a partial
// response per text delta; both modes end with one final response carrying
// the complete text and tool calls.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.params(req)

		var (
			completion *openai.ChatCompletion
			err        error
		)
		if req.Stream {
			completion, err = m.stream(ctx, params, out)
		} else {
			completion, err = m.client.Chat.Completions.New(ctx, params)
		}
		if err != nil {
			errCh <- fmt.Errorf("openai: %w", err)
			return
		}

		resp, err := toResponse(completion)
		if err != nil {
			errCh <- err
			return
		}

		out <- resp
	}()

	return out, errCh
}

// stream forwards text deltas as partial responses and returns the
// accumulated completion.
func (m *Model) stream(ctx context.Context, params openai.ChatCompletionNewParams, out chan<- model.Response) (*openai.ChatCompletion, error) {
	s := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer s.Close()

	acc := openai.ChatCompletionAccumulator{}

	for s.Next() {
		chunk := s.Current()
		acc.AddChunk(chunk)

		for _, ch := range chunk.Choices {
			if ch.Index != 0 || ch.Delta.Content == "" {
				continue
			}
			out <- model.Response{
				ID:      chunk.ID,
				Partial: true,
				Content: core.NewTextContent(core.RoleAssistant, ch.Delta.Content),
			}
		}
	}

	if err := s.Err(); err != nil {
		return nil, err
	}

	return &acc.ChatCompletion, nil
}

func (m *Model) params(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            toMessages(req.Contents),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}

	for _, def := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Function.Name,
				Description: openai.String(def.Function.Description),
				Parameters:  def.Function.Parameters,
			},
		})
	}

	return params
}

// toMessages maps contents one to one, except that a tool content expands
// into one tool message per function response. Agents append the tool
// content right after the assistant content that requested the calls, which
// is the order the API expects.
func toMessages(contents []core.Content) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(contents))

	for _, c := range contents {
		switch c.Role {
		case core.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(c.Text()))
		case core.RoleAssistant:
			msgs = append(msgs, assistantMessage(c))
		case core.RoleTool:
			for _, p := range c.Parts {
				if fr, ok := p.(core.FunctionResponsePart); ok {
					msgs = append(msgs, openai.ToolMessage(fr.FunctionResponse.Response, fr.FunctionResponse.ID))
				}
			}
		default:
			if text := c.Text(); text != "" {
				msgs = append(msgs, openai.UserMessage(text))
			}
		}
	}

	return msgs
}

func assistantMessage(c core.Content) openai.ChatCompletionMessageParamUnion {
	calls := c.FunctionCalls()
	if len(calls) == 0 {
		return openai.AssistantMessage(c.Text())
	}

	msg := &openai.ChatCompletionAssistantMessageParam{}
	if text := c.Text(); text != "" {
		msg.Content.OfString = openai.String(text)
	}

	for _, fc := range calls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   fc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.Name,
				Arguments: fc.Arguments,
			},
		})
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: msg}
}

// toResponse converts the first choice of a completion.
func toResponse(c *openai.ChatCompletion) (model.Response, error) {
	if len(c.Choices) == 0 {
		return model.Response{}, errors.New("openai: no choices returned")
	}

	choice := c.Choices[0]

	parts := make([]core.Part, 0, len(choice.Message.ToolCalls)+1)
	if choice.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}

	return model.Response{
		ID:           c.ID,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: choice.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(c.Usage.PromptTokens),
			CompletionTokens: int(c.Usage.CompletionTokens),
			TotalTokens:      int(c.Usage.TotalTokens),
		},
	}, nil
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      m.opts.Provider,
		SupportsTools: true,
	}
}
