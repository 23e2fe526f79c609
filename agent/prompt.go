package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/toolmesh/core"
)

// Placeholder names of the variable prompt parts.
const (
	PlaceholderHistory    = "chat_history"
	PlaceholderInput      = "input"
	PlaceholderContext    = "context"
	PlaceholderScratchpad = "agent_scratchpad"
)

// ErrUnusedPlaceholder is returned by Render when a variable is supplied for
// a part the prompt does not contain.
var ErrUnusedPlaceholder = errors.New("prompt has no placeholder for variable")

// PartKind identifies one slot of an agent prompt.
type PartKind int

const (
	PartSystem PartKind = iota
	PartHistory
	PartHuman
	PartContext
	PartScratchpad
)

func (k PartKind) String() string {
	switch k {
	case PartSystem:
		return "system"
	case PartHistory:
		return "history"
	case PartHuman:
		return "human"
	case PartContext:
		return "context"
	case PartScratchpad:
		return "scratchpad"
	default:
		return "unknown"
	}
}

// PromptPart is one ordered slot of a Prompt. Placeholder is empty for the
// system part.
type PromptPart struct {
	Kind        PartKind
	Placeholder string
}

// PromptVars are the per-invocation values rendered into a Prompt.
type PromptVars struct {
	Input      string
	History    []core.Content
	Context    string
	Scratchpad []core.Content
	// Values are exposed to the system instruction template.
	Values map[string]any
}

// Prompt is the ordered template an agent renders before every model call.
type Prompt struct {
	instruction Instruction
	clause      string
	parts       []PromptPart
}

// NewPrompt assembles the parts in fixed order. The history part is present
// only when withHistory is set and the context part only when withContext is
// set. clause, when non-empty, is appended to the resolved system text.
func NewPrompt(instruction Instruction, clause string, withHistory, withContext bool) *Prompt {
	parts := []PromptPart{{Kind: PartSystem}}
	if withHistory {
		parts = append(parts, PromptPart{Kind: PartHistory, Placeholder: PlaceholderHistory})
	}
	parts = append(parts, PromptPart{Kind: PartHuman, Placeholder: PlaceholderInput})
	if withContext {
		parts = append(parts, PromptPart{Kind: PartContext, Placeholder: PlaceholderContext})
	}
	parts = append(parts, PromptPart{Kind: PartScratchpad, Placeholder: PlaceholderScratchpad})

	return &Prompt{instruction: instruction, clause: clause, parts: parts}
}

// Parts returns a copy of the ordered parts.
func (p *Prompt) Parts() []PromptPart {
	return append([]PromptPart(nil), p.parts...)
}

// Placeholders returns the variable names in prompt order.
func (p *Prompt) Placeholders() []string {
	names := make([]string, 0, len(p.parts))
	for _, part := range p.parts {
		if part.Placeholder != "" {
			names = append(names, part.Placeholder)
		}
	}
	return names
}

// Has reports whether the prompt contains the named placeholder.
func (p *Prompt) Has(placeholder string) bool {
	for _, part := range p.parts {
		if part.Placeholder == placeholder {
			return true
		}
	}
	return false
}

// System resolves the system text including the clause.
func (p *Prompt) System(ctx context.Context, values map[string]any) (string, error) {
	text, err := p.instruction.Resolve(ctx, values)
	if err != nil {
		return "", fmt.Errorf("resolve instruction: %w", err)
	}

	if p.clause == "" {
		return text, nil
	}
	if text == "" {
		return p.clause, nil
	}

	return text + "\n\n" + p.clause, nil
}

// Render produces the model contents for one call.
func (p *Prompt) Render(ctx context.Context, vars PromptVars) ([]core.Content, error) {
	if len(vars.History) > 0 && !p.Has(PlaceholderHistory) {
		return nil, fmt.Errorf("%w: %s", ErrUnusedPlaceholder, PlaceholderHistory)
	}
	if vars.Context != "" && !p.Has(PlaceholderContext) {
		return nil, fmt.Errorf("%w: %s", ErrUnusedPlaceholder, PlaceholderContext)
	}

	contents := make([]core.Content, 0, len(vars.History)+len(vars.Scratchpad)+3)

	for _, part := range p.parts {
		switch part.Kind {
		case PartSystem:
			system, err := p.System(ctx, vars.Values)
			if err != nil {
				return nil, err
			}
			if system != "" {
				contents = append(contents, core.NewTextContent(core.RoleSystem, system))
			}
		case PartHistory:
			contents = append(contents, vars.History...)
		case PartHuman:
			contents = append(contents, core.NewTextContent(core.RoleUser, vars.Input))
		case PartContext:
			if vars.Context != "" {
				contents = append(contents, core.NewTextContent(core.RoleSystem, "Relevant context:\n"+vars.Context))
			}
		case PartScratchpad:
			contents = append(contents, vars.Scratchpad...)
		}
	}

	return contents, nil
}
