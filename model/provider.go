package model

import (
	"fmt"
	"sync"

	"github.com/hupe1980/toolmesh/core"
)

// Kind enumerates the supported model backends.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindLocal     Kind = "local"
	KindCustom    Kind = "custom"
)

// DefaultModelName returns the model used when a Provider leaves Name empty.
func DefaultModelName(kind Kind) string {
	switch kind {
	case KindOpenAI:
		return "gpt-4o-mini"
	case KindAnthropic:
		return "claude-3-5-sonnet-20241022"
	case KindLocal:
		return "llama3"
	default:
		return ""
	}
}

// DefaultTemperature is used when a Provider leaves Temperature nil.
const DefaultTemperature = 0.7

// Provider selects and configures a model backend. A custom provider carries
// a prebuilt model in Custom.
type Provider struct {
	Kind        Kind     `yaml:"provider"`
	Name        string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`

	Custom Model `yaml:"-"`
}

// Resolved returns a copy with defaults applied: kind openai, the default
// model name of the kind and the default temperature.
func (p Provider) Resolved() Provider {
	if p.Kind == "" {
		p.Kind = KindOpenAI
	}
	if p.Name == "" {
		p.Name = DefaultModelName(p.Kind)
	}
	if p.Temperature == nil {
		t := DefaultTemperature
		p.Temperature = &t
	}
	return p
}

// Constructor builds a model for a resolved provider.
type Constructor func(p Provider) (Model, error)

// Factory maps provider kinds to constructors.
type Factory struct {
	mu    sync.RWMutex
	ctors map[Kind]Constructor
	wrap  []func(Model) Model
}

// NewFactory returns an empty factory. Custom providers work without any
// registration.
func NewFactory() *Factory {
	return &Factory{ctors: make(map[Kind]Constructor)}
}

// Register installs the constructor for kind, replacing any previous one.
func (f *Factory) Register(kind Kind, ctor Constructor) {
	f.mu.Lock()
	f.ctors[kind] = ctor
	f.mu.Unlock()
}

// Use adds a middleware applied to every model the factory builds, in
// registration order (the first middleware is the innermost).
func (f *Factory) Use(mw func(Model) Model) {
	f.mu.Lock()
	f.wrap = append(f.wrap, mw)
	f.mu.Unlock()
}

// Supports reports whether a constructor is registered for kind.
func (f *Factory) Supports(kind Kind) bool {
	if kind == KindCustom {
		return true
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	_, ok := f.ctors[kind]

	return ok
}

// New builds the model selected by p.
func (f *Factory) New(p Provider) (Model, error) {
	p = p.Resolved()

	var (
		m   Model
		err error
	)

	if p.Kind == KindCustom {
		if p.Custom == nil {
			return nil, core.ErrMissingCustomModel
		}
		m = p.Custom
	} else {
		f.mu.RLock()
		ctor, ok := f.ctors[p.Kind]
		f.mu.RUnlock()

		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrUnknownProvider, p.Kind)
		}

		m, err = ctor(p)
		if err != nil {
			return nil, fmt.Errorf("build %s model %q: %w", p.Kind, p.Name, err)
		}
	}

	f.mu.RLock()
	wrap := append([]func(Model) Model(nil), f.wrap...)
	f.mu.RUnlock()

	for _, mw := range wrap {
		m = mw(m)
	}

	return m, nil
}
