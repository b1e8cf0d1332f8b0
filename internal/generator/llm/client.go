// Package llm provides the text-generation boundary: provider clients, the
// response cleaner, and the transport/parse error types.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownProvider is returned by Resolve for an unregistered provider.
var ErrUnknownProvider = errors.New("unknown llm provider")

// Client performs one text-generation call.
type Client interface {
	// Generate returns raw model text or a *TransportError.
	Generate(ctx context.Context, system, user string) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, system, user string) (string, error)

// Generate calls f.
func (f ClientFunc) Generate(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// Factory builds a client bound to a model. An empty model selects the
// provider default.
type Factory func(model string) (Client, error)

// Selection records which provider and model served a run.
type Selection struct {
	Provider string
	Model    string
}

// Set resolves provider/model overrides to clients.
type Set struct {
	mu              sync.RWMutex
	defaultProvider string
	defaultModels   map[string]string
	factories       map[string]Factory
}

// NewSet creates an empty provider set.
func NewSet(defaultProvider string) *Set {
	return &Set{
		defaultProvider: defaultProvider,
		defaultModels:   make(map[string]string),
		factories:       make(map[string]Factory),
	}
}

// Register adds a provider with its default model.
func (s *Set) Register(provider, defaultModel string, f Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[provider] = f
	s.defaultModels[provider] = defaultModel
}

// Providers lists registered provider names.
func (s *Set) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.factories))
	for name := range s.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the client for the given overrides; empty values fall back
// to the configured defaults.
func (s *Set) Resolve(provider, model string) (Client, Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	provider = strings.TrimSpace(provider)
	if provider == "" {
		provider = s.defaultProvider
	}
	f, ok := s.factories[provider]
	if !ok {
		return nil, Selection{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = s.defaultModels[provider]
	}

	client, err := f(model)
	if err != nil {
		return nil, Selection{}, fmt.Errorf("failed to create %s client: %w", provider, err)
	}
	return client, Selection{Provider: provider, Model: model}, nil
}
