// Package provider abstracts completion model backends behind a uniform
// interface and lets the active backend be switched at runtime.
//
// Backends are adapters over langchaingo LLM clients (Ollama, OpenAI,
// Anthropic). The Registry holds all configured backends; exactly one is
// current at a time, and requests may override the current backend per call.
package provider

import (
	"context"
	"errors"
)

// Backend kinds supported by the factory.
const (
	KindOllama    = "ollama"
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
)

// Sentinel errors for provider operations.
var (
	// ErrUnknownProvider is returned when a provider ID is not registered.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrDuplicateProvider is returned when registering an ID twice.
	ErrDuplicateProvider = errors.New("provider already registered")

	// ErrGenerationFailed wraps backend completion failures.
	ErrGenerationFailed = errors.New("generation failed")
)

// Descriptor is the stable identity of a backend, safe to expose over the API.
type Descriptor struct {
	// ID is the unique registry key, e.g. "ollama-local".
	ID string `json:"id"`
	// Name is a human-readable label.
	Name string `json:"name"`
	// Kind is the adapter type: ollama, openai or anthropic.
	Kind string `json:"kind"`
	// Model is the backend model identifier.
	Model string `json:"model"`
	// ContextWindow is the model's context budget in tokens.
	ContextWindow int `json:"context_window"`
}

// ModelProvider generates a completion grounded in the supplied context.
type ModelProvider interface {
	// Complete answers the question using the given context block. The
	// context may be empty, in which case the model answers unaided.
	Complete(ctx context.Context, contextBlock, question string) (string, error)

	// Descriptor returns the provider's identity.
	Descriptor() Descriptor
}
