package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/ragd/internal/config"
)

// promptTemplate grounds the model in retrieved context.
const promptTemplate = `Use the following context to answer the question. If the context does not contain the answer, say so.

Context:
%s

Question: %s

Answer:`

// noContextTemplate is used when retrieval found nothing relevant.
const noContextTemplate = `No relevant context was found in the document collection. Answer the question from general knowledge and say so if you cannot answer confidently.

Question: %s

Answer:`

// langchainProvider adapts a langchaingo model to ModelProvider.
type langchainProvider struct {
	llm  llms.Model
	desc Descriptor
}

// New creates a ModelProvider from a backend configuration.
func New(cfg config.ProviderConfig) (ModelProvider, error) {
	desc := Descriptor{
		ID:            cfg.ID,
		Name:          cfg.Name,
		Kind:          cfg.Kind,
		Model:         cfg.Model,
		ContextWindow: cfg.ContextWindow,
	}
	if desc.Name == "" {
		desc.Name = cfg.ID
	}

	var (
		llm llms.Model
		err error
	)
	switch cfg.Kind {
	case KindOllama:
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		llm, err = ollama.New(opts...)
	case KindOpenAI:
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey.Value()),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	case KindAnthropic:
		// The anthropic client has no endpoint override; BaseURL is ignored.
		llm, err = anthropic.New(
			anthropic.WithModel(cfg.Model),
			anthropic.WithToken(cfg.APIKey.Value()),
		)
	default:
		return nil, fmt.Errorf("unknown provider kind %q for %s", cfg.Kind, cfg.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client for %s: %w", cfg.Kind, cfg.ID, err)
	}

	return &langchainProvider{llm: llm, desc: desc}, nil
}

// Complete generates a grounded answer for the question.
func (p *langchainProvider) Complete(ctx context.Context, contextBlock, question string) (string, error) {
	prompt := fmt.Sprintf(noContextTemplate, question)
	if contextBlock != "" {
		prompt = fmt.Sprintf(promptTemplate, contextBlock, question)
	}

	answer, err := llms.GenerateFromSinglePrompt(ctx, p.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrGenerationFailed, p.desc.ID, err)
	}
	return strings.TrimSpace(answer), nil
}

// Descriptor returns the provider's identity.
func (p *langchainProvider) Descriptor() Descriptor {
	return p.desc
}

var _ ModelProvider = (*langchainProvider)(nil)
