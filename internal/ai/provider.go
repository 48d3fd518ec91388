package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"textbook-rag-backend/models"
)

// ErrProviderUnavailable is returned when the requested embedding or
// generation backend is unconfigured or its remote call failed. The adapter
// never substitutes a different provider's vectors: dimensions and metrics
// are fixed per collection.
var ErrProviderUnavailable = errors.New("ai: provider unavailable")

// ErrGeneration is returned when the generation service failed after the
// single allowed retry.
var ErrGeneration = errors.New("ai: generation failed")

// EmbedIntent selects the embedding task. Some backends produce different
// vectors for indexed documents than for search queries.
type EmbedIntent string

const (
	// IntentDocument is used when embedding chunks at ingestion time.
	IntentDocument EmbedIntent = "retrieval_document"
	// IntentQuery is used when embedding a search query.
	IntentQuery EmbedIntent = "retrieval_query"
)

// EmbeddingProvider converts text into fixed-length vectors.
type EmbeddingProvider interface {
	Name() string
	// Dimension reports the length of produced vectors, fixed per provider.
	Dimension() int
	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string, intent EmbedIntent) ([][]float32, error)
}

// GenerationProvider produces an answer for an assembled prompt. Callers
// should go through Answer, which adds the retry and fallback policy.
type GenerationProvider interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt, temperature float32) (string, error)
}

// Prompt is the assembled input to a generation call. Providers that only
// accept a flat string concatenate the parts with role markers via Flatten.
type Prompt struct {
	Instructions string
	Context      string
	History      []models.ConversationTurn
	UserMessage  string
}

// Flatten renders the prompt as a single role-marked string.
func (p Prompt) Flatten() string {
	var b strings.Builder
	if p.Instructions != "" {
		b.WriteString("Instructions:\n")
		b.WriteString(p.Instructions)
		b.WriteString("\n\n")
	}
	if p.Context != "" {
		b.WriteString("Context:\n")
		b.WriteString(p.Context)
		b.WriteString("\n\n")
	}
	for _, turn := range p.History {
		role := "User"
		if turn.Role == "assistant" {
			role = "Assistant"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(p.UserMessage)
	return b.String()
}

// EmbedOne embeds a single text through the batch interface.
func EmbedOne(ctx context.Context, p EmbeddingProvider, text string, intent EmbedIntent) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text}, intent)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 vector, got %d", ErrProviderUnavailable, len(vectors))
	}
	return vectors[0], nil
}

func validateTexts(texts []string) error {
	if len(texts) == 0 {
		return errors.New("ai: no texts to embed")
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("ai: text %d is empty", i)
		}
	}
	return nil
}

// Registry holds the providers configured at startup. Components receive
// concrete providers from here instead of branching on provider names at
// call sites.
type Registry struct {
	embedders  map[string]EmbeddingProvider
	generators map[string]GenerationProvider
}

func NewRegistry() *Registry {
	return &Registry{
		embedders:  make(map[string]EmbeddingProvider),
		generators: make(map[string]GenerationProvider),
	}
}

func (r *Registry) RegisterEmbedder(p EmbeddingProvider) {
	r.embedders[p.Name()] = p
}

func (r *Registry) RegisterGenerator(p GenerationProvider) {
	r.generators[p.Name()] = p
}

// Embedder returns the named embedding provider or ErrProviderUnavailable.
func (r *Registry) Embedder(name string) (EmbeddingProvider, error) {
	p, ok := r.embedders[name]
	if !ok {
		return nil, fmt.Errorf("%w: embedding provider %q not configured", ErrProviderUnavailable, name)
	}
	return p, nil
}

// Generator returns the named generation provider or ErrProviderUnavailable.
func (r *Registry) Generator(name string) (GenerationProvider, error) {
	p, ok := r.generators[name]
	if !ok {
		return nil, fmt.Errorf("%w: generation provider %q not configured", ErrProviderUnavailable, name)
	}
	return p, nil
}

// EmbedderNames lists the configured embedding providers.
func (r *Registry) EmbedderNames() []string {
	names := make([]string, 0, len(r.embedders))
	for name := range r.embedders {
		names = append(names, name)
	}
	return names
}
