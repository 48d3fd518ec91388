package ai

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

// GeminiProvider binds Google Generative AI as both an embedding and a
// generation backend. Embeddings thread the retrieval task type, so indexing
// and querying get the vectors the model was trained to compare.
type GeminiProvider struct {
	client     *genai.Client
	embedModel string
	chatModel  string
	dimension  int
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
}

type GeminiConfig struct {
	APIKey     string
	EmbedModel string // e.g. "text-embedding-004"
	ChatModel  string // e.g. "gemini-2.0-flash"
	Dimension  int    // fixed by the embedding model
	RPM        int
}

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing GEMINI_API_KEY", ErrProviderUnavailable)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	rpm := cfg.RPM
	if rpm <= 0 {
		rpm = 10
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	// RPM limit with some buffer
	limiter := rate.NewLimiter(rate.Limit(float64(rpm)*0.9/60.0), rpm/10+1)

	return &GeminiProvider{
		client:     client,
		embedModel: cfg.EmbedModel,
		chatModel:  cfg.ChatModel,
		dimension:  cfg.Dimension,
		breaker:    breaker,
		limiter:    limiter,
	}, nil
}

func (g *GeminiProvider) Name() string { return "google" }

func (g *GeminiProvider) Dimension() int { return g.dimension }

func (g *GeminiProvider) EmbedBatch(ctx context.Context, texts []string, intent EmbedIntent) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	tracer := otel.Tracer("gemini-provider")
	ctx, span := tracer.Start(ctx, "gemini.embed_batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("gemini.batch_size", len(texts)),
		attribute.String("gemini.intent", string(intent)),
		attribute.String("gemini.model", g.embedModel),
	)

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	model := g.client.EmbeddingModel(g.embedModel)
	switch intent {
	case IntentQuery:
		model.TaskType = genai.TaskTypeRetrievalQuery
	default:
		model.TaskType = genai.TaskTypeRetrievalDocument
	}

	batch := model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	resp, err := model.BatchEmbedContents(ctx, batch)
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, fmt.Errorf("%w: gemini embeddings: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d texts", ErrProviderUnavailable, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: gemini returned empty embedding at %d", ErrProviderUnavailable, i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (g *GeminiProvider) Generate(ctx context.Context, prompt Prompt, temperature float32) (string, error) {
	tracer := otel.Tracer("gemini-provider")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()
	span.SetAttributes(attribute.String("gemini.model", g.chatModel))

	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		model := g.client.GenerativeModel(g.chatModel)
		model.SetTemperature(temperature)
		model.SetMaxOutputTokens(2048)
		if prompt.Instructions != "" {
			model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(prompt.Instructions)},
			}
		}

		flat := Prompt{
			Context:     prompt.Context,
			History:     prompt.History,
			UserMessage: prompt.UserMessage,
		}.Flatten()

		resp, err := model.GenerateContent(ctx, genai.Text(flat))
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return "", err
	}

	resp := result.(*genai.GenerateContentResponse)
	var text string
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
		break
	}
	span.SetAttributes(attribute.Int("gemini.answer_chars", len(text)))
	return text, nil
}

// Close releases the underlying API client.
func (g *GeminiProvider) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
