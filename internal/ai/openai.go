package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// OpenAIProvider binds the OpenAI API as an embedding and generation
// backend. OpenAI embedding models use a single vector space, so the
// document and query intents map to the same request.
type OpenAIProvider struct {
	client     openai.Client
	embedModel string
	chatModel  string
	dimension  int
}

type OpenAIConfig struct {
	APIKey     string
	EmbedModel string // e.g. "text-embedding-3-small"
	ChatModel  string // e.g. "gpt-4o-mini"
	Dimension  int
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing OPENAI_API_KEY", ErrProviderUnavailable)
	}
	return &OpenAIProvider{
		client:     openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		embedModel: cfg.EmbedModel,
		chatModel:  cfg.ChatModel,
		dimension:  cfg.Dimension,
	}, nil
}

func (o *OpenAIProvider) Name() string { return "openai" }

func (o *OpenAIProvider) Dimension() int { return o.dimension }

func (o *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string, intent EmbedIntent) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	tracer := otel.Tracer("openai-provider")
	ctx, span := tracer.Start(ctx, "openai.embed_batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("openai.batch_size", len(texts)),
		attribute.String("openai.model", o.embedModel),
	)

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("openai.error", true))
		return nil, fmt.Errorf("%w: openai embeddings: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: openai returned %d embeddings for %d texts", ErrProviderUnavailable, len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (o *OpenAIProvider) Generate(ctx context.Context, prompt Prompt, temperature float32) (string, error) {
	tracer := otel.Tracer("openai-provider")
	ctx, span := tracer.Start(ctx, "openai.chat_completion")
	defer span.End()
	span.SetAttributes(attribute.String("openai.model", o.chatModel))

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt.History)+3)
	if prompt.Instructions != "" {
		messages = append(messages, openai.SystemMessage(prompt.Instructions))
	}
	if prompt.Context != "" {
		messages = append(messages, openai.SystemMessage("Context:\n"+prompt.Context))
	}
	for _, turn := range prompt.History {
		if turn.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(prompt.UserMessage))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.chatModel),
		Messages:    messages,
		Temperature: openai.Float(float64(temperature)),
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("openai.error", true))
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
