package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"textbook-rag-backend/internal/ai"
	"textbook-rag-backend/internal/vectorstore"
	"textbook-rag-backend/models"
)

// NoContentAnswer is returned when retrieval finds nothing relevant. The
// generator is not called in that case.
const NoContentAnswer = "I couldn't find anything in the course material about that. Try rephrasing your question or asking about a different topic."

// ApologyAnswer is the user-facing reply when generation fails after its
// retry. Retrieval still worked, so sources are kept in the response.
const ApologyAnswer = "I'm sorry, something went wrong while writing the answer. Please try again in a moment."

const textbookInstructions = `You are a teaching assistant for a technical textbook.
Answer using only the provided context. If the context does not cover the
question, say that the material does not cover it instead of guessing.
Mention the relevant section when it helps the student find it.`

const explainInstructions = `You are a teaching assistant for a technical textbook.
The student highlighted a passage they did not understand. Explain it in
simple terms, using the provided context for background. Keep the
explanation short and concrete.`

const generalInstructions = `You are a helpful teaching assistant.
Answer from general knowledge, and say so if you are unsure.`

// Assistant wires retrieval, context assembly and generation into the chat
// surface.
type Assistant struct {
	retriever   *Retriever
	builder     *ContextBuilder
	generator   ai.GenerationProvider
	temperature float32
	log         *slog.Logger
}

func NewAssistant(retriever *Retriever, builder *ContextBuilder, generator ai.GenerationProvider, temperature float32, log *slog.Logger) *Assistant {
	return &Assistant{
		retriever:   retriever,
		builder:     builder,
		generator:   generator,
		temperature: temperature,
		log:         log,
	}
}

// Ask answers a textbook question grounded in retrieved chunks. A
// highlighted excerpt switches the instructions to explain mode and is
// included in both the retrieval query and the prompt context.
func (a *Assistant) Ask(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("ask: empty question: %w", ErrInvalidQuery)
	}

	query := question
	if req.Highlighted != "" {
		query = question + "\n\n" + req.Highlighted
	}

	results, err := a.retriever.Retrieve(ctx, query, RetrieveOptions{
		TopK:   req.TopK,
		Module: req.Module,
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && req.Highlighted == "" {
		return &models.ChatResponse{Answer: NoContentAnswer}, nil
	}

	instructions := textbookInstructions
	if req.Highlighted != "" {
		instructions = explainInstructions
	}

	return a.generate(ctx, ai.Prompt{
		Instructions: instructions,
		// History rides in the context block only, under the builder's
		// token budget. Sending it through Prompt.History as well would
		// render every turn twice.
		Context: a.builder.Build(ContextInput{
			Results:     results,
			Highlighted: req.Highlighted,
			History:     req.History,
		}),
		UserMessage: question,
	}, results)
}

// ExplainPage summarizes the textbook page behind a URL path, retrieving
// against a plain-words rendering of the path segments.
func (a *Assistant) ExplainPage(ctx context.Context, path string, history []models.ConversationTurn) (*models.ChatResponse, error) {
	topic := humanizePath(path)
	if topic == "" {
		return nil, fmt.Errorf("explain page: empty path: %w", ErrInvalidQuery)
	}

	results, err := a.retriever.Retrieve(ctx, topic, RetrieveOptions{})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &models.ChatResponse{Answer: NoContentAnswer}, nil
	}

	return a.generate(ctx, ai.Prompt{
		Instructions: textbookInstructions,
		Context:      a.builder.Build(ContextInput{Results: results, History: history}),
		UserMessage:  fmt.Sprintf("Explain what the page about %q covers, in simple terms.", topic),
	}, results)
}

// GeneralAnswer skips retrieval entirely and answers from model knowledge.
func (a *Assistant) GeneralAnswer(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("ask: empty question: %w", ErrInvalidQuery)
	}
	return a.generate(ctx, ai.Prompt{
		Instructions: generalInstructions,
		History:      req.History,
		UserMessage:  question,
	}, nil)
}

func (a *Assistant) generate(ctx context.Context, prompt ai.Prompt, results []vectorstore.SearchResult) (*models.ChatResponse, error) {
	answer, err := ai.Answer(ctx, a.generator, prompt, a.temperature)
	if err != nil {
		a.log.Error("generation failed", "provider", a.generator.Name(), "error", err)
		return &models.ChatResponse{Answer: ApologyAnswer, Sources: sourceRefs(results)}, nil
	}
	return &models.ChatResponse{Answer: answer, Sources: sourceRefs(results)}, nil
}

func sourceRefs(results []vectorstore.SearchResult) []models.SourceRef {
	if len(results) == 0 {
		return nil
	}
	refs := make([]models.SourceRef, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, res := range results {
		key := res.Point.Payload.DocumentID + "\x00" + res.Point.Payload.Section
		if seen[key] {
			continue
		}
		seen[key] = true
		refs = append(refs, models.SourceRef{
			Title:   res.Point.Payload.Title,
			Section: res.Point.Payload.Section,
			Source:  res.Point.Payload.Source,
			Score:   res.Score,
		})
	}
	return refs
}

func humanizePath(path string) string {
	replacer := strings.NewReplacer("-", " ", "_", " ", "/", " ", ".html", "", ".md", "")
	return strings.Join(strings.Fields(replacer.Replace(path)), " ")
}
