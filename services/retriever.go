package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"textbook-rag-backend/internal/ai"
	"textbook-rag-backend/internal/telemetry"
	"textbook-rag-backend/internal/vectorstore"
)

// ErrInvalidQuery marks requests the pipeline rejected before doing any
// work, as opposed to failing while serving them.
var ErrInvalidQuery = errors.New("invalid query")

// RetrieveOptions narrows a similarity search. Zero values mean "use the
// configured default" (TopK) or "no restriction" (Module, DocumentID). A
// nil ScoreThreshold falls back to the configured default; an explicit
// pointer, including to zero, cuts at that score.
type RetrieveOptions struct {
	TopK           int
	Module         string
	DocumentID     string
	ScoreThreshold *float32
}

// Retriever embeds a query and ranks stored chunks against it.
type Retriever struct {
	embedder       ai.EmbeddingProvider
	store          vectorstore.Store
	metrics        *telemetry.Metrics
	defaultTopK    int
	scoreThreshold float32
	log            *slog.Logger
}

func NewRetriever(embedder ai.EmbeddingProvider, store vectorstore.Store, metrics *telemetry.Metrics, defaultTopK int, scoreThreshold float32, log *slog.Logger) *Retriever {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Retriever{
		embedder:       embedder,
		store:          store,
		metrics:        metrics,
		defaultTopK:    defaultTopK,
		scoreThreshold: scoreThreshold,
		log:            log,
	}
}

// Retrieve returns up to TopK chunks scoring at or above the threshold,
// best first. An empty result is a valid outcome, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]vectorstore.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("retrieve: empty query: %w", ErrInvalidQuery)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = r.defaultTopK
	}
	// A configured threshold of 0 means no cut at all, so negative-score
	// hits survive unless a threshold was set somewhere.
	var threshold *float32
	if opts.ScoreThreshold != nil {
		threshold = opts.ScoreThreshold
	} else if r.scoreThreshold != 0 {
		threshold = &r.scoreThreshold
	}

	start := time.Now()
	vector, err := ai.EmbedOne(ctx, r.embedder, query, ai.IntentQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var filter vectorstore.Filter
	if opts.Module != "" || opts.DocumentID != "" {
		filter = vectorstore.Filter{}
		if opts.Module != "" {
			filter["module"] = opts.Module
		}
		if opts.DocumentID != "" {
			filter["document_id"] = opts.DocumentID
		}
	}

	results, err := r.store.Search(ctx, vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	kept := results
	if threshold != nil {
		kept = results[:0]
		for _, res := range results {
			if res.Score >= *threshold {
				kept = append(kept, res)
			}
		}
	}

	if r.metrics != nil {
		r.metrics.RecordRetrieval(time.Since(start).Seconds(), len(kept))
	}
	r.log.Debug("retrieval complete",
		"query_tokens", len(strings.Fields(query)),
		"candidates", len(results),
		"kept", len(kept),
	)
	return kept, nil
}
