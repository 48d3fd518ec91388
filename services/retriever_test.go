package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"textbook-rag-backend/internal/ai"
	"textbook-rag-backend/internal/vectorstore"
	"textbook-rag-backend/internal/vectorstore/memory"
)

// mapEmbedder resolves texts to preset vectors and records the intent of
// the last call.
type mapEmbedder struct {
	vectors    map[string][]float32
	lastIntent ai.EmbedIntent
}

func (m *mapEmbedder) Name() string   { return "map" }
func (m *mapEmbedder) Dimension() int { return 3 }

func (m *mapEmbedder) EmbedBatch(ctx context.Context, texts []string, intent ai.EmbedIntent) ([][]float32, error) {
	m.lastIntent = intent
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := m.vectors[text]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", text)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func seedStore(t *testing.T, store *memory.Store, points []vectorstore.Point) {
	t.Helper()
	if err := store.EnsureCollection(context.Background(), 3); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}
	if err := store.Upsert(context.Background(), points); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
}

func TestRetrieveEmptyStore(t *testing.T) {
	embedder := &mapEmbedder{vectors: map[string][]float32{"anything": {1, 0, 0}}}
	retriever := NewRetriever(embedder, memory.NewStore(), nil, 5, 0, testLogger())

	results, err := retriever.Retrieve(context.Background(), "anything", RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
	if embedder.lastIntent != ai.IntentQuery {
		t.Fatalf("query embedded with intent %q, want %q", embedder.lastIntent, ai.IntentQuery)
	}
}

func TestRetrieveThresholdAndOrder(t *testing.T) {
	embedder := &mapEmbedder{vectors: map[string][]float32{"channels": {1, 0, 0}}}
	store := memory.NewStore()
	seedStore(t, store, []vectorstore.Point{
		{ID: "a", Vector: []float32{1, 0, 0}, Payload: vectorstore.Payload{Text: "exact match"}},
		{ID: "b", Vector: []float32{0, 1, 0}, Payload: vectorstore.Payload{Text: "orthogonal"}},
		{ID: "c", Vector: []float32{0.7, 0.7, 0}, Payload: vectorstore.Payload{Text: "diagonal"}},
	})

	cut := float32(0.5)
	retriever := NewRetriever(embedder, store, nil, 5, 0, testLogger())
	results, err := retriever.Retrieve(context.Background(), "channels", RetrieveOptions{ScoreThreshold: &cut})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results above threshold, got %d", len(results))
	}
	if results[0].Point.ID != "a" || results[1].Point.ID != "c" {
		t.Fatalf("unexpected order: %s, %s", results[0].Point.ID, results[1].Point.ID)
	}
	for i := 0; i < len(results)-1; i++ {
		if results[i].Score < results[i+1].Score {
			t.Fatal("results not sorted by descending score")
		}
	}
}

func TestRetrieveModuleFilter(t *testing.T) {
	embedder := &mapEmbedder{vectors: map[string][]float32{"channels": {1, 0, 0}}}
	store := memory.NewStore()
	seedStore(t, store, []vectorstore.Point{
		{ID: "a", Vector: []float32{1, 0, 0}, Payload: vectorstore.Payload{Text: "in module", Module: "concurrency"}},
		{ID: "b", Vector: []float32{1, 0, 0}, Payload: vectorstore.Payload{Text: "other module", Module: "basics"}},
	})

	retriever := NewRetriever(embedder, store, nil, 5, 0, testLogger())
	results, err := retriever.Retrieve(context.Background(), "channels", RetrieveOptions{Module: "concurrency"})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(results) != 1 || results[0].Point.ID != "a" {
		t.Fatalf("module filter not applied: got %d results", len(results))
	}
}

func TestRetrieveTopKLimit(t *testing.T) {
	embedder := &mapEmbedder{vectors: map[string][]float32{"channels": {1, 0, 0}}}
	store := memory.NewStore()
	var points []vectorstore.Point
	for i := 0; i < 8; i++ {
		points = append(points, vectorstore.Point{
			ID:      fmt.Sprintf("p%d", i),
			Vector:  []float32{1, 0, 0},
			Payload: vectorstore.Payload{Text: fmt.Sprintf("chunk %d", i)},
		})
	}
	seedStore(t, store, points)

	retriever := NewRetriever(embedder, store, nil, 5, 0, testLogger())
	results, err := retriever.Retrieve(context.Background(), "channels", RetrieveOptions{TopK: 3})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
}

func TestRetrieveKeepsNegativeScoresWithoutThreshold(t *testing.T) {
	embedder := &mapEmbedder{vectors: map[string][]float32{"channels": {1, 0, 0}}}
	store := memory.NewStore()
	seedStore(t, store, []vectorstore.Point{
		{ID: "pos", Vector: []float32{1, 0, 0}, Payload: vectorstore.Payload{Text: "aligned"}},
		{ID: "neg", Vector: []float32{-1, 0, 0}, Payload: vectorstore.Payload{Text: "opposed"}},
	})

	retriever := NewRetriever(embedder, store, nil, 5, 0, testLogger())
	results, err := retriever.Retrieve(context.Background(), "channels", RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both hits with no threshold set, got %d", len(results))
	}
	if results[1].Point.ID != "neg" || results[1].Score >= 0 {
		t.Fatalf("negative-score hit missing: got %s (%f)", results[1].Point.ID, results[1].Score)
	}
}

func TestRetrieveExplicitZeroThresholdOverridesDefault(t *testing.T) {
	embedder := &mapEmbedder{vectors: map[string][]float32{"channels": {1, 0, 0}}}
	store := memory.NewStore()
	seedStore(t, store, []vectorstore.Point{
		{ID: "mid", Vector: []float32{0.7, 0.7, 0}, Payload: vectorstore.Payload{Text: "diagonal"}},
		{ID: "neg", Vector: []float32{-1, 0, 0}, Payload: vectorstore.Payload{Text: "opposed"}},
	})

	retriever := NewRetriever(embedder, store, nil, 5, 0.9, testLogger())

	results, err := retriever.Retrieve(context.Background(), "channels", RetrieveOptions{})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("configured default 0.9 should drop every hit, got %d", len(results))
	}

	zero := float32(0)
	results, err = retriever.Retrieve(context.Background(), "channels", RetrieveOptions{ScoreThreshold: &zero})
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(results) != 1 || results[0].Point.ID != "mid" {
		t.Fatalf("explicit zero threshold should keep non-negative hits only, got %d", len(results))
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	embedder := &mapEmbedder{vectors: map[string][]float32{}}
	retriever := NewRetriever(embedder, memory.NewStore(), nil, 5, 0, testLogger())

	_, err := retriever.Retrieve(context.Background(), "   ", RetrieveOptions{})
	if err == nil {
		t.Fatal("expected error for blank query")
	}
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}
