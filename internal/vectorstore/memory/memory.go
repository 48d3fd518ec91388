package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"textbook-rag-backend/internal/vectorstore"
)

// Store is an in-memory cosine-similarity vector store. It backs tests and
// local runs without a Qdrant instance and honors the same contract.
type Store struct {
	mu        sync.RWMutex
	dimension int
	points    map[string]vectorstore.Point
	order     []string // insertion order, for stable tie-breaking
}

func NewStore() *Store {
	return &Store{points: make(map[string]vectorstore.Point)}
}

func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("memory: invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		s.dimension = dimension
		return nil
	}
	if s.dimension != dimension {
		return fmt.Errorf("%w: have dimension %d, want %d", vectorstore.ErrSchemaConflict, s.dimension, dimension)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return fmt.Errorf("memory: collection not initialized")
	}
	if err := vectorstore.CheckDimensions(points, s.dimension); err != nil {
		return err
	}
	for _, p := range points {
		if _, exists := s.points[p.ID]; !exists {
			s.order = append(s.order, p.ID)
		}
		s.points[p.ID] = p
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}

	results := make([]vectorstore.SearchResult, 0, len(s.order))
	for _, id := range s.order {
		p := s.points[id]
		if !matches(p.Payload, filter) {
			continue
		}
		results = append(results, vectorstore.SearchResult{
			Point: p,
			Score: cosine(vector, p.Vector),
		})
	}

	// Stable sort keeps insertion order for equal scores
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.points[id]; !ok {
			continue
		}
		delete(s.points, id)
		for i, oid := range s.order {
			if oid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*vectorstore.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.points[id]
	if !ok {
		return nil, vectorstore.ErrNotFound
	}
	return &p, nil
}

// Count reports the number of stored points. Test helper.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func matches(p vectorstore.Payload, filter vectorstore.Filter) bool {
	for key, want := range filter {
		var have string
		switch key {
		case "document_id":
			have = p.DocumentID
		case "module":
			have = p.Module
		case "section":
			have = p.Section
		case "source":
			have = p.Source
		default:
			return false
		}
		if have != want {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
