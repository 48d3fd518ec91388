package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrSchemaConflict is returned when an existing collection's dimension or
// distance metric does not match the requested configuration.
var ErrSchemaConflict = errors.New("vectorstore: collection schema conflict")

// ErrNotFound is returned by GetByID when no point has the given id.
var ErrNotFound = errors.New("vectorstore: point not found")

// Payload carries the denormalized chunk fields stored with each vector so
// results can be rendered without a second lookup.
type Payload struct {
	Text       string `json:"text"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Section    string `json:"section"`
	Module     string `json:"module"`
	Source     string `json:"source"`
	Ordinal    int    `json:"ordinal"`
	Hash       string `json:"hash"`
}

// Point is one indexed vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SearchResult pairs an indexed point with its similarity score.
type SearchResult struct {
	Point Point
	Score float32
}

// Filter restricts a search to points whose payload matches every listed
// key/value exactly. The filter is applied by the store before ranking,
// never client-side after truncation.
type Filter map[string]string

// Store is the vector collection contract the pipeline depends on.
type Store interface {
	// EnsureCollection creates the collection for the given vector
	// dimension if absent, or verifies the existing configuration.
	// A dimension or metric mismatch fails with ErrSchemaConflict.
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert inserts or replaces points by id; last write wins. Every
	// vector must match the collection dimension or the call fails.
	Upsert(ctx context.Context, points []Point) error

	// Search returns at most topK results ordered by descending score.
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]SearchResult, error)

	// Delete removes points by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// GetByID fetches a single point, ErrNotFound if absent.
	GetByID(ctx context.Context, id string) (*Point, error)
}

// CheckDimensions verifies every point vector against the collection
// dimension before anything hits the wire. Truncating or padding a vector
// would silently corrupt the collection, so a mismatch is an error.
func CheckDimensions(points []Point, dimension int) error {
	for _, p := range points {
		if len(p.Vector) != dimension {
			return fmt.Errorf("vectorstore: point %s has dimension %d, collection expects %d", p.ID, len(p.Vector), dimension)
		}
	}
	return nil
}
