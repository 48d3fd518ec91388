package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"textbook-rag-backend/internal/vectorstore"
)

// Store is a REST client to Qdrant implementing vectorstore.Store.
type Store struct {
	url        string
	apiKey     string
	collection string
	distance   string
	dimension  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Distance   string // e.g. "Cosine"
	Timeout    time.Duration
}

func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	distance := cfg.Distance
	if distance == "" {
		distance = "Cosine"
	}
	return &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		distance:   distance,
		client:     &http.Client{Timeout: timeout},
	}
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection creates the collection if missing, otherwise verifies the
// stored dimension and distance metric match. A mismatch is fatal: vectors
// from a differently configured provider must never land in this collection.
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("qdrant: invalid dimension")
	}

	var info collectionInfo
	status, err := s.getJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), &info)
	if err != nil {
		return err
	}

	if status == http.StatusOK {
		have := info.Result.Config.Params.Vectors
		if have.Size != dimension || !strings.EqualFold(have.Distance, s.distance) {
			return fmt.Errorf("%w: collection %s has size=%d distance=%s, want size=%d distance=%s",
				vectorstore.ErrSchemaConflict, s.collection, have.Size, have.Distance, dimension, s.distance)
		}
		s.dimension = dimension
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": s.distance,
		},
	}
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body); err != nil {
		return err
	}
	s.dimension = dimension
	return nil
}

func (s *Store) Upsert(ctx context.Context, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	if s.dimension == 0 {
		return errors.New("qdrant: collection not initialized, call EnsureCollection first")
	}
	if err := vectorstore.CheckDimensions(points, s.dimension); err != nil {
		return err
	}

	body := map[string]any{"points": toWirePoints(points)}
	return s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body)
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if len(filter) > 0 {
		// Server-side exact-match filter, applied before ranking
		must := make([]map[string]any, 0, len(filter))
		for key, value := range filter {
			must = append(must, map[string]any{
				"key":   key,
				"match": map[string]any{"value": value},
			})
		}
		req["filter"] = map[string]any{"must": must}
	}

	var resp struct {
		Result []struct {
			ID      any                 `json:"id"`
			Score   float32             `json:"score"`
			Payload vectorstore.Payload `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}

	results := make([]vectorstore.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, vectorstore.SearchResult{
			Point: vectorstore.Point{
				ID:      fmt.Sprintf("%v", r.ID),
				Payload: r.Payload,
			},
			Score: r.Score,
		})
	}
	return results, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	return s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection), body, nil)
}

func (s *Store) GetByID(ctx context.Context, id string) (*vectorstore.Point, error) {
	var resp struct {
		Result struct {
			ID      any                 `json:"id"`
			Vector  []float32           `json:"vector"`
			Payload vectorstore.Payload `json:"payload"`
		} `json:"result"`
	}
	status, err := s.getJSON(ctx, fmt.Sprintf("%s/collections/%s/points/%s", s.url, s.collection, id), &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, vectorstore.ErrNotFound
	}
	return &vectorstore.Point{
		ID:      fmt.Sprintf("%v", resp.Result.ID),
		Vector:  resp.Result.Vector,
		Payload: resp.Result.Payload,
	}, nil
}

func toWirePoints(points []vectorstore.Point) []map[string]any {
	wire := make([]map[string]any, len(points))
	for i, p := range points {
		wire[i] = map[string]any{
			"id":     p.ID,
			"vector": p.Vector,
			"payload": map[string]any{
				"text":        p.Payload.Text,
				"document_id": p.Payload.DocumentID,
				"title":       p.Payload.Title,
				"section":     p.Payload.Section,
				"module":      p.Payload.Module,
				"source":      p.Payload.Source,
				"ordinal":     p.Payload.Ordinal,
				"hash":        p.Payload.Hash,
			},
		}
	}
	return wire
}

func (s *Store) getJSON(ctx context.Context, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("qdrant GET %s failed: %s", url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (s *Store) putJSON(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant PUT %s failed: %s", url, resp.Status)
	}
	return nil
}

func (s *Store) postJSON(ctx context.Context, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (s *Store) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}
