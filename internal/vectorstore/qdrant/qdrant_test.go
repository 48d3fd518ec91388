package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"textbook-rag-backend/internal/vectorstore"
)

func testStore(url string) *Store {
	return NewStore(Config{URL: url, Collection: "textbook_content", Distance: "Cosine"})
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	created := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/textbook_content":
			http.NotFound(w, r)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/textbook_content":
			var body struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("bad create body: %v", err)
			}
			if body.Vectors.Size != 768 || body.Vectors.Distance != "Cosine" {
				t.Errorf("create body = %+v", body.Vectors)
			}
			created = true
			w.Write([]byte(`{"result":true}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	if err := testStore(srv.URL).EnsureCollection(context.Background(), 768); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}
	if !created {
		t.Fatal("collection was not created")
	}
}

func TestEnsureCollectionDetectsSchemaConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":1536,"distance":"Cosine"}}}}}`))
	}))
	defer srv.Close()

	err := testStore(srv.URL).EnsureCollection(context.Background(), 768)
	if !errors.Is(err, vectorstore.ErrSchemaConflict) {
		t.Fatalf("expected ErrSchemaConflict, got %v", err)
	}
}

func TestEnsureCollectionAcceptsMatchingSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s request", r.Method)
		}
		w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":768,"distance":"Cosine"}}}}}`))
	}))
	defer srv.Close()

	if err := testStore(srv.URL).EnsureCollection(context.Background(), 768); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}
}

func TestUpsertRequiresMatchingDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":3,"distance":"Cosine"}}}}}`))
	}))
	defer srv.Close()

	store := testStore(srv.URL)
	if err := store.EnsureCollection(context.Background(), 3); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}

	err := store.Upsert(context.Background(), []vectorstore.Point{
		{ID: "p1", Vector: []float32{1, 2}},
	})
	if err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestUpsertWaitsForCommit(t *testing.T) {
	var sawWait bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":3,"distance":"Cosine"}}}}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/textbook_content/points":
			sawWait = r.URL.Query().Get("wait") == "true"
			var body struct {
				Points []struct {
					ID      string         `json:"id"`
					Vector  []float32      `json:"vector"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("bad upsert body: %v", err)
			}
			if len(body.Points) != 1 || body.Points[0].Payload["text"] != "hello" {
				t.Errorf("upsert body = %+v", body.Points)
			}
			w.Write([]byte(`{"result":{"status":"completed"}}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	store := testStore(srv.URL)
	if err := store.EnsureCollection(context.Background(), 3); err != nil {
		t.Fatalf("EnsureCollection failed: %v", err)
	}
	err := store.Upsert(context.Background(), []vectorstore.Point{
		{ID: "p1", Vector: []float32{1, 2, 3}, Payload: vectorstore.Payload{Text: "hello"}},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !sawWait {
		t.Fatal("upsert did not request wait=true")
	}
}

func TestSearchSendsFilterAndParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/textbook_content/points/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Vector      []float32 `json:"vector"`
			Limit       int       `json:"limit"`
			WithPayload bool      `json:"with_payload"`
			Filter      *struct {
				Must []struct {
					Key   string `json:"key"`
					Match struct {
						Value string `json:"value"`
					} `json:"match"`
				} `json:"must"`
			} `json:"filter"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("bad search body: %v", err)
		}
		if body.Limit != 2 || !body.WithPayload {
			t.Errorf("search body = limit %d with_payload %v", body.Limit, body.WithPayload)
		}
		if body.Filter == nil || len(body.Filter.Must) != 1 ||
			body.Filter.Must[0].Key != "module" || body.Filter.Must[0].Match.Value != "concurrency" {
			t.Errorf("filter not forwarded: %+v", body.Filter)
		}
		w.Write([]byte(`{"result":[
			{"id":"p1","score":0.93,"payload":{"text":"chunk one","module":"concurrency"}},
			{"id":"p2","score":0.71,"payload":{"text":"chunk two","module":"concurrency"}}
		]}`))
	}))
	defer srv.Close()

	results, err := testStore(srv.URL).Search(context.Background(), []float32{1, 0, 0}, 2,
		vectorstore.Filter{"module": "concurrency"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Point.ID != "p1" || results[0].Score != 0.93 {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[0].Point.Payload.Text != "chunk one" {
		t.Fatalf("payload not parsed: %+v", results[0].Point.Payload)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testStore(srv.URL).GetByID(context.Background(), "missing")
	if !errors.Is(err, vectorstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
