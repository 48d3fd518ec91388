package models

import "time"

// Document is a single ingested source text. Documents are immutable once
// stored; re-ingesting the same document supersedes the previous version
// rather than mutating it.
type Document struct {
	ID          string            `json:"id" bson:"_id"`
	Title       string            `json:"title" bson:"title"`
	Text        string            `json:"text" bson:"text"`
	Source      string            `json:"source" bson:"source"`
	DocType     string            `json:"doc_type" bson:"doc_type"` // markdown, html, text
	Module      string            `json:"module" bson:"module"`
	Metadata    map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
	ContentHash string            `json:"content_hash" bson:"content_hash"`
	IngestedAt  time.Time         `json:"ingested_at" bson:"ingested_at"`
}

// Chunk is a bounded span of one document's text, the unit of retrieval.
// A chunk never outlives its source document's ingestion batch.
type Chunk struct {
	DocumentID string `json:"document_id" bson:"document_id"`
	Ordinal    int    `json:"ordinal" bson:"ordinal"`
	Text       string `json:"text" bson:"text"`
	Section    string `json:"section" bson:"section"`
	Hash       string `json:"hash" bson:"hash"`
	TokenCount int    `json:"token_count" bson:"token_count"`
}

// ChunkMapping records which vector point a chunk landed on, keyed by
// (document id, ordinal). The chunk text is kept compressed for auditing.
type ChunkMapping struct {
	DocumentID  string    `bson:"document_id"`
	Ordinal     int       `bson:"ordinal"`
	PointID     string    `bson:"point_id"`
	Hash        string    `bson:"hash"`
	Section     string    `bson:"section"`
	Compressed  []byte    `bson:"compressed,omitempty"`
	Compression string    `bson:"compression,omitempty"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// IngestReport summarizes one ingestion run of a document.
type IngestReport struct {
	DocumentID    string `json:"document_id"`
	ChunksTotal   int    `json:"chunks_total"`
	ChunksIndexed int    `json:"chunks_indexed"`
	ChunksFailed  int    `json:"chunks_failed"`
	Skipped       bool   `json:"skipped"`
}
