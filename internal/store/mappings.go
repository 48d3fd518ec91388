package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"textbook-rag-backend/models"
	"textbook-rag-backend/utils"
)

// MappingStore persists document metadata and the (document id, ordinal) →
// vector point id mapping in MongoDB. The pipeline only touches it to check
// a content hash before re-chunking and to record a mapping after a
// successful upsert.
type MappingStore struct {
	documents *mongo.Collection
	mappings  *mongo.Collection
}

func NewMappingStore(client *mongo.Client, dbName string) *MappingStore {
	db := client.Database(dbName)
	return &MappingStore{
		documents: db.Collection("documents"),
		mappings:  db.Collection("chunk_mappings"),
	}
}

// UpsertDocument stores or supersedes a document's metadata by id.
func (s *MappingStore) UpsertDocument(ctx context.Context, doc *models.Document) error {
	doc.IngestedAt = time.Now().UTC()
	_, err := s.documents.ReplaceOne(ctx,
		bson.M{"_id": doc.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// DocumentHash returns the stored content hash for a document id, or ""
// when the document has never been ingested.
func (s *MappingStore) DocumentHash(ctx context.Context, documentID string) (string, error) {
	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{"_id": documentID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup document %s: %w", documentID, err)
	}
	return doc.ContentHash, nil
}

// RecordMapping upserts one chunk mapping keyed by (document id, ordinal)
// and archives the chunk text compressed.
func (s *MappingStore) RecordMapping(ctx context.Context, chunk models.Chunk, pointID string) error {
	compressed, algorithm, err := utils.CompressText(chunk.Text)
	if err != nil {
		return fmt.Errorf("compress chunk %s/%d: %w", chunk.DocumentID, chunk.Ordinal, err)
	}

	mapping := models.ChunkMapping{
		DocumentID:  chunk.DocumentID,
		Ordinal:     chunk.Ordinal,
		PointID:     pointID,
		Hash:        chunk.Hash,
		Section:     chunk.Section,
		Compressed:  compressed,
		Compression: string(algorithm),
		UpdatedAt:   time.Now().UTC(),
	}

	_, err = s.mappings.ReplaceOne(ctx,
		bson.M{"document_id": chunk.DocumentID, "ordinal": chunk.Ordinal},
		mapping,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("record mapping %s/%d: %w", chunk.DocumentID, chunk.Ordinal, err)
	}
	return nil
}

// StaleMappings lists point ids of mappings beyond the given ordinal, i.e.
// chunks from a previous ingestion that the new, shorter chunk list no
// longer covers.
func (s *MappingStore) StaleMappings(ctx context.Context, documentID string, fromOrdinal int) ([]string, error) {
	cursor, err := s.mappings.Find(ctx, bson.M{
		"document_id": documentID,
		"ordinal":     bson.M{"$gte": fromOrdinal},
	})
	if err != nil {
		return nil, fmt.Errorf("list stale mappings %s: %w", documentID, err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var m models.ChunkMapping
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		ids = append(ids, m.PointID)
	}
	return ids, cursor.Err()
}

// DeleteMappings removes mapping records beyond the given ordinal.
func (s *MappingStore) DeleteMappings(ctx context.Context, documentID string, fromOrdinal int) error {
	_, err := s.mappings.DeleteMany(ctx, bson.M{
		"document_id": documentID,
		"ordinal":     bson.M{"$gte": fromOrdinal},
	})
	if err != nil {
		return fmt.Errorf("delete mappings %s: %w", documentID, err)
	}
	return nil
}
