package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"textbook-rag-backend/internal/ai"
	"textbook-rag-backend/internal/telemetry"
	"textbook-rag-backend/internal/vectorstore"
	"textbook-rag-backend/models"
	"textbook-rag-backend/utils"
)

// pointNamespace is the fixed UUIDv5 namespace for vector point ids. Ids
// derive from (document id, ordinal), so re-ingesting a document overwrites
// its previous points instead of duplicating them.
var pointNamespace = uuid.MustParse("0de54a8b-3b9e-4f21-a0c7-57e8b7c3a9d1")

// PointID returns the deterministic vector point id for a chunk position.
func PointID(documentID string, ordinal int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s:%d", documentID, ordinal))).String()
}

// MappingRecorder is the narrow relational-store interface the pipeline
// consumes: a hash precheck before re-chunking and a mapping record after a
// successful upsert.
type MappingRecorder interface {
	UpsertDocument(ctx context.Context, doc *models.Document) error
	DocumentHash(ctx context.Context, documentID string) (string, error)
	RecordMapping(ctx context.Context, chunk models.Chunk, pointID string) error
	StaleMappings(ctx context.Context, documentID string, fromOrdinal int) ([]string, error)
	DeleteMappings(ctx context.Context, documentID string, fromOrdinal int) error
}

// IngestionService runs the ingestion path: chunk, embed in fixed-size
// batches, upsert, record mappings. Chunk-level failures are logged and
// skipped; store-level failures abort the run.
type IngestionService struct {
	chunker   *Chunker
	embedder  ai.EmbeddingProvider
	store     vectorstore.Store
	mappings  MappingRecorder
	metrics   *telemetry.Metrics
	batchSize int
	log       *slog.Logger
}

func NewIngestionService(chunker *Chunker, embedder ai.EmbeddingProvider, store vectorstore.Store, mappings MappingRecorder, metrics *telemetry.Metrics, batchSize int, log *slog.Logger) *IngestionService {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &IngestionService{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		mappings:  mappings,
		metrics:   metrics,
		batchSize: batchSize,
		log:       log,
	}
}

// IngestDocument chunks and indexes one document. Ingestion is
// at-least-once: cancelled runs leave already-upserted points in place, and
// deterministic ids make the next run overwrite them.
func (s *IngestionService) IngestDocument(ctx context.Context, doc models.Document) (*models.IngestReport, error) {
	doc.ContentHash = utils.ContentHash(doc.Text)
	report := &models.IngestReport{DocumentID: doc.ID}

	if s.mappings != nil {
		prev, err := s.mappings.DocumentHash(ctx, doc.ID)
		if err != nil {
			s.log.Warn("document hash lookup failed", "document", doc.ID, "error", err)
		} else if prev == doc.ContentHash {
			s.log.Info("document unchanged, skipping", "document", doc.ID)
			report.Skipped = true
			return report, nil
		}
	}

	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		return nil, err
	}
	report.ChunksTotal = len(chunks)
	if len(chunks) == 0 {
		return report, nil
	}

	if err := s.store.EnsureCollection(ctx, s.embedder.Dimension()); err != nil {
		return nil, err
	}

	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		indexed, failed, err := s.ingestBatch(ctx, doc, batch)
		if err != nil {
			return report, err
		}
		report.ChunksIndexed += indexed
		report.ChunksFailed += failed
	}

	if report.ChunksIndexed == 0 {
		return report, fmt.Errorf("%w: all %d chunks of document %s failed", ai.ErrProviderUnavailable, report.ChunksTotal, doc.ID)
	}

	s.cleanupStale(ctx, doc.ID, len(chunks))

	if s.mappings != nil {
		if err := s.mappings.UpsertDocument(ctx, &doc); err != nil {
			s.log.Warn("document metadata upsert failed", "document", doc.ID, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.RecordIngest(int64(report.ChunksIndexed), int64(report.ChunksFailed), s.embedder.Name())
	}

	s.log.Info("document ingested",
		"document", doc.ID,
		"chunks", report.ChunksTotal,
		"indexed", report.ChunksIndexed,
		"failed", report.ChunksFailed,
	)
	return report, nil
}

// ingestBatch embeds one batch in a single round-trip. If the batch call
// fails, each chunk is retried individually so one bad chunk doesn't sink
// its neighbors.
func (s *IngestionService) ingestBatch(ctx context.Context, doc models.Document, batch []models.Chunk) (indexed, failed int, err error) {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}

	vectors, embedErr := s.embedder.EmbedBatch(ctx, texts, ai.IntentDocument)
	var points []vectorstore.Point
	var indexedChunks []models.Chunk

	if embedErr == nil {
		for i, chunk := range batch {
			points = append(points, s.toPoint(doc, chunk, vectors[i]))
			indexedChunks = append(indexedChunks, chunk)
		}
	} else {
		s.log.Warn("batch embedding failed, retrying per chunk", "document", doc.ID, "error", embedErr)
		for _, chunk := range batch {
			if ctx.Err() != nil {
				return indexed, failed, ctx.Err()
			}
			vec, err := ai.EmbedOne(ctx, s.embedder, chunk.Text, ai.IntentDocument)
			if err != nil {
				s.log.Warn("chunk embedding failed, skipping",
					"document", doc.ID, "ordinal", chunk.Ordinal, "error", err)
				failed++
				continue
			}
			points = append(points, s.toPoint(doc, chunk, vec))
			indexedChunks = append(indexedChunks, chunk)
		}
	}

	if len(points) == 0 {
		return indexed, failed, nil
	}

	if err := s.store.Upsert(ctx, points); err != nil {
		return indexed, failed, fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	indexed += len(points)

	if s.mappings != nil {
		for i, chunk := range indexedChunks {
			if err := s.mappings.RecordMapping(ctx, chunk, points[i].ID); err != nil {
				s.log.Warn("mapping record failed", "document", doc.ID, "ordinal", chunk.Ordinal, "error", err)
			}
		}
	}
	return indexed, failed, nil
}

func (s *IngestionService) toPoint(doc models.Document, chunk models.Chunk, vector []float32) vectorstore.Point {
	return vectorstore.Point{
		ID:     PointID(doc.ID, chunk.Ordinal),
		Vector: vector,
		Payload: vectorstore.Payload{
			Text:       chunk.Text,
			DocumentID: doc.ID,
			Title:      doc.Title,
			Section:    chunk.Section,
			Module:     doc.Module,
			Source:     doc.Source,
			Ordinal:    chunk.Ordinal,
			Hash:       chunk.Hash,
		},
	}
}

// cleanupStale drops points left over from a longer previous version of the
// document. Best effort: failures only log.
func (s *IngestionService) cleanupStale(ctx context.Context, documentID string, chunkCount int) {
	if s.mappings == nil {
		return
	}
	stale, err := s.mappings.StaleMappings(ctx, documentID, chunkCount)
	if err != nil {
		s.log.Warn("stale mapping lookup failed", "document", documentID, "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	if err := s.store.Delete(ctx, stale); err != nil {
		s.log.Warn("stale point delete failed", "document", documentID, "error", err)
		return
	}
	if err := s.mappings.DeleteMappings(ctx, documentID, chunkCount); err != nil {
		s.log.Warn("stale mapping delete failed", "document", documentID, "error", err)
	}
}
