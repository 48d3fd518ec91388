package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"textbook-rag-backend/internal/crawler"
	"textbook-rag-backend/models"
	"textbook-rag-backend/services"
	"textbook-rag-backend/utils"
)

const (
	TaskIngestDocument = "ingest:document"
	TaskIngestSitemap  = "ingest:sitemap"
)

type DocumentIngestPayload struct {
	Document models.Document `json:"document"`
}

type SitemapIngestPayload struct {
	SitemapURL string `json:"sitemap_url"`
	Module     string `json:"module"`
}

// Task creators
func NewDocumentIngestTask(doc models.Document) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentIngestPayload{Document: doc})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("default"),
	), nil
}

func NewSitemapIngestTask(sitemapURL, module string) (*asynq.Task, error) {
	payload, err := json.Marshal(SitemapIngestPayload{SitemapURL: sitemapURL, Module: module})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestSitemap,
		payload,
		asynq.MaxRetry(2),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// TaskProcessor holds the handlers the worker binary registers on its mux.
type TaskProcessor struct {
	ingestion  *services.IngestionService
	downloader *crawler.Downloader
	log        *slog.Logger
}

func NewTaskProcessor(ingestion *services.IngestionService, downloader *crawler.Downloader, log *slog.Logger) *TaskProcessor {
	return &TaskProcessor{
		ingestion:  ingestion,
		downloader: downloader,
		log:        log,
	}
}

func (p *TaskProcessor) HandleDocumentIngest(ctx context.Context, t *asynq.Task) error {
	var payload DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	report, err := p.ingestion.IngestDocument(ctx, payload.Document)
	if err != nil {
		return err
	}
	p.log.Info("background ingest finished",
		"document", report.DocumentID,
		"indexed", report.ChunksIndexed,
		"failed", report.ChunksFailed,
		"skipped", report.Skipped,
	)
	return nil
}

// HandleSitemapIngest downloads every page the sitemap lists and ingests
// each as its own document. Pages that fail to download or ingest are
// logged and skipped; the task only retries if nothing went through.
func (p *TaskProcessor) HandleSitemapIngest(ctx context.Context, t *asynq.Task) error {
	var payload SitemapIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	urls, err := p.downloader.FetchSitemap(ctx, payload.SitemapURL)
	if err != nil {
		return err
	}
	p.log.Info("sitemap fetched", "url", payload.SitemapURL, "pages", len(urls))

	ingested := 0
	for _, pageURL := range urls {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		page, err := p.downloader.DownloadPage(ctx, pageURL)
		if err != nil {
			p.log.Warn("page download failed, skipping", "url", pageURL, "error", err)
			continue
		}

		doc := models.Document{
			ID:      utils.ContentHash(page.URL)[:24],
			Title:   page.Title,
			Text:    page.Content,
			Source:  page.URL,
			DocType: "html",
			Module:  payload.Module,
		}
		if _, err := p.ingestion.IngestDocument(ctx, doc); err != nil {
			p.log.Warn("page ingest failed, skipping", "url", pageURL, "error", err)
			continue
		}
		ingested++
	}

	if ingested == 0 && len(urls) > 0 {
		return fmt.Errorf("sitemap %s: all %d pages failed", payload.SitemapURL, len(urls))
	}
	p.log.Info("sitemap ingest finished", "url", payload.SitemapURL, "ingested", ingested, "total", len(urls))
	return nil
}
