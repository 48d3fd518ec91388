package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"textbook-rag-backend/internal/ai"
	"textbook-rag-backend/internal/queue"
	"textbook-rag-backend/internal/vectorstore"
	"textbook-rag-backend/models"
	"textbook-rag-backend/services"
	"textbook-rag-backend/utils"
)

type ingestDocumentRequest struct {
	ID       string            `json:"id" binding:"required"`
	Title    string            `json:"title"`
	Text     string            `json:"text" binding:"required"`
	Source   string            `json:"source"`
	DocType  string            `json:"doc_type"`
	Module   string            `json:"module"`
	Metadata map[string]string `json:"metadata"`
	Async    bool              `json:"async"`
}

type ingestSitemapRequest struct {
	SitemapURL string `json:"sitemap_url" binding:"required,url"`
	Module     string `json:"module"`
}

// SetupIngestRoutes wires the ingestion endpoints. Synchronous ingestion
// returns the per-chunk report; async hands the document to the worker.
func SetupIngestRoutes(router *gin.Engine, ingestion *services.IngestionService, asynqClient *asynq.Client) {
	group := router.Group("/ingest")

	group.POST("/document", func(c *gin.Context) {
		var req ingestDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		doc := models.Document{
			ID:       req.ID,
			Title:    req.Title,
			Text:     req.Text,
			Source:   req.Source,
			DocType:  req.DocType,
			Module:   req.Module,
			Metadata: req.Metadata,
		}

		if req.Async && asynqClient != nil {
			task, err := queue.NewDocumentIngestTask(doc)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to create ingest task", nil)
				return
			}
			info, err := asynqClient.Enqueue(task)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to enqueue ingest task", nil)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "queue": info.Queue})
			return
		}

		report, err := ingestion.IngestDocument(c.Request.Context(), doc)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrIngest):
				utils.RespondWithError(c, http.StatusUnprocessableEntity, "ingest_error", err.Error(), nil)
			case errors.Is(err, ai.ErrProviderUnavailable):
				utils.RespondWithUnavailable(c, "Embedding provider is unavailable")
			case errors.Is(err, vectorstore.ErrSchemaConflict):
				utils.RespondWithError(c, http.StatusConflict, "schema_conflict", err.Error(), nil)
			default:
				utils.RespondWithInternalError(c, "Ingestion failed", gin.H{"error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, report)
	})

	group.POST("/sitemap", func(c *gin.Context) {
		var req ingestSitemapRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		if asynqClient == nil {
			utils.RespondWithUnavailable(c, "Background ingestion is not configured")
			return
		}

		task, err := queue.NewSitemapIngestTask(req.SitemapURL, req.Module)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create sitemap task", nil)
			return
		}
		info, err := asynqClient.Enqueue(task)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to enqueue sitemap task", nil)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID, "queue": info.Queue})
	})
}
