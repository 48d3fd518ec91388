package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"textbook-rag-backend/internal/ai"
	"textbook-rag-backend/models"
	"textbook-rag-backend/services"
	"textbook-rag-backend/utils"
)

type explainPageRequest struct {
	Path    string                    `json:"path" binding:"required"`
	History []models.ConversationTurn `json:"history"`
}

// SetupChatRoutes wires the question-answering endpoints.
func SetupChatRoutes(router *gin.Engine, assistant *services.Assistant, retriever *services.Retriever) {
	chat := router.Group("/chat")

	chat.POST("/ask", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		resp, err := assistant.Ask(c.Request.Context(), req)
		if err != nil {
			respondChatError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	chat.POST("/explain", func(c *gin.Context) {
		var req explainPageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		resp, err := assistant.ExplainPage(c.Request.Context(), req.Path, req.History)
		if err != nil {
			respondChatError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	chat.POST("/general", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		resp, err := assistant.GeneralAnswer(c.Request.Context(), req)
		if err != nil {
			respondChatError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	// Raw retrieval, useful for debugging relevance without generation.
	router.POST("/rag/query", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		results, err := retriever.Retrieve(c.Request.Context(), req.Question, services.RetrieveOptions{
			TopK:   req.TopK,
			Module: req.Module,
		})
		if err != nil {
			respondChatError(c, err)
			return
		}

		type hit struct {
			Text    string  `json:"text"`
			Title   string  `json:"title,omitempty"`
			Section string  `json:"section,omitempty"`
			Source  string  `json:"source,omitempty"`
			Score   float32 `json:"score"`
		}
		hits := make([]hit, 0, len(results))
		for _, res := range results {
			hits = append(hits, hit{
				Text:    res.Point.Payload.Text,
				Title:   res.Point.Payload.Title,
				Section: res.Point.Payload.Section,
				Source:  res.Point.Payload.Source,
				Score:   res.Score,
			})
		}
		c.JSON(http.StatusOK, gin.H{"results": hits})
	})
}

func respondChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ai.ErrProviderUnavailable):
		utils.RespondWithUnavailable(c, "AI provider is unavailable")
	case errors.Is(err, services.ErrInvalidQuery):
		utils.RespondWithBadRequest(c, err.Error(), nil)
	default:
		// Store and provider internals stay out of the response body.
		utils.RespondWithInternalError(c, "Failed to answer the question", nil)
	}
}
