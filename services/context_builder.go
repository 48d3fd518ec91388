package services

import (
	"fmt"
	"strings"

	"textbook-rag-backend/internal/vectorstore"
	"textbook-rag-backend/models"
	"textbook-rag-backend/utils"
)

// ContextInput is everything that competes for space in the model prompt,
// in priority order: highlighted excerpt, retrieved chunks (best first),
// then conversation history (newest kept first).
type ContextInput struct {
	Results     []vectorstore.SearchResult
	Highlighted string
	History     []models.ConversationTurn
}

// ContextBuilder assembles the grounding context under a fixed token
// budget. Entries are whole or absent, never cut mid-text.
type ContextBuilder struct {
	maxTokens int
}

func NewContextBuilder(maxTokens int) *ContextBuilder {
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &ContextBuilder{maxTokens: maxTokens}
}

// Build renders the prompt context. Retrieved chunks are added best first
// until the budget runs out, so going over drops the lowest-ranked entries.
func (b *ContextBuilder) Build(input ContextInput) string {
	budget := b.maxTokens
	var blocks []string

	if excerpt := strings.TrimSpace(input.Highlighted); excerpt != "" {
		block := "[Highlighted excerpt]\n" + excerpt
		blocks = append(blocks, block)
		budget -= utils.EstimateTokens(block)
	}

	for _, res := range input.Results {
		block := formatSource(res)
		cost := utils.EstimateTokens(block)
		if cost > budget {
			break
		}
		blocks = append(blocks, block)
		budget -= cost
	}

	if history := b.renderHistory(input.History, budget); history != "" {
		blocks = append(blocks, history)
	}

	return strings.Join(blocks, "\n\n")
}

func formatSource(res vectorstore.SearchResult) string {
	title := res.Point.Payload.Title
	if title == "" {
		title = res.Point.Payload.Source
	}
	if title == "" {
		title = res.Point.Payload.DocumentID
	}
	section := res.Point.Payload.Section
	if section == "" {
		section = IntroductionSection
	}
	return fmt.Sprintf("[Source: %s / %s]\n%s", title, section, res.Point.Payload.Text)
}

// renderHistory keeps as many recent turns as fit, emitted oldest first so
// the conversation reads chronologically.
func (b *ContextBuilder) renderHistory(history []models.ConversationTurn, budget int) string {
	if len(history) == 0 || budget <= 0 {
		return ""
	}

	lines := make([]string, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		turn := history[i]
		label := "User"
		if strings.EqualFold(turn.Role, "assistant") {
			label = "Assistant"
		}
		line := label + ": " + strings.TrimSpace(turn.Content)
		cost := utils.EstimateTokens(line)
		if cost > budget {
			break
		}
		lines = append(lines, line)
		budget -= cost
	}
	if len(lines) == 0 {
		return ""
	}

	// reverse back to chronological order
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return "[Conversation so far]\n" + strings.Join(lines, "\n")
}
