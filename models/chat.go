package models

// ConversationTurn is one prior exchange in a conversation, oldest first.
type ConversationTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatRequest is the payload for an assistant question.
type ChatRequest struct {
	Question    string             `json:"question" binding:"required"`
	Highlighted string             `json:"highlighted,omitempty"`
	Module      string             `json:"module,omitempty"`
	History     []ConversationTurn `json:"history,omitempty"`
	TopK        int                `json:"top_k,omitempty"`
}

// SourceRef is a provenance citation attached to an answer.
type SourceRef struct {
	Title   string  `json:"title"`
	Section string  `json:"section"`
	Source  string  `json:"source"`
	Score   float32 `json:"score"`
}

// ChatResponse carries the generated answer and its citations.
type ChatResponse struct {
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources,omitempty"`
}
