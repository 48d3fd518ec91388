package services

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"textbook-rag-backend/models"
)

func wordRun(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%04d", i)
	}
	return strings.Join(words, " ")
}

func TestChunkLongParagraphWindows(t *testing.T) {
	chunker := NewChunker(500, 60)
	doc := models.Document{ID: "doc-1", Text: wordRun(1200)}

	chunks, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	if chunks[0].TokenCount != 500 || chunks[1].TokenCount != 500 || chunks[2].TokenCount != 320 {
		t.Fatalf("unexpected chunk sizes: %d %d %d",
			chunks[0].TokenCount, chunks[1].TokenCount, chunks[2].TokenCount)
	}

	// consecutive windows share the overlap region
	for i := 0; i < len(chunks)-1; i++ {
		prev := strings.Fields(chunks[i].Text)
		next := strings.Fields(chunks[i+1].Text)
		tail := strings.Join(prev[len(prev)-60:], " ")
		head := strings.Join(next[:60], " ")
		if tail != head {
			t.Fatalf("chunks %d and %d do not overlap by 60 words", i, i+1)
		}
	}

	for i, chunk := range chunks {
		if chunk.Ordinal != i {
			t.Fatalf("chunk %d has ordinal %d", i, chunk.Ordinal)
		}
	}
}

func TestChunkDeterministic(t *testing.T) {
	chunker := NewChunker(500, 60)
	doc := models.Document{ID: "doc-1", Text: wordRun(1200)}

	first, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Hash != second[i].Hash {
			t.Fatalf("chunk %d hash differs between runs", i)
		}
		if first[i].Ordinal != second[i].Ordinal {
			t.Fatalf("chunk %d ordinal differs between runs", i)
		}
	}
}

func TestChunkRespectsTokenBound(t *testing.T) {
	chunker := NewChunker(100, 20)
	text := wordRun(950) + "\n\n" + wordRun(75) + "\n\n" + wordRun(310)
	doc := models.Document{ID: "doc-1", Text: text}

	chunks, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	for i, chunk := range chunks {
		if chunk.TokenCount > 100 {
			t.Fatalf("chunk %d has %d tokens, over the 100 limit", i, chunk.TokenCount)
		}
	}
}

func TestChunkSectionLabels(t *testing.T) {
	chunker := NewChunker(500, 60)
	doc := models.Document{ID: "doc-1", Text: strings.Join([]string{
		"Some preamble before any heading.",
		"",
		"# Goroutines",
		"",
		"Goroutines are lightweight threads managed by the runtime.",
		"",
		"## Channels",
		"",
		"Channels let goroutines communicate safely.",
	}, "\n")}

	chunks, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Section != IntroductionSection {
		t.Fatalf("preamble section = %q, want %q", chunks[0].Section, IntroductionSection)
	}
	if chunks[1].Section != "Goroutines" {
		t.Fatalf("section = %q, want Goroutines", chunks[1].Section)
	}
	if chunks[2].Section != "Channels" {
		t.Fatalf("section = %q, want Channels", chunks[2].Section)
	}
}

func TestChunkStripsFrontMatterAndCodeFences(t *testing.T) {
	chunker := NewChunker(500, 60)
	doc := models.Document{ID: "doc-1", Text: strings.Join([]string{
		"---",
		"title: secret metadata",
		"---",
		"# Setup",
		"",
		"Install the toolchain first.",
		"",
		"```bash",
		"rm -rf /tmp/cache",
		"```",
		"",
		"Then verify the install.",
	}, "\n")}

	chunks, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	for _, chunk := range chunks {
		if strings.Contains(chunk.Text, "secret metadata") {
			t.Fatal("front matter leaked into chunk text")
		}
		if strings.Contains(chunk.Text, "rm -rf") {
			t.Fatal("code fence content leaked into chunk text")
		}
	}
}

func TestChunkParagraphOverlapSeed(t *testing.T) {
	chunker := NewChunker(10, 3)
	doc := models.Document{ID: "doc-1", Text: strings.Join([]string{
		"one two three four five six",
		"",
		"seven eight nine ten eleven twelve",
		"",
		"thirteen fourteen fifteen sixteen seventeen eighteen",
	}, "\n")}

	chunks, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 0; i < len(chunks)-1; i++ {
		prev := strings.Fields(chunks[i].Text)
		tail := strings.Join(prev[len(prev)-3:], " ")
		if !strings.HasPrefix(chunks[i+1].Text, tail) {
			t.Fatalf("chunk %d does not start with the previous chunk's tail", i+1)
		}
	}
}

func TestChunkSeededChunkStaysUnderBound(t *testing.T) {
	chunker := NewChunker(100, 20)
	para := wordRun(90)
	doc := models.Document{ID: "doc-1", Text: para + "\n\n" + para + "\n\n" + para}

	chunks, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.TokenCount > 100 {
			t.Fatalf("chunk %d has %d tokens, over the 100 limit", i, chunk.TokenCount)
		}
	}

	// The seed shrinks to fit but some overlap survives: each later chunk
	// starts with the tail of the previous paragraph.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].TokenCount != 100 {
			t.Fatalf("chunk %d has %d tokens, want the full 100 budget", i, chunks[i].TokenCount)
		}
		if !strings.HasPrefix(chunks[i].Text, "w0080") {
			t.Fatalf("chunk %d lost its trimmed overlap seed", i)
		}
	}
}

func TestChunkDropsSeedWhenParagraphFillsBudget(t *testing.T) {
	chunker := NewChunker(100, 20)
	para := wordRun(100)
	doc := models.Document{ID: "doc-1", Text: para + "\n\n" + para}

	chunks, err := chunker.Chunk(doc)
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.TokenCount != 100 {
			t.Fatalf("chunk %d has %d tokens, want exactly 100", i, chunk.TokenCount)
		}
	}
}

func TestChunkInvalidUTF8(t *testing.T) {
	chunker := NewChunker(500, 60)
	doc := models.Document{ID: "doc-1", Text: "valid start \xff\xfe invalid bytes"}

	_, err := chunker.Chunk(doc)
	if !errors.Is(err, ErrIngest) {
		t.Fatalf("expected ErrIngest, got %v", err)
	}
}

func TestChunkEmptyDocument(t *testing.T) {
	chunker := NewChunker(500, 60)

	for _, text := range []string{"", "   \n\n\t  "} {
		chunks, err := chunker.Chunk(models.Document{ID: "doc-1", Text: text})
		if err != nil {
			t.Fatalf("Chunk(%q) failed: %v", text, err)
		}
		if len(chunks) != 0 {
			t.Fatalf("Chunk(%q) = %d chunks, want 0", text, len(chunks))
		}
	}
}
