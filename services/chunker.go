package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"textbook-rag-backend/models"
	"textbook-rag-backend/utils"
)

// ErrIngest marks malformed source content. Chunking fails fast on it; no
// partial chunk list is returned.
var ErrIngest = errors.New("ingest: malformed source content")

// IntroductionSection labels chunks that precede any heading.
const IntroductionSection = "Introduction"

var (
	headingRegex   = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	paragraphRegex = regexp.MustCompile(`\n\s*\n+`)
)

// Chunker splits document text into bounded, overlapping, heading-aware
// chunks. Re-chunking identical input yields byte-identical boundaries.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

func NewChunker(maxTokens, overlapTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= maxTokens {
		overlapTokens = maxTokens / 4
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}
}

// Chunk produces the ordered chunk sequence for a document. Ordinals are
// global across the document and stable across runs.
func (c *Chunker) Chunk(doc models.Document) ([]models.Chunk, error) {
	if !utf8.ValidString(doc.Text) {
		return nil, fmt.Errorf("%w: document %s is not valid UTF-8", ErrIngest, doc.ID)
	}

	text := stripFrontMatter(doc.Text)
	sections := splitSections(text)

	var chunks []models.Chunk
	ordinal := 0
	for _, sec := range sections {
		for _, chunkText := range c.chunkSection(sec.body) {
			trimmed := strings.TrimSpace(chunkText)
			if trimmed == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{
				DocumentID: doc.ID,
				Ordinal:    ordinal,
				Text:       trimmed,
				Section:    sec.label,
				Hash:       utils.ContentHash(trimmed),
				TokenCount: utils.EstimateTokens(trimmed),
			})
			ordinal++
		}
	}
	return chunks, nil
}

type section struct {
	label string
	body  string
}

// splitSections walks the text line by line, starting a new section at each
// markdown heading and dropping fenced code blocks. Text before the first
// heading gets a synthetic "Introduction" label.
func splitSections(text string) []section {
	var sections []section
	label := IntroductionSection
	var lines []string
	inCode := false

	flush := func() {
		body := strings.TrimSpace(strings.Join(lines, "\n"))
		if body != "" {
			sections = append(sections, section{label: label, body: body})
		}
		lines = lines[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inCode = !inCode
			continue
		}
		if inCode {
			continue
		}
		if m := headingRegex.FindStringSubmatch(trimmed); m != nil {
			flush()
			heading := strings.TrimSpace(m[2])
			if heading == "" {
				heading = IntroductionSection
			}
			label = heading
			continue
		}
		lines = append(lines, line)
	}
	flush()
	return sections
}

// chunkSection accumulates whole paragraphs up to the token budget. On
// overflow the chunk closes and the next one is seeded with the trailing
// overlap words. Sections without paragraph breaks, and single paragraphs
// over budget, fall back to fixed-size word windowing.
func (c *Chunker) chunkSection(body string) []string {
	paragraphs := filterEmpty(paragraphRegex.Split(body, -1))
	if len(paragraphs) == 0 {
		return nil
	}
	if len(paragraphs) == 1 {
		return c.windowWords(paragraphs[0])
	}

	var chunks []string
	var parts []string
	tokens := 0

	flush := func() {
		if len(parts) == 0 {
			return
		}
		chunk := strings.Join(parts, "\n\n")
		chunks = append(chunks, chunk)
		seed := utils.TailWords(chunk, c.overlapTokens)
		parts = parts[:0]
		tokens = 0
		if seed != "" {
			parts = append(parts, seed)
			tokens = utils.EstimateTokens(seed)
		}
	}

	for _, paragraph := range paragraphs {
		paraTokens := utils.EstimateTokens(paragraph)

		if paraTokens > c.maxTokens {
			// Oversized paragraph: close what we have and window it
			if len(parts) > 0 {
				chunks = append(chunks, strings.Join(parts, "\n\n"))
				parts = parts[:0]
				tokens = 0
			}
			chunks = append(chunks, c.windowWords(paragraph)...)
			continue
		}

		if tokens+paraTokens > c.maxTokens && tokens > 0 {
			flush()
			if tokens+paraTokens > c.maxTokens {
				// The overlap seed plus this paragraph would overflow.
				// Shrink the seed so the budget holds.
				keep := c.maxTokens - paraTokens
				if keep <= 0 {
					parts = parts[:0]
					tokens = 0
				} else {
					seed := utils.TailWords(parts[0], keep)
					parts[0] = seed
					tokens = utils.EstimateTokens(seed)
				}
			}
		}
		parts = append(parts, paragraph)
		tokens += paraTokens
	}
	if len(parts) > 0 {
		chunks = append(chunks, strings.Join(parts, "\n\n"))
	}
	return chunks
}

// windowWords emits fixed-size word windows of maxTokens words, each window
// starting overlapTokens words before the previous one ended.
func (c *Chunker) windowWords(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= c.maxTokens {
		return []string{strings.Join(words, " ")}
	}

	step := c.maxTokens - c.overlapTokens
	if step <= 0 {
		step = c.maxTokens
	}

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + c.maxTokens
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// stripFrontMatter removes a leading YAML front-matter block delimited by
// --- lines.
func stripFrontMatter(text string) string {
	if !strings.HasPrefix(text, "---") {
		return text
	}
	lines := strings.Split(text, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return text
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[i+1:], "\n")
		}
	}
	return text
}

func filterEmpty(slice []string) []string {
	result := make([]string, 0, len(slice))
	for _, s := range slice {
		if len(strings.TrimSpace(s)) > 0 {
			result = append(result, s)
		}
	}
	return result
}
