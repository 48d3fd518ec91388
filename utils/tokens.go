package utils

import "strings"

// EstimateTokens approximates the token count of text as the number of
// whitespace-delimited words. Chunking and context assembly budget against
// this estimate, so the same function must be used everywhere.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}

// TailWords returns the last n whitespace-delimited words of text joined by
// single spaces, or the whole text if it has fewer than n words.
func TailWords(text string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[len(words)-n:], " ")
}
