package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FallbackAnswer is returned when the provider produced empty output. An
// empty answer must never reach the caller.
const FallbackAnswer = "I'm sorry, I couldn't produce an answer for that. Please try rephrasing your question."

// retryDelay is the fixed pause before the single allowed retry.
const retryDelay = 500 * time.Millisecond

// Answer runs a generation call with the adapter's failure policy: at most
// one retry after a short fixed delay, then ErrGeneration; empty provider
// output is replaced with FallbackAnswer.
func Answer(ctx context.Context, p GenerationProvider, prompt Prompt, temperature float32) (string, error) {
	text, err := p.Generate(ctx, prompt, temperature)
	if err != nil {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrGeneration, ctx.Err())
		case <-time.After(retryDelay):
		}
		text, err = p.Generate(ctx, prompt, temperature)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrGeneration, p.Name(), err)
		}
	}
	if strings.TrimSpace(text) == "" {
		return FallbackAnswer, nil
	}
	return text, nil
}
