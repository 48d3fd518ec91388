package ai

import (
	"context"
	"errors"
	"testing"
)

type scriptedGenerator struct {
	outputs []string
	errs    []error
	calls   int
}

func (s *scriptedGenerator) Name() string { return "scripted" }

func (s *scriptedGenerator) Generate(ctx context.Context, prompt Prompt, temperature float32) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.outputs) {
		return "", errors.New("no more scripted responses")
	}
	return s.outputs[i], s.errs[i]
}

func TestAnswerSucceedsFirstTry(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"done"}, errs: []error{nil}}

	text, err := Answer(context.Background(), gen, Prompt{UserMessage: "q"}, 0.7)
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if text != "done" {
		t.Fatalf("text = %q", text)
	}
	if gen.calls != 1 {
		t.Fatalf("calls = %d, want 1", gen.calls)
	}
}

func TestAnswerRetriesOnceThenSucceeds(t *testing.T) {
	gen := &scriptedGenerator{
		outputs: []string{"", "recovered"},
		errs:    []error{errors.New("transient"), nil},
	}

	text, err := Answer(context.Background(), gen, Prompt{UserMessage: "q"}, 0.7)
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if text != "recovered" {
		t.Fatalf("text = %q", text)
	}
	if gen.calls != 2 {
		t.Fatalf("calls = %d, want 2", gen.calls)
	}
}

func TestAnswerGivesUpAfterSingleRetry(t *testing.T) {
	gen := &scriptedGenerator{
		outputs: []string{"", "", "never reached"},
		errs:    []error{errors.New("down"), errors.New("still down"), nil},
	}

	_, err := Answer(context.Background(), gen, Prompt{UserMessage: "q"}, 0.7)
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("calls = %d, want 2", gen.calls)
	}
}

func TestAnswerReplacesEmptyOutput(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"   "}, errs: []error{nil}}

	text, err := Answer(context.Background(), gen, Prompt{UserMessage: "q"}, 0.7)
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if text != FallbackAnswer {
		t.Fatalf("text = %q, want FallbackAnswer", text)
	}
}

func TestAnswerHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &scriptedGenerator{
		outputs: []string{"", "never reached"},
		errs:    []error{errors.New("down"), nil},
	}

	_, err := Answer(ctx, gen, Prompt{UserMessage: "q"}, 0.7)
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("calls = %d, want 1 before the retry delay", gen.calls)
	}
}
