package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/meetscribe/internal/backend"
	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
)

// SummaryAnalyzer rewrites the running summary with an LLM on every chunk.
type SummaryAnalyzer struct {
	llm       backend.Summarizer
	objective string
}

// NewSummary creates the LLM-backed summary analyzer.
func NewSummary(llm backend.Summarizer, objective string) *SummaryAnalyzer {
	return &SummaryAnalyzer{llm: llm, objective: objective}
}

func (s *SummaryAnalyzer) Name() string { return Summary }

func (s *SummaryAnalyzer) IncrementalUpdate(ctx context.Context, chunk string, prev Value) (Value, int64, error) {
	if strings.TrimSpace(chunk) == "" {
		return prev, 0, nil
	}
	comp, err := s.llm.GenerateSummary(ctx, backend.Prompt{
		System:    fmt.Sprintf(summarySystemPrompt, s.objective),
		Assistant: prev.Text,
		User:      fmt.Sprintf(summaryUserPrompt, chunk),
	})
	if err != nil {
		return prev, 0, err
	}
	if comp.Text == "" {
		return prev, comp.TokensUsed, apperrors.New(apperrors.CodeBackend, "empty summary completion")
	}
	return Value{Text: comp.Text}, comp.TokensUsed, nil
}

func (s *SummaryAnalyzer) FinalPolish(ctx context.Context, transcript string, partial Value) (Value, int64, error) {
	if strings.TrimSpace(transcript) == "" {
		return partial, 0, nil
	}
	comp, err := s.llm.GenerateSummary(ctx, backend.Prompt{
		System:    fmt.Sprintf(summaryPolishSystemPrompt, s.objective),
		Assistant: partial.Text,
		User:      fmt.Sprintf(summaryPolishUserPrompt, transcript),
	})
	if err != nil {
		return partial, 0, err
	}
	if comp.Text == "" {
		return partial, comp.TokensUsed, nil
	}
	return Value{Text: comp.Text}, comp.TokensUsed, nil
}
