package analysis

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/GriffinCanCode/meetscribe/internal/backend"
	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
)

// ListAnalyzer extracts bullet items (themes, insights, questions or action
// items) with an LLM and appends the new ones.
type ListAnalyzer struct {
	name      string
	noun      string
	llm       backend.Summarizer
	objective string
}

// NewList creates the LLM-backed list analyzer for name.
func NewList(name string, llm backend.Summarizer, objective string) (*ListAnalyzer, error) {
	kind, ok := listKinds[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeConfig, "unknown list analyzer %q", name)
	}
	return &ListAnalyzer{name: name, noun: kind.noun, llm: llm, objective: objective}, nil
}

func (l *ListAnalyzer) Name() string { return l.name }

func (l *ListAnalyzer) IncrementalUpdate(ctx context.Context, chunk string, prev Value) (Value, int64, error) {
	if strings.TrimSpace(chunk) == "" {
		return prev, 0, nil
	}
	comp, err := l.llm.GenerateSummary(ctx, backend.Prompt{
		System:    fmt.Sprintf(listSystemPrompt, l.noun, l.objective, l.noun, l.noun),
		Assistant: prev.String(),
		User:      chunk,
	})
	if err != nil {
		return prev, 0, err
	}
	return Value{Items: appendUnique(prev.Items, ParseItems(comp.Text)...)}, comp.TokensUsed, nil
}

func (l *ListAnalyzer) FinalPolish(ctx context.Context, transcript string, partial Value) (Value, int64, error) {
	if strings.TrimSpace(transcript) == "" {
		return partial, 0, nil
	}
	comp, err := l.llm.GenerateSummary(ctx, backend.Prompt{
		System:    fmt.Sprintf(listPolishSystemPrompt, l.noun, l.objective, l.noun),
		Assistant: partial.String(),
		User:      fmt.Sprintf(summaryPolishUserPrompt, transcript),
	})
	if err != nil {
		return partial, 0, err
	}
	items := ParseItems(comp.Text)
	if len(items) == 0 {
		return partial, comp.TokensUsed, nil
	}
	return Value{Items: appendUnique(nil, items...)}, comp.TokensUsed, nil
}

// ParseItems reads one item per line, stripping bullets and numbering.
// A reply of NONE yields no items.
func ParseItems(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•")
		line = trimNumbering(strings.TrimSpace(line))
		if line == "" || strings.EqualFold(strings.Trim(line, "."), "none") {
			continue
		}
		items = append(items, line)
	}
	return items
}

func trimNumbering(s string) string {
	i := 0
	for i < len(s) && unicode.IsDigit(rune(s[i])) {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// appendUnique copies prev and appends items not already present,
// compared case-insensitively.
func appendUnique(prev []string, items ...string) []string {
	out := make([]string, len(prev), len(prev)+len(items))
	copy(out, prev)
	seen := make(map[string]bool, len(out)+len(items))
	for _, it := range out {
		seen[strings.ToLower(it)] = true
	}
	for _, it := range items {
		key := strings.ToLower(it)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}
