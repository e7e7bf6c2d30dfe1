package analysis

import (
	"github.com/GriffinCanCode/meetscribe/internal/backend"
	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
)

// Factory builds a session's registry for its objective.
type Factory func(objective string) (*Registry, error)

// NewFactory returns a Factory for the named analyzers. With a nil llm the
// offline folds are used instead.
func NewFactory(llm backend.Summarizer, names []string) Factory {
	names = append([]string(nil), names...)
	return func(objective string) (*Registry, error) {
		analyzers := make([]Analyzer, 0, len(names))
		for _, name := range names {
			a, err := build(name, llm, objective)
			if err != nil {
				return nil, err
			}
			analyzers = append(analyzers, a)
		}
		return NewRegistry(analyzers...)
	}
}

func build(name string, llm backend.Summarizer, objective string) (Analyzer, error) {
	if name == Summary {
		if llm == nil {
			return FoldSummary{}, nil
		}
		return NewSummary(llm, objective), nil
	}
	if llm == nil {
		if f, ok := NewFoldList(name); ok {
			return f, nil
		}
		return nil, apperrors.Newf(apperrors.CodeConfig, "unknown analyzer %q", name)
	}
	return NewList(name, llm, objective)
}
