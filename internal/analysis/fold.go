package analysis

import (
	"context"
	"strings"
)

const excerptRunes = 80

// FoldSummary keeps a running summary without an LLM by appending each chunk.
type FoldSummary struct{}

func (FoldSummary) Name() string { return Summary }

func (FoldSummary) IncrementalUpdate(_ context.Context, chunk string, prev Value) (Value, int64, error) {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return prev, 0, nil
	}
	text := prev.Text
	if text == "" {
		text = runningSummaryHeader
	}
	return Value{Text: text + chunk + "\n"}, 0, nil
}

func (FoldSummary) FinalPolish(_ context.Context, transcript string, partial Value) (Value, int64, error) {
	if text := strings.TrimSpace(partial.Text); text != "" {
		return Value{Text: text}, 0, nil
	}
	if t := strings.TrimSpace(transcript); t != "" {
		return Value{Text: runningSummaryHeader + excerpt(t, excerptRunes*4)}, 0, nil
	}
	return partial, 0, nil
}

// FoldList records a labelled excerpt of every chunk. The questions fold
// keeps the sentences that end in a question mark, when a chunk has any.
type FoldList struct {
	name  string
	label string
}

// NewFoldList returns the offline fold for a list analyzer, or false for an unknown name.
func NewFoldList(name string) (FoldList, bool) {
	kind, ok := listKinds[name]
	if !ok {
		return FoldList{}, false
	}
	return FoldList{name: name, label: kind.label}, true
}

func (f FoldList) Name() string { return f.name }

func (f FoldList) IncrementalUpdate(_ context.Context, chunk string, prev Value) (Value, int64, error) {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return prev, 0, nil
	}
	if f.name == Questions {
		if qs := questionSentences(chunk); len(qs) > 0 {
			return Value{Items: appendUnique(prev.Items, qs...)}, 0, nil
		}
	}
	return Value{Items: appendUnique(prev.Items, f.label+" from: "+excerpt(chunk, excerptRunes))}, 0, nil
}

func (f FoldList) FinalPolish(_ context.Context, _ string, partial Value) (Value, int64, error) {
	return Value{Items: appendUnique(nil, partial.Items...)}, 0, nil
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

func questionSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		switch r {
		case '.', '!', '?':
			s := strings.TrimSpace(text[start : i+1])
			start = i + 1
			if r == '?' && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
