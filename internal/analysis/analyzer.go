// Package analysis holds the incremental analyzers that fold transcript
// chunks into a running summary and item lists.
package analysis

import (
	"context"
	"strings"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
)

// Analyzer names.
const (
	Summary     = "summary"
	Themes      = "themes"
	Insights    = "insights"
	Questions   = "questions"
	ActionItems = "action_items"
)

// Value is one analyzer's state: Text for the summary, Items for lists.
// Values are replaced whole and never modified after publication.
type Value struct {
	Text  string   `json:"text,omitempty"`
	Items []string `json:"items,omitempty"`
}

// Clone returns a copy that shares no memory with v.
func (v Value) Clone() Value {
	if v.Items != nil {
		v.Items = append([]string(nil), v.Items...)
	}
	return v
}

// IsEmpty reports whether v has no content.
func (v Value) IsEmpty() bool {
	return strings.TrimSpace(v.Text) == "" && len(v.Items) == 0
}

// String renders Text, or Items as "- " bullets.
func (v Value) String() string {
	if len(v.Items) == 0 {
		return v.Text
	}
	var b strings.Builder
	for i, it := range v.Items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
	return b.String()
}

// Analyzer folds transcript chunks into a Value. Implementations must not
// modify prev or partial; callers may still be reading them.
type Analyzer interface {
	Name() string
	// IncrementalUpdate folds one chunk into prev and returns the tokens spent.
	IncrementalUpdate(ctx context.Context, chunk string, prev Value) (Value, int64, error)
	// FinalPolish refines partial against the whole transcript. partial may be empty.
	FinalPolish(ctx context.Context, transcript string, partial Value) (Value, int64, error)
}

// Registry is the ordered set of analyzers for one session.
type Registry struct {
	order  []string
	byName map[string]Analyzer
}

// NewRegistry registers analyzers in order. Duplicate names are rejected.
func NewRegistry(analyzers ...Analyzer) (*Registry, error) {
	r := &Registry{byName: make(map[string]Analyzer, len(analyzers))}
	for _, a := range analyzers {
		name := a.Name()
		if _, dup := r.byName[name]; dup {
			return nil, apperrors.Newf(apperrors.CodeConfig, "analyzer %q registered twice", name)
		}
		r.order = append(r.order, name)
		r.byName[name] = a
	}
	return r, nil
}

// Names returns analyzer names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns every analyzer in order.
func (r *Registry) All() []Analyzer {
	out := make([]Analyzer, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
