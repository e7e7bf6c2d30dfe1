package analysis

import "github.com/GriffinCanCode/meetscribe/internal/syncx"

// State is the session's AnalysisState: analyzer name to current Value.
// The map is copied on every write so snapshots stay valid.
type State struct {
	g *syncx.RWGuard[map[string]Value]
}

// NewState creates an empty state.
func NewState() *State {
	return &State{g: syncx.NewGuard(map[string]Value{})}
}

// Get returns the value for name.
func (s *State) Get(name string) Value {
	var v Value
	s.g.View(func(m map[string]Value) { v = m[name] })
	return v
}

// Set replaces the value for name.
func (s *State) Set(name string, v Value) {
	s.g.Update(func(old map[string]Value) map[string]Value {
		next := make(map[string]Value, len(old)+1)
		for k, val := range old {
			next[k] = val
		}
		next[name] = v
		return next
	})
}

// Snapshot returns the current map. Callers must not modify it.
func (s *State) Snapshot() map[string]Value {
	return s.g.Load()
}

// Reset clears every value.
func (s *State) Reset() {
	s.g.Store(map[string]Value{})
}
