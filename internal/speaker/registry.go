// Package speaker assigns stable ids to voices across segments and
// sessions, persisting known voices as JSON profiles.
package speaker

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/meetscribe/internal/backend"
	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
)

// DefaultTolerance is the largest embedding distance still considered the same voice.
const DefaultTolerance = 0.6

// Profile is a known voice.
type Profile struct {
	ID        string    `json:"id"`
	Embedding []float64 `json:"embedding"`
	Matches   int       `json:"matches"`
	LastSeen  time.Time `json:"last_seen"`
}

// Registry matches segments against profiles, creating a profile for
// every unmatched voice.
type Registry struct {
	path      string
	tolerance float64

	mu       sync.Mutex
	profiles []Profile
	dirty    bool
}

// NewRegistry creates a registry stored at path. Call Load to read existing profiles.
func NewRegistry(path string, tolerance float64) *Registry {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Registry{path: path, tolerance: tolerance}
}

// Load reads profiles from disk. A missing file starts an empty registry.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		slog.Info("no voice profiles found, starting fresh", "path", r.path)
		return nil
	}
	if err != nil {
		return apperrors.Wrapf(err, apperrors.CodeIO, "read %s", r.path)
	}
	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeIO, "parse %s", r.path)
	}
	r.mu.Lock()
	r.profiles = profiles
	r.dirty = false
	r.mu.Unlock()
	slog.Info("loaded voice profiles", "count", len(profiles))
	return nil
}

// Save writes profiles atomically via a temp file and rename.
func (r *Registry) Save() error {
	r.mu.Lock()
	data, err := json.MarshalIndent(r.profiles, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "encode voice profiles")
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeIO, "create %s", filepath.Dir(r.path))
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeIO, "write %s", tmp)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeIO, "rename %s", tmp)
	}

	r.mu.Lock()
	r.dirty = false
	r.mu.Unlock()
	return nil
}

// Dirty reports whether profiles changed since the last Load or Save.
func (r *Registry) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// Profiles returns a copy of the known profiles.
func (r *Registry) Profiles() []Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// IdentifySpeaker returns the id of the closest profile within tolerance,
// or registers a new one. Silent or too-short audio yields "".
func (r *Registry) IdentifySpeaker(_ context.Context, a backend.Audio) (string, error) {
	emb := Embed(a.PCM, a.SampleRate)
	if emb == nil {
		return "", nil
	}
	return r.Match(emb), nil
}

// Match finds or creates the profile for emb.
func (r *Registry) Match(emb []float64) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	best, bestDist := -1, math.Inf(1)
	for i, p := range r.profiles {
		if len(p.Embedding) != len(emb) {
			continue
		}
		if d := Distance(p.Embedding, emb); d < bestDist {
			best, bestDist = i, d
		}
	}
	now := time.Now()
	if best >= 0 && bestDist < r.tolerance {
		r.profiles[best].Matches++
		r.profiles[best].LastSeen = now
		r.dirty = true
		slog.Debug("voice matched", "speaker", r.profiles[best].ID, "distance", bestDist)
		return r.profiles[best].ID
	}

	p := Profile{ID: uuid.NewString(), Embedding: append([]float64(nil), emb...), Matches: 1, LastSeen: now}
	r.profiles = append(r.profiles, p)
	r.dirty = true
	slog.Info("created voice profile", "speaker", p.ID)
	return p.ID
}
