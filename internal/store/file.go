package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/meeting"
)

// File keeps every meeting in one local JSON array.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a store at path. The file is created on first save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Save replaces the record with the same title and date, or appends it.
func (f *File) Save(_ context.Context, rec meeting.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	recs, err := f.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range recs {
		if recs[i].Title == rec.Title && recs[i].Date == rec.Date {
			recs[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		recs = append(recs, rec)
	}

	if err := f.write(recs); err != nil {
		return saveError(err, "file", rec)
	}
	return nil
}

// Load returns every saved meeting.
func (f *File) Load() ([]meeting.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *File) load() ([]meeting.Record, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodePersistence, "read %s", f.path)
	}
	var recs []meeting.Record
	if len(data) == 0 {
		return recs, nil
	}
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodePersistence, "parse %s", f.path)
	}
	return recs, nil
}

func (f *File) write(recs []meeting.Record) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *File) Close() error { return nil }
