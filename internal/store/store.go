// Package store persists finished meetings. Every driver upserts on
// (meeting_title, date), so saving the same meeting twice replaces it.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/GriffinCanCode/meetscribe/internal/config"
	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/meeting"
)

const (
	// MeetingsCollection names the Mongo collection and the Redis index set.
	MeetingsCollection = "Meetings"

	connectTimeout    = 10 * time.Second
	disconnectTimeout = 5 * time.Second
)

// Store saves meeting records.
type Store interface {
	Save(ctx context.Context, rec meeting.Record) error
	Close() error
}

// Open connects the configured driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "mongo":
		s, err = OpenMongo(ctx, cfg.MongoURI, cfg.MongoDB)
	case "postgres":
		s, err = OpenPostgres(ctx, cfg.PostgresURL)
	case "redis":
		s, err = OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	case "file":
		s = NewFile(cfg.FilePath)
	case "none", "":
		s = Discard{}
	default:
		err = apperrors.Newf(apperrors.CodeConfig, "unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Discard drops records. Used when persistence is disabled.
type Discard struct{}

func (Discard) Save(_ context.Context, rec meeting.Record) error {
	slog.Debug("store disabled, meeting not saved", "meeting", rec.Title)
	return nil
}

func (Discard) Close() error { return nil }

func saveError(err error, driver string, rec meeting.Record) error {
	return apperrors.Wrapf(err, apperrors.CodePersistence, "save %q (%s)", rec.Title, rec.Date).
		WithMetadata("driver", driver)
}
