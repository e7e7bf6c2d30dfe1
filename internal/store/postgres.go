package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/meeting"
)

const meetingsTable = "meetings"

const createMeetingsTable = `
	CREATE TABLE IF NOT EXISTS meetings (
		meeting_title   TEXT NOT NULL,
		date            TEXT NOT NULL,
		start_time      TEXT NOT NULL,
		end_time        TEXT NOT NULL,
		duration        TEXT NOT NULL,
		full_transcript TEXT NOT NULL,
		summary         TEXT NOT NULL,
		tokens_used     BIGINT NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (meeting_title, date)
	)
`

// Postgres stores one row per meeting.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and creates the meetings table if needed.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	if url == "" {
		return nil, apperrors.New(apperrors.CodeConfig, "store.postgres_url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfig, "parse postgres url")
	}
	poolCfg.MaxConns = 4

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodePersistence, "create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, apperrors.CodePersistence, "ping postgres")
	}
	if _, err := pool.Exec(ctx, createMeetingsTable); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, apperrors.CodePersistence, "create meetings table")
	}
	return &Postgres{pool: pool}, nil
}

// Save upserts rec in a single statement.
func (p *Postgres) Save(ctx context.Context, rec meeting.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, upsertQuery, upsertArgs(rec)...); err != nil {
		return saveError(err, "postgres", rec)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

var upsertQuery = buildUpsert(meetingsTable, meeting.FieldNames, []string{"meeting_title", "date"})

// buildUpsert writes an INSERT ... ON CONFLICT DO UPDATE for columns.
func buildUpsert(table string, columns, key []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	isKey := make(map[string]bool, len(key))
	for _, k := range key {
		isKey[k] = true
	}
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		if !isKey[c] {
			sets = append(sets, c+" = EXCLUDED."+c)
		}
	}
	sets = append(sets, "updated_at = NOW()")

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(key, ", "),
		strings.Join(sets, ", "))
}

func upsertArgs(rec meeting.Record) []any {
	fields := rec.Fields()
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f.Value
	}
	return args
}
