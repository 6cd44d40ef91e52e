// Package store persists usage statistics (utterances spoken, characters,
// synthesis duration) for the settings UI's statistics view.
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Utterance is one synthesis request worth of usage data.
type Utterance struct {
	SpokenAt   time.Time `json:"spoken_at"`
	Provider   string    `json:"provider"`
	Voice      string    `json:"voice"`
	Characters int       `json:"characters"`
	DurationMS int64     `json:"duration_ms"`
}

// Totals aggregates all recorded usage.
type Totals struct {
	Utterances int   `json:"utterances"`
	Characters int64 `json:"characters"`
	DurationMS int64 `json:"duration_ms"`
}

// DayUsage is per-day aggregated usage, most recent day first.
type DayUsage struct {
	Day        string `json:"day"` // YYYY-MM-DD (UTC)
	Utterances int    `json:"utterances"`
	Characters int64  `json:"characters"`
}

// UsageStore is a SQLite-backed usage recorder. Safe for concurrent use; the
// underlying *sql.DB serializes access.
type UsageStore struct {
	db *sql.DB
}

// Open creates or opens the usage database at path (":memory:" for tests).
func Open(path string) (*UsageStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("empty usage store path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &UsageStore{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *UsageStore) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS utterances(
		spoken_at TIMESTAMP NOT NULL,
		provider TEXT NOT NULL,
		voice TEXT NOT NULL,
		characters INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_utterances_spoken_at ON utterances(spoken_at);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *UsageStore) RecordUtterance(ctx context.Context, u Utterance) error {
	if u.SpokenAt.IsZero() {
		u.SpokenAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO utterances(spoken_at, provider, voice, characters, duration_ms)
		VALUES(?, ?, ?, ?, ?);`,
		u.SpokenAt.UTC(), u.Provider, u.Voice, u.Characters, u.DurationMS)
	return err
}

func (s *UsageStore) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(characters), 0), COALESCE(SUM(duration_ms), 0) FROM utterances;`)
	if err := row.Scan(&t.Utterances, &t.Characters, &t.DurationMS); err != nil {
		return Totals{}, err
	}
	return t, nil
}

// ByDay returns per-day usage for the most recent `days` days that have data.
func (s *UsageStore) ByDay(ctx context.Context, days int) ([]DayUsage, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(spoken_at) AS day, COUNT(*), COALESCE(SUM(characters), 0)
		FROM utterances
		GROUP BY day
		ORDER BY day DESC
		LIMIT ?;`, days)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []DayUsage
	for rows.Next() {
		var d DayUsage
		if err := rows.Scan(&d.Day, &d.Utterances, &d.Characters); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *UsageStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
