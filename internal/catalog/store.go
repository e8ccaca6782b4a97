// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalog keeps a SQLite index of recorded segments. It backs the
// segment list of the HTTP API and lets compression resume after a restart.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/persistence/sqlite"
	"github.com/ManuGH/smartcam/internal/segment"
)

var (
	// ErrNotFound is returned when a segment is not in the catalog.
	ErrNotFound = errors.New("segment not found")
	// ErrCorrupt is returned by Open when an existing catalog fails its quick check.
	ErrCorrupt = errors.New("catalog corrupt")
)

var migrations = []string{
	`CREATE TABLE segments (
		id TEXT PRIMARY KEY,
		seg_index INTEGER NOT NULL,
		path TEXT NOT NULL UNIQUE,
		compressed_path TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		frames INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL CHECK(state IN ('open', 'closing', 'closed', 'compressing', 'done', 'failed')),
		error TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);
	CREATE INDEX idx_segments_state ON segments(state);
	CREATE INDEX idx_segments_start ON segments(start_time);`,
}

// Record is one catalogued segment.
type Record struct {
	ID             string    `json:"id"`
	Index          uint64    `json:"index"`
	Path           string    `json:"path"`
	CompressedPath string    `json:"compressed_path,omitempty"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Frames         int       `json:"frames"`
	State          string    `json:"state"`
	Err            string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Info converts the record back into segment info.
func (r Record) Info() (segment.Info, error) {
	st, err := segment.ParseState(r.State)
	if err != nil {
		return segment.Info{}, err
	}
	var cause error
	if r.Err != "" {
		cause = errors.New(r.Err)
	}
	return segment.Info{
		ID:             r.ID,
		Index:          r.Index,
		Path:           r.Path,
		CompressedPath: r.CompressedPath,
		Start:          r.Start,
		End:            r.End,
		Frames:         r.Frames,
		State:          st,
		Err:            cause,
	}, nil
}

// Filter narrows List results.
type Filter struct {
	States []segment.State
	Since  time.Time
	Limit  int
}

// Store is the SQLite-backed catalog.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens (and migrates) the catalog at path. An existing file is
// quick-checked first.
func Open(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		issues, err := sqlite.VerifyIntegrity(ctx, path, "quick")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if len(issues) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrCorrupt, strings.Join(issues, "; "))
		}
	}
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := sqlite.Migrate(ctx, db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	s := &Store{db: db, logger: log.WithComponent("catalog"), now: time.Now}
	s.logger.Debug().Str(log.FieldPath, path).Msg("catalog opened")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Upsert records the current state of a segment.
func (s *Store) Upsert(ctx context.Context, info segment.Info) error {
	const query = `
	INSERT INTO segments (id, seg_index, path, compressed_path, start_time, end_time, frames, state, error, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		compressed_path = excluded.compressed_path,
		start_time = excluded.start_time,
		end_time = excluded.end_time,
		frames = excluded.frames,
		state = excluded.state,
		error = excluded.error,
		updated_at = excluded.updated_at
	`
	errText := ""
	if info.Err != nil {
		errText = info.Err.Error()
	}
	_, err := s.db.ExecContext(ctx, query,
		info.ID,
		int64(info.Index),
		info.Path,
		info.CompressedPath,
		formatTime(info.Start),
		formatTime(info.End),
		info.Frames,
		info.State.String(),
		errText,
		formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("upsert segment %s: %w", info.ID, err)
	}
	return nil
}

// Get returns one segment by ID.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// GetByPath returns the segment recorded for an original file path.
func (s *Store) GetByPath(ctx context.Context, path string) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE path = ?`, path)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return r, err
}

// List returns segments, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if len(f.States) > 0 {
		marks := make([]string, len(f.States))
		for i, st := range f.States {
			marks[i] = "?"
			args = append(args, st.String())
		}
		where = append(where, "state IN ("+strings.Join(marks, ",")+")")
	}
	if !f.Since.IsZero() {
		where = append(where, "start_time >= ?")
		args = append(args, formatTime(f.Since))
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time DESC, seg_index DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const selectColumns = `SELECT id, seg_index, path, compressed_path, start_time, end_time, frames, state, error, updated_at FROM segments`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		r                       Record
		index                   int64
		start, end, updatedText string
	)
	if err := sc.Scan(&r.ID, &index, &r.Path, &r.CompressedPath, &start, &end, &r.Frames, &r.State, &r.Err, &updatedText); err != nil {
		return Record{}, err
	}
	r.Index = uint64(index)
	r.Start = parseTime(start)
	r.End = parseTime(end)
	r.UpdatedAt = parseTime(updatedText)
	return r, nil
}

// timeLayout is fixed width so that text order equals time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
