// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ManuGH/smartcam/internal/log"
	"github.com/ManuGH/smartcam/internal/segment"
)

// Recovered is a segment that still needs compression after a restart.
type Recovered struct {
	Segment  *segment.Segment
	ClosedAt time.Time
	Orphan   bool
}

var errRecordingMissing = errors.New("recording missing after restart")

// Recover reconciles the catalog with dir and returns every segment that
// should be handed to the compression scheduler, oldest first.
//
// Catalogued segments that were open, closing, closed or compressing when
// the previous run ended are reset to closed. Recordings named
// "{prefix}*.avi" that the catalog does not know are adopted as orphans.
// Records whose recording vanished become done (if the compressed copy
// exists) or failed.
func (s *Store) Recover(ctx context.Context, dir, prefix string) ([]Recovered, error) {
	records, err := s.List(ctx, Filter{States: []segment.State{
		segment.StateOpen, segment.StateClosing, segment.StateClosed, segment.StateCompressing,
	}})
	if err != nil {
		return nil, err
	}

	var out []Recovered
	for _, r := range records {
		info, err := r.Info()
		if err != nil {
			return nil, err
		}
		fi, statErr := os.Stat(info.Path)
		switch {
		case statErr == nil:
			info.State = segment.StateClosed
			if info.End.IsZero() {
				info.End = fi.ModTime()
			}
			out = append(out, Recovered{Segment: segment.Restore(info), ClosedAt: info.End})
		case errors.Is(statErr, os.ErrNotExist):
			if _, err := os.Stat(segment.CompressedPath(info.Path)); err == nil {
				info.State = segment.StateDone
				info.CompressedPath = segment.CompressedPath(info.Path)
				info.Err = nil
			} else {
				info.State = segment.StateFailed
				info.Err = errRecordingMissing
			}
		default:
			return nil, fmt.Errorf("stat %s: %w", info.Path, statErr)
		}
		if err := s.Upsert(ctx, info); err != nil {
			return nil, err
		}
	}

	orphans, err := s.adoptOrphans(ctx, dir, prefix)
	if err != nil {
		return nil, err
	}
	out = append(out, orphans...)

	sort.SliceStable(out, func(i, j int) bool { return out[i].ClosedAt.Before(out[j].ClosedAt) })

	s.logger.Info().
		Str("event", "catalog.recovered").
		Int("segments", len(out)).
		Int("orphans", len(orphans)).
		Msg("recovery scan finished")
	return out, nil
}

func (s *Store) adoptOrphans(ctx context.Context, dir, prefix string) ([]Recovered, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	var out []Recovered
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, segment.Ext) {
			continue
		}
		path := filepath.Join(dir, name)
		if _, err := s.GetByPath(ctx, path); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		fi, err := e.Info()
		if err != nil {
			continue
		}
		info := segment.Info{
			ID:    "orphan-" + strings.TrimSuffix(name, segment.Ext),
			Path:  path,
			Start: fi.ModTime(),
			End:   fi.ModTime(),
			State: segment.StateClosed,
		}
		if err := s.Upsert(ctx, info); err != nil {
			return nil, err
		}
		s.logger.Info().
			Str("event", "catalog.orphan").
			Str(log.FieldPath, path).
			Msg("adopted uncatalogued recording")
		out = append(out, Recovered{Segment: segment.Restore(info), ClosedAt: info.End, Orphan: true})
	}
	return out, nil
}
