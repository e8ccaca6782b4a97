// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package segment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// Ext is the extension of freshly recorded segments.
	Ext = ".avi"
	// CompressedExt is the extension of compressed segments.
	CompressedExt = ".mp4"

	timeLayout = "20060102_150405"
)

// Namer allocates segment file names: {dir}/{prefix}{YYYYMMDD_HHMMSS}.avi,
// with a _n suffix when that name (or its compressed twin) is taken.
type Namer struct {
	Dir    string
	Prefix string

	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewNamer returns a Namer for dir and prefix.
func NewNamer(dir, prefix string) *Namer {
	return &Namer{Dir: dir, Prefix: prefix, reserved: make(map[string]struct{})}
}

// Next returns an unused path for a segment starting at t.
func (n *Namer) Next(t time.Time) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	base := n.Prefix + t.Format(timeLayout)
	for i := 0; i < 10000; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		path := filepath.Join(n.Dir, name+Ext)
		if _, ok := n.reserved[path]; ok {
			continue
		}
		taken, err := exists(path)
		if err != nil {
			return "", err
		}
		if !taken {
			taken, err = exists(CompressedPath(path))
			if err != nil {
				return "", err
			}
		}
		if taken {
			continue
		}
		n.reserved[path] = struct{}{}
		return path, nil
	}
	return "", fmt.Errorf("no free segment name for %s", base)
}

// CompressedPath maps a segment path to its compressed counterpart.
func CompressedPath(path string) string {
	return path[:len(path)-len(filepath.Ext(path))] + CompressedExt
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
