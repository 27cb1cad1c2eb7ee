// Package cache persists one JSON document per video id. Writes are full
// overwrites via a temp file and rename, so readers never observe a
// half-written record. Older documents that predate the transcript/concepts
// fields decode with those fields nil.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/1Usman7/Codio-Final-Year-Project/internal/analysis"
)

// ErrNotFound is returned when no analysis exists for a video id.
var ErrNotFound = errors.New("analysis not found")

const docSuffix = "_analysis.json"

// Store is a directory-backed analysis cache keyed by video id.
type Store struct {
	dir string
}

// Open creates (if needed) and opens a cache directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(videoID string) (string, error) {
	if videoID == "" || strings.ContainsAny(videoID, `/\`) || strings.Contains(videoID, "..") {
		return "", fmt.Errorf("invalid video id %q", videoID)
	}
	return filepath.Join(s.dir, videoID+docSuffix), nil
}

// Get loads the analysis for videoID.
func (s *Store) Get(videoID string) (*analysis.Analysis, error) {
	p, err := s.path(videoID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading analysis %s: %w", videoID, err)
	}

	var a analysis.Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decoding analysis %s: %w", videoID, err)
	}
	return &a, nil
}

// Put overwrites the stored analysis for a.VideoID. The write is atomic with
// respect to readers.
func (s *Store) Put(a *analysis.Analysis) error {
	p, err := s.path(a.VideoID)
	if err != nil {
		return err
	}
	if a.Segments == nil {
		a.Segments = []analysis.Segment{}
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding analysis %s: %w", a.VideoID, err)
	}

	tmp := p + ".tmp." + uuid.New().String()
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing analysis %s: %w", a.VideoID, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("committing analysis %s: %w", a.VideoID, err)
	}
	return nil
}

// Delete removes the stored analysis. Deleting an absent record is a no-op.
func (s *Store) Delete(videoID string) error {
	p, err := s.path(videoID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting analysis %s: %w", videoID, err)
	}
	return nil
}

// List returns summaries of every stored analysis, newest extraction first.
// Unreadable documents are skipped rather than failing the whole listing.
func (s *Store) List() ([]analysis.Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}

	summaries := make([]analysis.Summary, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), docSuffix) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), docSuffix)
		a, err := s.Get(id)
		if err != nil {
			continue
		}
		summaries = append(summaries, a.Summary())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ExtractedAt.After(summaries[j].ExtractedAt)
	})
	return summaries, nil
}

// Size reports the total bytes stored in the cache directory.
func (s *Store) Size() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}
