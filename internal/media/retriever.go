// Package media retrieves source videos, captions, and playlist listings via
// a yt-dlp subprocess. Media files land under a single deterministic path per
// video id; a ".part" suffix marks in-flight downloads.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrRetrieval is returned when the source cannot be reached or downloaded.
var ErrRetrieval = errors.New("media retrieval failed")

// Metadata describes a fetched video.
type Metadata struct {
	VideoID  string
	Title    string
	Duration float64
	Author   string
	Views    int64
	URL      string
}

// PlaylistEntry is one video in a playlist listing.
type PlaylistEntry struct {
	VideoID   string  `json:"video_id"`
	Title     string  `json:"title"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
	URL       string  `json:"url"`
}

// runner abstracts subprocess execution so tests can substitute canned
// yt-dlp output.
type runner interface {
	// Output runs the command and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Lines runs the command, invoking onLine for each stdout line.
	Lines(ctx context.Context, onLine func(string), name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func (execRunner) Lines(ctx context.Context, onLine func(string), name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	scanLines(stdout, onLine)
	return cmd.Wait()
}

// Retriever downloads videos into a fixed directory keyed by video id.
type Retriever struct {
	dir    string
	binary string
	run    runner
	logger *slog.Logger
}

// NewRetriever creates a Retriever storing media under dir.
func NewRetriever(dir string) (*Retriever, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media directory: %w", err)
	}
	return &Retriever{
		dir:    dir,
		binary: "yt-dlp",
		run:    execRunner{},
		logger: slog.Default(),
	}, nil
}

// MediaPath returns the deterministic location for a completed download.
func (r *Retriever) MediaPath(videoID string) string {
	return filepath.Join(r.dir, videoID+".mp4")
}

// PartialPath returns the location used while a download is in flight.
func (r *Retriever) PartialPath(videoID string) string {
	return r.MediaPath(videoID) + ".part"
}

// ytMetadata mirrors the fields we use from yt-dlp --dump-json output.
type ytMetadata struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Uploader   string  `json:"uploader"`
	ViewCount  int64   `json:"view_count"`
	WebpageURL string  `json:"webpage_url"`
	Thumbnail  string  `json:"thumbnail"`
	URL        string  `json:"url"`
}

// FetchMetadata probes the source without downloading.
func (r *Retriever) FetchMetadata(ctx context.Context, url string) (Metadata, error) {
	out, err := r.run.Output(ctx, r.binary,
		"--dump-json", "--no-playlist", "--skip-download", url)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: probing %s: %v", ErrRetrieval, url, err)
	}
	return parseMetadata(out, url)
}

func parseMetadata(out []byte, url string) (Metadata, error) {
	var m ytMetadata
	if err := json.Unmarshal(out, &m); err != nil {
		return Metadata{}, fmt.Errorf("%w: parsing metadata: %v", ErrRetrieval, err)
	}
	// The id is always derived from the URL, never taken from the probe, so
	// that every layer (cache, progress, media paths) keys records the same
	// way regardless of what the extractor backend reports.
	md := Metadata{
		VideoID:  ExtractVideoID(url),
		Title:    m.Title,
		Duration: m.Duration,
		Author:   m.Uploader,
		Views:    m.ViewCount,
		URL:      m.WebpageURL,
	}
	if md.URL == "" {
		md.URL = url
	}
	if md.Title == "" {
		md.Title = "Unknown"
	}
	return md, nil
}

// progressTemplate makes yt-dlp emit machine-readable byte counters, one
// line per progress tick.
const progressTemplate = "download:PROGRESS %(progress.downloaded_bytes)s %(progress.total_bytes,progress.total_bytes_estimate|0)s"

// FetchMedia downloads the video and returns the local path plus metadata.
// onProgress, if non-nil, receives (downloadedBytes, totalBytes) updates.
func (r *Retriever) FetchMedia(ctx context.Context, url string, onProgress func(downloaded, total int64)) (string, Metadata, error) {
	md, err := r.FetchMetadata(ctx, url)
	if err != nil {
		return "", Metadata{}, err
	}

	final := r.MediaPath(md.VideoID)
	if _, err := os.Stat(final); err == nil {
		r.logger.Info("media already downloaded", "video_id", md.VideoID)
		return final, md, nil
	}

	partial := r.PartialPath(md.VideoID)
	err = r.run.Lines(ctx, func(line string) {
		if onProgress == nil {
			return
		}
		if d, t, ok := parseProgressLine(line); ok {
			onProgress(d, t)
		}
	}, r.binary,
		"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
		"--merge-output-format", "mp4",
		"--no-playlist",
		"--newline",
		"--progress-template", progressTemplate,
		"-o", partial,
		url,
	)
	if err != nil {
		os.Remove(partial)
		return "", Metadata{}, fmt.Errorf("%w: downloading %s: %v", ErrRetrieval, url, err)
	}

	if err := os.Rename(partial, final); err != nil {
		return "", Metadata{}, fmt.Errorf("%w: finalizing download: %v", ErrRetrieval, err)
	}
	r.logger.Info("media downloaded", "video_id", md.VideoID, "title", md.Title, "path", final)
	return final, md, nil
}

// parseProgressLine decodes one progressTemplate line.
func parseProgressLine(line string) (downloaded, total int64, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(line), "PROGRESS ")
	if !found {
		return 0, 0, false
	}
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return 0, 0, false
	}
	d, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	t, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		// total_bytes can be "NA" before yt-dlp has an estimate.
		return d, 0, true
	}
	return d, t, true
}

// FetchPlaylist lists the videos in a playlist without downloading anything.
// A single-video URL yields a one-element listing.
func (r *Retriever) FetchPlaylist(ctx context.Context, url string) ([]PlaylistEntry, error) {
	out, err := r.run.Output(ctx, r.binary,
		"--flat-playlist", "--dump-json", url)
	if err != nil {
		return nil, fmt.Errorf("%w: listing playlist %s: %v", ErrRetrieval, url, err)
	}
	return parsePlaylist(out)
}

func parsePlaylist(out []byte) ([]PlaylistEntry, error) {
	var entries []PlaylistEntry
	dec := json.NewDecoder(strings.NewReader(string(out)))
	for dec.More() {
		var m ytMetadata
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("%w: parsing playlist entry: %v", ErrRetrieval, err)
		}
		watchURL := m.WebpageURL
		if watchURL == "" {
			watchURL = m.URL
		}
		if watchURL == "" && m.ID != "" {
			watchURL = "https://www.youtube.com/watch?v=" + m.ID
		}
		entries = append(entries, PlaylistEntry{
			VideoID:   m.ID,
			Title:     m.Title,
			Thumbnail: m.Thumbnail,
			Duration:  m.Duration,
			URL:       watchURL,
		})
	}
	return entries, nil
}
