// Package pipeline coordinates the full video processing flow: media
// retrieval, fixed-interval frame sampling, per-frame classification,
// transcript and concept enrichment, and the cached results that point
// queries are answered from.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/1Usman7/Codio-Final-Year-Project/internal/analysis"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/cache"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/frames"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/media"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/oracle"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/progress"
)

var (
	// ErrNotProcessed is returned by queries against a video with no cached
	// analysis.
	ErrNotProcessed = errors.New("video not processed")
	// ErrCanceled is returned when a job observes its own cancellation
	// between frames.
	ErrCanceled = errors.New("processing canceled")
)

// MediaRetriever fetches source videos and captions.
type MediaRetriever interface {
	FetchMedia(ctx context.Context, url string, onProgress func(downloaded, total int64)) (string, media.Metadata, error)
	FetchCaptions(ctx context.Context, url string) ([]analysis.TranscriptEntry, error)
	MediaPath(videoID string) string
	PartialPath(videoID string) string
}

// FrameStream is a finite, single-pass sequence of sampled frames.
type FrameStream interface {
	Next() (frames.Sample, error)
	Total() int
	Close() error
}

// FrameSource opens bulk sampling streams and performs single-frame seeks.
type FrameSource interface {
	Open(ctx context.Context, path string, intervalSeconds float64) (FrameStream, error)
	SampleAt(ctx context.Context, path string, timestamp float64) ([]byte, error)
}

// NewFrameSource adapts the ffmpeg-backed sampler to the FrameSource
// interface.
func NewFrameSource(s *frames.Sampler) FrameSource {
	return samplerSource{s}
}

type samplerSource struct{ s *frames.Sampler }

func (fs samplerSource) Open(ctx context.Context, path string, intervalSeconds float64) (FrameStream, error) {
	st, err := fs.s.Open(ctx, path, intervalSeconds)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (fs samplerSource) SampleAt(ctx context.Context, path string, timestamp float64) ([]byte, error) {
	return fs.s.SampleAt(ctx, path, timestamp)
}

// Oracle classifies frames and detects concepts.
type Oracle interface {
	ClassifyFrame(ctx context.Context, jpeg []byte, timestamp float64) (oracle.Judgment, error)
	DetectConcepts(ctx context.Context, text string) ([]oracle.ConceptJudgment, error)
}

// AnalysisCache persists one analysis per video id.
type AnalysisCache interface {
	Get(videoID string) (*analysis.Analysis, error)
	Put(a *analysis.Analysis) error
	List() ([]analysis.Summary, error)
}

// Components wires a Service.
type Components struct {
	Cache    AnalysisCache
	Media    MediaRetriever
	Frames   FrameSource
	Oracle   Oracle
	Progress *progress.Tracker

	// Interval is the default sampling interval in seconds (2.0 if zero).
	Interval float64
	// KeepMedia retains downloaded files after a full processing run.
	// Download-only videos always keep their media for on-demand queries.
	KeepMedia bool
	Logger    *slog.Logger
}

// Service is the pipeline orchestrator. It owns the progress tracker and is
// the only component that talks to the external collaborators.
type Service struct {
	cache     AnalysisCache
	media     MediaRetriever
	frames    FrameSource
	oracle    Oracle
	progress  *progress.Tracker
	interval  float64
	keepMedia bool
	logger    *slog.Logger

	// group collapses concurrent processing requests for the same video
	// into one job.
	group singleflight.Group
	// mu makes the terminal transitions (cache write + completion, or
	// cancellation cleanup) atomic with respect to each other.
	mu sync.Mutex

	now func() time.Time
}

// NewService creates a Service from its components.
func NewService(c Components) *Service {
	if c.Interval <= 0 {
		c.Interval = 2.0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Service{
		cache:     c.Cache,
		media:     c.Media,
		frames:    c.Frames,
		oracle:    c.Oracle,
		progress:  c.Progress,
		interval:  c.Interval,
		keepMedia: c.KeepMedia,
		logger:    c.Logger,
		now:       time.Now,
	}
}

// ProcessFull runs the complete pipeline for url and returns the finished
// analysis. A cached analysis short-circuits unless force is set. interval
// <= 0 uses the service default.
func (s *Service) ProcessFull(ctx context.Context, url string, force bool, interval float64) (*analysis.Analysis, error) {
	videoID := media.ExtractVideoID(url)
	if interval <= 0 {
		interval = s.interval
	}

	if !force {
		a, err := s.cache.Get(videoID)
		if err == nil {
			s.logger.Info("returning cached analysis", "video_id", videoID)
			return a, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			return nil, err
		}
	}

	v, err, _ := s.group.Do(videoID, func() (any, error) {
		return s.runFull(ctx, url, videoID, interval)
	})
	if err != nil {
		return nil, err
	}
	return v.(*analysis.Analysis), nil
}

func (s *Service) runFull(ctx context.Context, url, videoID string, interval float64) (*analysis.Analysis, error) {
	s.progress.Start(videoID)
	s.logger.Info("processing video", "video_id", videoID, "interval_s", interval)

	mediaPath, md, err := s.media.FetchMedia(ctx, url, func(d, t int64) {
		s.progress.Downloading(videoID, d, t)
	})
	if err != nil {
		s.progress.Fail(videoID)
		return nil, fmt.Errorf("retrieving media: %w", err)
	}
	// A Cancel that landed mid-download removed the job; stop here and
	// discard the file the in-flight download just finished writing.
	if !s.progress.Active(videoID) {
		os.Remove(mediaPath)
		return nil, ErrCanceled
	}

	s.progress.Extracting(videoID)
	stream, err := s.frames.Open(ctx, mediaPath, interval)
	if err != nil {
		s.progress.Fail(videoID)
		return nil, fmt.Errorf("sampling frames: %w", err)
	}
	segments, err := s.assembleSegments(ctx, videoID, stream)
	expected := stream.Total()
	stream.Close()
	if err != nil {
		// Only cancellation aborts assembly; oracle failures degrade.
		return nil, err
	}
	if len(segments) < expected {
		// Truncated or unreadable tail; keep what decoded.
		s.logger.Warn("frame stream ended early",
			"video_id", videoID,
			"frames", len(segments),
			"expected", expected,
		)
	}

	a := &analysis.Analysis{
		VideoID:        videoID,
		Title:          md.Title,
		Duration:       md.Duration,
		FramesAnalyzed: len(segments),
		Segments:       segments,
		Metadata:       metadataMap(md),
		ExtractedAt:    s.now().UTC(),
	}

	// Transcript and concepts are best-effort enrichment; their failure
	// leaves the fields nil without failing the job.
	if entries, err := s.media.FetchCaptions(ctx, url); err != nil {
		s.logger.Warn("transcript extraction failed", "video_id", videoID, "error", err)
	} else if entries != nil {
		a.Transcript = entries
		a.Concepts = s.detectConcepts(ctx, a)
	}

	if err := s.finishJob(videoID, a); err != nil {
		return nil, err
	}

	if !s.keepMedia {
		if err := os.Remove(mediaPath); err != nil {
			s.logger.Warn("could not remove media file", "path", mediaPath, "error", err)
		}
	}

	s.logger.Info("processing complete",
		"video_id", videoID,
		"title", a.Title,
		"frames_analyzed", a.FramesAnalyzed,
		"code_segments", a.CodeSegmentCount(),
	)
	return a, nil
}

// finishJob atomically commits the analysis and marks the job completed,
// unless a racing Cancel already removed it.
func (s *Service) finishJob(videoID string, a *analysis.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.progress.Active(videoID) {
		return ErrCanceled
	}
	if err := s.cache.Put(a); err != nil {
		s.progress.Fail(videoID)
		return fmt.Errorf("writing analysis cache: %w", err)
	}
	s.progress.Complete(videoID)
	return nil
}

// DownloadSummary is the result of a download-only request.
type DownloadSummary struct {
	VideoID  string  `json:"video_id"`
	Status   string  `json:"status"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Message  string  `json:"message"`
}

// DownloadOnly fetches the video and stores a minimal analysis with no
// segments, deferring frame classification until requested. A video that is
// already on disk with a cache record takes the backfill path instead of
// re-downloading. Concurrent requests for the same video share one download
// through the same singleflight group as ProcessFull.
func (s *Service) DownloadOnly(ctx context.Context, url string) (DownloadSummary, error) {
	videoID := media.ExtractVideoID(url)

	if _, err := os.Stat(s.media.MediaPath(videoID)); err == nil {
		if a, err := s.cache.Get(videoID); err == nil {
			a = s.Backfill(ctx, a)
			return DownloadSummary{
				VideoID:  videoID,
				Status:   "completed",
				Title:    a.Title,
				Duration: a.Duration,
				Message:  "Video already downloaded",
			}, nil
		}
	}

	v, err, _ := s.group.Do(videoID, func() (any, error) {
		return s.runDownload(ctx, url, videoID)
	})
	if err != nil {
		return DownloadSummary{}, err
	}
	a := v.(*analysis.Analysis)
	return DownloadSummary{
		VideoID:  videoID,
		Status:   "completed",
		Title:    a.Title,
		Duration: a.Duration,
		Message:  "Video downloaded successfully",
	}, nil
}

func (s *Service) runDownload(ctx context.Context, url, videoID string) (*analysis.Analysis, error) {
	s.progress.Start(videoID)
	mediaPath, md, err := s.media.FetchMedia(ctx, url, func(d, t int64) {
		s.progress.Downloading(videoID, d, t)
	})
	if err != nil {
		s.progress.Fail(videoID)
		return nil, fmt.Errorf("retrieving media: %w", err)
	}
	if !s.progress.Active(videoID) {
		os.Remove(mediaPath)
		return nil, ErrCanceled
	}

	a := &analysis.Analysis{
		VideoID:     videoID,
		Title:       md.Title,
		Duration:    md.Duration,
		Segments:    []analysis.Segment{},
		Metadata:    metadataMap(md),
		ExtractedAt: s.now().UTC(),
	}
	if entries, err := s.media.FetchCaptions(ctx, url); err != nil {
		s.logger.Warn("transcript extraction failed", "video_id", videoID, "error", err)
	} else if entries != nil {
		a.Transcript = entries
		// No code segments yet; concepts come from the transcript alone.
		a.Concepts = s.detectConcepts(ctx, a)
	}

	if err := s.finishJob(videoID, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Backfill opportunistically fills optional fields missing from an existing
// record: a missing transcript is fetched, and concepts are detected once a
// transcript is present. Safe to run repeatedly; every write is a full
// overwrite.
func (s *Service) Backfill(ctx context.Context, a *analysis.Analysis) *analysis.Analysis {
	changed := false

	if a.Transcript == nil {
		if url := a.SourceURL(); url != "" {
			entries, err := s.media.FetchCaptions(ctx, url)
			if err != nil {
				s.logger.Warn("transcript backfill failed", "video_id", a.VideoID, "error", err)
			} else if entries != nil {
				a.Transcript = entries
				changed = true
			}
		}
	}

	if a.Transcript != nil && a.Concepts == nil {
		if concepts := s.detectConcepts(ctx, a); len(concepts) > 0 {
			a.Concepts = concepts
			changed = true
		}
	}

	if changed {
		if err := s.cache.Put(a); err != nil {
			s.logger.Warn("backfill write failed", "video_id", a.VideoID, "error", err)
		}
	}
	return a
}

// Status reports processing state for a video, in priority order: a cached
// analysis wins, then an active job, then an orphaned media file on disk,
// then not found.
type Status struct {
	VideoID      string `json:"video_id"`
	Status       string `json:"status"`
	Percent      int    `json:"progress"`
	Stage        string `json:"stage"`
	CurrentFrame int    `json:"current_frame,omitempty"`
	TotalFrames  int    `json:"total_frames,omitempty"`
}

// Status implements the lookup described on the Status type.
func (s *Service) Status(videoID string) Status {
	if _, err := s.cache.Get(videoID); err == nil {
		return Status{VideoID: videoID, Status: string(progress.StageCompleted), Percent: 100, Stage: "Ready for pause-to-code"}
	}

	if st, ok := s.progress.Get(videoID); ok {
		return Status{
			VideoID:      videoID,
			Status:       string(st.Stage),
			Percent:      st.Percent,
			Stage:        st.Label,
			CurrentFrame: st.CurrentFrame,
			TotalFrames:  st.TotalFrames,
		}
	}

	// Recovery heuristic: a partial download without tracked progress means
	// a job started and the tracker state was lost (e.g. restart mid-job).
	if fileExists(s.media.PartialPath(videoID)) {
		return Status{VideoID: videoID, Status: "processing", Percent: 10, Stage: "Processing..."}
	}

	return Status{VideoID: videoID, Status: "not_found", Percent: 0, Stage: "Not started"}
}

// Cancel stops tracking the video's job and removes its media files. A
// completed cache entry is left untouched. Canceling an absent job is a
// no-op.
//
// Cancellation is cooperative: a job that is already past its final
// classification may still commit its analysis after Cancel returns. That
// race is accepted; the system always lands in exactly one of the two
// terminal states.
func (s *Service) Cancel(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.progress.Remove(videoID) {
		s.logger.Info("canceled processing", "video_id", videoID)
		os.Remove(s.media.MediaPath(videoID))
	}
	os.Remove(s.media.PartialPath(videoID))
}

// List returns summaries of all cached analyses, newest first.
func (s *Service) List() ([]analysis.Summary, error) {
	return s.cache.List()
}

func metadataMap(md media.Metadata) map[string]any {
	return map[string]any{
		"title":    md.Title,
		"duration": md.Duration,
		"author":   md.Author,
		"views":    md.Views,
		"video_id": md.VideoID,
		"url":      md.URL,
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
