package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/1Usman7/Codio-Final-Year-Project/internal/analysis"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/cache"
)

// QueryResult is the answer to a point-in-time code lookup. Code segments
// carry the code fields; learning segments carry the topic and omit them.
type QueryResult struct {
	Found       bool    `json:"found"`
	VideoID     string  `json:"video_id"`
	Timestamp   float64 `json:"timestamp"`
	SegmentType string  `json:"segment_type,omitempty"`
	Code        string  `json:"code,omitempty"`
	Language    string  `json:"language,omitempty"`
	IsComplete  bool    `json:"code_complete,omitempty"`
	Topic       string  `json:"learning_topic,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Message     string  `json:"message,omitempty"`
}

// QueryAt returns the segment nearest to timestamp within tolerance
// seconds. Exact distance ties resolve to the earlier segment. Returns
// ErrNotProcessed when no analysis is cached for the video.
func (s *Service) QueryAt(videoID string, timestamp, tolerance float64) (QueryResult, error) {
	a, err := s.getAnalysis(videoID)
	if err != nil {
		return QueryResult{}, err
	}

	var best *analysis.Segment
	minDiff := math.Inf(1)
	for i := range a.Segments {
		diff := math.Abs(a.Segments[i].Timestamp - timestamp)
		if diff < minDiff && diff <= tolerance {
			minDiff = diff
			best = &a.Segments[i]
		}
	}

	if best == nil {
		return QueryResult{
			Found:     false,
			VideoID:   videoID,
			Timestamp: timestamp,
			Message:   fmt.Sprintf("no segment within %.1fs of %.1fs", tolerance, timestamp),
		}, nil
	}

	res := QueryResult{
		Found:       true,
		VideoID:     videoID,
		Timestamp:   best.Timestamp,
		SegmentType: string(best.Kind),
		Confidence:  best.Confidence,
	}
	if best.Kind == analysis.KindCode {
		res.Code = best.CodeText
		res.Language = best.Language
		res.IsComplete = best.IsComplete
	} else {
		res.Topic = best.TopicText
	}
	return res, nil
}

// ListSegments returns the cached segment list in sampling order.
func (s *Service) ListSegments(videoID string) ([]analysis.Segment, error) {
	a, err := s.getAnalysis(videoID)
	if err != nil {
		return nil, err
	}
	return a.Segments, nil
}

// Info returns the full cached analysis, backfilling missing optional
// fields first.
func (s *Service) Info(ctx context.Context, videoID string) (*analysis.Analysis, error) {
	a, err := s.getAnalysis(videoID)
	if err != nil {
		return nil, err
	}
	return s.Backfill(ctx, a), nil
}

// ExportTimeline renders the cached segments as a markdown document.
func (s *Service) ExportTimeline(videoID string) (string, error) {
	a, err := s.getAnalysis(videoID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", a.Title)
	fmt.Fprintf(&b, "Video ID: %s  \n", a.VideoID)
	fmt.Fprintf(&b, "Duration: %.0fs  \n", a.Duration)
	fmt.Fprintf(&b, "Segments: %d (%d with code)\n\n", len(a.Segments), a.CodeSegmentCount())

	for _, seg := range a.Segments {
		fmt.Fprintf(&b, "## %s\n\n", formatTimestamp(seg.Timestamp))
		if seg.Kind == analysis.KindCode {
			lang := seg.Language
			if lang == "" {
				lang = "text"
			}
			fmt.Fprintf(&b, "```%s\n%s\n```\n\n", lang, seg.CodeText)
		} else {
			topic := seg.TopicText
			if topic == "" {
				topic = "(no topic detected)"
			}
			fmt.Fprintf(&b, "%s\n\n", topic)
		}
	}
	return b.String(), nil
}

// AnalyzeFrameAt samples a single frame at the given timestamp from the
// video's media file and classifies it on demand. Used for timestamps that
// fall outside any cached segment's tolerance window.
func (s *Service) AnalyzeFrameAt(ctx context.Context, videoID string, timestamp float64) (QueryResult, error) {
	path := s.media.MediaPath(videoID)
	if !fileExists(path) {
		return QueryResult{}, ErrNotProcessed
	}

	jpeg, err := s.frames.SampleAt(ctx, path, timestamp)
	if err != nil {
		return QueryResult{}, fmt.Errorf("sampling frame at %.1fs: %w", timestamp, err)
	}
	j, err := s.oracle.ClassifyFrame(ctx, jpeg, timestamp)
	if err != nil {
		return QueryResult{}, fmt.Errorf("classifying frame at %.1fs: %w", timestamp, err)
	}

	res := QueryResult{
		Found:       true,
		VideoID:     videoID,
		Timestamp:   timestamp,
		SegmentType: j.SegmentType,
		Confidence:  j.Confidence,
	}
	if j.SegmentType == string(analysis.KindCode) {
		res.Code = j.CodeContent
		res.Language = j.Language
		res.IsComplete = j.CodeComplete
	} else {
		res.Topic = j.LearningTopic
	}
	return res, nil
}

func (s *Service) getAnalysis(videoID string) (*analysis.Analysis, error) {
	a, err := s.cache.Get(videoID)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotProcessed
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
