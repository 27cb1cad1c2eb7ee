package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/1Usman7/Codio-Final-Year-Project/internal/analysis"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/cache"
)

const (
	maxConceptCodeSegments    = 10
	maxConceptTranscriptChars = 8000
)

// DetectConcepts re-runs concept detection against the cached transcript and
// segments for videoID and overwrites the stored concepts wholesale. The
// returned slice is empty, never nil, when nothing is detected.
func (s *Service) DetectConcepts(ctx context.Context, videoID string) ([]analysis.Concept, error) {
	a, err := s.cache.Get(videoID)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotProcessed
	}
	if err != nil {
		return nil, err
	}

	concepts := s.detectConcepts(ctx, a)
	a.Concepts = concepts
	if err := s.cache.Put(a); err != nil {
		return nil, fmt.Errorf("writing analysis cache: %w", err)
	}
	return concepts, nil
}

// detectConcepts builds a bounded text blob from the transcript and the
// first few code segments, asks the oracle for concepts, and fills in
// fallback timestamps for detections the model returned without any.
func (s *Service) detectConcepts(ctx context.Context, a *analysis.Analysis) []analysis.Concept {
	blob := conceptText(a)
	if strings.TrimSpace(blob) == "" {
		return []analysis.Concept{}
	}

	judged, err := s.oracle.DetectConcepts(ctx, blob)
	if err != nil {
		s.logger.Warn("concept detection failed", "video_id", a.VideoID, "error", err)
		return []analysis.Concept{}
	}

	fallback := fallbackTimestamps(a)
	concepts := make([]analysis.Concept, 0, len(judged))
	for _, j := range judged {
		ts := j.Timestamps
		if len(ts) == 0 {
			ts = fallback
		}
		concepts = append(concepts, analysis.Concept{
			Name:        j.Name,
			Category:    j.Category,
			Timestamps:  ts,
			Confidence:  j.Confidence,
			Description: j.Description,
		})
	}
	return concepts
}

func conceptText(a *analysis.Analysis) string {
	var b strings.Builder
	for _, t := range a.Transcript {
		if b.Len() >= maxConceptTranscriptChars {
			break
		}
		b.WriteString(t.Text)
		b.WriteByte('\n')
	}

	n := 0
	for _, seg := range a.Segments {
		if seg.Kind != analysis.KindCode || seg.CodeText == "" {
			continue
		}
		fmt.Fprintf(&b, "\n[%.1fs] %s\n", seg.Timestamp, seg.CodeText)
		n++
		if n >= maxConceptCodeSegments {
			break
		}
	}
	return b.String()
}

// fallbackTimestamps anchors un-timestamped concepts at the first few code
// segments so the client can still jump somewhere relevant.
func fallbackTimestamps(a *analysis.Analysis) []float64 {
	var ts []float64
	for _, seg := range a.Segments {
		if seg.Kind != analysis.KindCode {
			continue
		}
		ts = append(ts, seg.Timestamp)
		if len(ts) == 3 {
			break
		}
	}
	return ts
}
