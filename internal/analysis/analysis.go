// Package analysis holds the data model shared by the video processing
// pipeline, the cache, and the API layer: per-frame classification segments,
// transcript entries, detected concepts, and the complete per-video record.
package analysis

import "time"

// SegmentKind distinguishes a frame showing code from one showing
// explanation/learning material.
type SegmentKind string

const (
	KindCode     SegmentKind = "code"
	KindLearning SegmentKind = "learning"
)

// Segment is one sampled instant's classification result. Segments are
// immutable once created; identity is (video id, timestamp).
type Segment struct {
	Timestamp  float64     `json:"timestamp"`
	FrameIndex int         `json:"frame_number"`
	Kind       SegmentKind `json:"segment_type"`
	CodeText   string      `json:"code_content,omitempty"`
	TopicText  string      `json:"learning_topic,omitempty"`
	Confidence float64     `json:"confidence"`
	Language   string      `json:"language"`
	IsComplete bool        `json:"code_complete"`
}

// TranscriptEntry is one caption line, ordered by timestamp.
type TranscriptEntry struct {
	Timestamp float64 `json:"timestamp"`
	Text      string  `json:"text"`
	Duration  float64 `json:"duration"`
}

// Concept is a programming concept detected in the transcript and code
// segments. Concepts are a derived view: each detection run recomputes them
// wholesale, never merging with a previous run.
type Concept struct {
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Timestamps  []float64 `json:"timestamps"`
	Confidence  float64   `json:"confidence"`
	Description string    `json:"description,omitempty"`
}

// Analysis is the unit of cache persistence, one per video id.
// Transcript and Concepts are nil when the respective enrichment step has not
// run yet; they marshal as absent fields so that records written before those
// fields existed still decode cleanly.
type Analysis struct {
	VideoID        string            `json:"video_id"`
	Title          string            `json:"video_title"`
	Duration       float64           `json:"duration"`
	FramesAnalyzed int               `json:"total_frames_analyzed"`
	Segments       []Segment         `json:"code_segments"`
	Transcript     []TranscriptEntry `json:"transcript,omitempty"`
	Concepts       []Concept         `json:"concepts,omitempty"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
	ExtractedAt    time.Time         `json:"extraction_date"`
}

// Summary is the listing view of an Analysis.
type Summary struct {
	VideoID       string    `json:"video_id"`
	Title         string    `json:"video_title"`
	Duration      float64   `json:"duration"`
	TotalSegments int       `json:"total_segments"`
	ExtractedAt   time.Time `json:"extraction_date"`
}

// Summary returns the listing view of a.
func (a *Analysis) Summary() Summary {
	return Summary{
		VideoID:       a.VideoID,
		Title:         a.Title,
		Duration:      a.Duration,
		TotalSegments: len(a.Segments),
		ExtractedAt:   a.ExtractedAt,
	}
}

// CodeSegmentCount reports how many segments carry extracted code text.
func (a *Analysis) CodeSegmentCount() int {
	n := 0
	for _, s := range a.Segments {
		if s.Kind == KindCode && s.CodeText != "" {
			n++
		}
	}
	return n
}

// SourceURL returns the source URL recorded at download time, or "" if the
// record predates URL tracking.
func (a *Analysis) SourceURL() string {
	if a.Metadata == nil {
		return ""
	}
	u, _ := a.Metadata["url"].(string)
	return u
}
