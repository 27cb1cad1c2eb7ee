package pipeline

import (
	"context"
	"errors"
	"io"

	"github.com/1Usman7/Codio-Final-Year-Project/internal/analysis"
)

// assembleSegments drains the frame stream, classifies each frame, and
// returns one Segment per sampled frame in timestamp order. Oracle failures
// never abort the run: the failed frame becomes a low-confidence learning
// segment so the timeline stays dense. Only cancellation (the job vanishing
// from the tracker) stops assembly early.
func (s *Service) assembleSegments(ctx context.Context, videoID string, stream FrameStream) ([]analysis.Segment, error) {
	total := stream.Total()
	segments := make([]analysis.Segment, 0, total)

	for {
		if !s.progress.Active(videoID) {
			return nil, ErrCanceled
		}

		sample, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return segments, nil
		}
		if err != nil {
			s.progress.Fail(videoID)
			return nil, err
		}

		s.progress.Analyzing(videoID, len(segments)+1, total)

		seg := analysis.Segment{
			Timestamp:  sample.Timestamp,
			FrameIndex: sample.Index,
		}
		j, err := s.oracle.ClassifyFrame(ctx, sample.JPEG, sample.Timestamp)
		if err != nil {
			s.logger.Warn("frame classification failed",
				"video_id", videoID, "frame", sample.Index, "error", err)
			seg.Kind = analysis.KindLearning
			seg.TopicText = "analysis failed"
			seg.Confidence = 0
		} else {
			seg.Kind = analysis.SegmentKind(j.SegmentType)
			seg.CodeText = j.CodeContent
			seg.TopicText = j.LearningTopic
			seg.Confidence = j.Confidence
			seg.Language = j.Language
			seg.IsComplete = j.CodeComplete
		}
		segments = append(segments, seg)
	}
}
