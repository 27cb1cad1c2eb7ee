// Package frames samples still frames out of a local media file using
// ffprobe/ffmpeg subprocesses. Bulk sampling decodes the file once and emits
// every Nth frame as JPEG; SampleAt performs a single random-access seek for
// on-demand queries.
package frames

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

var (
	// ErrMediaUnreadable is returned when the media file cannot be opened
	// or probed at all.
	ErrMediaUnreadable = errors.New("media unreadable")
	// ErrTimestampOutOfRange is returned by SampleAt when the requested
	// timestamp exceeds the media duration.
	ErrTimestampOutOfRange = errors.New("timestamp beyond media duration")
	// ErrFrameRead is returned by SampleAt when the seek succeeds but no
	// frame can be decoded.
	ErrFrameRead = errors.New("frame decode failed")
)

// Sample is one decoded frame with its position in the source.
type Sample struct {
	JPEG      []byte
	Timestamp float64
	Index     int // source frame number in decode order
}

// Info describes a probed media file.
type Info struct {
	FPS         float64
	TotalFrames int
	Duration    float64
}

// Sampler extracts frames from media files. The zero value is not usable;
// construct with NewSampler.
type Sampler struct {
	ffmpeg  string
	ffprobe string
}

// NewSampler returns a Sampler using ffmpeg/ffprobe from PATH.
func NewSampler() *Sampler {
	return &Sampler{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
}

// Probe reads frame rate, frame count, and duration from the media file.
func (s *Sampler) Probe(ctx context.Context, path string) (Info, error) {
	if _, err := os.Stat(path); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrMediaUnreadable, err)
	}

	cmd := exec.CommandContext(ctx, s.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate,nb_frames,duration",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("%w: probing %s: %v", ErrMediaUnreadable, path, err)
	}
	return parseProbeOutput(out)
}

type probeOutput struct {
	Streams []struct {
		AvgFrameRate string `json:"avg_frame_rate"`
		NBFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbeOutput(data []byte) (Info, error) {
	var po probeOutput
	if err := json.Unmarshal(data, &po); err != nil {
		return Info{}, fmt.Errorf("%w: parsing probe output: %v", ErrMediaUnreadable, err)
	}
	if len(po.Streams) == 0 {
		return Info{}, fmt.Errorf("%w: no video stream", ErrMediaUnreadable)
	}
	st := po.Streams[0]

	fps, err := parseRate(st.AvgFrameRate)
	if err != nil || fps <= 0 {
		return Info{}, fmt.Errorf("%w: invalid frame rate %q", ErrMediaUnreadable, st.AvgFrameRate)
	}

	info := Info{FPS: fps}
	if d, err := strconv.ParseFloat(st.Duration, 64); err == nil && d > 0 {
		info.Duration = d
	} else if d, err := strconv.ParseFloat(po.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	if n, err := strconv.Atoi(st.NBFrames); err == nil && n > 0 {
		info.TotalFrames = n
	} else {
		// Some containers omit nb_frames; derive it from duration.
		info.TotalFrames = int(info.Duration * fps)
	}
	if info.Duration == 0 && info.TotalFrames > 0 {
		info.Duration = float64(info.TotalFrames) / fps
	}
	return info, nil
}

// parseRate parses an ffprobe rational like "30000/1001" or "25".
func parseRate(s string) (float64, error) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, err
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil {
			return 0, err
		}
		if d == 0 {
			return 0, fmt.Errorf("zero denominator in rate %q", s)
		}
		return n / d, nil
	}
	return strconv.ParseFloat(s, 64)
}

// plan computes how many source frames sit between samples and how many
// samples a full decode will produce.
func plan(info Info, intervalSeconds float64) (intervalFrames, total int) {
	intervalFrames = int(math.Round(info.FPS * intervalSeconds))
	if intervalFrames < 1 {
		intervalFrames = 1
	}
	total = info.TotalFrames / intervalFrames
	return intervalFrames, total
}

// Stream is a single-pass sequence of samples spaced at a fixed interval.
// It is finite and not restartable; decoding is sequential.
type Stream struct {
	cmd            *exec.Cmd
	stdout         io.ReadCloser
	br             *bufio.Reader
	fps            float64
	intervalFrames int
	total          int
	emitted        int
	done           bool
}

// Open probes the media file and starts a sequential decode that emits every
// intervalFrames-th frame. The caller must Close the stream.
func (s *Sampler) Open(ctx context.Context, path string, intervalSeconds float64) (*Stream, error) {
	info, err := s.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	intervalFrames, total := plan(info, intervalSeconds)

	cmd := exec.CommandContext(ctx, s.ffmpeg,
		"-v", "error",
		"-i", path,
		"-vf", fmt.Sprintf(`select=not(mod(n\,%d))`, intervalFrames),
		"-vsync", "vfr",
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "2",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUnreadable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting ffmpeg: %v", ErrMediaUnreadable, err)
	}

	return &Stream{
		cmd:            cmd,
		stdout:         stdout,
		br:             bufio.NewReaderSize(stdout, 1<<20),
		fps:            info.FPS,
		intervalFrames: intervalFrames,
		total:          total,
	}, nil
}

// Total reports how many samples a complete decode will yield. The stream may
// end early if decoding fails partway; the partial sequence is still valid.
func (st *Stream) Total() int { return st.total }

// Next returns the next sample, or io.EOF when the decode ends.
func (st *Stream) Next() (Sample, error) {
	if st.done || st.emitted >= st.total {
		st.done = true
		return Sample{}, io.EOF
	}
	jpeg, err := readJPEG(st.br)
	if err != nil {
		st.done = true
		return Sample{}, io.EOF
	}
	frameNumber := st.emitted * st.intervalFrames
	s := Sample{
		JPEG:      jpeg,
		Timestamp: float64(frameNumber) / st.fps,
		Index:     frameNumber,
	}
	st.emitted++
	return s, nil
}

// Close releases the underlying decoder process.
func (st *Stream) Close() error {
	st.stdout.Close()
	// ffmpeg exits nonzero when its output pipe closes early; that is fine.
	st.cmd.Wait()
	return nil
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// readJPEG reads one JPEG image from a concatenated MJPEG byte stream,
// delimited by the SOI/EOI markers.
func readJPEG(br *bufio.Reader) ([]byte, error) {
	// Seek start-of-image.
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != 0xFF {
			continue
		}
		nxt, err := br.Peek(1)
		if err != nil {
			return nil, err
		}
		if nxt[0] == 0xD8 {
			br.Discard(1)
			break
		}
	}

	buf := bytes.NewBuffer(nil)
	buf.Write(jpegSOI)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(b)
		if b == 0xFF {
			nxt, err := br.Peek(1)
			if err != nil {
				return nil, err
			}
			if nxt[0] == 0xD9 {
				br.Discard(1)
				buf.Write(jpegEOI[1:])
				return buf.Bytes(), nil
			}
		}
	}
}

// SampleAt seeks to the given timestamp and decodes a single frame.
func (s *Sampler) SampleAt(ctx context.Context, path string, timestamp float64) ([]byte, error) {
	info, err := s.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	if timestamp < 0 || timestamp > info.Duration {
		return nil, fmt.Errorf("%w: %.2fs exceeds duration %.2fs", ErrTimestampOutOfRange, timestamp, info.Duration)
	}

	cmd := exec.CommandContext(ctx, s.ffmpeg,
		"-v", "error",
		"-ss", strconv.FormatFloat(timestamp, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "2",
		"pipe:1",
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: seeking to %.2fs: %v", ErrFrameRead, timestamp, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty decode at %.2fs", ErrFrameRead, timestamp)
	}
	return out, nil
}
