package media

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/1Usman7/Codio-Final-Year-Project/internal/analysis"
)

// FetchCaptions retrieves the video's captions (uploaded or auto-generated)
// as ordered transcript entries. A video without captions returns (nil, nil):
// absence is a normal outcome, not an error.
func (r *Retriever) FetchCaptions(ctx context.Context, url string) ([]analysis.TranscriptEntry, error) {
	tmpDir, err := os.MkdirTemp("", "codio-captions-*")
	if err != nil {
		return nil, fmt.Errorf("creating caption scratch dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	_, err = r.run.Output(ctx, r.binary,
		"--skip-download",
		"--write-subs", "--write-auto-subs",
		"--sub-langs", "en.*,en",
		"--sub-format", "json3",
		"--no-playlist",
		"-o", filepath.Join(tmpDir, "captions"),
		url,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching captions for %s: %v", ErrRetrieval, url, err)
	}

	matches, err := filepath.Glob(filepath.Join(tmpDir, "captions*.json3"))
	if err != nil || len(matches) == 0 {
		return nil, nil
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("reading caption file: %w", err)
	}
	return parseJSON3Captions(data)
}

// json3Doc mirrors YouTube's json3 timedtext format.
type json3Doc struct {
	Events []struct {
		StartMs    int64 `json:"tStartMs"`
		DurationMs int64 `json:"dDurationMs"`
		Segs       []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

func parseJSON3Captions(data []byte) ([]analysis.TranscriptEntry, error) {
	var doc json3Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing json3 captions: %w", err)
	}

	var entries []analysis.TranscriptEntry
	for _, ev := range doc.Events {
		var sb strings.Builder
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}
		text := strings.TrimSpace(sb.String())
		if text == "" {
			continue
		}
		entries = append(entries, analysis.TranscriptEntry{
			Timestamp: float64(ev.StartMs) / 1000,
			Text:      text,
			Duration:  float64(ev.DurationMs) / 1000,
		})
	}
	return entries, nil
}

func scanLines(rd io.Reader, onLine func(string)) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		onLine(sc.Text())
	}
}
