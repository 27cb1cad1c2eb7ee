package frames

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

func TestParseProbeOutput(t *testing.T) {
	data := []byte(`{
		"streams": [{"avg_frame_rate": "30000/1001", "nb_frames": "3600", "duration": "120.120000"}],
		"format": {"duration": "120.153000"}
	}`)

	info, err := parseProbeOutput(data)
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if math.Abs(info.FPS-29.97) > 0.001 {
		t.Errorf("FPS = %v, want ~29.97", info.FPS)
	}
	if info.TotalFrames != 3600 {
		t.Errorf("TotalFrames = %d, want 3600", info.TotalFrames)
	}
	if math.Abs(info.Duration-120.12) > 0.001 {
		t.Errorf("Duration = %v, want 120.12", info.Duration)
	}
}

func TestParseProbeOutputMissingFrameCount(t *testing.T) {
	// Some containers (webm) omit nb_frames and stream duration.
	data := []byte(`{
		"streams": [{"avg_frame_rate": "25/1"}],
		"format": {"duration": "40.0"}
	}`)

	info, err := parseProbeOutput(data)
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if info.TotalFrames != 1000 {
		t.Errorf("TotalFrames = %d, want 1000 (derived from duration)", info.TotalFrames)
	}
}

func TestParseProbeOutputNoVideoStream(t *testing.T) {
	_, err := parseProbeOutput([]byte(`{"streams": [], "format": {}}`))
	if !errors.Is(err, ErrMediaUnreadable) {
		t.Errorf("err = %v, want ErrMediaUnreadable", err)
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"30000/1001", 29.97002997002997, false},
		{"25/1", 25, false},
		{"24", 24, false},
		{"0/0", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := parseRate(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseRate(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseRate(%q): %v", tt.in, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("parseRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name               string
		info               Info
		interval           float64
		wantIntervalFrames int
		wantTotal          int
	}{
		{"40s at 25fps every 2s", Info{FPS: 25, TotalFrames: 1000, Duration: 40}, 2.0, 50, 20},
		{"ntsc rounding", Info{FPS: 29.97, TotalFrames: 3600, Duration: 120.12}, 2.0, 60, 60},
		{"interval shorter than one frame", Info{FPS: 25, TotalFrames: 100, Duration: 4}, 0.01, 1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intervalFrames, total := plan(tt.info, tt.interval)
			if intervalFrames != tt.wantIntervalFrames {
				t.Errorf("intervalFrames = %d, want %d", intervalFrames, tt.wantIntervalFrames)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
		})
	}
}

// Samples at fps=25, interval=2s must land exactly on 0, 2, 4, ... since the
// query layer matches timestamps by distance.
func TestSampleTimestampSpacing(t *testing.T) {
	info := Info{FPS: 25, TotalFrames: 1000, Duration: 40}
	intervalFrames, total := plan(info, 2.0)

	prev := -1.0
	for i := 0; i < total; i++ {
		ts := float64(i*intervalFrames) / info.FPS
		if want := float64(i) * 2.0; math.Abs(ts-want) > 1e-9 {
			t.Fatalf("sample %d timestamp = %v, want %v", i, ts, want)
		}
		if ts <= prev {
			t.Fatalf("timestamps not strictly increasing at sample %d", i)
		}
		prev = ts
	}
}

func fakeJPEG(payload byte) []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, payload, 0x00, 0xFF, 0xD9}
}

func TestReadJPEGSplitsConcatenatedStream(t *testing.T) {
	var stream bytes.Buffer
	want := [][]byte{fakeJPEG(0x01), fakeJPEG(0x02), fakeJPEG(0x03)}
	for _, img := range want {
		stream.Write(img)
	}

	br := bufio.NewReader(&stream)
	for i, w := range want {
		got, err := readJPEG(br)
		if err != nil {
			t.Fatalf("readJPEG #%d: %v", i, err)
		}
		if !bytes.Equal(got, w) {
			t.Errorf("readJPEG #%d = %x, want %x", i, got, w)
		}
	}

	if _, err := readJPEG(br); err != io.EOF {
		t.Errorf("readJPEG after end = %v, want io.EOF", err)
	}
}

func TestReadJPEGTruncatedStream(t *testing.T) {
	// EOI marker missing: the partial image is dropped, not returned.
	truncated := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02, 0x03}
	br := bufio.NewReader(bytes.NewReader(truncated))
	if _, err := readJPEG(br); err == nil {
		t.Error("expected error for truncated stream")
	}
}
