package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/1Usman7/Codio-Final-Year-Project/internal/accounts"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/analysis"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/auth"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/media"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/pipeline"
)

// --- mocks ---

type mockOrchestrator struct {
	mu sync.Mutex

	analysis     *analysis.Analysis
	queryResult  pipeline.QueryResult
	queryErr     error
	summary      pipeline.DownloadSummary
	downloadErr  error
	status       pipeline.Status
	concepts     []analysis.Concept
	conceptsErr  error
	timeline     string
	timelineErr  error
	videos       []analysis.Summary
	listErr      error
	processErr   error
	processCalls chan string
	cancelled    []string
}

func newMockOrchestrator() *mockOrchestrator {
	return &mockOrchestrator{processCalls: make(chan string, 8)}
}

func (m *mockOrchestrator) ProcessFull(_ context.Context, url string, _ bool, _ float64) (*analysis.Analysis, error) {
	m.processCalls <- url
	return m.analysis, m.processErr
}

func (m *mockOrchestrator) DownloadOnly(_ context.Context, _ string) (pipeline.DownloadSummary, error) {
	return m.summary, m.downloadErr
}

func (m *mockOrchestrator) QueryAt(_ string, _, _ float64) (pipeline.QueryResult, error) {
	return m.queryResult, m.queryErr
}

func (m *mockOrchestrator) ListSegments(_ string) ([]analysis.Segment, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if m.analysis == nil {
		return nil, pipeline.ErrNotProcessed
	}
	return m.analysis.Segments, nil
}

func (m *mockOrchestrator) ExportTimeline(_ string) (string, error) {
	return m.timeline, m.timelineErr
}

func (m *mockOrchestrator) Info(_ context.Context, _ string) (*analysis.Analysis, error) {
	if m.analysis == nil {
		return nil, pipeline.ErrNotProcessed
	}
	return m.analysis, nil
}

func (m *mockOrchestrator) Status(videoID string) pipeline.Status {
	st := m.status
	st.VideoID = videoID
	return st
}

func (m *mockOrchestrator) Cancel(videoID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, videoID)
}

func (m *mockOrchestrator) AnalyzeFrameAt(_ context.Context, _ string, _ float64) (pipeline.QueryResult, error) {
	return m.queryResult, m.queryErr
}

func (m *mockOrchestrator) DetectConcepts(_ context.Context, _ string) ([]analysis.Concept, error) {
	return m.concepts, m.conceptsErr
}

func (m *mockOrchestrator) List() ([]analysis.Summary, error) {
	return m.videos, m.listErr
}

type mockPlaylists struct {
	entries []media.PlaylistEntry
	err     error
}

func (m *mockPlaylists) FetchPlaylist(_ context.Context, _ string) ([]media.PlaylistEntry, error) {
	return m.entries, m.err
}

// --- helpers ---

func setupHandler(t *testing.T, orch *mockOrchestrator) http.Handler {
	t.Helper()
	h, _ := setupHandlerWithAccounts(t, orch)
	return h
}

func setupHandlerWithAccounts(t *testing.T, orch *mockOrchestrator) (http.Handler, *accounts.Store) {
	t.Helper()
	store, err := accounts.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	handler := NewAppHandler(AppDeps{
		Orchestrator: orch,
		Playlists:    &mockPlaylists{},
		Accounts:     store,
		Auth:         auth.NewManager("test-secret", 0, 0),
	})
	return handler, store
}

func jsonReq(method, url, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

// --- tests ---

func TestHealth(t *testing.T) {
	h := setupHandler(t, newMockOrchestrator())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/health", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeBody(t, rr)
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
}

func TestProcessLazyMode(t *testing.T) {
	orch := newMockOrchestrator()
	orch.summary = pipeline.DownloadSummary{
		VideoID:  "abc123xyz00",
		Status:   "downloaded",
		Title:    "Intro to Go",
		Duration: 120,
		Message:  "Video downloaded",
	}
	h := setupHandler(t, orch)

	body := `{"youtube_url":"https://www.youtube.com/watch?v=abc123xyz00"}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/v1/video/process", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if resp["video_id"] != "abc123xyz00" {
		t.Errorf("video_id = %v, want abc123xyz00", resp["video_id"])
	}
	if resp["title"] != "Intro to Go" {
		t.Errorf("title = %v, want Intro to Go", resp["title"])
	}
	select {
	case url := <-orch.processCalls:
		t.Fatalf("lazy mode triggered full processing of %s", url)
	default:
	}
}

func TestProcessFullModeIsAsync(t *testing.T) {
	orch := newMockOrchestrator()
	h := setupHandler(t, orch)

	body := `{"youtube_url":"https://www.youtube.com/watch?v=abc123xyz00","full_process":true}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/v1/video/process", body))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusAccepted, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if resp["status"] != "processing" {
		t.Errorf("status = %v, want processing", resp["status"])
	}

	select {
	case url := <-orch.processCalls:
		if !strings.Contains(url, "abc123xyz00") {
			t.Errorf("processed url = %q, want it to contain the video id", url)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("background processing never started")
	}
}

func TestProcessMissingURL(t *testing.T) {
	h := setupHandler(t, newMockOrchestrator())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/v1/video/process", `{}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	resp := decodeBody(t, rr)
	if resp["success"] != false {
		t.Errorf("success = %v, want false", resp["success"])
	}
}

func TestCodeAtFound(t *testing.T) {
	orch := newMockOrchestrator()
	orch.queryResult = pipeline.QueryResult{
		Found:       true,
		VideoID:     "abc123xyz00",
		Timestamp:   10,
		SegmentType: "code",
		Code:        "print(1)",
		Language:    "python",
		IsComplete:  true,
		Confidence:  0.9,
	}
	h := setupHandler(t, orch)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/api/v1/video/abc123xyz00/code?timestamp=10.5", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if resp["success"] != true {
		t.Errorf("success = %v, want true", resp["success"])
	}
	if resp["code"] != "print(1)" {
		t.Errorf("code = %v, want print(1)", resp["code"])
	}
}

func TestCodeAtMissingTimestamp(t *testing.T) {
	h := setupHandler(t, newMockOrchestrator())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/api/v1/video/abc123xyz00/code", ""))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCodeAtNotProcessed(t *testing.T) {
	orch := newMockOrchestrator()
	orch.queryErr = pipeline.ErrNotProcessed
	h := setupHandler(t, orch)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/api/v1/video/unknown/code?timestamp=5", ""))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestSegmentsTypeFilter(t *testing.T) {
	orch := newMockOrchestrator()
	orch.analysis = &analysis.Analysis{
		VideoID: "abc123xyz00",
		Segments: []analysis.Segment{
			{Timestamp: 0, Kind: analysis.KindLearning, TopicText: "intro", Confidence: 0.9},
			{Timestamp: 2, Kind: analysis.KindCode, CodeText: "x = 1", Confidence: 0.95},
			{Timestamp: 4, Kind: analysis.KindCode, CodeText: "y = 2", Confidence: 0.4},
		},
	}
	h := setupHandler(t, orch)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/api/v1/video/abc123xyz00/segments?type=code&min_confidence=0.9", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if got := resp["total_segments"].(float64); got != 1 {
		t.Errorf("total_segments = %v, want 1", got)
	}
}

func TestTimelineDownload(t *testing.T) {
	orch := newMockOrchestrator()
	orch.timeline = "# Intro to Go\n\n## 00:02\n```go\nx := 1\n```\n"
	h := setupHandler(t, orch)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/api/v1/video/abc123xyz00/timeline", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Content-Type = %q, want text/markdown", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "code_timeline_abc123xyz00.md") {
		t.Errorf("Content-Disposition = %q, want the timeline filename", cd)
	}
	if !strings.Contains(rr.Body.String(), "## 00:02") {
		t.Errorf("body missing timeline content: %s", rr.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	orch := newMockOrchestrator()
	orch.status = pipeline.Status{Status: "analyzing_frames", Percent: 40, Stage: "Analyzing frame 8/20", CurrentFrame: 8, TotalFrames: 20}
	h := setupHandler(t, orch)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/api/v1/video/abc123xyz00/status", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeBody(t, rr)
	if resp["status"] != "analyzing_frames" {
		t.Errorf("status = %v, want analyzing_frames", resp["status"])
	}
	if resp["progress"].(float64) != 40 {
		t.Errorf("progress = %v, want 40", resp["progress"])
	}
}

func TestCancelEndpoint(t *testing.T) {
	orch := newMockOrchestrator()
	h := setupHandler(t, orch)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/v1/video/abc123xyz00/cancel", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	orch.mu.Lock()
	defer orch.mu.Unlock()
	if len(orch.cancelled) != 1 || orch.cancelled[0] != "abc123xyz00" {
		t.Errorf("cancelled = %v, want [abc123xyz00]", orch.cancelled)
	}
}

func TestStatsCountsRequests(t *testing.T) {
	orch := newMockOrchestrator()
	orch.summary = pipeline.DownloadSummary{VideoID: "abc123xyz00", Status: "downloaded"}
	h := setupHandler(t, orch)

	body := `{"youtube_url":"https://www.youtube.com/watch?v=abc123xyz00"}`
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, jsonReq(http.MethodPost, "/api/v1/video/process", body))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/api/v1/stats", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeBody(t, rr)
	if got := resp["total_requests"].(float64); got != 3 {
		t.Errorf("total_requests = %v, want 3", got)
	}
	recent := resp["recent_requests"].([]any)
	if len(recent) != 3 {
		t.Errorf("recent_requests length = %d, want 3", len(recent))
	}
}

func TestNotFoundShape(t *testing.T) {
	h := setupHandler(t, newMockOrchestrator())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodGet, "/api/v1/nonexistent", ""))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	resp := decodeBody(t, rr)
	if resp["success"] != false {
		t.Errorf("success = %v, want false", resp["success"])
	}
	if resp["error"] != "Endpoint not found" {
		t.Errorf("error = %v, want Endpoint not found", resp["error"])
	}
}
