package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/1Usman7/Codio-Final-Year-Project/internal/analysis"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/pipeline"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_GetCodeAtTimestamp(t *testing.T) {
	orch := newMockOrchestrator()
	orch.queryResult = pipeline.QueryResult{
		Found:       true,
		VideoID:     "abc123xyz00",
		Timestamp:   10,
		SegmentType: "code",
		Code:        "x := 1",
		Language:    "go",
	}
	handler := mcpCodeAtTimestamp(MCPDeps{Orchestrator: orch})

	req := makeCallToolRequest("get_code_at_timestamp", map[string]interface{}{
		"video_id":  "abc123xyz00",
		"timestamp": 10.5,
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var got pipeline.QueryResult
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !got.Found || got.Code != "x := 1" {
		t.Errorf("result = %+v, want found with code", got)
	}
}

func TestMCPTool_GetCodeAtTimestamp_MissingArgs(t *testing.T) {
	handler := mcpCodeAtTimestamp(MCPDeps{Orchestrator: newMockOrchestrator()})

	req := makeCallToolRequest("get_code_at_timestamp", map[string]interface{}{
		"video_id": "abc123xyz00",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing timestamp")
	}
}

func TestMCPTool_GetCodeAtTimestamp_NotProcessed(t *testing.T) {
	orch := newMockOrchestrator()
	orch.queryErr = pipeline.ErrNotProcessed
	handler := mcpCodeAtTimestamp(MCPDeps{Orchestrator: orch})

	req := makeCallToolRequest("get_code_at_timestamp", map[string]interface{}{
		"video_id":  "unknown",
		"timestamp": 5.0,
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unprocessed video")
	}
}

func TestMCPTool_VideoStatus(t *testing.T) {
	orch := newMockOrchestrator()
	orch.status = pipeline.Status{Status: "analyzing_frames", Percent: 40, Stage: "Analyzing frame 8/20"}
	handler := mcpVideoStatus(MCPDeps{Orchestrator: orch})

	req := makeCallToolRequest("video_status", map[string]interface{}{
		"video_id": "abc123xyz00",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got pipeline.Status
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if got.VideoID != "abc123xyz00" || got.Percent != 40 {
		t.Errorf("status = %+v, want video id and 40%%", got)
	}
}

func TestMCPTool_ListVideos_Empty(t *testing.T) {
	handler := mcpListVideos(MCPDeps{Orchestrator: newMockOrchestrator()})

	result, err := handler(context.Background(), makeCallToolRequest("list_videos", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("text = %q, want []", got)
	}
}

func TestMCPTool_GetSegments_TypeFilter(t *testing.T) {
	orch := newMockOrchestrator()
	orch.analysis = &analysis.Analysis{
		VideoID: "abc123xyz00",
		Segments: []analysis.Segment{
			{Timestamp: 0, Kind: analysis.KindLearning, TopicText: "intro"},
			{Timestamp: 2, Kind: analysis.KindCode, CodeText: "x = 1"},
		},
	}
	handler := mcpSegments(MCPDeps{Orchestrator: orch})

	req := makeCallToolRequest("get_segments", map[string]interface{}{
		"video_id": "abc123xyz00",
		"type":     "code",
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []analysis.Segment
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(got) != 1 || got[0].Kind != analysis.KindCode {
		t.Errorf("segments = %+v, want one code segment", got)
	}
}

func TestMCPResource_Videos(t *testing.T) {
	orch := newMockOrchestrator()
	orch.videos = []analysis.Summary{
		{VideoID: "abc123xyz00", Title: "Intro to Go", TotalSegments: 12},
	}
	handler := mcpResourceVideos(MCPDeps{Orchestrator: orch})

	contents, err := handler(context.Background(), makeReadResourceRequest("codio://videos"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents length = %d, want 1", len(contents))
	}
	tc := contents[0].(mcp.TextResourceContents)

	var got []analysis.Summary
	if err := json.Unmarshal([]byte(tc.Text), &got); err != nil {
		t.Fatalf("failed to parse resource: %v", err)
	}
	if len(got) != 1 || got[0].VideoID != "abc123xyz00" {
		t.Errorf("videos = %+v, want one entry", got)
	}
}
