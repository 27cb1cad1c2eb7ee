package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/1Usman7/Codio-Final-Year-Project/internal/analysis"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/pipeline"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Orchestrator Orchestrator
}

// NewMCPServer creates an MCP server exposing the pause-to-code tools so
// agent clients can query analyzed videos without going through HTTP.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"codio",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("codio — pause-to-code analysis of programming tutorial videos."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_code_at_timestamp",
			mcp.WithDescription("Return the code visible on screen at a timestamp of an analyzed video."),
			mcp.WithString("video_id", mcp.Description("YouTube video ID"), mcp.Required()),
			mcp.WithNumber("timestamp", mcp.Description("Position in the video, in seconds"), mcp.Required()),
			mcp.WithNumber("tolerance", mcp.Description("Maximum distance to the nearest analyzed frame, in seconds (default 2.0)")),
		),
		mcpCodeAtTimestamp(deps),
	)

	s.AddTool(
		mcp.NewTool("video_status",
			mcp.WithDescription("Report the processing status of a video: not_found, processing stages, or completed."),
			mcp.WithString("video_id", mcp.Description("YouTube video ID"), mcp.Required()),
		),
		mcpVideoStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("list_videos",
			mcp.WithDescription("List all analyzed videos with their titles and segment counts."),
		),
		mcpListVideos(deps),
	)

	s.AddTool(
		mcp.NewTool("get_segments",
			mcp.WithDescription("Return the analyzed segments of a video, optionally filtered by type."),
			mcp.WithString("video_id", mcp.Description("YouTube video ID"), mcp.Required()),
			mcp.WithString("type", mcp.Description("Filter by segment type: code or learning")),
		),
		mcpSegments(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"codio://videos",
			"Analyzed Videos",
			mcp.WithResourceDescription("All analyzed videos as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceVideos(deps),
	)

	return s
}

func mcpCodeAtTimestamp(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videoID, err := req.RequireString("video_id")
		if err != nil {
			return mcpError("video_id is required"), nil
		}
		timestamp, err := req.RequireFloat("timestamp")
		if err != nil {
			return mcpError("timestamp is required"), nil
		}
		tolerance := req.GetFloat("tolerance", 2.0)

		result, err := deps.Orchestrator.QueryAt(videoID, timestamp, tolerance)
		if errors.Is(err, pipeline.ErrNotProcessed) {
			return mcpError(fmt.Sprintf("video %s has not been processed", videoID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpVideoStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videoID, err := req.RequireString("video_id")
		if err != nil {
			return mcpError("video_id is required"), nil
		}

		st := deps.Orchestrator.Status(videoID)
		b, err := json.Marshal(st)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListVideos(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videos, err := deps.Orchestrator.List()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list videos: %v", err)), nil
		}
		if len(videos) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(videos)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal videos: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSegments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videoID, err := req.RequireString("video_id")
		if err != nil {
			return mcpError("video_id is required"), nil
		}
		kind := req.GetString("type", "")

		segments, err := deps.Orchestrator.ListSegments(videoID)
		if errors.Is(err, pipeline.ErrNotProcessed) {
			return mcpError(fmt.Sprintf("video %s has not been processed", videoID)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list segments: %v", err)), nil
		}

		if kind != "" {
			filtered := segments[:0]
			for _, s := range segments {
				if string(s.Kind) == kind {
					filtered = append(filtered, s)
				}
			}
			segments = filtered
		}
		if segments == nil {
			segments = []analysis.Segment{}
		}

		b, err := json.Marshal(segments)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal segments: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceVideos(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		videos, err := deps.Orchestrator.List()
		if err != nil {
			return nil, fmt.Errorf("failed to list videos: %w", err)
		}
		if videos == nil {
			videos = []analysis.Summary{}
		}

		b, err := json.Marshal(videos)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal videos: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
