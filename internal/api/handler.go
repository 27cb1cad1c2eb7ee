// Package api exposes the processing pipeline and account store over an
// HTTP REST surface and an MCP tool surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/1Usman7/Codio-Final-Year-Project/internal/accounts"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/analysis"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/auth"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/media"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/pipeline"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Orchestrator is the pipeline surface the API consumes.
type Orchestrator interface {
	ProcessFull(ctx context.Context, url string, force bool, interval float64) (*analysis.Analysis, error)
	DownloadOnly(ctx context.Context, url string) (pipeline.DownloadSummary, error)
	QueryAt(videoID string, timestamp, tolerance float64) (pipeline.QueryResult, error)
	ListSegments(videoID string) ([]analysis.Segment, error)
	ExportTimeline(videoID string) (string, error)
	Info(ctx context.Context, videoID string) (*analysis.Analysis, error)
	Status(videoID string) pipeline.Status
	Cancel(videoID string)
	AnalyzeFrameAt(ctx context.Context, videoID string, timestamp float64) (pipeline.QueryResult, error)
	DetectConcepts(ctx context.Context, videoID string) ([]analysis.Concept, error)
	List() ([]analysis.Summary, error)
}

// PlaylistFetcher lists the videos of a playlist URL.
type PlaylistFetcher interface {
	FetchPlaylist(ctx context.Context, url string) ([]media.PlaylistEntry, error)
}

type AppDeps struct {
	Orchestrator Orchestrator
	Playlists    PlaylistFetcher
	Accounts     *accounts.Store
	Auth         *auth.Manager
	CacheSize    func() (int64, error)
	Logger       *slog.Logger
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	log := newRequestLog(10)

	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/video/process", handleProcess(deps, log))
		r.Get("/videos", handleListVideos(deps))
		r.Get("/stats", handleStats(deps, log))
		r.Post("/playlist/videos", handlePlaylistVideos(deps))

		r.Route("/video/{videoID}", func(r chi.Router) {
			r.Get("/code", handleCodeAt(deps))
			r.Get("/segments", handleSegments(deps))
			r.Get("/timeline", handleTimeline(deps))
			r.Get("/info", handleInfo(deps))
			r.Get("/status", handleStatus(deps))
			r.Post("/cancel", handleCancel(deps))
			r.Get("/frame", handleFrameAt(deps))
			r.Get("/concepts", handleConcepts(deps))
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(deps))
			r.Post("/login", handleLogin(deps))
			r.Post("/refresh", handleRefresh(deps))
			r.With(deps.Auth.Middleware).Get("/me", handleMe(deps))
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(deps.Auth.Middleware)
			r.Get("/playlists", handleUserPlaylists(deps))
			r.Post("/playlists", handleTrackPlaylist(deps))
			r.Delete("/playlists/{playlistID}", handleUntrackPlaylist(deps))
			r.Get("/progress/{playlistID}", handleGetProgress(deps))
			r.Post("/progress", handleSaveProgress(deps))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, "Endpoint not found")
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "Codio Pause-to-Code API",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
	})
}

type processRequest struct {
	URL            string   `json:"youtube_url"`
	FullProcess    bool     `json:"full_process"`
	ForceReprocess bool     `json:"force_reprocess"`
	Interval       *float64 `json:"interval_seconds,omitempty"`
}

// handleProcess starts video processing. Lazy mode (the default) downloads
// synchronously and returns the summary; full processing is spawned in the
// background and the caller polls /status.
func handleProcess(deps AppDeps, log *requestLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req processRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.URL == "" {
			httpError(w, http.StatusBadRequest, "Missing youtube_url in request body")
			return
		}

		videoID := media.ExtractVideoID(req.URL)
		mode := "lazy"
		if req.FullProcess {
			mode = "full"
		}
		log.record(r.URL.Path, videoID, mode)

		if !req.FullProcess {
			summary, err := deps.Orchestrator.DownloadOnly(r.Context(), req.URL)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "Failed to process video: %v", err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success":  true,
				"video_id": summary.VideoID,
				"status":   summary.Status,
				"title":    summary.Title,
				"duration": summary.Duration,
				"message":  summary.Message,
			})
			return
		}

		interval := 0.0
		if req.Interval != nil {
			interval = *req.Interval
		}
		go func() {
			// Detached from the request context: the job outlives the
			// HTTP round trip and is stopped via /cancel instead.
			_, err := deps.Orchestrator.ProcessFull(context.Background(), req.URL, req.ForceReprocess, interval)
			if err != nil && !errors.Is(err, pipeline.ErrCanceled) {
				deps.Logger.Error("background processing failed", "video_id", videoID, "error", err)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]any{
			"success":  true,
			"video_id": videoID,
			"status":   "processing",
			"message":  "Video processing started",
		})
	}
}

func handleCodeAt(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videoID := chi.URLParam(r, "videoID")

		timestamp, ok := parseFloatParam(r, "timestamp")
		if !ok {
			httpError(w, http.StatusBadRequest, "Missing timestamp parameter")
			return
		}
		tolerance, ok := parseFloatParam(r, "tolerance")
		if !ok {
			tolerance = 2.0
		}

		result, err := deps.Orchestrator.QueryAt(videoID, timestamp, tolerance)
		if errors.Is(err, pipeline.ErrNotProcessed) {
			httpError(w, http.StatusNotFound, "Video not found or not processed")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to query code: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
			pipeline.QueryResult
		}{true, result})
	}
}

func handleSegments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videoID := chi.URLParam(r, "videoID")

		segments, err := deps.Orchestrator.ListSegments(videoID)
		if errors.Is(err, pipeline.ErrNotProcessed) {
			httpError(w, http.StatusNotFound, "Video not found or not processed")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to list segments: %v", err)
			return
		}

		// Optional filters matching the query parameters clients send.
		if kind := r.URL.Query().Get("type"); kind != "" {
			filtered := segments[:0]
			for _, s := range segments {
				if string(s.Kind) == kind {
					filtered = append(filtered, s)
				}
			}
			segments = filtered
		}
		if minConf, ok := parseFloatParam(r, "min_confidence"); ok && minConf > 0 {
			filtered := segments[:0]
			for _, s := range segments {
				if s.Confidence >= minConf {
					filtered = append(filtered, s)
				}
			}
			segments = filtered
		}
		if segments == nil {
			segments = []analysis.Segment{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":        true,
			"video_id":       videoID,
			"total_segments": len(segments),
			"segments":       segments,
		})
	}
}

func handleTimeline(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videoID := chi.URLParam(r, "videoID")

		doc, err := deps.Orchestrator.ExportTimeline(videoID)
		if errors.Is(err, pipeline.ErrNotProcessed) {
			httpError(w, http.StatusNotFound, "Video not found or not processed")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to generate timeline: %v", err)
			return
		}

		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", "code_timeline_"+videoID+".md"))
		w.Write([]byte(doc))
	}
}

func handleInfo(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videoID := chi.URLParam(r, "videoID")

		a, err := deps.Orchestrator.Info(r.Context(), videoID)
		if errors.Is(err, pipeline.ErrNotProcessed) {
			httpError(w, http.StatusNotFound, "Video not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to get video info: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":               true,
			"video_id":              a.VideoID,
			"video_title":           a.Title,
			"duration":              a.Duration,
			"total_segments":        len(a.Segments),
			"total_frames_analyzed": a.FramesAnalyzed,
			"metadata":              a.Metadata,
			"extraction_date":       a.ExtractedAt,
			"has_transcript":        a.Transcript != nil,
			"concepts":              a.Concepts,
		})
	}
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Orchestrator.Status(chi.URLParam(r, "videoID"))
		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
			pipeline.Status
		}{true, st})
	}
}

func handleCancel(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Orchestrator.Cancel(chi.URLParam(r, "videoID"))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Processing cancelled",
		})
	}
}

func handleFrameAt(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videoID := chi.URLParam(r, "videoID")

		timestamp, ok := parseFloatParam(r, "timestamp")
		if !ok {
			httpError(w, http.StatusBadRequest, "Missing timestamp parameter")
			return
		}

		result, err := deps.Orchestrator.AnalyzeFrameAt(r.Context(), videoID, timestamp)
		if errors.Is(err, pipeline.ErrNotProcessed) {
			httpError(w, http.StatusNotFound, "Video not downloaded")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to analyze frame: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
			pipeline.QueryResult
		}{true, result})
	}
}

func handleConcepts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videoID := chi.URLParam(r, "videoID")

		concepts, err := deps.Orchestrator.DetectConcepts(r.Context(), videoID)
		if errors.Is(err, pipeline.ErrNotProcessed) {
			httpError(w, http.StatusNotFound, "Video not found or not processed")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to detect concepts: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"video_id": videoID,
			"concepts": concepts,
		})
	}
}

func handleListVideos(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videos, err := deps.Orchestrator.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to list videos: %v", err)
			return
		}
		if videos == nil {
			videos = []analysis.Summary{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"total_videos": len(videos),
			"videos":       videos,
		})
	}
}

func handleStats(deps AppDeps, log *requestLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videos, err := deps.Orchestrator.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "Failed to read cache: %v", err)
			return
		}

		var sizeMB float64
		if deps.CacheSize != nil {
			if size, err := deps.CacheSize(); err == nil {
				sizeMB = float64(size) / (1 << 20)
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":                true,
			"total_requests":         log.total(),
			"total_videos_processed": len(videos),
			"cache_size_mb":          float64(int(sizeMB*100+0.5)) / 100,
			"recent_requests":        log.recent(),
		})
	}
}

type playlistRequest struct {
	URL string `json:"playlist_url"`
}

func handlePlaylistVideos(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req playlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		if req.URL == "" {
			httpError(w, http.StatusBadRequest, "Missing playlist_url in request body")
			return
		}
		if deps.Playlists == nil {
			httpError(w, http.StatusNotImplemented, "Playlist support is not configured")
			return
		}

		videos, err := deps.Playlists.FetchPlaylist(r.Context(), req.URL)
		if err != nil {
			httpError(w, http.StatusBadGateway, "Failed to fetch playlist: %v", err)
			return
		}
		if videos == nil {
			videos = []media.PlaylistEntry{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"videos":  videos,
		})
	}
}

func parseFloatParam(r *http.Request, key string) (float64, bool) {
	s := strings.TrimSpace(r.URL.Query().Get(key))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
	})
}
