package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/1Usman7/Codio-Final-Year-Project/internal/accounts"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/api"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/auth"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/cache"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/config"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/frames"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/media"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/oracle"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/pipeline"
	"github.com/1Usman7/Codio-Final-Year-Project/internal/progress"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the codio server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running codio server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show codio system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "codio.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "codio version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:   logLevel,
		NoColor: noColor,
	})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("codio is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("codio is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open stores.
	analysisCache, err := cache.Open(filepath.Join(cfg.Storage.DataDir, "analysis"))
	if err != nil {
		return fmt.Errorf("opening analysis cache: %w", err)
	}
	accountStore, err := accounts.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening account store: %w", err)
	}
	defer func() {
		if err := accountStore.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing account store: %v\n", err)
		}
	}()

	// Build the processing pipeline.
	retriever, err := media.NewRetriever(filepath.Join(cfg.Storage.DataDir, "videos"))
	if err != nil {
		return fmt.Errorf("creating media retriever: %w", err)
	}
	svc := pipeline.NewService(pipeline.Components{
		Cache:     analysisCache,
		Media:     retriever,
		Frames:    pipeline.NewFrameSource(frames.NewSampler()),
		Oracle:    oracle.New(cfg.Oracle.APIKey, cfg.Oracle.BaseURL, cfg.Oracle.Model),
		Progress:  progress.NewTracker(),
		Interval:  cfg.Pipeline.IntervalSeconds,
		KeepMedia: cfg.Pipeline.KeepMedia,
		Logger:    slog.Default(),
	})

	tokens := auth.NewManager(
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.AccessTokenMinutes)*time.Minute,
		time.Duration(cfg.Auth.RefreshTokenDays)*24*time.Hour,
	)

	handler := api.NewAppHandler(api.AppDeps{
		Orchestrator: svc,
		Playlists:    retriever,
		Accounts:     accountStore,
		Auth:         tokens,
		CacheSize:    analysisCache.Size,
		Logger:       slog.Default(),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start MCP server on its own port (SSE transport).
	mcpSrv := api.NewMCPServer(api.MCPDeps{Orchestrator: svc})
	sseSrv := server.NewSSEServer(mcpSrv)
	go func() {
		mcpAddr := fmt.Sprintf(":%d", cfg.Server.MCPPort)
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := sseSrv.Start(mcpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("MCP server error", "error", err)
		}
	}()

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "codio listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sseSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("MCP server shutdown", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("codio is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop codio (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to codio (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Oracle model", "%s", cfg.Oracle.Model)
	printStatus("Sampling interval", "%.1fs", cfg.Pipeline.IntervalSeconds)

	if running {
		statsResp, err := client.Get(serverURL + "/api/v1/stats")
		if err == nil {
			var stats struct {
				TotalVideos float64 `json:"total_videos_processed"`
				CacheSizeMB float64 `json:"cache_size_mb"`
			}
			if json.NewDecoder(statsResp.Body).Decode(&stats) == nil {
				printStatus("Videos processed", "%d", int(stats.TotalVideos))
				printStatus("Cache size", "%.2f MB", stats.CacheSizeMB)
			}
			statsResp.Body.Close()
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
