package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/1Usman7/Codio-Final-Year-Project/internal/config"
)

var ctx = context.Background()

// --- process ---

var processCmd = &cobra.Command{
	Use:   "process <youtube-url>",
	Short: "Download and analyze a tutorial video",
	Long: `Download and analyze a tutorial video.

By default the video is only downloaded and frame analysis is deferred
until the first query. With --full the whole pipeline runs up front and
progress can be followed with "codio progress <video-id>".

Examples:
  codio process https://www.youtube.com/watch?v=dQw4w9WgXcQ
  codio process --full --interval 1.5 https://youtu.be/dQw4w9WgXcQ`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")
		force, _ := cmd.Flags().GetBool("force")
		interval, _ := cmd.Flags().GetFloat64("interval")

		req := map[string]any{
			"youtube_url":     args[0],
			"full_process":    full,
			"force_reprocess": force,
		}
		if interval > 0 {
			req["interval_seconds"] = interval
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(ctx, "/api/v1/video/process", req)
		if err != nil {
			return err
		}

		var result struct {
			VideoID string `json:"video_id"`
			Status  string `json:"status"`
			Title   string `json:"title"`
			Message string `json:"message"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if full {
			printSuccess("Processing started for %s", result.VideoID)
			printStep("Follow with: codio progress %s", result.VideoID)
			return nil
		}
		if result.Title != "" {
			printSuccess("%s (%s): %s", result.VideoID, result.Title, result.Message)
		} else {
			printSuccess("%s: %s", result.VideoID, result.Message)
		}
		return nil
	},
}

func init() {
	processCmd.Flags().Bool("full", false, "run full frame analysis now instead of on demand")
	processCmd.Flags().Bool("force", false, "reprocess even if a cached analysis exists")
	processCmd.Flags().Float64("interval", 0, "frame sampling interval in seconds")
}

// --- code ---

var codeCmd = &cobra.Command{
	Use:   "code <video-id> <timestamp>",
	Short: "Show the code on screen at a timestamp",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		timestamp, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q", args[1])
		}
		tolerance, _ := cmd.Flags().GetFloat64("tolerance")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("timestamp", strconv.FormatFloat(timestamp, 'f', -1, 64))
		q.Set("tolerance", strconv.FormatFloat(tolerance, 'f', -1, 64))
		resp, err := client.get(ctx, "/api/v1/video/"+url.PathEscape(args[0])+"/code?"+q.Encode())
		if err != nil {
			return err
		}

		var result struct {
			Found       bool    `json:"found"`
			Timestamp   float64 `json:"timestamp"`
			SegmentType string  `json:"segment_type"`
			Code        string  `json:"code"`
			Language    string  `json:"language"`
			Topic       string  `json:"learning_topic"`
			Message     string  `json:"message"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Found {
			fmt.Println(result.Message)
			return nil
		}

		label := fmt.Sprintf("%.1fs", result.Timestamp)
		if result.SegmentType == "code" {
			fmt.Printf("%s %s\n\n%s\n", colorize(colorBold, label), result.Language, result.Code)
			return nil
		}
		fmt.Printf("%s no code on screen — topic: %s\n", colorize(colorBold, label), result.Topic)
		return nil
	},
}

func init() {
	codeCmd.Flags().Float64("tolerance", 2.0, "maximum distance to the nearest analyzed frame, in seconds")
}

// --- videos ---

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "List analyzed videos",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(ctx, "/api/v1/videos")
		if err != nil {
			return err
		}

		var result struct {
			Videos []struct {
				VideoID       string  `json:"video_id"`
				Title         string  `json:"video_title"`
				Duration      float64 `json:"duration"`
				TotalSegments int     `json:"total_segments"`
			} `json:"videos"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Videos) == 0 {
			fmt.Println("No videos analyzed yet.")
			return nil
		}

		for _, v := range result.Videos {
			title := v.Title
			if len(title) > 60 {
				title = title[:60] + "..."
			}
			fmt.Printf("%s  %6.0fs  %4d segments  %s\n",
				colorize(colorCyan, v.VideoID), v.Duration, v.TotalSegments, title)
		}
		return nil
	},
}

// --- progress ---

var progressCmd = &cobra.Command{
	Use:   "progress <video-id>",
	Short: "Show processing progress for a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		for {
			resp, err := client.get(ctx, "/api/v1/video/"+url.PathEscape(args[0])+"/status")
			if err != nil {
				return err
			}

			var st struct {
				Status   string `json:"status"`
				Progress int    `json:"progress"`
				Stage    string `json:"stage"`
			}
			if err := decodeJSON(resp, &st); err != nil {
				return err
			}

			fmt.Printf("%s %3d%%  %s\n", colorize(colorBold, st.Status), st.Progress, st.Stage)

			if !follow || st.Status == "completed" || st.Status == "failed" || st.Status == "not_found" {
				return nil
			}
			time.Sleep(2 * time.Second)
		}
	},
}

func init() {
	progressCmd.Flags().Bool("follow", false, "poll until processing finishes")
}

// --- cancel ---

var cancelCmd = &cobra.Command{
	Use:   "cancel <video-id>",
	Short: "Cancel in-flight processing of a video",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(ctx, "/api/v1/video/"+url.PathEscape(args[0])+"/cancel", nil)
		if err != nil {
			return err
		}

		var result struct {
			Message string `json:"message"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("%s", result.Message)
		return nil
	},
}

// --- timeline ---

var timelineCmd = &cobra.Command{
	Use:   "timeline <video-id>",
	Short: "Export a video's code timeline as markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(ctx, "/api/v1/video/"+url.PathEscape(args[0])+"/timeline")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}

		writer := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}
		if _, err := writer.ReadFrom(resp.Body); err != nil {
			return err
		}

		if output != "" {
			printSuccess("Timeline exported to %s", output)
		}
		return nil
	},
}

func init() {
	timelineCmd.Flags().String("output", "", "output file path (default: stdout)")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
