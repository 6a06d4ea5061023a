package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"go-video-bot/internal/helpers"
	"go-video-bot/internal/models"
	"go-video-bot/internal/platform"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	fetchQualityFlag   string
	fetchOutputDirFlag string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download a single video locally",
	Long: `Runs the same download pipeline the bot uses, without the chat side.
The file is kept in the download directory (or --output-dir).`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVarP(&fetchQualityFlag, "quality", "q", string(models.QualityBest), "Quality tier (best, medium, low)")
	fetchCmd.Flags().StringVarP(&fetchOutputDirFlag, "output-dir", "o", "", "Directory to save the video (overrides the download directory)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	tier, ok := models.ParseQualityTier(fetchQualityFlag)
	if !ok {
		return fmt.Errorf("unknown quality %q", fetchQualityFlag)
	}
	cfg := globalConfig
	if fetchOutputDirFlag != "" {
		cfg.DownloadDir = fetchOutputDirFlag
	}
	if !helpers.CheckAndMakeDir(cfg.DownloadDir) {
		return fmt.Errorf("failed to create directory %s", cfg.DownloadDir)
	}

	req := platform.NewRequest(args[0], tier)
	log.Debugf("[Fetch] %s (%s) as %s", req.URL, req.Platform, req.RequestID)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	orchestrator := newOrchestrator(cfg, globalHttpTransport)
	done := make(chan models.DownloadResult, 1)
	go func() { done <- orchestrator.Download(ctx, req.URL, tier) }()

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	started := time.Now()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var result models.DownloadResult
	for waiting := true; waiting; {
		select {
		case result = <-done:
			waiting = false
		case <-ticker.C:
			fmt.Fprintf(writer, "Downloading %s [%s] ... %s\n", platform.Label(req.Platform), tier, time.Since(started).Truncate(time.Second))
		}
	}

	if !result.OK() {
		fmt.Fprintf(writer, "Failed after %s\n", time.Since(started).Truncate(time.Second))
		_ = writer.Flush()
		reason := result.Reason()
		msg := ""
		if result.Failure != nil {
			msg = result.Failure.Message
		}
		return fmt.Errorf("download failed (%s): %s", reason, msg)
	}

	s := result.Success
	fmt.Fprintf(writer, "Done in %s\n", time.Since(started).Truncate(time.Second))
	_, _ = fmt.Fprintf(writer.Newline(), "Title:    %s\n", s.Title)
	_, _ = fmt.Fprintf(writer.Newline(), "Uploader: %s\n", s.UploaderLabel)
	_, _ = fmt.Fprintf(writer.Newline(), "Duration: %s\n", helpers.FormatDuration(s.DurationSeconds))
	_, _ = fmt.Fprintf(writer.Newline(), "Size:     %s\n", helpers.BytesToSize(uint64(s.SizeBytes)))
	_, _ = fmt.Fprintf(writer.Newline(), "Saved to: %s\n", s.FilePath)
	return nil
}
