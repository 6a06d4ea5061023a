package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-video-bot/internal/api"
	"go-video-bot/internal/bot"
	"go-video-bot/internal/config"
	"go-video-bot/internal/database"
	"go-video-bot/internal/downloader"
	"go-video-bot/internal/extractor"
	"go-video-bot/internal/health"
	"go-video-bot/internal/helpers"
	"go-video-bot/internal/models"
	"go-video-bot/internal/scrape"
	"go-video-bot/internal/session"
	"go-video-bot/internal/storage"
	"go-video-bot/internal/supportlog"
	"go-video-bot/internal/telegram"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var errUpdatesClosed = errors.New("update stream closed unexpectedly")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot",
	Long: `Connects to the Bot API, starts long polling and serves the health
endpoint until interrupted. The download directory janitor and the
self-ping heartbeat run alongside.`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// newOrchestrator wires the extractor and the mirror fallback the way both
// the bot and the fetch command use them.
func newOrchestrator(cfg models.Config, transport http.RoundTripper) *downloader.Orchestrator {
	opts := downloader.OptionsFromConfig(cfg)
	opts.UserAgent = extractor.DefaultUserAgent

	scrapeTimeout := time.Duration(cfg.Download.ScrapeTimeoutSec) * time.Second
	mirror := scrape.NewInstagramMirror(
		cfg.Download.MirrorHost,
		api.NewHTTPClient(transport, scrapeTimeout),
		scrapeTimeout,
	)
	return downloader.New(opts, extractor.NewYtDlp(cfg.Download.BinaryPath), mirror)
}

// prepareDirs creates the data and download directories.
func prepareDirs(cfg models.Config) error {
	for _, dir := range []string{cfg.DataDir, cfg.DownloadDir} {
		if !helpers.CheckAndMakeDir(dir) {
			return fmt.Errorf("failed to create directory %s", dir)
		}
	}
	return nil
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	if err := config.RequireToken(cfg); err != nil {
		return err
	}
	if err := prepareDirs(cfg); err != nil {
		return err
	}
	defer api.CloseAllLoggingTransports()

	ledger, err := database.Open(cfg.Ledger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			log.WithError(err).Warn("[Run] Failed to close ledger")
		}
	}()

	sessions, err := session.Open(cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			log.WithError(err).Warn("[Run] Failed to close session store")
		}
	}()

	client, err := telegram.New(cfg.Token, "", api.NewHTTPClient(globalHttpTransport, telegram.ClientTimeout))
	if err != nil {
		return err
	}

	janitor := storage.JanitorFromConfig(cfg)
	b := bot.New(cfg, bot.Deps{
		Messenger:  client,
		Ledger:     ledger,
		Sessions:   sessions,
		Downloader: newOrchestrator(cfg, globalHttpTransport),
		Support:    supportlog.New(cfg.Support.LogPath),
		Janitor:    janitor,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.Run(gctx, client.Updates(gctx)); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errUpdatesClosed
		}
		return nil
	})
	g.Go(func() error { return janitor.Run(gctx) })
	if cfg.Health.Port > 0 {
		g.Go(func() error { return health.NewServer(cfg.Health.Port).Run(gctx) })
	}
	g.Go(func() error {
		hb := health.NewHeartbeat(
			api.NewHTTPClient(globalHttpTransport, 10*time.Second),
			cfg.Health.PingURL,
			time.Duration(cfg.Health.PingIntervalSec)*time.Second,
		)
		return hb.Run(gctx)
	})

	log.Info("[Run] Bot started")
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("[Run] Stopped with error")
		return err
	}
	log.Info("[Run] Shut down cleanly")
	return nil
}
