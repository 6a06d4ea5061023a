package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go-video-bot/internal/config"
	"go-video-bot/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Flag values. Only flags the user actually set are passed on to config.Initialize.
var (
	cfgFile            string
	envFile            string
	logLevel           string
	logFormat          string
	logFile            string
	logApiFlag         bool
	dataDirFlag        string
	downloadDirFlag    string
	tokenFlag          string
	ledgerBackendFlag  string
	sessionBackendFlag string
	portFlag           int
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

// logFileHandle is the open log file, if any, closed by closeLogFile.
var logFileHandle *os.File

var rootCmd = &cobra.Command{
	Use:   "video-bot",
	Short: "A chat bot that downloads videos from social platforms",
	Long: `Video Bot receives links over Telegram, downloads the video
with yt-dlp in the quality the user picks and sends it back.`,
	PersistentPreRunE:  loadGlobalConfig,
	PersistentPostRunE: closeLogFile,
	SilenceUsage:       true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", config.DefaultConfigFilePath, "Configuration file path")
	pf.StringVar(&envFile, "env-file", config.DefaultEnvFilePath, "Dotenv file loaded before the environment is read (empty disables)")
	pf.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Logging level (trace, debug, info, warn, error, fatal, panic)")
	pf.StringVar(&logFormat, "log-format", config.DefaultLogFormat, "Logging format (text, json)")
	pf.StringVar(&logFile, "log-file", "", "Also write logs to this file (overrides config)")
	pf.BoolVar(&logApiFlag, "log-api", false, "Log outgoing HTTP requests/responses to api.log (overrides config)")
	pf.StringVar(&dataDirFlag, "data-dir", "", "Directory for the ledger, support log and exports (overrides config)")
	pf.StringVar(&downloadDirFlag, "download-dir", "", "Directory for in-flight downloads (overrides config)")
	pf.StringVar(&tokenFlag, "token", "", "Bot API token (overrides config and environment)")
	pf.StringVar(&ledgerBackendFlag, "ledger", "", "Ledger backend: json or sqlite (overrides config)")
	pf.StringVar(&sessionBackendFlag, "session", "", "Session backend: memory or redis (overrides config)")
	pf.IntVar(&portFlag, "port", 0, "Health server port (overrides config)")
}

// collectFlags builds config.CliFlags from the flags that were changed on cmd.
func collectFlags(cmd *cobra.Command) config.CliFlags {
	var flags config.CliFlags
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("config") {
		flags.ConfigFilePath = &cfgFile
	}
	if changed("env-file") {
		flags.EnvFilePath = &envFile
	}
	if changed("log-level") {
		flags.LogLevel = &logLevel
	}
	if changed("log-format") {
		flags.LogFormat = &logFormat
	}
	if changed("log-file") {
		flags.LogFile = &logFile
	}
	if changed("log-api") {
		flags.LogApiRequests = &logApiFlag
	}
	if changed("data-dir") {
		flags.DataDir = &dataDirFlag
	}
	if changed("download-dir") {
		flags.DownloadDir = &downloadDirFlag
	}
	if changed("token") {
		flags.Token = &tokenFlag
	}
	if changed("ledger") {
		flags.LedgerBackend = &ledgerBackendFlag
	}
	if changed("session") {
		flags.SessionBackend = &sessionBackendFlag
	}
	if changed("port") {
		flags.Port = &portFlag
	}
	return flags
}

// loadGlobalConfig loads the configuration with flag overrides and sets up
// logging before any command runs.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	// Level from the flag applies to config loading itself.
	if lvl, err := log.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	}

	cfg, transport, err := config.Initialize(collectFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	globalConfig = cfg
	globalHttpTransport = transport

	return setupLogging(cfg)
}

// setupLogging applies level, format and file output from cfg.
func setupLogging(cfg models.Config) error {
	lvl, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Invalid log level '%s', using info", cfg.LogLevel)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)

	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if cfg.LogFile == "" {
		log.SetOutput(os.Stderr)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o750); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	// #nosec G304
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", cfg.LogFile, err)
	}
	logFileHandle = f
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

func closeLogFile(cmd *cobra.Command, args []string) error {
	if logFileHandle == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFileHandle.Close()
	logFileHandle = nil
	return err
}
