package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go-video-bot/internal/api"
	"go-video-bot/internal/models"
	"go-video-bot/internal/paths"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultDataDir        = "data"
	DefaultDownloadDir    = "downloads"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultLogFileName    = "bot.log"
	DefaultLogApiRequests = false
	DefaultConfigFilePath = "config.toml"
	DefaultEnvFilePath    = ".env"
	DefaultEnvPrefix      = "VIDEOBOT"

	// Download specific defaults
	DefaultConfigDownloadBinaryPath       = "yt-dlp"
	DefaultConfigDownloadMirrorHost       = "ddinstagram.com"
	DefaultConfigDownloadMaxFileSizeMB    = 50
	DefaultConfigDownloadMaxDurationSec   = 1800
	DefaultConfigDownloadSocketTimeoutSec = 30
	DefaultConfigDownloadRetries          = 5
	DefaultConfigDownloadFragmentRetries  = 5
	DefaultConfigDownloadScrapeTimeoutSec = 15
	DefaultConfigDownloadTitleMaxLen      = 50
	DefaultConfigDownloadFilenamePattern  = paths.DefaultPattern

	// Ledger defaults
	LedgerBackendJSON             = "json"
	LedgerBackendSQLite           = "sqlite"
	DefaultConfigLedgerBackend    = LedgerBackendJSON
	DefaultConfigLedgerJSONFile   = "users.json"
	DefaultConfigLedgerSQLiteFile = "users.db"

	// Session defaults
	SessionBackendMemory            = "memory"
	SessionBackendRedis             = "redis"
	DefaultConfigSessionBackend     = SessionBackendMemory
	DefaultConfigSessionRedisAddr   = "localhost:6379"
	DefaultConfigSessionRedisDB     = 0
	DefaultConfigSessionTTLMinutes  = 60
	DefaultConfigSupportLogFileName = "support_messages.html"

	// Janitor defaults
	DefaultConfigJanitorIntervalSec      = 3600
	DefaultConfigJanitorMaxAgeSec        = 3600
	DefaultConfigJanitorFirstRunDelaySec = 10

	// Health defaults
	DefaultConfigHealthPort            = 8080
	DefaultConfigHealthPingIntervalSec = 300

	// Broadcast defaults
	DefaultConfigBroadcastMessagesPerSecond = 20.0
)

var (
	ErrMissingToken   = errors.New("bot token is not configured")
	ErrInvalidSetting = errors.New("invalid configuration value")
)

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("token", "")
	v.SetDefault("adminid", 0)
	v.SetDefault("channelid", "")
	v.SetDefault("datadir", DefaultDataDir)
	v.SetDefault("downloaddir", DefaultDownloadDir)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)
	v.SetDefault("logfile", "")
	v.SetDefault("logapirequests", DefaultLogApiRequests)

	v.SetDefault("download.binarypath", DefaultConfigDownloadBinaryPath)
	v.SetDefault("download.mirrorhost", DefaultConfigDownloadMirrorHost)
	v.SetDefault("download.maxfilesizemb", DefaultConfigDownloadMaxFileSizeMB)
	v.SetDefault("download.maxdurationsec", DefaultConfigDownloadMaxDurationSec)
	v.SetDefault("download.sockettimeoutsec", DefaultConfigDownloadSocketTimeoutSec)
	v.SetDefault("download.retries", DefaultConfigDownloadRetries)
	v.SetDefault("download.fragmentretries", DefaultConfigDownloadFragmentRetries)
	v.SetDefault("download.scrapetimeoutsec", DefaultConfigDownloadScrapeTimeoutSec)
	v.SetDefault("download.titlemaxlen", DefaultConfigDownloadTitleMaxLen)
	v.SetDefault("download.filenamepattern", DefaultConfigDownloadFilenamePattern)

	v.SetDefault("ledger.backend", DefaultConfigLedgerBackend)
	v.SetDefault("ledger.path", "")

	v.SetDefault("session.backend", DefaultConfigSessionBackend)
	v.SetDefault("session.redisaddr", DefaultConfigSessionRedisAddr)
	v.SetDefault("session.redisdb", DefaultConfigSessionRedisDB)
	v.SetDefault("session.ttlminutes", DefaultConfigSessionTTLMinutes)

	v.SetDefault("support.logpath", "")

	v.SetDefault("janitor.intervalsec", DefaultConfigJanitorIntervalSec)
	v.SetDefault("janitor.maxagesec", DefaultConfigJanitorMaxAgeSec)
	v.SetDefault("janitor.firstrundelaysec", DefaultConfigJanitorFirstRunDelaySec)

	v.SetDefault("health.port", DefaultConfigHealthPort)
	v.SetDefault("health.pingurl", "")
	v.SetDefault("health.pingintervalsec", DefaultConfigHealthPingIntervalSec)

	v.SetDefault("broadcast.messagespersecond", DefaultConfigBroadcastMessagesPerSecond)
}

// bindLegacyEnv lets the unprefixed variables of existing deployments keep
// working next to the VIDEOBOT_ prefixed ones. The prefixed name wins.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"token":          {"TOKEN", "BOT_TOKEN"},
		"adminid":        {"ADMIN_ID"},
		"channelid":      {"CHANNEL_ID"},
		"health.port":    {"PORT"},
		"health.pingurl": {"RENDER_EXTERNAL_URL", "PING_URL"},
	}
	for key, legacy := range bindings {
		prefixed := DefaultEnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		args := append([]string{key, prefixed}, legacy...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// CliFlags holds pointers to values received from command-line flags.
// Nil fields indicate the flag was not provided by the user.
type CliFlags struct {
	ConfigFilePath *string
	EnvFilePath    *string
	LogLevel       *string // --log-level
	LogFormat      *string // --log-format
	LogFile        *string // --log-file
	LogApiRequests *bool   // --log-api
	DataDir        *string // --data-dir
	DownloadDir    *string // --download-dir
	Token          *string // --token
	LedgerBackend  *string // --ledger
	SessionBackend *string // --session
	Port           *int    // --port
}

// Initialize loads configuration based on defaults, .env, config file,
// environment and flags.
// Precedence: Flags > Environment > Config File > Defaults.
func Initialize(flags CliFlags) (models.Config, http.RoundTripper, error) {
	envFile := DefaultEnvFilePath
	if flags.EnvFilePath != nil {
		envFile = *flags.EnvFilePath
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Debugf("[Initialize] No env file at '%s'", envFile)
			} else {
				log.WithError(err).Warnf("[Initialize] Failed to load env file '%s'", envFile)
			}
		} else {
			log.Debugf("[Initialize] Loaded env file: %s", envFile)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(DefaultEnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setViperDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return models.Config{}, nil, err
	}

	actualConfigFilePath := DefaultConfigFilePath
	if flags.ConfigFilePath != nil {
		actualConfigFilePath = *flags.ConfigFilePath
		log.Debugf("[Initialize] Using config file path from CLI flag: %s", actualConfigFilePath)
	} else {
		log.Debugf("[Initialize] Using default config file path: %s", actualConfigFilePath)
	}
	v.SetConfigFile(actualConfigFilePath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			log.Debugf("[Initialize] Config file '%s' not found. Using defaults, environment and CLI flags only.", actualConfigFilePath)
		} else {
			log.Warnf("[Initialize] Error reading config file '%s': %v. Using defaults, environment and CLI flags only.", actualConfigFilePath, err)
		}
	} else {
		log.Infof("[Initialize] Successfully read config file: %s", v.ConfigFileUsed())
	}

	var finalCfg models.Config
	if err := v.Unmarshal(&finalCfg); err != nil {
		log.Errorf("[Initialize] Failed to unmarshal config from Viper: %v", err)
		return models.Config{}, nil, fmt.Errorf("failed to unmarshal config from viper: %w", err)
	}

	// --- Override with CLI Flags ---
	if flags.Token != nil {
		log.Debugf("[Initialize] Overriding Token from flag.")
		finalCfg.Token = *flags.Token
	}
	if flags.DataDir != nil {
		log.Debugf("[Initialize] Overriding DataDir from flag: '%s'", *flags.DataDir)
		finalCfg.DataDir = *flags.DataDir
	}
	if flags.DownloadDir != nil {
		log.Debugf("[Initialize] Overriding DownloadDir from flag: '%s'", *flags.DownloadDir)
		finalCfg.DownloadDir = *flags.DownloadDir
	}
	if flags.LogApiRequests != nil {
		log.Debugf("[Initialize] Overriding LogApiRequests from flag: %v", *flags.LogApiRequests)
		finalCfg.LogApiRequests = *flags.LogApiRequests
	}
	if flags.LogLevel != nil {
		log.Debugf("[Initialize] Overriding LogLevel from flag: '%s'", *flags.LogLevel)
		finalCfg.LogLevel = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		log.Debugf("[Initialize] Overriding LogFormat from flag: '%s'", *flags.LogFormat)
		finalCfg.LogFormat = *flags.LogFormat
	}
	if flags.LogFile != nil {
		log.Debugf("[Initialize] Overriding LogFile from flag: '%s'", *flags.LogFile)
		finalCfg.LogFile = *flags.LogFile
	}
	if flags.LedgerBackend != nil {
		finalCfg.Ledger.Backend = *flags.LedgerBackend
	}
	if flags.SessionBackend != nil {
		finalCfg.Session.Backend = *flags.SessionBackend
	}
	if flags.Port != nil {
		finalCfg.Health.Port = *flags.Port
	}

	finalCfg.Ledger.Backend = strings.ToLower(strings.TrimSpace(finalCfg.Ledger.Backend))
	finalCfg.Session.Backend = strings.ToLower(strings.TrimSpace(finalCfg.Session.Backend))

	deriveDefaultPaths(&finalCfg)

	if err := Validate(finalCfg); err != nil {
		return models.Config{}, nil, err
	}

	// --- Setup HTTP Transport ---
	baseTransport := http.DefaultTransport
	var finalTransport http.RoundTripper = baseTransport

	if finalCfg.LogApiRequests {
		logFilePath := "api.log"
		if finalCfg.DataDir != "" {
			if _, statErr := os.Stat(finalCfg.DataDir); statErr == nil {
				logFilePath = filepath.Join(finalCfg.DataDir, logFilePath)
			} else {
				log.Warnf("DataDir '%s' not found, saving api.log to current directory.", finalCfg.DataDir)
			}
		}
		log.Infof("HTTP request logging to file: %s", logFilePath)

		loggingTransport, err := api.NewLoggingTransport(baseTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize HTTP logging transport, logging disabled.")
		} else {
			finalTransport = loggingTransport
		}
	}

	log.Debug("Configuration initialized successfully.")
	return finalCfg, finalTransport, nil
}

// deriveDefaultPaths places files that were not configured explicitly under DataDir.
func deriveDefaultPaths(cfg *models.Config) {
	if cfg.Ledger.Path == "" {
		name := DefaultConfigLedgerJSONFile
		if cfg.Ledger.Backend == LedgerBackendSQLite {
			name = DefaultConfigLedgerSQLiteFile
		}
		cfg.Ledger.Path = filepath.Join(cfg.DataDir, name)
		log.Debugf("[Config Init] Ledger.Path defaulted based on DataDir: %s", cfg.Ledger.Path)
	}
	if cfg.Support.LogPath == "" {
		cfg.Support.LogPath = filepath.Join(cfg.DataDir, DefaultConfigSupportLogFileName)
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, DefaultLogFileName)
	}
	if cfg.Health.PingURL == "" && cfg.Health.Port > 0 {
		cfg.Health.PingURL = fmt.Sprintf("http://localhost:%d/", cfg.Health.Port)
	}
}

// Validate rejects configurations the bot cannot run with.
// The token is checked separately by RequireToken since offline commands do not need it.
func Validate(cfg models.Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("%w: DataDir cannot be empty", ErrInvalidSetting)
	}
	if cfg.DownloadDir == "" {
		return fmt.Errorf("%w: DownloadDir cannot be empty", ErrInvalidSetting)
	}
	if cfg.Download.MaxFileSizeMB <= 0 {
		return fmt.Errorf("%w: Download.MaxFileSizeMB must be positive, got %d", ErrInvalidSetting, cfg.Download.MaxFileSizeMB)
	}
	if cfg.Download.MaxDurationSec <= 0 {
		return fmt.Errorf("%w: Download.MaxDurationSec must be positive, got %d", ErrInvalidSetting, cfg.Download.MaxDurationSec)
	}
	if cfg.Download.TitleMaxLen <= 0 {
		return fmt.Errorf("%w: Download.TitleMaxLen must be positive, got %d", ErrInvalidSetting, cfg.Download.TitleMaxLen)
	}
	if cfg.Download.BinaryPath == "" {
		return fmt.Errorf("%w: Download.BinaryPath cannot be empty", ErrInvalidSetting)
	}
	if _, err := paths.GeneratePath(cfg.Download.FilenamePattern, nil); err != nil {
		return fmt.Errorf("%w: Download.FilenamePattern: %v", ErrInvalidSetting, err)
	}
	switch cfg.Ledger.Backend {
	case LedgerBackendJSON, LedgerBackendSQLite:
	default:
		return fmt.Errorf("%w: unknown Ledger.Backend '%s'", ErrInvalidSetting, cfg.Ledger.Backend)
	}
	switch cfg.Session.Backend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("%w: unknown Session.Backend '%s'", ErrInvalidSetting, cfg.Session.Backend)
	}
	if cfg.Session.TTLMinutes <= 0 {
		return fmt.Errorf("%w: Session.TTLMinutes must be positive, got %d", ErrInvalidSetting, cfg.Session.TTLMinutes)
	}
	if cfg.Janitor.IntervalSec <= 0 || cfg.Janitor.MaxAgeSec <= 0 {
		return fmt.Errorf("%w: Janitor intervals must be positive", ErrInvalidSetting)
	}
	if cfg.Broadcast.MessagesPerSecond <= 0 {
		return fmt.Errorf("%w: Broadcast.MessagesPerSecond must be positive", ErrInvalidSetting)
	}
	return nil
}

// RequireToken fails when the bot cannot authenticate against the chat API.
func RequireToken(cfg models.Config) error {
	if strings.TrimSpace(cfg.Token) == "" {
		return fmt.Errorf("%w: set TOKEN, VIDEOBOT_TOKEN, --token or Token in the config file", ErrMissingToken)
	}
	return nil
}
