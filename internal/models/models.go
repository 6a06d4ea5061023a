package models

import (
	"strings"
	"time"
)

type (
	// Config holds the application's configuration settings.
	Config struct {
		Token          string          `toml:"Token" json:"Token"`
		AdminID        int64           `toml:"AdminID" json:"AdminID"`
		ChannelID      string          `toml:"ChannelID" json:"ChannelID"`
		DataDir        string          `toml:"DataDir" json:"DataDir"`
		DownloadDir    string          `toml:"DownloadDir" json:"DownloadDir"`
		LogLevel       string          `toml:"LogLevel" json:"LogLevel"`
		LogFormat      string          `toml:"LogFormat" json:"LogFormat"`
		LogFile        string          `toml:"LogFile" json:"LogFile"`
		Download       DownloadConfig  `toml:"Download" json:"Download"`
		Ledger         LedgerConfig    `toml:"Ledger" json:"Ledger"`
		Session        SessionConfig   `toml:"Session" json:"Session"`
		Support        SupportConfig   `toml:"Support" json:"Support"`
		Janitor        JanitorConfig   `toml:"Janitor" json:"Janitor"`
		Health         HealthConfig    `toml:"Health" json:"Health"`
		Broadcast      BroadcastConfig `toml:"Broadcast" json:"Broadcast"`
		LogApiRequests bool            `toml:"LogApiRequests" json:"LogApiRequests"`
	}

	// DownloadConfig holds the extractor limits and options.
	DownloadConfig struct {
		BinaryPath       string `toml:"BinaryPath"`
		MirrorHost       string `toml:"MirrorHost"`
		FilenamePattern  string `toml:"FilenamePattern"`
		MaxFileSizeMB    int    `toml:"MaxFileSizeMB"`
		MaxDurationSec   int    `toml:"MaxDurationSec"`
		SocketTimeoutSec int    `toml:"SocketTimeoutSec"`
		Retries          int    `toml:"Retries"`
		FragmentRetries  int    `toml:"FragmentRetries"`
		ScrapeTimeoutSec int    `toml:"ScrapeTimeoutSec"`
		TitleMaxLen      int    `toml:"TitleMaxLen"`
	}

	LedgerConfig struct {
		Backend string `toml:"Backend"` // "json" or "sqlite"
		Path    string `toml:"Path"`
	}

	SessionConfig struct {
		Backend    string `toml:"Backend"` // "memory" or "redis"
		RedisAddr  string `toml:"RedisAddr"`
		RedisDB    int    `toml:"RedisDB"`
		TTLMinutes int    `toml:"TTLMinutes"`
	}

	SupportConfig struct {
		LogPath string `toml:"LogPath"`
	}

	JanitorConfig struct {
		IntervalSec      int `toml:"IntervalSec"`
		MaxAgeSec        int `toml:"MaxAgeSec"`
		FirstRunDelaySec int `toml:"FirstRunDelaySec"`
	}

	HealthConfig struct {
		PingURL         string `toml:"PingURL"`
		Port            int    `toml:"Port"`
		PingIntervalSec int    `toml:"PingIntervalSec"`
	}

	BroadcastConfig struct {
		MessagesPerSecond float64 `toml:"MessagesPerSecond"`
	}
)

// placeholderChannel is the value shipped in sample configs; it means "no channel".
const placeholderChannel = "@your_channel_username"

// ChannelConfigured reports whether downloads should also be copied to a channel.
func (c Config) ChannelConfigured() bool {
	id := strings.TrimSpace(c.ChannelID)
	return id != "" && id != placeholderChannel
}

// IsAdmin reports whether userID is the configured operator.
func (c Config) IsAdmin(userID int64) bool {
	return c.AdminID != 0 && c.AdminID == userID
}

func (d DownloadConfig) MaxFileSizeBytes() int64 {
	return int64(d.MaxFileSizeMB) * 1024 * 1024
}

func (d DownloadConfig) MaxDuration() time.Duration {
	return time.Duration(d.MaxDurationSec) * time.Second
}

func (s SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLMinutes) * time.Minute
}

// Platform identifies the hosting site a URL belongs to.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformTwitter   Platform = "twitter"
	PlatformFacebook  Platform = "facebook"
	PlatformUnknown   Platform = "unknown"
)

// QualityTier is the user-selected resolution ceiling.
type QualityTier string

const (
	QualityBest   QualityTier = "best"
	QualityMedium QualityTier = "medium"
	QualityLow    QualityTier = "low"
)

// QualityTiers lists the tiers in the order they are offered to users.
var QualityTiers = []QualityTier{QualityBest, QualityMedium, QualityLow}

// ParseQualityTier maps a string to a known tier.
func ParseQualityTier(s string) (QualityTier, bool) {
	switch QualityTier(strings.ToLower(strings.TrimSpace(s))) {
	case QualityBest:
		return QualityBest, true
	case QualityMedium:
		return QualityMedium, true
	case QualityLow:
		return QualityLow, true
	}
	return QualityBest, false
}

// ReasonCode classifies a failed request.
type ReasonCode string

const (
	ReasonDurationExceeded     ReasonCode = "DurationExceeded"
	ReasonEmptyFile            ReasonCode = "EmptyFile"
	ReasonTooLarge             ReasonCode = "TooLarge"
	ReasonFileNotFound         ReasonCode = "FileNotFound"
	ReasonTransferFailed       ReasonCode = "TransferFailed"
	ReasonMetadataUnresolvable ReasonCode = "MetadataUnresolvable"
	ReasonLinkExpired          ReasonCode = "LinkExpired"
	ReasonUploadFailed         ReasonCode = "UploadFailed"
	ReasonBroadcastFailed      ReasonCode = "BroadcastFailed"
)

// DownloadRequest is a single user-initiated fetch.
type DownloadRequest struct {
	URL       string
	Platform  Platform
	Quality   QualityTier
	RequestID string
}

// DownloadSuccess describes a file on local disk ready for delivery.
// The receiver of a successful result owns FilePath and must remove it.
type DownloadSuccess struct {
	FilePath        string
	Title           string
	PlatformLabel   string
	UploaderLabel   string
	DurationSeconds int
	SizeBytes       int64
}

// SizeMB returns the file size in mebibytes.
func (s DownloadSuccess) SizeMB() float64 {
	return float64(s.SizeBytes) / (1024 * 1024)
}

type DownloadFailure struct {
	Reason  ReasonCode
	Message string
}

// DownloadResult carries exactly one of Success or Failure.
type DownloadResult struct {
	Success *DownloadSuccess
	Failure *DownloadFailure
}

func Succeeded(s DownloadSuccess) DownloadResult {
	return DownloadResult{Success: &s}
}

func Failed(reason ReasonCode, message string) DownloadResult {
	return DownloadResult{Failure: &DownloadFailure{Reason: reason, Message: message}}
}

func (r DownloadResult) OK() bool {
	return r.Success != nil && r.Failure == nil
}

// Reason returns the failure reason, or an empty code on success.
func (r DownloadResult) Reason() ReasonCode {
	if r.Failure == nil {
		return ""
	}
	return r.Failure.Reason
}

// UserRecord is one entry in the usage ledger. Records are never deleted
// and their counters only grow.
type UserRecord struct {
	Joined      time.Time
	LastActive  time.Time
	FirstName   string
	Username    string
	ID          int64
	Seq         int64
	Downloads   int
	TotalSizeMB float64
}

// Stats aggregates the whole ledger.
type Stats struct {
	TotalUsers     int
	TotalDownloads int
	TotalSizeMB    float64
}

// Requester identifies who asked for a download and where to reply.
type Requester struct {
	ChatID    int64
	UserID    int64
	FirstName string
	Username  string
}
