package downloader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go-video-bot/internal/extractor"
	"go-video-bot/internal/helpers"
	"go-video-bot/internal/messages"
	"go-video-bot/internal/models"
	"go-video-bot/internal/paths"
	"go-video-bot/internal/platform"
	"go-video-bot/internal/scrape"

	log "github.com/sirupsen/logrus"
)

// Format selectors per quality tier, in extractor syntax.
const (
	FormatBest   = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"
	FormatMedium = "bestvideo[height<=720][ext=mp4]+bestaudio[ext=m4a]/best[height<=720][ext=mp4]/best[height<=720]"
	FormatLow    = "bestvideo[height<=480][ext=mp4]+bestaudio[ext=m4a]/best[height<=480][ext=mp4]/best[height<=480]"

	// retryFormat is used when the first transfer produced an empty payload.
	retryFormat = "best"
)

var (
	ErrNoOutputFile  = errors.New("no output file after transfer")
	ErrEmptyDownload = errors.New("downloaded file is empty")
	ErrFileSystem    = errors.New("filesystem error")
)

// FormatSelector maps a tier to its format selector. Unknown tiers get best.
func FormatSelector(tier models.QualityTier) string {
	switch tier {
	case models.QualityMedium:
		return FormatMedium
	case models.QualityLow:
		return FormatLow
	default:
		return FormatBest
	}
}

// MetadataFallback is a replaceable strategy tried when the extractor
// cannot resolve a URL directly.
type MetadataFallback interface {
	Applies(p models.Platform) bool
	Resolve(ctx context.Context, rawURL string, resolve scrape.ResolveFunc) (*extractor.Info, string, error)
}

// Options are the immutable limits an Orchestrator runs with.
type Options struct {
	DownloadDir      string
	FilenamePattern  string
	UserAgent        string
	MaxFileSizeBytes int64
	MaxDuration      time.Duration
	SocketTimeout    time.Duration
	Retries          int
	FragmentRetries  int
	TitleMaxLen      int
}

// OptionsFromConfig derives orchestrator options from the loaded config.
func OptionsFromConfig(cfg models.Config) Options {
	return Options{
		DownloadDir:      cfg.DownloadDir,
		FilenamePattern:  cfg.Download.FilenamePattern,
		MaxFileSizeBytes: cfg.Download.MaxFileSizeBytes(),
		MaxDuration:      cfg.Download.MaxDuration(),
		SocketTimeout:    time.Duration(cfg.Download.SocketTimeoutSec) * time.Second,
		Retries:          cfg.Download.Retries,
		FragmentRetries:  cfg.Download.FragmentRetries,
		TitleMaxLen:      cfg.Download.TitleMaxLen,
	}
}

// Orchestrator turns a URL and quality tier into a local file or a
// classified failure. It never returns an error: every problem becomes a
// models.DownloadFailure.
type Orchestrator struct {
	extractor extractor.Extractor
	fallbacks []MetadataFallback
	now       func() time.Time
	opts      Options
}

func New(opts Options, ext extractor.Extractor, fallbacks ...MetadataFallback) *Orchestrator {
	if opts.TitleMaxLen <= 0 {
		opts.TitleMaxLen = 50
	}
	if opts.FilenamePattern == "" {
		opts.FilenamePattern = paths.DefaultPattern
	}
	return &Orchestrator{
		extractor: ext,
		fallbacks: fallbacks,
		now:       time.Now,
		opts:      opts,
	}
}

func (o *Orchestrator) extractorOptions(format, outputTemplate string) extractor.Options {
	return extractor.Options{
		Format:          format,
		OutputTemplate:  outputTemplate,
		UserAgent:       o.opts.UserAgent,
		SocketTimeout:   o.opts.SocketTimeout,
		Retries:         o.opts.Retries,
		FragmentRetries: o.opts.FragmentRetries,
	}
}

// Download fetches rawURL at the requested tier.
func (o *Orchestrator) Download(ctx context.Context, rawURL string, tier models.QualityTier) models.DownloadResult {
	p, label := platform.Classify(rawURL)
	format := FormatSelector(tier)
	prefix, err := paths.GeneratePath(o.opts.FilenamePattern, map[string]string{
		"videoId":   platform.VideoID(rawURL, p),
		"timestamp": strconv.FormatInt(o.now().UnixNano(), 10),
		"platform":  string(p),
		"quality":   string(tier),
		"requestId": platform.RequestID(rawURL),
	})
	if err != nil {
		log.WithError(err).Error("[Orchestrator] Invalid filename pattern")
		return models.Failed(models.ReasonTransferFailed, messages.GenericError(err))
	}
	template := filepath.Join(o.opts.DownloadDir, prefix+".%(ext)s")
	logger := log.WithFields(log.Fields{"platform": p, "quality": tier, "prefix": prefix})

	if err := os.MkdirAll(o.opts.DownloadDir, 0o755); err != nil {
		logger.WithError(err).Error("[Orchestrator] Cannot create download directory")
		return models.Failed(models.ReasonTransferFailed, messages.GenericError(fmt.Errorf("%w: %v", ErrFileSystem, err)))
	}

	opts := o.extractorOptions(format, template)
	resolve := func(ctx context.Context, u string) (*extractor.Info, error) {
		return o.extractor.Resolve(ctx, u, opts)
	}

	// Resolve metadata first so limits are enforced before any bytes move.
	source := rawURL
	info, err := resolve(ctx, rawURL)
	if err != nil {
		logger.WithError(err).Warn("[Orchestrator] Metadata resolution failed")
		info, source, err = o.tryFallbacks(ctx, p, rawURL, resolve, err)
		if err != nil {
			return models.Failed(models.ReasonMetadataUnresolvable, metadataMessage(err))
		}
	}
	if info == nil {
		return models.Failed(models.ReasonMetadataUnresolvable, messages.NoMetadata)
	}

	duration := int(math.Round(info.Duration))
	if o.opts.MaxDuration > 0 && time.Duration(info.Duration*float64(time.Second)) > o.opts.MaxDuration {
		logger.Infof("[Orchestrator] Rejecting %ds video, ceiling is %v", duration, o.opts.MaxDuration)
		return models.Failed(models.ReasonDurationExceeded, messages.DurationExceeded(duration))
	}

	if err := o.transfer(ctx, source, opts, logger); err != nil {
		if isEmptyPayload(err) {
			return models.Failed(models.ReasonTransferFailed, messages.EmptyTransfer)
		}
		return models.Failed(models.ReasonTransferFailed, messages.GenericError(err))
	}

	path, err := findOutput(o.opts.DownloadDir, prefix)
	if err != nil {
		logger.WithError(err).Warn("[Orchestrator] Transfer left no output file")
		return models.Failed(models.ReasonFileNotFound, messages.FileNotFound)
	}

	stat, err := os.Stat(path)
	if err != nil {
		logger.WithError(err).Warn("[Orchestrator] Output file vanished before it could be measured")
		return models.Failed(models.ReasonFileNotFound, messages.FileNotFound)
	}
	size := stat.Size()

	if size == 0 {
		o.discard(path, logger)
		return models.Failed(models.ReasonEmptyFile, messages.EmptyFile)
	}
	if o.opts.MaxFileSizeBytes > 0 && size > o.opts.MaxFileSizeBytes {
		o.discard(path, logger)
		logger.Infof("[Orchestrator] Rejecting %s file, limit is %s", helpers.BytesToSize(uint64(size)), helpers.BytesToSize(uint64(o.opts.MaxFileSizeBytes)))
		return models.Failed(models.ReasonTooLarge, messages.TooLarge(helpers.BytesToMB(size)))
	}

	title := strings.TrimSpace(info.Title)
	if title == "" {
		title = messages.DefaultTitle
	}
	uploader := strings.TrimSpace(info.Uploader)
	if uploader == "" {
		uploader = messages.DefaultUploader
	}

	logger.Infof("[Orchestrator] Downloaded %s (%s)", filepath.Base(path), helpers.BytesToSize(uint64(size)))
	return models.Succeeded(models.DownloadSuccess{
		FilePath:        path,
		Title:           helpers.TruncateRunes(title, o.opts.TitleMaxLen),
		PlatformLabel:   label,
		UploaderLabel:   uploader,
		DurationSeconds: duration,
		SizeBytes:       size,
	})
}

func (o *Orchestrator) tryFallbacks(ctx context.Context, p models.Platform, rawURL string, resolve scrape.ResolveFunc, cause error) (*extractor.Info, string, error) {
	for _, fb := range o.fallbacks {
		if !fb.Applies(p) {
			continue
		}
		info, source, err := fb.Resolve(ctx, rawURL, resolve)
		if err == nil {
			log.Infof("[Orchestrator] Fallback resolved %s via %s", rawURL, source)
			return info, source, nil
		}
		log.WithError(err).Warn("[Orchestrator] Fallback strategy failed")
	}
	return nil, "", cause
}

// transfer runs the extractor once and retries with the plain best format
// when the first attempt produced an empty payload.
func (o *Orchestrator) transfer(ctx context.Context, source string, opts extractor.Options, logger *log.Entry) error {
	err := o.extractor.Transfer(ctx, source, opts)
	if err == nil {
		return nil
	}
	if !isEmptyPayload(err) {
		logger.WithError(err).Warn("[Orchestrator] Transfer failed")
		return err
	}

	logger.WithError(err).Warn("[Orchestrator] Empty payload, retrying with fallback format")
	retry := opts
	retry.Format = retryFormat
	if err := o.extractor.Transfer(ctx, source, retry); err != nil {
		logger.WithError(err).Warn("[Orchestrator] Retry transfer failed")
		if isEmptyPayload(err) {
			return fmt.Errorf("%w: %v", ErrEmptyDownload, err)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) discard(path string, logger *log.Entry) {
	if _, err := helpers.RemoveFile(path); err != nil {
		logger.WithError(err).Warnf("[Orchestrator] Failed to remove rejected file %s", path)
	}
}

func isEmptyPayload(err error) bool {
	return errors.Is(err, ErrEmptyDownload) || strings.Contains(strings.ToLower(err.Error()), "empty")
}

func metadataMessage(err error) string {
	if isEmptyPayload(err) {
		return messages.EmptyTransfer
	}
	return messages.GenericError(err)
}

// partialSuffixes are leftovers of interrupted or in-progress transfers.
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

// findOutput returns the file the transfer produced for prefix. The
// directory is listed rather than globbed so its name may contain pattern
// characters.
func findOutput(dir, prefix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileSystem, err)
	}
	var matches []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+".") {
			continue
		}
		matches = append(matches, name)
	}
	sort.Strings(matches)
	for _, m := range matches {
		partial := false
		for _, suffix := range partialSuffixes {
			if strings.HasSuffix(m, suffix) {
				partial = true
				break
			}
		}
		if !partial {
			return filepath.Join(dir, m), nil
		}
	}
	return "", ErrNoOutputFile
}
