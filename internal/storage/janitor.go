// Package storage manages the download directory: periodic removal of
// stale files, operator purges and zip exports.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-video-bot/internal/helpers"
	"go-video-bot/internal/metrics"
	"go-video-bot/internal/models"

	log "github.com/sirupsen/logrus"
)

var ErrNoDirectory = errors.New("download directory not configured")

// Janitor deletes files from the download directory once they are older
// than MaxAge. Delivery removes its own files; the janitor catches what a
// crash or a killed transfer left behind.
type Janitor struct {
	now           func() time.Time
	dir           string
	interval      time.Duration
	maxAge        time.Duration
	firstRunDelay time.Duration
}

func NewJanitor(dir string, interval, maxAge, firstRunDelay time.Duration) *Janitor {
	return &Janitor{
		now:           time.Now,
		dir:           dir,
		interval:      interval,
		maxAge:        maxAge,
		firstRunDelay: firstRunDelay,
	}
}

// JanitorFromConfig builds a janitor for cfg.DownloadDir.
func JanitorFromConfig(cfg models.Config) *Janitor {
	return NewJanitor(
		cfg.DownloadDir,
		time.Duration(cfg.Janitor.IntervalSec)*time.Second,
		time.Duration(cfg.Janitor.MaxAgeSec)*time.Second,
		time.Duration(cfg.Janitor.FirstRunDelaySec)*time.Second,
	)
}

func (j *Janitor) Dir() string { return j.dir }

// Run sweeps after the first-run delay and then on every interval until ctx
// is done. It always returns nil so it can sit in an errgroup.
func (j *Janitor) Run(ctx context.Context) error {
	if j.interval <= 0 {
		log.Warn("[Janitor] Non-positive interval, janitor disabled")
		return nil
	}
	log.Infof("[Janitor] Started for %s (interval %v, max age %v)", j.dir, j.interval, j.maxAge)

	delay := time.NewTimer(j.firstRunDelay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		log.Info("[Janitor] Stopped")
		return nil
	case <-delay.C:
		j.sweepAndLog()
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("[Janitor] Stopped")
			return nil
		case <-ticker.C:
			j.sweepAndLog()
		}
	}
}

func (j *Janitor) sweepAndLog() {
	removed, err := j.Sweep(j.maxAge)
	if err != nil {
		log.WithError(err).Warn("[Janitor] Sweep finished with errors")
	}
	if removed > 0 {
		log.Infof("[Janitor] Removed %d stale file(s)", removed)
	}
}

// Sweep removes regular files whose modification time is older than maxAge.
// A maxAge of zero removes everything. Files that disappear mid-sweep are
// not errors.
func (j *Janitor) Sweep(maxAge time.Duration) (int, error) {
	if j.dir == "" {
		return 0, ErrNoDirectory
	}
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read %s: %w", j.dir, err)
	}

	cutoff := j.now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(j.dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if maxAge > 0 && !info.ModTime().Before(cutoff) {
			continue
		}
		ok, err := helpers.RemoveFile(path)
		if err != nil {
			log.WithError(err).Warnf("[Janitor] Failed to remove %s", path)
			errs = append(errs, err)
			continue
		}
		if ok {
			log.Debugf("[Janitor] Removed %s", path)
			removed++
		}
	}
	metrics.JanitorRemovedTotal.Add(float64(removed))
	return removed, errors.Join(errs...)
}

// PurgeAll removes every file in the download directory regardless of age.
func (j *Janitor) PurgeAll() (int, error) {
	return j.Sweep(0)
}
