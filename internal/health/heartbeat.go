package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// Heartbeat periodically requests its own public URL so free hosting tiers
// that idle on inactivity keep the process running.
type Heartbeat struct {
	client   *http.Client
	url      string
	interval time.Duration
}

func NewHeartbeat(client *http.Client, url string, interval time.Duration) *Heartbeat {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Heartbeat{client: client, url: url, interval: interval}
}

// Run pings every interval until ctx is done. Failures are logged only.
func (h *Heartbeat) Run(ctx context.Context) error {
	if h.url == "" || h.interval <= 0 {
		log.Info("[Heartbeat] Disabled")
		return nil
	}
	log.Infof("[Heartbeat] Pinging %s every %v", h.url, h.interval)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("[Heartbeat] Stopped")
			return nil
		case <-ticker.C:
			if err := h.Ping(ctx); err != nil {
				log.WithError(err).Warn("[Heartbeat] Ping failed")
			}
		}
	}
}

// Ping performs one request and expects a 2xx answer.
func (h *Heartbeat) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build heartbeat request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("heartbeat got status %s", resp.Status)
	}
	log.Debugf("[Heartbeat] %s answered %d", h.url, resp.StatusCode)
	return nil
}
