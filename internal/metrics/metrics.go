// Package metrics provides Prometheus metrics for the bot.
// Labels carry platforms and reason codes only, never user or request ids.
package metrics

import (
	"go-video-bot/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DownloadsTotal counts finished download requests by platform and outcome.
	DownloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videobot_downloads_total",
		Help: "Total number of download requests, by platform and outcome reason (ok on success).",
	}, []string{"platform", "outcome"})

	// DeliveredBytesTotal counts bytes handed to the messaging platform.
	DeliveredBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videobot_delivered_bytes_total",
		Help: "Total number of bytes successfully uploaded to requesters.",
	})

	// BroadcastFailuresTotal counts failed best-effort channel copies.
	BroadcastFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videobot_broadcast_failures_total",
		Help: "Total number of failed channel copies of delivered videos.",
	})

	// JanitorRemovedTotal counts files deleted by the download directory janitor.
	JanitorRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videobot_janitor_removed_total",
		Help: "Total number of stale files removed from the download directory.",
	})

	// UpdatesTotal counts inbound updates by kind (message, command, callback).
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "videobot_updates_total",
		Help: "Total number of inbound chat updates, by kind.",
	}, []string{"kind"})

	// PanicsTotal counts update handlers that panicked and were recovered.
	PanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "videobot_handler_panics_total",
		Help: "Total number of recovered panics in update handlers.",
	})
)

// OutcomeOK is the outcome label of a successful delivery.
const OutcomeOK = "ok"

// ObserveDownload records the outcome of one request.
func ObserveDownload(p models.Platform, reason models.ReasonCode) {
	outcome := OutcomeOK
	if reason != "" {
		outcome = string(reason)
	}
	DownloadsTotal.WithLabelValues(string(p), outcome).Inc()
}
