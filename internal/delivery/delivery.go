// Package delivery hands a download result to the requester: failure
// replies, ledger accounting, the optional channel copy and the upload.
package delivery

import (
	"context"
	"errors"

	"go-video-bot/internal/helpers"
	"go-video-bot/internal/messages"
	"go-video-bot/internal/metrics"
	"go-video-bot/internal/models"

	log "github.com/sirupsen/logrus"
)

var ErrNoResult = errors.New("download result carries neither success nor failure")

// Video is an upload request for a local file.
type Video struct {
	Path            string
	Caption         string
	DurationSeconds int
}

// Messenger is the outbound side of the chat platform used by delivery.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendVideo(ctx context.Context, chatID int64, video Video) error
	SendVideoToChannel(ctx context.Context, channel string, video Video) error
}

// Recorder accounts finished downloads.
type Recorder interface {
	RecordDownload(id int64, sizeMB float64) error
}

// Downloader produces a result for a URL and tier.
type Downloader interface {
	Download(ctx context.Context, rawURL string, tier models.QualityTier) models.DownloadResult
}

// Outcome summarizes what happened to one request.
type Outcome struct {
	Reason    models.ReasonCode
	Delivered bool
}

// Workflow delivers results. ChannelID is empty when no channel copy is wanted.
type Workflow struct {
	messenger Messenger
	ledger    Recorder
	channelID string
}

func New(m Messenger, ledger Recorder, channelID string) *Workflow {
	return &Workflow{messenger: m, ledger: ledger, channelID: channelID}
}

// FromConfig builds a workflow honouring the configured channel.
func FromConfig(cfg models.Config, m Messenger, ledger Recorder) *Workflow {
	channel := ""
	if cfg.ChannelConfigured() {
		channel = cfg.ChannelID
	}
	return New(m, ledger, channel)
}

// Handle runs the download for req and delivers the result.
func (w *Workflow) Handle(ctx context.Context, d Downloader, req models.DownloadRequest, requester models.Requester) Outcome {
	result := d.Download(ctx, req.URL, req.Quality)
	outcome := w.Deliver(ctx, result, requester, req.Quality)
	metrics.ObserveDownload(req.Platform, outcome.Reason)
	return outcome
}

// Deliver sends result to the requester. A successful result's file is
// removed before Deliver returns, whatever happens to the upload.
func (w *Workflow) Deliver(ctx context.Context, result models.DownloadResult, requester models.Requester, tier models.QualityTier) Outcome {
	logger := log.WithFields(log.Fields{"user": requester.UserID, "quality": tier})

	if !result.OK() {
		failure := result.Failure
		if failure == nil {
			logger.WithError(ErrNoResult).Error("[Delivery] Malformed result")
			failure = &models.DownloadFailure{Reason: models.ReasonTransferFailed, Message: messages.Unexpected}
		}
		logger.Infof("[Delivery] Request failed: %s", failure.Reason)
		if err := w.messenger.SendText(ctx, requester.ChatID, failure.Message); err != nil {
			logger.WithError(err).Warn("[Delivery] Failed to send failure reply")
		}
		return Outcome{Reason: failure.Reason}
	}

	success := *result.Success
	defer func() {
		if _, err := helpers.RemoveFile(success.FilePath); err != nil {
			logger.WithError(err).Warnf("[Delivery] Failed to remove %s", success.FilePath)
		}
	}()

	if err := w.ledger.RecordDownload(requester.UserID, success.SizeMB()); err != nil {
		logger.WithError(err).Warn("[Delivery] Failed to record download")
	}

	if w.channelID != "" {
		copyVideo := Video{
			Path:            success.FilePath,
			Caption:         messages.ChannelCaption(requester.FirstName),
			DurationSeconds: success.DurationSeconds,
		}
		if err := w.messenger.SendVideoToChannel(ctx, w.channelID, copyVideo); err != nil {
			metrics.BroadcastFailuresTotal.Inc()
			logger.WithError(err).Warnf("[Delivery] Channel copy to %s failed", w.channelID)
		}
	}

	video := Video{
		Path:            success.FilePath,
		Caption:         messages.Caption(success, tier),
		DurationSeconds: success.DurationSeconds,
	}
	if err := w.messenger.SendVideo(ctx, requester.ChatID, video); err != nil {
		logger.WithError(err).Warn("[Delivery] Upload failed")
		if sendErr := w.messenger.SendText(ctx, requester.ChatID, messages.UploadFailed(err)); sendErr != nil {
			logger.WithError(sendErr).Warn("[Delivery] Failed to report upload failure")
		}
		return Outcome{Reason: models.ReasonUploadFailed}
	}

	metrics.DeliveredBytesTotal.Add(float64(success.SizeBytes))
	logger.Infof("[Delivery] Delivered %s", helpers.BytesToSize(uint64(success.SizeBytes)))
	return Outcome{Delivered: true}
}
