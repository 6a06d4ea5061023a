package bot

import (
	"context"
	"errors"
	"strings"

	"go-video-bot/internal/messages"
	"go-video-bot/internal/platform"
	"go-video-bot/internal/session"

	log "github.com/sirupsen/logrus"
)

func (b *Bot) handleCallback(ctx context.Context, c *Callback) {
	if err := b.messenger.AnswerCallback(ctx, c.ID, ""); err != nil {
		log.WithError(err).Debug("[Bot] Failed to answer callback")
	}
	b.touch(c.From)

	switch {
	case c.Data == dataCancel:
		b.clearMode(ctx, c.From.ID)
		b.edit(ctx, c.ChatID, c.MessageID, messages.Cancelled, nil)
	case strings.HasPrefix(c.Data, "main_"):
		b.handleMain(ctx, c)
	case strings.HasPrefix(c.Data, "admin_"):
		if !b.cfg.IsAdmin(c.From.ID) {
			b.edit(ctx, c.ChatID, c.MessageID, messages.NotAuthorized, nil)
			return
		}
		b.handleAdmin(ctx, c)
	case strings.HasPrefix(c.Data, downloadPrefix):
		b.handleDownload(ctx, c)
	default:
		log.Debugf("[Bot] Unknown callback data %q", c.Data)
	}
}

func (b *Bot) handleMain(ctx context.Context, c *Callback) {
	switch c.Data {
	case dataMainDownload:
		b.reply(ctx, c.ChatID, messages.SendLink)
	case dataMainStats:
		b.sendUserStats(ctx, c.ChatID, c.From.ID)
	case dataMainTop:
		b.sendLeaderboard(ctx, c.ChatID)
	case dataMainSupport:
		b.startSupport(ctx, c.ChatID, c.From.ID)
	case dataMainHelp:
		b.reply(ctx, c.ChatID, messages.Help)
	}
}

// handleDownload resolves dl_<tier>_<requestID> into the pending link,
// runs the download and delivers it.
func (b *Bot) handleDownload(ctx context.Context, c *Callback) {
	tier, requestID, err := parseDownloadData(c.Data)
	if err != nil {
		log.WithError(err).Warn("[Bot] Bad download callback")
		b.edit(ctx, c.ChatID, c.MessageID, messages.LinkExpired, nil)
		return
	}

	url, err := b.sessions.GetURL(ctx, requestID)
	if err != nil {
		if !errors.Is(err, session.ErrExpired) {
			log.WithError(err).Warn("[Bot] Session lookup failed")
		}
		b.edit(ctx, c.ChatID, c.MessageID, messages.LinkExpired, nil)
		return
	}

	b.edit(ctx, c.ChatID, c.MessageID, messages.DownloadingTier(tier), nil)
	req := platform.NewRequest(url, tier)
	outcome := b.workflow.Handle(ctx, b.downloader, req, c.From.requester(c.ChatID))

	log.WithFields(log.Fields{
		"platform":  req.Platform,
		"request":   req.RequestID,
		"delivered": outcome.Delivered,
		"reason":    outcome.Reason,
	}).Info("[Bot] Request finished")

	if err := b.messenger.DeleteMessage(ctx, c.ChatID, c.MessageID); err != nil {
		log.WithError(err).Debug("[Bot] Failed to delete status message")
	}
}
