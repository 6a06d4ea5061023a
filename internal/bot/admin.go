package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go-video-bot/internal/helpers"
	"go-video-bot/internal/messages"
	"go-video-bot/internal/session"
	"go-video-bot/internal/storage"

	log "github.com/sirupsen/logrus"
)

func (b *Bot) handleAdmin(ctx context.Context, c *Callback) {
	log.Infof("[Admin] %s by %d", c.Data, c.From.ID)

	switch c.Data {
	case dataAdminStats:
		stats, err := b.ledger.Snapshot()
		if err != nil {
			b.edit(ctx, c.ChatID, c.MessageID, messages.GenericError(err), nil)
			return
		}
		b.edit(ctx, c.ChatID, c.MessageID, messages.GlobalStats(stats), nil)
	case dataAdminUsers:
		users, err := b.ledger.All()
		if err != nil {
			b.edit(ctx, c.ChatID, c.MessageID, messages.GenericError(err), nil)
			return
		}
		if len(users) > userListCount {
			users = users[:userListCount]
		}
		b.edit(ctx, c.ChatID, c.MessageID, messages.UserList(users, userListLength), nil)
	case dataAdminBroadcast:
		b.setMode(ctx, c.From.ID, session.ModeBroadcast)
		b.edit(ctx, c.ChatID, c.MessageID, messages.BroadcastAsk, Keyboard{{{Text: messages.ButtonCancel, Data: dataCancel}}})
	case dataAdminExport:
		b.export(ctx, c)
	case dataAdminCleanup:
		removed, err := b.janitor.PurgeAll()
		if err != nil {
			log.WithError(err).Warn("[Admin] Cleanup finished with errors")
		}
		b.edit(ctx, c.ChatID, c.MessageID, messages.CleanupReport(removed), nil)
	case dataAdminChannelID:
		if !b.cfg.ChannelConfigured() {
			b.edit(ctx, c.ChatID, c.MessageID, messages.ChannelMissing, nil)
			return
		}
		b.edit(ctx, c.ChatID, c.MessageID, messages.ChannelInfo(b.cfg.ChannelID), nil)
	default:
		log.Debugf("[Admin] Unknown action %q", c.Data)
	}
}

// export zips the download directory, sends it and removes the archive.
func (b *Bot) export(ctx context.Context, c *Callback) {
	b.edit(ctx, c.ChatID, c.MessageID, messages.Exporting, nil)

	dest := filepath.Join(b.exportDir, fmt.Sprintf("videos_%d.zip", time.Now().Unix()))
	defer func() {
		if _, err := helpers.RemoveFile(dest); err != nil {
			log.WithError(err).Warnf("[Admin] Failed to remove %s", dest)
		}
	}()

	if _, err := storage.ExportArchive(b.janitor.Dir(), dest); err != nil {
		if errors.Is(err, storage.ErrNothingToExport) {
			b.edit(ctx, c.ChatID, c.MessageID, messages.ExportEmpty, nil)
			return
		}
		log.WithError(err).Error("[Admin] Export failed")
		b.edit(ctx, c.ChatID, c.MessageID, messages.GenericError(err), nil)
		return
	}
	if err := b.messenger.SendDocument(ctx, c.ChatID, dest, "videos.zip", messages.ExportCaption); err != nil {
		log.WithError(err).Error("[Admin] Failed to send export")
		b.edit(ctx, c.ChatID, c.MessageID, messages.UploadFailed(err), nil)
		return
	}
	if err := b.messenger.DeleteMessage(ctx, c.ChatID, c.MessageID); err != nil {
		log.WithError(err).Debug("[Admin] Failed to delete status message")
	}
}

// broadcast sends text to every known user, paced by the limiter, and
// reports how many deliveries succeeded.
func (b *Bot) broadcast(ctx context.Context, chatID int64, text string) {
	users, err := b.ledger.All()
	if err != nil {
		b.reply(ctx, chatID, messages.GenericError(err))
		return
	}

	statusID, err := b.messenger.SendKeyboard(ctx, chatID, messages.BroadcastProgress(len(users)), nil)
	if err != nil {
		log.WithError(err).Warn("[Admin] Failed to send broadcast status")
	}

	body := messages.Broadcast(text)
	sent := 0
	for _, u := range users {
		if err := b.limiter.Wait(ctx); err != nil {
			log.WithError(err).Warn("[Admin] Broadcast interrupted")
			break
		}
		if err := b.messenger.SendText(ctx, u.ID, body); err != nil {
			log.WithError(err).Debugf("[Admin] Broadcast to %d failed", u.ID)
			continue
		}
		sent++
	}
	log.Infof("[Admin] Broadcast delivered to %d/%d users", sent, len(users))

	report := messages.BroadcastReport(sent, len(users))
	if statusID != 0 {
		b.edit(ctx, chatID, statusID, report, nil)
		return
	}
	b.reply(ctx, chatID, report)
}
