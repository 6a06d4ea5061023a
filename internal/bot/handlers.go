package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go-video-bot/internal/database"
	"go-video-bot/internal/messages"
	"go-video-bot/internal/platform"
	"go-video-bot/internal/session"

	log "github.com/sirupsen/logrus"
)

func (b *Bot) handleCommand(ctx context.Context, m *Message) {
	log.Debugf("[Bot] /%s from %d", m.Command, m.From.ID)

	switch m.Command {
	case "start":
		b.clearMode(ctx, m.From.ID)
		isNew := b.touch(m.From)
		b.replyKeyboard(ctx, m.ChatID, messages.Welcome(m.From.FirstName, isNew), mainKeyboard())
	case "help":
		b.touch(m.From)
		b.reply(ctx, m.ChatID, messages.Help)
	case "stats":
		b.touch(m.From)
		b.sendUserStats(ctx, m.ChatID, m.From.ID)
	case "top":
		b.touch(m.From)
		b.sendLeaderboard(ctx, m.ChatID)
	case "cancel":
		b.clearMode(ctx, m.From.ID)
		b.replyKeyboard(ctx, m.ChatID, messages.Cancelled, mainKeyboard())
	case "support":
		b.touch(m.From)
		b.startSupport(ctx, m.ChatID, m.From.ID)
	case "reply":
		b.handleReply(ctx, m)
	case "admin":
		if !b.cfg.IsAdmin(m.From.ID) {
			b.reply(ctx, m.ChatID, messages.NotAuthorized)
			return
		}
		b.replyKeyboard(ctx, m.ChatID, messages.AdminPanel, adminKeyboard())
	default:
		// Unknown commands are treated like any other text.
		b.handleText(ctx, m)
	}
}

func (b *Bot) sendUserStats(ctx context.Context, chatID, userID int64) {
	u, err := b.ledger.Get(userID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.WithError(err).Warnf("[Bot] Failed to read stats for %d", userID)
		}
		b.reply(ctx, chatID, messages.NoStatsYet)
		return
	}
	b.reply(ctx, chatID, messages.UserStats(u))
}

func (b *Bot) sendLeaderboard(ctx context.Context, chatID int64) {
	top, err := b.ledger.Top(topLimit)
	if err != nil {
		log.WithError(err).Warn("[Bot] Failed to read leaderboard")
		b.reply(ctx, chatID, messages.Unexpected)
		return
	}
	b.reply(ctx, chatID, messages.Leaderboard(top))
}

func (b *Bot) startSupport(ctx context.Context, chatID, userID int64) {
	b.setMode(ctx, userID, session.ModeSupport)
	b.replyKeyboard(ctx, chatID, messages.SupportPrompt, Keyboard{{{Text: messages.ButtonCancel, Data: dataCancel}}})
}

// handleReply implements /reply <user_id> <text> for the operator.
func (b *Bot) handleReply(ctx context.Context, m *Message) {
	if !b.cfg.IsAdmin(m.From.ID) {
		b.reply(ctx, m.ChatID, messages.NotAuthorized)
		return
	}
	rawID, text, ok := strings.Cut(strings.TrimSpace(m.Args), " ")
	text = strings.TrimSpace(text)
	targetID, err := strconv.ParseInt(rawID, 10, 64)
	if !ok || err != nil || text == "" {
		b.reply(ctx, m.ChatID, messages.ReplyUsage)
		return
	}
	if err := b.messenger.SendText(ctx, targetID, messages.SupportReply(text)); err != nil {
		log.WithError(err).Warnf("[Bot] Failed to deliver support reply to %d", targetID)
		b.reply(ctx, m.ChatID, messages.GenericError(err))
		return
	}
	b.reply(ctx, m.ChatID, messages.ReplySent)
}

// handleText routes free text: pending input modes first, then the main
// keyboard shortcuts, then link detection.
func (b *Bot) handleText(ctx context.Context, m *Message) {
	b.touch(m.From)

	mode, err := b.sessions.Mode(ctx, m.From.ID)
	if err != nil {
		log.WithError(err).Warnf("[Bot] Failed to read mode for %d", m.From.ID)
	}
	switch mode {
	case session.ModeSupport:
		b.clearMode(ctx, m.From.ID)
		b.forwardSupport(ctx, m)
		return
	case session.ModeBroadcast:
		if b.cfg.IsAdmin(m.From.ID) {
			b.clearMode(ctx, m.From.ID)
			b.broadcast(ctx, m.ChatID, m.Text)
			return
		}
		b.clearMode(ctx, m.From.ID)
	}

	switch strings.TrimSpace(m.Text) {
	case messages.ButtonDownload:
		b.reply(ctx, m.ChatID, messages.SendLink)
		return
	case messages.ButtonStats:
		b.sendUserStats(ctx, m.ChatID, m.From.ID)
		return
	case messages.ButtonTop:
		b.sendLeaderboard(ctx, m.ChatID)
		return
	case messages.ButtonSupport:
		b.startSupport(ctx, m.ChatID, m.From.ID)
		return
	case messages.ButtonHelp:
		b.reply(ctx, m.ChatID, messages.Help)
		return
	}

	url, ok := platform.FirstURL(m.Text)
	if !ok {
		b.reply(ctx, m.ChatID, messages.NoURL)
		return
	}
	p, label := platform.Classify(url)
	requestID := platform.RequestID(url)
	if err := b.sessions.PutURL(ctx, requestID, url); err != nil {
		log.WithError(err).Warn("[Bot] Failed to store pending link")
		b.reply(ctx, m.ChatID, messages.GenericError(err))
		return
	}
	log.WithFields(log.Fields{"platform": p, "request": requestID, "user": m.From.ID}).Info("[Bot] Link received")
	b.replyKeyboard(ctx, m.ChatID, messages.Detected(label), qualityKeyboard(requestID))
}

func (b *Bot) forwardSupport(ctx context.Context, m *Message) {
	from := m.From.requester(m.ChatID)
	if b.support != nil {
		if err := b.support.Append(from, m.Text); err != nil {
			log.WithError(err).Warn("[Bot] Failed to log support message")
		}
	}
	if b.cfg.AdminID != 0 {
		if err := b.messenger.SendText(ctx, b.cfg.AdminID, messages.SupportForward(from, m.Text)); err != nil {
			log.WithError(err).Warn("[Bot] Failed to forward support message to admin")
		}
	}
	b.replyKeyboard(ctx, m.ChatID, messages.SupportSent, mainKeyboard())
}
