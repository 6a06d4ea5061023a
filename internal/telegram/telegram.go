// Package telegram adapts the Telegram Bot API to the bot's Messenger and
// update types.
package telegram

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go-video-bot/internal/bot"
	"go-video-bot/internal/delivery"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

const (
	// pollTimeout is the long-polling window in seconds.
	pollTimeout = 60
	// ClientTimeout bounds a single API call, uploads included.
	ClientTimeout = 10 * time.Minute
)

// Client implements bot.Messenger on top of tgbotapi.
type Client struct {
	api *tgbotapi.BotAPI
}

// New connects with token and verifies it via getMe. endpoint may be empty
// for the public API.
func New(token, endpoint string, client tgbotapi.HTTPClient) (*Client, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	api.Debug = log.IsLevelEnabled(log.TraceLevel)
	if err := tgbotapi.SetLogger(log.WithField("component", "telegram")); err != nil {
		log.WithError(err).Debug("[Telegram] Could not set library logger")
	}
	log.Infof("[Telegram] Authorized as @%s", api.Self.UserName)
	return &Client{api: api}, nil
}

// Updates long-polls for updates until ctx is done, then closes the channel.
func (c *Client) Updates(ctx context.Context) <-chan bot.Update {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeout
	in := c.api.GetUpdatesChan(cfg)

	out := make(chan bot.Update)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				c.api.StopReceivingUpdates()
				return
			case u, ok := <-in:
				if !ok {
					return
				}
				converted, ok := convertUpdate(u)
				if !ok {
					continue
				}
				select {
				case out <- converted:
				case <-ctx.Done():
					c.api.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out
}

// convertUpdate maps the subset of Telegram updates the bot handles.
func convertUpdate(u tgbotapi.Update) (bot.Update, bool) {
	switch {
	case u.CallbackQuery != nil:
		q := u.CallbackQuery
		if q.From == nil || q.Message == nil || q.Message.Chat == nil {
			return bot.Update{}, false
		}
		return bot.Update{ID: u.UpdateID, Callback: &bot.Callback{
			From:      convertUser(q.From),
			ID:        q.ID,
			Data:      q.Data,
			ChatID:    q.Message.Chat.ID,
			MessageID: q.Message.MessageID,
		}}, true
	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil || m.Text == "" {
			return bot.Update{}, false
		}
		msg := &bot.Message{
			From:      convertUser(m.From),
			Text:      m.Text,
			ChatID:    m.Chat.ID,
			MessageID: m.MessageID,
		}
		if m.IsCommand() {
			msg.Command = strings.ToLower(m.Command())
			msg.Args = m.CommandArguments()
		}
		return bot.Update{ID: u.UpdateID, Message: msg}, true
	}
	return bot.Update{}, false
}

func convertUser(u *tgbotapi.User) bot.User {
	return bot.User{ID: u.ID, FirstName: u.FirstName, Username: u.UserName}
}

func markup(kb bot.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := c.SendKeyboard(ctx, chatID, text, nil)
	return err
}

func (c *Client) SendKeyboard(ctx context.Context, chatID int64, text string, kb bot.Keyboard) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if len(kb) > 0 {
		msg.ReplyMarkup = markup(kb)
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("sendMessage to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

func (c *Client) EditText(ctx context.Context, chatID int64, messageID int, text string, kb bot.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if len(kb) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup(kb))
	}
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := c.api.Request(edit); err != nil {
		return fmt.Errorf("editMessageText %d: %w", messageID, err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("deleteMessage %d: %w", messageID, err)
	}
	return nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answerCallbackQuery: %w", err)
	}
	return nil
}

func videoConfig(chatID int64, v delivery.Video) tgbotapi.VideoConfig {
	cfg := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(v.Path))
	cfg.Caption = v.Caption
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.Duration = v.DurationSeconds
	cfg.SupportsStreaming = true
	return cfg
}

func (c *Client) SendVideo(ctx context.Context, chatID int64, v delivery.Video) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Send(videoConfig(chatID, v)); err != nil {
		return fmt.Errorf("sendVideo to %d: %w", chatID, err)
	}
	return nil
}

// SendVideoToChannel accepts a numeric chat id or an @username.
func (c *Client) SendVideoToChannel(ctx context.Context, channel string, v delivery.Video) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var cfg tgbotapi.VideoConfig
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		cfg = videoConfig(id, v)
	} else {
		cfg = videoConfig(0, v)
		cfg.ChannelUsername = channel
	}
	if _, err := c.api.Send(cfg); err != nil {
		return fmt.Errorf("sendVideo to channel %s: %w", channel, err)
	}
	return nil
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, path, name, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// #nosec G304
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: name, Reader: f})
	doc.Caption = caption
	doc.ParseMode = tgbotapi.ModeHTML
	if _, err := c.api.Send(doc); err != nil {
		return fmt.Errorf("sendDocument to %d: %w", chatID, err)
	}
	return nil
}

func (c *Client) SetCommands(ctx context.Context, commands []bot.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	list := make([]tgbotapi.BotCommand, 0, len(commands))
	for _, cmd := range commands {
		list = append(list, tgbotapi.BotCommand{Command: cmd.Name, Description: cmd.Description})
	}
	if _, err := c.api.Request(tgbotapi.NewSetMyCommands(list...)); err != nil {
		return fmt.Errorf("setMyCommands: %w", err)
	}
	return nil
}

var _ bot.Messenger = (*Client)(nil)
