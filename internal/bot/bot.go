// Package bot dispatches chat updates: commands, free text and button
// presses. It is independent of the concrete chat platform.
package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"sync"

	"go-video-bot/internal/database"
	"go-video-bot/internal/delivery"
	"go-video-bot/internal/messages"
	"go-video-bot/internal/metrics"
	"go-video-bot/internal/models"
	"go-video-bot/internal/session"
	"go-video-bot/internal/storage"
	"go-video-bot/internal/supportlog"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	topLimit       = 10
	userListCount  = 20
	userListLength = 4000
)

// Deps are the collaborators a Bot dispatches to.
type Deps struct {
	Messenger  Messenger
	Ledger     database.Ledger
	Sessions   session.Store
	Downloader delivery.Downloader
	Support    *supportlog.Log
	Janitor    *storage.Janitor
}

type Bot struct {
	messenger  Messenger
	ledger     database.Ledger
	sessions   session.Store
	downloader delivery.Downloader
	workflow   *delivery.Workflow
	support    *supportlog.Log
	janitor    *storage.Janitor
	limiter    *rate.Limiter
	exportDir  string
	cfg        models.Config
	wg         sync.WaitGroup
}

func New(cfg models.Config, deps Deps) *Bot {
	mps := cfg.Broadcast.MessagesPerSecond
	if mps <= 0 {
		mps = 20
	}
	return &Bot{
		messenger:  deps.Messenger,
		ledger:     deps.Ledger,
		sessions:   deps.Sessions,
		downloader: deps.Downloader,
		workflow:   delivery.FromConfig(cfg, deps.Messenger, deps.Ledger),
		support:    deps.Support,
		janitor:    deps.Janitor,
		limiter:    rate.NewLimiter(rate.Limit(mps), 1),
		exportDir:  filepath.Join(cfg.DataDir, "exports"),
		cfg:        cfg,
	}
}

// Run registers the command list and handles every update from updates on
// its own goroutine until ctx is done or the channel closes. It waits for
// in-flight handlers before returning.
func (b *Bot) Run(ctx context.Context, updates <-chan Update) error {
	if err := b.messenger.SetCommands(ctx, commands()); err != nil {
		log.WithError(err).Warn("[Bot] Failed to register command list")
	}
	log.Info("[Bot] Handling updates")

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			log.Info("[Bot] Stopping, waiting for in-flight updates")
			return nil
		case u, ok := <-updates:
			if !ok {
				log.Info("[Bot] Update channel closed")
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(ctx, u)
			}()
		}
	}
}

// HandleUpdate processes one update. Panics are recovered and the user
// gets a generic error reply.
func (b *Bot) HandleUpdate(ctx context.Context, u Update) {
	defer b.recoverUpdate(ctx, u)

	switch {
	case u.Callback != nil:
		metrics.UpdatesTotal.WithLabelValues("callback").Inc()
		b.handleCallback(ctx, u.Callback)
	case u.Message != nil && u.Message.Command != "":
		metrics.UpdatesTotal.WithLabelValues("command").Inc()
		b.handleCommand(ctx, u.Message)
	case u.Message != nil && u.Message.Text != "":
		metrics.UpdatesTotal.WithLabelValues("message").Inc()
		b.handleText(ctx, u.Message)
	default:
		log.Debugf("[Bot] Ignoring update %d without text or callback", u.ID)
	}
}

func (b *Bot) recoverUpdate(ctx context.Context, u Update) {
	r := recover()
	if r == nil {
		return
	}
	metrics.PanicsTotal.Inc()
	log.WithFields(log.Fields{"update": u.ID, "panic": fmt.Sprint(r)}).Errorf("[Bot] Handler panicked\n%s", debug.Stack())

	var chatID int64
	switch {
	case u.Message != nil:
		chatID = u.Message.ChatID
	case u.Callback != nil:
		chatID = u.Callback.ChatID
	}
	if chatID == 0 {
		return
	}
	if err := b.messenger.SendText(ctx, chatID, messages.Unexpected); err != nil {
		log.WithError(err).Warn("[Bot] Failed to report unexpected error")
	}
}

// touch records the interaction in the ledger. Failures are logged only.
func (b *Bot) touch(u User) bool {
	isNew, err := b.ledger.Touch(u.ID, u.FirstName, u.Username)
	if err != nil {
		log.WithError(err).Warnf("[Bot] Failed to touch ledger for %d", u.ID)
	}
	return isNew
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.messenger.SendText(ctx, chatID, text); err != nil {
		log.WithError(err).Warnf("[Bot] Failed to send message to %d", chatID)
	}
}

func (b *Bot) replyKeyboard(ctx context.Context, chatID int64, text string, kb Keyboard) {
	if _, err := b.messenger.SendKeyboard(ctx, chatID, text, kb); err != nil {
		log.WithError(err).Warnf("[Bot] Failed to send keyboard to %d", chatID)
	}
}

func (b *Bot) edit(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) {
	if err := b.messenger.EditText(ctx, chatID, messageID, text, kb); err != nil {
		log.WithError(err).Debugf("[Bot] Failed to edit message %d", messageID)
	}
}

func (b *Bot) setMode(ctx context.Context, userID int64, mode session.Mode) {
	if err := b.sessions.SetMode(ctx, userID, mode); err != nil {
		log.WithError(err).Warnf("[Bot] Failed to set mode %q for %d", mode, userID)
	}
}

func (b *Bot) clearMode(ctx context.Context, userID int64) {
	if err := b.sessions.ClearMode(ctx, userID); err != nil {
		log.WithError(err).Warnf("[Bot] Failed to clear mode for %d", userID)
	}
}
