package bot

import (
	"context"

	"go-video-bot/internal/delivery"
	"go-video-bot/internal/models"
)

// User is the sender of an update.
type User struct {
	ID        int64
	FirstName string
	Username  string
}

// Message is an inbound text message. Command and Args are set when the
// text is a slash command; Command carries no leading slash or bot suffix.
type Message struct {
	From      User
	Text      string
	Command   string
	Args      string
	ChatID    int64
	MessageID int
}

// Callback is a button press on a message the bot sent.
type Callback struct {
	From      User
	ID        string
	Data      string
	ChatID    int64
	MessageID int
}

// Update carries exactly one of Message or Callback.
type Update struct {
	Message  *Message
	Callback *Callback
	ID       int
}

// Button is an inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Keyboard is rows of inline buttons.
type Keyboard [][]Button

// Command is a slash command advertised to users.
type Command struct {
	Name        string
	Description string
}

// Messenger is the full outbound surface of the chat platform. Text is
// always sent as HTML.
type Messenger interface {
	delivery.Messenger
	SendKeyboard(ctx context.Context, chatID int64, text string, kb Keyboard) (int, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	SendDocument(ctx context.Context, chatID int64, path, name, caption string) error
	SetCommands(ctx context.Context, commands []Command) error
}

func (u User) requester(chatID int64) models.Requester {
	return models.Requester{ChatID: chatID, UserID: u.ID, FirstName: u.FirstName, Username: u.Username}
}
