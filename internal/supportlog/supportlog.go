// Package supportlog appends support requests to a right-to-left HTML
// document the operator can open in a browser.
package supportlog

import (
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go-video-bot/internal/messages"
	"go-video-bot/internal/models"

	log "github.com/sirupsen/logrus"
)

const header = `<!DOCTYPE html>
<html dir="rtl" lang="ar">
<head>
<meta charset="UTF-8">
<title>سجل رسائل الدعم الفني</title>
<style>
body { font-family: Tahoma, Arial, sans-serif; background: #f4f6f8; padding: 20px; }
.message { background: #fff; border-radius: 8px; padding: 12px 16px; margin-bottom: 12px; box-shadow: 0 1px 3px rgba(0,0,0,.1); }
.meta { color: #666; font-size: 13px; margin-bottom: 6px; }
.text { white-space: pre-wrap; }
</style>
</head>
<body>
<h1>📩 سجل رسائل الدعم الفني</h1>
`

// Log is an append-only support message log.
type Log struct {
	now  func() time.Time
	path string
	mu   sync.Mutex
}

func New(path string) *Log {
	return &Log{now: time.Now, path: path}
}

func (l *Log) Path() string { return l.path }

// Append writes one entry, creating the document with its header first
// when it does not exist yet.
func (l *Log) Append(from models.Requester, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create support log directory: %w", err)
		}
	}

	_, err := os.Stat(l.path)
	fresh := errors.Is(err, os.ErrNotExist)

	// #nosec G304
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open support log %s: %w", l.path, err)
	}
	defer f.Close()

	if fresh {
		if _, err := f.WriteString(header); err != nil {
			return fmt.Errorf("failed to write support log header: %w", err)
		}
	}

	username := messages.NoUsername
	if from.Username != "" {
		username = "@" + from.Username
	}
	entry := fmt.Sprintf(`<div class="message">
<div class="meta">👤 %s (%s) | 🆔 %d | 🕒 %s</div>
<div class="text">%s</div>
</div>
`,
		html.EscapeString(from.FirstName),
		html.EscapeString(username),
		from.UserID,
		l.now().Format("2006-01-02 15:04:05"),
		html.EscapeString(text),
	)
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("failed to append support entry: %w", err)
	}
	log.Debugf("[Support] Logged message from %d", from.UserID)
	return nil
}
