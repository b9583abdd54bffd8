// Package transport holds the platform-neutral message types exchanged between
// the Telegram adapter, the dispatch loop and the broadcast dispatcher.
package transport

import (
	"context"
	"fmt"
	"time"
)

// MaxTextRunes is the longest text an adapter sends as a single message.
// Longer texts are split.
const MaxTextRunes = 4000

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// UserID returns the acting user of the update (0 if unknown).
func (u Update) UserID() int64 {
	switch {
	case u.Message != nil:
		return u.Message.FromID
	case u.Callback != nil:
		return u.Callback.FromID
	}
	return 0
}

type Message struct {
	ID            int
	ChatID        int64
	ThreadID      int // telegram forum topic thread id (0 if none)
	FromID        int64
	FromFirstName string
	FromUsername  string
	Text          string
	IsGroup       bool
}

type Callback struct {
	ID            string
	FromID        int64
	FromFirstName string
	FromUsername  string
	ChatID        int64
	ThreadID      int
	MessageID     int
	Data          string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Sender delivers text to a chat. The broadcast dispatcher depends only on this.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// AnswerCallback acknowledges a button press; alert shows text as a popup.
	AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// FloodError is returned by adapters when the platform asks the caller to
// back off before the next request.
type FloodError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *FloodError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *FloodError) Unwrap() error { return e.Err }
