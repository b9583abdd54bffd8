package router

import (
	"strings"

	"github.com/google/uuid"

	"hwbot/internal/conversation"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

// Request is one inbound update on its way through the middleware chain.
type Request struct {
	ID     string
	Update kit.Update
	Event  conversation.Event
	Chat   kit.ChatTarget
	Logger logx.Logger
}

func newRequest(up kit.Update, log logx.Logger) (*Request, bool) {
	req := &Request{ID: uuid.NewString()[:8], Update: up}
	switch {
	case up.Message != nil:
		m := up.Message
		req.Chat = kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
		req.Event = conversation.Event{UserID: m.FromID, FirstName: m.FromFirstName, Username: m.FromUsername, ChatID: m.ChatID, Text: m.Text}
	case up.Callback != nil:
		cb := up.Callback
		tok := conversation.DecodeToken(cb.Data)
		req.Chat = kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
		req.Event = conversation.Event{UserID: cb.FromID, FirstName: cb.FromFirstName, Username: cb.FromUsername, ChatID: cb.ChatID, Token: &tok}
	default:
		return nil, false
	}
	req.Logger = log.With(
		logx.String("rid", req.ID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int64("from_id", req.Event.UserID),
	)
	return req, true
}

// describe is the log-safe summary of the input: the button payload or the
// command name. Free text is never logged.
func (r *Request) describe() string {
	if r.Update.Callback != nil {
		return "cb:" + r.Update.Callback.Data
	}
	t := strings.TrimSpace(r.Event.Text)
	if strings.HasPrefix(t, "/") {
		return strings.Fields(t)[0]
	}
	return "text"
}
