package router

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"hwbot/internal/conversation"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

type sent struct {
	chatID int64
	text   string
	opt    *kit.SendOptions
}

type answered struct {
	id, text string
	alert    bool
}

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []sent
	answered []answered
	menu     []kit.BotCommand
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{chatID: to.ChatID, text: text, opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, id, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, answered{id: id, text: text, alert: alert})
	return nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.menu = cmds
	return nil
}

type handlerFunc func(ctx context.Context, ev conversation.Event) conversation.Reply

func (h handlerFunc) Handle(ctx context.Context, ev conversation.Event) conversation.Reply {
	return h(ctx, ev)
}

func run(t *testing.T, d *Dispatcher, ups []kit.Update) {
	t.Helper()
	ch := make(chan kit.Update, len(ups))
	for _, u := range ups {
		ch <- u
	}
	close(ch)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), ch) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("dispatcher did not drain")
	}
}

func msg(user int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: user, FromID: user, Text: text}}
}

func TestPerUserOrderingIsPreserved(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	seen := map[int64][]string{}
	h := handlerFunc(func(_ context.Context, ev conversation.Event) conversation.Reply {
		time.Sleep(time.Duration(rand.Intn(300)) * time.Microsecond)
		mu.Lock()
		seen[ev.UserID] = append(seen[ev.UserID], ev.Text)
		mu.Unlock()
		return conversation.Reply{}
	})

	const users, perUser = 8, 40
	var ups []kit.Update
	for i := 0; i < perUser; i++ {
		for u := int64(1); u <= users; u++ {
			ups = append(ups, msg(u, fmt.Sprint(i)))
		}
	}
	d := New(Config{Workers: 3, QueueSize: users * perUser}, &fakeAdapter{}, h, logx.Nop())
	run(t, d, ups)

	for u := int64(1); u <= users; u++ {
		got := seen[u]
		if len(got) != perUser {
			t.Fatalf("user %d: handled %d events, want %d", u, len(got), perUser)
		}
		for i, s := range got {
			if s != fmt.Sprint(i) {
				t.Fatalf("user %d: event %d was %q (out of order)", u, i, s)
			}
		}
	}
}

func TestCallbackIsAnsweredAndReplyRendered(t *testing.T) {
	t.Parallel()
	var gotEv conversation.Event
	h := handlerFunc(func(_ context.Context, ev conversation.Event) conversation.Reply {
		gotEv = ev
		return conversation.Reply{Text: "a < b", Menu: conversation.MenuCancel, Toast: "ok"}
	})
	ad := &fakeAdapter{}
	d := New(Config{Workers: 1}, ad, h, logx.Nop())
	run(t, d, []kit.Update{{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb1", FromID: 7, ChatID: 7, Data: "MENU:BY_DATE"}}})

	if gotEv.Token == nil || gotEv.Token.Kind != conversation.TokenMenuByDate {
		t.Fatalf("token = %+v", gotEv.Token)
	}
	if len(ad.answered) != 1 || ad.answered[0] != (answered{id: "cb1", text: "ok"}) {
		t.Fatalf("answered = %+v", ad.answered)
	}
	if len(ad.sent) != 1 {
		t.Fatalf("sent = %d messages", len(ad.sent))
	}
	s := ad.sent[0]
	if s.text != "a &lt; b" || s.opt.ParseMode != tele.ModeHTML {
		t.Fatalf("sent %q with %+v", s.text, s.opt)
	}
	rm, ok := s.opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok || rm.InlineKeyboard[0][0].Data != "ACTION:CANCEL" {
		t.Fatalf("markup = %#v", s.opt.ReplyMarkupAdapter)
	}
}

func TestEmptyReplyStillClearsSpinner(t *testing.T) {
	t.Parallel()
	h := handlerFunc(func(context.Context, conversation.Event) conversation.Reply { return conversation.Reply{} })
	ad := &fakeAdapter{}
	d := New(Config{Workers: 1}, ad, h, logx.Nop())
	run(t, d, []kit.Update{
		{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "x", FromID: 1, ChatID: 1, Data: "garbage"}},
		msg(1, "hello"),
	})
	if len(ad.answered) != 1 || len(ad.sent) != 0 {
		t.Fatalf("answered=%d sent=%d", len(ad.answered), len(ad.sent))
	}
}

func TestGroupMessagesAreIgnored(t *testing.T) {
	t.Parallel()
	called := false
	h := handlerFunc(func(context.Context, conversation.Event) conversation.Reply {
		called = true
		return conversation.Reply{Text: "hi"}
	})
	up := msg(5, "/start")
	up.Message.IsGroup = true
	run(t, New(Config{}, &fakeAdapter{}, h, logx.Nop()), []kit.Update{up})
	if called {
		t.Fatal("group message reached the engine")
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	n := 0
	h := handlerFunc(func(_ context.Context, ev conversation.Event) conversation.Reply {
		if ev.Text == "boom" {
			panic("boom")
		}
		mu.Lock()
		n++
		mu.Unlock()
		return conversation.Reply{}
	})
	run(t, New(Config{Workers: 1}, &fakeAdapter{}, h, logx.Nop()), []kit.Update{msg(1, "boom"), msg(1, "after")})
	if n != 1 {
		t.Fatalf("handled after panic = %d, want 1", n)
	}
}

func TestNotifyAndPublishCommands(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	d := New(Config{}, ad, nil, logx.Nop())
	if err := d.Notify(context.Background(), 42, conversation.Reply{Text: "Рассылка завершена", Menu: conversation.MenuAdmin}); err != nil {
		t.Fatal(err)
	}
	if len(ad.sent) != 1 || ad.sent[0].chatID != 42 || !strings.HasPrefix(ad.sent[0].text, "Рассылка") {
		t.Fatalf("sent = %+v", ad.sent)
	}
	if err := PublishCommands(context.Background(), ad); err != nil {
		t.Fatal(err)
	}
	if len(ad.menu) != len(conversation.Commands) || ad.menu[0].Command != "start" {
		t.Fatalf("menu = %+v", ad.menu)
	}
}

func TestShardOfIsStable(t *testing.T) {
	t.Parallel()
	for u := int64(-5); u < 100; u++ {
		a, b := shardOf(u, 7), shardOf(u, 7)
		if a != b || a < 0 || a >= 7 {
			t.Fatalf("shardOf(%d) = %d, %d", u, a, b)
		}
	}
}
