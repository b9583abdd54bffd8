package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"hwbot/internal/broadcast"
	"hwbot/internal/datex"
	"hwbot/internal/eventbus"
	"hwbot/internal/storage"
	logx "hwbot/pkg/logx"
)

// Broadcaster queues a broadcast job without blocking.
type Broadcaster interface {
	Submit(job broadcast.Job) (string, error)
}

// Notifier delivers a Reply outside of an event's request/response cycle.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, r Reply) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, chatID int64, r Reply) error

func (f NotifierFunc) Notify(ctx context.Context, chatID int64, r Reply) error {
	return f(ctx, chatID, r)
}

type Deps struct {
	States      StateStore
	Records     storage.Store
	Broadcaster Broadcaster
	Notifier    Notifier
	Settings    func() Settings
	Bus         eventbus.Bus
	Log         logx.Logger
	Now         func() time.Time
}

// Router maps events to flow steps. It is safe for concurrent use as long as
// events of one user are handled in order.
type Router struct {
	states   StateStore
	records  storage.Store
	bcast    Broadcaster
	notify   Notifier
	settings func() Settings
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time
}

func NewRouter(d Deps) *Router {
	r := &Router{
		states:   d.States,
		records:  d.Records,
		bcast:    d.Broadcaster,
		notify:   d.Notifier,
		settings: d.Settings,
		bus:      d.Bus,
		log:      d.Log,
		now:      d.Now,
	}
	if r.states == nil {
		r.states = NewMemoryStore(0)
	}
	if r.settings == nil {
		r.settings = func() Settings { return Settings{} }
	}
	if r.bus == nil {
		r.bus = eventbus.Nop{}
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Handle processes one event and returns what to show. Errors never escape:
// they are translated into user-visible replies here.
func (r *Router) Handle(ctx context.Context, ev Event) Reply {
	rep, err := r.route(ctx, ev)
	if err != nil {
		return r.translate(ev, err)
	}
	return rep
}

func (r *Router) route(ctx context.Context, ev Event) (Reply, error) {
	cmd, isCmd := parseCommand(ev.Text)
	if (ev.isButton() && ev.Token.Kind == TokenCancel) || (!ev.isButton() && isCmd && cmd == cmdCancel) {
		return r.cancel(ev), nil
	}

	set := r.settings()
	if ev.isButton() {
		return r.onButton(ctx, ev, *ev.Token, set)
	}
	st, ok := r.states.Get(ev.UserID)
	if isCmd && !(ok && st.takesFreeText()) {
		return r.onCommand(ctx, ev, cmd, set)
	}
	if !ok {
		return Reply{}, nil
	}
	return r.onText(ctx, ev, st, set)
}

func (r *Router) cancel(ev Event) Reply {
	r.states.Clear(ev.UserID)
	rep := Reply{Text: txtCancelled, Menu: MenuMain}
	if ev.isButton() {
		rep.Toast = txtCancelToast
	}
	return rep
}

// translate is the only place where error kinds become user-visible text.
func (r *Router) translate(ev Event, err error) Reply {
	log := r.log.With(logx.Int64("user_id", ev.UserID))
	var e *Error
	errors.As(err, &e)

	switch KindOf(err) {
	case KindValidation:
		log.Debug("input rejected", logx.Err(err))
		if e != nil {
			return e.Reprompt
		}
		return Reply{}
	case KindAuthorization:
		log.Info("admin action denied", logx.Err(err))
		if ev.isButton() {
			return Reply{Toast: txtNoAccess, Alert: true}
		}
		return Reply{Text: txtNoAdminMenu}
	case KindDelivery:
		log.Warn("broadcast not queued", logx.Err(err))
		return Reply{Text: txtBcastFailed, Menu: MenuAdmin}
	case KindPersistence:
		log.Error("step failed", logx.Err(err))
		return r.failure(ev)
	default:
		log.Error("unclassified step error", logx.String("kind", KindOf(err).String()), logx.Err(err))
		return r.failure(ev)
	}
}

func (r *Router) failure(ev Event) Reply {
	// Partially collected fields may not have been committed.
	r.states.Clear(ev.UserID)
	rep := Reply{Text: txtFailure, Menu: MenuMain}
	if ev.isButton() {
		rep.Toast, rep.Alert = txtFailureToast, true
	}
	return rep
}

func (r *Router) onButton(ctx context.Context, ev Event, t Token, set Settings) (Reply, error) {
	switch t.Kind {
	case TokenMenuAll:
		return r.list(ctx, txtAllHeading, set, func() ([]storage.Notice, error) {
			return r.records.ListAll(ctx, storage.DefaultListLimit)
		})
	case TokenMenuTomorrow:
		due := datex.Tomorrow(r.now(), set.location())
		return r.list(ctx, txtTomorrowHead, set, func() ([]storage.Notice, error) {
			return r.records.ListByDate(ctx, due)
		})
	case TokenMenuByDate:
		r.states.Set(ev.UserID, newState(FlowDateLookup, StepAwaitingDate))
		return Reply{Text: txtAskDate, Menu: MenuCancel}, nil
	case TokenMenuBySubject:
		return Reply{Text: txtPickSubject, Menu: MenuSubjects, Subjects: set.Subjects}, nil
	case TokenSubject:
		if st, ok := r.states.Get(ev.UserID); ok && st.at(FlowNoticeEntry, StepAwaitingSubject) {
			return r.entrySubject(ev, t.Subject, set)
		}
		return r.list(ctx, subjectHeading(set.subjectName(t.Subject)), set, func() ([]storage.Notice, error) {
			return r.records.ListBySubject(ctx, t.Subject, storage.DefaultListLimit)
		})
	case TokenBack:
		return Reply{Text: txtMainMenu, Menu: MenuMain}, nil
	case TokenAdminAddNotice:
		if !set.IsAdmin(ev.UserID) {
			return Reply{}, denied("notice_entry")
		}
		r.states.Set(ev.UserID, newState(FlowNoticeEntry, StepAwaitingSubject))
		return Reply{Text: txtPickEntrySubj, Menu: MenuSubjectsEntry, Subjects: set.Subjects}, nil
	case TokenAdminBroadcast:
		if !set.IsAdmin(ev.UserID) {
			return Reply{}, denied("broadcast")
		}
		r.states.Set(ev.UserID, newState(FlowBroadcast, StepAwaitingText))
		return Reply{Text: txtAskBroadcast, Menu: MenuCancel}, nil
	default:
		return Reply{}, nil
	}
}

type command string

const (
	cmdStart     command = "start"
	cmdStop      command = "stop"
	cmdAdminMenu command = "admin_menu"
	cmdCancel    command = "cancel"
	cmdHelp      command = "help"
)

// Commands is the bot menu, in display order.
var Commands = []struct{ Name, Description string }{
	{string(cmdStart), "Подписаться и открыть меню"},
	{string(cmdStop), "Отписаться от рассылки"},
	{string(cmdAdminMenu), "Админ-меню"},
	{string(cmdCancel), "Отменить текущее действие"},
	{string(cmdHelp), "Справка"},
}

// parseCommand recognizes "/name", "/name@bot" and "/name args" for known names.
func parseCommand(text string) (command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	n, _, _ := strings.Cut(strings.Fields(text)[0][1:], "@")
	switch c := command(strings.ToLower(n)); c {
	case cmdStart, cmdStop, cmdAdminMenu, cmdCancel, cmdHelp:
		return c, true
	}
	return "", false
}

func (r *Router) onCommand(ctx context.Context, ev Event, cmd command, set Settings) (Reply, error) {
	switch cmd {
	case cmdStart:
		if err := r.records.UpsertSubscriber(ctx, ev.UserID, ev.FirstName, ev.Username); err != nil {
			return Reply{}, persistence("subscribe", err)
		}
		return Reply{Text: txtWelcome, Menu: MenuMain}, nil
	case cmdStop:
		err := r.records.SetSubscribed(ctx, ev.UserID, false)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return Reply{}, persistence("unsubscribe", err)
		}
		return Reply{Text: txtUnsubscribed}, nil
	case cmdAdminMenu:
		if !set.IsAdmin(ev.UserID) {
			return Reply{}, denied("admin_menu")
		}
		return Reply{Text: txtAdminMenu, Menu: MenuAdmin}, nil
	default:
		return Reply{Text: txtHelp, Menu: MenuMain}, nil
	}
}

func (r *Router) onText(ctx context.Context, ev Event, st State, set Settings) (Reply, error) {
	switch st.Flow {
	case FlowDateLookup:
		return r.lookupDate(ctx, ev, set)
	case FlowNoticeEntry:
		return r.noticeEntry(ctx, ev, st, set)
	case FlowBroadcast:
		return r.broadcastText(ctx, ev)
	default:
		r.states.Clear(ev.UserID)
		return Reply{}, nil
	}
}

func (r *Router) list(ctx context.Context, heading string, set Settings, query func() ([]storage.Notice, error)) (Reply, error) {
	items, err := query()
	if err != nil {
		return Reply{}, persistence("list", err)
	}
	return Reply{Text: heading, Listing: listing(items, set), Menu: MenuMain}, nil
}

func listing(items []storage.Notice, set Settings) *Listing {
	l := &Listing{Items: make([]ListingItem, 0, len(items))}
	for _, n := range items {
		l.Items = append(l.Items, ListingItem{Notice: n, SubjectName: set.subjectName(n.SubjectID)})
	}
	return l
}

func (r *Router) audit(e storage.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.records.AppendAudit(ctx, e); err != nil {
		r.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}
