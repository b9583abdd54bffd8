package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"hwbot/internal/broadcast"
	"hwbot/internal/datex"
	"hwbot/internal/eventbus"
	"hwbot/internal/storage"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

const skipDescription = "-"

func subjectHeading(name string) string { return fmt.Sprintf(txtSubjectHeadF, name) }

// transition advances uid from (flow, from) using next. It reports false when
// the user is no longer at that step.
func (r *Router) transition(uid int64, flow Flow, from Step, next func(State) State) bool {
	moved := false
	r.states.Update(uid, func(cur State, ok bool) (State, bool) {
		if !ok {
			return cur, false
		}
		if !cur.at(flow, from) {
			return cur, true
		}
		moved = true
		return next(cur), true
	})
	return moved
}

// Date lookup: AwaitingDate.

func (r *Router) lookupDate(ctx context.Context, ev Event, set Settings) (Reply, error) {
	due, ok := datex.ParseUser(ev.Text)
	if !ok {
		return Reply{}, invalid("date_lookup", errBadDate, Reply{Text: txtBadDate, Menu: MenuCancel})
	}
	items, err := r.records.ListByDate(ctx, due)
	if err != nil {
		return Reply{}, persistence("date_lookup", err)
	}
	r.states.Clear(ev.UserID)
	return Reply{Text: txtResultsHead, Listing: listing(items, set), Menu: MenuMain}, nil
}

// Notice entry: AwaitingSubject → AwaitingTitle → AwaitingDescription → AwaitingDueDate.

func (r *Router) entrySubject(ev Event, tag string, set Settings) (Reply, error) {
	pick := Reply{Text: txtPickEntrySubj, Menu: MenuSubjectsEntry, Subjects: set.Subjects}
	if _, ok := set.subject(tag); !ok {
		return Reply{}, invalid("notice_entry.subject", errUnknownSubj, pick)
	}
	if !r.transition(ev.UserID, FlowNoticeEntry, StepAwaitingSubject, func(st State) State {
		return st.advance(StepAwaitingTitle, fieldSubject, tag)
	}) {
		return Reply{}, nil
	}
	return Reply{Text: txtAskTitle, Menu: MenuCancel}, nil
}

func (r *Router) noticeEntry(ctx context.Context, ev Event, st State, set Settings) (Reply, error) {
	text := strings.TrimSpace(ev.Text)
	switch st.Step {
	case StepAwaitingSubject:
		return Reply{}, invalid("notice_entry.subject", errExpectSubject,
			Reply{Text: txtPickEntrySubj, Menu: MenuSubjectsEntry, Subjects: set.Subjects})

	case StepAwaitingTitle:
		if text == "" {
			return Reply{}, invalid("notice_entry.title", errEmpty, Reply{Text: txtEmptyTitle, Menu: MenuCancel})
		}
		if !r.transition(ev.UserID, FlowNoticeEntry, StepAwaitingTitle, func(st State) State {
			return st.advance(StepAwaitingDescription, fieldTitle, text)
		}) {
			return Reply{}, nil
		}
		return Reply{Text: txtAskDesc, Menu: MenuCancel}, nil

	case StepAwaitingDescription:
		if text == skipDescription {
			text = ""
		}
		if !r.transition(ev.UserID, FlowNoticeEntry, StepAwaitingDescription, func(st State) State {
			return st.advance(StepAwaitingDueDate, fieldDescription, text)
		}) {
			return Reply{}, nil
		}
		return Reply{Text: txtAskDue, Menu: MenuCancel}, nil

	case StepAwaitingDueDate:
		due, ok := datex.ParseUser(text)
		if !ok {
			return Reply{}, invalid("notice_entry.due", errBadDate, Reply{Text: txtBadDue, Menu: MenuCancel})
		}
		return r.saveNotice(ctx, ev, st, due, set)

	default:
		r.states.Clear(ev.UserID)
		return Reply{}, nil
	}
}

func (r *Router) saveNotice(ctx context.Context, ev Event, st State, due datex.Date, set Settings) (Reply, error) {
	creator := ev.UserID
	n, err := r.records.InsertNotice(ctx, storage.NewNotice{
		SubjectID:   st.Fields[fieldSubject],
		Title:       st.Fields[fieldTitle],
		Description: st.Fields[fieldDescription],
		DueDate:     due,
		CreatedBy:   &creator,
	})
	if err != nil {
		return Reply{}, persistence("notice_entry.save", err)
	}
	r.states.Clear(ev.UserID)

	r.log.Info("notice added", logx.Int64("id", n.ID), logx.String("subject", n.SubjectID), logx.String("due", datex.ToStorage(n.DueDate)), logx.Int64("by", ev.UserID))
	meta, _ := json.Marshal(map[string]any{"id": n.ID, "due": datex.ToStorage(n.DueDate), "title": n.Title})
	r.audit(storage.AuditEntry{
		ActorID:       ev.UserID,
		ActorUsername: ev.Username,
		ChatID:        ev.ChatID,
		Action:        "notice.add",
		Target:        n.SubjectID,
		OK:            1,
		MetaJSON:      string(meta),
	})
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeNoticeAdded, Data: eventbus.NoticeAdded{
		NoticeID:  n.ID,
		SubjectID: n.SubjectID,
		DueDate:   datex.ToStorage(n.DueDate),
		ActorID:   ev.UserID,
	}})

	menu := MenuMain
	if set.IsAdmin(ev.UserID) {
		menu = MenuAdmin
	}
	return Reply{Text: txtNoticeAdded, Menu: menu}, nil
}

// Broadcast: AwaitingText → dispatch.

func (r *Router) broadcastText(ctx context.Context, ev Event) (Reply, error) {
	body := strings.TrimSpace(ev.Text)
	if body == "" {
		return Reply{}, invalid("broadcast.text", errEmpty, Reply{Text: txtEmptyBcast, Menu: MenuCancel})
	}
	if !broadcast.FitsOneMessage(body) {
		return Reply{}, invalid("broadcast.text", errTooLong,
			Reply{Text: fmt.Sprintf(txtLongBcastF, kit.MaxTextRunes), Menu: MenuCancel})
	}
	// Cleared before dispatch so replies during delivery hit no stale flow.
	r.states.Clear(ev.UserID)

	ids, err := r.records.ListSubscribedIDs(ctx)
	if err != nil {
		return Reply{}, persistence("broadcast.recipients", err)
	}
	if r.bcast == nil {
		return Reply{}, delivery("broadcast.submit", broadcast.ErrNotRunning)
	}
	id, err := r.bcast.Submit(broadcast.Job{
		Text:        body,
		Recipients:  ids,
		InitiatorID: ev.UserID,
		OnDone:      r.broadcastDone(ev),
	})
	if err != nil {
		return Reply{}, delivery("broadcast.submit", err)
	}
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeBroadcastStarted, Data: eventbus.BroadcastStarted{
		JobID:       id,
		Recipients:  len(ids),
		InitiatorID: ev.UserID,
	}})
	return Reply{Text: txtBcastStarted}, nil
}

func (r *Router) broadcastDone(ev Event) func(broadcast.Report) {
	return func(rep broadcast.Report) {
		r.audit(storage.AuditEntry{
			ActorID:       ev.UserID,
			ActorUsername: ev.Username,
			ChatID:        ev.ChatID,
			Action:        "broadcast",
			Target:        rep.JobID,
			OK:            rep.Sent,
			Fail:          rep.Failed,
			TookMS:        rep.Took.Milliseconds(),
		})
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeBroadcastFinished, Data: eventbus.BroadcastFinished{
			JobID:       rep.JobID,
			Sent:        rep.Sent,
			Failed:      rep.Failed,
			Retried:     rep.Retried,
			Took:        rep.Took,
			InitiatorID: ev.UserID,
		}})
		if r.notify == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		summary := Reply{Text: fmt.Sprintf(txtBcastDoneF, rep.Sent, rep.Failed), Menu: MenuAdmin}
		if err := r.notify.Notify(ctx, ev.ChatID, summary); err != nil {
			r.log.Warn("broadcast summary not delivered", logx.String("job", rep.JobID), logx.Err(err))
		}
	}
}
