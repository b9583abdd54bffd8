package app

import (
	"context"

	"hwbot/internal/eventbus"
	logx "hwbot/pkg/logx"
)

// logEvents writes bus traffic to the log until ctx is done.
func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	log := a.log.With(logx.String("comp", "events"))
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch d := e.Data.(type) {
			case eventbus.NoticeAdded:
				log.Info("notice added", logx.Int64("id", d.NoticeID), logx.String("subject", d.SubjectID), logx.String("due", d.DueDate))
			case eventbus.BroadcastFinished:
				log.Info("broadcast finished", logx.String("job", d.JobID), logx.Int("sent", d.Sent), logx.Int("failed", d.Failed))
			default:
				log.Debug("event", logx.String("type", string(e.Type)))
			}
		}
	}
}
