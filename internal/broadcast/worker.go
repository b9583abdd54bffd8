package broadcast

import (
	"context"
	"errors"

	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

func (s *Service) worker(ctx context.Context, queue <-chan Job) {
	for {
		// stop wins over queued work
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case j := <-queue:
			rep := s.Run(ctx, j)
			if j.OnDone != nil && ctx.Err() == nil {
				j.OnDone(rep)
			}
		}
	}
}

// Run delivers j to every recipient in order and returns the tally.
func (s *Service) Run(ctx context.Context, j Job) Report {
	start := s.now()
	rep := Report{JobID: j.ID, Total: len(j.Recipients)}
	log := s.log.With(logx.String("job", j.ID))
	log.Info("broadcast job started", logx.Int("total", rep.Total), logx.Int64("initiator", j.InitiatorID))

	for _, uid := range j.Recipients {
		if ctx.Err() != nil {
			break
		}
		retried, err := s.deliver(ctx, uid, j.Text)
		if retried {
			rep.Retried++
		}
		if err != nil {
			rep.Failed++
			log.Warn("broadcast send failed", logx.Int64("user_id", uid), logx.Bool("retried", retried), logx.Err(err))
			continue
		}
		rep.Sent++
	}
	rep.Took = s.now().Sub(start)

	fields := []logx.Field{logx.Int("sent", rep.Sent), logx.Int("failed", rep.Failed), logx.Int("retried", rep.Retried), logx.Duration("took", rep.Took)}
	if rep.Failed > 0 {
		log.Warn("broadcast job finished with failures", fields...)
	} else {
		log.Info("broadcast job finished", fields...)
	}
	return rep
}

// deliver sends to one recipient. Only a flood error is retried, once, after
// waiting RetryAfter plus the configured margin.
func (s *Service) deliver(ctx context.Context, uid int64, text string) (retried bool, err error) {
	err = s.attempt(ctx, uid, text)
	var fe *kit.FloodError
	if err == nil || !errors.As(err, &fe) {
		return false, err
	}
	wait := fe.RetryAfter + s.cfg.FloodMargin
	s.log.Debug("flood wait before retry", logx.Int64("user_id", uid), logx.Duration("wait", wait))
	if serr := s.sleep(ctx, wait); serr != nil {
		return true, serr
	}
	return true, s.attempt(ctx, uid, text)
}

func (s *Service) attempt(ctx context.Context, uid int64, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	actx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	_, err := s.sender.SendText(actx, kit.ChatTarget{ChatID: uid}, text, &kit.SendOptions{DisablePreview: true})
	return err
}
