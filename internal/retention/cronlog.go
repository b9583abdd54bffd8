package retention

import (
	"fmt"

	logx "hwbot/pkg/logx"
)

// cronLogger adapts logx to cron.Logger. cron's Info lines are per-tick noise,
// so they go to debug.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, kv(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(kv(keysAndValues), logx.Err(err))...)
}

func kv(pairs []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(pairs[i]), pairs[i+1]))
	}
	return out
}
