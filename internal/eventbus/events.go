package eventbus

import "time"

// Payloads carried in Event.Data, keyed by Event.Type.

type NoticeAdded struct {
	NoticeID  int64
	SubjectID string
	DueDate   string
	ActorID   int64
}

type BroadcastStarted struct {
	JobID       string
	Recipients  int
	InitiatorID int64
}

type BroadcastFinished struct {
	JobID       string
	Sent        int
	Failed      int
	Retried     int
	Took        time.Duration
	InitiatorID int64
}

type RetentionSwept struct {
	Cutoff  string
	Deleted int
	Err     string
}

type ConfigReloaded struct {
	Changed []string
}
