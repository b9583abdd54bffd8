package conversation

import "time"

type Flow string

const (
	FlowDateLookup  Flow = "date_lookup"
	FlowNoticeEntry Flow = "notice_entry"
	FlowBroadcast   Flow = "broadcast"
)

type Step string

const (
	StepAwaitingDate        Step = "awaiting_date"
	StepAwaitingSubject     Step = "awaiting_subject"
	StepAwaitingTitle       Step = "awaiting_title"
	StepAwaitingDescription Step = "awaiting_description"
	StepAwaitingDueDate     Step = "awaiting_due_date"
	StepAwaitingText        Step = "awaiting_text"
)

// Field keys collected by the notice entry flow.
const (
	fieldSubject     = "subject_id"
	fieldTitle       = "title"
	fieldDescription = "description"
)

// State is a user's position inside a flow.
type State struct {
	Flow      Flow
	Step      Step
	Fields    map[string]string
	UpdatedAt time.Time
}

func newState(f Flow, s Step) State {
	return State{Flow: f, Step: s, Fields: map[string]string{}}
}

// advance returns a copy moved to step with key set to value.
func (s State) advance(step Step, key, value string) State {
	fields := make(map[string]string, len(s.Fields)+1)
	for k, v := range s.Fields {
		fields[k] = v
	}
	fields[key] = value
	return State{Flow: s.Flow, Step: step, Fields: fields}
}

func (s State) at(f Flow, step Step) bool { return s.Flow == f && s.Step == step }

// takesFreeText reports whether the step stores input verbatim, so only
// /cancel keeps its command meaning there.
func (s State) takesFreeText() bool {
	return s.at(FlowNoticeEntry, StepAwaitingTitle) || s.at(FlowNoticeEntry, StepAwaitingDescription)
}
