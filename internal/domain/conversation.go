// Package domain contains the core chat entities and the persistence ports
// the conversation engine depends on.
package domain

// State is the conversation state of a session.
type State string

const (
	StateIdle         State = "idle"
	StateLeadName     State = "lead_name"
	StateLeadContact  State = "lead_contact"
	StateLeadProject  State = "lead_project"
	StateLeadBudget   State = "lead_budget"
	StateLeadTimeline State = "lead_timeline"
	StateScheduleDate State = "schedule_date"
	StateScheduleTime State = "schedule_time"
)

// Flow groups the collection states that make up one multi-turn exchange.
type Flow int

const (
	FlowNone Flow = iota
	FlowLead
	FlowSchedule
)

func (f Flow) String() string {
	switch f {
	case FlowLead:
		return "lead"
	case FlowSchedule:
		return "schedule"
	default:
		return "none"
	}
}

// Field names a value collected by a flow.
type Field string

const (
	FieldName     Field = "name"
	FieldContact  Field = "contact"
	FieldProject  Field = "project"
	FieldBudget   Field = "budget"
	FieldTimeline Field = "timeline"
	FieldDate     Field = "date"
	FieldTime     Field = "time"
)

// Step describes one collection state: which field the user's answer fills
// and where the conversation goes afterwards. Next is StateIdle for the
// final step of a flow.
type Step struct {
	State State
	Flow  Flow
	Field Field
	Next  State
}

// Final reports whether completing this step finishes its flow.
func (s Step) Final() bool {
	return s.Next == StateIdle
}

var steps = map[State]Step{
	StateLeadName:     {StateLeadName, FlowLead, FieldName, StateLeadContact},
	StateLeadContact:  {StateLeadContact, FlowLead, FieldContact, StateLeadProject},
	StateLeadProject:  {StateLeadProject, FlowLead, FieldProject, StateLeadBudget},
	StateLeadBudget:   {StateLeadBudget, FlowLead, FieldBudget, StateLeadTimeline},
	StateLeadTimeline: {StateLeadTimeline, FlowLead, FieldTimeline, StateIdle},
	StateScheduleDate: {StateScheduleDate, FlowSchedule, FieldDate, StateScheduleTime},
	StateScheduleTime: {StateScheduleTime, FlowSchedule, FieldTime, StateIdle},
}

// Step returns the collection step for s. ok is false for StateIdle and
// unknown states.
func (s State) Step() (step Step, ok bool) {
	step, ok = steps[s]
	return step, ok
}

// Flow returns the flow s belongs to.
func (s State) Flow() Flow {
	if step, ok := steps[s]; ok {
		return step.Flow
	}
	return FlowNone
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := steps[s]
	return ok || s == StateIdle
}

// Event is a non-text conversation trigger.
type Event string

// EventWelcome asks for the greeting without advancing the conversation.
const EventWelcome Event = "WELCOME"

// Input is one inbound conversation turn.
type Input struct {
	Text  string
	Event Event
}

// IsWelcome reports whether the turn is the welcome event.
func (in Input) IsWelcome() bool {
	return in.Event == EventWelcome
}

// Response is the single reply produced for a turn.
type Response struct {
	Response string `json:"response"`
}
