// Package wizard implements the booking flow state machine: calendar, room
// selection, room detail, summary and checkout, with guarded transitions and
// a monotonic payment state per checkout attempt.
package wizard

// State represents the current screen of the booking flow.
type State string

const (
	StateCalendar   State = "calendar"
	StateSelectRoom State = "select_room"
	StateRoomDetail State = "room_detail"
	StateSummary    State = "summary"
	StateCheckout   State = "checkout"
	StateClosed     State = "closed"
)

// FSM manages state transitions for the booking flow.
type FSM struct {
	transitions map[State][]State
}

// NewFSM creates a new FSM with the flow's transitions: a linear forward
// path, explicit back edges, and a close exit from every state.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateCalendar:   {StateSelectRoom, StateClosed},
			StateSelectRoom: {StateRoomDetail, StateCalendar, StateClosed},
			StateRoomDetail: {StateSummary, StateSelectRoom, StateClosed},
			StateSummary:    {StateCheckout, StateSelectRoom, StateClosed},
			StateCheckout:   {StateSummary, StateClosed},
			StateClosed:     {},
		},
	}
}

// CanTransition checks if a transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition updates the session state if the transition is allowed.
func (f *FSM) Transition(s *Session, to State) bool {
	if f.CanTransition(s.State, to) {
		s.setState(to)
		return true
	}
	return false
}

// backTargets maps each state to the screen its back action returns to.
// Summary goes back to room selection ("add another room").
var backTargets = map[State]State{
	StateSelectRoom: StateCalendar,
	StateRoomDetail: StateSelectRoom,
	StateSummary:    StateSelectRoom,
	StateCheckout:   StateSummary,
}
