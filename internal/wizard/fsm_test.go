package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFSMTransitions(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		name    string
		from    State
		to      State
		allowed bool
	}{
		{"calendar to rooms", StateCalendar, StateSelectRoom, true},
		{"calendar close", StateCalendar, StateClosed, true},
		{"calendar cannot skip to checkout", StateCalendar, StateCheckout, false},
		{"rooms to detail", StateSelectRoom, StateRoomDetail, true},
		{"rooms back to calendar", StateSelectRoom, StateCalendar, true},
		{"detail to summary", StateRoomDetail, StateSummary, true},
		{"detail back to rooms", StateRoomDetail, StateSelectRoom, true},
		{"detail cannot reach checkout", StateRoomDetail, StateCheckout, false},
		{"summary to checkout", StateSummary, StateCheckout, true},
		{"summary back to rooms", StateSummary, StateSelectRoom, true},
		{"summary cannot jump to calendar", StateSummary, StateCalendar, false},
		{"checkout back to summary", StateCheckout, StateSummary, true},
		{"checkout close", StateCheckout, StateClosed, true},
		{"checkout cannot restart", StateCheckout, StateCalendar, false},
		{"closed is terminal", StateClosed, StateCalendar, false},
		{"closed cannot close again", StateClosed, StateClosed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, fsm.CanTransition(tt.from, tt.to))
		})
	}
}

func TestFSMEveryScreenCanClose(t *testing.T) {
	fsm := NewFSM()
	for _, from := range []State{StateCalendar, StateSelectRoom, StateRoomDetail, StateSummary, StateCheckout} {
		assert.True(t, fsm.CanTransition(from, StateClosed), "close from %s", from)
	}
}

func TestFSMTransitionUpdatesSession(t *testing.T) {
	fsm := NewFSM()
	s := newSession(1, "mara-lodge", 1)

	assert.True(t, fsm.Transition(s, StateSelectRoom))
	assert.Equal(t, StateSelectRoom, s.State)

	assert.False(t, fsm.Transition(s, StateCheckout))
	assert.Equal(t, StateSelectRoom, s.State, "refused transition must not change state")
}

func TestBackTargets(t *testing.T) {
	assert.Equal(t, StateCalendar, backTargets[StateSelectRoom])
	assert.Equal(t, StateSelectRoom, backTargets[StateRoomDetail])
	// Summary goes back to room selection, serving "add another room".
	assert.Equal(t, StateSelectRoom, backTargets[StateSummary])
	assert.Equal(t, StateSummary, backTargets[StateCheckout])

	_, ok := backTargets[StateCalendar]
	assert.False(t, ok, "calendar is the first screen")
}
