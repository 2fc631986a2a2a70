package wizard

import (
	"errors"
	"fmt"
	"time"

	"karibu/internal/pricing"
	"karibu/internal/rentalapi"
)

// ValidationError is a guard refusal caused by user input. Its message is
// user-facing and is also written to the session's status message; the
// session state is left untouched.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// IsValidation reports whether err is a guard refusal.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrMissingBookingRef means the flow reached checkout without a resolved
// rental identifier or room id. This is a guard bug upstream, never user
// error.
var ErrMissingBookingRef = errors.New("room or rental identifier not resolved")

// Wizard applies guarded transitions to booking sessions.
type Wizard struct {
	fsm *FSM
}

// New creates a wizard.
func New() *Wizard {
	return &Wizard{fsm: NewFSM()}
}

func (w *Wizard) refuse(s *Session, msg string) error {
	s.StatusMessage = msg
	return &ValidationError{Msg: msg}
}

// SetDates selects the stay range on the calendar screen. Both ends must be
// given together; a reversed range is normalized.
func (w *Wizard) SetDates(s *Session, checkIn, checkOut time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateCalendar {
		return w.refuse(s, "Dates can only be changed on the calendar.")
	}
	if checkIn.IsZero() || checkOut.IsZero() {
		return w.refuse(s, "Please select start and end dates.")
	}
	if checkOut.Before(checkIn) {
		checkIn, checkOut = checkOut, checkIn
	}
	s.CheckIn = checkIn
	s.CheckOut = checkOut
	s.StatusMessage = ""
	s.recalcPrice()
	s.UpdatedAt = time.Now()
	return nil
}

// ClearDates drops the selected range. Guarded to the calendar screen like
// SetDates: a tap on a stale calendar message must not mutate a later screen.
func (w *Wizard) ClearDates(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateCalendar {
		return w.refuse(s, "Dates can only be changed on the calendar.")
	}
	s.CheckIn = time.Time{}
	s.CheckOut = time.Time{}
	s.recalcPrice()
	s.UpdatedAt = time.Now()
	return nil
}

// SetGuests updates guest counts; at least one adult, no negative children.
func (w *Wizard) SetGuests(s *Session, adults, children int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if adults < 1 {
		return w.refuse(s, "At least one adult is required.")
	}
	if children < 0 {
		return w.refuse(s, "Children count cannot be negative.")
	}
	s.Adults = adults
	s.Children = children
	s.UpdatedAt = time.Now()
	return nil
}

// ProceedToRooms moves from the calendar to room selection. Refused without
// a full date range.
func (w *Wizard) ProceedToRooms(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.HasDates() {
		return w.refuse(s, "Please select start and end dates.")
	}
	if !w.fsm.Transition(s, StateSelectRoom) {
		return w.refuse(s, "Room selection is not available from this screen.")
	}
	s.StatusMessage = ""
	return nil
}

// ChooseRoom snapshots the chosen room and moves to its detail screen. The
// rental identifier falls through the room's own slug to the session's; a
// missing identifier is tolerated here and caught hard at checkout.
func (w *Wizard) ChooseRoom(s *Session, room *rentalapi.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room == nil {
		return w.refuse(s, "Please choose a room.")
	}
	if !w.fsm.CanTransition(s.State, StateRoomDetail) {
		return w.refuse(s, "Please pick a room from the list first.")
	}

	snapshot := *room
	slug := snapshot.RentalSlug
	if slug == "" {
		slug = s.RentalSlug
	}
	s.Room = &snapshot
	s.RoomRentalSlug = slug
	s.recalcPrice()
	s.StatusMessage = ""
	w.fsm.Transition(s, StateRoomDetail)
	return nil
}

// ConfirmRoom moves from the detail screen to the summary.
func (w *Wizard) ConfirmRoom(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !w.fsm.Transition(s, StateSummary) {
		return w.refuse(s, "Nothing to confirm yet.")
	}
	s.StatusMessage = ""
	return nil
}

// ProceedToCheckout moves from the summary to checkout, carrying an optional
// special request. The room id and rental identifier are re-validated here
// even though earlier guards should have ensured them; reaching checkout
// without them indicates an upstream guard bug.
func (w *Wizard) ProceedToCheckout(s *Session, specialRequest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !w.fsm.CanTransition(s.State, StateCheckout) {
		return w.refuse(s, "Checkout is only available from the summary.")
	}
	if s.Room == nil || s.Room.ID == 0 || s.RoomRentalSlug == "" {
		s.StatusMessage = "Something went wrong with your booking. Please start again or contact support."
		return fmt.Errorf("checkout guard: %w", ErrMissingBookingRef)
	}
	s.SpecialRequest = specialRequest
	s.StatusMessage = ""
	w.fsm.Transition(s, StateCheckout)
	return nil
}

// Back returns to the immediately preceding screen. Summary goes back to
// room selection, which also serves "add another room".
func (w *Wizard) Back(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := backTargets[s.State]
	if !ok {
		return w.refuse(s, "There is no previous screen.")
	}
	if !w.fsm.Transition(s, target) {
		return w.refuse(s, "Cannot go back right now.")
	}
	s.StatusMessage = ""
	return nil
}

// Close is the side exit available from every screen; the session is
// discarded by the caller afterwards.
func (w *Wizard) Close(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(StateClosed)
}

// recalcPrice recomputes the derived total from the current room and dates.
// Caller holds the session lock.
func (s *Session) recalcPrice() {
	if s.Room == nil {
		s.DerivedPrice = 0
		return
	}
	s.DerivedPrice = pricing.ComputeTotal(s.Room, s.CheckIn, s.CheckOut)
}
