package wizard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karibu/internal/rentalapi"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func fp(v float64) *float64 { return &v }

func testRoom() *rentalapi.Room {
	return &rentalapi.Room{ID: 7, Name: "Deluxe Tent", BaseRate: 150, RentalSlug: "mara-lodge"}
}

func TestClearDatesOnlyOnCalendar(t *testing.T) {
	w := New()
	s := newSession(1, "mara-lodge", 1)
	advance(t, w, s, StateSummary)
	require.Equal(t, int64(300), s.DerivedPrice)

	// A tap on a stale calendar message lands here from a later screen. It
	// must not drop the range and silently shrink the total to one night.
	err := w.ClearDates(s)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.True(t, s.HasDates())
	assert.Equal(t, day("2026-09-01"), s.CheckIn)
	assert.Equal(t, day("2026-09-03"), s.CheckOut)
	assert.Equal(t, int64(300), s.DerivedPrice)

	require.NoError(t, w.ProceedToCheckout(s, ""))
	assert.Equal(t, int64(300), s.DerivedPrice)
}

func TestClearDatesOnCalendar(t *testing.T) {
	w := New()
	s := newSession(1, "mara-lodge", 1)
	require.NoError(t, w.SetDates(s, day("2026-09-01"), day("2026-09-03")))

	require.NoError(t, w.ClearDates(s))
	assert.False(t, s.HasDates())
}

// advance walks a fresh session forward to the given state.
func advance(t *testing.T, w *Wizard, s *Session, to State) {
	t.Helper()
	require.NoError(t, w.SetDates(s, day("2026-09-01"), day("2026-09-03")))
	if s.State == to {
		return
	}
	require.NoError(t, w.ProceedToRooms(s))
	if s.State == to {
		return
	}
	require.NoError(t, w.ChooseRoom(s, testRoom()))
	if s.State == to {
		return
	}
	require.NoError(t, w.ConfirmRoom(s))
	if s.State == to {
		return
	}
	require.NoError(t, w.ProceedToCheckout(s, ""))
}

func TestSetDatesNormalizesReversedRange(t *testing.T) {
	w := New()
	s := newSession(1, "mara-lodge", 1)

	require.NoError(t, w.SetDates(s, day("2026-09-03"), day("2026-09-01")))
	assert.Equal(t, day("2026-09-01"), s.CheckIn)
	assert.Equal(t, day("2026-09-03"), s.CheckOut)
}

func TestSetDatesRequiresBothEnds(t *testing.T) {
	w := New()
	s := newSession(1, "mara-lodge", 1)

	err := w.SetDates(s, day("2026-09-01"), time.Time{})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.False(t, s.HasDates())
}

func TestSetDatesOnlyOnCalendar(t *testing.T) {
	w := New()
	s := newSession(1, "mara-lodge", 1)
	advance(t, w, s, StateSelectRoom)

	err := w.SetDates(s, day("2026-09-05"), day("2026-09-07"))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, day("2026-09-01"), s.CheckIn, "dates unchanged after refusal")
}

func TestSetGuests(t *testing.T) {
	w := New()
	s := newSession(1, "mara-lodge", 1)

	require.NoError(t, w.SetGuests(s, 2, 1))
	assert.Equal(t, 2, s.Adults)
	assert.Equal(t, 1, s.Children)

	err := w.SetGuests(s, 0, 0)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 2, s.Adults, "counts unchanged after refusal")

	err = w.SetGuests(s, 1, -1)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestProceedToRoomsRequiresDates(t *testing.T) {
	w := New()
	s := newSession(1, "mara-lodge", 1)

	err := w.ProceedToRooms(s)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, StateCalendar, s.State)
	assert.NotEmpty(t, s.StatusMessage)

	require.NoError(t, w.SetDates(s, day("2026-09-01"), day("2026-09-03")))
	require.NoError(t, w.ProceedToRooms(s))
	assert.Equal(t, StateSelectRoom, s.State)
	assert.Empty(t, s.StatusMessage)
}

func TestChooseRoomSnapshotsAndResolvesSlug(t *testing.T) {
	w := New()
	s := newSession(1, "session-slug", 1)
	advance(t, w, s, StateSelectRoom)

	room := testRoom()
	room.RentalSlug = ""
	require.NoError(t, w.ChooseRoom(s, room))

	assert.Equal(t, StateRoomDetail, s.State)
	// Slug falls through to the session's rental.
	assert.Equal(t, "session-slug", s.RoomRentalSlug)

	// The stored room is a snapshot, not an alias.
	room.Name = "mutated"
	assert.Equal(t, "Deluxe Tent", s.Room.Name)
}

func TestChooseRoomRecalculatesPrice(t *testing.T) {
	w := New()
	s := newSession(1, "mara-lodge", 1)
	advance(t, w, s, StateSelectRoom)

	require.NoError(t, w.ChooseRoom(s, testRoom()))
	assert.Equal(t, int64(300), s.DerivedPrice) // 150 x 2 nights
}

func TestChooseRoomAuthoritativeTotal(t *testing.T) {
	w := New()
	s := newSession(1, "mara-lodge", 1)
	advance(t, w, s, StateSelectRoom)

	room := testRoom()
	room.TotalPrice = fp(280)
	require.NoError(t, w.ChooseRoom(s, room))
	assert.Equal(t, int64(280), s.DerivedPrice)
}

func TestProceedToCheckoutGuardsBookingRefs(t *testing.T) {
	w := New()
	s := newSession(1, "", 1) // no session slug either
	advance(t, w, s, StateSelectRoom)

	room := testRoom()
	room.RentalSlug = ""
	require.NoError(t, w.ChooseRoom(s, room))
	require.NoError(t, w.ConfirmRoom(s))

	err := w.ProceedToCheckout(s, "")
	require.ErrorIs(t, err, ErrMissingBookingRef)
	assert.False(t, IsValidation(err))
	assert.Equal(t, StateSummary, s.State, "no transition on guard failure")
	assert.Contains(t, s.StatusMessage, "contact support")
}

func TestProceedToCheckoutCarriesSpecialRequest(t *testing.T) {
	w := New()
	s := newSession(1, "mara-lodge", 1)
	advance(t, w, s, StateSummary)

	require.NoError(t, w.ProceedToCheckout(s, "late arrival"))
	assert.Equal(t, StateCheckout, s.State)
	assert.Equal(t, "late arrival", s.SpecialRequest)
}

func TestBackWalksTheFlow(t *testing.T) {
	w := New()
	s := newSession(1, "mara-lodge", 1)
	advance(t, w, s, StateCheckout)

	require.NoError(t, w.Back(s))
	assert.Equal(t, StateSummary, s.State)
	require.NoError(t, w.Back(s))
	assert.Equal(t, StateSelectRoom, s.State)
	require.NoError(t, w.Back(s))
	assert.Equal(t, StateCalendar, s.State)

	err := w.Back(s)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestCloseFromAnywhere(t *testing.T) {
	for _, target := range []State{StateCalendar, StateSelectRoom, StateRoomDetail, StateSummary, StateCheckout} {
		w := New()
		s := newSession(1, "mara-lodge", 1)
		advance(t, w, s, target)

		w.Close(s)
		assert.Equal(t, StateClosed, s.State)
	}
}

func TestPaymentPhaseMonotonic(t *testing.T) {
	s := newSession(1, "mara-lodge", 1)

	require.NoError(t, s.BeginPayment())
	assert.Error(t, s.BeginPayment(), "cannot restart an attempt in flight")

	require.NoError(t, s.MarkAwaiting("ws_CO_1"))
	assert.Error(t, s.BeginPayment(), "cannot restart while awaiting confirmation")
	assert.Error(t, s.MarkAwaiting("ws_CO_2"))

	require.NoError(t, s.ResolvePayment(PaymentSucceeded, ""))
	assert.Equal(t, PaymentSucceeded, s.PaymentSnapshot().Phase)

	// A stray late resolution of a terminal attempt is rejected.
	assert.Error(t, s.ResolvePayment(PaymentFailed, "late"))
	assert.Equal(t, PaymentSucceeded, s.PaymentSnapshot().Phase)
}

func TestPaymentRetryFromTerminal(t *testing.T) {
	s := newSession(1, "mara-lodge", 1)

	require.NoError(t, s.BeginPayment())
	require.NoError(t, s.MarkAwaiting("ws_CO_1"))
	require.NoError(t, s.ResolvePayment(PaymentTimedOut, "no confirmation received"))

	// Retry starts a fresh attempt.
	require.NoError(t, s.BeginPayment())
	snap := s.PaymentSnapshot()
	assert.Equal(t, PaymentInitiating, snap.Phase)
	assert.Empty(t, snap.CheckoutRequestID)
	assert.Zero(t, snap.Attempt)
}

func TestPaymentResolveRequiresActiveAttempt(t *testing.T) {
	s := newSession(1, "mara-lodge", 1)

	assert.Error(t, s.ResolvePayment(PaymentSucceeded, ""), "no attempt to resolve")
	assert.Error(t, s.ResolvePayment(PaymentInitiating, ""), "non-terminal target")
}

func TestPaymentAbandonReturnsToIdle(t *testing.T) {
	s := newSession(1, "mara-lodge", 1)

	require.NoError(t, s.BeginPayment())
	require.NoError(t, s.AbandonPayment("Request accepted for processing"))

	snap := s.PaymentSnapshot()
	assert.Equal(t, PaymentIdle, snap.Phase)
	assert.Equal(t, "Request accepted for processing", s.StatusMessage)

	assert.Error(t, s.AbandonPayment("again"), "only an initiating attempt can be abandoned")
	require.NoError(t, s.BeginPayment())
}

func TestRecordPollAttemptOnlyWhileAwaiting(t *testing.T) {
	s := newSession(1, "mara-lodge", 1)

	s.RecordPollAttempt(3)
	assert.Zero(t, s.PaymentSnapshot().Attempt)

	require.NoError(t, s.BeginPayment())
	require.NoError(t, s.MarkAwaiting("ws_CO_1"))
	s.RecordPollAttempt(3)
	assert.Equal(t, 3, s.PaymentSnapshot().Attempt)

	require.NoError(t, s.ResolvePayment(PaymentSucceeded, ""))
	s.RecordPollAttempt(9)
	assert.Equal(t, 3, s.PaymentSnapshot().Attempt, "late poll must not touch a terminal attempt")
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore(time.Minute)

	assert.Nil(t, store.Get(1))

	s := store.GetOrCreate(1, "mara-lodge")
	require.NotNil(t, s)
	assert.Equal(t, StateCalendar, s.State)
	assert.Same(t, s, store.GetOrCreate(1, "mara-lodge"))

	fresh := store.Reset(1, "mara-lodge")
	assert.NotSame(t, s, fresh)

	store.Delete(1)
	assert.Nil(t, store.Get(1))
}

func TestSessionStoreGetSkipsExpired(t *testing.T) {
	store := NewSessionStore(time.Minute)

	s := store.GetOrCreate(1, "mara-lodge")
	require.NotNil(t, store.Get(1))

	s.UpdatedAt = time.Now().Add(-2 * time.Minute)
	assert.Nil(t, store.Get(1), "an idle session past its timeout is gone")
}

func TestSessionStoreCleanup(t *testing.T) {
	store := NewSessionStore(time.Minute)

	s := store.GetOrCreate(1, "mara-lodge")
	s.UpdatedAt = time.Now().Add(-2 * time.Minute)
	store.GetOrCreate(2, "mara-lodge")

	removed := store.Cleanup()
	assert.Equal(t, 1, removed)
	assert.Nil(t, store.Get(1))
	assert.NotNil(t, store.Get(2))
}
