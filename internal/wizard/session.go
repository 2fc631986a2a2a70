package wizard

import (
	"fmt"
	"sync"
	"time"

	"karibu/internal/pricing"
	"karibu/internal/rentalapi"
)

// PaymentPhase is the stage of the current checkout attempt.
type PaymentPhase string

const (
	PaymentIdle       PaymentPhase = "idle"
	PaymentInitiating PaymentPhase = "initiating"
	PaymentAwaiting   PaymentPhase = "awaiting_confirmation"
	PaymentSucceeded  PaymentPhase = "succeeded"
	PaymentFailed     PaymentPhase = "failed"
	PaymentTimedOut   PaymentPhase = "timed_out"
)

// Terminal reports whether the phase ends a checkout attempt.
func (p PaymentPhase) Terminal() bool {
	return p == PaymentSucceeded || p == PaymentFailed || p == PaymentTimedOut
}

// PaymentState tracks one checkout attempt. Transitions are monotonic:
// Idle → Initiating → AwaitingConfirmation → terminal; a retry requires a
// terminal phase first.
type PaymentState struct {
	Phase             PaymentPhase
	CheckoutRequestID string
	Attempt           int
	Reason            string
}

// Session is one guest's booking flow, owned by a single chat. CheckIn and
// CheckOut are either both set or both zero.
type Session struct {
	mu sync.Mutex

	ChatID int64
	State  State

	CheckIn  time.Time
	CheckOut time.Time
	Adults   int
	Children int

	// RentalSlug is the session-level rental, used as the fallback when a
	// chosen room carries no rental identifier of its own.
	RentalSlug string

	// Room is an immutable snapshot of the selected room; RoomRentalSlug is
	// the identifier resolved at selection time.
	Room           *rentalapi.Room
	RoomRentalSlug string

	// AvailableRooms is the last room listing shown, kept so a selection
	// callback can resolve its room snapshot.
	AvailableRooms []rentalapi.Room

	// DerivedPrice is recomputed whenever the room or dates change; it is
	// never stored apart from its inputs.
	DerivedPrice int64

	SpecialRequest string
	Payment        PaymentState
	StatusMessage  string

	// Prices caches nightly prices for the calendar screen; one cache per
	// session, discarded with it.
	Prices      *pricing.Cache
	ActiveMonth time.Time

	StartedAt time.Time
	UpdatedAt time.Time
}

func newSession(chatID int64, rentalSlug string, adults int) *Session {
	now := time.Now()
	return &Session{
		ChatID:      chatID,
		State:       StateCalendar,
		Adults:      adults,
		RentalSlug:  rentalSlug,
		Payment:     PaymentState{Phase: PaymentIdle},
		Prices:      pricing.NewCache(),
		ActiveMonth: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *Session) setState(state State) {
	s.State = state
	s.UpdatedAt = time.Now()
}

// HasDates reports whether a full date range is selected.
func (s *Session) HasDates() bool {
	return !s.CheckIn.IsZero() && !s.CheckOut.IsZero()
}

// IsExpired checks if the session has been idle longer than timeout.
func (s *Session) IsExpired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.UpdatedAt) > timeout
}

// BeginPayment starts a checkout attempt. Allowed from Idle or from any
// terminal phase (retry); an attempt still in flight cannot be restarted.
func (s *Session) BeginPayment() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Payment.Phase != PaymentIdle && !s.Payment.Phase.Terminal() {
		return fmt.Errorf("payment attempt already in progress (phase %s)", s.Payment.Phase)
	}
	s.Payment = PaymentState{Phase: PaymentInitiating}
	s.StatusMessage = ""
	s.UpdatedAt = time.Now()
	return nil
}

// MarkAwaiting records the gateway's correlation id and enters the
// confirmation wait.
func (s *Session) MarkAwaiting(checkoutRequestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Payment.Phase != PaymentInitiating {
		return fmt.Errorf("cannot await confirmation from phase %s", s.Payment.Phase)
	}
	s.Payment.Phase = PaymentAwaiting
	s.Payment.CheckoutRequestID = checkoutRequestID
	s.Payment.Attempt = 0
	s.UpdatedAt = time.Now()
	return nil
}

// RecordPollAttempt notes the latest reconciliation attempt number.
func (s *Session) RecordPollAttempt(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Payment.Phase == PaymentAwaiting {
		s.Payment.Attempt = n
	}
}

// AbandonPayment ends an attempt that never obtained a correlation id, so
// there is nothing to reconcile and no terminal verdict to record. The phase
// returns to Idle and the gateway's wording is kept as the status.
func (s *Session) AbandonPayment(status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Payment.Phase != PaymentInitiating {
		return fmt.Errorf("cannot abandon payment from phase %s", s.Payment.Phase)
	}
	s.Payment = PaymentState{Phase: PaymentIdle}
	s.StatusMessage = status
	s.UpdatedAt = time.Now()
	return nil
}

// ResolvePayment moves the attempt to a terminal phase. Only Initiating or
// AwaitingConfirmation can resolve; a stray late resolution of an already
// terminal attempt is rejected rather than applied.
func (s *Session) ResolvePayment(phase PaymentPhase, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !phase.Terminal() {
		return fmt.Errorf("%s is not a terminal payment phase", phase)
	}
	if s.Payment.Phase != PaymentInitiating && s.Payment.Phase != PaymentAwaiting {
		return fmt.Errorf("cannot resolve payment from phase %s", s.Payment.Phase)
	}
	s.Payment.Phase = phase
	s.Payment.Reason = reason
	s.UpdatedAt = time.Now()
	return nil
}

// PaymentSnapshot returns a copy of the payment state.
func (s *Session) PaymentSnapshot() PaymentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Payment
}

// SessionStore manages booking sessions keyed by chat id.
type SessionStore struct {
	sessions map[int64]*Session
	mu       sync.RWMutex
	timeout  time.Duration
}

// NewSessionStore creates a session store with the given idle timeout.
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[int64]*Session),
		timeout:  timeout,
	}
}

// Get returns the live session for a chat, or nil. An expired session is
// treated as absent; Cleanup removes it later.
func (ss *SessionStore) Get(chatID int64) *Session {
	ss.mu.RLock()
	session := ss.sessions[chatID]
	ss.mu.RUnlock()

	if session == nil || session.IsExpired(ss.timeout) {
		return nil
	}
	return session
}

// GetOrCreate returns the existing session or starts a fresh one.
func (ss *SessionStore) GetOrCreate(chatID int64, rentalSlug string) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	session, ok := ss.sessions[chatID]
	if ok && !session.IsExpired(ss.timeout) {
		return session
	}

	session = newSession(chatID, rentalSlug, 1)
	ss.sessions[chatID] = session
	return session
}

// Reset discards any existing session and starts a fresh one.
func (ss *SessionStore) Reset(chatID int64, rentalSlug string) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	session := newSession(chatID, rentalSlug, 1)
	ss.sessions[chatID] = session
	return session
}

// Delete removes a session.
func (ss *SessionStore) Delete(chatID int64) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, chatID)
}

// Cleanup removes expired sessions and returns how many were dropped.
func (ss *SessionStore) Cleanup() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	removed := 0
	for chatID, session := range ss.sessions {
		if session.IsExpired(ss.timeout) {
			delete(ss.sessions, chatID)
			removed++
		}
	}
	return removed
}
