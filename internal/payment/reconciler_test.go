package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karibu/internal/rentalapi"
)

// scriptedLister answers each FetchPayments call with the next scripted step.
// The last step repeats once the script runs out.
type scriptedLister struct {
	mu    sync.Mutex
	steps []func() ([]rentalapi.Payment, error)
	calls int
}

func (l *scriptedLister) FetchPayments(context.Context, string) ([]rentalapi.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.calls
	l.calls++
	if i >= len(l.steps) {
		i = len(l.steps) - 1
	}
	return l.steps[i]()
}

func (l *scriptedLister) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func notFound() ([]rentalapi.Payment, error) { return nil, nil }

func withStatus(id, status string) func() ([]rentalapi.Payment, error) {
	return func() ([]rentalapi.Payment, error) {
		return []rentalapi.Payment{{CheckoutRequestID: id, Status: status}}, nil
	}
}

func fastConfig(maxAttempts int) ReconcilerConfig {
	return ReconcilerConfig{
		Interval:       time.Millisecond,
		MaxAttempts:    maxAttempts,
		AttemptTimeout: 100 * time.Millisecond,
	}
}

func waitDone(t *testing.T, run *Run) {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestReconcilerSucceedsAndStopsPolling(t *testing.T) {
	lister := &scriptedLister{steps: []func() ([]rentalapi.Payment, error){
		notFound,
		notFound,
		withStatus("ws_CO_1", rentalapi.PaymentPaid),
	}}
	rc := NewReconciler(lister, fastConfig(30), testLogger())

	run := rc.Start(context.Background(), "ws_CO_1", nil)
	waitDone(t, run)

	assert.Equal(t, OutcomeSucceeded, run.Outcome())
	assert.Equal(t, 3, run.Attempts())
	// No attempt after the terminal status.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, lister.callCount())
}

func TestReconcilerFailedStatus(t *testing.T) {
	lister := &scriptedLister{steps: []func() ([]rentalapi.Payment, error){
		withStatus("ws_CO_1", rentalapi.PaymentFailed),
	}}
	rc := NewReconciler(lister, fastConfig(30), testLogger())

	run := rc.Start(context.Background(), "ws_CO_1", nil)
	waitDone(t, run)

	assert.Equal(t, OutcomeFailed, run.Outcome())
	assert.Equal(t, 1, run.Attempts())
}

func TestReconcilerPendingIsNotTerminal(t *testing.T) {
	lister := &scriptedLister{steps: []func() ([]rentalapi.Payment, error){
		withStatus("ws_CO_1", rentalapi.PaymentPending),
		withStatus("ws_CO_1", rentalapi.PaymentPaid),
	}}
	rc := NewReconciler(lister, fastConfig(30), testLogger())

	run := rc.Start(context.Background(), "ws_CO_1", nil)
	waitDone(t, run)

	assert.Equal(t, OutcomeSucceeded, run.Outcome())
	assert.Equal(t, 2, run.Attempts())
}

func TestReconcilerTimesOutAfterMaxAttempts(t *testing.T) {
	lister := &scriptedLister{steps: []func() ([]rentalapi.Payment, error){notFound}}
	rc := NewReconciler(lister, fastConfig(5), testLogger())

	run := rc.Start(context.Background(), "ws_CO_1", nil)
	waitDone(t, run)

	assert.Equal(t, OutcomeTimedOut, run.Outcome())
	assert.Equal(t, 5, run.Attempts())
	assert.Equal(t, 5, lister.callCount())
}

func TestReconcilerSwallowsFetchErrors(t *testing.T) {
	lister := &scriptedLister{steps: []func() ([]rentalapi.Payment, error){
		func() ([]rentalapi.Payment, error) { return nil, errors.New("502") },
		func() ([]rentalapi.Payment, error) { return nil, errors.New("timeout") },
		withStatus("ws_CO_1", rentalapi.PaymentPaid),
	}}
	rc := NewReconciler(lister, fastConfig(30), testLogger())

	run := rc.Start(context.Background(), "ws_CO_1", nil)
	waitDone(t, run)

	// Transient errors count as "not found yet", never end the run.
	assert.Equal(t, OutcomeSucceeded, run.Outcome())
	assert.Equal(t, 3, run.Attempts())
}

func TestReconcilerIgnoresOtherCorrelationIDs(t *testing.T) {
	lister := &scriptedLister{steps: []func() ([]rentalapi.Payment, error){
		withStatus("ws_CO_OTHER", rentalapi.PaymentPaid),
		withStatus("ws_CO_1", rentalapi.PaymentPaid),
	}}
	rc := NewReconciler(lister, fastConfig(30), testLogger())

	run := rc.Start(context.Background(), "ws_CO_1", nil)
	waitDone(t, run)

	assert.Equal(t, OutcomeSucceeded, run.Outcome())
	assert.Equal(t, 2, run.Attempts())
}

func TestReconcilerCancelPreventsNextAttempt(t *testing.T) {
	block := make(chan struct{})
	lister := &scriptedLister{steps: []func() ([]rentalapi.Payment, error){
		func() ([]rentalapi.Payment, error) { <-block; return nil, nil },
	}}
	cfg := fastConfig(30)
	cfg.Interval = time.Hour // cancel must not wait out the interval
	rc := NewReconciler(lister, cfg, testLogger())

	run := rc.Start(context.Background(), "ws_CO_1", nil)
	close(block)

	// Let the first attempt complete, then cancel during the wait.
	require.Eventually(t, func() bool { return run.Attempts() == 1 }, time.Second, time.Millisecond)
	run.Cancel()
	waitDone(t, run)

	assert.Equal(t, OutcomeCanceled, run.Outcome())
	assert.Equal(t, 1, lister.callCount())
}

func TestReconcilerCancelDiscardsInFlightResponse(t *testing.T) {
	inFlight := make(chan struct{})
	release := make(chan struct{})
	var attempts []int
	lister := &scriptedLister{steps: []func() ([]rentalapi.Payment, error){
		func() ([]rentalapi.Payment, error) {
			close(inFlight)
			<-release
			return []rentalapi.Payment{{CheckoutRequestID: "ws_CO_1", Status: rentalapi.PaymentPaid}}, nil
		},
	}}
	rc := NewReconciler(lister, fastConfig(30), testLogger())

	run := rc.Start(context.Background(), "ws_CO_1", func(n int) { attempts = append(attempts, n) })

	<-inFlight
	// Cancel lands while the poll is in flight. The attempt is left to
	// finish, but its response must be discarded.
	run.Cancel()
	close(release)
	waitDone(t, run)

	assert.Equal(t, OutcomeCanceled, run.Outcome())
	assert.Empty(t, attempts)
}

func TestReconcilerCancelIdempotent(t *testing.T) {
	lister := &scriptedLister{steps: []func() ([]rentalapi.Payment, error){notFound}}
	rc := NewReconciler(lister, fastConfig(30), testLogger())

	run := rc.Start(context.Background(), "ws_CO_1", nil)
	run.Cancel()
	run.Cancel()
	waitDone(t, run)

	assert.Equal(t, OutcomeCanceled, run.Outcome())
}

func TestReconcilerContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lister := &scriptedLister{steps: []func() ([]rentalapi.Payment, error){notFound}}
	cfg := fastConfig(30)
	cfg.Interval = time.Hour
	rc := NewReconciler(lister, cfg, testLogger())

	run := rc.Start(ctx, "ws_CO_1", nil)
	require.Eventually(t, func() bool { return run.Attempts() == 1 }, time.Second, time.Millisecond)
	cancel()
	waitDone(t, run)

	assert.Equal(t, OutcomeCanceled, run.Outcome())
}

func TestReconcilerOnAttemptCallback(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	lister := &scriptedLister{steps: []func() ([]rentalapi.Payment, error){
		notFound,
		notFound,
		withStatus("ws_CO_1", rentalapi.PaymentPaid),
	}}
	rc := NewReconciler(lister, fastConfig(30), testLogger())

	run := rc.Start(context.Background(), "ws_CO_1", func(n int) {
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})
	waitDone(t, run)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestNewReconcilerDefaults(t *testing.T) {
	rc := NewReconciler(&scriptedLister{steps: []func() ([]rentalapi.Payment, error){notFound}}, ReconcilerConfig{}, testLogger())

	assert.Equal(t, 4*time.Second, rc.config.Interval)
	assert.Equal(t, 30, rc.config.MaxAttempts)
	assert.Equal(t, 10*time.Second, rc.config.AttemptTimeout)
}
