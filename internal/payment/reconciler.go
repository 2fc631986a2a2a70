package payment

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"karibu/internal/rentalapi"
)

// Outcome is the terminal result of a reconciliation run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCanceled  Outcome = "canceled"
)

// Lister fetches the payment listing the reconciler searches for its
// correlation id.
type Lister interface {
	FetchPayments(ctx context.Context, userID string) ([]rentalapi.Payment, error)
}

// ReconcilerConfig bounds the polling loop.
type ReconcilerConfig struct {
	// Interval between polls.
	Interval time.Duration
	// MaxAttempts before giving up with OutcomeTimedOut.
	MaxAttempts int
	// AttemptTimeout bounds a single listing fetch.
	AttemptTimeout time.Duration
}

// DefaultReconcilerConfig polls every 4 seconds for 30 attempts, about two
// minutes of waiting for the guest to answer the prompt on their phone.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Interval:       4 * time.Second,
		MaxAttempts:    30,
		AttemptTimeout: 10 * time.Second,
	}
}

// Reconciler discovers the asynchronous outcome of initiated payments. The
// gateway confirms out-of-band, so the only way to learn the result is to
// poll the payment listing until the correlation id shows up with a terminal
// status, or the attempt bound is reached.
type Reconciler struct {
	api    Lister
	config ReconcilerConfig
	logger *zerolog.Logger
}

// NewReconciler creates a reconciler. Zero config fields fall back to the
// defaults.
func NewReconciler(api Lister, config ReconcilerConfig, logger *zerolog.Logger) *Reconciler {
	def := DefaultReconcilerConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = def.AttemptTimeout
	}
	return &Reconciler{api: api, config: config, logger: logger}
}

// Run is a handle to one reconciliation loop. Cancel prevents the next
// scheduled attempt; an attempt already in flight is left to finish and its
// response is discarded.
type Run struct {
	checkoutRequestID string

	done       chan struct{}
	cancelCh   chan struct{}
	cancelOnce sync.Once

	mu       sync.Mutex
	outcome  Outcome
	attempts int
}

// Done is closed when the run reaches a terminal outcome or is canceled.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel stops the loop before its next attempt. Safe to call repeatedly.
func (r *Run) Cancel() {
	r.cancelOnce.Do(func() { close(r.cancelCh) })
}

// Outcome is valid once Done is closed.
func (r *Run) Outcome() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// Attempts returns how many polls have completed.
func (r *Run) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func (r *Run) canceled() bool {
	select {
	case <-r.cancelCh:
		return true
	default:
		return false
	}
}

func (r *Run) finish(o Outcome) {
	r.mu.Lock()
	r.outcome = o
	r.mu.Unlock()
	close(r.done)
}

func (r *Run) setAttempts(n int) {
	r.mu.Lock()
	r.attempts = n
	r.mu.Unlock()
}

// Start launches a reconciliation loop for a correlation id and returns its
// handle. onAttempt, if non-nil, is called after each completed poll with
// the attempt number. ctx bounds the whole run (session lifetime); Cancel on
// the handle is the cooperative stop.
func (rc *Reconciler) Start(ctx context.Context, checkoutRequestID string, onAttempt func(attempt int)) *Run {
	run := &Run{
		checkoutRequestID: checkoutRequestID,
		done:              make(chan struct{}),
		cancelCh:          make(chan struct{}),
	}
	go rc.loop(ctx, run, onAttempt)
	return run
}

func (rc *Reconciler) loop(ctx context.Context, run *Run, onAttempt func(int)) {
	logger := rc.logger.With().Str("checkout_request_id", run.checkoutRequestID).Logger()

	for attempt := 1; attempt <= rc.config.MaxAttempts; attempt++ {
		// Cancellation is checked before each scheduled attempt, never
		// mid-attempt.
		if run.canceled() || ctx.Err() != nil {
			run.finish(OutcomeCanceled)
			return
		}

		status, found := rc.poll(ctx, run, &logger)
		run.setAttempts(attempt)

		// A response that lands after cancellation is discarded; the torn
		// down session must not be mutated.
		if run.canceled() || ctx.Err() != nil {
			run.finish(OutcomeCanceled)
			return
		}
		if onAttempt != nil {
			onAttempt(attempt)
		}

		if found {
			switch status {
			case rentalapi.PaymentPaid:
				logger.Info().Int("attempt", attempt).Msg("payment confirmed")
				run.finish(OutcomeSucceeded)
				return
			case rentalapi.PaymentFailed:
				logger.Info().Int("attempt", attempt).Msg("payment failed")
				run.finish(OutcomeFailed)
				return
			}
		}

		if attempt == rc.config.MaxAttempts {
			break
		}
		select {
		case <-time.After(rc.config.Interval):
		case <-run.cancelCh:
			run.finish(OutcomeCanceled)
			return
		case <-ctx.Done():
			run.finish(OutcomeCanceled)
			return
		}
	}

	// The bound is the only timeout. The payment may still confirm later
	// out-of-band; this outcome means "no confirmation received", not
	// "failed".
	logger.Info().Int("attempts", rc.config.MaxAttempts).Msg("no payment confirmation received")
	run.finish(OutcomeTimedOut)
}

// poll fetches the listing once and looks for the correlation id. Fetch
// errors count as "not found yet": a transient blip must not end the run,
// only the attempt bound may.
func (rc *Reconciler) poll(ctx context.Context, run *Run, logger *zerolog.Logger) (status string, found bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, rc.config.AttemptTimeout)
	defer cancel()

	payments, err := rc.api.FetchPayments(attemptCtx, "")
	if err != nil {
		logger.Debug().Err(err).Msg("payment listing fetch failed, will retry")
		return "", false
	}
	for _, p := range payments {
		if p.CheckoutRequestID == run.checkoutRequestID {
			return p.Status, true
		}
	}
	return "", false
}
