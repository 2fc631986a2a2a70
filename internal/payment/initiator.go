package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"karibu/internal/rentalapi"
)

// ErrMissingBookingRef means a payment was requested without a resolved
// rental identifier or room id. The wizard guards should make this
// impossible; it is an internal error, not user error, and no network call
// is made.
var ErrMissingBookingRef = errors.New("rental identifier or room id missing")

// Gateway submits STK push requests.
type Gateway interface {
	InitiateSTKPush(ctx context.Context, req rentalapi.STKPushRequest) (*rentalapi.STKPushResponse, error)
}

// Request is everything needed to initiate one payment.
type Request struct {
	Phone      string // raw user input, normalized here
	Amount     int64  // whole currency units
	RentalSlug string
	RoomID     int64
	RoomName   string // used for account reference and description
	AccountRef string // optional override
}

// Result is a successful initiation. Either CheckoutRequestID is set and
// reconciliation should begin, or Message carries the gateway's terminal
// status and there is nothing to reconcile.
type Result struct {
	CheckoutRequestID string
	Message           string
}

// Initiator validates and submits payment requests.
type Initiator struct {
	gateway Gateway
	logger  *zerolog.Logger
}

// NewInitiator creates an initiator.
func NewInitiator(gateway Gateway, logger *zerolog.Logger) *Initiator {
	return &Initiator{gateway: gateway, logger: logger}
}

// Initiate normalizes the phone number, checks booking references and
// submits the STK push. Validation failures and missing references return
// before any network call.
func (i *Initiator) Initiate(ctx context.Context, req Request) (*Result, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	if req.RentalSlug == "" || req.RoomID == 0 {
		i.logger.Error().
			Str("rental_slug", req.RentalSlug).
			Int64("room_id", req.RoomID).
			Msg("payment initiation without resolved booking reference")
		return nil, ErrMissingBookingRef
	}

	accountRef := req.AccountRef
	if accountRef == "" {
		accountRef = req.RoomName
	}
	if accountRef == "" {
		accountRef = "Booking"
	}

	resp, err := i.gateway.InitiateSTKPush(ctx, rentalapi.STKPushRequest{
		Phone:           phone,
		Amount:          req.Amount,
		RentalSlug:      req.RentalSlug,
		RoomID:          req.RoomID,
		AccountRef:      accountRef,
		TransactionDesc: fmt.Sprintf("Booking for %s", req.RoomName),
	})
	if err != nil {
		var apiErr *rentalapi.APIError
		if errors.As(err, &apiErr) && apiErr.Detail != "" {
			return nil, err
		}
		i.logger.Error().Err(err).Msg("stk push failed")
		return nil, fmt.Errorf("failed to initiate payment, please try again: %w", err)
	}

	if resp.CheckoutRequestID != "" {
		i.logger.Info().
			Str("checkout_request_id", resp.CheckoutRequestID).
			Int64("amount", req.Amount).
			Msg("stk push sent")
		return &Result{CheckoutRequestID: resp.CheckoutRequestID}, nil
	}

	// No correlation id: surface the gateway's own wording and skip
	// reconciliation entirely.
	switch {
	case strings.Contains(strings.ToLower(resp.Status), "success"):
		return &Result{Message: "Success! Please complete payment on your phone."}, nil
	case resp.Message != "":
		return &Result{Message: resp.Message}, nil
	case resp.CustomerMessage != "":
		return &Result{Message: resp.CustomerMessage}, nil
	default:
		return &Result{Message: "Payment initiated. Please check your phone."}, nil
	}
}
