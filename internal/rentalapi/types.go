package rentalapi

// Rental describes a lodging property.
type Rental struct {
	ID       int64  `json:"id"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	Currency string `json:"currency,omitempty"`
	Location string `json:"location,omitempty"`
}

// PriceLine is one night of an authoritative price breakdown.
type PriceLine struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// FeeLine is a fee or tax line item. Amount takes precedence over Rate when
// both are present.
type FeeLine struct {
	Name   string   `json:"name,omitempty"`
	Amount *float64 `json:"amount,omitempty"`
	Rate   *float64 `json:"rate,omitempty"`
}

// Room describes a bookable room. The backend may attach an authoritative
// TotalPrice for the exact requested stay range; when present it supersedes
// any client-side derivation.
type Room struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	BaseRate       float64     `json:"base_price"`
	TotalPrice     *float64    `json:"total_price,omitempty"`
	Nights         int         `json:"nights,omitempty"`
	PriceBreakdown []PriceLine `json:"price_breakdown,omitempty"`
	Fees           []FeeLine   `json:"fees,omitempty"`
	Taxes          []FeeLine   `json:"taxes,omitempty"`
	Capacity       int         `json:"capacity,omitempty"`
	RentalSlug     string      `json:"rental_slug,omitempty"`
	Images         []string    `json:"images,omitempty"`
}

// DailyPrice is one calendar day's nightly price. Price is a pointer because
// the backend sends null for days it cannot price.
type DailyPrice struct {
	Date     string   `json:"date"`
	Price    *float64 `json:"price"`
	RateUsed string   `json:"rate_used,omitempty"`
}

// STKPushRequest is the payment initiation payload. Amount is whole currency
// units, rounded before transmission.
type STKPushRequest struct {
	Phone           string `json:"phone"`
	Amount          int64  `json:"amount"`
	RentalSlug      string `json:"rental_slug"`
	RoomID          int64  `json:"room_id"`
	AccountRef      string `json:"account_ref"`
	TransactionDesc string `json:"transaction_desc"`
}

// STKPushResponse is the gateway's reply. CheckoutRequestID correlates the
// initiated payment with later status queries; the remaining fields carry
// gateway messages when no correlation id is issued.
type STKPushResponse struct {
	CheckoutRequestID string `json:"CheckoutRequestID,omitempty"`
	ResponseCode      string `json:"ResponseCode,omitempty"`
	CustomerMessage   string `json:"CustomerMessage,omitempty"`
	Status            string `json:"status,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Payment statuses reported by the backend.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// Payment is one entry of the payment listing.
type Payment struct {
	CheckoutRequestID string  `json:"mpesa_checkout_request_id"`
	Status            string  `json:"status"`
	Amount            float64 `json:"amount"`
	Room              string  `json:"room,omitempty"`
	Timestamp         string  `json:"timestamp,omitempty"`
}
