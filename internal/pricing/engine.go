package pricing

import (
	"math"
	"time"

	"karibu/internal/rentalapi"
)

// Nights returns the number of nights between check-in and check-out. A
// same-day or unset range counts as one night.
func Nights(checkIn, checkOut time.Time) int {
	if checkIn.IsZero() || checkOut.IsZero() {
		return 1
	}
	n := int(math.Round(checkOut.Sub(checkIn).Hours() / 24))
	if n < 1 {
		n = 1
	}
	return n
}

// ComputeTotal derives the total price for a room and stay range, in whole
// currency units.
//
// Priority: the backend's authoritative total for the exact range wins
// outright (nightly multiplication cannot account for seasonal pricing);
// otherwise a per-date breakdown is summed; otherwise base rate times nights.
// Fee and tax line items are added in the non-authoritative cases, an item's
// Amount falling back to its Rate. Only the rounded value is ever returned.
func ComputeTotal(room *rentalapi.Room, checkIn, checkOut time.Time) int64 {
	if room == nil {
		return 0
	}
	if room.TotalPrice != nil {
		return int64(math.Round(*room.TotalPrice))
	}

	var total float64
	if len(room.PriceBreakdown) > 0 {
		for _, line := range room.PriceBreakdown {
			total += line.Price
		}
	} else {
		total = room.BaseRate * float64(Nights(checkIn, checkOut))
	}
	total += sumLines(room.Fees)
	total += sumLines(room.Taxes)

	if total < 0 {
		total = 0
	}
	return int64(math.Round(total))
}

func sumLines(lines []rentalapi.FeeLine) float64 {
	var sum float64
	for _, l := range lines {
		switch {
		case l.Amount != nil:
			sum += *l.Amount
		case l.Rate != nil:
			sum += *l.Rate
		}
	}
	return sum
}
