package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"karibu/internal/rentalapi"
)

// PriceFetcher fetches daily prices for a room and date range (YYYY-MM-DD).
type PriceFetcher interface {
	FetchDailyPrices(ctx context.Context, roomID int64, startDate, endDate string) ([]rentalapi.DailyPrice, error)
}

// Loader refreshes a session's price cache one calendar month at a time.
// Merging is commutative across months, so independent month loads may run
// concurrently without coordination.
type Loader struct {
	api    PriceFetcher
	cache  *Cache
	logger *zerolog.Logger
}

// NewLoader creates a loader writing into cache.
func NewLoader(api PriceFetcher, cache *Cache, logger *zerolog.Logger) *Loader {
	return &Loader{api: api, cache: cache, logger: logger}
}

// LoadInitial fetches the active month and the following month concurrently,
// so paging forward right after opening the calendar shows no gap. It returns
// only after both fetches have completed and merged; one month failing does
// not discard the other month's batch.
func (l *Loader) LoadInitial(ctx context.Context, roomID int64, activeMonth time.Time) error {
	months := []time.Time{activeMonth, activeMonth.AddDate(0, 1, 0)}
	errs := make([]error, len(months))

	var wg sync.WaitGroup
	for i, m := range months {
		wg.Add(1)
		go func(i int, m time.Time) {
			defer wg.Done()
			errs[i] = l.LoadMonth(ctx, roomID, m)
		}(i, m)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// LoadMonth fetches one month's prices and merges them into the cache. A
// cancelled context abandons the fetch without touching the cache.
func (l *Loader) LoadMonth(ctx context.Context, roomID int64, month time.Time) error {
	start, end := monthRange(month)
	prices, err := l.api.FetchDailyPrices(ctx, roomID, start, end)
	if err != nil {
		l.logger.Warn().Err(err).
			Int64("room_id", roomID).
			Str("month", month.Format("2006-01")).
			Msg("daily price fetch failed")
		return err
	}
	merged := l.cache.Merge(prices)
	l.logger.Debug().
		Int64("room_id", roomID).
		Str("month", month.Format("2006-01")).
		Int("merged", merged).
		Msg("daily prices merged")
	return nil
}

// monthRange returns the first and last calendar day of the month containing
// t, as YYYY-MM-DD strings.
func monthRange(t time.Time) (string, string) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first.Format("2006-01-02"), last.Format("2006-01-02")
}
