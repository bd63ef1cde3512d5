package fetcher

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/rajramk12/market-watcher/internal/ingester/model"
)

// EODFetcher supplies raw end-of-day rows for one exchange and trading day.
// An empty slice means the exchange published no data for that day, which is
// a normal outcome (holidays, weekends), not an error.
type EODFetcher interface {
	FetchEOD(ctx context.Context, exchangeCode string, date model.TradeDate) ([]model.RawRecord, error)
}

// FetchError indicates that the upstream source could not be reached or
// returned garbage.  It fails the whole fetch task; retry happens at the task
// level, never here.
type FetchError struct {
	Exchange string
	Date     model.TradeDate
	Cause    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("could not fetch EOD data for %s on %s: %v", e.Exchange, e.Date, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// StubFetcher is a placeholder source that always reports no trading data.
// The real exchange client slots in behind the EODFetcher interface.
type StubFetcher struct{}

func (f *StubFetcher) FetchEOD(ctx context.Context, exchangeCode string, date model.TradeDate) ([]model.RawRecord, error) {
	log.WithFields(log.Fields{
		"exchange": exchangeCode,
		"date":     date.String(),
	}).Info("No EOD data fetched (stub source)")
	return nil, nil
}
