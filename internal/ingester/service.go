package ingester

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rajramk12/market-watcher/internal/ingester/dispatcher"
	"github.com/rajramk12/market-watcher/internal/ingester/fetcher"
	"github.com/rajramk12/market-watcher/internal/ingester/mapper"
	"github.com/rajramk12/market-watcher/internal/ingester/metrics"
	"github.com/rajramk12/market-watcher/internal/ingester/model"
	"github.com/rajramk12/market-watcher/internal/ingester/pricedb"
	"github.com/rajramk12/market-watcher/internal/taskqueue"
)

// TaskFetch is the task type that triggers a fetch/map/dispatch run for one
// exchange and trading day.
const TaskFetch = "fetch_eod_prices"

// FetchPayload is the payload carried by TaskFetch tasks.
type FetchPayload struct {
	ExchangeCode string          `json:"exchange_code"`
	Date         model.TradeDate `json:"date"`
}

// PriceStore is the slice of the price store the handlers need.  Implemented
// by pricedb.PriceDb.
type PriceStore interface {
	GetExchangeByCode(ctx context.Context, code string) (*pricedb.Exchange, error)
	Store(ctx context.Context, batch *model.Batch) (pricedb.StoreResult, error)
}

// Service owns the task handlers of the ingestion pipeline: the fetch handler
// pulls raw EOD rows, maps them and dispatches write batches; the upsert
// handler drains those batches into the price store.
type Service struct {
	fetcher    fetcher.EODFetcher
	dispatcher *dispatcher.Dispatcher
	priceDb    PriceStore
	metrics    *metrics.Metrics
}

func NewService(eodFetcher fetcher.EODFetcher, d *dispatcher.Dispatcher, priceDb PriceStore) *Service {
	return &Service{
		fetcher:    eodFetcher,
		dispatcher: d,
		priceDb:    priceDb,
		metrics:    metrics.Get(),
	}
}

// HandleFetch fetches raw EOD rows for the exchange and date in the payload,
// maps them row by row and dispatches the mapped rows as write batches.  Rows
// that cannot be mapped are counted, logged and skipped; they never fail the
// task.  A fetch failure fails the whole task so the queue can retry it.
func (s *Service) HandleFetch(ctx context.Context, task *taskqueue.Task) error {
	payload := FetchPayload{}
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return errors.Wrap(err, "malformed fetch payload")
	}

	exchange, err := s.priceDb.GetExchangeByCode(ctx, payload.ExchangeCode)
	if err != nil {
		return err
	}

	raw, err := s.fetcher.FetchEOD(ctx, payload.ExchangeCode, payload.Date)
	if err != nil {
		s.metrics.RecordFetchError()
		var fetchErr *fetcher.FetchError
		if errors.As(err, &fetchErr) {
			return err
		}
		return &fetcher.FetchError{Exchange: payload.ExchangeCode, Date: payload.Date, Cause: err}
	}
	if len(raw) == 0 {
		log.Infof("No EOD data for %s on %s; nothing to dispatch", payload.ExchangeCode, payload.Date)
		return nil
	}

	rows := make([]model.MappedRecord, 0, len(raw))
	for i, record := range raw {
		mapped, err := mapper.Map(record)
		if err != nil {
			s.metrics.RecordMappingError()
			log.WithError(err).Warnf("Skipping unmappable row %d of %d for %s on %s",
				i+1, len(raw), payload.ExchangeCode, payload.Date)
			continue
		}
		s.metrics.RecordRowMapped()
		rows = append(rows, mapped)
	}

	return s.dispatcher.Dispatch(exchange.Id, rows)
}

// HandleUpsert writes one dispatched batch into the price store.  Row-level
// failures are absorbed by the store; only a store-level failure is returned,
// making the whole batch eligible for retry.
func (s *Service) HandleUpsert(ctx context.Context, task *taskqueue.Task) error {
	batch := &model.Batch{}
	if err := json.Unmarshal(task.Payload, batch); err != nil {
		return errors.Wrap(err, "malformed batch payload")
	}
	_, err := s.priceDb.Store(ctx, batch)
	return err
}

// queueEnqueuer adapts taskqueue.Queue to the dispatcher's narrower Enqueuer
// interface.
type queueEnqueuer struct {
	queue *taskqueue.Queue
}

func (e *queueEnqueuer) Enqueue(queue string, taskType string, payload interface{}) error {
	_, err := e.queue.Enqueue(queue, taskType, payload)
	return err
}
