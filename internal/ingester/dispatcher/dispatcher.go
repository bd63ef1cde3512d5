package dispatcher

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rajramk12/market-watcher/internal/ingester/metrics"
	"github.com/rajramk12/market-watcher/internal/ingester/model"
)

// TaskUpsert is the task type consumed by the upsert workers.
const TaskUpsert = "upsert_daily_prices"

// Enqueuer pushes one task onto a named queue.  Implemented by
// taskqueue.Queue; narrowed here so the dispatcher can be tested without
// redis.
type Enqueuer interface {
	Enqueue(queue string, taskType string, payload interface{}) error
}

// Dispatcher partitions mapped rows into bounded batches and enqueues each
// batch as an independent db_write task.  Bounding the batch size caps
// per-task memory and limits the blast radius of a failed task; independent
// tasks let several workers drain one fetch in parallel.
type Dispatcher struct {
	enqueuer   Enqueuer
	writeQueue string
	batchSize  int
	metrics    *metrics.Metrics
}

func New(enqueuer Enqueuer, writeQueue string, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Dispatcher{
		enqueuer:   enqueuer,
		writeQueue: writeQueue,
		batchSize:  batchSize,
		metrics:    metrics.Get(),
	}
}

// Dispatch slices rows into batches of at most batchSize, preserving input
// order, and enqueues every batch.  An enqueue failure for one batch never
// prevents the remaining batches from being attempted; all failures are
// returned together.
func (d *Dispatcher) Dispatch(exchangeId int64, rows []model.MappedRecord) error {
	var result *multierror.Error

	batches := Partition(rows, d.batchSize)
	for i, batch := range batches {
		err := d.enqueuer.Enqueue(d.writeQueue, TaskUpsert, &model.Batch{
			ExchangeId: exchangeId,
			Rows:       batch,
		})
		if err != nil {
			log.WithError(err).Warnf("Could not enqueue batch %d of %d (%d rows)", i+1, len(batches), len(batch))
			result = multierror.Append(result, errors.Wrapf(err, "batch %d of %d", i+1, len(batches)))
			continue
		}
		d.metrics.RecordBatchDispatched()
	}

	if len(batches) > 0 {
		log.Infof("Dispatched %d batches (%d rows) to queue %s", len(batches), len(rows), d.writeQueue)
	}
	return result.ErrorOrNil()
}

// Partition splits rows into consecutive slices of at most size elements.
// The concatenation of the result reproduces rows in order.
func Partition(rows []model.MappedRecord, size int) [][]model.MappedRecord {
	if len(rows) == 0 {
		return nil
	}
	batches := make([][]model.MappedRecord, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		batches = append(batches, rows[start:end])
	}
	return batches
}
