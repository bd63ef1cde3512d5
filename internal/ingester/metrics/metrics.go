package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type DBOperation string

const (
	DBOperationResolveInstrument DBOperation = "resolve_instrument"
	DBOperationUpsertPrice       DBOperation = "upsert_price"
	DBOperationRefreshSnapshot   DBOperation = "refresh_snapshot"
	DBOperationRead              DBOperation = "read"
)

const metricsPrefix = "market_watcher_ingester_"

type Metrics struct {
	rowsMapped        prometheus.Counter
	mappingErrors     prometheus.Counter
	rowsUpserted      prometheus.Counter
	rowErrors         prometheus.Counter
	batchesDispatched prometheus.Counter
	fetchErrors       prometheus.Counter
	dbErrors          *prometheus.CounterVec
	uploadRowsTotal   prometheus.Counter
	uploadRowErrors   prometheus.Counter
}

var m = &Metrics{
	rowsMapped: promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "rows_mapped",
		Help: "Number of raw rows successfully mapped",
	}),
	mappingErrors: promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "mapping_errors",
		Help: "Number of raw rows that could not be mapped",
	}),
	rowsUpserted: promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "rows_upserted",
		Help: "Number of daily price rows written to the store",
	}),
	rowErrors: promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "row_errors",
		Help: "Number of rows that failed to upsert",
	}),
	batchesDispatched: promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "batches_dispatched",
		Help: "Number of batches enqueued for writing",
	}),
	fetchErrors: promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "fetch_errors",
		Help: "Number of failed EOD fetches",
	}),
	dbErrors: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: metricsPrefix + "db_errors",
		Help: "Number of database errors grouped by operation",
	}, []string{"operation"}),
	uploadRowsTotal: promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "upload_rows",
		Help: "Number of rows processed by csv backfills",
	}),
	uploadRowErrors: promauto.NewCounter(prometheus.CounterOpts{
		Name: metricsPrefix + "upload_row_errors",
		Help: "Number of csv backfill rows that failed",
	}),
}

func Get() *Metrics {
	return m
}

func (m *Metrics) RecordRowMapped()       { m.rowsMapped.Inc() }
func (m *Metrics) RecordMappingError()    { m.mappingErrors.Inc() }
func (m *Metrics) RecordRowUpserted()     { m.rowsUpserted.Inc() }
func (m *Metrics) RecordRowError()        { m.rowErrors.Inc() }
func (m *Metrics) RecordBatchDispatched() { m.batchesDispatched.Inc() }
func (m *Metrics) RecordFetchError()      { m.fetchErrors.Inc() }
func (m *Metrics) RecordUploadRow()       { m.uploadRowsTotal.Inc() }
func (m *Metrics) RecordUploadRowError()  { m.uploadRowErrors.Inc() }

func (m *Metrics) RecordDBError(operation DBOperation) {
	m.dbErrors.With(map[string]string{"operation": string(operation)}).Inc()
}
