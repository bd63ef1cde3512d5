package upload

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rajramk12/market-watcher/internal/common/database"
	"github.com/rajramk12/market-watcher/internal/ingester/mapper"
	"github.com/rajramk12/market-watcher/internal/ingester/metrics"
	"github.com/rajramk12/market-watcher/internal/ingester/model"
	"github.com/rajramk12/market-watcher/internal/ingester/pricedb"
)

// Store is the slice of the price store the pipeline writes through.
type Store interface {
	GetExchangeById(ctx context.Context, id int64) (*pricedb.Exchange, error)
	UpsertRow(ctx context.Context, exchangeId int64, rec model.MappedRecord) error
}

// FileError indicates the uploaded file itself is unusable.  It is user
// facing: the caller must resubmit; nothing is retried automatically.
type FileError struct {
	Path   string
	Reason string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("unusable upload %s: %s", e.Path, e.Reason)
}

// Result reports per-row outcomes for one file.
type Result struct {
	Upserted int
	Errored  int
}

// Pipeline is the synchronous single-file ingestion path used for manual
// backfills.  It streams the csv row by row, mapping and upserting directly
// without batching or queue dispatch.
type Pipeline struct {
	store   Store
	metrics *metrics.Metrics
}

func New(store Store) *Pipeline {
	return &Pipeline{store: store, metrics: metrics.Get()}
}

// Run processes the file at path for the given exchange.  Row-level failures
// are counted and logged and never stop the iteration; whole-pipeline
// failures (file unreadable, exchange unknown, store unreachable) abort
// immediately.  The input file is removed exactly once on every exit path,
// success or failure.
func (p *Pipeline) Run(ctx context.Context, path string, exchangeId int64) (Result, error) {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warnf("Could not remove upload %s", path)
		}
	}()

	result := Result{}

	file, err := os.Open(path)
	if err != nil {
		return result, &FileError{Path: path, Reason: err.Error()}
	}
	defer file.Close()

	if _, err := p.store.GetExchangeById(ctx, exchangeId); err != nil {
		return result, err
	}

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return result, &FileError{Path: path, Reason: "could not read csv header: " + err.Error()}
	}

	line := 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Errored++
			p.metrics.RecordUploadRowError()
			log.WithError(err).Warnf("Skipping malformed csv line %d in %s", line, path)
			continue
		}

		raw := rawRecord(header, fields)
		rec, err := mapper.Map(raw)
		if err != nil {
			result.Errored++
			p.metrics.RecordUploadRowError()
			log.WithError(err).Warnf("Skipping unmappable row at line %d in %s", line, path)
			continue
		}

		if err := p.store.UpsertRow(ctx, exchangeId, rec); err != nil {
			if database.IsNetworkError(err) || ctx.Err() != nil {
				return result, errors.WithMessage(err, "price store unreachable")
			}
			result.Errored++
			p.metrics.RecordUploadRowError()
			log.WithError(err).WithFields(log.Fields{
				"symbol":    rec.Symbol,
				"tradeDate": rec.TradeDate.String(),
				"line":      line,
			}).Warn("Could not upsert uploaded row")
			continue
		}
		result.Upserted++
		p.metrics.RecordUploadRow()
	}

	log.Infof("Processed upload %s for exchange %d: %d upserted, %d errors", path, exchangeId, result.Upserted, result.Errored)
	return result, nil
}

// rawRecord zips header names with row values.  Missing trailing fields are
// left unset so the mapper reports them as missing.
func rawRecord(header []string, fields []string) model.RawRecord {
	raw := model.RawRecord{}
	for i, name := range header {
		if i < len(fields) {
			raw[name] = fields[i]
		}
	}
	return raw
}
