package pricedb

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rajramk12/market-watcher/internal/common/database"
	"github.com/rajramk12/market-watcher/internal/ingester/metrics"
	"github.com/rajramk12/market-watcher/internal/ingester/model"
)

// PriceDb writes mapped rows into the canonical price store.  Every write is
// an idempotent full overwrite keyed by a natural uniqueness constraint, so
// duplicate or out-of-order delivery of identical input converges to the same
// stored state.
type PriceDb struct {
	db          *pgxpool.Pool
	metrics     *metrics.Metrics
	maxAttempts int
	maxBackoff  int
}

// StoreResult reports per-row outcomes for one batch.
type StoreResult struct {
	Upserted int
	Errored  int
}

type Exchange struct {
	Id   int64
	Code string
	Name string
}

// ErrExchangeNotFound is returned when an exchange code or id is unknown.
type ErrExchangeNotFound struct {
	Code string
	Id   int64
}

func (e *ErrExchangeNotFound) Error() string {
	if e.Code != "" {
		return "exchange not found: " + e.Code
	}
	return errors.Errorf("exchange not found: id %d", e.Id).Error()
}

func NewPriceDb(db *pgxpool.Pool, m *metrics.Metrics, maxAttempts int, maxBackoff int) *PriceDb {
	return &PriceDb{db: db, metrics: m, maxAttempts: maxAttempts, maxBackoff: maxBackoff}
}

// Store upserts every row in the batch.  A failure on one row is counted,
// logged with the offending row context and never aborts the remaining rows.
// Only a store-level failure (e.g. the database is unreachable) fails the
// batch as a whole, in which case the task is eligible for retry by the
// queue.
func (p *PriceDb) Store(ctx context.Context, batch *model.Batch) (StoreResult, error) {
	result := StoreResult{}
	for _, row := range batch.Rows {
		err := p.UpsertRow(ctx, batch.ExchangeId, row)
		if err == nil {
			result.Upserted++
			p.metrics.RecordRowUpserted()
			continue
		}
		if database.IsNetworkError(err) || ctx.Err() != nil {
			// Not a per-row problem; the whole batch fails and the queue retries it.
			return result, errors.WithMessage(err, "price store unreachable")
		}
		result.Errored++
		p.metrics.RecordRowError()
		log.WithError(err).WithFields(log.Fields{
			"symbol":    row.Symbol,
			"tradeDate": row.TradeDate.String(),
			"exchange":  batch.ExchangeId,
		}).Warn("Could not upsert row")
	}
	log.Infof("Stored batch for exchange %d: %d upserted, %d errors", batch.ExchangeId, result.Upserted, result.Errored)
	return result, nil
}

// UpsertRow writes one mapped row: it resolves (or lazily creates) the
// instrument, overwrites the daily price row for (instrument, trade date) and
// refreshes the instrument's last-price snapshot.
func (p *PriceDb) UpsertRow(ctx context.Context, exchangeId int64, rec model.MappedRecord) error {
	instrumentId, err := p.getOrCreateInstrument(ctx, exchangeId, rec.Symbol)
	if err != nil {
		return err
	}
	if err := p.upsertDailyPrice(ctx, instrumentId, rec); err != nil {
		return err
	}
	return p.refreshSnapshot(ctx, instrumentId, rec)
}

// getOrCreateInstrument resolves the instrument id for (exchange, symbol),
// creating the instrument the first time the symbol is seen.  Concurrent
// creations race on the unique constraint; the loser's insert is a no-op and
// the following lookup finds the winner's row.
func (p *PriceDb) getOrCreateInstrument(ctx context.Context, exchangeId int64, symbol string) (int64, error) {
	err := p.withDatabaseRetry(func() error {
		_, err := p.db.Exec(ctx, `
			INSERT INTO instrument (exchange_id, symbol)
			VALUES ($1, $2)
			ON CONFLICT (exchange_id, symbol) DO NOTHING`,
			exchangeId, symbol)
		if err != nil {
			p.metrics.RecordDBError(metrics.DBOperationResolveInstrument)
		}
		return err
	})
	if err != nil {
		return 0, errors.Wrapf(err, "could not create instrument %s", symbol)
	}

	var instrumentId int64
	err = p.withDatabaseRetry(func() error {
		err := p.db.QueryRow(ctx, `
			SELECT id FROM instrument WHERE exchange_id = $1 AND symbol = $2`,
			exchangeId, symbol).Scan(&instrumentId)
		if err != nil && err != pgx.ErrNoRows {
			p.metrics.RecordDBError(metrics.DBOperationResolveInstrument)
		}
		return err
	})
	if err != nil {
		return 0, errors.Wrapf(err, "could not resolve instrument %s", symbol)
	}
	return instrumentId, nil
}

func (p *PriceDb) upsertDailyPrice(ctx context.Context, instrumentId int64, rec model.MappedRecord) error {
	err := p.withDatabaseRetry(func() error {
		_, err := p.db.Exec(ctx, `
			INSERT INTO daily_price (
				instrument_id, trade_date, series,
				prev_close, open_price, high_price, low_price, last_price, close_price, avg_price,
				traded_qty, turnover_lacs, no_of_trades, delivered_qty, delivery_percent,
				change_percentage, change_absolute, combined_qty_amount,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, now(), now())
			ON CONFLICT (instrument_id, trade_date) DO UPDATE SET
				series              = EXCLUDED.series,
				prev_close          = EXCLUDED.prev_close,
				open_price          = EXCLUDED.open_price,
				high_price          = EXCLUDED.high_price,
				low_price           = EXCLUDED.low_price,
				last_price          = EXCLUDED.last_price,
				close_price         = EXCLUDED.close_price,
				avg_price           = EXCLUDED.avg_price,
				traded_qty          = EXCLUDED.traded_qty,
				turnover_lacs       = EXCLUDED.turnover_lacs,
				no_of_trades        = EXCLUDED.no_of_trades,
				delivered_qty       = EXCLUDED.delivered_qty,
				delivery_percent    = EXCLUDED.delivery_percent,
				change_percentage   = EXCLUDED.change_percentage,
				change_absolute     = EXCLUDED.change_absolute,
				combined_qty_amount = EXCLUDED.combined_qty_amount,
				updated_at          = now()`,
			instrumentId, rec.TradeDate.Time, rec.Series,
			rec.PrevClose, rec.OpenPrice, rec.HighPrice, rec.LowPrice, rec.LastPrice, rec.ClosePrice, rec.AvgPrice,
			rec.TradedQty, rec.TurnoverLacs, rec.NoOfTrades, rec.DeliveredQty, rec.DeliveryPercent,
			rec.ChangePercentage, rec.ChangeAbsolute, rec.CombinedQtyAmount)
		if err != nil {
			p.metrics.RecordDBError(metrics.DBOperationUpsertPrice)
		}
		return err
	})
	return errors.Wrapf(err, "could not upsert daily price for instrument %d on %s", instrumentId, rec.TradeDate)
}

// refreshSnapshot advances the instrument's last-price snapshot.  The date
// guard keeps the snapshot monotonic so batches applied out of order still
// converge on the newest trading day's close.
func (p *PriceDb) refreshSnapshot(ctx context.Context, instrumentId int64, rec model.MappedRecord) error {
	err := p.withDatabaseRetry(func() error {
		_, err := p.db.Exec(ctx, `
			UPDATE instrument
			SET last_close = $2, last_trade_date = $3, updated_at = now()
			WHERE id = $1 AND (last_trade_date IS NULL OR last_trade_date <= $3)`,
			instrumentId, rec.ClosePrice, rec.TradeDate.Time)
		if err != nil {
			p.metrics.RecordDBError(metrics.DBOperationRefreshSnapshot)
		}
		return err
	})
	return errors.Wrapf(err, "could not refresh snapshot for instrument %d", instrumentId)
}

// GetExchangeByCode looks up an exchange by its short code, e.g. "NSE".
func (p *PriceDb) GetExchangeByCode(ctx context.Context, code string) (*Exchange, error) {
	exchange := &Exchange{}
	err := p.db.QueryRow(ctx, `SELECT id, code, COALESCE(name, '') FROM exchange WHERE code = $1`, code).
		Scan(&exchange.Id, &exchange.Code, &exchange.Name)
	if err == pgx.ErrNoRows {
		return nil, &ErrExchangeNotFound{Code: code}
	}
	if err != nil {
		p.metrics.RecordDBError(metrics.DBOperationRead)
		return nil, errors.Wrapf(err, "could not look up exchange %s", code)
	}
	return exchange, nil
}

// GetExchangeById checks that an exchange id exists, e.g. before a backfill.
func (p *PriceDb) GetExchangeById(ctx context.Context, id int64) (*Exchange, error) {
	exchange := &Exchange{}
	err := p.db.QueryRow(ctx, `SELECT id, code, COALESCE(name, '') FROM exchange WHERE id = $1`, id).
		Scan(&exchange.Id, &exchange.Code, &exchange.Name)
	if err == pgx.ErrNoRows {
		return nil, &ErrExchangeNotFound{Id: id}
	}
	if err != nil {
		p.metrics.RecordDBError(metrics.DBOperationRead)
		return nil, errors.Wrapf(err, "could not look up exchange %d", id)
	}
	return exchange, nil
}

// withDatabaseRetry executes a database operation, retrying transient errors
// with capped exponential backoff.  Non-transient errors are returned
// immediately so the caller can apply its own row-level policy.
func (p *PriceDb) withDatabaseRetry(executeDb func() error) error {
	backOff := 1
	var err error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		err = executeDb()
		if err == nil {
			return nil
		}
		if database.IsNetworkError(err) || database.IsRetryablePostgresError(err) {
			if backOff = 2 * backOff; backOff > p.maxBackoff {
				backOff = p.maxBackoff
			}
			log.WithError(err).Warnf("Retryable error executing sql, will wait %d seconds before retrying", backOff)
			time.Sleep(time.Duration(backOff) * time.Second)
		} else {
			return err
		}
	}
	return errors.WithMessagef(err, "gave up after %d attempts", p.maxAttempts)
}
