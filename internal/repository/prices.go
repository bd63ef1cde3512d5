package repository

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var psql = goqu.Dialect("postgres")

var (
	// Tables
	exchangeTable   = goqu.T("exchange")
	instrumentTable = goqu.T("instrument")
	dailyPriceTable = goqu.T("daily_price")

	// Columns: exchange table
	exchange_id   = goqu.I("exchange.id")
	exchange_code = goqu.I("exchange.code")

	// Columns: instrument table
	instrument_id            = goqu.I("instrument.id")
	instrument_exchangeId    = goqu.I("instrument.exchange_id")
	instrument_symbol        = goqu.I("instrument.symbol")
	instrument_active        = goqu.I("instrument.active")
	instrument_lastClose     = goqu.I("instrument.last_close")
	instrument_lastTradeDate = goqu.I("instrument.last_trade_date")

	// Columns: daily_price table
	dailyPrice_instrumentId     = goqu.I("daily_price.instrument_id")
	dailyPrice_tradeDate        = goqu.I("daily_price.trade_date")
	dailyPrice_series           = goqu.I("daily_price.series")
	dailyPrice_prevClose        = goqu.I("daily_price.prev_close")
	dailyPrice_openPrice        = goqu.I("daily_price.open_price")
	dailyPrice_highPrice        = goqu.I("daily_price.high_price")
	dailyPrice_lowPrice         = goqu.I("daily_price.low_price")
	dailyPrice_closePrice       = goqu.I("daily_price.close_price")
	dailyPrice_tradedQty        = goqu.I("daily_price.traded_qty")
	dailyPrice_changePercentage = goqu.I("daily_price.change_percentage")
	dailyPrice_changeAbsolute   = goqu.I("daily_price.change_absolute")
)

// DailyPriceRow is one stored trading day for an instrument.
type DailyPriceRow struct {
	Symbol           string
	TradeDate        time.Time
	Series           string
	PrevClose        decimal.Decimal
	OpenPrice        decimal.Decimal
	HighPrice        decimal.Decimal
	LowPrice         decimal.Decimal
	ClosePrice       decimal.Decimal
	TradedQty        int64
	ChangePercentage decimal.Decimal
	ChangeAbsolute   decimal.Decimal
}

// InstrumentRow is one listed instrument with its last-price snapshot.
type InstrumentRow struct {
	Symbol        string
	Active        bool
	LastClose     decimal.NullDecimal
	LastTradeDate *time.Time
}

// PriceRepository serves read queries over the price store.  Queries are
// composed with goqu and executed over the shared pgx pool.
type PriceRepository struct {
	db *pgxpool.Pool
}

func NewPriceRepository(db *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{db: db}
}

// GetPriceHistory returns up to limit trading days for (exchange code, symbol),
// newest first.  An unknown symbol yields an empty result, not an error.
func (r *PriceRepository) GetPriceHistory(ctx context.Context, exchangeCode string, symbol string, limit uint) ([]*DailyPriceRow, error) {
	query, args, err := psql.
		From(dailyPriceTable).
		Join(instrumentTable, goqu.On(instrument_id.Eq(dailyPrice_instrumentId))).
		Join(exchangeTable, goqu.On(exchange_id.Eq(instrument_exchangeId))).
		Select(
			instrument_symbol,
			dailyPrice_tradeDate,
			dailyPrice_series,
			dailyPrice_prevClose,
			dailyPrice_openPrice,
			dailyPrice_highPrice,
			dailyPrice_lowPrice,
			dailyPrice_closePrice,
			dailyPrice_tradedQty,
			dailyPrice_changePercentage,
			dailyPrice_changeAbsolute).
		Where(exchange_code.Eq(exchangeCode), instrument_symbol.Eq(symbol)).
		Order(dailyPrice_tradeDate.Desc()).
		Limit(limit).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "could not build price history query")
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "could not query price history for %s:%s", exchangeCode, symbol)
	}
	defer rows.Close()

	var result []*DailyPriceRow
	for rows.Next() {
		row := &DailyPriceRow{}
		err := rows.Scan(
			&row.Symbol,
			&row.TradeDate,
			&row.Series,
			&row.PrevClose,
			&row.OpenPrice,
			&row.HighPrice,
			&row.LowPrice,
			&row.ClosePrice,
			&row.TradedQty,
			&row.ChangePercentage,
			&row.ChangeAbsolute)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		result = append(result, row)
	}
	return result, errors.WithStack(rows.Err())
}

// ListInstruments returns the instruments of an exchange ordered by symbol,
// each with its last-price snapshot.
func (r *PriceRepository) ListInstruments(ctx context.Context, exchangeCode string) ([]*InstrumentRow, error) {
	query, args, err := psql.
		From(instrumentTable).
		Join(exchangeTable, goqu.On(exchange_id.Eq(instrument_exchangeId))).
		Select(
			instrument_symbol,
			instrument_active,
			instrument_lastClose,
			instrument_lastTradeDate).
		Where(exchange_code.Eq(exchangeCode)).
		Order(instrument_symbol.Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, errors.Wrap(err, "could not build instrument listing query")
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "could not list instruments for %s", exchangeCode)
	}
	defer rows.Close()

	var result []*InstrumentRow
	for rows.Next() {
		row := &InstrumentRow{}
		if err := rows.Scan(&row.Symbol, &row.Active, &row.LastClose, &row.LastTradeDate); err != nil {
			return nil, errors.WithStack(err)
		}
		result = append(result, row)
	}
	return result, errors.WithStack(rows.Err())
}
