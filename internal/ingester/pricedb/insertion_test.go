package pricedb

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajramk12/market-watcher/internal/common/database"
	"github.com/rajramk12/market-watcher/internal/ingester/metrics"
	"github.com/rajramk12/market-watcher/internal/ingester/model"
)

var m = metrics.Get()

func withPriceDb(t *testing.T, action func(db *pgxpool.Pool, priceDb *PriceDb)) {
	t.Helper()
	err := database.WithTestDb(Migrations(), nil, func(db *pgxpool.Pool) error {
		action(db, NewPriceDb(db, m, 2, 10))
		return nil
	})
	require.NoError(t, err)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testRecord(symbol string) model.MappedRecord {
	return model.MappedRecord{
		Symbol:            symbol,
		Series:            "EQ",
		TradeDate:         model.NewTradeDate(2026, time.January, 1),
		PrevClose:         dec("100"),
		OpenPrice:         dec("101.5"),
		HighPrice:         dec("112.25"),
		LowPrice:          dec("99.8"),
		LastPrice:         dec("109.95"),
		ClosePrice:        dec("110"),
		AvgPrice:          dec("105"),
		TradedQty:         1000,
		TurnoverLacs:      dec("10.5"),
		NoOfTrades:        420,
		DeliveredQty:      650,
		DeliveryPercent:   dec("65"),
		ChangePercentage:  dec("10.0000"),
		ChangeAbsolute:    dec("10.0000"),
		CombinedQtyAmount: dec("105000.0000"),
	}
}

type priceRow struct {
	InstrumentId     int64
	Series           string
	ClosePrice       decimal.Decimal
	ChangePercentage decimal.Decimal
	UpdatedAt        time.Time
}

func getPriceRow(t *testing.T, db *pgxpool.Pool, symbol string, date time.Time) priceRow {
	t.Helper()
	row := priceRow{}
	err := db.QueryRow(context.Background(), `
		SELECT dp.instrument_id, dp.series, dp.close_price, dp.change_percentage, dp.updated_at
		FROM daily_price dp JOIN instrument i ON i.id = dp.instrument_id
		WHERE i.symbol = $1 AND dp.trade_date = $2`, symbol, date).
		Scan(&row.InstrumentId, &row.Series, &row.ClosePrice, &row.ChangePercentage, &row.UpdatedAt)
	require.NoError(t, err)
	return row
}

func countRows(t *testing.T, db *pgxpool.Pool, table string) int {
	t.Helper()
	var count int
	err := db.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&count)
	require.NoError(t, err)
	return count
}

func TestUpsertRowCreatesInstrumentAndPrice(t *testing.T) {
	withPriceDb(t, func(db *pgxpool.Pool, priceDb *PriceDb) {
		ctx := context.Background()
		require.NoError(t, priceDb.UpsertRow(ctx, 1, testRecord("ACME")))

		assert.Equal(t, 1, countRows(t, db, "instrument"))
		assert.Equal(t, 1, countRows(t, db, "daily_price"))

		row := getPriceRow(t, db, "ACME", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, "EQ", row.Series)
		assert.True(t, row.ClosePrice.Equal(dec("110")))
		assert.True(t, row.ChangePercentage.Equal(dec("10")))
	})
}

func TestUpsertRowIsIdempotent(t *testing.T) {
	withPriceDb(t, func(db *pgxpool.Pool, priceDb *PriceDb) {
		ctx := context.Background()
		rec := testRecord("ACME")
		require.NoError(t, priceDb.UpsertRow(ctx, 1, rec))
		first := getPriceRow(t, db, "ACME", rec.TradeDate.Time)

		// Applying the identical row again creates nothing new and leaves
		// the stored values unchanged; only the update timestamp moves.
		require.NoError(t, priceDb.UpsertRow(ctx, 1, rec))
		assert.Equal(t, 1, countRows(t, db, "instrument"))
		assert.Equal(t, 1, countRows(t, db, "daily_price"))

		second := getPriceRow(t, db, "ACME", rec.TradeDate.Time)
		assert.Equal(t, first.InstrumentId, second.InstrumentId)
		assert.True(t, first.ClosePrice.Equal(second.ClosePrice))
		assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
	})
}

func TestUpsertRowOverwritesAllFields(t *testing.T) {
	withPriceDb(t, func(db *pgxpool.Pool, priceDb *PriceDb) {
		ctx := context.Background()
		require.NoError(t, priceDb.UpsertRow(ctx, 1, testRecord("ACME")))

		restated := testRecord("ACME")
		restated.Series = "BE"
		restated.ClosePrice = dec("120")
		restated.ChangePercentage = dec("20.0000")
		require.NoError(t, priceDb.UpsertRow(ctx, 1, restated))

		row := getPriceRow(t, db, "ACME", restated.TradeDate.Time)
		assert.Equal(t, "BE", row.Series)
		assert.True(t, row.ClosePrice.Equal(dec("120")))
		assert.True(t, row.ChangePercentage.Equal(dec("20")))
		assert.Equal(t, 1, countRows(t, db, "daily_price"))
	})
}

func TestStoreIsolatesRowFailures(t *testing.T) {
	withPriceDb(t, func(db *pgxpool.Pool, priceDb *PriceDb) {
		ctx := context.Background()
		batch := &model.Batch{ExchangeId: 1}
		for i := 0; i < 9; i++ {
			batch.Rows = append(batch.Rows, testRecord("SYM"+string(rune('A'+i))))
		}
		// A symbol that exceeds the varchar(32) column fails its own row only
		bad := testRecord("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
		batch.Rows = append(batch.Rows[:5], append([]model.MappedRecord{bad}, batch.Rows[5:]...)...)

		result, err := priceDb.Store(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, 9, result.Upserted)
		assert.Equal(t, 1, result.Errored)
		assert.Equal(t, 9, countRows(t, db, "daily_price"))
	})
}

func TestSnapshotIsMonotonic(t *testing.T) {
	withPriceDb(t, func(db *pgxpool.Pool, priceDb *PriceDb) {
		ctx := context.Background()

		newer := testRecord("ACME")
		newer.TradeDate = model.NewTradeDate(2026, time.January, 2)
		newer.ClosePrice = dec("120")
		require.NoError(t, priceDb.UpsertRow(ctx, 1, newer))

		// An older day arriving afterwards must not regress the snapshot
		older := testRecord("ACME")
		require.NoError(t, priceDb.UpsertRow(ctx, 1, older))

		var lastClose decimal.Decimal
		var lastTradeDate time.Time
		err := db.QueryRow(ctx, `SELECT last_close, last_trade_date FROM instrument WHERE symbol = 'ACME'`).
			Scan(&lastClose, &lastTradeDate)
		require.NoError(t, err)
		assert.True(t, lastClose.Equal(dec("120")))
		assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), lastTradeDate)
		assert.Equal(t, 2, countRows(t, db, "daily_price"))
	})
}

func TestGetExchange(t *testing.T) {
	withPriceDb(t, func(db *pgxpool.Pool, priceDb *PriceDb) {
		ctx := context.Background()

		exchange, err := priceDb.GetExchangeByCode(ctx, "NSE")
		require.NoError(t, err)
		assert.Equal(t, "NSE", exchange.Code)

		_, err = priceDb.GetExchangeByCode(ctx, "XXX")
		var notFound *ErrExchangeNotFound
		require.ErrorAs(t, err, &notFound)

		byId, err := priceDb.GetExchangeById(ctx, exchange.Id)
		require.NoError(t, err)
		assert.Equal(t, exchange.Code, byId.Code)
	})
}
