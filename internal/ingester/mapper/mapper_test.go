package mapper

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajramk12/market-watcher/internal/ingester/model"
)

func validRow() model.RawRecord {
	return model.RawRecord{
		FieldSymbol:          "ACME",
		FieldSeries:          "EQ",
		FieldDate:            "01-JAN-2026",
		FieldPrevClose:       "100",
		FieldOpenPrice:       "101.50",
		FieldHighPrice:       "112.25",
		FieldLowPrice:        "99.80",
		FieldLastPrice:       "109.95",
		FieldClosePrice:      "110",
		FieldAvgPrice:        "105",
		FieldTradedQty:       "1000",
		FieldTurnoverLacs:    "10.5",
		FieldNoOfTrades:      "420",
		FieldDeliveredQty:    "650",
		FieldDeliveryPercent: "65.00",
	}
}

func TestMapDerivations(t *testing.T) {
	rec, err := Map(validRow())
	require.NoError(t, err)

	assert.Equal(t, "ACME", rec.Symbol)
	assert.Equal(t, "EQ", rec.Series)
	assert.Equal(t, model.NewTradeDate(2026, time.January, 1), rec.TradeDate)
	assert.True(t, rec.ChangePercentage.Equal(decimal.RequireFromString("10.0000")),
		"change percentage was %s", rec.ChangePercentage)
	assert.True(t, rec.ChangeAbsolute.Equal(decimal.RequireFromString("10.0000")),
		"change absolute was %s", rec.ChangeAbsolute)
	assert.True(t, rec.CombinedQtyAmount.Equal(decimal.RequireFromString("105000.0000")),
		"combined qty amount was %s", rec.CombinedQtyAmount)
	assert.Equal(t, int64(1000), rec.TradedQty)
	assert.Equal(t, int64(650), rec.DeliveredQty)
}

func TestMapRoundsToFourPlaces(t *testing.T) {
	row := validRow()
	row[FieldPrevClose] = "3"
	row[FieldClosePrice] = "4"
	rec, err := Map(row)
	require.NoError(t, err)

	// (4-3)/3*100 = 33.3333...
	assert.True(t, rec.ChangePercentage.Equal(decimal.RequireFromString("33.3333")),
		"change percentage was %s", rec.ChangePercentage)
}

func TestMapZeroPrevCloseGuard(t *testing.T) {
	for _, prevClose := range []string{"0", "-5"} {
		row := validRow()
		row[FieldPrevClose] = prevClose
		rec, err := Map(row)
		require.NoError(t, err)
		assert.True(t, rec.ChangePercentage.IsZero(),
			"prev close %s should give zero change percentage, got %s", prevClose, rec.ChangePercentage)
	}
}

func TestMapNegativeChange(t *testing.T) {
	row := validRow()
	row[FieldClosePrice] = "90"
	rec, err := Map(row)
	require.NoError(t, err)

	assert.True(t, rec.ChangePercentage.Equal(decimal.RequireFromString("-10.0000")))
	assert.True(t, rec.ChangeAbsolute.Equal(decimal.RequireFromString("-10.0000")))
}

func TestMapMissingField(t *testing.T) {
	row := validRow()
	delete(row, FieldClosePrice)

	_, err := Map(row)
	require.Error(t, err)
	mappingErr, ok := err.(*MappingError)
	require.True(t, ok)
	assert.Equal(t, FieldClosePrice, mappingErr.Field)
	assert.Equal(t, "missing required field", mappingErr.Reason)
}

func TestMapBadNumeric(t *testing.T) {
	row := validRow()
	row[FieldAvgPrice] = "not-a-number"

	_, err := Map(row)
	require.Error(t, err)
	mappingErr, ok := err.(*MappingError)
	require.True(t, ok)
	assert.Equal(t, FieldAvgPrice, mappingErr.Field)
	assert.Equal(t, "not-a-number", mappingErr.RawValue)
}

func TestMapBadInteger(t *testing.T) {
	row := validRow()
	row[FieldTradedQty] = "12.5"

	_, err := Map(row)
	require.Error(t, err)
	mappingErr, ok := err.(*MappingError)
	require.True(t, ok)
	assert.Equal(t, FieldTradedQty, mappingErr.Field)
}

func TestMapBadDate(t *testing.T) {
	row := validRow()
	row[FieldDate] = "32-FOO-2026"

	_, err := Map(row)
	require.Error(t, err)
	mappingErr, ok := err.(*MappingError)
	require.True(t, ok)
	assert.Equal(t, FieldDate, mappingErr.Field)
}

func TestParseTradeDateFormats(t *testing.T) {
	want := model.NewTradeDate(2026, time.January, 1)
	for _, input := range []string{"01-JAN-2026", "01-Jan-2026", "2026-01-01"} {
		got, err := model.ParseTradeDate(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
}
