package mapper

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rajramk12/market-watcher/internal/ingester/model"
)

// Upstream bhavcopy header names.
const (
	FieldSymbol          = "SYMBOL"
	FieldSeries          = "SERIES"
	FieldDate            = "DATE1"
	FieldPrevClose       = "PREV_CLOSE"
	FieldOpenPrice       = "OPEN_PRICE"
	FieldHighPrice       = "HIGH_PRICE"
	FieldLowPrice        = "LOW_PRICE"
	FieldLastPrice       = "LAST_PRICE"
	FieldClosePrice      = "CLOSE_PRICE"
	FieldAvgPrice        = "AVG_PRICE"
	FieldTradedQty       = "TTL_TRD_QNTY"
	FieldTurnoverLacs    = "TURNOVER_LACS"
	FieldNoOfTrades      = "NO_OF_TRADES"
	FieldDeliveredQty    = "DELIV_QTY"
	FieldDeliveryPercent = "DELIV_PER"
)

const derivedScale = 4

// MappingError indicates that a single raw row could not be converted.  It is
// always recovered at row granularity and never fails a whole batch or file.
type MappingError struct {
	Field    string
	RawValue string
	Reason   string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("could not map field %s (value %q): %s", e.Field, e.RawValue, e.Reason)
}

// Map converts one raw row into a typed record, deriving the day-over-day
// analytics.  Pure: no I/O and no state.
//
// Derivations, rounded half-up to 4 decimal places:
//
//	change_percentage   = (close - prev_close) / prev_close * 100   (0 unless prev_close > 0)
//	change_absolute     = close - prev_close
//	combined_qty_amount = traded_qty * avg_price
func Map(raw model.RawRecord) (model.MappedRecord, error) {
	rec := model.MappedRecord{}

	var err error
	if rec.Symbol, err = stringField(raw, FieldSymbol); err != nil {
		return rec, err
	}
	if rec.Series, err = stringField(raw, FieldSeries); err != nil {
		return rec, err
	}
	if rec.TradeDate, err = dateField(raw, FieldDate); err != nil {
		return rec, err
	}
	if rec.PrevClose, err = decimalField(raw, FieldPrevClose); err != nil {
		return rec, err
	}
	if rec.OpenPrice, err = decimalField(raw, FieldOpenPrice); err != nil {
		return rec, err
	}
	if rec.HighPrice, err = decimalField(raw, FieldHighPrice); err != nil {
		return rec, err
	}
	if rec.LowPrice, err = decimalField(raw, FieldLowPrice); err != nil {
		return rec, err
	}
	if rec.LastPrice, err = decimalField(raw, FieldLastPrice); err != nil {
		return rec, err
	}
	if rec.ClosePrice, err = decimalField(raw, FieldClosePrice); err != nil {
		return rec, err
	}
	if rec.AvgPrice, err = decimalField(raw, FieldAvgPrice); err != nil {
		return rec, err
	}
	if rec.TradedQty, err = intField(raw, FieldTradedQty); err != nil {
		return rec, err
	}
	if rec.TurnoverLacs, err = decimalField(raw, FieldTurnoverLacs); err != nil {
		return rec, err
	}
	if rec.NoOfTrades, err = intField(raw, FieldNoOfTrades); err != nil {
		return rec, err
	}
	if rec.DeliveredQty, err = intField(raw, FieldDeliveredQty); err != nil {
		return rec, err
	}
	if rec.DeliveryPercent, err = decimalField(raw, FieldDeliveryPercent); err != nil {
		return rec, err
	}

	// A zero or negative previous close makes a percentage change
	// meaningless; it must map to zero rather than a division error.
	if rec.PrevClose.IsPositive() {
		rec.ChangePercentage = rec.ClosePrice.Sub(rec.PrevClose).
			Div(rec.PrevClose).
			Mul(decimal.NewFromInt(100)).
			Round(derivedScale)
	} else {
		rec.ChangePercentage = decimal.Zero
	}
	rec.ChangeAbsolute = rec.ClosePrice.Sub(rec.PrevClose).Round(derivedScale)
	rec.CombinedQtyAmount = decimal.NewFromInt(rec.TradedQty).Mul(rec.AvgPrice).Round(derivedScale)

	return rec, nil
}

func stringField(raw model.RawRecord, field string) (string, error) {
	value, ok := raw[field]
	if !ok || value == "" {
		return "", &MappingError{Field: field, RawValue: value, Reason: "missing required field"}
	}
	return value, nil
}

func decimalField(raw model.RawRecord, field string) (decimal.Decimal, error) {
	value, err := stringField(raw, field)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &MappingError{Field: field, RawValue: value, Reason: "not a decimal number"}
	}
	return d, nil
}

func intField(raw model.RawRecord, field string) (int64, error) {
	value, err := stringField(raw, field)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, &MappingError{Field: field, RawValue: value, Reason: "not an integer"}
	}
	return n, nil
}

func dateField(raw model.RawRecord, field string) (model.TradeDate, error) {
	value, err := stringField(raw, field)
	if err != nil {
		return model.TradeDate{}, err
	}
	d, err := model.ParseTradeDate(value)
	if err != nil {
		return model.TradeDate{}, &MappingError{Field: field, RawValue: value, Reason: "not a date"}
	}
	return d, nil
}
