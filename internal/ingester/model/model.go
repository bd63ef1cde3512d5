package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// RawRecord is one tabular row as delivered by an upstream source, keyed by
// the upstream header names.  It is consumed exactly once by the row mapper.
type RawRecord map[string]string

// MappedRecord is the typed form of one (instrument, trading day) row.
// All validation and conversion happens at the mapper boundary; downstream
// components never inspect raw fields.
type MappedRecord struct {
	Symbol            string          `json:"symbol"`
	Series            string          `json:"series"`
	TradeDate         TradeDate       `json:"tradeDate"`
	PrevClose         decimal.Decimal `json:"prevClose"`
	OpenPrice         decimal.Decimal `json:"openPrice"`
	HighPrice         decimal.Decimal `json:"highPrice"`
	LowPrice          decimal.Decimal `json:"lowPrice"`
	LastPrice         decimal.Decimal `json:"lastPrice"`
	ClosePrice        decimal.Decimal `json:"closePrice"`
	AvgPrice          decimal.Decimal `json:"avgPrice"`
	TradedQty         int64           `json:"tradedQty"`
	TurnoverLacs      decimal.Decimal `json:"turnoverLacs"`
	NoOfTrades        int64           `json:"noOfTrades"`
	DeliveredQty      int64           `json:"deliveredQty"`
	DeliveryPercent   decimal.Decimal `json:"deliveryPercent"`
	ChangePercentage  decimal.Decimal `json:"changePercentage"`
	ChangeAbsolute    decimal.Decimal `json:"changeAbsolute"`
	CombinedQtyAmount decimal.Decimal `json:"combinedQtyAmount"`
}

// Batch is a bounded, ordered group of mapped rows for one exchange.  It is
// the payload of a db_write task and has no identity beyond its contents.
type Batch struct {
	ExchangeId int64          `json:"exchangeId"`
	Rows       []MappedRecord `json:"rows"`
}

const tradeDateFormat = "2006-01-02"

// TradeDate is a calendar date with day granularity, serialised as
// "2006-01-02".  The embedded time is always midnight UTC.
type TradeDate struct {
	time.Time
}

func NewTradeDate(year int, month time.Month, day int) TradeDate {
	return TradeDate{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d TradeDate) String() string {
	return d.Format(tradeDateFormat)
}

func (d TradeDate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(tradeDateFormat) + `"`), nil
}

func (d *TradeDate) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := time.ParseInLocation(tradeDateFormat, s, time.UTC)
	if err != nil {
		return errors.Wrapf(err, "invalid trade date %q", s)
	}
	d.Time = parsed
	return nil
}

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// ParseTradeDate parses the bhavcopy date format "02-JAN-2006" (month case
// insensitive) and, as a convenience for operator input, ISO "2006-01-02".
func ParseTradeDate(s string) (TradeDate, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(tradeDateFormat, s, time.UTC); err == nil {
		return TradeDate{t}, nil
	}

	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return TradeDate{}, errors.Errorf("invalid trade date %q", s)
	}
	day, dayErr := strconv.Atoi(parts[0])
	month, ok := months[strings.ToUpper(parts[1])]
	year, yearErr := strconv.Atoi(parts[2])
	if dayErr != nil || !ok || yearErr != nil {
		return TradeDate{}, errors.Errorf("invalid trade date %q", s)
	}
	return NewTradeDate(year, month, day), nil
}
