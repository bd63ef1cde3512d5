package pricedb

import "github.com/rajramk12/market-watcher/internal/common/database"

// Migrations returns the price store schema, applied in order by the shared
// migration runner.
func Migrations() []database.Migration {
	return []database.Migration{
		{
			Id:   1,
			Name: "create_exchange",
			Sql: `
				CREATE TABLE exchange (
					id         bigserial PRIMARY KEY,
					code       varchar(16)  NOT NULL UNIQUE,
					name       varchar(128),
					created_at timestamptz  NOT NULL DEFAULT now(),
					updated_at timestamptz  NOT NULL DEFAULT now()
				);
				INSERT INTO exchange (code, name) VALUES ('NSE', 'National Stock Exchange of India');`,
		},
		{
			Id:   2,
			Name: "create_instrument",
			Sql: `
				CREATE TABLE instrument (
					id              bigserial PRIMARY KEY,
					exchange_id     bigint       NOT NULL REFERENCES exchange (id),
					symbol          varchar(32)  NOT NULL,
					name            varchar(256),
					isin            varchar(12),
					active          boolean      NOT NULL DEFAULT true,
					last_close      numeric(15,4),
					last_trade_date date,
					created_at      timestamptz  NOT NULL DEFAULT now(),
					updated_at      timestamptz  NOT NULL DEFAULT now(),
					UNIQUE (exchange_id, symbol)
				);`,
		},
		{
			Id:   3,
			Name: "create_daily_price",
			Sql: `
				CREATE TABLE daily_price (
					instrument_id       bigint        NOT NULL REFERENCES instrument (id),
					trade_date          date          NOT NULL,
					series              varchar(8),
					prev_close          numeric(15,4) NOT NULL,
					open_price          numeric(15,4) NOT NULL,
					high_price          numeric(15,4) NOT NULL,
					low_price           numeric(15,4) NOT NULL,
					last_price          numeric(15,4) NOT NULL,
					close_price         numeric(15,4) NOT NULL,
					avg_price           numeric(15,4) NOT NULL,
					traded_qty          bigint        NOT NULL,
					turnover_lacs       numeric(20,4) NOT NULL,
					no_of_trades        bigint        NOT NULL,
					delivered_qty       bigint        NOT NULL,
					delivery_percent    numeric(7,4)  NOT NULL,
					change_percentage   numeric(15,4) NOT NULL,
					change_absolute     numeric(15,4) NOT NULL,
					combined_qty_amount numeric(20,4) NOT NULL,
					created_at          timestamptz   NOT NULL DEFAULT now(),
					updated_at          timestamptz   NOT NULL DEFAULT now(),
					PRIMARY KEY (instrument_id, trade_date)
				);
				CREATE INDEX idx_daily_price_trade_date ON daily_price (trade_date);`,
		},
	}
}
