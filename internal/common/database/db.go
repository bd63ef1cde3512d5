package database

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/rajramk12/market-watcher/internal/configuration"
)

// CreateConnectionString builds a libpq-style connection string from a map of
// parameters.  See https://www.postgresql.org/docs/10/libpq-connect.html
func CreateConnectionString(values map[string]string) string {
	result := ""
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	for k, v := range values {
		result += k + "='" + replacer.Replace(v) + "' "
	}
	return strings.TrimSpace(result)
}

func OpenPgxPool(config configuration.PostgresConfig) (*pgxpool.Pool, error) {
	db, err := pgxpool.Connect(context.Background(), CreateConnectionString(config.Connection))
	if err != nil {
		return nil, err
	}
	err = db.Ping(context.Background())
	return db, err
}
