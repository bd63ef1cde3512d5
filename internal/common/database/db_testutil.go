package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/rajramk12/market-watcher/internal/configuration"
)

// WithTestDb spins up a dedicated postgres database for a test, applies the
// supplied migrations and calls action with a pool connected to it.  The
// database is dropped afterwards.
//
//	configOverride: optional PostgresConfig specifying which instance to
//	                connect to; defaults to localhost.  If an override is
//	                given the database is not cleaned up after the test.
func WithTestDb(migrations []Migration, configOverride *configuration.PostgresConfig, action func(db *pgxpool.Pool) error) error {
	ctx := context.Background()

	var testDbPool *pgxpool.Pool
	if configOverride != nil {
		db, err := OpenPgxPool(*configOverride)
		testDbPool = db
		if err != nil {
			return errors.WithStack(err)
		}

		defer testDbPool.Close()
	} else {
		// Connect and create a dedicated database for the test
		dbName := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		connectionString := "host=localhost port=5432 user=postgres password=psw sslmode=disable"
		db, err := pgx.Connect(ctx, connectionString)
		if err != nil {
			return errors.WithStack(err)
		}
		defer db.Close(ctx)

		_, err = db.Exec(ctx, "CREATE DATABASE "+dbName)
		if err != nil {
			return errors.WithStack(err)
		}

		// Connect again, this time to the database we just created.
		testDbPool, err = pgxpool.Connect(ctx, connectionString+" dbname="+dbName)
		if err != nil {
			return errors.WithStack(err)
		}

		defer func() {
			// disconnect all db users before cleanup
			_, err = db.Exec(ctx,
				`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = '`+dbName+`';`)
			if err != nil {
				fmt.Println("Failed to disconnect users")
			}

			_, err = db.Exec(ctx, "DROP DATABASE "+dbName)
			if err != nil {
				fmt.Println("Failed to drop database")
			}
		}()
	}

	err := UpdateDatabase(ctx, testDbPool, migrations)
	if err != nil {
		return errors.WithStack(err)
	}

	return action(testDbPool)
}
