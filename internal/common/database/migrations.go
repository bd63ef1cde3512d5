package database

import (
	"context"

	"github.com/jackc/pgtype/pgxtype"
	log "github.com/sirupsen/logrus"
)

type Migration struct {
	Id   int
	Name string
	Sql  string
}

// UpdateDatabase applies all migrations with an id greater than the current
// database version, in order, bumping the version after each one.
func UpdateDatabase(ctx context.Context, db pgxtype.Querier, migrations []Migration) error {
	log.Info("Updating postgres...")
	version, err := readVersion(ctx, db)
	if err != nil {
		return err
	}
	log.Infof("Current database version %v", version)

	for _, m := range migrations {
		if m.Id > version {
			log.Infof("Applying migration %d: %s", m.Id, m.Name)
			_, err := db.Exec(ctx, m.Sql)
			if err != nil {
				return err
			}

			version = m.Id
			err = setVersion(ctx, db, version)
			if err != nil {
				return err
			}
		}
	}
	log.Info("Database updated.")
	return nil
}

func readVersion(ctx context.Context, db pgxtype.Querier) (int, error) {
	_, err := db.Exec(ctx,
		`CREATE SEQUENCE IF NOT EXISTS database_version START WITH 0 MINVALUE 0;`)
	if err != nil {
		return 0, err
	}

	result, err := db.Query(ctx,
		`SELECT last_value FROM database_version`)
	if err != nil {
		return 0, err
	}
	defer result.Close()
	var version int
	result.Next()
	err = result.Scan(&version)

	return version, err
}

func setVersion(ctx context.Context, db pgxtype.Querier, version int) error {
	_, err := db.Exec(ctx, `SELECT setval('database_version', $1)`, version)
	return err
}
