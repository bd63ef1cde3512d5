package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rajramk12/market-watcher/internal/common/database"
	"github.com/rajramk12/market-watcher/internal/ingester/metrics"
	"github.com/rajramk12/market-watcher/internal/ingester/pricedb"
	"github.com/rajramk12/market-watcher/internal/ingester/upload"
)

func backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill <file.csv>",
		Short: "Ingests one EOD csv file synchronously",
		Long: `Streams the csv row by row straight into the price store, bypassing the
task queue.  The file is consumed: it is removed once processing finishes,
whether or not every row succeeded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exchangeId, _ := cmd.Flags().GetInt64("exchange-id")

			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pool, err := openPool(config)
			if err != nil {
				return err
			}
			defer pool.Close()

			ctx := cmd.Context()
			if err := database.UpdateDatabase(ctx, pool, pricedb.Migrations()); err != nil {
				return err
			}

			priceDb := pricedb.NewPriceDb(pool, metrics.Get(),
				config.Pipeline.MaxDatabaseAttempts, config.Pipeline.MaxDatabaseBackoff)
			result, err := upload.New(priceDb).Run(ctx, args[0], exchangeId)
			if err != nil {
				return err
			}
			log.Infof("Backfill complete: %d rows upserted, %d rows failed", result.Upserted, result.Errored)
			return nil
		},
	}
	cmd.Flags().Int64("exchange-id", 1, "id of the exchange the file belongs to")
	return cmd
}
