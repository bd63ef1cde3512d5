package cmd

import (
	"github.com/go-redis/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"github.com/rajramk12/market-watcher/internal/common"
	"github.com/rajramk12/market-watcher/internal/common/database"
	"github.com/rajramk12/market-watcher/internal/configuration"
	"github.com/rajramk12/market-watcher/internal/taskqueue"
)

const configFlag = "config"

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "marketctl",
		Short: "marketctl controls the market-watcher ingestion pipeline.",
	}

	cmd.PersistentFlags().StringSlice(
		configFlag,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)",
	)

	cmd.AddCommand(
		fetchCmd(),
		backfillCmd(),
		deadLetterCmd(),
		pricesCmd(),
	)

	return cmd
}

func loadConfig(cmd *cobra.Command) (*configuration.IngesterConfiguration, error) {
	overrides, _ := cmd.Flags().GetStringSlice(configFlag)
	config := &configuration.IngesterConfiguration{}
	common.LoadConfig(config, "./config/ingester", overrides)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func openQueue(config *configuration.IngesterConfiguration) (*taskqueue.Queue, func()) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.Db,
		PoolSize: config.Redis.PoolSize,
	})
	queue := taskqueue.NewQueue(client, config.Pipeline.MaxTaskAttempts, config.Pipeline.RetryBackoff)
	return queue, func() { _ = client.Close() }
}

func openPool(config *configuration.IngesterConfiguration) (*pgxpool.Pool, error) {
	return database.OpenPgxPool(config.Postgres)
}
