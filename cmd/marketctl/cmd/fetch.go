package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rajramk12/market-watcher/internal/ingester"
	"github.com/rajramk12/market-watcher/internal/ingester/model"
)

func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Enqueues an EOD fetch for one exchange and trading day",
		Long:  `Enqueues a fetch task; the ingester service picks it up, maps the raw rows and writes them to the price store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			exchange, _ := cmd.Flags().GetString("exchange")
			dateString, _ := cmd.Flags().GetString("date")
			date, err := model.ParseTradeDate(dateString)
			if err != nil {
				return err
			}

			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			queue, closeQueue := openQueue(config)
			defer closeQueue()

			task, err := queue.Enqueue(config.Pipeline.IngestQueue, ingester.TaskFetch, ingester.FetchPayload{
				ExchangeCode: exchange,
				Date:         date,
			})
			if err != nil {
				return err
			}
			log.Infof("Enqueued fetch task %s for %s on %s", task.Id, exchange, date)
			return nil
		},
	}
	cmd.Flags().String("exchange", "NSE", "exchange code to fetch")
	cmd.Flags().String("date", "", "trading day, e.g. 2026-01-30")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
