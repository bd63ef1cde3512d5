package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rajramk12/market-watcher/internal/repository"
)

func pricesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Shows stored daily prices for one instrument, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			exchange, _ := cmd.Flags().GetString("exchange")
			symbol, _ := cmd.Flags().GetString("symbol")
			limit, _ := cmd.Flags().GetUint("limit")

			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pool, err := openPool(config)
			if err != nil {
				return err
			}
			defer pool.Close()

			history, err := repository.NewPriceRepository(pool).GetPriceHistory(cmd.Context(), exchange, symbol, limit)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				fmt.Printf("No prices stored for %s:%s\n", exchange, symbol)
				return nil
			}
			for _, row := range history {
				fmt.Printf("%s  close=%s prev=%s change=%s%% qty=%d\n",
					row.TradeDate.Format("2006-01-02"),
					row.ClosePrice, row.PrevClose, row.ChangePercentage, row.TradedQty)
			}
			return nil
		},
	}
	cmd.Flags().String("exchange", "NSE", "exchange code")
	cmd.Flags().String("symbol", "", "instrument symbol")
	cmd.Flags().Uint("limit", 30, "maximum number of days to show")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}
