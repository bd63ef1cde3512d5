package main

import (
	"os"

	"github.com/rajramk12/market-watcher/cmd/marketctl/cmd"
	"github.com/rajramk12/market-watcher/internal/common"
)

func main() {
	common.ConfigureLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
