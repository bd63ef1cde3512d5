package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rajramk12/market-watcher/internal/common"
	"github.com/rajramk12/market-watcher/internal/configuration"
	"github.com/rajramk12/market-watcher/internal/ingester"
)

const CustomConfigLocation = "config"

func init() {
	pflag.StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)",
	)
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.IngesterConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, "./config/ingester", userSpecifiedConfigs)

	if err := config.Validate(); err != nil {
		log.Error(err)
		os.Exit(-1)
	}

	ingester.Run(&config)
}
