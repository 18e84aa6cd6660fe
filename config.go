package main

import (
	"flag"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaConfig"
)

var (
	sugar      *zap.SugaredLogger
	configPath string
	cfg        casaConfig.Config
)

func initCliFlags() {
	flag.StringVar(&configPath, "configFile", "config.yaml", "Path to the config.yaml File.")
	flag.Parse()
}

// initConfig loads the configuration with a console logger and then moves
// logging to the configured log file.
func initConfig() error {
	bootstrap, err := casaConfig.NewLogger("")
	if err != nil {
		return err
	}
	cfg, err = casaConfig.Load(viper.GetViper(), configPath, bootstrap.Sugar())
	if err != nil {
		return err
	}
	logger, err := casaConfig.NewLogger(cfg.Log.File)
	if err != nil {
		return err
	}
	sugar = logger.Sugar()
	return nil
}
