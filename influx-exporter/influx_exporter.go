package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaClient"
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

func initConfig() error {
	bootstrap, err := casaConfig.NewLogger("")
	if err != nil {
		return err
	}
	cfg, err = casaConfig.Load(viper.GetViper(), configPath, bootstrap.Sugar())
	if err != nil {
		return err
	}
	if cfg.Influxdb.Host == "" {
		return fmt.Errorf("%w: influxdb.host is required", casaConfig.ErrInvalidConfig)
	}
	logger, err := casaConfig.NewLogger(cfg.Log.File)
	if err != nil {
		return err
	}
	sugar = logger.Sugar()
	return nil
}

func main() {
	initCliFlags()
	if err := initConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		os.Exit(1)
	}
	defer sugar.Sync() // flushes buffer, if any

	sugar.Info("Starting Influx-Exporter")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create a new client using an InfluxDB server base URL and an authentication token
	influxClient := influxdb2.NewClient(cfg.Influxdb.Host, cfg.Influxdb.Token)
	defer influxClient.Close()
	// Use blocking write client for writes to desired bucket
	writer := newInfluxWriter(influxClient.WriteAPIBlocking(cfg.Influxdb.Org, cfg.Influxdb.Bucket), sugar)

	client := casaClient.NewCasaApiClient(cfg.Casa.Host, cfg.Casa.Username, cfg.Casa.Password, cfg.ClientOptions(), sugar)
	poller := casaClient.NewPoller(client, cfg.PollInterval(), sugar, nil)
	if err := poller.Subscribe("influxdb", writer.HandleSnapshot); err != nil {
		sugar.Fatal(err)
	}
	poller.Start(ctx)

	<-ctx.Done()
	sugar.Info("Catch Keyboard interrupt")
	poller.Stop()
}
