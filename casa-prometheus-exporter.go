package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaClient"
	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaEntities"
	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaMqtt"
)

const shutdownTimeout = 5 * time.Second

func main() {
	initCliFlags()
	if err := initConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		os.Exit(1)
	}
	defer sugar.Sync() // flushes buffer, if any

	sugar.Info("Starting Casa-Exporter")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Info("Creating Metrics-Registry")
	// Create a non-global registry.
	reg := prometheus.NewRegistry()

	sugar.Info("Registering Metrics")
	reg.MustRegister(collectors.NewBuildInfoCollector())
	reg.MustRegister(collectors.NewGoCollector())
	clientMetrics := casaClient.NewMetrics(reg)
	exporterMetrics := NewMetrics(reg, sugar)

	client := casaClient.NewCasaApiClient(cfg.Casa.Host, cfg.Casa.Username, cfg.Casa.Password, cfg.ClientOptions(), sugar)
	client.SetMetrics(clientMetrics)
	poller := casaClient.NewPoller(client, cfg.PollInterval(), sugar, clientMetrics)

	if err := poller.Subscribe("prometheus", exporterMetrics.HandleSnapshot); err != nil {
		sugar.Fatal(err)
	}
	entities := casaEntities.NewSet(client, sugar)
	if err := entities.Subscribe(poller); err != nil {
		sugar.Fatal(err)
	}

	var bridge *casaMqtt.Bridge
	if cfg.Mqtt.Enabled {
		broker, err := casaMqtt.Dial(cfg.MqttConfig(), sugar)
		if err != nil {
			sugar.Fatal(err)
		}
		bridge = casaMqtt.NewBridge(broker, entities, cfg.MqttConfig(), sugar)
		if err := bridge.Start(ctx); err != nil {
			sugar.Fatal(err)
		}
	}

	poller.Start(ctx)

	server := newHttpServer(newRouter(reg, entities, sugar), cfg.Metrics.Port)
	go func() {
		sugar.Infof("Serving metrics and entities on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorf("Metrics server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	sugar.Info("Catch Keyboard interrupt")
	poller.Stop()
	if bridge != nil {
		bridge.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("Shutting down metrics server: %v", err)
	}
}
