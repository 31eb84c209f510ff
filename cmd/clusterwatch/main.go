// cmd/clusterwatch/main.go
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/carverauto/clusterwatch/pkg/api"
	"github.com/carverauto/clusterwatch/pkg/config"
	"github.com/carverauto/clusterwatch/pkg/engine"
	"github.com/carverauto/clusterwatch/pkg/lifecycle"
	"github.com/carverauto/clusterwatch/pkg/logger"
	"github.com/carverauto/clusterwatch/pkg/observability"
	"github.com/carverauto/clusterwatch/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const serviceName = "clusterwatch"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/clusterwatch/clusterwatch.json", "Path to config file")
	flag.Parse()

	var cfg config.Config
	if err := config.LoadAndValidate(*configPath, &cfg); err != nil {
		return err
	}

	zl, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}

	defer func() { _ = zl.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rec, err := observability.NewProm(reg)
	if err != nil {
		return err
	}

	client, err := telemetry.NewHTTPClient(cfg.TelemetryURL,
		telemetry.WithTimeout(time.Duration(cfg.RequestTimeout)),
		telemetry.WithLogger(zl.Named("telemetry")))
	if err != nil {
		return err
	}

	eng, err := engine.New(&cfg, client, zl.Named("engine"), engine.WithRecorder(rec))
	if err != nil {
		return err
	}

	apiServer := api.NewAPIServer(eng,
		api.WithLogger(zl.Named("api")),
		api.WithGatherer(reg))

	zl.Info("Configuration loaded",
		zap.String("config", *configPath),
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("grpc_addr", cfg.GrpcAddr),
		zap.String("telemetry_url", cfg.TelemetryURL),
		zap.Int("datasets", len(cfg.Datasets)))

	return lifecycle.RunServer(context.Background(), &lifecycle.ServerOptions{
		HTTPAddr:    cfg.ListenAddr,
		HTTPHandler: apiServer.Handler(),
		GRPCAddr:    cfg.GrpcAddr,
		ServiceName: serviceName,
		Service:     eng,
		Logger:      zl,
	})
}
