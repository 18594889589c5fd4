package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jd3nn1s/flightreader/config"
	"github.com/jd3nn1s/flightreader/host"
	log "github.com/sirupsen/logrus"
)

var configPath = flag.String("config", "flightreader.toml", "path to the configuration file")
var testMode = flag.Bool("testmode", false, "generate test data")
var printTelemetry = flag.Bool("print-telemetry", false, "print telemetry to stdout")

func main() {
	log.SetLevel(log.InfoLevel)
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatal("unable to load configuration: ", err)
	}
	logCloser, err := config.SetupLogging(cfg)
	if err != nil {
		log.Fatal("unable to set up logging: ", err)
	}
	defer logCloser.Close()

	reader, err := host.Initialize(cfg)
	if err != nil {
		log.Fatal("unable to initialize: ", err)
	}
	defer reader.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	onTick := reader.OnTick
	if *printTelemetry {
		onTick = func(raw []byte) {
			reader.OnTick(raw)
			fmt.Printf("%+v\n", reader.Snapshot())
		}
	}

	go logStats(ctx, reader)

	if *testMode {
		log.Info("running in test mode")
		host.RunTestMode(ctx, onTick)
		return
	}
	if err := host.Ingest(ctx, cfg.IngestAddr, onTick); err != nil && ctx.Err() == nil {
		log.WithField("err", err).Error("ingestion stopped")
	}
}

func logStats(ctx context.Context, reader *host.Reader) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
		stats := reader.Stats()
		log.WithField("ticks", stats.Ticks).
			WithField("messages", stats.Messages).
			WithField("decode_errors", stats.DecodeErrors).
			WithField("frames", stats.Frames).
			WithField("clients", stats.Clients).
			Info("telemetry stats")
	}
}
