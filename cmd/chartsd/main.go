package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"coincharts/internal/cli"
	"coincharts/internal/config"
	"coincharts/internal/svc"
	"coincharts/pkg/ingest"
	"coincharts/pkg/journal"
)

const shutdownTimeout = 10 * time.Second

// defaultSymbols is used when the config lists none.
var defaultSymbols = []string{
	"BITSTAMP_SPOT_BTC_USD",
	"BITSTAMP_SPOT_XRP_USD",
	"BITSTAMP_SPOT_ETH_USD",
	"BITSTAMP_SPOT_LTC_USD",
	"BITSTAMP_SPOT_EUR_USD",
	"BITSTAMP_SPOT_BCH_USD",
}

var configFile = flag.String("f", "etc/coincharts.yaml", "the config file")

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting chartsd...")

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[main] Failed to load config %s: %v", *configFile, err)
	}

	svcCtx := svc.NewServiceContext(*cfg)
	if svcCtx.DefaultSource == nil {
		log.Fatalf("[main] No default quote source configured; set quote config default")
	}

	symbols := cfg.Symbols
	if len(symbols) == 0 {
		symbols = defaultSymbols
	}

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(cfg) {
		log.Printf("  - %s", line)
	}
	log.Printf("  - Active symbols: %v", symbols)

	engine := ingest.NewEngine(svcCtx.Store, svcCtx.DefaultSource)

	var schedOpts []ingest.SchedulerOption
	if cfg.JournalDir != "" {
		writer := journal.NewWriter(cfg.JournalDir)
		schedOpts = append(schedOpts, ingest.WithCycleObserver(func(res ingest.CycleResult) {
			rec := &journal.CycleRecord{
				Timestamp: res.At,
				Symbol:    res.Symbol,
				Inserted:  res.Inserted,
				Success:   res.Err == nil,
			}
			if res.Err != nil {
				rec.ErrorMessage = res.Err.Error()
			}
			if _, err := writer.WriteCycle(rec); err != nil {
				log.Printf("[main] journal write failed: %v", err)
			}
		}))
	}
	scheduler := ingest.NewScheduler(engine, symbols, cfg.PassEvery(), schedOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	log.Println("[main] chartsd started. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Println("[main] Shutdown signal received, stopping ingestion...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[main] Ingestion stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("[main] Shutdown timeout exceeded, forcing exit")
	}

	log.Println("[main] chartsd stopped")
}
