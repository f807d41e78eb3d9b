package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"coincharts/internal/config"
	"coincharts/internal/svc"
	"coincharts/pkg/align"
)

var (
	configFile = flag.String("f", "etc/coincharts.yaml", "the config file")
	sinceFlag  = flag.String("since", "", "only include bars at or after this RFC3339 time")
	symbolsArg = flag.String("symbols", "", "comma-separated symbols (defaults to config symbols)")
)

// compare prints the normalised average of the configured series as CSV on
// stdout, one row per aligned bucket.
func main() {
	flag.Parse()
	log.SetFlags(0)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config %s: %v", *configFile, err)
	}

	symbols := cfg.Symbols
	if *symbolsArg != "" {
		symbols = symbols[:0]
		for _, sym := range strings.Split(*symbolsArg, ",") {
			if trimmed := strings.TrimSpace(sym); trimmed != "" {
				symbols = append(symbols, trimmed)
			}
		}
	}
	if len(symbols) == 0 {
		log.Fatalf("no symbols: pass -symbols or list them in the config")
	}

	var since time.Time
	if *sinceFlag != "" {
		since, err = time.Parse(time.RFC3339, *sinceFlag)
		if err != nil {
			log.Fatalf("parse -since %q: %v", *sinceFlag, err)
		}
		since = since.UTC()
	}

	svcCtx := svc.NewServiceContext(*cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stream, err := align.NewPipeline(svcCtx.Store).Stream(ctx, symbols, since)
	if err != nil {
		log.Fatalf("build comparison stream: %v", err)
	}

	fmt.Println("time,average")
	count := 0
	for {
		pt, ok := stream.Next()
		if !ok {
			break
		}
		fmt.Printf("%s,%.6f\n", pt.Time.UTC().Format(time.RFC3339), pt.Average)
		count++
	}
	if count == 0 {
		fmt.Fprintln(os.Stderr, "no aligned points (are the series populated?)")
	}
}
