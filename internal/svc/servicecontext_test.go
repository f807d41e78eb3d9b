package svc_test

import (
	"context"
	"testing"

	"coincharts/internal/config"
	"coincharts/internal/svc"
	quotepkg "coincharts/pkg/quote"
)

// TestNewServiceContext_memoryFallback verifies that without a Postgres DSN
// the context wires an in-memory store so one-shot tooling still works.
func TestNewServiceContext_memoryFallback(t *testing.T) {
	cfg := config.Config{Env: "test"}
	sc := svc.NewServiceContext(cfg)
	if sc.Store == nil {
		t.Fatalf("expected in-memory store fallback, got nil")
	}
	latest, err := sc.Store.Latest(context.Background(), "BITSTAMP_SPOT_BTC_USD")
	if err != nil {
		t.Fatalf("Latest on empty store: %v", err)
	}
	if latest != nil {
		t.Fatalf("expected nil latest bar for empty series, got %+v", latest)
	}
}

func TestNewServiceContext_quoteSources(t *testing.T) {
	quoteCfg := &quotepkg.Config{
		Default: "coinapi",
		Sources: map[string]*quotepkg.SourceConfig{
			"coinapi": {Type: "coinapi", APIKey: "test-key"},
		},
	}
	cfg := config.Config{Env: "test"}
	cfg.Quote.Value = quoteCfg

	sc := svc.NewServiceContext(cfg)
	if len(sc.QuoteSources) != 1 {
		t.Fatalf("expected one quote source, got %d", len(sc.QuoteSources))
	}
	if sc.DefaultSource == nil {
		t.Fatalf("default quote source not selected")
	}
}
