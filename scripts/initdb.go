package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"coincharts/internal/config"
)

// Creates the series_bars table and its uniqueness constraint. Safe to re-run.
const schema = `
CREATE TABLE IF NOT EXISTS public.series_bars (
    id           BIGSERIAL PRIMARY KEY,
    symbol       TEXT             NOT NULL,
    period_start TIMESTAMPTZ      NOT NULL,
    period_end   TIMESTAMPTZ      NOT NULL,
    time_open    TIMESTAMPTZ      NOT NULL,
    time_close   TIMESTAMPTZ      NOT NULL,
    open         DOUBLE PRECISION NOT NULL,
    high         DOUBLE PRECISION NOT NULL,
    low          DOUBLE PRECISION NOT NULL,
    close        DOUBLE PRECISION NOT NULL,
    volume       DOUBLE PRECISION NOT NULL,
    trade_count  BIGINT           NOT NULL,
    created_at   TIMESTAMPTZ      NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS series_bars_symbol_period_end_idx
    ON public.series_bars (symbol, period_end);
`

func main() {
	configFile := flag.String("f", "etc/coincharts.yaml", "the config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Postgres.DSN == "" {
		fmt.Fprintln(os.Stderr, "no Postgres DSN configured; nothing to do")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn := sqlx.NewSqlConn("pgx", cfg.Postgres.DSN)
	if _, err := conn.ExecCtx(ctx, schema); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("series_bars schema applied")
}
