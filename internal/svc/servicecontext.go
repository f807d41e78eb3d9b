package svc

import (
	"database/sql"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"

	cachekeys "coincharts/internal/cache"
	"coincharts/internal/config"
	seriespersist "coincharts/internal/persistence/series"
	quotepkg "coincharts/pkg/quote"
	_ "coincharts/pkg/quote/coinapi"
	seriespkg "coincharts/pkg/series"
)

type ServiceContext struct {
	Config config.Config

	QuoteConfig   *quotepkg.Config
	QuoteSources  map[string]quotepkg.Source
	DefaultSource quotepkg.Source

	DBConn sqlx.SqlConn
	Cache  gocache.Cache
	TTL    cachekeys.TTLSet

	Store seriespkg.Store
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config: c,
		TTL:    cachekeys.NewTTLSet(c.TTL),
	}

	if quoteCfg := c.Quote.Value; quoteCfg != nil {
		sources, err := quoteCfg.BuildSources()
		if err != nil {
			log.Fatalf("failed to build quote sources: %v", err)
		}
		svc.QuoteConfig = quoteCfg
		svc.QuoteSources = sources
		if quoteCfg.Default != "" {
			svc.DefaultSource = sources[quoteCfg.Default]
		}
	}

	if c.Redis.Host != "" {
		node := redis.MustNewRedis(c.Redis)
		svc.Cache = gocache.NewNode(node, syncx.NewSingleFlight(), gocache.NewStat(cachekeys.Namespace), sql.ErrNoRows)
	}

	// The Postgres store is the system of record; without a DSN we fall back
	// to the in-memory store so one-shot tooling still works.
	if c.Postgres.DSN != "" {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		svc.DBConn = conn
		svc.Store = seriespersist.NewService(seriespersist.Config{
			SQLConn: conn,
			Cache:   svc.Cache,
			TTL:     svc.TTL,
		})
	} else {
		svc.Store = seriespkg.NewMemoryStore()
	}

	return svc
}
