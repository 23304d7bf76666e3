package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"

	cachekeys "stablecap/internal/cache"
	"stablecap/internal/cli"
	"stablecap/internal/config"
	"stablecap/internal/persistence/marketdata"
	"stablecap/internal/pipeline"
	"stablecap/pkg/coingecko"
)

const (
	defaultConfigPath = "etc/pipeline.yaml"
	pingTimeout       = 15 * time.Second

	// Exit codes: per-asset failures are reported in the summary, not here.
	exitConfig     = 1
	exitConnection = 2
)

var errCacheMiss = errors.New("stablecap: cache miss")

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	configPath := os.Getenv("PIPELINE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("[main] failed to load config %s: %v", configPath, err)
		os.Exit(exitConfig)
	}

	log.Printf("[main] configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(cfg) {
		log.Printf("  - %s", line)
	}

	if cfg.Postgres.DSN == "" {
		log.Printf("[main] postgres DSN is required (set Postgres.DSN or PG_DSN in the config)")
		os.Exit(exitConfig)
	}

	conn := sqlx.NewSqlConn("pgx", cfg.Postgres.DSN)
	if err := pingStore(conn, cfg.Postgres); err != nil {
		log.Printf("[main] store unreachable: %v", err)
		os.Exit(exitConnection)
	}
	log.Printf("[main] connected to postgres")

	upserter := marketdata.NewService(marketdata.Config{
		SQLConn:   conn,
		Cache:     buildCache(cfg),
		TTL:       cachekeys.NewTTLSet(cfg.TTL),
		BatchSize: cfg.BatchSize,
	})

	ctx := context.Background()
	if err := upserter.EnsureSchema(ctx); err != nil {
		log.Printf("[main] schema provisioning failed: %v", err)
		os.Exit(exitConnection)
	}

	providerCfg := cfg.ProviderConfig()
	client := coingecko.NewClientFromConfig(providerCfg)
	runner := pipeline.NewRunner(client, upserter, providerCfg.Assets, providerCfg.WindowDays)

	summary := runner.Run(ctx)

	log.Printf("[main] pipeline summary:")
	for _, line := range cli.RunSummaryLines(summary) {
		log.Printf("  - %s", line)
	}

	stats, err := upserter.Stats(ctx)
	if err != nil {
		logx.Errorf("load store stats: %v", err)
	} else {
		log.Printf("[main] store statistics:")
		for _, line := range cli.StatsLines(stats) {
			log.Printf("  - %s", line)
		}
	}
	// Per-asset failures never change the exit code.
}

// pingStore verifies connectivity before any asset is processed and applies
// the pool limits from config.
func pingStore(conn sqlx.SqlConn, pg config.PostgresConf) error {
	raw, err := conn.RawDB()
	if err != nil {
		return err
	}
	raw.SetMaxOpenConns(pg.MaxOpen)
	raw.SetMaxIdleConns(pg.MaxIdle)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return raw.PingContext(ctx)
}

// buildCache returns a Redis-backed cache node, or nil when Redis is not
// configured. The upserter treats nil as "skip caching".
func buildCache(cfg *config.Config) gocache.Cache {
	if cfg.Redis.Host == "" {
		return nil
	}
	rds, err := redis.NewRedis(cfg.Redis)
	if err != nil {
		log.Printf("[main] redis unavailable, continuing without cache: %v", err)
		return nil
	}
	return gocache.NewNode(rds, syncx.NewSingleFlight(), gocache.NewStat(cachekeys.Namespace), errCacheMiss)
}
