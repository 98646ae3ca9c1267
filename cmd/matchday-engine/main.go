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
	"go.uber.org/zap"

	mcache "github.com/radieske/virtual-matchday/internal/matchday/cache"
	"github.com/radieske/virtual-matchday/internal/matchday/failure"
	"github.com/radieske/virtual-matchday/internal/matchday/fixtures"
	httpapi "github.com/radieske/virtual-matchday/internal/matchday/http"
	"github.com/radieske/virtual-matchday/internal/matchday/ledger"
	mmetrics "github.com/radieske/virtual-matchday/internal/matchday/metrics"
	"github.com/radieske/virtual-matchday/internal/matchday/orchestrator"
	"github.com/radieske/virtual-matchday/internal/matchday/publisher"
	"github.com/radieske/virtual-matchday/internal/matchday/query"
	"github.com/radieske/virtual-matchday/internal/matchday/repo"
	"github.com/radieske/virtual-matchday/internal/matchday/schedule"
	"github.com/radieske/virtual-matchday/internal/matchday/script"
	"github.com/radieske/virtual-matchday/internal/matchday/ws"
	"github.com/radieske/virtual-matchday/internal/shared/cache"
	"github.com/radieske/virtual-matchday/internal/shared/config"
	"github.com/radieske/virtual-matchday/internal/shared/db"
	"github.com/radieske/virtual-matchday/internal/shared/kafka"
	"github.com/radieske/virtual-matchday/internal/shared/logger"
	"github.com/radieske/virtual-matchday/internal/shared/metrics"
)

func main() {
	// carrega config
	cfg := config.Load()

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	// sem ledger não há motor: falha de configuração encerra o processo
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration",
			zap.String("kind", string(failure.Classify(err))), zap.Error(err))
	}

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// banco (Postgres ou SQLite local)
	sqlDB, err := db.Connect(cfg.DBDriver, cfg.PostgresDSN, cfg.SQLitePath)
	if err != nil {
		log.Fatal("failed to connect database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer sqlDB.Close()

	store := repo.NewSQLStore(sqlDB)
	if err := store.Migrate(ctx); err != nil {
		log.Fatal("failed to migrate schema", zap.Error(err))
	}
	// leituras da API não disputam a conexão presa pela transação do motor
	readDB, err := db.ConnectReader(cfg.DBDriver, cfg.SQLitePath, sqlDB)
	if err != nil {
		log.Fatal("failed to open read pool", zap.Error(err))
	}
	if readDB != sqlDB {
		defer readDB.Close()
	}
	log.Info("database ready", zap.String("driver", cfg.DBDriver))

	// cache Redis
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	// writers Kafka, um por tópico
	releasedW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundsReleased)
	defer releasedW.Close()
	settledW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicMatchesSettled)
	defer settledW.Close()
	rejectW := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicLedgerRejections)
	defer rejectW.Close()

	leagues, err := schedule.LoadCatalog(cfg.LeaguesFile)
	if err != nil {
		log.Fatal("failed to load league catalog", zap.String("file", cfg.LeaguesFile), zap.Error(err))
	}

	e := cfg.Engine
	builder := schedule.NewBuilder(schedule.Config{
		Seed:          e.Seed,
		LeagueGap:     e.LeagueGap,
		RoundGap:      e.RoundGap,
		MatchDuration: e.MatchDuration,
		MinimumBuffer: e.MinimumBuffer,
	}, script.New(script.DefaultConfig()))

	ledgerClient := ledger.NewHTTPClient(cfg.LedgerURL, cfg.LedgerContract, cfg.LedgerTimeout, log)

	var source fixtures.Source
	if cfg.FixtureAPI != "" {
		source = fixtures.NewHTTPSource(cfg.FixtureAPI, cfg.FixtureAPIKey)
	}

	matchCache := mcache.New(redisClient)
	m := mmetrics.New(prometheus.DefaultRegisterer)

	engine := orchestrator.New(orchestrator.Deps{
		Store:    store,
		Ledger:   ledgerClient,
		Fixtures: source,
		Builder:  builder,
		Leagues:  leagues,
		Publisher: &publisher.Publisher{
			RoundsReleased:   releasedW,
			MatchesSettled:   settledW,
			LedgerRejections: rejectW,
			Redis:            redisClient,
			Channel:          cfg.RedisPubSubChannel,
		},
		Cache:  matchCache,
		Logger: log,
		Hooks:  m.Hooks(),
	}, orchestrator.Config{
		TickInterval:     e.TickInterval,
		SettlementGrace:  e.SettlementGrace,
		RetentionWindow:  e.RetentionWindow,
		QuarantineWindow: e.QuarantineWindow,
		LedgerTimeout:    cfg.LedgerTimeout,
		SettlementBatch:  e.SettlementBatch,
		PauseTasks:       e.PauseTasks,
	})

	// caminho de leitura: REST + WS
	reads := query.New(repo.NewSQLStore(readDB), log, query.WithCache(matchCache, 30*time.Second))
	hub := ws.NewHub(reads, func(*http.Request) bool { return true }, log)
	ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, hub, log)

	api := &httpapi.API{Reads: reads, WS: hub.HandleWS}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	// métricas e health
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log, map[string]metrics.HealthFunc{
		"database": store.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})
	log.Info("metrics/health server starting", zap.String("port", cfg.MetricsPort))

	// bloqueia até SIGINT/SIGTERM
	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("engine stopped with error", zap.Error(err))
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
}
