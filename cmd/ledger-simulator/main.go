package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/virtual-matchday/internal/ledgersim"
	"github.com/radieske/virtual-matchday/internal/shared/config"
	"github.com/radieske/virtual-matchday/internal/shared/logger"
	"github.com/radieske/virtual-matchday/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(ledgersim.Requests)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := ledgersim.New(ledgersim.Config{
		Contract:      cfg.LedgerContract,
		RejectPercent: cfg.Engine.SimulatorRejects,
	}, rand.New(rand.NewSource(time.Now().UnixNano())), log)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           sim.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("ledger simulator listening",
			zap.String("addr", srv.Addr),
			zap.String("contract", cfg.LedgerContract),
			zap.Int("reject_percent", cfg.Engine.SimulatorRejects))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, log, nil)

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = msrv.Shutdown(shutdownCtx)
}
