package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tooltally/internal/config"
	"tooltally/internal/enrich"
	"tooltally/internal/pkg/logger"
	"tooltally/internal/pkg/metrics"
	"tooltally/internal/resolver"
	"tooltally/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// main 是解析器的入口函数。
//
// 它负责：
// 1. 加载配置
// 2. 初始化日志与指标
// 3. 打开数据库并迁移
// 4. 按运行模式执行：单轮解析（默认）、循环解析（-loop）、
//    MPN 回填（-backfill-mpn）或报价去重（-prune-offers）
// 5. 优雅关闭
func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径（默认 configs/config.json）")
		loop        = flag.Bool("loop", false, "循环模式：按 loop_interval 间隔持续解析")
		backfillMPN = flag.Bool("backfill-mpn", false, "只执行 MPN 回填后退出")
		pruneOffers = flag.Bool("prune-offers", false, "只执行报价去重后退出")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewDefault(cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.InitMetrics()

	db, err := storage.Open(cfg, appLogger)
	if err != nil {
		appLogger.Error("open storage failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 一次性维护任务走独立分支，跑完即退
	switch {
	case *backfillMPN:
		if _, err := enrich.BackfillMPN(ctx, db, appLogger); err != nil {
			appLogger.Error("mpn backfill failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	case *pruneOffers:
		deleted, err := resolver.PruneOffers(db)
		if err != nil {
			appLogger.Error("prune offers failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		appLogger.Info("offer prune finished", slog.Int64("deleted", deleted))
		return
	}

	metricsServer := &http.Server{
		Addr:    cfg.App.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		appLogger.Info("resolver metrics server started", slog.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	r := resolver.New(db, appLogger, cfg.Resolver)

	runOnce := func() {
		stats, err := r.Run(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			appLogger.Error("resolve run failed",
				slog.String("run_id", stats.RunID),
				slog.String("error", err.Error()))
			return
		}
	}

	runOnce()
	if *loop {
		ticker := time.NewTicker(cfg.Resolver.LoopInterval)
		defer ticker.Stop()
	loopRun:
		for {
			select {
			case <-ctx.Done():
				break loopRun
			case <-ticker.C:
				runOnce()
			}
		}
	}

	appLogger.Info("shutting down resolver...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown error", slog.String("error", err.Error()))
	}
	appLogger.Info("resolver stopped gracefully")
}
