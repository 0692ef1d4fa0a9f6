package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pingstatus/internal/config"
	"github.com/hamed0406/pingstatus/internal/httpapi"
	apimw "github.com/hamed0406/pingstatus/internal/httpapi/middleware"
	"github.com/hamed0406/pingstatus/internal/logging"
	"github.com/hamed0406/pingstatus/internal/metrics"
	"github.com/hamed0406/pingstatus/internal/notify"
	"github.com/hamed0406/pingstatus/internal/probe"
	"github.com/hamed0406/pingstatus/internal/repo"
	"github.com/hamed0406/pingstatus/internal/repo/jsonfile"
	"github.com/hamed0406/pingstatus/internal/repo/memory"
	"github.com/hamed0406/pingstatus/internal/repo/postgres"
	"github.com/hamed0406/pingstatus/internal/repo/sqlite"
	"github.com/hamed0406/pingstatus/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server_exit", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("server_stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (err error) {
	jobs, err := jsonfile.Open(cfg.JobsPath, logger)
	if err != nil {
		// never start on top of a store we cannot read
		return err
	}

	results, pruner, closeResults, err := openResults(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeResults()) }()

	reg := prometheus.NewRegistry()
	mc := metrics.NewCollector(reg)

	runner := probe.NewDNSAnnotator(probe.NewPinger(cfg.PingBinary, cfg.ProbeGrace, logger))
	eng := scheduler.New(logger, jobs, runner, scheduler.Options{
		Tick:          cfg.TickInterval,
		MaxConcurrent: cfg.MaxConcurrent,
		Results:       results,
		Notifier:      buildNotifier(cfg, logger),
		Metrics:       mc,
	})
	if err := eng.Load(ctx); err != nil {
		return err
	}

	settings := config.NewProvider(*cfg)
	api := httpapi.NewServer(logger, jobs, results, eng, settings)
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, mc.Handler(), cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ret := scheduler.NewRetention(logger, pruner, scheduler.RetentionConfig{Keep: cfg.ResultRetention})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// only failures are sent; a clean return is not a reason to stop
	errs := make(chan error, 3)
	report := func(err error) {
		if err != nil && !errors.Is(err, context.Canceled) {
			errs <- err
		}
	}
	go func() { report(eng.Run(ctx)) }()
	go func() { report(ret.Run(ctx)) }()
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			report(err)
		}
	}()

	logger.Info("server_started",
		zap.String("jobs_path", cfg.JobsPath),
		zap.Duration("tick", cfg.TickInterval),
		zap.Int("max_concurrent", cfg.MaxConcurrent),
		zap.String("bot_token", config.MaskToken(cfg.BotToken)),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	runErr = multierr.Append(runErr, srv.Shutdown(shutdownCtx))
	// runs left over are logged by Drain and end on their own deadline
	runErr = multierr.Append(runErr, eng.Drain(shutdownCtx))
	return runErr
}

func openResults(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repo.ResultStore, repo.Pruner, func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, nil, err
		}
		logger.Info("results_store", zap.String("kind", "postgres"))
		return pg, pg, func() error { pg.Close(); return nil }, nil
	case cfg.HistoryPath != "":
		db, err := sqlite.Open(cfg.HistoryPath, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("results_store", zap.String("kind", "sqlite"), zap.String("path", cfg.HistoryPath))
		return db, db, db.Close, nil
	default:
		logger.Info("results_store", zap.String("kind", "memory"))
		return memory.New(cfg.ResultRetention), nil, func() error { return nil }, nil
	}
}

func buildNotifier(cfg *config.Config, logger *zap.Logger) notify.Notifier {
	var out notify.Multi
	if tg := notify.NewTelegram(cfg.BotToken, cfg.AdminID); tg != nil {
		out = append(out, tg)
	}
	if sl := notify.NewSlack(cfg.SlackWebhook); sl != nil {
		out = append(out, sl)
	}
	if len(out) == 0 {
		logger.Warn("notify_log_only", zap.String("hint", "set BOT_TOKEN and ADMIN_USER_ID or SLACK_WEBHOOK"))
		return notify.Log{L: logger}
	}
	return out
}
