package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mailtriage/internal/api"
	"mailtriage/internal/auth"
	"mailtriage/internal/classifier"
	appconfig "mailtriage/internal/config"
	"mailtriage/internal/queue"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/otel"
	redisclient "mailtriage/pkg/redis"
	"mailtriage/pkg/util"
)

type app struct {
	cfg    *appconfig.Config
	role   string
	logger *zap.Logger

	rdb    *goredis.Client
	store  queue.Store
	broker queue.Broker

	srv    *http.Server
	worker *queue.Worker

	shutdownOtel func()
}

func newApp(ctx context.Context, cfg *appconfig.Config, role string) (*app, error) {
	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	log = log.With(zap.String("role", role))

	a := &app{cfg: cfg, role: role, logger: log, shutdownOtel: func() {}}

	a.shutdownOtel, err = otel.Init(cfg.OTel, log)
	if err != nil {
		// 追踪不可用时继续运行
		log.Warn("Failed to init OpenTelemetry", zap.Error(err))
		a.shutdownOtel = func() {}
	}

	if err := a.initQueue(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if role != appconfig.RoleWorker {
		a.initHTTP()
	}
	if role != appconfig.RoleAPI {
		if err := a.initWorker(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) initQueue(ctx context.Context) error {
	cfg := a.cfg
	switch cfg.Queue.Broker {
	case appconfig.BrokerRabbitMQ:
		a.logger.Info("Initializing Redis job store...", zap.String("addr", cfg.Redis.Addr))
		rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.rdb = rdb
		a.store = queue.NewRedisStore(rdb, cfg.Queue.JobTTL)
		a.broker = queue.NewRabbitBroker(cfg.MQ, a.logger)
	default:
		a.store = queue.NewMemoryStore()
		a.broker = queue.NewMemoryBroker(cfg.Queue.Capacity, a.logger)
	}
	a.logger.Info("Job queue ready", zap.String("broker", a.broker.Name()))
	return nil
}

func (a *app) initHTTP() {
	cfg := a.cfg

	var exchangers []auth.Exchanger
	if cfg.GoogleEnabled() {
		exchangers = append(exchangers, auth.NewGoogleExchanger(cfg.OAuth.Google, auth.WithTimeout(cfg.OAuth.Timeout)))
	} else {
		a.logger.Warn("Google OAuth client is not configured")
	}
	if cfg.OutlookEnabled() {
		exchangers = append(exchangers, auth.NewOutlookExchanger(cfg.OAuth.Outlook, auth.WithTimeout(cfg.OAuth.Timeout)))
	} else {
		a.logger.Warn("Outlook OAuth client is not configured")
	}
	tokens := auth.NewTokenExchange(a.logger, exchangers...)
	signer := auth.NewStateSigner(cfg.OAuth.StateSecret, cfg.OAuth.StateTTL)

	q := queue.NewQueue(a.store, a.broker, a.logger)

	checks := map[string]api.Check{
		"broker": func(ctx context.Context) error {
			if !a.broker.Ready() {
				return errors.New("broker not connected")
			}
			return nil
		},
	}
	if a.rdb != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.rdb.Ping(ctx).Err()
		}
	}

	router := api.NewRouter(
		api.NewAuthHandler(tokens, signer, cfg.OAuth.RequireState, a.logger),
		api.NewEmailHandler(q, a.logger),
		checks,
		a.logger,
	)
	a.srv = &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (a *app) initWorker() error {
	cfg := a.cfg
	client, err := classifier.NewClient(cfg.OpenAI, a.logger)
	if err != nil {
		return fmt.Errorf("failed to init completion client: %w", err)
	}
	a.logger.Info("Completion client ready", zap.String("model", client.ModelName()))

	opts := []queue.WorkerOption{queue.WithConcurrency(cfg.Queue.Workers)}
	if a.rdb != nil {
		opts = append(opts, queue.WithGuard(util.NewDeduper(a.rdb, cfg.Queue.DedupTTL, a.logger)))
	}
	a.worker = queue.NewWorker(a.broker, a.store, classifier.NewClassifier(client, a.logger), a.logger, opts...)
	return nil
}

// Run 阻塞直到收到退出信号或某个组件出错。
// 退出顺序：先停 HTTP，再让 worker 处理完已入队的任务，最后取消 worker。
func (a *app) Run(ctx context.Context) error {
	// worker 不跟随信号取消，由下面的退出流程控制
	workerCtx, cancelWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorker()

	errCh := make(chan error, 2)
	workerDone := make(chan struct{})

	if a.worker != nil {
		go func() {
			defer close(workerDone)
			if err := a.worker.Run(workerCtx); err != nil {
				errCh <- fmt.Errorf("worker: %w", err)
			}
		}()
	} else {
		close(workerDone)
	}

	if a.srv != nil {
		go func() {
			a.logger.Info("HTTP server starting", zap.String("addr", a.srv.Addr))
			if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	a.logger.Info("mailtriage is running")

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down gracefully...")
	case runErr = <-errCh:
		a.logger.Error("Component failed, shutting down", zap.Error(runErr))
	}

	deadline := time.Now().Add(a.cfg.Server.ShutdownTimeout)

	if a.srv != nil {
		shutdownCtx, shutdownCancel := context.WithDeadline(context.Background(), deadline)
		defer shutdownCancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("HTTP server shutdown error", zap.Error(err))
		} else {
			a.logger.Info("HTTP server stopped")
		}
	}

	// 内存队列关闭后 worker 会取完剩余任务再退出；RabbitMQ 未确认的消息留给下一个 worker
	if a.broker != nil && a.broker.Name() == appconfig.BrokerMemory {
		if err := a.broker.Close(); err != nil {
			a.logger.Error("Failed to close broker", zap.Error(err))
		}
	} else {
		cancelWorker()
	}

	select {
	case <-workerDone:
	case <-time.After(time.Until(deadline)):
		a.logger.Warn("Timed out waiting for queued jobs")
		cancelWorker()
		<-workerDone
	}

	return runErr
}

func (a *app) Close() {
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.logger.Error("Failed to close broker", zap.Error(err))
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	a.shutdownOtel()
	a.logger.Info("mailtriage shutdown complete")
	_ = a.logger.Sync()
}
