package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/roombook/libs/config"
	"github.com/md-rashed-zaman/roombook/libs/db"
	"github.com/md-rashed-zaman/roombook/libs/grpcx"
	"github.com/md-rashed-zaman/roombook/libs/httpx"
	"github.com/md-rashed-zaman/roombook/libs/metrics"
	otelx "github.com/md-rashed-zaman/roombook/libs/otel"
	"github.com/md-rashed-zaman/roombook/libs/runtime"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/reservation"
	"github.com/md-rashed-zaman/roombook/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port := must(config.Port("PORT", "8083"))
	grpcPort := must(config.Port("GRPC_PORT", "9083"))
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL := must(config.RequiredString("DATABASE_URL"))
	maxConns := must(config.Int("DB_MAX_CONNS", 10))
	txTimeout := must(config.Duration("TX_TIMEOUT", 5*time.Second))
	lockTimeout := must(config.Duration("LOCK_TIMEOUT", 3*time.Second))
	pollEvery := must(config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second))
	batchSize := must(config.Int("OUTBOX_BATCH_SIZE", 50))
	maxAttempts := must(config.Int("OUTBOX_MAX_ATTEMPTS", 10))
	ratePerMinute := must(config.Int("RATE_LIMIT_PER_MINUTE", 120))
	notifierCfg := must(loadNotifierConfig())

	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var rdb *redis.Client
	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		rdb, err = newRedisClient(ctx, redisURL)
		if err != nil {
			logger.Error("redis connection failed", "err", err)
			panic(err)
		}
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, redisReadyCheck(rdb))
	}

	publisher, publisherCloser, publisherCheck, err := newPublisher(notifierCfg, rdb, logger)
	if err != nil {
		logger.Error("notifier init failed", "err", err)
		panic(err)
	}
	if publisherCloser != nil {
		defer func(c io.Closer) { _ = c.Close() }(publisherCloser)
	}
	if publisherCheck != nil {
		readyChecks = append(readyChecks, *publisherCheck)
	}
	logger.Info("notification channel selected", "channel", notifierCfg.Channel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	outboxRepo := outbox.NewRepository(pool)
	store := storage.NewStore(pool, outboxRepo, storage.Options{LockTimeout: lockTimeout})
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, logger, m, outbox.DispatcherConfig{
		PollEvery:   pollEvery,
		BatchSize:   batchSize,
		MaxAttempts: maxAttempts,
	})
	go dispatcher.Run(ctx)

	engine := reservation.NewEngine(store, dispatcher, logger, reservation.Config{
		TxTimeout: txTimeout,
		Metrics:   m,
	})

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(must(bannerJSON(service, notifierCfg.Channel)))
	})
	mux.Handle("GET /metrics", metrics.Handler(registry))
	handlers.Register(mux, m,
		handlers.NewBookingHandler(engine, logger),
		handlers.NewRoomHandler(store, logger),
		handlers.NewTriageHandler(store, logger),
	)

	var limiter httpx.Middleware
	if rdb != nil {
		limiter = httpx.NewRedisRateLimiter(rdb, ratePerMinute, time.Minute, "").Middleware(logger, true)
	} else {
		limiter = httpx.NewRateLimiter(ratePerMinute, time.Minute).Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicyFromList(config.String("CORS_ALLOWED_ORIGINS", ""))),
		limiter,
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer, healthServer := grpcx.NewServer(logger)
	go grpcx.ReportHealth(ctx, healthServer, logger, 10*time.Second, readyChecks...)
	go func() {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			return
		}
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcServer.GracefulStop()
	logger.Info("servers stopped")
}
