package grpcx

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/roombook/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewServer returns a gRPC server with tracing, request ids and access logging,
// and a health service registered on it.
func NewServer(logger *slog.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// ReportHealth flips the overall serving status of hs according to checks until
// ctx is done, then marks the service NOT_SERVING.
func ReportHealth(ctx context.Context, hs *health.Server, logger *slog.Logger, every time.Duration, checks ...runtime.ReadyCheck) {
	if every <= 0 {
		every = 10 * time.Second
	}
	update := func() {
		failures := runtime.RunChecks(ctx, checks)
		if len(failures) == 0 {
			hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			return
		}
		logger.Warn("dependency check failed", "failures", strings.Join(failures, "; "))
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}

	update()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}
