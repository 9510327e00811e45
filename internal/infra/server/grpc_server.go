package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/adapters/transport/grpc/middleware"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service entry reported for the account store.
const ServiceName = "account.v1.AccountService"

var healthCheckInterval = 10 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StartGRPCServer слушает addr и обслуживает gRPC до отмены ctx.
func StartGRPCServer(ctx context.Context, addr string, store Pinger, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, lis, store, logger)
}

// Serve runs the health service on lis with graceful shutdown once ctx is done.
func Serve(ctx context.Context, lis net.Listener, store Pinger, logger *zap.Logger) error {
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(middleware.ChainUnaryServer(logger)),
		grpc.StreamInterceptor(middleware.ChainStreamServer(logger)),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	grpc_prometheus.Register(grpcServer)
	grpc_prometheus.EnableHandlingTimeHistogram()
	reflection.Register(grpcServer)

	refreshHealth(ctx, hs, store, logger)
	go watchHealth(ctx, hs, store, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("ctx cancelled, stopping gRPC server")
	hs.Shutdown()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-stopCtx.Done():
		grpcServer.Stop()
	case <-done:
	}
	logger.Info("gRPC server stopped")
	return nil
}

func watchHealth(ctx context.Context, hs *health.Server, store Pinger, logger *zap.Logger) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshHealth(ctx, hs, store, logger)
		}
	}
}

func refreshHealth(ctx context.Context, hs *health.Server, store Pinger, logger *zap.Logger) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn("account store unreachable", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(ServiceName, status)
}
