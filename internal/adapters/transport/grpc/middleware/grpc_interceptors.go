package middleware

import (
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return grpc_recovery.UnaryServerInterceptor()
}

func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return grpc_zap.UnaryServerInterceptor(logger)
}

func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return grpc_prometheus.UnaryServerInterceptor
}

func ChainUnaryServer(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return grpc_middleware.ChainUnaryServer(
		RecoveryInterceptor(),
		LoggingInterceptor(logger),
		MetricsInterceptor(),
	)
}

// ChainStreamServer covers streaming calls such as health Watch.
func ChainStreamServer(logger *zap.Logger) grpc.StreamServerInterceptor {
	return grpc_middleware.ChainStreamServer(
		grpc_recovery.StreamServerInterceptor(),
		grpc_zap.StreamServerInterceptor(logger),
		grpc_prometheus.StreamServerInterceptor,
	)
}
