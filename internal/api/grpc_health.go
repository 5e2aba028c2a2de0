package api

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

// NewGRPCServer создает gRPC сервер со стандартным health сервисом
func NewGRPCServer(healthServer *health.Server) *grpc.Server {
	server := grpc.NewServer(
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.MaxSendMsgSize(4*1024*1024),
	)
	healthpb.RegisterHealthServer(server, healthServer)
	return server
}

// WatchDatabaseHealth переключает статус health сервиса по результату ping БД
func WatchDatabaseHealth(ctx context.Context, db *gorm.DB, healthServer *health.Server, interval time.Duration, log *zap.Logger) {
	check := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if err := pingDatabase(ctx, db); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			log.Warn("⚠️ PostgreSQL недоступен", zap.Error(err))
		}
		healthServer.SetServingStatus("", status)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			healthServer.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}

func pingDatabase(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}
