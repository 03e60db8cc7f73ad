package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Leganyst/clinic-scheduling/internal/cache"
	"github.com/Leganyst/clinic-scheduling/internal/calendar"
	"github.com/Leganyst/clinic-scheduling/internal/config"
	"github.com/Leganyst/clinic-scheduling/internal/logger"
	"github.com/Leganyst/clinic-scheduling/internal/propagation"
	"github.com/Leganyst/clinic-scheduling/internal/repository"
	"github.com/Leganyst/clinic-scheduling/internal/service"
	"github.com/Leganyst/clinic-scheduling/internal/transport/grpcapi"
	"github.com/Leganyst/clinic-scheduling/internal/transport/httpapi"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP, gRPC health and the change propagator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

// openBridge подключает мост между экземплярами; nil — работаем в одиночку.
func openBridge(ctx context.Context, cfg config.PropagationConfig, log zerolog.Logger) (propagation.Bridge, error) {
	switch cfg.Bridge {
	case "amqp":
		return propagation.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, log)
	case "redis":
		return propagation.NewRedisBridge(ctx, cfg.RedisAddr, cfg.RedisChannel, log)
	default:
		return nil, nil
	}
}

func runServer(ctx context.Context) error {
	cfg, log, gormDB, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeDB(gormDB)

	loc := cfg.Location()
	mode := cfg.MatchMode()

	// 1. Репозитории.
	scheduleRepo := repository.NewGormScheduleRepository(gormDB)
	appointmentRepo := repository.NewGormAppointmentRepository(gormDB)
	notificationRepo := repository.NewGormNotificationRepository(gormDB)

	// 2. Кэш проекций и проектор.
	projections, err := cache.New[calendar.DayKey, *calendar.DayProjection](
		cfg.Cache.Enabled, cfg.Cache.Size, logger.Component(log, "cache"))
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	availability := service.NewAvailabilityService(scheduleRepo, appointmentRepo, service.AvailabilityOptions{
		Location: loc,
		Mode:     mode,
		Cache:    projections,
	}, logger.Component(log, "availability"))

	// 3. Распространение изменений.
	bridge, err := openBridge(ctx, cfg.Propagation, logger.Component(log, "bridge"))
	if err != nil {
		return fmt.Errorf("open %s bridge: %w", cfg.Propagation.Bridge, err)
	}
	if bridge != nil {
		defer bridge.Close()
	}
	propagator := propagation.New(availability, propagation.Options{
		Invalidator: availability,
		Bridge:      bridge,
		Logger:      logger.Component(log, "propagator"),
		RetryDelay:  cfg.Propagation.RetryDelay,
	})

	// 4. Сервисы.
	notifier := service.MultiNotifier{
		service.NewOutboxNotifier(notificationRepo),
		service.NewLogNotifier(logger.Component(log, "notifier")),
	}
	schedules := service.NewScheduleService(scheduleRepo, propagator, logger.Component(log, "schedule"))
	booking := service.NewBookingService(appointmentRepo, notifier, propagator, service.BookingOptions{
		Location: loc,
		Mode:     mode,
	}, logger.Component(log, "booking"))

	audit := service.NewAuditService(
		appointmentRepo,
		repository.NewGormEventRepository(gormDB),
		notificationRepo,
		logger.Component(log, "audit"),
	)

	// 5. Транспорт.
	e := httpapi.NewServer(httpapi.Deps{
		Schedules:    schedules,
		Availability: availability,
		Booking:      booking,
		Audit:        audit,
		Watch:        propagator,
		Auth: httpapi.AuthOptions{
			SigningKey: []byte(cfg.Auth.SigningKey),
			Issuer:     cfg.Auth.Issuer,
			Dev:        cfg.IsDev(),
		},
		Logger: logger.Component(log, "http"),
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("sql DB: %w", err)
	}
	grpcSrv := grpcapi.NewServer(sqlDB.PingContext, 0, logger.Component(log, "grpc"))
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
	}

	log.Info().
		Str("http", cfg.HTTP.Addr).
		Str("grpc", cfg.GRPC.Addr).
		Str("timezone", loc.String()).
		Str("match_mode", string(mode)).
		Str("bridge", cfg.Propagation.Bridge).
		Msg("clinic scheduling core starting")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return propagator.Run(gctx)
	})
	g.Go(func() error {
		return grpcSrv.Serve(gctx, lis)
	})
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
