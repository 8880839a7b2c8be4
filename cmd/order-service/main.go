package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jcmexdev/kitchen-orders/internal/changefeed"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/adapters/httpx"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/app"
	"github.com/jcmexdev/kitchen-orders/internal/order-service/backend"
	"github.com/jcmexdev/kitchen-orders/internal/pkg/config"
	"github.com/jcmexdev/kitchen-orders/internal/pkg/interceptors"
	"github.com/jcmexdev/kitchen-orders/internal/pkg/telemetry"
)

func main() {
	if err := run(); err != nil {
		slog.Error("order service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := telemetry.InitLogger(os.Stdout, cfg.SlogLevel(), cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", "error", err)
		}
	}()

	be, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	engine := app.NewEngine(be.Store, be.EngineOptions(cfg, logger)...)
	handler := httpx.NewHandler(httpx.Deps{
		Engine:   engine,
		Editor:   app.NewEditor(be.Store, logger),
		Ledger:   app.NewLedger(be.Store, engine),
		Payments: app.NewPaymentHandler(engine, be.IdempotencyGuard(cfg), logger),
		Store:    be.Lister,
		Feed: changefeed.New(be.Lister, be.Notifier, changefeed.Config{
			Limit:        cfg.FeedLimit,
			PollInterval: cfg.FeedPollInterval,
			Timeout:      cfg.RequestTimeout,
		}, logger),
		Logger: logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
		// event streams end on shutdown instead of holding it open
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.UnaryServerInterceptor(),
			interceptors.TraceServerInterceptor(),
		),
	)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("order service HTTP running", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("order service gRPC health running", "addr", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
