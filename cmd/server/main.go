package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-faster/errors"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/adapter/checkout"
	"github.com/rl1809/storefront/internal/adapter/handler"
	"github.com/rl1809/storefront/internal/adapter/mail"
	"github.com/rl1809/storefront/internal/adapter/storage"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
	"github.com/rl1809/storefront/pkg/config"
	"github.com/rl1809/storefront/pkg/logger"
	"github.com/rl1809/storefront/pkg/shutdown"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{Service: "storefront", Env: cfg.AppEnv, Level: cfg.LogLevel, AddSource: !cfg.IsProduction()})

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("bye")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return errors.Wrap(err, "open mysql")
	}
	defer db.Close()
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "ping mysql")
	}
	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.Migrate(ctx); err != nil {
		return errors.Wrap(err, "migrate mysql")
	}
	log.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	redisAdapter := storage.NewRedisAdapter(rdb, cfg.CartTTL)
	log.Info("connected to redis")

	// Initialize services
	gateway := checkout.NewClient(cfg.CheckoutAPIURL, cfg.CheckoutSecretKey, &http.Client{Timeout: 10 * time.Second})
	checkoutService := service.NewCheckoutService(gateway, service.CheckoutConfig{
		PublicBaseURL:         cfg.PublicBaseURL,
		Currency:              cfg.Currency,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		ShippingFee:           cfg.ShippingFee,
	}, log)
	orderService := service.NewOrderService(mysqlAdapter, gateway, redisAdapter, cfg.QueueSize, log)

	var notifier port.Notifier = logNotifier{log: log}
	if cfg.SendGridAPIKey != "" {
		notifier = mail.NewSendGridNotifier(cfg.SendGridAPIKey, cfg.MailFrom, "Storefront", log)
	} else {
		log.Warn("SENDGRID_API_KEY not set, order confirmations are only logged")
	}

	// Start confirmation workers
	var workers errgroup.Group
	for i := 0; i < cfg.WorkerCount; i++ {
		workers.Go(func() error {
			orderService.RunConfirmationWorker(i, notifier)
			return nil
		})
	}
	log.Info("started confirmation workers", slog.Int("count", cfg.WorkerCount))

	// Initialize servers
	grpcServer := grpc.NewServer()
	handler.NewGRPCHandler(orderService).Register(grpcServer)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler.NewHTTPHandler(redisAdapter, mysqlAdapter, checkoutService, orderService, cfg.IsProduction(), log).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcAddr := fmt.Sprintf(":%d", cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", grpcAddr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gRPC server listening", slog.String("addr", grpcAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", slog.Any("cause", context.Cause(gctx)))

		// Stop HTTP server
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP shutdown", slog.Any("err", err))
		}
		log.Info("HTTP server stopped")

		// Stop gRPC server
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-shutdownCtx.Done():
			log.Warn("graceful stop timeout, forcing stop")
			grpcServer.Stop()
		case <-stopped:
		}
		log.Info("gRPC server stopped")
		return nil
	})

	err = g.Wait()

	// Close confirmation queue and wait for workers. Handlers still running
	// after a forced stop see a closed queue and release their guard.
	orderService.Close()
	workers.Wait()
	log.Info("workers stopped")

	return err
}

// logNotifier stands in for the mail provider in development.
type logNotifier struct {
	log *slog.Logger
}

func (n logNotifier) SendOrderConfirmation(ctx context.Context, order domain.Order) error {
	subject, body := mail.RenderConfirmation(order)
	n.log.Info("order confirmation",
		slog.String("to", order.CustomerEmail),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}
