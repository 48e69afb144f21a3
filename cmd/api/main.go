package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"selco.dev/staffauth/internal/audit"
	"selco.dev/staffauth/internal/auth"
	"selco.dev/staffauth/internal/config"
	"selco.dev/staffauth/internal/httpapi"
	"selco.dev/staffauth/internal/notify"
	"selco.dev/staffauth/internal/obs"
	"selco.dev/staffauth/internal/revocation"
	"selco.dev/staffauth/internal/store/mongo"
	"selco.dev/staffauth/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

type accountStore interface {
	auth.AccountStore
	auth.AuditStore
}

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("STAFFAUTH_CONFIG"), "Path to config file (yaml, json or toml)")
		revocations = flag.String("revocations", "", "Maintenance: 'count' or 'clear' revocation entries, then exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := obs.InitLogger(cfg.LogLevel, cfg.ServiceName, cfg.Env)
	defer func() { _ = logger.Sync() }()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	if err := run(cfg, logger, *revocations); err != nil {
		logger.Fatal("staffauth stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, maintenance string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var checks []httpapi.Check

	accounts, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	if p, ok := accounts.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, httpapi.Check{Name: "store", Fn: p.Ping})
	}

	var revStore auth.RevocationStore
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		rs := revocation.NewRedis(client)
		revStore = rs
		checks = append(checks, httpapi.Check{Name: "revocations", Fn: rs.Ping})
		logger.Info("revocation store: redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		revStore = revocation.NewMemory()
		logger.Warn("revocation store: in-process; revocations are lost on restart")
	}

	var publisher notify.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := notify.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID, logger, notify.NewProducerMetrics(prometheus.DefaultRegisterer))
		if err != nil {
			return err
		}
		publisher = kp
		logger.Info("notifications: kafka", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		publisher = notify.LogPublisher{Logger: logger.Named("notify")}
		logger.Warn("notifications: no brokers configured; events are only logged")
	}
	dispatcher := notify.NewDispatcher(publisher, notify.Topics{
		UserCreated:  cfg.Kafka.Topics.UserCreated,
		EmailSend:    cfg.Kafka.Topics.EmailSend,
		Connectivity: cfg.Kafka.Topics.Connectivity,
	},
		notify.WithQueueSize(cfg.Notify.QueueSize),
		notify.WithPublishTimeout(cfg.Notify.PublishTimeout),
		notify.WithLogger(logger),
	)
	if len(cfg.Kafka.Brokers) > 0 {
		checks = append(checks, httpapi.Check{Name: "broker", Fn: dispatcher.Check})
	}

	svc, err := auth.NewService(accounts, revStore,
		auth.WithTokenSecret(cfg.SigningSecret()),
		auth.WithAccessTTL(cfg.JWT.AccessTTL),
		auth.WithRefreshTTL(cfg.JWT.RefreshTTL),
		auth.WithAllowedDomain(cfg.Email.AllowedDomain),
		auth.WithLoginURL(cfg.Email.LoginURL),
		auth.WithStoreTimeout(cfg.Store.Timeout),
		auth.WithAuditStore(audit.Multi{accounts, audit.LogSink{}}),
		auth.WithNotifier(dispatcher),
		auth.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if cfg.JWT.Secret == "" {
		logger.Warn("jwt.secret not set; using the development signing secret")
	}

	if maintenance != "" {
		defer closeDispatcher(dispatcher, logger)
		return runMaintenance(ctx, svc, maintenance, logger)
	}

	probe := httpapi.ReadyProbe{Checks: checks, Timeout: cfg.Store.Timeout}
	api := httpapi.New(svc, probe, version,
		httpapi.WithRateLimit(cfg.Rate.PerSecond, cfg.Rate.Burst),
		httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		httpapi.WithAllowedOrigins(cfg.HTTP.AllowedOrigins),
		httpapi.WithLogger(logger),
	)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	health := httpapi.NewGRPCServer(probe, logger)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go health.Watch(watchCtx, 10*time.Second)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("server failed; shutting down", zap.Error(runErr))
	}

	stopWatch()
	health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	closeDispatcher(dispatcher, logger)

	logger.Info("stopped")
	return runErr
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (accountStore, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		s, err := pg.Open(cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("account store: postgres")
		return s, func() { _ = s.Close() }, nil
	case config.DriverMongo:
		openCtx, cancel := context.WithTimeout(ctx, cfg.Store.Timeout)
		defer cancel()
		s, err := mongo.Open(openCtx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("account store: mongo", zap.String("database", cfg.Mongo.Database))
		return s, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Store.Timeout)
			defer cancel()
			_ = s.Close(closeCtx)
		}, nil
	default:
		logger.Warn("account store: in-process; accounts are lost on restart")
		return auth.NewMemoryStore(), func() {}, nil
	}
}

func runMaintenance(ctx context.Context, svc *auth.Service, op string, logger *zap.Logger) error {
	switch op {
	case "count":
		n, err := svc.RevocationCount(ctx)
		if err != nil {
			return err
		}
		fmt.Println(n)
	case "clear":
		n, err := svc.ClearRevocations(ctx)
		if err != nil {
			return err
		}
		logger.Info("revocations cleared", zap.Int64("count", n))
		fmt.Println(n)
	default:
		return fmt.Errorf("unknown -revocations operation %q (want count or clear)", op)
	}
	return nil
}

func closeDispatcher(d *notify.Dispatcher, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		logger.Warn("notification dispatcher close", zap.Error(err))
	}
}
