package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"selco.dev/staffauth/internal/config"
	"selco.dev/staffauth/internal/migrate"
	"selco.dev/staffauth/internal/obs"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("STAFFAUTH_CONFIG"), "Path to config file")
		dsn        = flag.String("dsn", "", "PostgreSQL DSN (overrides postgres.dsn)")
		timeout    = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := obs.InitLogger(cfg.LogLevel, "staffauth-migrate", cfg.Env)
	defer func() { _ = logger.Sync() }()

	if *dsn == "" {
		*dsn = cfg.Postgres.DSN
	}
	if *dsn == "" {
		logger.Fatal("missing DSN: provide via -dsn or STAFFAUTH_POSTGRES_DSN")
	}
	if len(flag.Args()) == 0 {
		logger.Fatal("usage: migrate [up|down|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	mgr := migrate.NewManager(db)

	switch cmd := flag.Arg(0); cmd {
	case "up":
		applied, err := mgr.Up(ctx)
		if err != nil {
			logger.Fatal("migrate up", zap.Strings("applied", applied), zap.Error(err))
		}
		logger.Info("migrations applied", zap.Strings("applied", applied))
	case "down":
		reverted, err := mgr.Down(ctx)
		if err != nil {
			logger.Fatal("migrate down", zap.Error(err))
		}
		logger.Info("migration reverted", zap.String("name", reverted))
	case "status":
		history, err := mgr.Status(ctx)
		if err != nil {
			logger.Fatal("migrate status", zap.Error(err))
		}
		for _, item := range history {
			fmt.Println(item)
		}
	default:
		logger.Fatal("unknown command", zap.String("command", cmd))
	}
}
