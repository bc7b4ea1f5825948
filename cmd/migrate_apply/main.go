package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"backfeed/internal/db"
	"backfeed/internal/logger"
	"backfeed/internal/migrations"

	"github.com/joho/godotenv"
)

func main() {
	apply := flag.Bool("apply", false, "apply migrations (default lists them)")
	dsn := flag.String("dsn", "", "postgres DSN (default $DATABASE_URL)")
	timeout := flag.Duration("timeout", time.Minute, "overall timeout")
	flag.Parse()

	if !*apply {
		for _, name := range migrations.Names() {
			fmt.Println(name)
		}
		return
	}

	_ = godotenv.Load()
	logger.Init(os.Getenv("LOG_LEVEL"), false)
	if *dsn == "" {
		*dsn = os.Getenv("DATABASE_URL")
	}
	if *dsn == "" {
		logger.Fatal("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.Connect(ctx, *dsn)
	if err != nil {
		logger.Fatal("connect", "error", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		logger.Fatal("migrate", "error", err)
	}
	logger.Info("migrations applied", "count", len(migrations.Names()))
}
