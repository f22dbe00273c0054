// The worker binary consumes stage tasks from the Redis queue and drives
// projects through the pipeline.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/appforge-labs/appforge-backend/config"
	"github.com/appforge-labs/appforge-backend/internal/bootstrap"
	"github.com/appforge-labs/appforge-backend/internal/generation"
	"github.com/appforge-labs/appforge-backend/internal/notify"
	"github.com/appforge-labs/appforge-backend/internal/pipeline"
	"github.com/appforge-labs/appforge-backend/internal/projects/repository"
	"github.com/appforge-labs/appforge-backend/internal/storage/objectstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := bootstrap.OpenDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := bootstrap.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	objects, err := objectstore.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}

	store := repository.New(db)
	bus := notify.NewRedisBus(rdb)
	queue := pipeline.NewRedisQueue(rdb, cfg.Worker.QueueKey)
	client := generation.NewHTTPClient(cfg.Generation)

	runner := pipeline.NewRunner(store, queue, bus,
		pipeline.Options{
			MaxAttempts: cfg.Worker.MaxAttempts,
			RetryDelay:  cfg.Worker.RetryDelay,
		},
		pipeline.NewAnalysisHandler(client),
		pipeline.NewDesignHandler(client),
		pipeline.NewCodeGenHandler(client, objects),
		pipeline.NewQAHandler(client),
		pipeline.NewSecurityHandler(client),
		pipeline.NewDeploymentHandler(client),
	)

	log.Printf("[info] operation=startup msg=\"worker consuming\" queue=%s concurrency=%d",
		cfg.Worker.QueueKey, cfg.Worker.Concurrency)
	queue.Consume(ctx, runner, cfg.Worker.Concurrency)
	return nil
}
