// The api binary serves the project REST surface, the chat gate and the SSE
// event stream. Stage work is executed by the worker binary; the two share
// the Redis task queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/appforge-labs/appforge-backend/config"
	"github.com/appforge-labs/appforge-backend/internal/auth"
	"github.com/appforge-labs/appforge-backend/internal/bootstrap"
	"github.com/appforge-labs/appforge-backend/internal/followup"
	"github.com/appforge-labs/appforge-backend/internal/notify"
	"github.com/appforge-labs/appforge-backend/internal/pipeline"
	"github.com/appforge-labs/appforge-backend/internal/projects/repository"
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
	bootstrap.SetGinMode(cfg.App.Environment)

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

	authClient, err := auth.InitializeFirebase(&cfg.Firebase)
	if err != nil {
		return fmt.Errorf("init firebase: %w", err)
	}
	if authClient == nil {
		log.Printf("[warn] operation=startup msg=\"firebase credentials not set, using header identity\"")
	}

	store := repository.New(db)
	bus := notify.NewRedisBus(rdb)
	queue := pipeline.NewRedisQueue(rdb, cfg.Worker.QueueKey)

	scheduler := followup.NewScheduler(store, followup.LogMailer{})
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start follow-up scheduler: %w", err)
	}
	defer scheduler.Stop()

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		Config:     cfg,
		DB:         db,
		Redis:      rdb,
		Store:      store,
		Queue:      queue,
		Bus:        bus,
		AuthClient: authClient,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[info] operation=startup msg=\"api listening\" port=%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
