package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopfront/internal/config"
	"shopfront/internal/devserver"
	"shopfront/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(cfg.LOG_LEVEL)

	db, err := devserver.InitDB(cfg)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}

	producer := devserver.NewProducer(cfg.KAFKA_ADDRESS, logger)
	defer producer.Close()

	es, err := devserver.NewESClient(cfg)
	if err != nil {
		log.Fatalf("elasticsearch init failed: %v", err)
	}

	deps := devserver.NewDeps(db, []byte(cfg.JWT_SECRET), []byte(cfg.REFRESH_SECRET), producer, es)
	e := devserver.NewEcho(cfg, deps, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.PORT,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()
	logger.Info("devserver_started", "addr", srv.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	logger.Info("devserver_stopped")
}
