package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-ingest/api/handlers"
	"github.com/feichai0017/document-ingest/api/routes"
	"github.com/feichai0017/document-ingest/config"
	"github.com/feichai0017/document-ingest/internal/service/ingest"
	"github.com/feichai0017/document-ingest/internal/service/notify"
	"github.com/feichai0017/document-ingest/pkg/logger"
	"github.com/feichai0017/document-ingest/pkg/queue"
)

func main() {
	cfg, err := config.GetConfig()
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := logger.NewLogger(
		logger.WithLevel(cfg.Log.Level),
		logger.WithEncoding(cfg.Log.Encoding),
		logger.WithOutputPaths(cfg.Log.OutputPaths),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	hub := notify.NewHub(64, log)
	hooks := notify.Join(notify.LogHooks(log), hub.Hooks())

	// task queue is optional; without it tasks only run in-process
	var (
		opts     []ingest.Option
		statuses handlers.TaskStatusReader
	)
	if cfg.Queue.RedisAddr != "" {
		q, err := queue.NewAsynqQueue(queue.QueueConfig{RedisAddr: cfg.Queue.RedisAddr, RedisDB: cfg.Queue.RedisDB})
		if err != nil {
			log.Fatal("Failed to create task queue", logger.Error(err))
		}
		defer q.Close()
		opts = append(opts, ingest.WithQueue(q))
		statuses = q
		log.Info("Task queue enabled", logger.String("redis", cfg.Queue.RedisAddr))
	}

	svc, err := ingest.GetService(cfg, hooks, log, opts...)
	if err != nil {
		log.Fatal("Failed to get ingest service", logger.Error(err))
	}

	// init handlers
	h := handlers.NewHandlers(svc, hub, statuses, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h, routes.Options{
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxBodyBytes: cfg.Server.MaxRequestSize,
		Logger:       log,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
	svc.Wait()
}
