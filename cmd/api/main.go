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
	"github.com/pacs-databridge/app/bootstrap"
	"github.com/pacs-databridge/app/config"
	"github.com/pacs-databridge/app/controllers"
	"github.com/pacs-databridge/app/logging"
	"github.com/pacs-databridge/routes"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Getenv("DATABRIDGE_CONFIG"))
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting PACS DataBridge API...", zap.String("env", cfg.App.Env))

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	app, err := bootstrap.New(startCtx, cfg, logger)
	startCancel()
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}

	// Batch jobs outlive their submitting request; they stop on shutdown.
	jobCtx, stopJobs := context.WithCancel(context.Background())

	ctl := routes.Controllers{
		Address: controllers.NewAddressController(app.Match, app.Checks, logger),
		Jobs:    controllers.NewJobController(app.Batches, jobCtx, logger),
		Reviews: controllers.NewReviewController(app.Reviews, logger),
		Admin:   controllers.NewAdminController(app.Admin, logger),
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	routes.SetupAllRoutes(router, ctl, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	stopJobs()
	app.Batches.Wait()
	if err := app.Close(ctx); err != nil {
		logger.Error("Failed to release backends", zap.Error(err))
	}

	logger.Info("Server exited")
}
