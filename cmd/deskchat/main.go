package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/username/deskchat/internal/pkg/constants"
	"github.com/username/deskchat/internal/pkg/factory"
	"github.com/username/deskchat/internal/pkg/httputil"
	"github.com/username/deskchat/internal/pkg/logutil"
	"github.com/username/deskchat/pkg/config"
)

func main() {
	var configPath, envFile string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&envFile, "env", ".env", "Path to an optional .env file")
	flag.Parse()

	// A missing .env is normal; GEMINI_API_KEY often comes from the shell
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logutil.Fatal("Failed to load env file", logutil.Fields{"path": envFile, "error": err})
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logutil.Fatal("Failed to load configuration", logutil.Fields{"error": err})
	}
	if err := cfg.Validate(); err != nil {
		logutil.Fatal("Invalid configuration", logutil.Fields{"error": err})
	}

	logConfig := logutil.DefaultLogConfig
	logConfig.Level = logutil.ParseLevel(cfg.Logging.Level)
	logConfig.Format = cfg.Logging.Format
	logger := logutil.NewLogger(logConfig)
	logutil.SetGlobalLogger(logger)

	logger.Info("Starting deskchat", logutil.Fields{"address": cfg.Address(), "data_dir": cfg.DataDir})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := factory.NewServiceFactory(logger).Initialize(ctx, factory.InitializationOptions{
		Config:             cfg,
		EnableHealthChecks: true,
		Logger:             logger,
	})
	if err != nil {
		logger.Fatal("Failed to initialize services", logutil.Fields{"error": err})
	}

	container.Start(ctx)

	if cfg.Logging.Level == constants.LogLevelDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httputil.LoggingMiddleware(logger))

	middleware := httputil.DefaultMiddlewareConfig
	middleware.EnableCORS = cfg.Server.CORSEnabled
	container.Handlers.SetupRoutes(router, middleware)

	server := &http.Server{
		Addr:    cfg.Address(),
		Handler: router,
	}

	go func() {
		logger.Info("Server listening", logutil.Fields{"url": "http://" + cfg.Address()})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", logutil.Fields{"error": err})
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", logutil.Fields{"error": err})
	}
	if err := container.Shutdown(shutdownCtx); err != nil {
		logger.Error("Service shutdown incomplete", logutil.Fields{"error": err})
	}

	logger.Info("Server exited")
}
