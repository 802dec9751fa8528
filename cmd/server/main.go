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
	"github.com/sirupsen/logrus"

	"drone_routes/internal/config"
	"drone_routes/internal/logger"
	"drone_routes/internal/middleware"
	"drone_routes/internal/realtime"
	"drone_routes/internal/routes"
	"drone_routes/internal/services"
)

func main() {
	settings := config.Load()

	// Initialize structured logging
	out := logger.Setup(settings.LogFile, settings.LogLevel)

	db, err := config.InitDB(settings)
	if err != nil {
		logrus.WithError(err).Fatal("Database initialization failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := config.InitStorage(ctx, settings)
	if err != nil {
		logrus.WithError(err).Fatal("Object storage initialization failed")
	}

	hub := realtime.NewHub()
	defer hub.Close()

	gin.SetMode(gin.ReleaseMode)
	r := routes.SetupRouter(routes.Dependencies{
		DB: db,
		Routes: services.NewRouteService(db, store, hub, services.Options{
			Concurrency:   settings.UploadConcurrency,
			UploadTimeout: settings.UploadTimeout,
		}),
		Drones:         services.NewDroneService(db),
		Users:          services.NewUserService(db),
		Auth:           middleware.NewAuth(settings.JWTSecret, settings.JWTTTL),
		Hub:            hub,
		MaxUploadBytes: settings.MaxUploadMB << 20,
		AccessLog:      out,
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + settings.Port,
		Handler:           middleware.CORS(settings.CORSOrigins)(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithField("addr", srv.Addr).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Server stopped")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed")
	}
}
