package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"qms/patient-client/internal/config"
	"qms/patient-client/internal/logging"
	"qms/patient-client/internal/sandbox"
	"qms/patient-client/internal/telemetry"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	shutdownTelemetry := telemetry.Setup("patient-sandbox", log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	srv := sandbox.New(sandbox.Options{
		RateLimit: sandbox.RateLimitConfig{
			PerMinute: cfg.RateLimitPerMinute,
			Burst:     cfg.RateLimitBurst,
		},
		AllowedOrigins: allowedOrigins(os.Getenv("SANDBOX_ALLOWED_ORIGINS")),
		Logger:         log,
	})

	// No write timeout: realtime sessions are long-lived.
	server := &http.Server{
		Addr:              ":" + cfg.SandboxPort,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("patient-sandbox listening")
		log.WithField("patient", sandbox.DemoPatient).WithField("doctor", sandbox.DemoDoctor).Info("demo accounts use password " + sandbox.DemoPassword)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}

func allowedOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
