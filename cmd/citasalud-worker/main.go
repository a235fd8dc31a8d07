package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/dvillacreses/citasalud/internal/expiry"
	"github.com/dvillacreses/citasalud/internal/outbox"
	"github.com/dvillacreses/citasalud/internal/storage"
	"github.com/dvillacreses/citasalud/libs/config"
	"github.com/dvillacreses/citasalud/libs/db"
	"github.com/dvillacreses/citasalud/libs/kafkax"
	otelx "github.com/dvillacreses/citasalud/libs/otel"
	"github.com/dvillacreses/citasalud/libs/runtime"
)

// The worker owns the background loops: draining the outbox to Kafka and
// expiring unpaid card bookings. It exposes only health endpoints.
func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "citasalud-worker")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.ConfigFromEnv())
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository()
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	apptRepo := storage.NewAppointmentRepository(pool)
	sweeper := expiry.NewSweeper(apptRepo, outboxRepo, logger, expiry.Config{
		TTL:        config.Minutes("PENDING_PAYMENT_TTL_MINUTES", 30*time.Minute),
		SweepEvery: config.Minutes("EXPIRY_SWEEP_INTERVAL_MINUTES", time.Minute),
		BatchSize:  config.Int("EXPIRY_BATCH_SIZE", 100),
	})
	go sweeper.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("worker stopped")
}
