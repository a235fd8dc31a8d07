package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dvillacreses/citasalud/internal/calendar"
	"github.com/dvillacreses/citasalud/internal/handlers"
	"github.com/dvillacreses/citasalud/internal/outbox"
	"github.com/dvillacreses/citasalud/internal/payments"
	"github.com/dvillacreses/citasalud/internal/schedule"
	"github.com/dvillacreses/citasalud/internal/storage"
	"github.com/dvillacreses/citasalud/libs/config"
	"github.com/dvillacreses/citasalud/libs/db"
	"github.com/dvillacreses/citasalud/libs/httpx"
	otelx "github.com/dvillacreses/citasalud/libs/otel"
	"github.com/dvillacreses/citasalud/libs/runtime"
)

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "citasalud-api")
	port, err := config.Port("PORT", "8080")
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

	sched, err := schedule.FromEnv()
	if err != nil {
		logger.Error("invalid schedule configuration", "err", err)
		panic(err)
	}

	serviceRepo := storage.NewServiceRepository(pool)
	patientRepo := storage.NewPatientRepository(pool)
	apptRepo := storage.NewAppointmentRepository(pool)
	providerEventRepo := storage.NewProviderEventRepository(pool)
	outboxRepo := outbox.NewRepository()

	stripeKey, err := config.RequiredString("STRIPE_SECRET_KEY")
	if err != nil {
		panic(err)
	}
	webhookSecret, err := config.RequiredString("STRIPE_WEBHOOK_SECRET")
	if err != nil {
		panic(err)
	}
	checkout, err := payments.NewStripeCheckout(payments.StripeConfig{
		SecretKey:  stripeKey,
		SuccessURL: config.String("CHECKOUT_SUCCESS_URL", "http://localhost:3000/reserva/exito"),
		CancelURL:  config.String("CHECKOUT_CANCEL_URL", "http://localhost:3000/reserva/cancelada"),
	})
	if err != nil {
		logger.Error("stripe checkout init failed", "err", err)
		panic(err)
	}

	syncer := newCalendarSyncer(ctx, sched, logger)

	serviceHandler := handlers.NewServiceHandler(serviceRepo, logger)
	patientHandler := handlers.NewPatientHandler(patientRepo, logger)
	availabilityHandler := handlers.NewAvailabilityHandler(serviceRepo, apptRepo, sched, logger)
	bookingHandler := handlers.NewBookingHandler(apptRepo, serviceRepo, patientRepo, outboxRepo, sched, logger)
	paymentHandler := handlers.NewPaymentHandler(apptRepo, serviceRepo, patientRepo, providerEventRepo, outboxRepo, checkout, syncer, logger, handlers.PaymentHandlerConfig{
		WebhookSecret: webhookSecret,
		Tolerance:     time.Duration(config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300)) * time.Second,
	})
	adminHandler := handlers.NewAdminHandler(apptRepo, outboxRepo, syncer, sched, logger)
	adminAuth := handlers.AdminAuth(config.String("ADMIN_TOKEN", ""), config.String("ADMIN_TOKEN_BCRYPT", ""))

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)
	mux.HandleFunc("/api/v1/services", serviceHandler.List)
	mux.HandleFunc("/api/v1/patients", patientHandler.Patients)
	mux.HandleFunc("/api/v1/availability", availabilityHandler.Slots)
	mux.HandleFunc("/api/v1/appointments", bookingHandler.Appointments)
	mux.HandleFunc("/api/v1/payments/checkout", paymentHandler.Checkout)
	mux.HandleFunc("/api/v1/payments/stripe/webhook", paymentHandler.StripeWebhook)
	mux.Handle("/api/v1/admin/day", adminAuth(http.HandlerFunc(adminHandler.Day)))
	mux.Handle("/api/v1/admin/transfers/approve", adminAuth(http.HandlerFunc(adminHandler.ApproveTransfer)))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(splitList(config.String("CORS_ALLOWED_ORIGINS", "")))),
		rateLimitMiddleware(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "citasalud-api")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
	logger.Info("http server stopped")
}

// newCalendarSyncer wires Google Calendar when credentials are configured and
// falls back to a no-op otherwise. Calendar sync is never a hard dependency.
func newCalendarSyncer(ctx context.Context, sched *schedule.Schedule, logger *slog.Logger) calendar.Syncer {
	creds := config.String("GOOGLE_CREDENTIALS_JSON", "")
	calendarID := config.String("GOOGLE_CALENDAR_ID", "")
	if creds == "" || calendarID == "" {
		logger.Info("calendar sync disabled (no google credentials configured)")
		return calendar.Noop{}
	}
	syncer, err := calendar.NewGoogleSyncer(ctx, []byte(creds), calendarID, sched.Location().String())
	if err != nil {
		logger.Warn("google calendar init failed; calendar sync disabled", "err", err)
		return calendar.Noop{}
	}
	return syncer
}

func rateLimitMiddleware(logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		limiter := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "citasalud")
		return limiter.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
