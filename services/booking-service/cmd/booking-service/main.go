package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nutricare/nutribook/libs/config"
	"github.com/nutricare/nutribook/libs/db"
	"github.com/nutricare/nutribook/libs/httpx"
	"github.com/nutricare/nutribook/libs/kafkax"
	otelx "github.com/nutricare/nutribook/libs/otel"
	"github.com/nutricare/nutribook/libs/runtime"
	"github.com/nutricare/nutribook/services/booking-service/internal/booking"
	"github.com/nutricare/nutribook/services/booking-service/internal/handlers"
	"github.com/nutricare/nutribook/services/booking-service/internal/outbox"
	"github.com/nutricare/nutribook/services/booking-service/internal/payments"
	"github.com/nutricare/nutribook/services/booking-service/internal/reconcile"
	"github.com/nutricare/nutribook/services/booking-service/internal/slotstore"
	"github.com/nutricare/nutribook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func intFromEnv(key string, fallback int, logger *slog.Logger) int {
	raw := strings.TrimSpace(config.String(key, ""))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		logger.Warn("invalid integer env value", "key", key, "value", raw)
		return fallback
	}
	return n
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository()
	apptRepo := storage.NewAppointmentRepository(pool, outboxRepo)
	nutrRepo := storage.NewNutritionistRepository(pool)
	slots := slotstore.New(pool)

	var gateway payments.Gateway
	stripeKey := config.String("STRIPE_SECRET_KEY", "")
	if strings.TrimSpace(stripeKey) != "" {
		gateway, err = payments.NewStripeGateway(payments.StripeConfig{
			SecretKey:  stripeKey,
			SuccessURL: config.String("CHECKOUT_SUCCESS_URL", "http://localhost:3000/booking/success"),
			CancelURL:  config.String("CHECKOUT_CANCEL_URL", "http://localhost:3000/booking/cancel"),
		})
		if err != nil {
			logger.Error("stripe gateway init failed", "err", err)
			panic(err)
		}
	} else {
		logger.Warn("STRIPE_SECRET_KEY missing; using local dev gateway")
		gateway = payments.NewLocalGateway(time.Duration(intFromEnv("PAYMENT_SETTLE_DELAY_MS", 1500, logger)) * time.Millisecond)
	}

	svc := booking.NewService(apptRepo, nutrRepo, gateway, booking.Config{
		Currency:        config.String("BOOKING_CURRENCY", "usd"),
		SettleDelay:     time.Duration(intFromEnv("PAYMENT_SETTLE_DELAY_MS", 1500, logger)) * time.Millisecond,
		VerifyAttempts:  intFromEnv("PAYMENT_VERIFY_ATTEMPTS", 2, logger),
		MeetingBaseURL:  config.String("MEETING_BASE_URL", "https://meet.jit.si"),
		DefaultDuration: time.Duration(intFromEnv("BOOKING_DEFAULT_DURATION_MINUTES", 30, logger)) * time.Minute,
	}, logger)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	reconciler := reconcile.NewPaymentReconciler(pool, apptRepo, gateway, logger, reconcile.Config{
		AbandonAfter: time.Duration(intFromEnv("PAYMENT_ABANDON_AFTER_MINUTES", 15, logger)) * time.Minute,
		BatchSize:    50,
	})
	go reconciler.Run(ctx, time.Duration(intFromEnv("RECONCILE_INTERVAL_SECONDS", 60, logger))*time.Second)

	bookingHandler := handlers.NewBookingHandler(svc, logger)
	slotHandler := handlers.NewSlotHandler(slots, logger)
	nutrHandler := handlers.NewNutritionistHandler(nutrRepo, logger)

	requireAuth := httpx.WithPrincipal(httpx.AuthConfig{
		JWTSecret: config.String("JWT_SECRET", ""),
		JWKSURL:   config.String("JWKS_URL", ""),
	})
	authed := func(h http.HandlerFunc) http.Handler { return requireAuth(h) }

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/public/nutritionists", nutrHandler.List)
	mux.HandleFunc("/api/v1/public/nutritionists/get", nutrHandler.Get)
	mux.HandleFunc("/api/v1/public/availability", slotHandler.Availability)

	mux.Handle("/api/v1/appointments", authed(bookingHandler.Appointments))
	mux.Handle("/api/v1/appointments/get", authed(bookingHandler.Get))
	mux.Handle("/api/v1/appointments/confirm-payment", authed(bookingHandler.ConfirmPayment))
	mux.Handle("/api/v1/appointments/cancel", authed(bookingHandler.Cancel))
	mux.Handle("/api/v1/appointments/reschedule", authed(bookingHandler.Reschedule))
	mux.Handle("/api/v1/sessions/start", authed(bookingHandler.StartSession))
	mux.Handle("/api/v1/sessions/end", authed(bookingHandler.EndSession))
	mux.Handle("/api/v1/slots", authed(slotHandler.Add))
	mux.Handle("/api/v1/slots/remove", authed(slotHandler.Remove))
	mux.Handle("/api/v1/slots/my", authed(slotHandler.Mine))

	middlewares := []httpx.Middleware{
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id")),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(15 * time.Second),
	}
	rateLimit := intFromEnv("RATE_LIMIT", 120, logger)
	rateWindow := time.Duration(intFromEnv("RATE_WINDOW_SECONDS", 60, logger)) * time.Second
	if redisAddr := strings.TrimSpace(config.String("REDIS_ADDR", "")); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer func() { _ = rdb.Close() }()
		limiter := httpx.NewRedisRateLimiter(rdb, rateLimit, rateWindow, service)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		middlewares = append(middlewares, httpx.NewRateLimiter(rateLimit, rateWindow).Middleware())
	}

	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
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
