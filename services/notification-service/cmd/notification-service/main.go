package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nutricare/nutribook/libs/config"
	"github.com/nutricare/nutribook/libs/db"
	"github.com/nutricare/nutribook/libs/httpx"
	"github.com/nutricare/nutribook/libs/kafkax"
	otelx "github.com/nutricare/nutribook/libs/otel"
	"github.com/nutricare/nutribook/libs/runtime"
	"github.com/nutricare/nutribook/services/notification-service/internal/consumer"
	"github.com/nutricare/nutribook/services/notification-service/internal/handlers"
	"github.com/nutricare/nutribook/services/notification-service/internal/inbox"
	"github.com/nutricare/nutribook/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type sessionStartedPayload struct {
	AppointmentID    string `json:"appointment_id"`
	PatientID        string `json:"patient_id"`
	NutritionistID   string `json:"nutritionist_id"`
	NutritionistName string `json:"nutritionist_name"`
	MeetingURL       string `json:"meeting_url"`
	StartedAt        string `json:"started_at"`
}

type appointmentCancelledPayload struct {
	AppointmentID  string `json:"appointment_id"`
	PatientID      string `json:"patient_id"`
	NutritionistID string `json:"nutritionist_id"`
	StartTime      string `json:"start_time"`
	Reason         string `json:"reason"`
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	inboxRepo := inbox.NewRepository()
	repo := storage.NewRepository(pool)

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")

	startedConsumer := consumer.New(logger, pool, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   config.String("KAFKA_SESSION_STARTED_TOPIC", "booking.session.started.v1"),
	}, func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		var payload sessionStartedPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid session started payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.PatientID == "" || payload.MeetingURL == "" {
			logger.Error("missing session started fields", "appointment_id", payload.AppointmentID)
			return nil
		}

		who := strings.TrimSpace(payload.NutritionistName)
		if who == "" {
			who = "your nutritionist"
		}
		n := storage.Notification{
			UserID:        payload.PatientID,
			AppointmentID: payload.AppointmentID,
			Title:         "Session started",
			Message:       fmt.Sprintf("Your session with %s has started. Join here: %s", who, payload.MeetingURL),
			MeetingURL:    payload.MeetingURL,
		}
		if err := repo.Insert(ctx, tx, &n); err != nil {
			logger.Error("failed to persist notification", "err", err)
			return err
		}
		logger.Info("session started notification stored",
			"notification_id", n.ID,
			"appointment_id", payload.AppointmentID,
			"user_id", payload.PatientID)
		return nil
	})
	go startedConsumer.Run(ctx)

	cancelledConsumer := consumer.New(logger, pool, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   config.String("KAFKA_CANCELLED_TOPIC", "booking.appointment.cancelled.v1"),
	}, func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		var payload appointmentCancelledPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid cancellation payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.PatientID == "" {
			logger.Error("missing cancellation fields", "appointment_id", payload.AppointmentID)
			return nil
		}

		message := "Your appointment was cancelled."
		if payload.Reason != "" {
			message = "Your appointment was cancelled: " + payload.Reason + "."
		}
		n := storage.Notification{
			UserID:        payload.PatientID,
			AppointmentID: payload.AppointmentID,
			Title:         "Appointment cancelled",
			Message:       message,
		}
		if err := repo.Insert(ctx, tx, &n); err != nil {
			logger.Error("failed to persist notification", "err", err)
			return err
		}
		return nil
	})
	go cancelledConsumer.Run(ctx)

	h := handlers.New(repo, logger)
	requireAuth := httpx.WithPrincipal(httpx.AuthConfig{
		JWTSecret: config.String("JWT_SECRET", ""),
		JWKSURL:   config.String("JWKS_URL", ""),
	})

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/api/v1/notifications", requireAuth(http.HandlerFunc(h.List)))
	mux.Handle("/api/v1/notifications/read", requireAuth(http.HandlerFunc(h.MarkRead)))
	mux.Handle("/api/v1/notifications/read-all", requireAuth(http.HandlerFunc(h.MarkAllRead)))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
