package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/busline-payments/internal/auth"
	"github.com/ukydev/busline-payments/internal/config"
	"github.com/ukydev/busline-payments/internal/dashboard"
	"github.com/ukydev/busline-payments/internal/db"
	"github.com/ukydev/busline-payments/internal/events"
	"github.com/ukydev/busline-payments/internal/handlers"
	"github.com/ukydev/busline-payments/internal/middleware"
	"github.com/ukydev/busline-payments/internal/models"
	"github.com/ukydev/busline-payments/internal/payments"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// routes wires the HTTP API. Login and health are public; everything else
// requires a token.
func routes(authService *auth.Service, users db.UserCollection, registry *dashboard.Registry, ping func(context.Context) error, trustedProxies []string) http.Handler {
	authMW := middleware.NewAuthMiddleware(authService)
	rateMW := middleware.NewRateLimitMiddleware(trustedProxies...)
	authHandler := handlers.NewAuthHandler(authService, users)
	paymentsHandler := handlers.NewPaymentsHandler(registry)

	perm := func(action string, h http.HandlerFunc) http.Handler {
		return authMW.RequirePermission(action)(h)
	}

	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(ping))
	mux.Handle("/api/auth/login", rateMW.RateLimit(loginRateLimit, loginRateWindow)(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("/api/auth/profile", authHandler.GetProfile)
	mux.Handle("/api/payments/transactions", perm("view_payments", paymentsHandler.Transactions))
	mux.Handle("/api/payments/buses", perm("view_payments", paymentsHandler.Buses))
	mux.Handle("/api/payments/export", perm("export_payments", paymentsHandler.Export))
	mux.Handle("/api/payments/refresh", perm("refresh_payments", paymentsHandler.Refresh))
	mux.Handle("/api/payments/companies", authMW.RequireRole(models.RoleSuperAdmin)(http.HandlerFunc(paymentsHandler.Companies)))

	return authMW.Authenticate(mux)
}

// refreshLoop rebuilds every loaded dashboard until ctx is done.
func refreshLoop(ctx context.Context, registry *dashboard.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.RefreshAll(ctx)
		}
	}
}

// pollInterval is the periodic refresh interval. Polling only runs while
// booking events are not being received.
func pollInterval(cfg *config.Config, eventsOn bool) time.Duration {
	if eventsOn {
		return 0
	}
	return cfg.RefreshInterval
}

func startEvents(cfg *config.Config, registry *dashboard.Registry) (mqtt.Client, error) {
	client := events.NewClient(cfg.MQTTBroker, cfg.MQTTClientID)
	if err := events.Connect(client, 10*time.Second); err != nil {
		return nil, err
	}
	if err := events.NewSubscriber(client, registry, cfg.FetchTimeout*2).Start(); err != nil {
		client.Disconnect(250)
		return nil, err
	}
	return client, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}()
	log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")

	database := client.Database(cfg.MongoDB)
	registry := dashboard.NewRegistry(
		&db.MongoCollection{Collection: database.Collection(db.BookingsCollection)},
		&db.MongoCollection{Collection: database.Collection(db.BusesCollection)},
		&db.MongoCollection{Collection: database.Collection(db.SchedulesCollection)},
		payments.WithFetchTimeout(cfg.FetchTimeout),
	)
	users := &db.MongoUserCollection{Collection: database.Collection(db.UsersCollection)}
	authService := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)

	eventsOn := false
	if cfg.MQTTBroker != "" {
		mq, err := startEvents(cfg, registry)
		if err != nil {
			log.WithError(err).WithField("broker", cfg.MQTTBroker).Error("Booking events disabled")
		} else {
			defer mq.Disconnect(250)
			eventsOn = true
		}
	}
	if interval := pollInterval(cfg, eventsOn); interval > 0 {
		log.WithField("interval", interval).Info("Polling for booking changes")
		go refreshLoop(ctx, registry, interval)
	}

	ping := func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes(authService, users, registry, ping, cfg.TrustedProxies),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("HTTP shutdown did not complete")
		}
	}()

	log.WithField("port", cfg.Port).Info("HTTP server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("HTTP server failed")
	}
	log.Info("Server stopped")
}
