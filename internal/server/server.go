// Package server exposes the HTTP API for the dashboard: auth, channel
// management, live availability, and notification history.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/user/centsalert/internal/auth"
	"github.com/user/centsalert/internal/channel"
	"github.com/user/centsalert/internal/scheduler"
	"github.com/user/centsalert/internal/storage"
	"github.com/user/centsalert/pkg/logger"
)

// Server wires the HTTP API together.
type Server struct {
	auth        *auth.Service
	subscribers *storage.SubscriberStore
	snapshots   *storage.SnapshotStore
	ledger      *storage.DeliveryLedger
	sched       *scheduler.Scheduler
	telegram    channel.Sender
	botUsername string
	startTime   time.Time

	httpServer *http.Server
}

// New creates the API server.
func New(addr string, corsOrigins []string, authSvc *auth.Service, subscribers *storage.SubscriberStore,
	snapshots *storage.SnapshotStore, ledger *storage.DeliveryLedger, sched *scheduler.Scheduler,
	telegram channel.Sender, botUsername string) *Server {

	s := &Server{
		auth:        authSvc,
		subscribers: subscribers,
		snapshots:   snapshots,
		ledger:      ledger,
		sched:       sched,
		telegram:    telegram,
		botUsername: botUsername,
		startTime:   time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/auth/login", s.handleLogin)
		r.Get("/auth/callback", s.handleCallback)
		r.Get("/auth/me", s.handleMe)
		r.Post("/auth/logout", s.handleLogout)

		r.Post("/users/telegram", s.handleConnectTelegram)
		r.Post("/users/phone", s.handleConnectPhone)
		r.Put("/users/alerts", s.handleUpdateAlerts)

		r.Get("/availability", s.handleAvailability)
		r.Get("/availability/history", s.handleAvailabilityHistory)
		r.Post("/availability/refresh", s.handleRefresh)

		r.Get("/notifications/history", s.handleNotificationHistory)

		r.Get("/telegram/bot-info", s.handleBotInfo)
	})

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Start begins serving. Blocks until the listener fails or is shut
// down.
func (s *Server) Start() error {
	logger.Info().Str("address", s.httpServer.Addr).Msg("Starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
