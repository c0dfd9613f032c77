// Package web exposes the HTTP surface: the authenticated service API for
// outbound sends, the per-entry webhook receivers and the operational
// endpoints.
package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/metrics"
	"github.com/kai-zer-ru/max-notify-ha/internal/usecase"
)

// UpdateReceiver accepts a verified webhook update for one entry. ok=false
// means the entry has no running webhook ingestion.
type UpdateReceiver interface {
	Submit(entryID string, u *model.InboundUpdate) bool
}

type Server struct {
	dispatcher *usecase.Dispatcher
	entries    ports.EntrySource
	receiver   UpdateReceiver
	apiKey     string
	log        *zerolog.Logger
}

func NewServer(dispatcher *usecase.Dispatcher, entries ports.EntrySource, receiver UpdateReceiver, apiKey string, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "web").Logger()
	return &Server{
		dispatcher: dispatcher,
		entries:    entries,
		receiver:   receiver,
		apiKey:     apiKey,
		log:        &l,
	}
}

// Router builds the full route tree. The send API sits behind bearer auth;
// webhooks authenticate per entry with their own secret instead.
func (s *Server) Router() http.Handler {
	metrics.MustRegister()

	r := chi.NewRouter()
	r.Use(TraceID())
	r.Use(Recover(s.log))
	r.Use(RequestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/max_notify/{entryID}", s.handleWebhook)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(s.authMiddleware)
		api.Use(Timeout(5 * time.Minute))
		api.Post("/send/message", s.handleSend("message"))
		api.Post("/send/photo", s.handleSend("photo"))
		api.Post("/send/document", s.handleSend("document"))
		api.Post("/send/video", s.handleSend("video"))
	})

	return r
}

// authMiddleware provides Bearer token authentication for the send API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("service API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
