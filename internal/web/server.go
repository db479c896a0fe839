// Package web provides the HTTP surface of the service: a liveness
// endpoint and, when webhook mode is enabled, the Telegram webhook
// receiver.
package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/seekdata/seekbot/internal/config"
	"github.com/seekdata/seekbot/internal/logging"
	"github.com/seekdata/seekbot/internal/web/middleware"
)

// maxWebhookBody caps the size of a single webhook payload. Telegram
// updates are small; anything past this is not a legitimate update.
const maxWebhookBody = 1 << 20

// UpdateSink consumes raw webhook payloads. The bot implements this to
// receive Telegram updates pushed over HTTP.
type UpdateSink interface {
	HandleUpdate(ctx context.Context, payload []byte) error
}

// Server is the HTTP server for liveness checks and webhook delivery.
type Server struct {
	http *http.Server
}

// NewServer builds the server from config. sink may be nil, in which
// case the webhook route is not mounted (long-polling mode).
func NewServer(cfg config.ServerConfig, sink UpdateSink) *Server {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/", handleLiveness)
	if sink != nil {
		r.Post("/webhook", handleWebhook(sink))
	}

	return &Server{
		http: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start runs the server until it fails or Shutdown is called. A clean
// shutdown returns nil.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "seekbot is running\n")
}

func handleWebhook(sink UpdateSink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		if len(payload) > maxWebhookBody {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		if len(payload) == 0 {
			http.Error(w, "empty payload", http.StatusBadRequest)
			return
		}

		if err := sink.HandleUpdate(r.Context(), payload); err != nil {
			logging.FromContext(r.Context()).Error("webhook update rejected", "error", err)
			http.Error(w, "invalid update", http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
