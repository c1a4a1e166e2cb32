// Package api is the HTTP adapter: routing, request decoding, response
// shaping. All coordination rules live in the services it calls.
package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"popout/internal/chat"
	"popout/internal/config"
	"popout/internal/events"
	"popout/internal/middleware"
	"popout/internal/rate"
	"popout/internal/service"
	"popout/internal/store"
	"popout/internal/util"
)

type Handlers struct {
	cfg     config.Config
	svc     *service.Service
	ev      *events.Service
	st      *store.Store
	hub     *chat.Hub
	dbh     *sql.DB
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewRouter(cfg config.Config, svc *service.Service, ev *events.Service, st *store.Store, hub *chat.Hub, dbh *sql.DB, log *zap.Logger) http.Handler {
	h := &Handlers{
		cfg:     cfg,
		svc:     svc,
		ev:      ev,
		st:      st,
		hub:     hub,
		dbh:     dbh,
		limiter: rate.NewLimiter(),
		log:     log,
	}
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger(log, cfg.TrustProxy))
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(h.limiter, "register", 10, time.Minute, cfg.TrustProxy)).Post("/register", h.Register)
		r.With(middleware.RateLimit(h.limiter, "verify", 20, time.Minute, cfg.TrustProxy)).Post("/register/verify", h.VerifyRegistration)
		r.With(middleware.RateLimit(h.limiter, "login", 20, time.Minute, cfg.TrustProxy)).Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authn(h.svc))
			r.Get("/me", h.Me)
			r.Post("/me", h.UpdateProfile)

			r.Get("/events/nearby", h.Nearby)
			r.Post("/events", h.CreateEvent)
			r.Get("/events/{id}", h.GetEvent)
			r.With(middleware.RateLimit(h.limiter, "join", 30, time.Minute, cfg.TrustProxy)).Post("/events/{id}/join", h.RequestJoin)
			r.Get("/events/{id}/requests", h.ListRequests)
			r.Post("/requests/{id}/respond", h.Respond)

			r.Get("/events/{id}/messages", h.ListMessages)
			r.Post("/events/{id}/messages", h.PostMessage)
			r.Get("/events/{id}/chat", h.Chat)

			r.Get("/notifications", h.Notifications)
			r.Post("/notifications/read", h.MarkNotificationsRead)
		})
	})

	return r
}

func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ready := map[string]any{
		"checked_at": time.Now().UTC().Format(time.RFC3339),
		"components": map[string]any{},
	}
	comps := ready["components"].(map[string]any)

	ok := true
	if err := h.dbh.PingContext(r.Context()); err != nil {
		ok = false
		comps["database"] = map[string]any{"ok": false, "error": err.Error()}
	} else {
		comps["database"] = map[string]any{"ok": true}
	}

	if ok {
		ready["status"] = "ready"
		util.WriteJSON(w, http.StatusOK, ready)
		return
	}
	ready["status"] = "degraded"
	util.WriteJSON(w, http.StatusServiceUnavailable, ready)
}
