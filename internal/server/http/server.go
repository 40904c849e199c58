// Package httpserver wires the HTTP surface: routing, middleware, and the
// single error-to-status mapping.
package httpserver

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/justinas/alice"
	"go.uber.org/zap"

	"github.com/athenax/reviewd/internal/authn"
	"github.com/athenax/reviewd/internal/limiter"
	"github.com/athenax/reviewd/internal/service"
)

// Server holds the wired dependencies for the HTTP surface.
type Server struct {
	audits     *service.SubmissionService
	research   *service.SubmissionService
	principals *service.PrincipalService
	verifier   *authn.Verifier
	limiter    *limiter.Limiter

	trustForwarded bool
	log            *zap.Logger
}

// Options configures the HTTP server.
type Options struct {
	Audits     *service.SubmissionService
	Research   *service.SubmissionService
	Principals *service.PrincipalService
	Verifier   *authn.Verifier
	Limiter    *limiter.Limiter

	// TrustForwarded enables X-Forwarded-For for anonymous identity keys.
	TrustForwarded bool
	Log            *zap.Logger
}

// New builds the routed handler with the outer middleware chain applied.
func New(opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		audits:         opts.Audits,
		research:       opts.Research,
		principals:     opts.Principals,
		verifier:       opts.Verifier,
		limiter:        opts.Limiter,
		trustForwarded: opts.TrustForwarded,
		log:            log,
	}

	r := chi.NewRouter()

	r.Route("/v1/audit", func(r chi.Router) {
		s.submissionRoutes(r, s.audits, "audit")
	})
	r.Route("/v1/research", func(r chi.Router) {
		s.submissionRoutes(r, s.research, "research")
	})

	r.With(s.optionalAuth, s.limit("users:register", limiter.PerMinute(5))).
		Post("/v1/users", s.handleProvision)
	r.With(s.limit("users:login", limiter.PerMinute(5))).
		Post("/v1/users/login", s.handleLogin)
	r.With(s.requireAuth, s.limit("users:me", limiter.PerMinute(100))).
		Get("/v1/users/me", s.handleMe)
	r.With(s.requireAuth, s.limit("users:password", limiter.PerMinute(5))).
		Put("/v1/users/me/password", s.handleSetPassword)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return alice.New(Recover(log), Logging(log)).Then(r)
}

// submissionRoutes wires one submission kind. Rate limits mirror the route
// tiers: generous reads, tight mutations, an hourly budget on creation.
func (s *Server) submissionRoutes(r chi.Router, svc *service.SubmissionService, name string) {
	read := s.limit(name+":read", limiter.PerMinute(100))
	mutate := s.limit(name+":mutate", limiter.PerMinute(5))
	create := s.limit(name+":create", limiter.PerHour(10))

	r.With(s.requireAuth, read).Get("/", s.handleList(svc))
	r.With(s.requireAuth, read).Get("/user", s.handleListOwn(svc))
	r.With(s.requireAuth, read).Get("/state/{state}", s.handleListByState(svc))
	r.With(s.requireAuth, read).Get("/{id}", s.handleGet(svc))
	r.With(s.requireAuth, create).Post("/", s.handleCreate(svc))
	r.With(s.requireAuth, mutate).Patch("/{id}", s.handleEdit(svc))
	r.With(s.requireAuth, mutate).Post("/{id}/comment", s.handleComment(svc))
	r.With(s.requireAuth, mutate).Patch("/{id}/state", s.handleSetState(svc))
}
