// Package api declares HTTP contracts and route registration for the
// matching service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	service "github.com/okian/refmatch/internal/app"
	"github.com/okian/refmatch/internal/domain/model"
	"github.com/okian/refmatch/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Service is the subset of the matching service the handlers call.
type Service interface {
	StatsProvider

	UpsertReferee(ctx context.Context, r model.Referee) (model.Referee, error)
	GetReferee(ctx context.Context, id string) (model.Referee, error)

	OnGameSubmitted(ctx context.Context, g model.Game) (model.Game, service.MatchOutcome, error)
	GetGame(ctx context.Context, id string) (model.Game, error)
	ListGames(ctx context.Context, statuses ...model.GameStatus) ([]model.Game, error)
	ListGameAssignments(ctx context.Context, gameID string) ([]model.Assignment, error)
	CancelGame(ctx context.Context, gameID, reason string) (model.Game, error)

	GetAssignment(ctx context.Context, id string) (model.Assignment, error)
	OnAssignmentResponse(ctx context.Context, id string, accept bool) (model.Assignment, error)
	MarkCompleted(ctx context.Context, id string) (model.Assignment, error)
	MarkNoShow(ctx context.Context, id string) (model.Assignment, error)

	RunMatchingPass(ctx context.Context) (service.PassReport, error)
	OnAdminForceAssign(ctx context.Context, gameID, refereeID string) (model.Assignment, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	svc            Service
	corsOrigins    []string
	requestTimeout time.Duration
	logger         logger.Logger

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		corsOrigins:    []string{"*"},
		requestTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(svc)
	return s
}

// Router returns a chi router with the middleware stack applied. Callers
// may mount more routes on it before serving.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	if s.requestTimeout > 0 {
		r.Use(chimiddleware.Timeout(s.requestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/livez", MetricsMiddleware(s.healthHandler.HandleLive, "livez"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/referees", func(r chi.Router) {
		r.Post("/", MetricsMiddleware(s.upsertReferee, "referees_upsert"))
		r.Get("/{id}", MetricsMiddleware(s.getReferee, "referees_get"))
	})

	r.Route("/games", func(r chi.Router) {
		r.Post("/", MetricsMiddleware(s.submitGame, "games_submit"))
		r.Get("/", MetricsMiddleware(s.listGames, "games_list"))
		r.Get("/{id}", MetricsMiddleware(s.getGame, "games_get"))
		r.Get("/{id}/assignments", MetricsMiddleware(s.listGameAssignments, "games_assignments"))
		r.Post("/{id}/cancel", MetricsMiddleware(s.cancelGame, "games_cancel"))
	})

	r.Route("/assignments/{id}", func(r chi.Router) {
		r.Get("/", MetricsMiddleware(s.getAssignment, "assignments_get"))
		r.Post("/response", MetricsMiddleware(s.respond, "assignments_response"))
		r.Post("/complete", MetricsMiddleware(s.complete, "assignments_complete"))
		r.Post("/no-show", MetricsMiddleware(s.noShow, "assignments_no_show"))
	})

	r.Post("/matching/run", MetricsMiddleware(s.runPass, "matching_run"))
	r.Post("/admin/games/{id}/force-assign", MetricsMiddleware(s.forceAssign, "admin_force_assign"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail maps err onto a status code and writes it. Server errors are logged
// since their message is the only trace the client gets.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", chimiddleware.GetReqID(r.Context())),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}

// decode reads a JSON body into v. An empty body leaves v untouched when
// optional is set.
func decode(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
