package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/okian/refmatch/internal/domain/model"
)

// POST /referees
func (s *Server) upsertReferee(w http.ResponseWriter, r *http.Request) {
	var ref model.Referee
	if err := decode(r, &ref, false); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(ref.ID) == "" {
		ref.ID = uuid.NewString()
	}
	out, err := s.svc.UpsertReferee(r.Context(), ref)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if out.Version == 1 {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

// GET /referees/{id}
func (s *Server) getReferee(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.GetReferee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /games
func (s *Server) submitGame(w http.ResponseWriter, r *http.Request) {
	var req gameRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	g, outcome, err := s.svc.OnGameSubmitted(r.Context(), req.toModel())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{Game: newGameView(g), Match: outcome})
}

// GET /games?status=pending,assigned
func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	var statuses []model.GameStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				statuses = append(statuses, model.GameStatus(st))
			}
		}
	}
	games, err := s.svc.ListGames(r.Context(), statuses...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]gameView, 0, len(games))
	for _, g := range games {
		views = append(views, newGameView(g))
	}
	writeJSON(w, http.StatusOK, views)
}

// GET /games/{id}
func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	g, err := s.svc.GetGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newGameView(g))
}

// GET /games/{id}/assignments
func (s *Server) listGameAssignments(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.ListGameAssignments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /games/{id}/cancel
func (s *Server) cancelGame(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decode(r, &req, true); err != nil {
		s.fail(w, r, err)
		return
	}
	g, err := s.svc.CancelGame(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newGameView(g))
}

// GET /assignments/{id}
func (s *Server) getAssignment(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.GetAssignment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /assignments/{id}/response
func (s *Server) respond(w http.ResponseWriter, r *http.Request) {
	var req responseRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Accept == nil {
		s.fail(w, r, fmt.Errorf("%w: missing accept", ErrBadRequest))
		return
	}
	out, err := s.svc.OnAssignmentResponse(r.Context(), chi.URLParam(r, "id"), *req.Accept)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /assignments/{id}/complete
func (s *Server) complete(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.MarkCompleted(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /assignments/{id}/no-show
func (s *Server) noShow(w http.ResponseWriter, r *http.Request) {
	out, err := s.svc.MarkNoShow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// POST /matching/run
func (s *Server) runPass(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.RunMatchingPass(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// POST /admin/games/{id}/force-assign
func (s *Server) forceAssign(w http.ResponseWriter, r *http.Request) {
	var req forceAssignRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.RefereeID) == "" {
		s.fail(w, r, fmt.Errorf("%w: missing referee_id", ErrBadRequest))
		return
	}
	out, err := s.svc.OnAdminForceAssign(r.Context(), chi.URLParam(r, "id"), req.RefereeID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
