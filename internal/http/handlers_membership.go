package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"kincore/internal/api"
	"kincore/internal/core"
	"kincore/internal/levels"
)

type joinRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type membershipResponse struct {
	Group  *api.Group   `json:"group"`
	Levels levels.State `json:"levels"`
}

type circleGateResponse struct {
	Allowed bool   `json:"allowed"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (s *Server) groupKind(w http.ResponseWriter, r *http.Request) (core.LevelType, bool) {
	kind, err := core.ParseGroupKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeInvalidInput})
		return "", false
	}
	return kind, true
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.groupKind(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, msgInvalidBody)
		return
	}

	group, err := s.svc.Membership.Join(r.Context(), kind, sanitizeInput(req.Code), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipResponse{Group: group, Levels: s.svc.Levels.State()})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.groupKind(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, msgInvalidBody)
		return
	}

	group, err := s.svc.Membership.Create(r.Context(), kind, sanitizeInput(req.Name), sanitizeInput(req.Description))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, membershipResponse{Group: group, Levels: s.svc.Levels.State()})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var ref core.LevelRef
	if err := decodeJSON(r, &ref); err != nil {
		badRequest(w, msgInvalidBody)
		return
	}
	creds, err := s.svc.Membership.RegenerateCredentials(r.Context(), ref)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

// handleCircleGate reports whether the circle join form may be shown. A
// refusal is a normal answer, not an error status.
func (s *Server) handleCircleGate(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Membership.CheckCircleJoin()
	if err == nil {
		writeJSON(w, http.StatusOK, circleGateResponse{Allowed: true})
		return
	}
	_, code := classify(err)
	writeJSON(w, http.StatusOK, circleGateResponse{
		Error: core.FailureMessage(err, err.Error()),
		Code:  code,
	})
}
