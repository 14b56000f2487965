package http

import (
	"net/http"

	"kincore/internal/api"
	"kincore/internal/core"
	"kincore/internal/levels"
)

const (
	msgMissingCredentials = "Введите логин и пароль"
	msgPasswordMismatch   = "Пароли не совпадают"
)

type sessionResponse struct {
	Authenticated bool          `json:"authenticated"`
	User          *core.User    `json:"user,omitempty"`
	Levels        *levels.State `json:"levels,omitempty"`
}

func (s *Server) sessionState(withLevels bool) sessionResponse {
	snap := s.svc.Session.Snapshot()
	resp := sessionResponse{Authenticated: snap.Authenticated, User: snap.User}
	if withLevels && snap.Authenticated {
		st := s.svc.Levels.State()
		resp.Levels = &st
	}
	return resp
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessionState(true))
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, msgInvalidBody)
		return
	}
	login := sanitizeInput(req.Login)
	if login == "" || req.Password == "" {
		badRequest(w, msgMissingCredentials)
		return
	}

	if _, err := s.svc.Auth.SignIn(r.Context(), login, req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	s.svc.Levels.Refresh(r.Context())
	writeJSON(w, http.StatusOK, s.sessionState(true))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.Registration
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, msgInvalidBody)
		return
	}
	req.Username = sanitizeInput(req.Username)
	req.Email = sanitizeInput(req.Email)
	req.FirstName = sanitizeInput(req.FirstName)
	req.LastName = sanitizeInput(req.LastName)
	req.MiddleName = sanitizeInput(req.MiddleName)
	req.Phone = sanitizeInput(req.Phone)
	if req.Username == "" || req.Password == "" {
		badRequest(w, msgMissingCredentials)
		return
	}
	if req.PasswordConfirm != "" && req.PasswordConfirm != req.Password {
		badRequest(w, msgPasswordMismatch)
		return
	}

	if _, err := s.svc.Auth.Register(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	s.svc.Levels.Refresh(r.Context())
	writeJSON(w, http.StatusCreated, s.sessionState(true))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := s.svc.Session.Token()
	if err := s.svc.Auth.SignOut(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	if token != "" && s.svc.Dictionaries != nil {
		s.svc.Dictionaries.Forget(token)
	}
	writeJSON(w, http.StatusOK, s.sessionState(false))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	var patch api.ProfilePatch
	if err := decodeJSON(r, &patch); err != nil {
		badRequest(w, msgInvalidBody)
		return
	}
	for _, f := range []*string{patch.FirstName, patch.LastName, patch.MiddleName, patch.Phone, patch.Email, patch.Bio, patch.BirthDate} {
		if f != nil {
			*f = sanitizeInput(*f)
		}
	}

	if _, err := s.svc.Auth.SaveProfile(r.Context(), patch); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.sessionState(true))
}
