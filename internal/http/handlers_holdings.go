package http

import (
	"net/http"

	"kincore/internal/finance"
)

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Holdings.Assets(r.Context(), s.svc.Levels.Current())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	in, ok := assetInput(w, r)
	if !ok {
		return
	}
	view, err := s.svc.Holdings.CreateAsset(r.Context(), s.svc.Levels.Current(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	in, ok := assetInput(w, r)
	if !ok {
		return
	}
	view, err := s.svc.Holdings.UpdateAsset(r.Context(), s.svc.Levels.Current(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Holdings.DeleteAsset(r.Context(), s.svc.Levels.Current(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func assetInput(w http.ResponseWriter, r *http.Request) (finance.AssetInput, bool) {
	var in finance.AssetInput
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, msgInvalidBody)
		return in, false
	}
	in.Name = sanitizeInput(in.Name)
	in.PurchaseValue = sanitizeInput(in.PurchaseValue)
	in.CurrentValue = sanitizeInput(in.CurrentValue)
	return in, true
}

func (s *Server) handleLiabilities(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Holdings.Liabilities(r.Context(), s.svc.Levels.Current())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCreateLiability(w http.ResponseWriter, r *http.Request) {
	in, ok := liabilityInput(w, r)
	if !ok {
		return
	}
	view, err := s.svc.Holdings.CreateLiability(r.Context(), s.svc.Levels.Current(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleUpdateLiability(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	in, ok := liabilityInput(w, r)
	if !ok {
		return
	}
	view, err := s.svc.Holdings.UpdateLiability(r.Context(), s.svc.Levels.Current(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteLiability(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Holdings.DeleteLiability(r.Context(), s.svc.Levels.Current(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func liabilityInput(w http.ResponseWriter, r *http.Request) (finance.LiabilityInput, bool) {
	var in finance.LiabilityInput
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, msgInvalidBody)
		return in, false
	}
	for _, f := range []*string{&in.Name, &in.InitialAmount, &in.OpenDate, &in.CloseDate,
		&in.InterestRate, &in.PaymentType, &in.PaymentDate} {
		*f = sanitizeInput(*f)
	}
	return in, true
}
