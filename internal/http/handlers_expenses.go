package http

import (
	"net/http"

	"kincore/internal/finance"
)

type paymentRequest struct {
	PaidDate string `json:"paid_date"`
	Amount   string `json:"amount"`
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	period, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	view, err := s.svc.Finance.MonthExpenses(r.Context(), s.svc.Levels.Current(), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var in finance.ExpenseInput
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, msgInvalidBody)
		return
	}
	in.Name = sanitizeInput(in.Name)
	in.Amount = sanitizeInput(in.Amount)
	in.Date = sanitizeInput(in.Date)

	view, err := s.svc.Finance.CreateExpense(r.Context(), s.svc.Levels.Current(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Finance.DeleteExpense(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	id, req, ok := s.paymentInput(w, r)
	if !ok {
		return
	}
	if err := s.svc.Finance.MarkPaid(r.Context(), id, req.PaidDate, req.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnpay(w http.ResponseWriter, r *http.Request) {
	id, req, ok := s.paymentInput(w, r)
	if !ok {
		return
	}
	if err := s.svc.Finance.Unmark(r.Context(), id, req.PaidDate); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) paymentInput(w http.ResponseWriter, r *http.Request) (int64, paymentRequest, bool) {
	var req paymentRequest
	id, ok := recordID(w, r)
	if !ok {
		return 0, req, false
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, msgInvalidBody)
		return 0, req, false
	}
	req.PaidDate = sanitizeInput(req.PaidDate)
	req.Amount = sanitizeInput(req.Amount)
	return id, req, true
}

// recordID reads the {id} URL parameter, answering 404 when it is malformed.
func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: CodeInvalidInput})
		return 0, false
	}
	return id, true
}
