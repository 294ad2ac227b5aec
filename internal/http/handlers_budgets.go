package http

import (
	"net/http"

	"spendwise/internal/core"
	"spendwise/internal/services"
)

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var in services.BudgetInput
	if err := DecodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, resBudget, "creating budget")
		return
	}
	b, err := s.svc.Budgets.Create(r.Context(), userID(r), in)
	if err != nil {
		s.fail(w, r, err, resBudget, "creating budget")
		return
	}
	Created(b).Write(w)
}

// handleListBudgets lists the budgets of ?month&year (default: this month)
// with what was spent against each.
func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	month, year, err := ParseMonthParams(r.URL.Query())
	if err != nil {
		s.fail(w, r, err, resBudget, "fetching budgets")
		return
	}
	usage, err := s.svc.Budgets.List(r.Context(), userID(r), month, year)
	if err != nil {
		s.fail(w, r, err, resBudget, "fetching budgets")
		return
	}
	List(usage).Write(w)
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Limit *core.Money `json:"limit"`
	}
	if err := DecodeJSON(w, r, &body); err != nil {
		s.fail(w, r, err, resBudget, "updating budget")
		return
	}
	b, err := s.svc.Budgets.UpdateLimit(r.Context(), userID(r), r.PathValue("id"), body.Limit)
	if err != nil {
		s.fail(w, r, err, resBudget, "updating budget")
		return
	}
	OK(b).Write(w)
}

func (s *Server) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Budgets.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.fail(w, r, err, resBudget, "deleting budget")
		return
	}
	NewResponse().Message("Budget deleted successfully").Write(w)
}
