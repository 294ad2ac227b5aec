package http

import (
	"net/http"

	"spendwise/internal/core"
	"spendwise/internal/services"
)

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var in services.RuleInput
	if err := DecodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, resRule, "creating recurring rule")
		return
	}
	rule, err := s.svc.Recurring.Create(r.Context(), userID(r), in)
	if err != nil {
		s.fail(w, r, err, resRule, "creating recurring rule")
		return
	}
	Created(rule).Write(w)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.svc.Recurring.List(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err, resRule, "fetching recurring rules")
		return
	}
	List(rules).Write(w)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.svc.Recurring.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, resRule, "fetching recurring rule")
		return
	}
	OK(rule).Write(w)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var patch services.RulePatch
	if err := DecodeJSON(w, r, &patch); err != nil {
		s.fail(w, r, err, resRule, "updating recurring rule")
		return
	}
	rule, err := s.svc.Recurring.Update(r.Context(), userID(r), r.PathValue("id"), patch)
	if err != nil {
		s.fail(w, r, err, resRule, "updating recurring rule")
		return
	}
	OK(rule).Write(w)
}

func (s *Server) handleSetRuleStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status core.RuleStatus `json:"status"`
	}
	if err := DecodeJSON(w, r, &body); err != nil {
		s.fail(w, r, err, resRule, "updating status")
		return
	}
	rule, err := s.svc.Recurring.SetStatus(r.Context(), userID(r), r.PathValue("id"), body.Status)
	if err != nil {
		s.fail(w, r, err, resRule, "updating status")
		return
	}
	OK(rule).Write(w)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Recurring.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.fail(w, r, err, resRule, "deleting recurring rule")
		return
	}
	NewResponse().Message("Recurring rule deleted").Write(w)
}

// handlePreviewRule tells whether a rule would fire today and when it fires
// next, without executing it.
func (s *Server) handlePreviewRule(w http.ResponseWriter, r *http.Request) {
	ev, err := s.svc.Recurring.PreviewNext(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, resRule, "previewing recurring rule")
		return
	}
	OK(ev).Write(w)
}

// handleRunRecurring runs the engine for the caller as of today. Rule
// failures are part of the report, not an error status.
func (s *Server) handleRunRecurring(w http.ResponseWriter, r *http.Request) {
	report := s.svc.Processor.RunFor(r.Context(), userID(r), s.clock.Now())
	if report.Err != nil {
		s.fail(w, r, report.Err, resRule, "running recurring rules")
		return
	}
	OK(report).Write(w)
}
