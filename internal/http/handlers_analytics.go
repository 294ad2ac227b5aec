package http

import (
	"net/http"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := ParseDateRange(r.URL.Query())
	if err != nil {
		s.fail(w, r, err, "", "fetching summary")
		return
	}
	sum, err := s.svc.Analytics.Summary(r.Context(), userID(r), rng)
	if err != nil {
		s.fail(w, r, err, "", "fetching summary")
		return
	}
	OK(sum).Write(w)
}

func (s *Server) handleByCategory(w http.ResponseWriter, r *http.Request) {
	rng, err := ParseDateRange(r.URL.Query())
	if err != nil {
		s.fail(w, r, err, "", "fetching category analytics")
		return
	}
	b, err := s.svc.Analytics.ByCategory(r.Context(), userID(r), rng)
	if err != nil {
		s.fail(w, r, err, "", "fetching category analytics")
		return
	}
	OK(b).Write(w)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	rng, err := ParseDateRange(r.URL.Query())
	if err != nil {
		s.fail(w, r, err, "", "fetching trend analytics")
		return
	}
	points, err := s.svc.Analytics.Trend(r.Context(), userID(r), rng)
	if err != nil {
		s.fail(w, r, err, "", "fetching trend analytics")
		return
	}
	List(points).Write(w)
}

func (s *Server) handleMonthCompare(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.svc.Analytics.MonthCompare(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err, "", "fetching month comparison")
		return
	}
	OK(cmp).Write(w)
}
