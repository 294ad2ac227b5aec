package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"spendwise/internal/services"
)

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in services.TransactionInput
	if err := DecodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err, resTransaction, "creating transaction")
		return
	}
	t, err := s.svc.Ledger.Create(r.Context(), userID(r), in)
	if err != nil {
		s.fail(w, r, err, resTransaction, "creating transaction")
		return
	}
	Created(t).Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := ParseTransactionFilter(r.URL.Query())
	if err != nil {
		s.fail(w, r, err, resTransaction, "fetching transactions")
		return
	}
	txs, err := s.svc.Ledger.List(r.Context(), userID(r), f)
	if err != nil {
		s.fail(w, r, err, resTransaction, "fetching transactions")
		return
	}
	List(txs).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Ledger.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err, resTransaction, "fetching transaction")
		return
	}
	OK(t).Write(w)
}

// handleExportTransactions streams the filtered ledger as a CSV attachment.
// The rows are rendered into a buffer first so a failure still gets a JSON
// error instead of a truncated file.
func (s *Server) handleExportTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := ParseTransactionFilter(r.URL.Query())
	if err != nil {
		s.fail(w, r, err, resTransaction, "exporting transactions")
		return
	}
	var buf bytes.Buffer
	n, err := s.svc.Ledger.ExportCSV(r.Context(), userID(r), f, &buf)
	if err != nil {
		s.fail(w, r, err, resTransaction, "exporting transactions")
		return
	}

	name := fmt.Sprintf("transactions-%s.csv", s.clock.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("X-Total-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var patch services.TransactionPatch
	if err := DecodeJSON(w, r, &patch); err != nil {
		s.fail(w, r, err, resTransaction, "updating transaction")
		return
	}
	t, err := s.svc.Ledger.Update(r.Context(), userID(r), r.PathValue("id"), patch)
	if err != nil {
		s.fail(w, r, err, resTransaction, "updating transaction")
		return
	}
	OK(t).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ledger.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		s.fail(w, r, err, resTransaction, "deleting transaction")
		return
	}
	NewResponse().Message("Transaction deleted successfully").Write(w)
}
