package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/keihibook/keihibook/internal/repository"
)

func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, total, err := s.store.Ledger.List(r.Context(), repository.ListLedgerParams{
		Query:  q.Get("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("ledger list failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"rows":   rows,
	})
}

func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	journalID, err := strconv.ParseInt(mux.Vars(r)["journalID"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "journalID must be an integer")
		return
	}
	e, err := s.store.Ledger.GetByID(r.Context(), journalID)
	if err != nil {
		s.writeStoreError(w, err, "ledger get failed", "journal_id", journalID)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "row": e})
}

type updateLedgerRequest struct {
	TransactionDate *string `json:"transactionDate,omitempty"`

	DebitAccount         *string `json:"debitAccount,omitempty"`
	DebitVendor          *string `json:"debitVendor,omitempty"`
	DebitAmount          *int64  `json:"debitAmount,omitempty"`
	DebitTax             *int64  `json:"debitTax,omitempty"`
	DebitInvoiceCategory *string `json:"debitInvoiceCategory,omitempty"`

	CreditAccount         *string `json:"creditAccount,omitempty"`
	CreditVendor          *string `json:"creditVendor,omitempty"`
	CreditAmount          *int64  `json:"creditAmount,omitempty"`
	CreditTax             *int64  `json:"creditTax,omitempty"`
	CreditInvoiceCategory *string `json:"creditInvoiceCategory,omitempty"`

	Description *string `json:"description,omitempty"`
	Memo        *string `json:"memo,omitempty"`
}

func (s *Server) handleUpdateLedger(w http.ResponseWriter, r *http.Request) {
	journalID, err := strconv.ParseInt(mux.Vars(r)["journalID"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "journalID must be an integer")
		return
	}

	var body updateLedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req := repository.UpdateLedgerRequest{
		DebitAccount:          body.DebitAccount,
		DebitVendor:           body.DebitVendor,
		DebitAmount:           body.DebitAmount,
		DebitTax:              body.DebitTax,
		DebitInvoiceCategory:  body.DebitInvoiceCategory,
		CreditAccount:         body.CreditAccount,
		CreditVendor:          body.CreditVendor,
		CreditAmount:          body.CreditAmount,
		CreditTax:             body.CreditTax,
		CreditInvoiceCategory: body.CreditInvoiceCategory,
		Description:           body.Description,
		Memo:                  body.Memo,
	}
	if body.TransactionDate != nil {
		t, err := time.Parse("2006-01-02", *body.TransactionDate)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "transactionDate must be YYYY-MM-DD")
			return
		}
		req.TransactionDate = &t
	}
	if amountNegative(req) {
		s.writeError(w, http.StatusBadRequest, "amounts must be non-negative")
		return
	}

	e, err := s.store.Ledger.Update(r.Context(), journalID, req)
	if err != nil {
		s.writeStoreError(w, err, "ledger update failed", "journal_id", journalID)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "row": e})
}

func amountNegative(req repository.UpdateLedgerRequest) bool {
	for _, v := range []*int64{req.DebitAmount, req.DebitTax, req.CreditAmount, req.CreditTax} {
		if v != nil && *v < 0 {
			return true
		}
	}
	return false
}
