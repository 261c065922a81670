package server

import (
	"fmt"
	"net/http"
	"time"
)

func (s *Server) handleExportLedger(w http.ResponseWriter, r *http.Request) {
	data, err := s.exporter.ExportLedgerXLSX(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.logger.Error("ledger export failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	filename := fmt.Sprintf("ledger-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
