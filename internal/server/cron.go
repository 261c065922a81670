package server

import (
	"crypto/subtle"
	"net/http"
)

// handleProcessReceipts triggers one worker run. Only authentication and
// configuration problems fail the call itself; item-level failures come
// back inside the summary.
func (s *Server) handleProcessReceipts(w http.ResponseWriter, r *http.Request) {
	secret := s.cfg.Worker.CronSecret
	if secret == "" {
		s.logger.Error("cron trigger rejected: CRON_SECRET not configured")
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	auth := r.Header.Get("Authorization")
	expected := "Bearer " + secret
	if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) != 1 {
		s.logger.Warn("cron trigger rejected: bad secret")
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sum, err := s.runner.RunOnce(r.Context())
	if err != nil {
		s.logger.Error("worker run failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sum.Skipped {
		s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "skipped": true, "reason": sum.Reason})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "processed": sum.Processed, "failed": sum.Failed})
}
