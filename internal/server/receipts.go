package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/keihibook/keihibook/constants"
	"github.com/keihibook/keihibook/internal/repository"
)

type registerRequest struct {
	ReceiptID string `json:"receiptId"`
	BlobURL   string `json:"blobUrl"`
	Pathname  string `json:"pathname"`
	FileName  string `json:"fileName"`
	MIMEType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
}

func (r *registerRequest) validate(maxFileBytes int64) error {
	if _, err := uuid.Parse(r.ReceiptID); err != nil {
		return fmt.Errorf("receiptId must be a UUID")
	}
	u, err := url.Parse(r.BlobURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("blobUrl must be an absolute http(s) URL")
	}
	if strings.TrimSpace(r.Pathname) == "" {
		return fmt.Errorf("pathname is required")
	}
	if strings.TrimSpace(r.FileName) == "" {
		return fmt.Errorf("fileName is required")
	}
	if !constants.MIMETypeAllowed(r.MIMEType) {
		return fmt.Errorf("mimeType %q is not allowed", r.MIMEType)
	}
	if r.SizeBytes <= 0 {
		return fmt.Errorf("sizeBytes must be positive")
	}
	if r.SizeBytes > maxFileBytes {
		return fmt.Errorf("sizeBytes exceeds the %d byte limit", maxFileBytes)
	}
	return nil
}

// handleRegister records an uploaded receipt in the queue. Safe to call more
// than once per receipt id; both the client completion hook and the storage
// webhook may land here for the same upload.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(s.cfg.Worker.MaxFileBytes); err != nil {
		s.logger.Warn("register rejected", "receipt_id", req.ReceiptID, "error", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := s.store.Queue.Register(r.Context(), repository.RegisterRequest{
		ReceiptID: req.ReceiptID,
		BlobURL:   req.BlobURL,
		Pathname:  req.Pathname,
		FileName:  req.FileName,
		MIMEType:  req.MIMEType,
		SizeBytes: req.SizeBytes,
	})
	if err != nil {
		s.logger.Error("register failed", "receipt_id", req.ReceiptID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "receiptId": req.ReceiptID})
}
