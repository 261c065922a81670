package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/keihibook/keihibook/internal/common"
	"github.com/keihibook/keihibook/internal/export"
	"github.com/keihibook/keihibook/internal/repository"
	"github.com/keihibook/keihibook/internal/worker"
)

// Server holds the HTTP surface: receipt registration, the worker trigger,
// and the ledger read/edit/export endpoints.
type Server struct {
	store    *repository.Store
	runner   *worker.Runner
	exporter *export.Service
	cfg      *common.Config
	logger   *slog.Logger
}

func New(store *repository.Store, runner *worker.Runner, exporter *export.Service, cfg *common.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    store,
		runner:   runner,
		exporter: exporter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Router assembles all routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/receipts/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/cron/process-receipts", s.handleProcessReceipts).Methods(http.MethodGet)
	api.HandleFunc("/ledger", s.handleListLedger).Methods(http.MethodGet)
	api.HandleFunc("/ledger/export", s.handleExportLedger).Methods(http.MethodGet)
	api.HandleFunc("/ledger/{journalID:[0-9]+}", s.handleGetLedger).Methods(http.MethodGet)
	api.HandleFunc("/ledger/{journalID:[0-9]+}", s.handleUpdateLedger).Methods(http.MethodPatch)
	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

type errorBody struct {
	Message string `json:"message"`
}

type errorResponse struct {
	OK    bool      `json:"ok"`
	Error errorBody `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{OK: false, Error: errorBody{Message: message}})
}

// writeStoreError maps a repository error onto a response. Sentinel errors
// surface their own message; anything else is logged and hidden behind a 500.
func (s *Server) writeStoreError(w http.ResponseWriter, err error, logMsg string, args ...any) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(logMsg, append(args, "error", err)...)
		s.writeError(w, status, "internal error")
		return
	}
	s.writeError(w, status, err.Error())
}

// statusFromError maps repository sentinels onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
